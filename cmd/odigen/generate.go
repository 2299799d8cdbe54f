package main

import (
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"go.uber.org/zap"
)

// defaultOutName is written next to the scanned sources when -out is omitted.
const defaultOutName = "odi.gen.go"

// generate scans dir and writes the wiring file to out.
func generate(log *zap.Logger, cfg *Config, dir, out string) error {
	spec, err := scanPackage(cfg, dir)
	if err != nil {
		return err
	}
	log.Debug("Package scanned",
		zap.String("package", spec.Name),
		zap.Int("structs", len(spec.Structs)),
		zap.Int("providers", len(spec.Providers)),
		zap.String("hash", spec.Hash))

	src, err := render(cfg, spec)
	if err != nil {
		return err
	}
	if out == "" {
		out = filepath.Join(dir, defaultOutName)
	}
	if err := writeFormatted(out, src); err != nil {
		return err
	}
	log.Info("Wiring generated", zap.String("out", filepath.ToSlash(out)), zap.String("package", spec.Name))
	return nil
}

// render executes the template for spec.
func render(cfg *Config, spec *PackageSpec) ([]byte, error) {
	imports, err := mergeImports([]GoImport{
		{Name: "di", Path: cfg.DI},
		{Name: "fmt", Path: "fmt"},
	}, spec.Imports)
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"Spec":    spec,
		"Dir":     filepath.ToSlash(spec.Dir),
		"Imports": imports,
	}
	var sb strings.Builder
	if err := wiringTpl.Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("unable to render wiring: %w", err)
	}
	return []byte(sb.String()), nil
}

// mergeImports combines required and used imports; one name may map to one path only.
func mergeImports(required, used []GoImport) ([]GoImport, error) {
	byName := map[string]string{}
	for _, gi := range append(append([]GoImport{}, required...), used...) {
		if prev, ok := byName[gi.Name]; ok {
			if prev != gi.Path {
				return nil, fmt.Errorf("import name %s refers to both %s and %s", gi.Name, prev, gi.Path)
			}
			continue
		}
		byName[gi.Name] = gi.Path
	}

	out := make([]GoImport, 0, len(byName))
	for name, p := range byName {
		out = append(out, GoImport{Name: name, Path: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func writeFormatted(out string, src []byte) error {
	fmtSrc, err := format.Source(src)
	if err != nil {
		// keep the unformatted output around for debugging
		_ = os.WriteFile(out, src, 0o644)
		return fmt.Errorf("gofmt/format failed: %w", err)
	}
	if err := os.WriteFile(out, fmtSrc, 0o644); err != nil {
		return fmt.Errorf("unable to write '%s': %w", out, err)
	}
	return nil
}

// keyExpr renders the di key constructor for a type and optional qualifier.
func keyExpr(typ string, q *QualifierSpec) string {
	if q == nil {
		return "di.KeyOf[" + typ + "]()"
	}
	return "di.QualifiedKey[" + typ + ", " + q.goType() + "]()"
}

// valueExpr renders v, wrapped back into di.Qualified when the site declares it.
func valueExpr(v string, wrapped bool, q *QualifierSpec) string {
	if !wrapped || q == nil {
		return v
	}
	return "di.Qualify[" + q.goType() + "](" + v + ")"
}

func argList(params []ParamSite) string {
	args := make([]string, len(params))
	for i, p := range params {
		args[i] = valueExpr("p"+strconv.Itoa(i), p.Wrapped, p.Qualifier)
	}
	return strings.Join(args, ", ")
}

func describe(typ string, q *QualifierSpec) string {
	if q == nil {
		return typ
	}
	return typ + "@" + q.Name
}

// aliased reports whether an import needs an explicit name.
func aliased(gi GoImport) bool { return gi.Name != defaultImportName(gi.Path) }

// templateFuncs is slim-sprig plus the generator helpers.
func templateFuncs() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["key"] = keyExpr
	funcs["args"] = argList
	funcs["value"] = valueExpr
	funcs["describe"] = describe
	funcs["aliased"] = aliased
	return funcs
}

var wiringTpl = template.Must(
	template.New("wiring").
		Funcs(templateFuncs()).
		Parse(`// Code generated by odigen; DO NOT EDIT.
// Source: {{.Dir}}
// Source-SHA256: {{.Spec.Hash}}

package {{.Spec.Name}}

import (
{{- range .Imports }}
	{{- if aliased . }}
	{{ .Name }} "{{ .Path }}"
	{{- else }}
	"{{ .Path }}"
	{{- end }}
{{- end }}
)

{{- range .Spec.Structs }}
{{- $s := . }}

// Wire{{ $s.Name }} fills the injection fields of dst from r.
func Wire{{ $s.Name }}(r di.Resolver, dst *{{ $s.Name }}) error {
	if dst == nil {
		return fmt.Errorf("Wire{{ $s.Name }}: %w", di.ErrNotStructPointer)
	}
{{- range $s.Fields }}
	{
		v, err := di.ResolveAs[{{ .Type }}](r, {{ key .Type .Qualifier }})
		if err != nil {
			return fmt.Errorf({{ printf "Wire%s: field %s (%s): %%w" $s.Name .Name (describe .Type .Qualifier) | quote }}, err)
		}
		dst.{{ .Name }} = {{ value "v" .Wrapped .Qualifier }}
	}
{{- end }}
	return nil
}
{{- end }}

{{- if gt (len .Spec.Providers) 0 }}

// RegisterProviders binds every odi:provide function of package {{.Spec.Name}} on b.
func RegisterProviders(b *di.Binder) error {
{{- range $p := .Spec.Providers }}
	if err := b.BindProvider({{ key $p.Type $p.Qualifier }}, func(r di.Resolver) (any, error) {
{{- range $j, $a := $p.Params }}
		p{{ $j }}, err := di.ResolveAs[{{ $a.Type }}](r, {{ key $a.Type $a.Qualifier }})
		if err != nil {
			return nil, err
		}
{{- end }}
{{- if $p.HasError }}
		v, err := {{ $p.Func }}({{ args $p.Params }})
		if err != nil {
			return nil, err
		}
		return v{{ if $p.Wrapped }}.Value(){{ end }}, nil
{{- else }}
		return {{ $p.Func }}({{ args $p.Params }}){{ if $p.Wrapped }}.Value(){{ end }}, nil
{{- end }}
	}); err != nil {
		return fmt.Errorf("RegisterProviders: {{ $p.Func }}: %w", err)
	}
{{- end }}
	return nil
}
{{- end }}
`),
)
