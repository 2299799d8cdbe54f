package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/mccandless/odi/di"
)

const (
	directivePrefix = "//odi:"
	provideVerb     = "provide"
	paramVerb       = "param"
)

var errNothingToGenerate = errors.New("no injection fields or providers found")

// GoImport is an import used by generated code.
type GoImport struct {
	Name string
	Path string
}

// FieldSite is a struct field tagged for injection, or declared as
// di.Qualified. Type is the bound type: T for a di.Qualified[T, Q] field.
type FieldSite struct {
	Name      string
	Type      string
	Qualifier *QualifierSpec
	Wrapped   bool
}

// StructSpec is a struct with at least one injection field.
type StructSpec struct {
	Name   string
	Fields []FieldSite
}

// ParamSite is one provider parameter.
type ParamSite struct {
	Name      string
	Type      string
	Qualifier *QualifierSpec
	Wrapped   bool
}

// ProviderSpec is a package-level function annotated with //odi:provide.
type ProviderSpec struct {
	Func      string
	Type      string
	Qualifier *QualifierSpec
	Params    []ParamSite
	HasError  bool
	Wrapped   bool
}

// PackageSpec is everything the generator found in one package directory.
type PackageSpec struct {
	Dir       string
	Name      string
	Structs   []StructSpec
	Providers []ProviderSpec
	Imports   []GoImport
	Hash      string
}

// posError prefixes an error with its file:line.
type posError struct {
	pos token.Position
	err error
}

func (e posError) Error() string {
	if !e.pos.IsValid() {
		return e.err.Error()
	}
	return filepath.Base(e.pos.Filename) + ":" + strconv.Itoa(e.pos.Line) + ": " + e.err.Error()
}

func (e posError) Unwrap() error { return e.err }

type scanner struct {
	cfg  *Config
	fset *token.FileSet
	spec *PackageSpec

	// import name -> path for the file being scanned
	fileImports map[string]string
	// import name -> path used by generated code
	used map[string]string

	errs error
}

// isSourceFile reports whether name is a non-test, non-generated Go file.
func isSourceFile(name string) bool {
	if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
		return false
	}
	// avoid feeding generated outputs back into the scan
	return !strings.HasSuffix(name, ".gen.go") && !strings.Contains(name, ".gen.") && !strings.HasSuffix(name, "_gen.go")
}

// scanPackage parses every source file of dir and collects injection sites.
// All problems are returned together.
func scanPackage(cfg *Config, dir string) (*PackageSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read package directory: %w", err)
	}

	s := &scanner{
		cfg:  cfg,
		fset: token.NewFileSet(),
		spec: &PackageSpec{Dir: dir},
		used: map[string]string{},
	}
	hash := sha256.New()
	cfg.fingerprint(hash)

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSourceFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no Go source files in %s", filepath.ToSlash(dir))
	}

	for _, name := range names {
		full := filepath.Join(dir, name)
		src, err := os.ReadFile(full)
		if err != nil {
			return nil, err
		}
		hash.Write([]byte(name))
		hash.Write(src)

		f, err := parser.ParseFile(s.fset, full, src, parser.ParseComments)
		if err != nil {
			s.errs = multierr.Append(s.errs, err)
			continue
		}
		if s.spec.Name == "" {
			s.spec.Name = f.Name.Name
		} else if s.spec.Name != f.Name.Name {
			s.errs = multierr.Append(s.errs, fmt.Errorf("%s: package %s, expected %s", name, f.Name.Name, s.spec.Name))
			continue
		}
		s.scanFile(f)
	}

	if s.errs != nil {
		return nil, s.errs
	}
	s.checkDuplicateProviders()
	if s.errs != nil {
		return nil, s.errs
	}
	if len(s.spec.Structs) == 0 && len(s.spec.Providers) == 0 {
		return nil, errNothingToGenerate
	}

	for name, p := range s.used {
		s.spec.Imports = append(s.spec.Imports, GoImport{Name: name, Path: p})
	}
	sort.Slice(s.spec.Imports, func(i, j int) bool { return s.spec.Imports[i].Path < s.spec.Imports[j].Path })
	s.spec.Hash = hex.EncodeToString(hash.Sum(nil))
	return s.spec, nil
}

func (s *scanner) fail(pos token.Pos, err error) {
	s.errs = multierr.Append(s.errs, posError{pos: s.fset.Position(pos), err: err})
}

func (s *scanner) scanFile(f *ast.File) {
	s.fileImports = map[string]string{}
	for _, imp := range f.Imports {
		p, _ := strconv.Unquote(imp.Path.Value)
		name := defaultImportName(p)
		if imp.Name != nil {
			name = imp.Name.Name
		}
		s.fileImports[name] = p
	}

	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts := spec.(*ast.TypeSpec)
				doc := ts.Doc
				if doc == nil && len(d.Specs) == 1 {
					doc = d.Doc
				}
				s.rejectTypeDirectives(ts.Name.Name, doc)
				if st, ok := ts.Type.(*ast.StructType); ok {
					s.scanStruct(ts, st)
				}
			}
		case *ast.FuncDecl:
			s.scanFunc(d)
		}
	}
}

// rejectTypeDirectives reports qualifiers attached to a type declaration.
func (s *scanner) rejectTypeDirectives(typeName string, doc *ast.CommentGroup) {
	for _, dir := range directives(doc) {
		q := dir.qualifier()
		spec, ok := s.cfg.lookup(q)
		switch {
		case q == "":
			s.fail(dir.pos, fmt.Errorf("odi:%s cannot annotate type %s", dir.verb, typeName))
		case !ok:
			s.fail(dir.pos, di.UnknownQualifierError{Name: q, Site: typeName})
		case !spec.allows(di.TargetType):
			s.fail(dir.pos, di.InvalidTargetError{Qualifier: q, Target: di.TargetType, Site: typeName})
		case dir.verb == provideVerb || dir.verb == paramVerb:
			s.fail(dir.pos, fmt.Errorf("odi:%s cannot annotate type %s", dir.verb, typeName))
		}
	}
}

func (s *scanner) scanStruct(ts *ast.TypeSpec, st *ast.StructType) {
	name := ts.Name.Name
	spec := StructSpec{Name: name}
	for _, field := range st.Fields.List {
		tag, tagged := injectTag(field)
		_, _, isQualified := s.qualifiedArgs(field.Type)
		if !tagged && !isQualified {
			s.rejectEmbeddedMarker(name, field)
			continue
		}

		site := name + "." + fieldName(field)
		fs, err := s.fieldSite(field.Type, tag, site)
		if err != nil {
			s.fail(field.Pos(), err)
			continue
		}
		names := []string{fieldName(field)}
		if len(field.Names) > 0 {
			names = names[:0]
			for _, n := range field.Names {
				names = append(names, n.Name)
			}
		}
		for _, n := range names {
			if !ast.IsExported(n) {
				s.fail(field.Pos(), di.UnexportedFieldError{Site: name + "." + n})
				continue
			}
			fs.Name = n
			spec.Fields = append(spec.Fields, fs)
		}
	}
	if len(spec.Fields) > 0 {
		if ts.TypeParams != nil && len(ts.TypeParams.List) > 0 {
			s.fail(ts.Pos(), fmt.Errorf("struct %s with injection fields must not be generic", name))
			return
		}
		s.useQualifierImports(spec.Fields)
		s.spec.Structs = append(s.spec.Structs, spec)
	}
}

// injectTag returns the inject tag of a field.
func injectTag(field *ast.Field) (string, bool) {
	if field.Tag == nil {
		return "", false
	}
	raw, err := strconv.Unquote(field.Tag.Value)
	if err != nil {
		return "", false
	}
	return reflect.StructTag(raw).Lookup(di.TagName)
}

// fieldSite resolves the key of one injection field.
func (s *scanner) fieldSite(typ ast.Expr, tag, site string) (FieldSite, error) {
	bound, q, wrapped, err := s.unwrapQualified(typ, di.TargetField, site)
	switch {
	case err != nil:
		return FieldSite{}, err
	case wrapped && tag != "":
		return FieldSite{}, fmt.Errorf("field %s is Qualified and tagged %q", site, tag)
	case wrapped:
		return FieldSite{Type: bound, Qualifier: q, Wrapped: true}, nil
	}

	fs := FieldSite{}
	if qualName, _, _ := strings.Cut(tag, ","); qualName != "" {
		qs, found := s.cfg.lookup(qualName)
		if !found {
			return FieldSite{}, di.UnknownQualifierError{Name: qualName, Site: site}
		}
		if !qs.allows(di.TargetField) {
			return FieldSite{}, di.InvalidTargetError{Qualifier: qualName, Target: di.TargetField, Site: site}
		}
		fs.Qualifier = qs
	}
	fs.Type = s.typeString(typ)
	return fs, nil
}

// rejectEmbeddedMarker reports a configured qualifier embedded in a struct,
// which attaches it to the type.
func (s *scanner) rejectEmbeddedMarker(typeName string, field *ast.Field) {
	if len(field.Names) > 0 {
		return
	}
	typ := field.Type
	if star, ok := typ.(*ast.StarExpr); ok {
		typ = star.X
	}
	q, ok := s.qualifierOf(typ)
	if !ok || q.allows(di.TargetType) {
		return
	}
	s.fail(field.Pos(), di.InvalidTargetError{Qualifier: q.Name, Target: di.TargetType, Site: typeName})
}

// qualifiedArgs reports whether e spells di.Qualified[T, Q] and returns T and Q.
func (s *scanner) qualifiedArgs(e ast.Expr) (ast.Expr, ast.Expr, bool) {
	ix, ok := e.(*ast.IndexListExpr)
	if !ok || len(ix.Indices) != 2 {
		return nil, nil, false
	}
	sel, ok := ix.X.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Qualified" {
		return nil, nil, false
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok || s.fileImports[pkg.Name] != s.cfg.DI {
		return nil, nil, false
	}
	return ix.Indices[0], ix.Indices[1], true
}

// qualifierOf maps a marker type expression to its configured qualifier.
func (s *scanner) qualifierOf(e ast.Expr) (*QualifierSpec, bool) {
	var importPath, typeName string
	switch x := e.(type) {
	case *ast.Ident:
		typeName = x.Name
	case *ast.SelectorExpr:
		pkg, ok := x.X.(*ast.Ident)
		if !ok || s.fileImports[pkg.Name] == "" {
			return nil, false
		}
		importPath, typeName = s.fileImports[pkg.Name], x.Sel.Name
	default:
		return nil, false
	}
	for i := range s.cfg.Qualifiers {
		if q := &s.cfg.Qualifiers[i]; q.Import == importPath && q.Type == typeName {
			return q, true
		}
	}
	return nil, false
}

// unwrapQualified resolves a di.Qualified[T, Q] site to T and the qualifier
// configured for Q. wrapped is false for any other type.
func (s *scanner) unwrapQualified(e ast.Expr, t di.Target, site string) (bound string, q *QualifierSpec, wrapped bool, err error) {
	te, qe, ok := s.qualifiedArgs(e)
	if !ok {
		return "", nil, false, nil
	}
	q, found := s.qualifierOf(qe)
	if !found {
		return "", nil, true, di.UnknownQualifierError{Name: printExpr(s.fset, qe), Site: site}
	}
	if !q.allows(t) {
		return "", nil, true, di.InvalidTargetError{Qualifier: q.Name, Target: t, Site: site}
	}
	return s.typeString(te), q, true, nil
}

func (s *scanner) useQualifierImports(fields []FieldSite) {
	for _, f := range fields {
		s.useQualifier(f.Qualifier)
	}
}

func (s *scanner) useQualifier(q *QualifierSpec) {
	if q == nil || q.Import == "" {
		return
	}
	s.use(q.importName(), q.Import, token.NoPos)
}

func (s *scanner) use(name, importPath string, pos token.Pos) {
	if prev, ok := s.used[name]; ok && prev != importPath {
		s.fail(pos, fmt.Errorf("import name %s refers to both %s and %s", name, prev, importPath))
		return
	}
	s.used[name] = importPath
}

// fieldName returns the name of an embedded field.
func fieldName(f *ast.Field) string {
	if len(f.Names) > 0 {
		return f.Names[0].Name
	}
	t := f.Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	switch x := t.(type) {
	case *ast.IndexExpr:
		t = x.X
	case *ast.IndexListExpr:
		t = x.X
	}
	switch x := t.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.SelectorExpr:
		return x.Sel.Name
	}
	return "?"
}

func (s *scanner) scanFunc(fd *ast.FuncDecl) {
	dirs := directives(fd.Doc)
	if len(dirs) == 0 {
		return
	}

	var (
		provide *directive
		params  = map[string]directive{}
	)
	for i := range dirs {
		d := dirs[i]
		switch d.verb {
		case provideVerb:
			if provide != nil {
				s.fail(d.pos, fmt.Errorf("duplicate odi:provide on %s", fd.Name.Name))
				continue
			}
			provide = &d
		case paramVerb:
			name, q, ok := strings.Cut(d.arg, "=")
			if !ok || name == "" || q == "" {
				s.fail(d.pos, fmt.Errorf("odi:param on %s must look like <param>=<qualifier>", fd.Name.Name))
				continue
			}
			params[name] = directive{pos: d.pos, verb: d.verb, arg: q}
		default:
			s.fail(d.pos, fmt.Errorf("unknown directive odi:%s on %s", d.verb, fd.Name.Name))
		}
	}
	if provide == nil {
		if len(params) > 0 {
			s.fail(fd.Pos(), fmt.Errorf("odi:param on %s requires odi:provide", fd.Name.Name))
		}
		return
	}
	if fd.Recv != nil {
		s.fail(fd.Pos(), fmt.Errorf("provider %s must be a package-level function", fd.Name.Name))
		return
	}
	if fd.Type.TypeParams != nil && len(fd.Type.TypeParams.List) > 0 {
		s.fail(fd.Pos(), fmt.Errorf("provider %s must not be generic", fd.Name.Name))
		return
	}

	p := ProviderSpec{Func: fd.Name.Name}

	if q := provide.qualifier(); q != "" {
		qs, ok := s.cfg.lookup(q)
		if !ok {
			s.fail(provide.pos, di.UnknownQualifierError{Name: q, Site: fd.Name.Name})
			return
		}
		if !qs.allows(di.TargetMethod) {
			s.fail(provide.pos, di.InvalidTargetError{Qualifier: q, Target: di.TargetMethod, Site: fd.Name.Name})
			return
		}
		p.Qualifier = qs
	}

	results := fieldTypes(fd.Type.Results)
	switch {
	case len(results) == 0 || len(results) > 2:
		s.fail(fd.Pos(), fmt.Errorf("provider %s must return T or (T, error)", fd.Name.Name))
		return
	case len(results) == 2 && !isErrorIdent(results[1]):
		s.fail(fd.Pos(), fmt.Errorf("provider %s: second result must be error", fd.Name.Name))
		return
	case isErrorIdent(results[0]):
		s.fail(fd.Pos(), fmt.Errorf("provider %s: first result must not be error", fd.Name.Name))
		return
	}
	bound, wq, wrapped, err := s.unwrapQualified(results[0], di.TargetMethod, fd.Name.Name)
	switch {
	case err != nil:
		s.fail(fd.Pos(), err)
		return
	case wrapped && p.Qualifier != nil:
		s.fail(provide.pos, fmt.Errorf("provider %s returns di.Qualified and names qualifier %s", fd.Name.Name, p.Qualifier.Name))
		return
	case wrapped:
		p.Type, p.Qualifier, p.Wrapped = bound, wq, true
	default:
		p.Type = s.typeString(results[0])
	}
	p.HasError = len(results) == 2

	known := map[string]bool{}
	for _, field := range fd.Type.Params.List {
		if _, variadic := field.Type.(*ast.Ellipsis); variadic {
			s.fail(field.Pos(), fmt.Errorf("provider %s: variadic parameters are not supported", fd.Name.Name))
			return
		}
		names := field.Names
		if len(names) == 0 {
			names = []*ast.Ident{{Name: "_"}}
		}
		site := fd.Name.Name + "(" + names[0].Name + ")"
		typ, wq, wrapped, err := s.unwrapQualified(field.Type, di.TargetParameter, site)
		if err != nil {
			s.fail(field.Pos(), err)
			return
		}
		if !wrapped {
			typ = s.typeString(field.Type)
		}
		for _, n := range names {
			ps := ParamSite{Name: n.Name, Type: typ, Qualifier: wq, Wrapped: wrapped}
			if d, ok := params[n.Name]; ok && n.Name != "_" {
				known[n.Name] = true
				qs, found := s.cfg.lookup(d.arg)
				switch {
				case wrapped:
					s.fail(d.pos, fmt.Errorf("odi:param on %s names parameter %s which is already Qualified", fd.Name.Name, n.Name))
				case !found:
					s.fail(d.pos, di.UnknownQualifierError{Name: d.arg, Site: fd.Name.Name + "(" + n.Name + ")"})
				case !qs.allows(di.TargetParameter):
					s.fail(d.pos, di.InvalidTargetError{Qualifier: d.arg, Target: di.TargetParameter, Site: fd.Name.Name + "(" + n.Name + ")"})
				default:
					ps.Qualifier = qs
				}
			}
			p.Params = append(p.Params, ps)
		}
	}
	for name, d := range params {
		if !known[name] {
			s.fail(d.pos, fmt.Errorf("odi:param names unknown parameter %s of %s", name, fd.Name.Name))
		}
	}

	s.useQualifier(p.Qualifier)
	for _, ps := range p.Params {
		s.useQualifier(ps.Qualifier)
	}
	s.spec.Providers = append(s.spec.Providers, p)
}

func (s *scanner) checkDuplicateProviders() {
	seen := map[string]string{}
	for _, p := range s.spec.Providers {
		key := p.Type
		if p.Qualifier != nil {
			key += "@" + p.Qualifier.Name
		}
		if prev, ok := seen[key]; ok {
			s.errs = multierr.Append(s.errs, fmt.Errorf("providers %s and %s both bind %s", prev, p.Func, key))
			continue
		}
		seen[key] = p.Func
	}
}

func fieldTypes(fl *ast.FieldList) []ast.Expr {
	if fl == nil {
		return nil
	}
	var out []ast.Expr
	for _, f := range fl.List {
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, f.Type)
		}
	}
	return out
}

func isErrorIdent(e ast.Expr) bool {
	id, ok := e.(*ast.Ident)
	return ok && id.Name == "error"
}

// typeString prints a type expression and records the imports it refers to.
func (s *scanner) typeString(e ast.Expr) string {
	ast.Inspect(e, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if id, ok := sel.X.(*ast.Ident); ok {
			if p, ok := s.fileImports[id.Name]; ok {
				s.use(id.Name, p, sel.Pos())
			}
		}
		return false
	})

	return printExpr(s.fset, e)
}

func printExpr(fset *token.FileSet, e ast.Expr) string {
	var buf bytes.Buffer
	_ = printer.Fprint(&buf, fset, e)
	return buf.String()
}

type directive struct {
	pos  token.Pos
	verb string
	arg  string
}

// qualifier returns the qualifier a directive names: the argument of
// odi:provide, the right side of odi:param, or the verb of a bare //odi:<name>.
func (d directive) qualifier() string {
	switch d.verb {
	case provideVerb:
		return d.arg
	case paramVerb:
		_, q, _ := strings.Cut(d.arg, "=")
		return q
	}
	return d.verb
}

// directives extracts //odi:<verb> [arg] lines from a doc comment.
func directives(doc *ast.CommentGroup) []directive {
	if doc == nil {
		return nil
	}
	var out []directive
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, directivePrefix) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(c.Text, directivePrefix))
		verb, arg, _ := strings.Cut(rest, " ")
		out = append(out, directive{pos: c.Pos(), verb: verb, arg: strings.TrimSpace(arg)})
	}
	return out
}
