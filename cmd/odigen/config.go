package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/mccandless/odi/di"
)

const defaultDIImport = "github.com/mccandless/odi/di"

// QualifierSpec declares a qualifier the generator may reference.
type QualifierSpec struct {
	Name string `yaml:"name"`
	// Type is the Go type name of the marker, e.g. "Login".
	Type string `yaml:"type"`
	// Import is the marker's package path; empty means the generated package itself.
	Import string `yaml:"import,omitempty"`
	// Alias overrides the import name used in generated code.
	Alias   string   `yaml:"alias,omitempty"`
	Targets []string `yaml:"targets"`

	targets di.Target
}

// Config is the generator configuration (odigen.yaml).
type Config struct {
	// DI is the import path of the runtime package.
	DI         string          `yaml:"di,omitempty"`
	Qualifiers []QualifierSpec `yaml:"qualifiers"`
}

// defaultConfig knows about the qualifiers shipped with this module.
func defaultConfig() *Config {
	return &Config{
		DI: defaultDIImport,
		Qualifiers: []QualifierSpec{
			{
				Name:    "login",
				Type:    "Login",
				Import:  "github.com/mccandless/odi/annotations",
				Targets: []string{"field", "parameter", "method"},
			},
		},
	}
}

// loadConfig returns the default configuration, extended by the qualifiers
// declared in file when it is not empty.
func loadConfig(file string) (*Config, error) {
	cfg := defaultConfig()
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("unable to read configuration: %w", err)
		}
		var extra Config
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&extra); err != nil {
			return nil, fmt.Errorf("unable to parse configuration '%s': %w", file, err)
		}
		if strings.TrimSpace(extra.DI) != "" {
			cfg.DI = strings.TrimSpace(extra.DI)
		}
		cfg.Qualifiers = append(cfg.Qualifiers, extra.Qualifiers...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs error
	seen := map[string]bool{}
	for i := range c.Qualifiers {
		q := &c.Qualifiers[i]
		if q.Name == "" || q.Type == "" {
			errs = multierr.Append(errs, fmt.Errorf("qualifier #%d must have name and type", i))
			continue
		}
		if seen[q.Name] {
			errs = multierr.Append(errs, fmt.Errorf("qualifier %q declared twice", q.Name))
			continue
		}
		seen[q.Name] = true
		if len(q.Targets) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("qualifier %q: %w", q.Name, di.ErrNoTargets))
			continue
		}
		q.targets = 0
		for _, name := range q.Targets {
			t, err := di.ParseTarget(name)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("qualifier %q: %w", q.Name, err))
				continue
			}
			q.targets |= t
		}
	}
	return errs
}

// lookup returns the qualifier declared under name.
func (c *Config) lookup(name string) (*QualifierSpec, bool) {
	for i := range c.Qualifiers {
		if c.Qualifiers[i].Name == name {
			return &c.Qualifiers[i], true
		}
	}
	return nil, false
}

// allows mirrors di.Declaration.Allows.
func (q *QualifierSpec) allows(t di.Target) bool { return t != 0 && q.targets&t == t }

// importName returns the identifier used for q's package in generated code.
func (q *QualifierSpec) importName() string {
	if q.Alias != "" {
		return q.Alias
	}
	return defaultImportName(q.Import)
}

// goType returns the qualified Go type expression, e.g. "annotations.Login".
func (q *QualifierSpec) goType() string {
	if q.Import == "" {
		return q.Type
	}
	return q.importName() + "." + q.Type
}

// fingerprint writes everything of c that shapes generated code, so the
// Source-SHA256 header changes with the configuration too.
func (c *Config) fingerprint(w io.Writer) {
	fmt.Fprintf(w, "di=%s\n", c.DI)
	for _, q := range c.Qualifiers {
		fmt.Fprintf(w, "qualifier=%s type=%s import=%s alias=%s targets=%s\n", q.Name, q.Type, q.Import, q.Alias, q.targets)
	}
}

// Dump renders the configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// defaultImportName guesses the package name of an import path the way most
// Go code names packages: the last element, without a major version suffix.
func defaultImportName(importPath string) string {
	base := path.Base(importPath)
	if isMajorVersion(base) {
		base = path.Base(path.Dir(importPath))
	}
	if i := strings.Index(base, ".v"); i > 0 && isMajorVersion(base[i+1:]) {
		base = base[:i]
	}
	base = strings.TrimPrefix(base, "go-")
	return strings.ReplaceAll(base, "-", "")
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
