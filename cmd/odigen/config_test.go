package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/mccandless/odi/di"
)

func TestLoadConfig_Default(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultDIImport, cfg.DI)

	login, ok := cfg.lookup("login")
	require.True(t, ok)
	assert.Equal(t, "annotations.Login", login.goType())
	assert.True(t, login.allows(di.TargetField|di.TargetParameter|di.TargetMethod))
	assert.False(t, login.allows(di.TargetType))
	assert.False(t, login.allows(0))

	// the builtin entry agrees with the runtime declaration
	d, ok := di.Lookup("login")
	require.True(t, ok)
	assert.Equal(t, d.Targets, login.targets)
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()

	p := newPkg(t)
	file := p.write("odigen.yaml", `
di: example.com/fork/di
qualifiers:
  - name: replica
    type: Replica
    import: example.com/app/db/go-qualifiers
    targets: [field, method]
  - name: tenant
    type: Tenant
    import: example.com/app/tenant
    alias: tn
    targets: [parameter]
`)

	cfg, err := loadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "example.com/fork/di", cfg.DI)
	require.Len(t, cfg.Qualifiers, 3)

	replica, ok := cfg.lookup("replica")
	require.True(t, ok)
	assert.Equal(t, "qualifiers.Replica", replica.goType())
	assert.True(t, replica.allows(di.TargetMethod))
	assert.False(t, replica.allows(di.TargetParameter))

	tenant, ok := cfg.lookup("tenant")
	require.True(t, ok)
	assert.Equal(t, "tn.Tenant", tenant.goType())

	_, ok = cfg.lookup("missing")
	assert.False(t, ok)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	p := newPkg(t)

	_, err := loadConfig(p.out("absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to read configuration")

	unknown := p.write("unknown.yaml", "qualifiers:\n  - name: x\n    type: X\n    color: red\n    targets: [field]\n")
	_, err = loadConfig(unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to parse configuration")

	bad := p.write("bad.yaml", `
qualifiers:
  - name: login
    type: Other
    targets: [field]
  - type: NoName
    targets: [field]
  - name: empty
    type: Empty
  - name: weird
    type: Weird
    targets: [field, constructor]
`)
	_, err = loadConfig(bad)
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 4)
	assert.Equal(t, `qualifier "login" declared twice`, errs[0].Error())
	assert.Equal(t, "qualifier #2 must have name and type", errs[1].Error())
	assert.True(t, errors.Is(errs[2], di.ErrNoTargets))
	assert.Contains(t, errs[3].Error(), `unknown target "constructor"`)
}

func TestConfigDump(t *testing.T) {
	t.Parallel()

	data, err := defaultConfig().Dump()
	require.NoError(t, err)

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, defaultDIImport, back.DI)
	require.Len(t, back.Qualifiers, 1)
	assert.Equal(t, "login", back.Qualifiers[0].Name)
	assert.Equal(t, []string{"field", "parameter", "method"}, back.Qualifiers[0].Targets)
	assert.Contains(t, string(data), "- name: login\n")
}

func TestDefaultImportName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"github.com/mccandless/odi/annotations": "annotations",
		"github.com/urfave/cli/v3":              "cli",
		"gopkg.in/yaml.v3":                      "yaml",
		"github.com/go-chi/chi/v5":              "chi",
		"github.com/mattn/go-sqlite3":           "sqlite3",
		"github.com/some/multi-word":            "multiword",
		"net/http":                              "http",
		"fmt":                                   "fmt",
	}
	for in, want := range cases {
		assert.Equal(t, want, defaultImportName(in), in)
	}
}
