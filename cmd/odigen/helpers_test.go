package main

import (
	"os"
	"path/filepath"
	"testing"
)

type pkgHarness struct {
	t   *testing.T
	dir string
}

func newPkg(t *testing.T) *pkgHarness {
	t.Helper()
	return &pkgHarness{t: t, dir: t.TempDir()}
}

func (p *pkgHarness) write(rel, content string) string {
	p.t.Helper()
	path := filepath.Join(p.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		p.t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

func (p *pkgHarness) out(rel string) string {
	return filepath.Join(p.dir, rel)
}

func (p *pkgHarness) read(rel string) string {
	p.t.Helper()
	b, err := os.ReadFile(filepath.Join(p.dir, rel))
	if err != nil {
		p.t.Fatalf("read %s: %v", rel, err)
	}
	return string(b)
}

// mustDefaultConfig returns the builtin configuration, validated.
func mustDefaultConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	return cfg
}

const appSource = `package app

import (
	"net/http"
)

type Credentials struct {
	User   string
	Secret string
}

type Config struct {
	User    string
	Service string
}

// Client talks to the upstream API as the logged-in user.
type Client struct {
	Creds   Credentials  ` + "`inject:\"login\"`" + `
	Service Credentials  ` + "`inject:\"\"`" + `
	HTTP    *http.Client ` + "`inject:\"\" json:\"-\"`" + `
	plain   int
}

// NewLoginCredentials builds the login binding.
//
//odi:provide login
func NewLoginCredentials(cfg Config) (Credentials, error) {
	return Credentials{User: cfg.User}, nil
}

//odi:provide
func NewServiceCredentials(cfg Config) Credentials {
	return Credentials{User: cfg.Service}
}

//odi:provide
//odi:param login=login
func NewAudit(login Credentials, svc Credentials) *Audit {
	return &Audit{User: login.User, As: svc.User}
}

type Audit struct {
	User string
	As   string
}
`
