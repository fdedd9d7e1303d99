package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if c.Lockout.Login.Threshold != 5 || c.Lockout.Login.Duration != "15m" {
		t.Fatalf("unexpected login lockout defaults: %+v", c.Lockout.Login)
	}
	if c.Lockout.MFA.Threshold != 3 || c.Lockout.MFA.Duration != "5m" {
		t.Fatalf("unexpected mfa lockout defaults: %+v", c.Lockout.MFA)
	}
	if c.MFA.ChallengeTTL != "5m" || *c.MFA.TOTPWindow != 2 {
		t.Fatalf("unexpected mfa defaults: ttl=%s window=%d", c.MFA.ChallengeTTL, *c.MFA.TOTPWindow)
	}
	if c.MFA.Backup.SetSize != 10 || c.MFA.Backup.LowThreshold != 2 {
		t.Fatalf("unexpected backup defaults: %+v", c.MFA.Backup)
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
lockout:
  login:
    threshold: 3
    duration: 5m
jwt:
  access_ttl: 30m
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	os.Setenv("AUTHCORE_JWT_SECRET", "env-secret-wins")
	defer os.Unsetenv("AUTHCORE_JWT_SECRET")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if c.Lockout.Login.Threshold != 3 || c.Lockout.Login.Duration != "5m" {
		t.Fatalf("yaml override not applied: %+v", c.Lockout.Login)
	}
	if c.JWT.AccessTTL != "30m" {
		t.Fatalf("yaml access_ttl not applied: %s", c.JWT.AccessTTL)
	}
	if c.JWT.Secret != "env-secret-wins" {
		t.Fatalf("env override not applied: %s", c.JWT.Secret)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("session:\n  ttl: nope\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestLoad_ProdRequiresSecret(t *testing.T) {
	os.Setenv("AUTHCORE_ENV", "prod")
	defer os.Unsetenv("AUTHCORE_ENV")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error: prod without jwt secret")
	}
}
