package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("NOTICE", "12h")
	d, err := Duration("NOTICE", time.Hour)
	if err != nil || d != 12*time.Hour {
		t.Fatalf("expected 12h, got %s (err=%v)", d, err)
	}

	t.Setenv("NOTICE", "90")
	d, err = Duration("NOTICE", time.Hour)
	if err != nil || d != 90*time.Second {
		t.Fatalf("expected 90s, got %s (err=%v)", d, err)
	}

	t.Setenv("NOTICE", "soon")
	if _, err := Duration("NOTICE", time.Hour); err == nil {
		t.Fatal("expected error for malformed duration")
	}

	t.Setenv("NOTICE", "")
	d, err = Duration("NOTICE", time.Hour)
	if err != nil || d != time.Hour {
		t.Fatalf("expected fallback, got %s (err=%v)", d, err)
	}
}

func TestPortAndList(t *testing.T) {
	t.Setenv("PORT", "99999")
	if _, err := Port("PORT", "8080"); err == nil {
		t.Fatal("expected invalid port error")
	}
	t.Setenv("GRPC_PORT", "")
	p, err := OptionalPort("GRPC_PORT")
	if err != nil || p != "" {
		t.Fatalf("expected disabled optional port, got %q (err=%v)", p, err)
	}

	t.Setenv("ORIGINS", " https://a.example , ,https://b.example")
	got := List("ORIGINS", "")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CLINIC_CFG_A=from-file\nCLINIC_CFG_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CLINIC_CFG_A", "from-env")
	os.Unsetenv("CLINIC_CFG_B")
	t.Cleanup(func() { os.Unsetenv("CLINIC_CFG_B") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := String("CLINIC_CFG_A", ""); got != "from-env" {
		t.Fatalf("expected env to win, got %q", got)
	}
	if got := String("CLINIC_CFG_B", ""); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}
