package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPortRejectsOutOfRange(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "3001"); err == nil {
		t.Fatalf("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "3001")
	if err != nil || p != "3001" {
		t.Fatalf("expected fallback port, got %q %v", p, err)
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_DUR", "1500ms")
	t.Setenv("TEST_LIST", " a, ,b ")

	if n, err := Int("TEST_INT", 1); err != nil || n != 12 {
		t.Fatalf("int: %d %v", n, err)
	}
	if b, err := Bool("TEST_BOOL", true); err != nil || b {
		t.Fatalf("bool: %v %v", b, err)
	}
	if d, err := Duration("TEST_DUR", time.Second); err != nil || d != 1500*time.Millisecond {
		t.Fatalf("duration: %v %v", d, err)
	}
	if l := List("TEST_LIST", nil); len(l) != 2 || l[0] != "a" || l[1] != "b" {
		t.Fatalf("list: %v", l)
	}

	t.Setenv("TEST_INT", "twelve")
	if _, err := Int("TEST_INT", 1); err == nil {
		t.Fatalf("expected int parse error")
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DOTENV_A=from-file\nDOTENV_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DOTENV_A", "from-env")
	t.Setenv("DOTENV_B", "")
	os.Unsetenv("DOTENV_B")
	t.Cleanup(func() { os.Unsetenv("DOTENV_B") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("DOTENV_A"); got != "from-env" {
		t.Fatalf("existing value overwritten: %q", got)
	}
	if got := os.Getenv("DOTENV_B"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}
