package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileTakesPrecedence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	secret, err := Load(Source{Name: "api key", Value: "inline", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if secret != "from-file" {
		t.Fatalf("expected trimmed file content, got %q", secret)
	}
}

func TestLoadInlineValue(t *testing.T) {
	t.Parallel()

	secret, err := Load(Source{Name: "api key", Value: " inline "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if secret != "inline" {
		t.Fatalf("expected trimmed inline value, got %q", secret)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	if _, err := Load(Source{Name: "api key", File: path}); err == nil {
		t.Fatal("expected error for empty secret file")
	}
}

func TestLoadUnconfigured(t *testing.T) {
	t.Parallel()

	if _, err := Load(Source{Name: "api key"}); err == nil {
		t.Fatal("expected error when neither value nor file is set")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(Source{Name: "api key", File: filepath.Join(t.TempDir(), "absent")}); err == nil {
		t.Fatal("expected error for missing secret file")
	}
}
