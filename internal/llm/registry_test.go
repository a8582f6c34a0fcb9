package llm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRegistry_EmptyPathYieldsDefaults(t *testing.T) {
	reg, err := LoadRegistry("")
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	for _, id := range []string{"primary-chat", "alternate-chat", "local-chat"} {
		if !reg.Known(id) {
			t.Errorf("expected default model %q to be known", id)
		}
	}
}

func TestLoadRegistry_MissingFileYieldsDefaults(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if !reg.Known("primary-chat") {
		t.Error("expected defaults to apply when the registry file is absent")
	}
}

func TestLoadRegistry_FileOverlaysAndAddsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	contents := `
models:
  - id: primary-chat
    provider: primary
    native_model: primary-chat-v2
    temperature: 0.2
  - id: custom-local
    provider: local
    native_model: custom-native
    temperature: 0.5
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write test registry file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}

	entry, err := reg.Lookup("primary-chat")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry.NativeModel != "primary-chat-v2" {
		t.Errorf("expected file entry to override default native model, got %q", entry.NativeModel)
	}

	if !reg.Known("custom-local") {
		t.Error("expected a new entry from the file to be added to the registry")
	}
	if !reg.Known("alternate-chat") {
		t.Error("expected un-overridden defaults to remain present")
	}
}

func TestRegistry_LookupUnknownModelFails(t *testing.T) {
	reg, err := LoadRegistry("")
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if _, err := reg.Lookup("does-not-exist"); err == nil {
		t.Fatal("expected lookup of an unregistered model id to fail")
	}
}
