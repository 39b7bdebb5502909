package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyDirReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Identity.Name != "Pixel" {
		t.Fatalf("Identity.Name = %q, want %q", cfg.Identity.Name, "Pixel")
	}
	if len(cfg.Keywords.Hostile) == 0 {
		t.Fatalf("default hostile keywords missing")
	}
	if cfg.Templates.Fallback == "" {
		t.Fatalf("default fallback template missing")
	}
}

func TestLoadMissingFilesFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "identity.json", `{"name":"Nova","introduction":"Nova here"}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Identity.Name != "Nova" {
		t.Fatalf("Identity.Name = %q, want %q", cfg.Identity.Name, "Nova")
	}
	// Categories without a file keep the built-in values.
	if len(cfg.Keywords.Uninterested) == 0 {
		t.Fatalf("keywords not defaulted for missing file")
	}
	if len(cfg.Templates.HostileReplies) == 0 {
		t.Fatalf("templates not defaulted for missing file")
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tone.json", `{"language_style": [broken`)

	if _, err := Load(dir); err == nil {
		t.Fatalf("Load() accepted malformed tone.json")
	}
}

func TestLoadSparseFileIsPatched(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "templates.json", `{"fallback":"custom fallback"}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Templates.Fallback != "custom fallback" {
		t.Fatalf("Fallback = %q, want custom value", cfg.Templates.Fallback)
	}
	if len(cfg.Templates.HostileReplies) == 0 {
		t.Fatalf("hostile replies not backfilled")
	}
}

func TestLoadSparseKeywordsKeepCustomLists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keywords.json", `{"uninterested":[],"hostile":["bakwas bot"]}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Keywords.Hostile) != 1 || cfg.Keywords.Hostile[0] != "bakwas bot" {
		t.Fatalf("Hostile = %v, want the custom list", cfg.Keywords.Hostile)
	}
	if len(cfg.Keywords.Uninterested) == 0 {
		t.Fatalf("empty uninterested list not backfilled")
	}
	def := Default()
	if len(cfg.Keywords.Greeting) != len(def.Keywords.Greeting) {
		t.Fatalf("Greeting = %v, want defaults", cfg.Keywords.Greeting)
	}
}

func TestInteractionStyleFallbackChain(t *testing.T) {
	cfg := Default()
	cfg.Context.Group = "group style"
	cfg.Context.Private = "private style"
	cfg.Context.Default = "default style"

	if got := cfg.InteractionStyle(true); got != "group style" {
		t.Fatalf("InteractionStyle(true) = %q, want group style", got)
	}
	if got := cfg.InteractionStyle(false); got != "private style" {
		t.Fatalf("InteractionStyle(false) = %q, want private style", got)
	}

	cfg.Context.Group = ""
	if got := cfg.InteractionStyle(true); got != "private style" {
		t.Fatalf("InteractionStyle(true) without group = %q, want private style", got)
	}

	cfg.Context.Private = ""
	if got := cfg.InteractionStyle(false); got != "default style" {
		t.Fatalf("InteractionStyle(false) without private = %q, want default style", got)
	}
}

func TestLimitFor(t *testing.T) {
	cfg := Default()

	dry := cfg.LimitFor("dry_reply")
	if dry.MaxWords != 6 {
		t.Fatalf("dry_reply MaxWords = %d, want 6", dry.MaxWords)
	}

	unknown := cfg.LimitFor("no_such_category")
	if unknown != cfg.Limits.Default {
		t.Fatalf("LimitFor(unknown) = %+v, want default %+v", unknown, cfg.Limits.Default)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
