package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Constraints.RulesPath != "constraints.mg" {
		t.Errorf("expected RulesPath=constraints.mg, got %s", cfg.Constraints.RulesPath)
	}
	if cfg.Constraints.FactLimit != 500000 {
		t.Errorf("expected FactLimit=500000, got %d", cfg.Constraints.FactLimit)
	}
	if cfg.Logging.DebugMode {
		t.Error("expected debug mode off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("CONSTRAINTS_RULES_PATH", "")
	t.Setenv("CONSTRAINTS_FACT_LIMIT", "")
	t.Setenv("CONSTRAINTS_QUERY_TIMEOUT", "")
	t.Setenv("CONSTRAINTS_DEBUG", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, Dir, FileName)

	cfg := DefaultConfig()
	cfg.Constraints.RulesPath = "policy/rules.mg"
	cfg.Constraints.QueryTimeout = "5s"
	cfg.Logging.Categories = map[string]bool{"kernel": false}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Constraints.RulesPath != "policy/rules.mg" {
		t.Errorf("RulesPath = %s", loaded.Constraints.RulesPath)
	}
	if loaded.GetQueryTimeout() != 5*time.Second {
		t.Errorf("GetQueryTimeout = %v", loaded.GetQueryTimeout())
	}
	if loaded.Logging.IsCategoryEnabled("kernel") {
		t.Error("kernel category should be disabled (and debug mode is off)")
	}
}

func TestConfig_LoadMissingFile(t *testing.T) {
	t.Setenv("CONSTRAINTS_RULES_PATH", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Constraints.RulesPath != "constraints.mg" {
		t.Errorf("expected defaults, got %+v", cfg.Constraints)
	}
}

func TestConfig_LoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("constraints: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty rules path", func(c *Config) { c.Constraints.RulesPath = "" }},
		{"negative fact limit", func(c *Config) { c.Constraints.FactLimit = -1 }},
		{"bad timeout", func(c *Config) { c.Constraints.QueryTimeout = "soon" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Constraints.QueryTimeout = "garbage"
	if cfg.GetQueryTimeout() != 30*time.Second {
		t.Errorf("expected fallback timeout, got %v", cfg.GetQueryTimeout())
	}

	root := filepath.Join("/", "repo")
	if got := cfg.RulesFile(root); got != filepath.Join(root, "constraints.mg") {
		t.Errorf("RulesFile = %s", got)
	}
	cfg.Constraints.RulesPath = filepath.Join("/", "etc", "rules.mg")
	if got := cfg.RulesFile(root); got != cfg.Constraints.RulesPath {
		t.Errorf("absolute RulesFile = %s", got)
	}

	lc := LoggingConfig{Format: "json"}
	if !lc.JSONFormat() {
		t.Error("expected JSON format")
	}
}

func TestFindProjectRoot_PrefersConfigDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, Dir), 0755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "packages", "a", "src")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot failed: %v", err)
	}
	if got != root {
		t.Errorf("FindProjectRoot = %s, want %s", got, root)
	}
}

func TestFindProjectRoot_FallsBackToManifest(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "src")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot failed: %v", err)
	}
	if got != root {
		t.Errorf("FindProjectRoot = %s, want %s", got, root)
	}
}
