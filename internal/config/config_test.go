package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "knowtrace" {
		t.Errorf("expected Name=knowtrace, got %s", cfg.Name)
	}
	if cfg.Engine.ConceptWindow != 20 {
		t.Errorf("expected ConceptWindow=20, got %d", cfg.Engine.ConceptWindow)
	}
	if cfg.Engine.OverallWindow != 50 {
		t.Errorf("expected OverallWindow=50, got %d", cfg.Engine.OverallWindow)
	}
	if cfg.Stress.Window != 10 {
		t.Errorf("expected stress window=10, got %d", cfg.Stress.Window)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Engine.Workers = 8
	cfg.Transfer.CrossSubject = []CrossSubjectRule{
		{Source: "kinematics", Target: "dynamics", Strength: 0.8},
	}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Engine.Workers != 8 {
		t.Errorf("expected Workers=8, got %d", loaded.Engine.Workers)
	}
	if len(loaded.Transfer.CrossSubject) != 1 || loaded.Transfer.CrossSubject[0].Target != "dynamics" {
		t.Errorf("cross-subject table did not round-trip: %+v", loaded.Transfer.CrossSubject)
	}
}

func TestConfig_EnvOverride(t *testing.T) {
	t.Setenv("KNOWTRACE_CATALOG", "/tmp/other-catalog.yaml")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Catalog.Path != "/tmp/other-catalog.yaml" {
		t.Errorf("env override not applied, got %s", loaded.Catalog.Path)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"window too large", func(c *Config) { c.Engine.ConceptWindow = 30 }, true},
		{"overall too large", func(c *Config) { c.Engine.OverallWindow = 100 }, true},
		{"stress window too large", func(c *Config) { c.Stress.Window = 15 }, true},
		{"bad cross-subject strength", func(c *Config) {
			c.Transfer.CrossSubject = []CrossSubjectRule{{Source: "a", Target: "b", Strength: 1.5}}
		}, true},
		{"bad budget", func(c *Config) { c.Engine.UpdateBudget = "soon" }, true},
		{"valid budget", func(c *Config) { c.Engine.UpdateBudget = "250ms" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
