package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.VectorDim != 1024 {
		t.Errorf("VectorDim = %d", cfg.VectorDim)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.QACollection != "persona_qa" || cfg.MomentCollection != "persona_moments" {
		t.Errorf("collections = %q, %q", cfg.QACollection, cfg.MomentCollection)
	}
	if cfg.EmbedInterval.Milliseconds() != 150 {
		t.Errorf("EmbedInterval = %v", cfg.EmbedInterval)
	}
}

func TestPersonaPrompt_FromFile(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "persona.txt")
	if err := os.WriteFile(path, []byte("speak tersely"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PERSONA_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := cfg.PersonaPrompt()
	if err != nil {
		t.Fatalf("persona: %v", err)
	}
	if got != "speak tersely" {
		t.Fatalf("persona = %q", got)
	}
}

func TestPersonaPrompt_Default(t *testing.T) {
	cfg := Config{}
	got, err := cfg.PersonaPrompt()
	if err != nil || got == "" {
		t.Fatalf("default persona: %q, %v", got, err)
	}
}
