package qrcard

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/smileynet/qrcard/internal/config"
)

func TestEmbeddedTemplates(t *testing.T) {
	// Verify that embedded templates FS contains the example config.
	data, err := fs.ReadFile(Templates, ExampleConfigName)
	if err != nil {
		t.Fatalf("reading embedded %s: %v", ExampleConfigName, err)
	}
	if len(data) == 0 {
		t.Errorf("embedded %s is empty", ExampleConfigName)
	}
}

func TestExampleConfig_LoadsAndValidates(t *testing.T) {
	// Given: the example config written to disk
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, ExampleConfig(), 0o644); err != nil {
		t.Fatal(err)
	}

	// When: loading it as a config layer
	cfg, err := config.LoadLayered(path)
	if err != nil {
		t.Fatalf("LoadLayered() error = %v", err)
	}

	// Then: every key is known and the result validates
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if cfg.Render.Scale != 10 || cfg.Render.ECC != "medium" {
		t.Errorf("render = %+v, want scale 10 and medium ECC", cfg.Render)
	}
	if cfg.Output.Dir != config.DefaultOutputDir {
		t.Errorf("output.dir = %q, want %q", cfg.Output.Dir, config.DefaultOutputDir)
	}
}

func TestExampleConfig_ReturnsCopyOfTemplate(t *testing.T) {
	data, err := fs.ReadFile(Templates, ExampleConfigName)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ExampleConfig(), data) {
		t.Error("ExampleConfig() should match the embedded template")
	}
}
