package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.Project.Output.Filename != DefaultOutputFilename {
		t.Fatalf("expected default output %q, got %q", DefaultOutputFilename, c.Project.Output.Filename)
	}
	if c.Indent() != DefaultIndent {
		t.Fatalf("expected indent %d, got %d", DefaultIndent, c.Indent())
	}
	if c.NearestNaming() {
		t.Fatalf("expected placeholder naming by default")
	}
	if c.OutputPath() != filepath.Join(c.StateRoot, "out", DefaultOutputFilename) {
		t.Fatalf("unexpected output path %s", c.OutputPath())
	}
}

func TestInitProjectDirWritesParsableDefaults(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitProjectDir(projectDir); err != nil {
		t.Fatalf("InitProjectDir: %v", err)
	}
	for _, dir := range []string{"logs", "state", "out"} {
		if info, err := os.Stat(filepath.Join(projectDir, ProjectDirName, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory: %v", dir, err)
		}
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.Project.Server.Port != 8766 || c.Project.Server.Enabled == nil || !*c.Project.Server.Enabled {
		t.Fatalf("unexpected server section: %+v", c.Project.Server)
	}
	if c.Project.Document.Plugin != DefaultPlugin || c.Project.Maps.BaseName != DefaultBaseMapName {
		t.Fatalf("unexpected document defaults: %+v", c.Project)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	root := filepath.Join(projectDir, ProjectDirName)
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
output:
  filename: hero.palettes
  indent: 4
colors:
  naming: Nearest
maps:
  base_name: Identity
decode:
  workers: 2
`)
	if err := os.WriteFile(filepath.Join(root, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Output.Filename != "hero.palettes" || c.Indent() != 4 {
		t.Fatalf("unexpected output section: %+v", c.Project.Output)
	}
	if !c.NearestNaming() {
		t.Fatalf("expected nearest naming after normalization")
	}
	if c.Project.Maps.BaseName != "Identity" || c.Project.Decode.Workers != 2 {
		t.Fatalf("unexpected config: %+v", c.Project)
	}
	if c.Project.Colors.DefaultName != DefaultColorName {
		t.Fatalf("missing fields should keep defaults, got %q", c.Project.Colors.DefaultName)
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	projectDir := t.TempDir()
	root := filepath.Join(projectDir, ProjectDirName)
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
colors:
  naming: rainbow
`)
	if err := os.WriteFile(filepath.Join(root, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(projectDir); err == nil || !strings.HasPrefix(err.Error(), "config: ") {
		t.Fatalf("expected validation error but got %v", err)
	}
}

func TestSetOutputFilenamePersists(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitProjectDir(projectDir); err != nil {
		t.Fatalf("InitProjectDir: %v", err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if err := c.SetOutputFilename("  villain.palettes "); err != nil {
		t.Fatalf("SetOutputFilename: %v", err)
	}
	reloaded, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Project.Output.Filename != "villain.palettes" {
		t.Fatalf("filename not persisted: %q", reloaded.Project.Output.Filename)
	}
	if err := c.SetOutputFilename(" "); err == nil {
		t.Fatalf("expected error for empty filename")
	}
}
