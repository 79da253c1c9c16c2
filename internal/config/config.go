// internal/config/config.go
//
// This package handles configuration and the .spritepal directory structure.
// Every project that runs spritepal gets a .spritepal/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".spritepal"

	DefaultOutputFilename = "costumes.palettes"
	DefaultIndent         = 2
	DefaultPlugin         = "com.fraymakers.FraymakersMetadata"
	DefaultPluginVersion  = "0.1.2"
	DefaultColorName      = "Untitled Palette Color"
	DefaultBaseMapName    = "Base"
	DefaultDecodeWorkers  = 4

	// NamingPlaceholder gives every new colour the default name.
	NamingPlaceholder = "placeholder"
	// NamingNearest names new colours after the closest named colour.
	NamingNearest = "nearest"
)

const defaultProjectConfigYAML = `# spritepal project configuration
version: 1

output:
  # Written under .spritepal/out/ unless an absolute path is given.
  filename: costumes.palettes
  indent: 2

document:
  plugin: com.fraymakers.FraymakersMetadata
  plugin_version: 0.1.2

colors:
  default_name: Untitled Palette Color
  # placeholder | nearest
  naming: placeholder

maps:
  base_name: Base

decode:
  workers: 4

server:
  enabled: true
  host: 127.0.0.1
  port: 8766
`

// OutputConfig controls where and how the palette document is written.
type OutputConfig struct {
	Filename string `yaml:"filename"`
	Indent   *int   `yaml:"indent,omitempty"`
}

// DocumentConfig names the metadata plugin recorded in new documents.
type DocumentConfig struct {
	Plugin        string `yaml:"plugin"`
	PluginVersion string `yaml:"plugin_version"`
}

// ColorsConfig controls naming of newly discovered colours.
type ColorsConfig struct {
	DefaultName string `yaml:"default_name"`
	Naming      string `yaml:"naming"`
}

// MapsConfig controls the reference map.
type MapsConfig struct {
	BaseName string `yaml:"base_name"`
}

// DecodeConfig bounds parallel image decoding.
type DecodeConfig struct {
	Workers int `yaml:"workers"`
}

// ServerConfig captures the HTTP service section.
type ServerConfig struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	Host         string `yaml:"host,omitempty"`
	Port         int    `yaml:"port,omitempty"`
	MaxBodyBytes int64  `yaml:"max_body_bytes,omitempty"`
}

// ProjectConfig models .spritepal/config.yaml.
type ProjectConfig struct {
	Version  int            `yaml:"version"`
	Output   OutputConfig   `yaml:"output"`
	Document DocumentConfig `yaml:"document"`
	Colors   ColorsConfig   `yaml:"colors"`
	Maps     MapsConfig     `yaml:"maps"`
	Decode   DecodeConfig   `yaml:"decode"`
	Server   ServerConfig   `yaml:"server"`
}

// Config holds the runtime configuration for one project.
type Config struct {
	// ProjectDir is the directory spritepal was run from
	ProjectDir string

	// StateRoot is ProjectDir/.spritepal
	StateRoot string

	Project ProjectConfig
}

// InitProjectDir creates the .spritepal directory structure in the given
// project directory and writes a default config.yaml when none exists.
//
// Structure created:
// .spritepal/
// ├── config.yaml
// ├── logs/    <- process log and session journal
// ├── state/   <- session manifest
// └── out/     <- rendered palette documents
func InitProjectDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
		filepath.Join(root, "out"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig creates a Config populated with the project's settings.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", projectDir, err)
	}
	cfg := &Config{
		ProjectDir: abs,
		StateRoot:  filepath.Join(abs, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateRoot, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.StateRoot, "state")
}

// OutDir returns the directory rendered documents are written to
func (c *Config) OutDir() string {
	return filepath.Join(c.StateRoot, "out")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateRoot, "config.yaml")
}

// OutputPath resolves the configured output filename.
func (c *Config) OutputPath() string {
	name := c.Project.Output.Filename
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutDir(), name)
}

// Indent returns the output indentation in spaces.
func (c *Config) Indent() int {
	if c.Project.Output.Indent == nil {
		return DefaultIndent
	}
	return *c.Project.Output.Indent
}

// NearestNaming reports whether new colours are named after the closest
// named colour.
func (c *Config) NearestNaming() bool {
	return c.Project.Colors.Naming == NamingNearest
}

// SetOutputFilename updates the output filename and persists the value back
// to .spritepal/config.yaml.
func (c *Config) SetOutputFilename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("config: output filename is required")
	}
	c.Project.Output.Filename = name
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Output.Filename) == "" {
		pc.Output.Filename = DefaultOutputFilename
	}
	if pc.Output.Indent == nil {
		indent := DefaultIndent
		pc.Output.Indent = &indent
	}
	if strings.TrimSpace(pc.Document.Plugin) == "" {
		pc.Document.Plugin = DefaultPlugin
	}
	if strings.TrimSpace(pc.Document.PluginVersion) == "" {
		pc.Document.PluginVersion = DefaultPluginVersion
	}
	if strings.TrimSpace(pc.Colors.DefaultName) == "" {
		pc.Colors.DefaultName = DefaultColorName
	}
	if strings.TrimSpace(pc.Colors.Naming) == "" {
		pc.Colors.Naming = NamingPlaceholder
	}
	if strings.TrimSpace(pc.Maps.BaseName) == "" {
		pc.Maps.BaseName = DefaultBaseMapName
	}
	if pc.Decode.Workers == 0 {
		pc.Decode.Workers = DefaultDecodeWorkers
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Output.Filename = strings.TrimSpace(pc.Output.Filename)
	pc.Document.Plugin = strings.TrimSpace(pc.Document.Plugin)
	pc.Document.PluginVersion = strings.TrimSpace(pc.Document.PluginVersion)
	pc.Colors.DefaultName = strings.TrimSpace(pc.Colors.DefaultName)
	pc.Colors.Naming = strings.ToLower(strings.TrimSpace(pc.Colors.Naming))
	pc.Maps.BaseName = strings.TrimSpace(pc.Maps.BaseName)
	pc.Server.Host = strings.TrimSpace(pc.Server.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if strings.HasSuffix(pc.Output.Filename, string(filepath.Separator)) {
		return fmt.Errorf("output.filename must name a file")
	}
	if pc.Output.Indent != nil && (*pc.Output.Indent < 0 || *pc.Output.Indent > 8) {
		return fmt.Errorf("output.indent must be between 0 and 8")
	}
	switch pc.Colors.Naming {
	case NamingPlaceholder, NamingNearest:
	default:
		return fmt.Errorf("colors.naming must be '%s' or '%s'", NamingPlaceholder, NamingNearest)
	}
	if pc.Decode.Workers < 1 {
		return fmt.Errorf("decode.workers must be >= 1")
	}
	if pc.Server.Port != 0 && (pc.Server.Port < 1 || pc.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if pc.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateRoot, 0o755); err != nil {
		return fmt.Errorf("config: ensure project dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
