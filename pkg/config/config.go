// Package config loads subdiv settings from YAML. Every key is optional;
// missing keys keep their defaults.
//
//	diagnostics:
//	  mode: errors        # disabled | errors | profiling | full
//	  log_level: info     # debug | info | warn | error
//	engine:
//	  timeout: 5s
//	kernel:
//	  mesh_cells: 64
//	weld:
//	  tolerance: 0.0001
//	render:
//	  palette: ["#4A90D9", "#E67E22"]
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/chazu/subdiv/pkg/diagnostics"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// Config is the root configuration document.
type Config struct {
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Engine      EngineConfig      `yaml:"engine"`
	Kernel      KernelConfig      `yaml:"kernel"`
	Weld        WeldConfig        `yaml:"weld"`
	Render      RenderConfig      `yaml:"render"`
}

// DiagnosticsConfig selects what the diagnostics context records and the
// level at which the application logs.
type DiagnosticsConfig struct {
	Mode     string `yaml:"mode"`
	LogLevel string `yaml:"log_level"`
}

// EngineConfig bounds script evaluation.
type EngineConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// KernelConfig sets the solid meshing resolution.
type KernelConfig struct {
	MeshCells int `yaml:"mesh_cells"`
}

// WeldConfig sets the soup welding grid.
type WeldConfig struct {
	Tolerance float32 `yaml:"tolerance"`
}

// RenderConfig holds the colors assigned to meshes in order.
type RenderConfig struct {
	Palette []string `yaml:"palette"`
}

// DefaultPalette is the palette used when none is configured.
var DefaultPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Diagnostics: DiagnosticsConfig{Mode: "errors", LogLevel: "info"},
		Engine:      EngineConfig{Timeout: 5 * time.Second},
		Kernel:      KernelConfig{MeshCells: 64},
		Weld:        WeldConfig{Tolerance: 1e-4},
		Render:      RenderConfig{Palette: append([]string(nil), DefaultPalette...)},
	}
}

// Load reads the file at path over the defaults. A missing file yields the
// defaults; an empty path does too.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys
// are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate checks every field.
func (c Config) Validate() error {
	if _, err := diagnostics.ParseMode(c.Diagnostics.Mode); err != nil {
		return fmt.Errorf("%w: diagnostics.mode: %v", ErrInvalid, err)
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("%w: diagnostics.log_level: %v", ErrInvalid, err)
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("%w: engine.timeout must be positive, got %s", ErrInvalid, c.Engine.Timeout)
	}
	if c.Kernel.MeshCells < 8 {
		return fmt.Errorf("%w: kernel.mesh_cells must be at least 8, got %d", ErrInvalid, c.Kernel.MeshCells)
	}
	if !(c.Weld.Tolerance > 0) {
		return fmt.Errorf("%w: weld.tolerance must be positive, got %g", ErrInvalid, c.Weld.Tolerance)
	}
	if len(c.Render.Palette) == 0 {
		return fmt.Errorf("%w: render.palette is empty", ErrInvalid)
	}
	for i, col := range c.Render.Palette {
		if !hexColor.MatchString(col) {
			return fmt.Errorf("%w: render.palette[%d] %q is not #rrggbb", ErrInvalid, i, col)
		}
	}
	return nil
}

// DiagnosticsMode returns the parsed diagnostics mode. Call after Validate.
func (c Config) DiagnosticsMode() diagnostics.Mode {
	m, _ := diagnostics.ParseMode(c.Diagnostics.Mode)
	return m
}

// LogLevel parses diagnostics.log_level.
func (c Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.Diagnostics.LogLevel))
	return l, err
}

// Color returns the palette entry for the i-th mesh, cycling.
func (c Config) Color(i int) string {
	p := c.Render.Palette
	if len(p) == 0 {
		p = DefaultPalette
	}
	return p[i%len(p)]
}
