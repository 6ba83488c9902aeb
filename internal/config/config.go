// Package config loads the optional fizz.yaml runtime configuration.
//
// The file tunes the virtual machine and the serve mode; every field is
// optional and missing fields keep their defaults, so a project without a
// fizz.yaml runs with stock settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fizzlang/fizz/internal/vm"
)

// Config represents the top-level fizz.yaml configuration.
type Config struct {
	VM     VMConfig     `yaml:"vm"`
	Server ServerConfig `yaml:"server"`
}

// VMConfig tunes the interpreter.
type VMConfig struct {
	// MaxFrames caps call depth; non-tail recursion past it fails with a
	// stack overflow error instead of exhausting Go's stack.
	MaxFrames int `yaml:"max_frames,omitempty"`

	// MaxStack caps the operand stack, in slots.
	MaxStack int `yaml:"max_stack,omitempty"`

	// GCThreshold is the allocation count between collections.
	GCThreshold int `yaml:"gc_threshold,omitempty"`
}

// ServerConfig tunes the JSON-RPC serve mode.
type ServerConfig struct {
	// EvalTimeout bounds a single eval request (e.g. "5s", "500ms").
	EvalTimeout time.Duration `yaml:"-"`
}

// UnmarshalYAML decodes eval_timeout from a duration string, which yaml.v3
// cannot do for time.Duration on its own.
func (s *ServerConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		EvalTimeout string `yaml:"eval_timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.EvalTimeout != "" {
		d, err := time.ParseDuration(raw.EvalTimeout)
		if err != nil {
			return fmt.Errorf("eval_timeout: %w", err)
		}
		s.EvalTimeout = d
	}
	return nil
}

// DefaultEvalTimeout bounds one serve-mode evaluation.
const DefaultEvalTimeout = 5 * time.Second

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		VM: VMConfig{
			MaxFrames:   vm.DefaultMaxFrames,
			MaxStack:    vm.DefaultMaxStack,
			GCThreshold: vm.DefaultGCThreshold,
		},
		Server: ServerConfig{EvalTimeout: DefaultEvalTimeout},
	}
}

// Load reads and parses a fizz.yaml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses fizz.yaml content from bytes. The path argument is used
// only for error messages.
func Parse(data []byte, path string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find searches for fizz.yaml starting from dir and walking up parent
// directories. It returns an empty path (and nil error) when no config
// exists, which callers treat as "use defaults".
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range []string{"fizz.yaml", "fizz.yml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadOrDefault finds and loads the nearest config, falling back to the
// defaults when none exists.
func LoadOrDefault(dir string) (*Config, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Options converts the VM section into interpreter options.
func (c *Config) Options() vm.Options {
	return vm.Options{
		MaxFrames:   c.VM.MaxFrames,
		MaxStack:    c.VM.MaxStack,
		GCThreshold: c.VM.GCThreshold,
	}
}

func (c *Config) validate(path string) error {
	if c.VM.MaxFrames < 0 {
		return fmt.Errorf("%s: vm.max_frames must not be negative", path)
	}
	if c.VM.MaxStack < 0 {
		return fmt.Errorf("%s: vm.max_stack must not be negative", path)
	}
	if c.VM.GCThreshold < 0 {
		return fmt.Errorf("%s: vm.gc_threshold must not be negative", path)
	}
	if c.Server.EvalTimeout < 0 {
		return fmt.Errorf("%s: server.eval_timeout must not be negative", path)
	}
	return nil
}
