package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fizzlang/fizz/internal/vm"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("vm:\n  max_frames: 128\n  gc_threshold: 64\nserver:\n  eval_timeout: 2s\n"), "fizz.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VM.MaxFrames != 128 || cfg.VM.GCThreshold != 64 {
		t.Errorf("vm overrides lost: %+v", cfg.VM)
	}
	if cfg.VM.MaxStack != vm.DefaultMaxStack {
		t.Errorf("untouched field should keep default, got %d", cfg.VM.MaxStack)
	}
	if cfg.Server.EvalTimeout != 2*time.Second {
		t.Errorf("eval_timeout = %v", cfg.Server.EvalTimeout)
	}
}

func TestParseRejectsNegative(t *testing.T) {
	if _, err := Parse([]byte("vm:\n  max_frames: -1\n"), "fizz.yaml"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestParseRejectsMalformedYaml(t *testing.T) {
	if _, err := Parse([]byte(": : :"), "fizz.yaml"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(root, "fizz.yaml")
	if err := os.WriteFile(cfgPath, []byte("vm:\n  max_frames: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	found, err := Find(nested)
	if err != nil {
		t.Fatal(err)
	}
	if found != cfgPath {
		t.Errorf("Find = %q, want %q", found, cfgPath)
	}
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	cfg, err := LoadOrDefault(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VM.MaxFrames != vm.DefaultMaxFrames {
		t.Errorf("expected defaults, got %+v", cfg.VM)
	}
}

func TestOptionsConversion(t *testing.T) {
	cfg := Default()
	cfg.VM.GCThreshold = 99
	opts := cfg.Options()
	if opts.GCThreshold != 99 || opts.MaxFrames != vm.DefaultMaxFrames {
		t.Errorf("unexpected options %+v", opts)
	}
}
