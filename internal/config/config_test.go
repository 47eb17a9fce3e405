package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `
train_roots: [/data/train]
val_roots:
  - /data/val
batch_size: 32
num_workers: 2
max_epochs: 5
weight_gradient_penalty: 0
metrics: [fid]
num_classes: 4
conditional: true
`

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GeneratorLR != 1e-4 || cfg.DiscriminatorLR != 1e-4 {
		t.Fatalf("expected default learning rates, got %g/%g", cfg.GeneratorLR, cfg.DiscriminatorLR)
	}
	if cfg.PenaltyWeight() != 0 {
		t.Fatalf("expected explicit zero penalty weight, got %g", cfg.PenaltyWeight())
	}
	if cfg.Optimizer != "adam" || cfg.Accelerator != "cpu" || cfg.Devices != 1 || cfg.LogEvery != 50 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.ValRoots) != 1 || cfg.ValRoots[0] != "/data/val" {
		t.Fatalf("expected val roots [/data/val], got %v", cfg.ValRoots)
	}
}

func TestPenaltyWeightDefaultsToOne(t *testing.T) {
	cfg, err := Parse(strings.NewReader("train_roots: [a]\nbatch_size: 1\nnum_workers: 1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.PenaltyWeight() != 1 {
		t.Fatalf("expected penalty weight 1, got %g", cfg.PenaltyWeight())
	}
}

func TestParseRejectsUnknownKey(t *testing.T) {
	if _, err := Parse(strings.NewReader("train_root_a: /x\n")); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]Config{
		"no roots":       {BatchSize: 1, NumWorkers: 1},
		"batch size":     {TrainRoots: []string{"a"}, NumWorkers: 1},
		"optimizer":      {TrainRoots: []string{"a"}, BatchSize: 1, NumWorkers: 1, Optimizer: "rmsprop"},
		"conditional":    {TrainRoots: []string{"a"}, BatchSize: 1, NumWorkers: 1, Conditional: true},
		"metric classes": {TrainRoots: []string{"a"}, BatchSize: 1, NumWorkers: 1, Metrics: []string{"is"}},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{TrainRoots: []string{"a"}, BatchSize: 8}
	cfg.ApplyOverrides(Overrides{TrainRoots: SplitList("b, c"), BatchSize: 16})
	if len(cfg.TrainRoots) != 2 || cfg.TrainRoots[1] != "c" || cfg.BatchSize != 16 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}
