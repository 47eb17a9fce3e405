package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	TrainRoots []string `yaml:"train_roots"`
	ValRoots   []string `yaml:"val_roots"`
	TestRoots  []string `yaml:"test_roots"`
	BatchSize  int      `yaml:"batch_size"`
	NumWorkers int      `yaml:"num_workers"`
	Seed       int64    `yaml:"seed"`
	LogEvery   int      `yaml:"log_every"`
	MaxEpochs  int      `yaml:"max_epochs"`

	GeneratorLR     float64 `yaml:"generator_lr"`
	DiscriminatorLR float64 `yaml:"discriminator_lr"`
	WeightDecay     float64 `yaml:"weight_decay"`
	// Nil means the default weight; an explicit 0 disables the penalty.
	WeightGradientPenalty *float64 `yaml:"weight_gradient_penalty"`
	Optimizer             string   `yaml:"optimizer"`

	LatentDim   int  `yaml:"latent_dim"`
	HiddenDim   int  `yaml:"hidden_dim"`
	NumClasses  int  `yaml:"num_classes"`
	Conditional bool `yaml:"conditional"`

	Accelerator string   `yaml:"accelerator"`
	Devices     int      `yaml:"devices"`
	Metrics     []string `yaml:"metrics"`
	MetricsDB   string   `yaml:"metrics_db"`
	LogLevel    string   `yaml:"log_level"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	TrainRoots  []string
	ValRoots    []string
	TestRoots   []string
	BatchSize   int
	NumWorkers  int
	Seed        int64
	LogEvery    int
	MaxEpochs   int
	Accelerator string
	MetricsDB   string
	LogLevel    string
}

// Load reads and validates a Config from YAML.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML without validating. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if len(o.TrainRoots) > 0 {
		c.TrainRoots = o.TrainRoots
	}
	if len(o.ValRoots) > 0 {
		c.ValRoots = o.ValRoots
	}
	if len(o.TestRoots) > 0 {
		c.TestRoots = o.TestRoots
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.MaxEpochs > 0 {
		c.MaxEpochs = o.MaxEpochs
	}
	if o.Accelerator != "" {
		c.Accelerator = o.Accelerator
	}
	if o.MetricsDB != "" {
		c.MetricsDB = o.MetricsDB
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

// PenaltyWeight returns the configured gradient penalty weight.
func (c *Config) PenaltyWeight() float64 {
	if c.WeightGradientPenalty == nil {
		return 1.0
	}
	return *c.WeightGradientPenalty
}

// Validate verifies the config is runnable and fills defaults.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(c.TrainRoots) == 0 {
		return errors.New("at least one training root must be set")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be > 0 (got %d)", c.NumWorkers)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	if c.MaxEpochs <= 0 {
		c.MaxEpochs = 300
	}
	if c.GeneratorLR == 0 {
		c.GeneratorLR = 1e-4
	}
	if c.DiscriminatorLR == 0 {
		c.DiscriminatorLR = 1e-4
	}
	if c.GeneratorLR < 0 || c.DiscriminatorLR < 0 {
		return fmt.Errorf("learning rates must be > 0 (got %g, %g)", c.GeneratorLR, c.DiscriminatorLR)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("weight_decay must be >= 0 (got %g)", c.WeightDecay)
	}
	if c.PenaltyWeight() < 0 {
		return fmt.Errorf("weight_gradient_penalty must be >= 0 (got %g)", c.PenaltyWeight())
	}
	switch c.Optimizer {
	case "":
		c.Optimizer = "adam"
	case "adam", "sgd":
	default:
		return fmt.Errorf("optimizer must be adam or sgd (got %q)", c.Optimizer)
	}
	if c.LatentDim <= 0 {
		c.LatentDim = 128
	}
	if c.HiddenDim <= 0 {
		c.HiddenDim = 256
	}
	if c.NumClasses < 0 {
		return fmt.Errorf("num_classes must be >= 0 (got %d)", c.NumClasses)
	}
	if c.Conditional && c.NumClasses == 0 {
		return errors.New("conditional training needs num_classes > 0")
	}
	if c.Accelerator == "" {
		c.Accelerator = "cpu"
	}
	if c.Devices == 0 {
		c.Devices = 1
	}
	for _, m := range c.Metrics {
		if (m == "fid" || m == "is") && c.NumClasses == 0 {
			return fmt.Errorf("metric %s needs num_classes > 0 to train its classifier", m)
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// SplitList parses a comma separated flag value.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
