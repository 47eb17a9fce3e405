package model

import (
	"errors"
	"fmt"
	"math/rand"

	"eeg-forge/internal/autograd"
)

const defaultSlope = 0.2

// GeneratorConfig sizes an MLPGenerator.
type GeneratorConfig struct {
	LatentDim  int
	HiddenDim  int
	OutShape   []int // per-sample shape, e.g. (channels, timepoints)
	NumClasses int   // > 0 conditions on one-hot labels
	Slope      float64
	Seed       int64
}

// MLPGenerator maps latent vectors to EEG samples bounded by tanh.
type MLPGenerator struct {
	cfg    GeneratorConfig
	layers []*Linear
}

// NewMLPGenerator builds latent[+one-hot] -> hidden -> hidden -> sample.
func NewMLPGenerator(cfg GeneratorConfig) (*MLPGenerator, error) {
	if cfg.LatentDim <= 0 {
		return nil, fmt.Errorf("generator: latent dim must be > 0 (got %d)", cfg.LatentDim)
	}
	if cfg.HiddenDim <= 0 {
		return nil, fmt.Errorf("generator: hidden dim must be > 0 (got %d)", cfg.HiddenDim)
	}
	if err := validateSampleShape(cfg.OutShape); err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	if cfg.NumClasses < 0 {
		return nil, fmt.Errorf("generator: num classes must be >= 0 (got %d)", cfg.NumClasses)
	}
	if cfg.Slope == 0 {
		cfg.Slope = defaultSlope
	}
	cfg.OutShape = append([]int(nil), cfg.OutShape...)
	rng := rand.New(rand.NewSource(cfg.Seed))
	in := cfg.LatentDim + cfg.NumClasses
	return &MLPGenerator{
		cfg: cfg,
		layers: []*Linear{
			NewLinear(in, cfg.HiddenDim, rng),
			NewLinear(cfg.HiddenDim, cfg.HiddenDim, rng),
			NewLinear(cfg.HiddenDim, product(cfg.OutShape), rng),
		},
	}, nil
}

// InChannels reports the latent width the generator expects.
func (g *MLPGenerator) InChannels() int {
	return g.cfg.LatentDim
}

// Forward generates one sample per latent row.
func (g *MLPGenerator) Forward(latent *autograd.Tensor, labels []int) (*autograd.Tensor, error) {
	shape := latent.Shape()
	if len(shape) != 2 || shape[1] != g.cfg.LatentDim {
		return nil, fmt.Errorf("%w: generator expects latent (B, %d), got %v", autograd.ErrShapeMismatch, g.cfg.LatentDim, shape)
	}
	h, err := condition(latent, labels, g.cfg.NumClasses)
	if err != nil {
		return nil, err
	}
	if h, err = runStack(g.layers, h, g.cfg.Slope); err != nil {
		return nil, err
	}
	out := append([]int{shape[0]}, g.cfg.OutShape...)
	return autograd.Reshape(autograd.Tanh(h), out...), nil
}

// Parameters returns every layer's weights.
func (g *MLPGenerator) Parameters() []*autograd.Tensor {
	return collect(g.layers)
}

// DiscriminatorConfig sizes an MLPDiscriminator.
type DiscriminatorConfig struct {
	InShape    []int
	HiddenDim  int
	NumClasses int
	Slope      float64
	Seed       int64
}

// MLPDiscriminator scores flattened EEG samples with a raw linear output.
type MLPDiscriminator struct {
	cfg    DiscriminatorConfig
	layers []*Linear
}

// NewMLPDiscriminator builds sample[+one-hot] -> hidden -> hidden -> score.
func NewMLPDiscriminator(cfg DiscriminatorConfig) (*MLPDiscriminator, error) {
	if err := validateSampleShape(cfg.InShape); err != nil {
		return nil, fmt.Errorf("discriminator: %w", err)
	}
	if cfg.HiddenDim <= 0 {
		return nil, fmt.Errorf("discriminator: hidden dim must be > 0 (got %d)", cfg.HiddenDim)
	}
	if cfg.NumClasses < 0 {
		return nil, fmt.Errorf("discriminator: num classes must be >= 0 (got %d)", cfg.NumClasses)
	}
	if cfg.Slope == 0 {
		cfg.Slope = defaultSlope
	}
	cfg.InShape = append([]int(nil), cfg.InShape...)
	rng := rand.New(rand.NewSource(cfg.Seed))
	in := product(cfg.InShape) + cfg.NumClasses
	return &MLPDiscriminator{
		cfg: cfg,
		layers: []*Linear{
			NewLinear(in, cfg.HiddenDim, rng),
			NewLinear(cfg.HiddenDim, cfg.HiddenDim, rng),
			NewLinear(cfg.HiddenDim, 1, rng),
		},
	}, nil
}

// Forward returns one score per example, shape (B).
func (d *MLPDiscriminator) Forward(x *autograd.Tensor, labels []int) (*autograd.Tensor, error) {
	shape := x.Shape()
	if len(shape) != len(d.cfg.InShape)+1 || product(shape[1:]) != product(d.cfg.InShape) {
		return nil, fmt.Errorf("%w: discriminator expects (B, %v), got %v", autograd.ErrShapeMismatch, d.cfg.InShape, shape)
	}
	h, err := condition(autograd.Flatten(x), labels, d.cfg.NumClasses)
	if err != nil {
		return nil, err
	}
	if h, err = runStack(d.layers, h, d.cfg.Slope); err != nil {
		return nil, err
	}
	return autograd.Reshape(h, shape[0]), nil
}

// Parameters returns every layer's weights.
func (d *MLPDiscriminator) Parameters() []*autograd.Tensor {
	return collect(d.layers)
}

// runStack applies the layers with LeakyReLU between them; the last layer's
// output is returned without activation.
func runStack(layers []*Linear, h *autograd.Tensor, slope float64) (*autograd.Tensor, error) {
	for i, l := range layers {
		out, err := l.Forward(h)
		if err != nil {
			return nil, err
		}
		h = out
		if i < len(layers)-1 {
			h = autograd.LeakyReLU(h, slope)
		}
	}
	return h, nil
}

func condition(x *autograd.Tensor, labels []int, classes int) (*autograd.Tensor, error) {
	if classes == 0 {
		return x, nil
	}
	onehot, err := OneHot(labels, classes, x.Rows())
	if err != nil {
		return nil, err
	}
	return autograd.ConcatCols(x, onehot), nil
}

func collect(layers []*Linear) []*autograd.Tensor {
	var params []*autograd.Tensor
	for _, l := range layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

func validateSampleShape(shape []int) error {
	if len(shape) == 0 {
		return errors.New("sample shape must be set")
	}
	for i, d := range shape {
		if d <= 0 {
			return fmt.Errorf("sample dimension %d must be > 0 (got %d)", i, d)
		}
	}
	return nil
}
