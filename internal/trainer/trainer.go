// Package trainer coordinates adversarial training of a Wasserstein
// generator/discriminator pair with gradient penalty.
//
// A Trainer owns one optimizer per network, the per-phase metric
// accumulators and the epoch lifecycle. Fit and Evaluate drive it over
// dataset loaders; TrainStep, EvalStep and OnEpochEnd are exported for
// callers that run their own loop.
package trainer

import (
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/sirupsen/logrus"

	"eeg-forge/internal/autograd"
	"eeg-forge/internal/device"
	"eeg-forge/internal/metrics"
	"eeg-forge/internal/model"
	"eeg-forge/internal/optim"
)

// Trainer trains a generator against a discriminator.
type Trainer struct {
	gen  model.Generator
	disc model.Discriminator

	genOpt  optim.Optimizer
	discOpt optim.Optimizer

	opts      Options
	latentDim int
	device    device.Device
	rng       *rand.Rand
	phases    [3]*metrics.PhaseSet
	log       *logrus.Logger
	out       io.Writer
	sink      metrics.Sink
	step      int
}

// New validates opts and builds the optimizer pair and metric accumulators.
func New(gen model.Generator, disc model.Discriminator, opts Options) (*Trainer, error) {
	if gen == nil || disc == nil {
		return nil, fmt.Errorf("%w: generator and discriminator are required", ErrConfiguration)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Devices == 0 {
		opts.Devices = 1
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = 50
	}
	if opts.GradientPenaltyWeight < 0 {
		return nil, fmt.Errorf("%w: gradient penalty weight must be >= 0 (got %g)", ErrConfiguration, opts.GradientPenaltyWeight)
	}

	t := &Trainer{
		gen:  gen,
		disc: disc,
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		log:  opts.Logger,
		out:  opts.Out,
		sink: opts.Sink,
	}

	var err error
	if t.latentDim, err = resolveLatentDim(gen, opts.LatentDim, t.log); err != nil {
		return nil, err
	}
	if t.device, err = device.Resolve(opts.Accelerator, opts.Devices); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if t.genOpt, err = newOptimizer(opts.Optimizer, gen.Parameters(), opts.GeneratorLR, opts.WeightDecay); err != nil {
		return nil, fmt.Errorf("%w: generator optimizer: %w", ErrConfiguration, err)
	}
	if t.discOpt, err = newOptimizer(opts.Optimizer, disc.Parameters(), opts.DiscriminatorLR, opts.WeightDecay); err != nil {
		return nil, fmt.Errorf("%w: discriminator optimizer: %w", ErrConfiguration, err)
	}

	registry := metrics.NewRegistry()
	deps := metrics.Deps{
		Extractor:   opts.MetricExtractor,
		Classifier:  opts.MetricClassifier,
		NumFeatures: opts.MetricNumFeatures,
		Splits:      opts.ISSplits,
		Logger:      t.log,
	}
	for _, phase := range []metrics.Phase{metrics.Train, metrics.Val, metrics.Test} {
		built, err := registry.Build(opts.Metrics, deps)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		t.phases[phase] = metrics.NewPhaseSet(phase, built)
		// the width warning only needs to appear once
		deps.Logger = nil
		if opts.MetricNumFeatures == 0 && len(built) > 0 {
			deps.NumFeatures = inferredWidth(built)
		}
	}

	t.log.WithFields(logrus.Fields{
		"latent_dim": t.latentDim,
		"device":     t.device.String(),
		"optimizer":  optimizerName(opts.Optimizer),
		"metrics":    opts.Metrics,
		"penalty":    opts.GradientPenaltyWeight,
	}).Info("trainer ready")
	return t, nil
}

// LatentDim returns the resolved latent width.
func (t *Trainer) LatentDim() int { return t.latentDim }

// Device returns the resolved compute device.
func (t *Trainer) Device() device.Device { return t.device }

// Step returns the number of completed training steps.
func (t *Trainer) Step() int { return t.step }

// Sample runs the generator alone with gradient recording disabled.
func (t *Trainer) Sample(latent *autograd.Tensor, labels []int) (*autograd.Tensor, error) {
	shape := latent.Shape()
	if len(shape) != 2 || shape[1] != t.latentDim {
		return nil, fmt.Errorf("%w: latent must be (B, %d), got %v", autograd.ErrShapeMismatch, t.latentDim, shape)
	}
	if !t.opts.Conditional {
		labels = nil
	} else if len(labels) != shape[0] {
		return nil, fmt.Errorf("%w: %d labels for %d latent rows", autograd.ErrShapeMismatch, len(labels), shape[0])
	}
	var out *autograd.Tensor
	err := autograd.WithGrad(false, func() error {
		x, err := t.gen.Forward(latent, labels)
		if err != nil {
			return err
		}
		out = x.Detach()
		return nil
	})
	return out, err
}

// Predict generates one sample per example of batch from fresh latent
// noise, reusing the batch labels when conditioned.
func (t *Trainer) Predict(batch model.Batch) (*autograd.Tensor, error) {
	labels, err := t.labelsFor(batch)
	if err != nil {
		return nil, err
	}
	return t.Sample(autograd.RandN(t.rng, batch.Size(), t.latentDim), labels)
}

func resolveLatentDim(gen model.Generator, configured int, log *logrus.Logger) (int, error) {
	if configured > 0 {
		return configured, nil
	}
	if configured < 0 {
		return 0, fmt.Errorf("%w: latent dim must be >= 0 (got %d)", ErrConfiguration, configured)
	}
	sizer, ok := gen.(model.LatentSizer)
	if !ok || sizer.InChannels() <= 0 {
		return 0, fmt.Errorf("%w: latent dim not set and the generator does not declare its input channels", ErrConfiguration)
	}
	log.WithField("latent_dim", sizer.InChannels()).Warn("latent dim not set, using the generator's input channels")
	return sizer.InChannels(), nil
}

func newOptimizer(name string, params []*autograd.Tensor, lr, weightDecay float64) (optim.Optimizer, error) {
	switch optimizerName(name) {
	case "adam":
		cfg := optim.DefaultAdamConfig(lr)
		cfg.WeightDecay = weightDecay
		return optim.NewAdam(params, cfg)
	case "sgd":
		return optim.NewSGD(params, lr, weightDecay)
	}
	return nil, fmt.Errorf("unknown optimizer %q", name)
}

func optimizerName(name string) string {
	if name == "" {
		return "adam"
	}
	return name
}

// inferredWidth pins the FID width resolved for the first phase so later
// phases build silently.
func inferredWidth(built []metrics.NamedMetric) int {
	for _, m := range built {
		if fid, ok := m.Metric.(*metrics.FID); ok {
			return fid.Width()
		}
	}
	return 0
}
