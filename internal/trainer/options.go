package trainer

import (
	"io"

	"github.com/sirupsen/logrus"

	"eeg-forge/internal/metrics"
)

// Options configures a Trainer.
type Options struct {
	GeneratorLR     float64
	DiscriminatorLR float64
	WeightDecay     float64
	// GradientPenaltyWeight is λ in the discriminator loss.
	GradientPenaltyWeight float64
	// LatentDim of 0 is inferred from the generator's InChannels.
	LatentDim int
	Optimizer string // "adam" or "sgd"

	Accelerator string
	Devices     int

	// Metrics names optional sample metrics ("fid", "is") computed every
	// phase in addition to the losses.
	Metrics           []string
	MetricExtractor   metrics.FeatureExtractor
	MetricClassifier  metrics.Classifier
	MetricNumFeatures int
	ISSplits          int

	// Conditional threads batch labels through every network call.
	Conditional bool

	Seed     int64
	LogEvery int
	Logger   *logrus.Logger
	Sink     metrics.Sink
	// Out receives the human readable epoch summary lines.
	Out io.Writer
}

// DefaultOptions returns the reference hyperparameters.
func DefaultOptions() Options {
	return Options{
		GeneratorLR:           1e-4,
		DiscriminatorLR:       1e-4,
		GradientPenaltyWeight: 1.0,
		Optimizer:             "adam",
		Accelerator:           "cpu",
		Devices:               1,
		LogEvery:              50,
	}
}
