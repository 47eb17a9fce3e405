// Package metrics accumulates per-phase training statistics and emits them
// at epoch boundaries.
//
// Every accumulator follows the same lifecycle: Update any number of times,
// Compute once, Reset. Compute on an accumulator with no updates since the
// last Reset returns ErrEmptyAccumulator.
package metrics

import (
	"errors"

	"eeg-forge/internal/autograd"
)

var (
	// ErrEmptyAccumulator is returned by Compute when nothing was recorded.
	ErrEmptyAccumulator = errors.New("metrics: compute on empty accumulator")
	// ErrInsufficientSamples is returned when a statistic needs more data.
	ErrInsufficientSamples = errors.New("metrics: insufficient samples")
	// ErrUnknownMetric reports a metric name with no registered factory.
	ErrUnknownMetric = errors.New("metrics: unknown metric")
	// ErrMissingDependency reports a metric built without its extractor or classifier.
	ErrMissingDependency = errors.New("metrics: missing dependency")
)

// SampleMetric accumulates statistics over real and generated samples.
type SampleMetric interface {
	Update(x *autograd.Tensor, real bool) error
	Compute() (float64, error)
	Reset()
}

// FeatureExtractor embeds samples into a (B, F) feature matrix.
type FeatureExtractor interface {
	Features(x *autograd.Tensor) (*autograd.Tensor, error)
}

// Classifier scores samples with (B, classes) unnormalised logits.
type Classifier interface {
	Logits(x *autograd.Tensor) (*autograd.Tensor, error)
}

// FeatureSizer is implemented by extractors that declare their output width.
type FeatureSizer interface {
	NumFeatures() int
}

// Mean is a running arithmetic mean.
type Mean struct {
	sum   float64
	count int
}

// Update adds one value.
func (m *Mean) Update(v float64) {
	m.sum += v
	m.count++
}

// Compute returns the mean of all values since the last Reset.
func (m *Mean) Compute() (float64, error) {
	if m.count == 0 {
		return 0, ErrEmptyAccumulator
	}
	return m.sum / float64(m.count), nil
}

// Reset clears the accumulator.
func (m *Mean) Reset() {
	m.sum = 0
	m.count = 0
}

// Count returns the number of updates since the last Reset.
func (m *Mean) Count() int {
	return m.count
}
