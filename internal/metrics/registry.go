package metrics

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Deps carries the collaborators optional metrics may need.
type Deps struct {
	Extractor   FeatureExtractor
	Classifier  Classifier
	NumFeatures int // 0 infers the width from the extractor
	Splits      int
	Logger      *logrus.Logger
}

// Factory builds one fresh accumulator.
type Factory func(Deps) (SampleMetric, error)

// NamedMetric pairs an accumulator with its reported name.
type NamedMetric struct {
	Name   string
	Metric SampleMetric
}

// Registry maps metric names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with fid and is.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("fid", buildFID)
	r.Register("is", buildIS)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Build instantiates the named metrics in order. Any unknown name or missing
// dependency fails the whole build.
func (r *Registry) Build(names []string, deps Deps) ([]NamedMetric, error) {
	seen := make(map[string]bool, len(names))
	out := make([]NamedMetric, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("metrics: %q listed twice", name)
		}
		seen[name] = true
		f, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
		}
		m, err := f(deps)
		if err != nil {
			return nil, fmt.Errorf("metrics: build %s: %w", name, err)
		}
		out = append(out, NamedMetric{Name: name, Metric: m})
	}
	return out, nil
}

func buildFID(deps Deps) (SampleMetric, error) {
	if deps.Extractor == nil {
		return nil, fmt.Errorf("%w: fid requires a feature extractor", ErrMissingDependency)
	}
	width, err := featureWidth(deps)
	if err != nil {
		return nil, err
	}
	return NewFID(deps.Extractor, width)
}

func buildIS(deps Deps) (SampleMetric, error) {
	if deps.Classifier == nil {
		return nil, fmt.Errorf("%w: is requires a classifier", ErrMissingDependency)
	}
	return NewInceptionScore(deps.Classifier, deps.Splits)
}

// featureWidth resolves the extractor output width: explicit, declared, or
// guessed from the extractor's input channels.
func featureWidth(deps Deps) (int, error) {
	if deps.NumFeatures > 0 {
		return deps.NumFeatures, nil
	}
	if s, ok := deps.Extractor.(FeatureSizer); ok && s.NumFeatures() > 0 {
		return s.NumFeatures(), nil
	}
	if s, ok := deps.Extractor.(interface{ InChannels() int }); ok && s.InChannels() > 0 {
		if deps.Logger != nil {
			deps.Logger.WithField("num_features", s.InChannels()).
				Warn("fid feature width not set, using the extractor's input channels")
		}
		return s.InChannels(), nil
	}
	return 0, fmt.Errorf("%w: fid feature width cannot be inferred from the extractor", ErrMissingDependency)
}
