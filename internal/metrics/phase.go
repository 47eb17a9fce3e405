package metrics

import (
	"fmt"
	"strings"

	"eeg-forge/internal/autograd"
)

// Phase identifies the train, validation or test pass.
type Phase int

const (
	Train Phase = iota
	Val
	Test
)

func (p Phase) String() string {
	switch p {
	case Train:
		return "train"
	case Val:
		return "val"
	case Test:
		return "test"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Tag is the title-case label used in epoch summary lines, e.g. "Train".
func (p Phase) Tag() string {
	name := p.String()
	return strings.ToUpper(name[:1]) + name[1:]
}

// Result is one computed metric value.
type Result struct {
	Name  string
	Value float64
}

// PhaseSet owns the accumulators of one phase: the generator and
// discriminator loss means followed by the optional sample metrics.
type PhaseSet struct {
	phase   Phase
	gLoss   Mean
	dLoss   Mean
	samples []NamedMetric
}

// NewPhaseSet wraps freshly built sample metrics for phase.
func NewPhaseSet(phase Phase, samples []NamedMetric) *PhaseSet {
	return &PhaseSet{phase: phase, samples: samples}
}

// Phase returns the owning phase.
func (s *PhaseSet) Phase() Phase {
	return s.phase
}

// Names returns the reported metric names in compute order.
func (s *PhaseSet) Names() []string {
	names := []string{s.name("g_loss"), s.name("d_loss")}
	for _, m := range s.samples {
		names = append(names, s.name(m.Name))
	}
	return names
}

// UpdateLosses records one step's losses.
func (s *PhaseSet) UpdateLosses(gLoss, dLoss float64) {
	s.gLoss.Update(gLoss)
	s.dLoss.Update(dLoss)
}

// UpdateSamples feeds the real and generated batch to every sample metric.
func (s *PhaseSet) UpdateSamples(real, fake *autograd.Tensor) error {
	for _, m := range s.samples {
		if err := m.Metric.Update(real, true); err != nil {
			return fmt.Errorf("%s: %w", s.name(m.Name), err)
		}
		if err := m.Metric.Update(fake, false); err != nil {
			return fmt.Errorf("%s: %w", s.name(m.Name), err)
		}
	}
	return nil
}

// Compute evaluates every accumulator in order without resetting.
func (s *PhaseSet) Compute() ([]Result, error) {
	results := make([]Result, 0, 2+len(s.samples))
	for _, acc := range []struct {
		name string
		fn   func() (float64, error)
	}{
		{"g_loss", s.gLoss.Compute},
		{"d_loss", s.dLoss.Compute},
	} {
		v, err := acc.fn()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name(acc.name), err)
		}
		results = append(results, Result{Name: s.name(acc.name), Value: v})
	}
	for _, m := range s.samples {
		v, err := m.Metric.Compute()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name(m.Name), err)
		}
		results = append(results, Result{Name: s.name(m.Name), Value: v})
	}
	return results, nil
}

// Reset clears every accumulator of the phase.
func (s *PhaseSet) Reset() {
	s.gLoss.Reset()
	s.dLoss.Reset()
	for _, m := range s.samples {
		m.Metric.Reset()
	}
}

func (s *PhaseSet) name(metric string) string {
	return s.phase.String() + "_" + metric
}
