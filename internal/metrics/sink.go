package metrics

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Observation is one metric value emitted at the end of an epoch.
type Observation struct {
	Phase Phase
	Epoch int
	Name  string
	Value float64
}

// Sink receives observations.
type Sink interface {
	Emit(obs Observation) error
}

// Recorder keeps observations in memory.
type Recorder struct {
	mu  sync.Mutex
	obs []Observation
}

func (r *Recorder) Emit(obs Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, obs)
	return nil
}

// Observations returns a copy of everything emitted so far.
func (r *Recorder) Observations() []Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Observation(nil), r.obs...)
}

// LogSink writes observations as structured log entries.
type LogSink struct {
	Logger *logrus.Logger
}

func (s LogSink) Emit(obs Observation) error {
	s.Logger.WithFields(logrus.Fields{
		"phase":  obs.Phase.String(),
		"epoch":  obs.Epoch,
		"metric": obs.Name,
		"value":  obs.Value,
	}).Info("epoch metric")
	return nil
}

// MultiSink fans observations out to every sink.
type MultiSink []Sink

func (m MultiSink) Emit(obs Observation) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(obs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
