package trainer

import (
	"fmt"
	"strings"

	"eeg-forge/internal/metrics"
)

// Summary is the set of values computed for one phase at the end of an epoch.
type Summary struct {
	Phase   metrics.Phase
	Epoch   int
	Results []metrics.Result
}

// String formats the summary as "[Train] train_g_loss: 0.123 train_d_loss: 0.456 ".
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", s.Phase.Tag())
	for _, r := range s.Results {
		fmt.Fprintf(&b, "%s: %.3f ", r.Name, r.Value)
	}
	return b.String()
}

// Value looks up a result by its full name, e.g. "val_d_loss".
func (s Summary) Value(name string) (float64, bool) {
	for _, r := range s.Results {
		if r.Name == name {
			return r.Value, true
		}
	}
	return 0, false
}

// Map returns the results keyed by name.
func (s Summary) Map() map[string]float64 {
	out := make(map[string]float64, len(s.Results))
	for _, r := range s.Results {
		out[r.Name] = r.Value
	}
	return out
}

// OnEpochEnd computes every accumulator of phase, emits the values to the
// sink, prints the summary line and resets the accumulators. The reset
// happens even when computing or emitting fails.
func (t *Trainer) OnEpochEnd(phase metrics.Phase, epoch int) (Summary, error) {
	set := t.phases[phase]
	defer set.Reset()

	results, err := set.Compute()
	if err != nil {
		return Summary{}, fmt.Errorf("%s epoch %d: %w", phase, epoch, err)
	}
	summary := Summary{Phase: phase, Epoch: epoch, Results: results}
	if t.sink != nil {
		for _, r := range results {
			obs := metrics.Observation{Phase: phase, Epoch: epoch, Name: r.Name, Value: r.Value}
			if err := t.sink.Emit(obs); err != nil {
				return Summary{}, fmt.Errorf("%s epoch %d: emit %s: %w", phase, epoch, r.Name, err)
			}
		}
	}
	fmt.Fprintln(t.out, summary.String())
	return summary, nil
}
