package metrics

import "time"

// Window aggregates the training steps between two progress log lines.
type Window struct {
	steps   int
	samples int
	wait    time.Duration // blocked on the loader
	busy    time.Duration // inside the train step
	gLoss   Mean
	dLoss   Mean
}

// Record adds one step.
func (w *Window) Record(batchSize int, wait, busy time.Duration, gLoss, dLoss float64) {
	w.steps++
	w.samples += batchSize
	w.wait += wait
	w.busy += busy
	w.gLoss.Update(gLoss)
	w.dLoss.Update(dLoss)
}

// Steps returns the number of steps recorded since the last Snapshot.
func (w *Window) Steps() int {
	return w.steps
}

// Snapshot summarises the window and clears it. Losses are window means.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Steps: w.steps}
	if elapsed := w.wait + w.busy; elapsed > 0 {
		snap.SamplesPerSec = float64(w.samples) / elapsed.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = perStepMS(w.wait, w.steps)
		snap.AvgComputeMS = perStepMS(w.busy, w.steps)
	}
	snap.GLoss, _ = w.gLoss.Compute()
	snap.DLoss, _ = w.dLoss.Compute()
	*w = Window{}
	return snap
}

// Snapshot is one progress line's worth of step statistics.
type Snapshot struct {
	Steps         int
	SamplesPerSec float64
	AvgDataMS     float64
	AvgComputeMS  float64
	GLoss         float64
	DLoss         float64
}

func perStepMS(d time.Duration, steps int) float64 {
	return float64(d.Microseconds()) / 1000 / float64(steps)
}
