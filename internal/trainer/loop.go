package trainer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"eeg-forge/internal/dataset"
	"eeg-forge/internal/metrics"
	"eeg-forge/internal/model"
)

// Fit runs maxEpochs epochs. Each epoch trains on every batch of train,
// closes the train phase, then, when val is non-nil, evaluates every batch
// of val and closes the val phase. It stops at the first error or when ctx
// is done; the accumulators of the interrupted phase are discarded.
func (t *Trainer) Fit(ctx context.Context, train, val dataset.Loader, maxEpochs int) error {
	if train == nil {
		return fmt.Errorf("%w: a training loader is required", ErrConfiguration)
	}
	if maxEpochs <= 0 {
		return fmt.Errorf("%w: max epochs must be > 0 (got %d)", ErrConfiguration, maxEpochs)
	}
	for epoch := 0; epoch < maxEpochs; epoch++ {
		if _, err := t.runPhase(ctx, metrics.Train, epoch, train); err != nil {
			return err
		}
		if val == nil {
			continue
		}
		if _, err := t.runPhase(ctx, metrics.Val, epoch, val); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs every batch of test through EvalStep and returns the test
// phase's values keyed by name.
func (t *Trainer) Evaluate(ctx context.Context, test dataset.Loader) (map[string]float64, error) {
	if test == nil {
		return nil, fmt.Errorf("%w: a test loader is required", ErrConfiguration)
	}
	summary, err := t.runPhase(ctx, metrics.Test, 0, test)
	if err != nil {
		return nil, err
	}
	return summary.Map(), nil
}

func (t *Trainer) runPhase(ctx context.Context, phase metrics.Phase, epoch int, loader dataset.Loader) (Summary, error) {
	var window metrics.Window
	startData := time.Now()
	err := loader.Iterate(ctx, func(batch model.Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		var (
			res StepResult
			err error
		)
		if phase == metrics.Train {
			res, err = t.TrainStep(batch)
		} else {
			res, err = t.EvalStep(phase, batch)
		}
		if err != nil {
			return err
		}
		computeTime := time.Since(startCompute)

		if phase == metrics.Train {
			window.Record(batch.Size(), dataTime, computeTime, res.GeneratorLoss, res.DiscriminatorLoss)
			if t.step%t.opts.LogEvery == 0 {
				snap := window.Snapshot()
				t.log.WithFields(logrus.Fields{
					"step":            t.step,
					"epoch":           epoch,
					"window":          snap.Steps,
					"samples_per_sec": fmt.Sprintf("%.1f", snap.SamplesPerSec),
					"data_ms":         fmt.Sprintf("%.2f", snap.AvgDataMS),
					"compute_ms":      fmt.Sprintf("%.2f", snap.AvgComputeMS),
					"g_loss":          fmt.Sprintf("%.4f", snap.GLoss),
					"d_loss":          fmt.Sprintf("%.4f", snap.DLoss),
				}).Info("train step")
			}
		}
		startData = time.Now()
		return nil
	})
	if err != nil {
		t.phases[phase].Reset()
		return Summary{}, fmt.Errorf("%s epoch %d: %w", phase, epoch, err)
	}
	return t.OnEpochEnd(phase, epoch)
}
