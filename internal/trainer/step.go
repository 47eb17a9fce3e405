package trainer

import (
	"fmt"

	"eeg-forge/internal/autograd"
	"eeg-forge/internal/metrics"
	"eeg-forge/internal/model"
	"eeg-forge/internal/optim"
)

// StepResult holds the scalar losses of one step.
type StepResult struct {
	GeneratorLoss     float64
	DiscriminatorLoss float64
	Penalty           float64
}

// TrainStep runs one generator update followed by one discriminator update
// on batch and records the losses in the train accumulators.
//
// Each update only moves its own network: the other network's parameters
// are frozen while the loss is built and differentiated, and gradients are
// cleared before and after every optimizer step.
func (t *Trainer) TrainStep(batch model.Batch) (StepResult, error) {
	labels, err := t.labelsFor(batch)
	if err != nil {
		return StepResult{}, err
	}
	real := batch.Inputs
	var (
		res  StepResult
		genX *autograd.Tensor
	)
	err = autograd.WithGrad(true, func() error {
		err := isolate(t.genOpt, t.discOpt, func() error {
			x, gLoss, err := t.generatorLoss(batch.Size(), labels)
			if err != nil {
				return err
			}
			genX = x
			res.GeneratorLoss = gLoss.Item()
			return autograd.Backward(gLoss)
		})
		if err != nil {
			return fmt.Errorf("generator update: %w", err)
		}
		err = isolate(t.discOpt, t.genOpt, func() error {
			dLoss, gp, err := t.discriminatorLoss(real, genX.Detach(), labels)
			if err != nil {
				return err
			}
			res.DiscriminatorLoss = dLoss.Item()
			res.Penalty = gp.Item()
			return autograd.Backward(dLoss)
		})
		if err != nil {
			return fmt.Errorf("discriminator update: %w", err)
		}
		return nil
	})
	if err != nil {
		return StepResult{}, err
	}
	t.step++
	if err := t.record(metrics.Train, res, real, genX); err != nil {
		return StepResult{}, err
	}
	return res, nil
}

// EvalStep computes both losses, penalty included, without updating either
// network and records them in the accumulators of phase.
func (t *Trainer) EvalStep(phase metrics.Phase, batch model.Batch) (StepResult, error) {
	labels, err := t.labelsFor(batch)
	if err != nil {
		return StepResult{}, err
	}
	var (
		res  StepResult
		genX *autograd.Tensor
	)
	err = autograd.WithGrad(true, func() error {
		x, gLoss, err := t.generatorLoss(batch.Size(), labels)
		if err != nil {
			return err
		}
		genX = x
		dLoss, gp, err := t.discriminatorLoss(batch.Inputs, x.Detach(), labels)
		if err != nil {
			return err
		}
		res = StepResult{GeneratorLoss: gLoss.Item(), DiscriminatorLoss: dLoss.Item(), Penalty: gp.Item()}
		return nil
	})
	if err != nil {
		return StepResult{}, fmt.Errorf("%s step: %w", phase, err)
	}
	if err := t.record(phase, res, batch.Inputs, genX); err != nil {
		return StepResult{}, err
	}
	return res, nil
}

// generatorLoss draws a latent batch and returns G(z) with -mean(D(G(z))).
func (t *Trainer) generatorLoss(rows int, labels []int) (*autograd.Tensor, *autograd.Tensor, error) {
	z := autograd.RandN(t.rng, rows, t.latentDim)
	genX, err := t.gen.Forward(z, labels)
	if err != nil {
		return nil, nil, err
	}
	score, err := t.disc.Forward(genX, labels)
	if err != nil {
		return nil, nil, err
	}
	return genX, autograd.Neg(autograd.Mean(score)), nil
}

// discriminatorLoss returns -mean(D(real)) + mean(D(fake)) + λ·GP and GP.
func (t *Trainer) discriminatorLoss(real, fake *autograd.Tensor, labels []int) (*autograd.Tensor, *autograd.Tensor, error) {
	if !autograd.SameShape(real, fake) {
		return nil, nil, fmt.Errorf("%w: real %v vs generated %v", autograd.ErrShapeMismatch, real.Shape(), fake.Shape())
	}
	realScore, err := t.disc.Forward(real, labels)
	if err != nil {
		return nil, nil, err
	}
	fakeScore, err := t.disc.Forward(fake, labels)
	if err != nil {
		return nil, nil, err
	}
	gp, err := GradientPenalty(t.disc, real, fake, labels, t.rng)
	if err != nil {
		return nil, nil, err
	}
	loss := autograd.Add(
		autograd.Sub(autograd.Mean(fakeScore), autograd.Mean(realScore)),
		autograd.Scale(gp, t.opts.GradientPenaltyWeight),
	)
	return loss, gp, nil
}

// isolate runs one optimizer update of active with frozen's parameters
// excluded from differentiation.
func isolate(active, frozen optim.Optimizer, fn func() error) error {
	restore := optim.Freeze(frozen.Params())
	defer restore()
	active.ZeroGrad()
	if err := fn(); err != nil {
		active.ZeroGrad()
		return err
	}
	if err := active.Step(); err != nil {
		return err
	}
	active.ZeroGrad()
	return nil
}

func (t *Trainer) labelsFor(batch model.Batch) ([]int, error) {
	if batch.Inputs == nil || batch.Size() == 0 {
		return nil, fmt.Errorf("%w: empty batch", autograd.ErrShapeMismatch)
	}
	if !t.opts.Conditional {
		return nil, nil
	}
	if len(batch.Labels) != batch.Size() {
		return nil, fmt.Errorf("%w: %d labels for %d examples", autograd.ErrShapeMismatch, len(batch.Labels), batch.Size())
	}
	return batch.Labels, nil
}

func (t *Trainer) record(phase metrics.Phase, res StepResult, real, fake *autograd.Tensor) error {
	set := t.phases[phase]
	set.UpdateLosses(res.GeneratorLoss, res.DiscriminatorLoss)
	if err := set.UpdateSamples(real, fake.Detach()); err != nil {
		return fmt.Errorf("%s metrics: %w", phase, err)
	}
	return nil
}
