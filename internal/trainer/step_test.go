package trainer

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"eeg-forge/internal/autograd"
	"eeg-forge/internal/metrics"
	"eeg-forge/internal/model"
)

func latentDraws(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	z := make([]float64, n)
	for i := range z {
		z[i] = rng.NormFloat64()
	}
	return z
}

func TestTrainStepIsolatesUpdates(t *testing.T) {
	const (
		a, c   = 0.5, 0.1
		w, b   = 2.0, 0.3
		lr     = 0.1
		lambda = 1.0
	)
	gen := linearGen{scalarLinear(t, a, c)}
	disc := linearDisc{scalarLinear(t, w, b)}
	opts := testOptions()
	opts.GradientPenaltyWeight = lambda
	tr, err := New(gen, disc, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	realValues := []float64{1, 2, 3}
	res, err := tr.TrainStep(model.Batch{Inputs: column(t, realValues...)})
	if err != nil {
		t.Fatalf("TrainStep: %v", err)
	}

	z := latentDraws(opts.Seed, 3)
	fake := make([]float64, len(z))
	for i, v := range z {
		fake[i] = a*v + c
	}

	// generator step: d(-mean(w*(a z + c) + b)) = (-w mean(z), -w)
	assertNear(t, "generator weight", gen.l.Weight.At(0), a+lr*w*mean(z), 1e-12)
	assertNear(t, "generator bias", gen.l.Bias.At(0), c+lr*w, 1e-12)

	// discriminator step sees only -mean(D(real)) + mean(D(fake)) + λ·GP
	norm := math.Sqrt(w*w + normEps)
	dw := -mean(realValues) + mean(fake) + lambda*2*(norm-1)*w/norm
	assertNear(t, "discriminator weight", disc.l.Weight.At(0), w-lr*dw, 1e-9)
	assertNear(t, "discriminator bias", disc.l.Bias.At(0), b, 1e-12)

	assertNear(t, "generator loss", res.GeneratorLoss, -(w*mean(fake) + b), 1e-12)
	assertNear(t, "penalty", res.Penalty, (norm-1)*(norm-1), 1e-12)
	assertNear(t, "discriminator loss", res.DiscriminatorLoss, w*(mean(fake)-mean(realValues))+lambda*res.Penalty, 1e-12)

	for _, p := range append(gen.Parameters(), disc.Parameters()...) {
		if p.Grad() != nil {
			t.Fatalf("expected gradients cleared after the step")
		}
		if !p.RequiresGrad() {
			t.Fatalf("expected parameters unfrozen after the step")
		}
	}
	if tr.Step() != 1 {
		t.Fatalf("expected step 1, got %d", tr.Step())
	}
}

func TestEvalStepEndToEnd(t *testing.T) {
	for _, k := range []float64{1, 3} {
		gen := linearGen{scalarLinear(t, 2, 0)}
		disc := linearDisc{scalarLinear(t, k, 0)}
		opts := testOptions()
		opts.GradientPenaltyWeight = 10
		opts.Seed = 11
		tr, err := New(gen, disc, opts)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		realValues := []float64{1, -2, 0.5, 3}
		real := column(t, realValues...)
		res, err := tr.EvalStep(metrics.Val, model.Batch{Inputs: real})
		if err != nil {
			t.Fatalf("EvalStep: %v", err)
		}

		z := latentDraws(11, 4)
		fake := make([]float64, len(z))
		for i, v := range z {
			fake[i] = 2 * v
		}
		gp, err := GradientPenalty(disc, real, column(t, fake...), nil, rand.New(rand.NewSource(99)))
		if err != nil {
			t.Fatalf("GradientPenalty: %v", err)
		}
		assertNear(t, "generator loss", res.GeneratorLoss, -k*mean(fake), 1e-12)
		assertNear(t, "penalty", res.Penalty, gp.Item(), 1e-9)
		assertNear(t, "penalty closed form", res.Penalty, (k-1)*(k-1), 1e-9)
		assertNear(t, "discriminator loss", res.DiscriminatorLoss,
			-k*mean(realValues)+k*mean(fake)+10*gp.Item(), 1e-9)

		if gen.l.Weight.At(0) != 2 || disc.l.Weight.At(0) != k {
			t.Fatalf("evaluation must not update parameters")
		}
		for _, p := range append(gen.Parameters(), disc.Parameters()...) {
			if p.Grad() != nil {
				t.Fatalf("evaluation must not leave gradients behind")
			}
		}
		summary, err := tr.OnEpochEnd(metrics.Val, 0)
		if err != nil {
			t.Fatalf("OnEpochEnd: %v", err)
		}
		if v, _ := summary.Value("val_g_loss"); v != res.GeneratorLoss {
			t.Fatalf("expected val_g_loss %f, got %f", res.GeneratorLoss, v)
		}
	}
}

func TestTrainStepRejectsEmptyBatch(t *testing.T) {
	tr, err := New(linearGen{scalarLinear(t, 1, 0)}, linearDisc{scalarLinear(t, 1, 0)}, testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tr.TrainStep(model.Batch{}); !errors.Is(err, autograd.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestTrainStepShapeMismatch(t *testing.T) {
	// generator emits (B, 1) while real samples are (B, 2)
	gen := linearGen{scalarLinear(t, 1, 0)}
	l, _ := model.NewLinearFrom([][]float64{{1}, {1}}, []float64{0})
	tr, err := New(gen, linearDisc{l}, testOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	real, _ := autograd.New([]float64{1, 2, 3, 4}, 2, 2)
	_, err = tr.TrainStep(model.Batch{Inputs: real})
	if !errors.Is(err, autograd.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}
