package optim

import (
	"math"
	"testing"

	"eeg-forge/internal/autograd"
)

func quadratic(t *testing.T, w *autograd.Tensor) {
	t.Helper()
	loss := autograd.Sum(autograd.Pow(w, 2))
	if err := autograd.Backward(loss); err != nil {
		t.Fatalf("backward: %v", err)
	}
}

func TestSGDStep(t *testing.T) {
	w, _ := autograd.New([]float64{1, -2}, 2)
	w.SetRequiresGrad(true)
	opt, err := NewSGD([]*autograd.Tensor{w}, 0.1, 0)
	if err != nil {
		t.Fatalf("sgd: %v", err)
	}
	quadratic(t, w)
	if err := opt.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	want := []float64{0.8, -1.6}
	for i, v := range w.Data() {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Fatalf("expected %v, got %v", want, w.Data())
		}
	}
	opt.ZeroGrad()
	if w.Grad() != nil {
		t.Fatalf("expected gradient to be cleared")
	}
}

func TestAdamFirstStepMovesByLR(t *testing.T) {
	w, _ := autograd.New([]float64{3, -1}, 2)
	w.SetRequiresGrad(true)
	opt, err := NewAdam([]*autograd.Tensor{w}, DefaultAdamConfig(0.01))
	if err != nil {
		t.Fatalf("adam: %v", err)
	}
	quadratic(t, w)
	if err := opt.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	want := []float64{2.99, -0.99}
	for i, v := range w.Data() {
		if math.Abs(v-want[i]) > 1e-6 {
			t.Fatalf("expected %v, got %v", want, w.Data())
		}
	}
}

func TestStepSkipsParamsWithoutGrad(t *testing.T) {
	w, _ := autograd.New([]float64{5}, 1)
	opt, _ := NewAdam([]*autograd.Tensor{w}, DefaultAdamConfig(0.1))
	if err := opt.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if w.Data()[0] != 5 {
		t.Fatalf("expected untouched parameter, got %f", w.Data()[0])
	}
}

func TestFreezeRestores(t *testing.T) {
	a, _ := autograd.New([]float64{1}, 1)
	b, _ := autograd.New([]float64{1}, 1)
	a.SetRequiresGrad(true)
	restore := Freeze([]*autograd.Tensor{a, b})
	if a.RequiresGrad() || b.RequiresGrad() {
		t.Fatalf("expected params frozen")
	}
	restore()
	if !a.RequiresGrad() || b.RequiresGrad() {
		t.Fatalf("expected previous tracking restored")
	}
}

func TestInvalidLearningRate(t *testing.T) {
	if _, err := NewSGD(nil, 0, 0); err == nil {
		t.Fatalf("expected error for zero learning rate")
	}
	if _, err := NewAdam(nil, AdamConfig{LR: 0.1, Beta1: 1, Beta2: 0.9}); err == nil {
		t.Fatalf("expected error for beta1 = 1")
	}
}
