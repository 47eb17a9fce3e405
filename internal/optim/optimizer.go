// Package optim updates autograd parameters from their accumulated gradients.
package optim

import (
	"fmt"

	"eeg-forge/internal/autograd"
)

// Optimizer owns one network's parameter list.
type Optimizer interface {
	// Step applies the accumulated gradients. Parameters without a gradient
	// are left untouched.
	Step() error
	// ZeroGrad drops every parameter's gradient.
	ZeroGrad()
	Params() []*autograd.Tensor
	LR() float64
}

// Freeze disables gradient tracking for params and returns a func restoring
// each parameter's previous setting.
func Freeze(params []*autograd.Tensor) (restore func()) {
	prev := make([]bool, len(params))
	for i, p := range params {
		prev[i] = p.RequiresGrad()
		p.SetRequiresGrad(false)
	}
	return func() {
		for i, p := range params {
			p.SetRequiresGrad(prev[i])
		}
	}
}

func zeroGrad(params []*autograd.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

func validateLR(name string, lr, weightDecay float64) error {
	if lr <= 0 {
		return fmt.Errorf("%s: learning rate must be > 0 (got %g)", name, lr)
	}
	if weightDecay < 0 {
		return fmt.Errorf("%s: weight decay must be >= 0 (got %g)", name, weightDecay)
	}
	return nil
}
