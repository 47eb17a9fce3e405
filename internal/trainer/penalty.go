package trainer

import (
	"fmt"
	"math/rand"

	"eeg-forge/internal/autograd"
	"eeg-forge/internal/model"
)

// normEps keeps the norm differentiable when a gradient is exactly zero.
const normEps = 1e-12

// Interpolate returns alpha[i]*real[i] + (1-alpha[i])*fake[i] per example as
// a fresh leaf tensor with the shape of real.
func Interpolate(real, fake *autograd.Tensor, alpha []float64) (*autograd.Tensor, error) {
	if !autograd.SameShape(real, fake) {
		return nil, fmt.Errorf("%w: real %v vs fake %v", autograd.ErrShapeMismatch, real.Shape(), fake.Shape())
	}
	rows := real.Rows()
	if len(alpha) != rows {
		return nil, fmt.Errorf("%w: %d interpolation weights for %d examples", autograd.ErrShapeMismatch, len(alpha), rows)
	}
	width := real.Len() / rows
	r, f := real.Data(), fake.Data()
	out := make([]float64, len(r))
	for i := 0; i < rows; i++ {
		a := alpha[i]
		for j := i * width; j < (i+1)*width; j++ {
			out[j] = a*r[j] + (1-a)*f[j]
		}
	}
	return autograd.New(out, real.Shape()...)
}

// GradientPenalty returns mean_i (||grad_x D(x̂_i)||_2 - 1)^2 with x̂ drawn
// uniformly on the segments between real and fake examples. The result is
// differentiable with respect to the discriminator's parameters.
func GradientPenalty(d model.Discriminator, real, fake *autograd.Tensor, labels []int, rng *rand.Rand) (*autograd.Tensor, error) {
	if !autograd.SameShape(real, fake) {
		return nil, fmt.Errorf("%w: real %v vs fake %v", autograd.ErrShapeMismatch, real.Shape(), fake.Shape())
	}
	alpha := make([]float64, real.Rows())
	for i := range alpha {
		alpha[i] = rng.Float64()
	}
	xhat, err := Interpolate(real.Detach(), fake.Detach(), alpha)
	if err != nil {
		return nil, err
	}
	return penaltyAt(d, xhat, labels)
}

func penaltyAt(d model.Discriminator, xhat *autograd.Tensor, labels []int) (*autograd.Tensor, error) {
	var penalty *autograd.Tensor
	err := autograd.WithGrad(true, func() error {
		xhat.SetRequiresGrad(true)
		out, err := d.Forward(xhat, labels)
		if err != nil {
			return err
		}
		grads, err := autograd.Grad(out, []*autograd.Tensor{xhat}, true)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrGradientComputation, err)
		}
		g := autograd.Flatten(grads[0])
		norm := autograd.Pow(autograd.AddScalar(autograd.RowSum(autograd.Mul(g, g)), normEps), 0.5)
		penalty = autograd.Mean(autograd.Pow(autograd.AddScalar(norm, -1), 2))
		return nil
	})
	return penalty, err
}
