package model

import (
	"fmt"
	"math"
	"math/rand"

	"eeg-forge/internal/autograd"
)

// Linear computes x·W + b for x of shape (B, In).
type Linear struct {
	In, Out int
	Weight  *autograd.Tensor // (In, Out)
	Bias    *autograd.Tensor // (Out)
}

// NewLinear initialises weights and bias from U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	w := autograd.Uniform(rng, in, out)
	b := autograd.Uniform(rng, out)
	for _, t := range []*autograd.Tensor{w, b} {
		data := t.Data()
		for i := range data {
			data[i] = (data[i]*2 - 1) * bound
		}
		t.SetRequiresGrad(true)
	}
	return &Linear{In: in, Out: out, Weight: w, Bias: b}
}

// NewLinearFrom builds a layer from explicit weights given as In rows of Out
// values.
func NewLinearFrom(weights [][]float64, bias []float64) (*Linear, error) {
	w, err := autograd.FromRows(weights)
	if err != nil {
		return nil, err
	}
	shape := w.Shape()
	if len(bias) != shape[1] {
		return nil, fmt.Errorf("%w: bias has %d values, want %d", autograd.ErrShapeMismatch, len(bias), shape[1])
	}
	b, err := autograd.New(bias, len(bias))
	if err != nil {
		return nil, err
	}
	w.SetRequiresGrad(true)
	b.SetRequiresGrad(true)
	return &Linear{In: shape[0], Out: shape[1], Weight: w, Bias: b}, nil
}

// Forward applies the layer.
func (l *Linear) Forward(x *autograd.Tensor) (*autograd.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != l.In {
		return nil, fmt.Errorf("%w: linear expects (B, %d), got %v", autograd.ErrShapeMismatch, l.In, shape)
	}
	return autograd.Add(autograd.MatMul(x, l.Weight), autograd.RepeatRows(l.Bias, shape[0])), nil
}

// Parameters returns the weight and bias.
func (l *Linear) Parameters() []*autograd.Tensor {
	return []*autograd.Tensor{l.Weight, l.Bias}
}
