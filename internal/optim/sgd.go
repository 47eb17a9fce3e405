package optim

import (
	"gonum.org/v1/gonum/floats"

	"eeg-forge/internal/autograd"
)

// SGD performs p -= lr * (grad + weightDecay*p).
type SGD struct {
	params      []*autograd.Tensor
	lr          float64
	weightDecay float64
}

// NewSGD returns a plain gradient descent optimizer.
func NewSGD(params []*autograd.Tensor, lr, weightDecay float64) (*SGD, error) {
	if err := validateLR("sgd", lr, weightDecay); err != nil {
		return nil, err
	}
	return &SGD{params: params, lr: lr, weightDecay: weightDecay}, nil
}

func (o *SGD) Step() error {
	for _, p := range o.params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data := p.Data()
		if o.weightDecay != 0 {
			floats.AddScaled(data, -o.lr*o.weightDecay, data)
		}
		floats.AddScaled(data, -o.lr, g.Data())
	}
	return nil
}

func (o *SGD) ZeroGrad()                  { zeroGrad(o.params) }
func (o *SGD) Params() []*autograd.Tensor { return o.params }
func (o *SGD) LR() float64                { return o.lr }
