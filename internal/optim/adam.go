package optim

import (
	"errors"
	"math"

	"eeg-forge/internal/autograd"
)

// AdamConfig holds Adam's hyperparameters.
type AdamConfig struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64 // L2 penalty added to the gradient
}

// DefaultAdamConfig returns the usual betas and epsilon for lr.
func DefaultAdamConfig(lr float64) AdamConfig {
	return AdamConfig{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Adam implements bias-corrected adaptive moment estimation.
type Adam struct {
	cfg    AdamConfig
	params []*autograd.Tensor
	m, v   [][]float64
	steps  []int
}

// NewAdam allocates moment buffers for params.
func NewAdam(params []*autograd.Tensor, cfg AdamConfig) (*Adam, error) {
	if err := validateLR("adam", cfg.LR, cfg.WeightDecay); err != nil {
		return nil, err
	}
	if cfg.Beta1 < 0 || cfg.Beta1 >= 1 || cfg.Beta2 < 0 || cfg.Beta2 >= 1 {
		return nil, errors.New("adam: betas must be in [0, 1)")
	}
	o := &Adam{
		cfg:    cfg,
		params: params,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
		steps:  make([]int, len(params)),
	}
	for i, p := range params {
		o.m[i] = make([]float64, p.Len())
		o.v[i] = make([]float64, p.Len())
	}
	return o, nil
}

func (o *Adam) Step() error {
	for i, p := range o.params {
		g := p.Grad()
		if g == nil {
			continue
		}
		o.steps[i]++
		t := float64(o.steps[i])
		c1 := 1 - math.Pow(o.cfg.Beta1, t)
		c2 := 1 - math.Pow(o.cfg.Beta2, t)
		data, grad := p.Data(), g.Data()
		m, v := o.m[i], o.v[i]
		for j := range data {
			gj := grad[j] + o.cfg.WeightDecay*data[j]
			m[j] = o.cfg.Beta1*m[j] + (1-o.cfg.Beta1)*gj
			v[j] = o.cfg.Beta2*v[j] + (1-o.cfg.Beta2)*gj*gj
			data[j] -= o.cfg.LR * (m[j] / c1) / (math.Sqrt(v[j]/c2) + o.cfg.Eps)
		}
	}
	return nil
}

func (o *Adam) ZeroGrad()                  { zeroGrad(o.params) }
func (o *Adam) Params() []*autograd.Tensor { return o.params }
func (o *Adam) LR() float64                { return o.cfg.LR }
