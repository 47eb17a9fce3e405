package model

import (
	"fmt"

	"eeg-forge/internal/autograd"
)

// Batch represents a minibatch of EEG samples and their class labels.
type Batch struct {
	Inputs *autograd.Tensor
	Labels []int
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	if b.Inputs == nil {
		return 0
	}
	return b.Inputs.Rows()
}

// Module exposes trainable parameters.
type Module interface {
	Parameters() []*autograd.Tensor
}

// Generator maps a latent batch (and, when conditioned, labels) to samples.
// Unconditioned generators ignore labels.
type Generator interface {
	Module
	Forward(latent *autograd.Tensor, labels []int) (*autograd.Tensor, error)
}

// Discriminator maps a sample batch (and, when conditioned, labels) to one
// raw score per example. No output activation is applied.
type Discriminator interface {
	Module
	Forward(x *autograd.Tensor, labels []int) (*autograd.Tensor, error)
}

// LatentSizer is implemented by generators that declare their input width.
type LatentSizer interface {
	InChannels() int
}

// OneHot encodes labels as a constant (len(labels), classes) matrix.
func OneHot(labels []int, classes, rows int) (*autograd.Tensor, error) {
	if len(labels) != rows {
		return nil, fmt.Errorf("%w: %d labels for %d examples", autograd.ErrShapeMismatch, len(labels), rows)
	}
	data := make([]float64, rows*classes)
	for i, y := range labels {
		if y < 0 || y >= classes {
			return nil, fmt.Errorf("%w: label %d outside [0, %d)", autograd.ErrShapeMismatch, y, classes)
		}
		data[i*classes+y] = 1
	}
	return autograd.New(data, rows, classes)
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
