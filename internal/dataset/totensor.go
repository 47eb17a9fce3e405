package dataset

import (
	"fmt"

	"eeg-forge/internal/autograd"
	"eeg-forge/internal/model"
)

// ToTensor copies an EEG array into a tensor of the same shape without
// scaling. Values are rounded to single precision.
func ToTensor(a Array) (*autograd.Tensor, error) {
	data := make([]float64, len(a.Data))
	for i, v := range a.Data {
		data[i] = float64(float32(v))
	}
	t, err := autograd.New(data, a.Shape...)
	if err != nil {
		return nil, fmt.Errorf("to tensor: %w", err)
	}
	return t, nil
}

// Transform converts a signal and, when ApplyToBaseline is set, its baseline.
type Transform struct {
	ApplyToBaseline bool
}

// Converted holds transformed signals. Baseline is nil unless requested and
// supplied.
type Converted struct {
	EEG      *autograd.Tensor
	Baseline *autograd.Tensor
}

// Apply converts eeg and optionally baseline.
func (t Transform) Apply(eeg Array, baseline *Array) (Converted, error) {
	var out Converted
	var err error
	if out.EEG, err = ToTensor(eeg); err != nil {
		return Converted{}, err
	}
	if t.ApplyToBaseline && baseline != nil {
		if out.Baseline, err = ToTensor(*baseline); err != nil {
			return Converted{}, fmt.Errorf("baseline: %w", err)
		}
	}
	return out, nil
}

// Collate stacks samples of equal shape into a batch of shape (B, shape...).
func Collate(samples []Sample) (model.Batch, error) {
	if len(samples) == 0 {
		return model.Batch{}, fmt.Errorf("%w: empty batch", autograd.ErrShapeMismatch)
	}
	shape := samples[0].EEG.Shape
	data := make([]float64, 0, len(samples)*samples[0].EEG.Len())
	labels := make([]int, len(samples))
	for i, s := range samples {
		if !sameShape(s.EEG.Shape, shape) {
			return model.Batch{}, fmt.Errorf("%w: sample %s has shape %v, batch has %v", autograd.ErrShapeMismatch, s.Key, s.EEG.Shape, shape)
		}
		for _, v := range s.EEG.Data {
			data = append(data, float64(float32(v)))
		}
		labels[i] = s.Label
	}
	inputs, err := autograd.New(data, append([]int{len(samples)}, shape...)...)
	if err != nil {
		return model.Batch{}, err
	}
	return model.Batch{Inputs: inputs, Labels: labels}, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
