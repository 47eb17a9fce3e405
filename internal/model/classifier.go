package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"eeg-forge/internal/autograd"
)

// SoftmaxClassifier is a linear softmax classifier over flattened EEG
// samples. Trained on real data it serves as the feature extractor and
// classifier behind the FID and IS metrics.
type SoftmaxClassifier struct {
	numClasses int
	inputSize  int
	weights    []float64
	bias       []float64
	lr         float64
}

// NewSoftmaxClassifier constructs the model with random initialization.
func NewSoftmaxClassifier(numClasses, inputSize int, lr float64, seed int64) *SoftmaxClassifier {
	if numClasses <= 0 {
		numClasses = 2
	}
	if inputSize <= 0 {
		inputSize = 64
	}
	if lr <= 0 {
		lr = 0.01
	}
	rng := rand.New(rand.NewSource(seed))
	weights := make([]float64, numClasses*inputSize)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * 0.01
	}
	return &SoftmaxClassifier{
		numClasses: numClasses,
		inputSize:  inputSize,
		weights:    weights,
		bias:       make([]float64, numClasses),
		lr:         lr,
	}
}

// NumClasses reports the width of the logits.
func (m *SoftmaxClassifier) NumClasses() int {
	return m.numClasses
}

// NumFeatures reports the width of Features, equal to the class count.
func (m *SoftmaxClassifier) NumFeatures() int {
	return m.numClasses
}

// TrainStep executes one SGD step over the batch and returns average loss.
func (m *SoftmaxClassifier) TrainStep(batch Batch) float64 {
	rows := batch.Size()
	if rows == 0 {
		return 0
	}
	totalLoss := 0.0
	for i := 0; i < rows; i++ {
		input := batch.Inputs.Row(i)
		if len(input) != m.inputSize {
			continue
		}
		label := 0
		if i < len(batch.Labels) {
			label = clampLabel(batch.Labels[i], m.numClasses)
		}
		probs := softmax(m.logits(input))
		totalLoss += -math.Log(math.Max(probs[label], 1e-9))

		probs[label] -= 1
		for c := 0; c < m.numClasses; c++ {
			grad := probs[c]
			m.bias[c] -= m.lr * grad
			wStart := c * m.inputSize
			for j := 0; j < m.inputSize; j++ {
				m.weights[wStart+j] -= m.lr * grad * input[j]
			}
		}
	}
	return totalLoss / float64(rows)
}

// Logits returns unnormalised class scores, shape (B, classes).
func (m *SoftmaxClassifier) Logits(x *autograd.Tensor) (*autograd.Tensor, error) {
	rows := x.Rows()
	if x.Len() != rows*m.inputSize {
		return nil, fmt.Errorf("%w: classifier expects %d features per sample, got shape %v", autograd.ErrShapeMismatch, m.inputSize, x.Shape())
	}
	out := make([]float64, 0, rows*m.numClasses)
	for i := 0; i < rows; i++ {
		out = append(out, m.logits(x.Row(i))...)
	}
	return autograd.New(out, rows, m.numClasses)
}

// Features returns the logits as a feature embedding.
func (m *SoftmaxClassifier) Features(x *autograd.Tensor) (*autograd.Tensor, error) {
	return m.Logits(x)
}

func (m *SoftmaxClassifier) logits(input []float64) []float64 {
	logits := make([]float64, m.numClasses)
	for c := 0; c < m.numClasses; c++ {
		wStart := c * m.inputSize
		logits[c] = m.bias[c] + floats.Dot(m.weights[wStart:wStart+m.inputSize], input)
	}
	return logits
}

func clampLabel(label, numClasses int) int {
	label %= numClasses
	if label < 0 {
		label += numClasses
	}
	return label
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		out[i] = exp
		sum += exp
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}
