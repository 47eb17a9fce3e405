package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"eeg-forge/internal/autograd"
)

const defaultSplits = 10

// InceptionScore is exp(E_x[KL(p(y|x) || p(y))]) over generated samples,
// averaged across splits. Real samples are ignored.
type InceptionScore struct {
	classifier Classifier
	splits     int
	probs      [][]float64
}

// NewInceptionScore returns an IS accumulator. splits <= 0 selects 10.
func NewInceptionScore(classifier Classifier, splits int) (*InceptionScore, error) {
	if classifier == nil {
		return nil, fmt.Errorf("%w: is needs a classifier", ErrMissingDependency)
	}
	if splits <= 0 {
		splits = defaultSplits
	}
	return &InceptionScore{classifier: classifier, splits: splits}, nil
}

// Update records class probabilities for generated samples.
func (s *InceptionScore) Update(x *autograd.Tensor, real bool) error {
	if real {
		return nil
	}
	var logits *autograd.Tensor
	err := autograd.WithGrad(false, func() error {
		var err error
		logits, err = s.classifier.Logits(x)
		return err
	})
	if err != nil {
		return fmt.Errorf("is: classify: %w", err)
	}
	for i := 0; i < logits.Rows(); i++ {
		s.probs = append(s.probs, softmax(logits.Row(i)))
	}
	return nil
}

// Compute returns the mean score over splits.
func (s *InceptionScore) Compute() (float64, error) {
	mean, _, err := s.ComputeWithStd()
	return mean, err
}

// ComputeWithStd returns the mean and sample standard deviation of the
// per-split scores.
func (s *InceptionScore) ComputeWithStd() (float64, float64, error) {
	n := len(s.probs)
	if n == 0 {
		return 0, 0, ErrEmptyAccumulator
	}
	chunk := (n + s.splits - 1) / s.splits
	var scores []float64
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		scores = append(scores, splitScore(s.probs[lo:hi]))
	}
	mean := stat.Mean(scores, nil)
	if len(scores) < 2 {
		return mean, 0, nil
	}
	return mean, stat.StdDev(scores, nil), nil
}

// Reset drops the recorded probabilities.
func (s *InceptionScore) Reset() {
	s.probs = nil
}

func splitScore(probs [][]float64) float64 {
	marginal := make([]float64, len(probs[0]))
	for _, p := range probs {
		floats.Add(marginal, p)
	}
	floats.Scale(1/float64(len(probs)), marginal)
	kl := 0.0
	for _, p := range probs {
		for c, pc := range p {
			if pc > 0 {
				kl += pc * (math.Log(pc) - math.Log(math.Max(marginal[c], 1e-300)))
			}
		}
	}
	return math.Exp(kl / float64(len(probs)))
}

func softmax(logits []float64) []float64 {
	maxLogit := floats.Max(logits)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - maxLogit)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
