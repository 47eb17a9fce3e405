package trainer

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"eeg-forge/internal/autograd"
	"eeg-forge/internal/model"
)

// linearGen maps (B, 1) latent rows through a single linear layer.
type linearGen struct{ l *model.Linear }

func (g linearGen) Forward(z *autograd.Tensor, _ []int) (*autograd.Tensor, error) {
	return g.l.Forward(z)
}
func (g linearGen) Parameters() []*autograd.Tensor { return g.l.Parameters() }
func (g linearGen) InChannels() int                { return g.l.In }

// opaqueGen hides the input width.
type opaqueGen struct{ l *model.Linear }

func (g opaqueGen) Forward(z *autograd.Tensor, _ []int) (*autograd.Tensor, error) {
	return g.l.Forward(z)
}
func (g opaqueGen) Parameters() []*autograd.Tensor { return g.l.Parameters() }

// linearDisc scores flattened samples with a single linear layer.
type linearDisc struct{ l *model.Linear }

func (d linearDisc) Forward(x *autograd.Tensor, _ []int) (*autograd.Tensor, error) {
	h, err := d.l.Forward(autograd.Flatten(x))
	if err != nil {
		return nil, err
	}
	return autograd.Reshape(h, x.Rows()), nil
}
func (d linearDisc) Parameters() []*autograd.Tensor { return d.l.Parameters() }

// sumDisc scores each example as k times the sum of its values.
type sumDisc struct{ k float64 }

func (d sumDisc) Forward(x *autograd.Tensor, _ []int) (*autograd.Tensor, error) {
	return autograd.Scale(autograd.RowSum(x), d.k), nil
}
func (sumDisc) Parameters() []*autograd.Tensor { return nil }

// constDisc ignores its input.
type constDisc struct{}

func (constDisc) Forward(x *autograd.Tensor, _ []int) (*autograd.Tensor, error) {
	return autograd.Zeros(x.Rows()), nil
}
func (constDisc) Parameters() []*autograd.Tensor { return nil }

// spyDisc records the labels and inputs of every call.
type spyDisc struct {
	inner  model.Discriminator
	calls  [][]int
	inputs []*autograd.Tensor
}

func (s *spyDisc) Forward(x *autograd.Tensor, labels []int) (*autograd.Tensor, error) {
	s.calls = append(s.calls, append([]int(nil), labels...))
	s.inputs = append(s.inputs, x)
	return s.inner.Forward(x, labels)
}
func (s *spyDisc) Parameters() []*autograd.Tensor { return s.inner.Parameters() }

func scalarLinear(t *testing.T, w, b float64) *model.Linear {
	t.Helper()
	l, err := model.NewLinearFrom([][]float64{{w}}, []float64{b})
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	return l
}

func column(t *testing.T, values ...float64) *autograd.Tensor {
	t.Helper()
	x, err := autograd.New(values, len(values), 1)
	if err != nil {
		t.Fatalf("column: %v", err)
	}
	return x
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Optimizer = "sgd"
	opts.GeneratorLR = 0.1
	opts.DiscriminatorLR = 0.1
	opts.Seed = 7
	opts.Logger = quietLogger()
	opts.Out = io.Discard
	return opts
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func assertNear(t *testing.T, name string, got, want, eps float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Fatalf("%s: expected %.12f, got %.12f", name, want, got)
	}
}
