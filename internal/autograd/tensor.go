// Package autograd implements dense float64 tensors with reverse-mode
// automatic differentiation.
//
// Every backward rule is written in terms of the same differentiable ops the
// forward pass uses, so a gradient obtained with Grad(..., createGraph=true)
// is itself part of the graph and can be differentiated again. The gradient
// penalty of a Wasserstein critic depends on exactly that.
//
// Recording is process state toggled with WithGrad. Tensors are not safe for
// concurrent mutation.
package autograd

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrShapeMismatch reports incompatible tensor shapes.
	ErrShapeMismatch = errors.New("autograd: shape mismatch")
	// ErrNotDifferentiable reports a gradient request the graph cannot satisfy.
	ErrNotDifferentiable = errors.New("autograd: not differentiable")
)

// Tensor is a row-major dense array. A tensor is either a leaf (created by a
// constructor) or the output of a recorded op.
type Tensor struct {
	data  []float64
	shape []int

	requiresGrad bool
	grad         *Tensor

	op       string
	parents  []*Tensor
	backward func(g *Tensor) []*Tensor
}

func newTensor(data []float64, shape []int) *Tensor {
	return &Tensor{data: data, shape: append([]int(nil), shape...)}
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func validateShape(shape []int) error {
	for i, d := range shape {
		if d <= 0 {
			return fmt.Errorf("%w: dimension %d has size %d, must be positive", ErrShapeMismatch, i, d)
		}
	}
	return nil
}

// New copies data into a tensor of the given shape. An empty shape is a scalar.
func New(data []float64, shape ...int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if numel(shape) != len(data) {
		return nil, fmt.Errorf("%w: %d values do not fill shape %v", ErrShapeMismatch, len(data), shape)
	}
	return newTensor(append([]float64(nil), data...), shape), nil
}

// FromRows builds a (len(rows), len(rows[0])) matrix.
func FromRows(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty rows", ErrShapeMismatch)
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(row), width)
		}
		data = append(data, row...)
	}
	return newTensor(data, []int{len(rows), width}), nil
}

// Zeros returns a zero-filled tensor.
func Zeros(shape ...int) *Tensor {
	return newTensor(make([]float64, numel(shape)), shape)
}

// Full returns a tensor with every element set to v.
func Full(v float64, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// Scalar returns a zero-rank tensor holding v.
func Scalar(v float64) *Tensor {
	return newTensor([]float64{v}, nil)
}

// RandN draws independent standard-normal values.
func RandN(rng *rand.Rand, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = rng.NormFloat64()
	}
	return t
}

// Uniform draws independent values from [0, 1).
func Uniform(rng *rand.Rand, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = rng.Float64()
	}
	return t
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Dims returns the tensor rank.
func (t *Tensor) Dims() int {
	return len(t.shape)
}

// Rows returns the leading dimension, 1 for scalars.
func (t *Tensor) Rows() int {
	if len(t.shape) == 0 {
		return 1
	}
	return t.shape[0]
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data exposes the backing slice. Optimizers update parameters through it;
// mutating a tensor that is part of a live graph invalidates that graph.
func (t *Tensor) Data() []float64 {
	return t.data
}

// Item returns the single value of a one-element tensor.
func (t *Tensor) Item() float64 {
	if len(t.data) != 1 {
		panic(fmt.Errorf("%w: item of tensor with %d elements", ErrShapeMismatch, len(t.data)))
	}
	return t.data[0]
}

// At returns the element at the given flat index.
func (t *Tensor) At(i int) float64 {
	return t.data[i]
}

// Row returns a copy of the i-th example flattened to a vector.
func (t *Tensor) Row(i int) []float64 {
	width := len(t.data) / t.Rows()
	return append([]float64(nil), t.data[i*width:(i+1)*width]...)
}

// RequiresGrad reports whether ops on t are recorded for differentiation.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// SetRequiresGrad marks a leaf for gradient tracking.
func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// IsLeaf reports whether t was created outside of a recorded op.
func (t *Tensor) IsLeaf() bool {
	return t.parents == nil
}

// Grad returns the gradient accumulated by Backward, or nil.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// ZeroGrad drops the accumulated gradient.
func (t *Tensor) ZeroGrad() {
	t.grad = nil
}

// Detach returns a tensor sharing t's values with no graph history.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{data: t.data, shape: t.shape}
}

// Clone returns a detached deep copy.
func (t *Tensor) Clone() *Tensor {
	return newTensor(append([]float64(nil), t.data...), t.shape)
}

func (t *Tensor) String() string {
	if t.op != "" {
		return fmt.Sprintf("Tensor(shape=%v, op=%s, requires_grad=%t)", t.shape, t.op, t.requiresGrad)
	}
	return fmt.Sprintf("Tensor(shape=%v, requires_grad=%t)", t.shape, t.requiresGrad)
}

// SameShape reports whether a and b have identical dimensions.
func SameShape(a, b *Tensor) bool {
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}
