package autograd

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Kernels panic on shape misuse, as gonum/mat does. Callers that accept
// external input validate shapes first and return ErrShapeMismatch.

func shapePanic(format string, args ...any) {
	panic(fmt.Errorf("%w: "+format, append([]any{ErrShapeMismatch}, args...)...))
}

func mustSameShape(op string, a, b *Tensor) {
	if !SameShape(a, b) {
		shapePanic("%s of %v and %v", op, a.shape, b.shape)
	}
}

func mustRank(op string, t *Tensor, rank int) {
	if len(t.shape) != rank {
		shapePanic("%s needs rank %d, got shape %v", op, rank, t.shape)
	}
}

// Add returns a + b.
func Add(a, b *Tensor) *Tensor {
	mustSameShape("add", a, b)
	out := newTensor(floats.AddTo(make([]float64, len(a.data)), a.data, b.data), a.shape)
	return record(out, "add", []*Tensor{a, b}, func(g *Tensor) []*Tensor {
		return []*Tensor{g, g}
	})
}

// Sub returns a - b.
func Sub(a, b *Tensor) *Tensor {
	mustSameShape("sub", a, b)
	out := newTensor(floats.SubTo(make([]float64, len(a.data)), a.data, b.data), a.shape)
	return record(out, "sub", []*Tensor{a, b}, func(g *Tensor) []*Tensor {
		return []*Tensor{g, Neg(g)}
	})
}

// Mul returns the elementwise product a * b.
func Mul(a, b *Tensor) *Tensor {
	mustSameShape("mul", a, b)
	out := newTensor(floats.MulTo(make([]float64, len(a.data)), a.data, b.data), a.shape)
	return record(out, "mul", []*Tensor{a, b}, func(g *Tensor) []*Tensor {
		return []*Tensor{Mul(g, b), Mul(g, a)}
	})
}

// Scale returns c * a.
func Scale(a *Tensor, c float64) *Tensor {
	out := newTensor(floats.ScaleTo(make([]float64, len(a.data)), c, a.data), a.shape)
	return record(out, "scale", []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Scale(g, c)}
	})
}

// Neg returns -a.
func Neg(a *Tensor) *Tensor {
	return Scale(a, -1)
}

// AddScalar returns a + c.
func AddScalar(a *Tensor, c float64) *Tensor {
	data := append([]float64(nil), a.data...)
	floats.AddConst(c, data)
	out := newTensor(data, a.shape)
	return record(out, "add_scalar", []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{g}
	})
}

// Pow raises every element to p.
func Pow(a *Tensor, p float64) *Tensor {
	data := make([]float64, len(a.data))
	for i, v := range a.data {
		data[i] = math.Pow(v, p)
	}
	out := newTensor(data, a.shape)
	return record(out, "pow", []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Mul(g, Scale(Pow(a, p-1), p))}
	})
}

// Sum reduces every element to a scalar.
func Sum(a *Tensor) *Tensor {
	out := newTensor([]float64{floats.Sum(a.data)}, nil)
	shape := a.shape
	return record(out, "sum", []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Expand(g, shape...)}
	})
}

// Mean averages every element to a scalar.
func Mean(a *Tensor) *Tensor {
	return Scale(Sum(a), 1/float64(len(a.data)))
}

// Expand broadcasts a one-element tensor to shape.
func Expand(s *Tensor, shape ...int) *Tensor {
	if len(s.data) != 1 {
		shapePanic("expand of %v", s.shape)
	}
	out := Full(s.data[0], shape...)
	return record(out, "expand", []*Tensor{s}, func(g *Tensor) []*Tensor {
		return []*Tensor{Reshape(Sum(g), s.shape...)}
	})
}

// RowSum sums each example, reducing (B, ...) to (B).
func RowSum(x *Tensor) *Tensor {
	rows := x.Rows()
	width := len(x.data) / rows
	data := make([]float64, rows)
	for b := 0; b < rows; b++ {
		data[b] = floats.Sum(x.data[b*width : (b+1)*width])
	}
	out := newTensor(data, []int{rows})
	shape := x.shape
	return record(out, "row_sum", []*Tensor{x}, func(g *Tensor) []*Tensor {
		return []*Tensor{ExpandRows(g, shape...)}
	})
}

// ExpandRows broadcasts v of shape (B) to shape (B, ...).
func ExpandRows(v *Tensor, shape ...int) *Tensor {
	if len(shape) == 0 || len(v.data) != shape[0] {
		shapePanic("expand rows of %v to %v", v.shape, shape)
	}
	out := Zeros(shape...)
	width := len(out.data) / shape[0]
	for b, val := range v.data {
		row := out.data[b*width : (b+1)*width]
		for j := range row {
			row[j] = val
		}
	}
	vShape := v.shape
	return record(out, "expand_rows", []*Tensor{v}, func(g *Tensor) []*Tensor {
		return []*Tensor{Reshape(RowSum(g), vShape...)}
	})
}

// MulRows scales every example x[b] by a[b].
func MulRows(x, a *Tensor) *Tensor {
	rows := x.Rows()
	if len(a.data) != rows {
		shapePanic("mul rows of %v by %v", x.shape, a.shape)
	}
	width := len(x.data) / rows
	data := make([]float64, len(x.data))
	for b := 0; b < rows; b++ {
		floats.ScaleTo(data[b*width:(b+1)*width], a.data[b], x.data[b*width:(b+1)*width])
	}
	out := newTensor(data, x.shape)
	aShape := a.shape
	return record(out, "mul_rows", []*Tensor{x, a}, func(g *Tensor) []*Tensor {
		return []*Tensor{MulRows(g, a), Reshape(RowSum(Mul(g, x)), aShape...)}
	})
}

// ColSum reduces a (n, m) matrix to its m column sums.
func ColSum(x *Tensor) *Tensor {
	mustRank("col sum", x, 2)
	n, m := x.shape[0], x.shape[1]
	data := make([]float64, m)
	for i := 0; i < n; i++ {
		floats.Add(data, x.data[i*m:(i+1)*m])
	}
	out := newTensor(data, []int{m})
	return record(out, "col_sum", []*Tensor{x}, func(g *Tensor) []*Tensor {
		return []*Tensor{RepeatRows(g, n)}
	})
}

// RepeatRows stacks the vector v n times into a (n, len(v)) matrix.
func RepeatRows(v *Tensor, n int) *Tensor {
	mustRank("repeat rows", v, 1)
	m := v.shape[0]
	data := make([]float64, n*m)
	for i := 0; i < n; i++ {
		copy(data[i*m:(i+1)*m], v.data)
	}
	out := newTensor(data, []int{n, m})
	return record(out, "repeat_rows", []*Tensor{v}, func(g *Tensor) []*Tensor {
		return []*Tensor{ColSum(g)}
	})
}

// MatMul multiplies a (m, k) by b (k, n).
func MatMul(a, b *Tensor) *Tensor {
	mustRank("matmul", a, 2)
	mustRank("matmul", b, 2)
	if a.shape[1] != b.shape[0] {
		shapePanic("matmul of %v and %v", a.shape, b.shape)
	}
	m, k, n := a.shape[0], a.shape[1], b.shape[1]
	var c mat.Dense
	c.Mul(mat.NewDense(m, k, a.data), mat.NewDense(k, n, b.data))
	out := newTensor(denseData(&c), []int{m, n})
	return record(out, "matmul", []*Tensor{a, b}, func(g *Tensor) []*Tensor {
		return []*Tensor{MatMul(g, Transpose(b)), MatMul(Transpose(a), g)}
	})
}

func denseData(d *mat.Dense) []float64 {
	raw := d.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}
	data := make([]float64, 0, raw.Rows*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		data = append(data, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols]...)
	}
	return data
}

// Transpose swaps the axes of a matrix.
func Transpose(a *Tensor) *Tensor {
	mustRank("transpose", a, 2)
	r, c := a.shape[0], a.shape[1]
	data := make([]float64, len(a.data))
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[j*r+i] = a.data[i*c+j]
		}
	}
	out := newTensor(data, []int{c, r})
	return record(out, "transpose", []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Transpose(g)}
	})
}

// Reshape returns a with new dimensions and the same elements.
func Reshape(a *Tensor, shape ...int) *Tensor {
	if numel(shape) != len(a.data) || validateShape(shape) != nil {
		shapePanic("reshape %v to %v", a.shape, shape)
	}
	out := newTensor(a.data, shape)
	from := a.shape
	return record(out, "reshape", []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Reshape(g, from...)}
	})
}

// Flatten keeps the leading dimension and folds the rest: (B, ...) -> (B, F).
func Flatten(a *Tensor) *Tensor {
	rows := a.Rows()
	return Reshape(a, rows, len(a.data)/rows)
}

// ConcatCols joins two matrices with the same number of rows side by side.
func ConcatCols(a, b *Tensor) *Tensor {
	mustRank("concat", a, 2)
	mustRank("concat", b, 2)
	if a.shape[0] != b.shape[0] {
		shapePanic("concat of %v and %v", a.shape, b.shape)
	}
	rows, wa, wb := a.shape[0], a.shape[1], b.shape[1]
	w := wa + wb
	data := make([]float64, rows*w)
	for i := 0; i < rows; i++ {
		copy(data[i*w:i*w+wa], a.data[i*wa:(i+1)*wa])
		copy(data[i*w+wa:(i+1)*w], b.data[i*wb:(i+1)*wb])
	}
	out := newTensor(data, []int{rows, w})
	return record(out, "concat", []*Tensor{a, b}, func(g *Tensor) []*Tensor {
		return []*Tensor{SliceCols(g, 0, wa), SliceCols(g, wa, w)}
	})
}

// SliceCols keeps columns [lo, hi) of a matrix.
func SliceCols(x *Tensor, lo, hi int) *Tensor {
	mustRank("slice", x, 2)
	rows, w := x.shape[0], x.shape[1]
	if lo < 0 || hi > w || lo >= hi {
		shapePanic("slice [%d, %d) of %v", lo, hi, x.shape)
	}
	n := hi - lo
	data := make([]float64, rows*n)
	for i := 0; i < rows; i++ {
		copy(data[i*n:(i+1)*n], x.data[i*w+lo:i*w+hi])
	}
	out := newTensor(data, []int{rows, n})
	return record(out, "slice", []*Tensor{x}, func(g *Tensor) []*Tensor {
		return []*Tensor{PadCols(g, lo, w)}
	})
}

// PadCols places x at column offset lo of a zero matrix with total columns.
func PadCols(x *Tensor, lo, total int) *Tensor {
	mustRank("pad", x, 2)
	rows, n := x.shape[0], x.shape[1]
	if lo < 0 || lo+n > total {
		shapePanic("pad %v at %d to width %d", x.shape, lo, total)
	}
	data := make([]float64, rows*total)
	for i := 0; i < rows; i++ {
		copy(data[i*total+lo:i*total+lo+n], x.data[i*n:(i+1)*n])
	}
	out := newTensor(data, []int{rows, total})
	return record(out, "pad", []*Tensor{x}, func(g *Tensor) []*Tensor {
		return []*Tensor{SliceCols(g, lo, lo+n)}
	})
}

// LeakyReLU applies max(x, slope*x) elementwise.
func LeakyReLU(x *Tensor, slope float64) *Tensor {
	data := make([]float64, len(x.data))
	mask := make([]float64, len(x.data))
	for i, v := range x.data {
		mask[i] = slope
		if v > 0 {
			mask[i] = 1
		}
		data[i] = v * mask[i]
	}
	out := newTensor(data, x.shape)
	local := newTensor(mask, x.shape)
	return record(out, "leaky_relu", []*Tensor{x}, func(g *Tensor) []*Tensor {
		return []*Tensor{Mul(g, local)}
	})
}

// Tanh applies the hyperbolic tangent elementwise.
func Tanh(x *Tensor) *Tensor {
	data := make([]float64, len(x.data))
	for i, v := range x.data {
		data[i] = math.Tanh(v)
	}
	out := newTensor(data, x.shape)
	return record(out, "tanh", []*Tensor{x}, func(g *Tensor) []*Tensor {
		return []*Tensor{Mul(g, AddScalar(Neg(Mul(out, out)), 1))}
	})
}
