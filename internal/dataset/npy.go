package dataset

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Array is a dense row-major EEG recording, typically (channels, timepoints).
type Array struct {
	Data  []float64
	Shape []int
}

// Len returns the number of values the shape describes.
func (a Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// DecodeNPY reads a C-ordered NumPy array of floats or integers.
func DecodeNPY(r io.Reader) (Array, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return Array{}, fmt.Errorf("npy header: %w", err)
	}
	if nr.Header.Descr.Fortran {
		return Array{}, fmt.Errorf("npy: fortran-ordered arrays are not supported")
	}
	arr := Array{Shape: append([]int(nil), nr.Header.Descr.Shape...)}
	if len(arr.Shape) == 0 {
		arr.Shape = []int{1}
	}
	switch nr.Header.Descr.Type {
	case "<f8", "f8":
		err = nr.Read(&arr.Data)
	case "<f4", "f4":
		var raw []float32
		if err = nr.Read(&raw); err == nil {
			arr.Data = widen(raw)
		}
	case "<i4", "i4":
		var raw []int32
		if err = nr.Read(&raw); err == nil {
			arr.Data = widen(raw)
		}
	case "<i2", "i2":
		var raw []int16
		if err = nr.Read(&raw); err == nil {
			arr.Data = widen(raw)
		}
	default:
		return Array{}, fmt.Errorf("npy: unsupported dtype %q", nr.Header.Descr.Type)
	}
	if err != nil {
		return Array{}, fmt.Errorf("npy data: %w", err)
	}
	if len(arr.Data) != arr.Len() {
		return Array{}, fmt.Errorf("npy: %d values for shape %v", len(arr.Data), arr.Shape)
	}
	return arr, nil
}

// EncodeNPY writes a one or two dimensional array as float64 .npy.
func EncodeNPY(w io.Writer, a Array) error {
	if len(a.Data) != a.Len() {
		return fmt.Errorf("npy: %d values for shape %v", len(a.Data), a.Shape)
	}
	switch len(a.Shape) {
	case 1:
		return npyio.Write(w, a.Data)
	case 2:
		return npyio.Write(w, mat.NewDense(a.Shape[0], a.Shape[1], a.Data))
	}
	return fmt.Errorf("npy: cannot encode rank %d array", len(a.Shape))
}

func decodeNPYBytes(payload []byte) (Array, error) {
	return DecodeNPY(bytes.NewReader(payload))
}

func widen[T float32 | int32 | int16](raw []T) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out
}
