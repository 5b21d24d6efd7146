package buffer

import (
	"github.com/notargets/devbuf/device"
	"gonum.org/v1/gonum/mat"
)

// FromMatrix creates a double array holding m in column-major order, the
// layout device kernels index with j*rows+i.
func FromMatrix(dev device.Device, m mat.Matrix) *DoubleArray {
	rows, cols := m.Dims()
	a := NewDoubleArray(dev, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			a.data[j*rows+i] = m.At(i, j)
		}
	}
	return a
}

// ToDense reads the host copy of a, stored column-major, as a rows x cols
// matrix. The result does not alias the array.
func ToDense(a *DoubleArray, rows, cols int) (*mat.Dense, error) {
	if !a.IsOnHost() {
		return nil, invalidState("toDense", a.state, "not on host")
	}
	if rows <= 0 || cols <= 0 || rows*cols != a.count {
		return nil, mismatch("matrix size", rows*cols, a.count)
	}
	d := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d.Set(i, j, a.data[j*rows+i])
		}
	}
	return d, nil
}
