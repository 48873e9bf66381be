package algorithms

import (
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"

	"phash-degrade/internal/core"
)

// Axis is the direction of simulated motion.
type Axis string

const (
	// AxisVertical puts the kernel's weight on its center column.
	AxisVertical Axis = "vertical"
	// AxisHorizontal puts the kernel's weight on its center row.
	AxisHorizontal Axis = "horizontal"
)

func ParseAxis(s string) (Axis, error) {
	switch Axis(s) {
	case AxisVertical, AxisHorizontal:
		return Axis(s), nil
	}
	return "", core.NewError(core.ErrCodeInvalidParameter, "unknown motion axis %q (want %q or %q)", s, AxisVertical, AxisHorizontal)
}

// MotionKernel is a square line kernel normalized to sum to 1, stored
// row-major.
type MotionKernel struct {
	Size   int
	Axis   Axis
	Values []float64
}

// NewMotionKernel builds a size x size kernel whose only nonzero entries
// lie on the center line selected by axis, each equal to 1/size.
func NewMotionKernel(size int, axis Axis) (MotionKernel, error) {
	if size <= 0 || size%2 == 0 {
		return MotionKernel{}, core.NewError(core.ErrCodeInvalidParameter, "motion kernel size must be a positive odd integer, got %d", size)
	}
	if _, err := ParseAxis(string(axis)); err != nil {
		return MotionKernel{}, err
	}

	values := make([]float64, size*size)
	center := size / 2
	for i := 0; i < size; i++ {
		if axis == AxisVertical {
			values[i*size+center] = 1
		} else {
			values[center*size+i] = 1
		}
	}
	floats.Scale(1/floats.Sum(values), values)

	return MotionKernel{Size: size, Axis: axis, Values: values}, nil
}

func (k MotionKernel) At(row, col int) float64 {
	return k.Values[row*k.Size+col]
}

func (k MotionKernel) Sum() float64 {
	return floats.Sum(k.Values)
}

// Mat converts the kernel to a CV_32F Mat for filter2D. The caller owns the
// returned Mat.
func (k MotionKernel) Mat() gocv.Mat {
	m := gocv.NewMatWithSize(k.Size, k.Size, gocv.MatTypeCV32F)
	for row := 0; row < k.Size; row++ {
		for col := 0; col < k.Size; col++ {
			m.SetFloatAt(row, col, float32(k.At(row, col)))
		}
	}
	return m
}
