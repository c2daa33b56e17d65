package core

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when a tensor's data length does not match its shape.
var ErrShapeMismatch = errors.New("tensor shape does not match data length")

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// IntTensor is a dense int64 tensor in row-major order.
type IntTensor struct {
	Shape []int64
	Data  []int64
}

// NewTensor wraps data with the given shape after checking the element count.
func NewTensor(data []float32, shape ...int64) (Tensor, error) {
	if elementCount(shape) != int64(len(data)) {
		return Tensor{}, fmt.Errorf("%w: shape %v, %d elements", ErrShapeMismatch, shape, len(data))
	}

	return Tensor{Shape: shape, Data: data}, nil
}

// NewIntTensor wraps data with the given shape after checking the element count.
func NewIntTensor(data []int64, shape ...int64) (IntTensor, error) {
	if elementCount(shape) != int64(len(data)) {
		return IntTensor{}, fmt.Errorf("%w: shape %v, %d elements", ErrShapeMismatch, shape, len(data))
	}

	return IntTensor{Shape: shape, Data: data}, nil
}

// Len returns the number of elements.
func (t Tensor) Len() int {
	return len(t.Data)
}

// Len returns the number of elements.
func (t IntTensor) Len() int {
	return len(t.Data)
}

func elementCount(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}

	count := int64(1)
	for _, dim := range shape {
		count *= dim
	}

	return count
}
