package geoai

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TensorType is a KServe v2 tensor datatype
type TensorType string

const (
	TensorFloat32 TensorType = "FP32"
	TensorFloat16 TensorType = "FP16"
	TensorInt64   TensorType = "INT64"
	TensorInt32   TensorType = "INT32"
	TensorUint8   TensorType = "UINT8"
)

// Size of a single element in bytes
func (t TensorType) Size() int {
	switch t {
	case TensorFloat32, TensorInt32:
		return 4
	case TensorFloat16:
		return 2
	case TensorInt64:
		return 8
	case TensorUint8:
		return 1
	default:
		return 0
	}
}

// Tensor is a named dense tensor. Values of every datatype are held as
// float32 once decoded, the Type records the wire datatype.
type Tensor struct {
	Name  string
	Type  TensorType
	Shape []int64
	Data  []float32
}

// NewTensor creates an FP32 tensor, data must match the shape.
func NewTensor(name string, shape []int64, data []float32) Tensor {
	return Tensor{Name: name, Type: TensorFloat32, Shape: shape, Data: data}
}

// Rank returns the number of dimensions
func (t Tensor) Rank() int {
	return len(t.Shape)
}

// Elements returns the number of elements implied by the shape
func (t Tensor) Elements() int {

	n := 1

	for _, d := range t.Shape {
		n *= int(d)
	}

	return n
}

// WithBatchDim returns a copy of the tensor with a leading dimension of 1.
func (t Tensor) WithBatchDim() Tensor {
	shape := make([]int64, 0, len(t.Shape)+1)
	shape = append(shape, 1)
	shape = append(shape, t.Shape...)
	return Tensor{Name: t.Name, Type: t.Type, Shape: shape, Data: t.Data}
}

// String returns the tensor attributes formatted as a string
func (t Tensor) String() string {
	return fmt.Sprintf("name=%s, type=%s, shape=%v, n_elems=%d", t.Name, t.Type, t.Shape, len(t.Data))
}

// encodeFloat32 serialises FP32 data little endian as used by the binary
// tensor extension.
func encodeFloat32(data []float32) []byte {

	buf := make([]byte, 4*len(data))

	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}

	return buf
}

// decodeTensorData converts raw little endian tensor bytes of the given
// datatype to float32.
func decodeTensorData(t TensorType, raw []byte) ([]float32, error) {

	size := t.Size()

	if size == 0 {
		return nil, fmt.Errorf("unsupported tensor datatype %q", t)
	}

	if len(raw)%size != 0 {
		return nil, fmt.Errorf("tensor data of %d bytes is not a multiple of %d", len(raw), size)
	}

	n := len(raw) / size
	out := make([]float32, n)

	switch t {
	case TensorFloat32:
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	case TensorFloat16:
		decodeFP16(raw, out)
	case TensorInt64:
		for i := 0; i < n; i++ {
			out[i] = float32(int64(binary.LittleEndian.Uint64(raw[8*i:])))
		}
	case TensorInt32:
		for i := 0; i < n; i++ {
			out[i] = float32(int32(binary.LittleEndian.Uint32(raw[4*i:])))
		}
	case TensorUint8:
		for i := 0; i < n; i++ {
			out[i] = float32(raw[i])
		}
	}

	return out, nil
}
