package geoai

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Batch packs tiles into a single NCHW float32 tensor scaled to [0,1] in RGB
// channel order, the input layout of every supported model.
type Batch struct {
	data []float32
	// name of the model input
	name string
	// size of the batch
	size int
	// width is the input tensor size width
	width int
	// height is the input tensor size height
	height int
	// channels is the input tensor number of channels
	channels int
	// matCnt is a counter for how many Mats have been added with Add()
	matCnt int
	// imgSize stores an images size made up from its elements
	imgSize int
}

// NewBatch creates a batch for the named model input of batchSize images of
// height x width.
func NewBatch(name string, batchSize, height, width int) *Batch {

	channels := 3

	return &Batch{
		data:     make([]float32, batchSize*channels*height*width),
		name:     name,
		size:     batchSize,
		height:   height,
		width:    width,
		channels: channels,
		imgSize:  channels * height * width,
	}
}

// Add a BGR Mat to the batch
func (b *Batch) Add(img gocv.Mat) error {

	// check if batch is full
	if b.matCnt >= b.size {
		return fmt.Errorf("batch full")
	}

	res := b.addAt(b.matCnt, img)

	if res != nil {
		return res
	}

	// increment image counter
	b.matCnt++
	return nil
}

// AddAt adds a Mat to the batch at the specific index location
func (b *Batch) AddAt(idx int, img gocv.Mat) error {

	if idx < 0 || idx >= b.size {
		return fmt.Errorf("index %d out of range [0-%d)", idx, b.size)
	}

	return b.addAt(idx, img)
}

// addAt adds a Mat to the specified index location
func (b *Batch) addAt(idx int, img gocv.Mat) error {

	// validate mat dimensions
	if img.Rows() != b.height || img.Cols() != b.width ||
		img.Channels() != b.channels {
		return fmt.Errorf("image does not match batch shape")
	}

	// scale to [0,1], swap BGR to RGB and reorder to channels first
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(b.width, b.height),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	src, err := blob.DataPtrFloat32()

	if err != nil {
		return fmt.Errorf("error getting float32 data from blob: %w", err)
	}

	offset := idx * b.imgSize
	copy(b.data[offset:offset+b.imgSize], src)

	return nil
}

// Count returns the number of images added
func (b *Batch) Count() int {
	return b.matCnt
}

// Full reports whether the batch has no free slot
func (b *Batch) Full() bool {
	return b.matCnt >= b.size
}

// Tensor returns the packed images. A batch of size one produces a
// (3, H, W) tensor, larger batches (N, 3, H, W) with N the images added.
func (b *Batch) Tensor() Tensor {

	n := b.matCnt
	data := b.data[:n*b.imgSize]

	if b.size == 1 {
		return NewTensor(b.name, []int64{int64(b.channels), int64(b.height), int64(b.width)}, data)
	}

	return NewTensor(b.name,
		[]int64{int64(n), int64(b.channels), int64(b.height), int64(b.width)}, data)
}

// Clear the batch so it can be reused again
func (b *Batch) Clear() {
	// just reset the counter, the data is overwritten by the next Add()
	b.matCnt = 0
}

// GetOutputF32 returns the part of a batched output tensor belonging to
// image idx. The returned tensor keeps a leading batch dimension of 1.
func GetOutputF32(idx int, output Tensor) (Tensor, error) {

	if output.Rank() == 0 {
		return Tensor{}, fmt.Errorf("output %s has no dimensions", output.Name)
	}

	n := int(output.Shape[0])

	if idx < 0 || idx >= n {
		return Tensor{}, fmt.Errorf("index %d out of range [0-%d)", idx, n)
	}

	size := len(output.Data) / n
	offset := idx * size

	shape := append([]int64{1}, output.Shape[1:]...)

	return Tensor{
		Name:  output.Name,
		Type:  output.Type,
		Shape: shape,
		Data:  output.Data[offset : offset+size],
	}, nil
}
