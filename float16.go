package geoai

import (
	"encoding/binary"

	"github.com/x448/float16"
)

// fp16Table maps every FP16 bit pattern to its float32 value
var fp16Table = func() *[1 << 16]float32 {
	var t [1 << 16]float32

	for i := range t {
		t[i] = float16.Frombits(uint16(i)).Float32()
	}

	return &t
}()

// decodeFP16 converts little endian FP16 tensor data returned by the model
// server to float32
func decodeFP16(raw []byte, out []float32) {
	for i := range out {
		out[i] = fp16Table[binary.LittleEndian.Uint16(raw[2*i:])]
	}
}
