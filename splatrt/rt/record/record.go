// Package record defines the fixed 32-byte splat record and its codec.
//
// Layout (little-endian):
//
//	0..12   position  3 x float32
//	12..24  scale     3 x float32
//	24..28  color     RGBA uint8, alpha is opacity
//	28..32  rotation  quaternion, each component quantized v*128+128
//
// A dataset file is vertexCount consecutive records with no header.
package record

import (
	"encoding/binary"
	"math"
)

const (
	Stride = 3*4 + 3*4 + 4 + 4

	OffsetPosition = 0
	OffsetScale    = 12
	OffsetColor    = 24
	OffsetRotation = 28
)

type Record struct {
	Position [3]float32
	Scale    [3]float32
	Color    [4]uint8
	Rotation [4]uint8
}

// New allocates a zeroed buffer for n records.
func New(n int) []byte {
	return make([]byte, n*Stride)
}

// Count returns how many whole records fit in buf.
func Count(buf []byte) int {
	return len(buf) / Stride
}

// Decode reads record index from buf. Indexing past the end panics.
func Decode(buf []byte, index int) Record {
	slot := buf[index*Stride : index*Stride+Stride]
	var r Record
	for i := 0; i < 3; i++ {
		r.Position[i] = math.Float32frombits(binary.LittleEndian.Uint32(slot[OffsetPosition+i*4:]))
		r.Scale[i] = math.Float32frombits(binary.LittleEndian.Uint32(slot[OffsetScale+i*4:]))
	}
	copy(r.Color[:], slot[OffsetColor:OffsetColor+4])
	copy(r.Rotation[:], slot[OffsetRotation:OffsetRotation+4])
	return r
}

// Encode writes r into slot index of buf. Indexing past the end panics.
func Encode(buf []byte, index int, r Record) {
	slot := buf[index*Stride : index*Stride+Stride]
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(slot[OffsetPosition+i*4:], math.Float32bits(r.Position[i]))
		binary.LittleEndian.PutUint32(slot[OffsetScale+i*4:], math.Float32bits(r.Scale[i]))
	}
	copy(slot[OffsetColor:OffsetColor+4], r.Color[:])
	copy(slot[OffsetRotation:OffsetRotation+4], r.Rotation[:])
}

// Position reads only the center of record index; the sorter's hot loop.
func Position(buf []byte, index int) (x, y, z float32) {
	o := index * Stride
	x = math.Float32frombits(binary.LittleEndian.Uint32(buf[o:]))
	y = math.Float32frombits(binary.LittleEndian.Uint32(buf[o+4:]))
	z = math.Float32frombits(binary.LittleEndian.Uint32(buf[o+8:]))
	return
}

// ClampByte converts v to a byte with saturation: NaN and negatives give 0,
// values above 255 give 255, everything else truncates toward zero.
func ClampByte(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// QuantizeUnit maps a component in [-1,1] to a byte via v*128+128.
func QuantizeUnit(v float64) uint8 {
	return ClampByte(v*128 + 128)
}

// DequantizeUnit is the inverse of QuantizeUnit up to quantization error.
func DequantizeUnit(b uint8) float32 {
	return (float32(b) - 128) / 128
}

// QuantizeQuat quantizes an already normalized quaternion.
func QuantizeQuat(q [4]float64) [4]uint8 {
	return [4]uint8{QuantizeUnit(q[0]), QuantizeUnit(q[1]), QuantizeUnit(q[2]), QuantizeUnit(q[3])}
}
