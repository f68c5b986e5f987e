package record

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrideIs32(t *testing.T) {
	if Stride != 32 {
		t.Fatalf("Expected stride 32, got %d", Stride)
	}
	if OffsetRotation+4 != Stride {
		t.Errorf("Rotation must end the record, ends at %d", OffsetRotation+4)
	}
}

func TestEncodeDecode(t *testing.T) {
	buf := New(3)
	r := Record{
		Position: [3]float32{1, -2, 3.5},
		Scale:    [3]float32{0.1, 0.2, 0.3},
		Color:    [4]uint8{10, 20, 30, 40},
		Rotation: [4]uint8{255, 128, 0, 64},
	}
	Encode(buf, 1, r)

	assert.Equal(t, r, Decode(buf, 1))
	assert.Equal(t, Record{}, Decode(buf, 0), "neighbouring slots must be untouched")
	assert.Equal(t, Record{}, Decode(buf, 2), "neighbouring slots must be untouched")

	x, y, z := Position(buf, 1)
	assert.Equal(t, [3]float32{1, -2, 3.5}, [3]float32{x, y, z})
}

func TestLayoutOffsets(t *testing.T) {
	buf := New(1)
	Encode(buf, 0, Record{
		Position: [3]float32{1, 0, 0},
		Scale:    [3]float32{0, 0, 2},
		Color:    [4]uint8{1, 2, 3, 4},
		Rotation: [4]uint8{5, 6, 7, 8},
	})

	// float32(1) little-endian
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, buf[0:4])
	// float32(2) at the third scale component
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x40}, buf[20:24])
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[24:28])
	assert.Equal(t, []byte{5, 6, 7, 8}, buf[28:32])
}

func TestDecodeOutOfBoundsPanics(t *testing.T) {
	buf := New(2)
	require.Panics(t, func() { Decode(buf, 2) })
	require.Panics(t, func() { Encode(buf, 5, Record{}) })
}

func TestCount(t *testing.T) {
	assert.Equal(t, 0, Count(nil))
	assert.Equal(t, 2, Count(make([]byte, 64)))
	assert.Equal(t, 2, Count(make([]byte, 95)), "partial trailing record is not counted")
}

func TestClampByteSaturates(t *testing.T) {
	cases := []struct {
		in   float64
		want uint8
	}{
		{-5, 0},
		{0, 0},
		{127.5, 127},
		{254.9, 254},
		{105.92, 105},
		{255, 255},
		{256, 255},
		{1e9, 255},
		{math.NaN(), 0},
		{math.Inf(1), 255},
		{math.Inf(-1), 0},
	}
	for _, c := range cases {
		if got := ClampByte(c.in); got != c.want {
			t.Errorf("ClampByte(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestQuantizeUnit(t *testing.T) {
	assert.Equal(t, uint8(255), QuantizeUnit(1), "1*128+128 = 256 saturates")
	assert.Equal(t, uint8(128), QuantizeUnit(0))
	assert.Equal(t, uint8(0), QuantizeUnit(-1))
	assert.Equal(t, uint8(192), QuantizeUnit(0.5))
	assert.Equal(t, uint8(204), QuantizeUnit(0.6), "204.8 truncates, it is not rounded")

	assert.InDelta(t, 0.0, DequantizeUnit(128), 1e-6)
	assert.InDelta(t, -1.0, DequantizeUnit(0), 1e-6)
	assert.InDelta(t, 127.0/128.0, DequantizeUnit(255), 1e-6)
}

func TestQuantizeQuat(t *testing.T) {
	q := QuantizeQuat([4]float64{1, 0, 0, 0})
	assert.Equal(t, [4]uint8{255, 128, 128, 128}, q)
}
