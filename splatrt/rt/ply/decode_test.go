package ply

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

// plyFile assembles a binary PLY with float properties (or the declared
// types) for tests.
type plyFile struct {
	format string
	props  []string // "type name"
	rows   [][]float64
	extra  string // lines inserted before end_header
}

func (p plyFile) bytes(t *testing.T) []byte {
	t.Helper()
	format := p.format
	if format == "" {
		format = FormatBinaryLittleEndian
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ply\nformat %s 1.0\nelement vertex %d\n", format, len(p.rows))
	for _, prop := range p.props {
		fmt.Fprintf(&buf, "property %s\n", prop)
	}
	buf.WriteString(p.extra)
	buf.WriteString("end_header\n")

	var order binary.ByteOrder = binary.LittleEndian
	if format == FormatBinaryBigEndian {
		order = binary.BigEndian
	}
	for _, row := range p.rows {
		require.Len(t, row, len(p.props))
		for i, v := range row {
			var typ, name string
			fmt.Sscanf(p.props[i], "%s %s", &typ, &name)
			switch typ {
			case "float":
				binary.Write(&buf, order, float32(v))
			case "double":
				binary.Write(&buf, order, v)
			case "uchar":
				buf.WriteByte(byte(v))
			case "short":
				binary.Write(&buf, order, int16(v))
			case "uint":
				binary.Write(&buf, order, uint32(v))
			default:
				t.Fatalf("unsupported test type %q", typ)
			}
		}
	}
	return buf.Bytes()
}

var gaussianProps = []string{
	"float x", "float y", "float z",
	"float f_dc_0", "float f_dc_1", "float f_dc_2",
	"float opacity",
	"float scale_0", "float scale_1", "float scale_2",
	"float rot_0", "float rot_1", "float rot_2", "float rot_3",
}

// gaussianRow orders values as gaussianProps.
func gaussianRow(x, y, z, dc, opacity, scale float64, rot [4]float64) []float64 {
	return []float64{x, y, z, dc, dc, dc, opacity, scale, scale, scale, rot[0], rot[1], rot[2], rot[3]}
}

func TestHasMagic(t *testing.T) {
	assert.True(t, HasMagic([]byte{112, 108, 121, 10, 0}))
	assert.False(t, HasMagic([]byte("ply")))
	assert.False(t, HasMagic([]byte("ply\r\n")))
	assert.False(t, HasMagic(make([]byte, 64)))
}

func TestDecodeRoundTripValues(t *testing.T) {
	data := plyFile{
		props: gaussianProps,
		rows:  [][]float64{gaussianRow(1, 2, 3, 0, 0, 0, [4]float64{1, 0, 0, 0})},
	}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, out, record.Stride)

	r := record.Decode(out, 0)
	assert.Equal(t, [3]float32{1, 2, 3}, r.Position)
	assert.Equal(t, [3]float32{1, 1, 1}, r.Scale)
	for i := 0; i < 3; i++ {
		assert.Contains(t, []uint8{127, 128}, r.Color[i], "channel %d", i)
	}
	assert.Equal(t, uint8(127), r.Color[3], "sigmoid(0)*255 = 127.5")
	assert.Equal(t, [4]uint8{255, 128, 128, 128}, r.Rotation)
}

func TestDecodeNormalizesQuaternion(t *testing.T) {
	data := plyFile{
		props: gaussianProps,
		rows:  [][]float64{gaussianRow(0, 0, 0, 0, 0, 0, [4]float64{0, 0, 2, 0})},
	}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, [4]uint8{128, 128, 255, 128}, record.Decode(out, 0).Rotation)
}

func TestDecodeZeroQuaternionPropagates(t *testing.T) {
	data := plyFile{
		props: gaussianProps,
		rows:  [][]float64{gaussianRow(0, 0, 0, 0, 0, 0, [4]float64{0, 0, 0, 0})},
	}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err, "a zero-length quaternion is tolerated")
	assert.Equal(t, [4]uint8{0, 0, 0, 0}, record.Decode(out, 0).Rotation)
}

func TestDecodeMissingScaleFallback(t *testing.T) {
	data := plyFile{
		props: []string{
			"float x", "float y", "float z",
			"float rot_0", "float rot_1", "float rot_2", "float rot_3",
			"uchar red", "uchar green", "uchar blue",
		},
		rows: [][]float64{{4, 5, 6, 0, 1, 0, 0, 10, 20, 30}},
	}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err)
	r := record.Decode(out, 0)
	assert.Equal(t, [3]float32{0.01, 0.01, 0.01}, r.Scale)
	assert.Equal(t, [4]uint8{255, 0, 0, 0}, r.Rotation)
	assert.Equal(t, [4]uint8{10, 20, 30, 255}, r.Color, "raw RGB and opaque alpha without SH/opacity")
	assert.Equal(t, [3]float32{4, 5, 6}, r.Position)
}

func TestDecodeImportanceOrdering(t *testing.T) {
	// exp(s)^3 * sigmoid(op); choose s so the scores are 1.0 and 5.0
	// with a very large opacity (sigmoid ~ 1).
	low := math.Log(1.0) / 3
	high := math.Log(5.0) / 3
	data := plyFile{
		props: gaussianProps,
		rows: [][]float64{
			gaussianRow(1, 0, 0, 0, 40, low, [4]float64{1, 0, 0, 0}),
			gaussianRow(2, 0, 0, 0, 40, high, [4]float64{1, 0, 0, 0}),
		},
	}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, float32(2), record.Decode(out, 0).Position[0], "score 5.0 comes first")
	assert.Equal(t, float32(1), record.Decode(out, 1).Position[0])
}

func TestDecodeImportanceIsStable(t *testing.T) {
	rows := make([][]float64, 0, 6)
	for i := 0; i < 6; i++ {
		rows = append(rows, gaussianRow(float64(i), 0, 0, 0, 1, 0, [4]float64{1, 0, 0, 0}))
	}
	data := plyFile{props: gaussianProps, rows: rows}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		if got := record.Decode(out, i).Position[0]; got != float32(i) {
			t.Errorf("record %d: expected x=%d for equal scores, got %v", i, i, got)
		}
	}

	again, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, out, again, "decoding must be deterministic")
}

func TestDecodeWithoutScaleKeepsFileOrder(t *testing.T) {
	data := plyFile{
		props: []string{"float x", "float y", "float z", "uchar red", "uchar green", "uchar blue"},
		rows:  [][]float64{{3, 0, 0, 1, 1, 1}, {1, 0, 0, 1, 1, 1}, {2, 0, 0, 1, 1, 1}},
	}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, float32(3), record.Decode(out, 0).Position[0])
	assert.Equal(t, float32(1), record.Decode(out, 1).Position[0])
	assert.Equal(t, float32(2), record.Decode(out, 2).Position[0])
}

func TestDecodeMissingTerminator(t *testing.T) {
	_, err := Decode([]byte("ply\nformat binary_little_endian 1.0\nelement vertex 1\nproperty float x\n"))
	require.Error(t, err)
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeHeaderMalformed), "got %v", err)
}

func TestDecodeTerminatorBeyondSearchLimit(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("ply\nformat binary_little_endian 1.0\nelement vertex 0\n")
	for buf.Len() < HeaderSearchLimit {
		buf.WriteString("comment padding padding padding padding\n")
	}
	buf.WriteString("end_header\n")

	_, err := Decode(buf.Bytes())
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeHeaderMalformed), "got %v", err)
}

func TestDecodeMissingVertexElement(t *testing.T) {
	_, err := Decode([]byte("ply\nformat binary_little_endian 1.0\nend_header\n"))
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeHeaderMalformed), "got %v", err)
}

func TestDecodeUnknownField(t *testing.T) {
	data := plyFile{
		props: []string{"float x", "float y", "float z", "float scale_0", "float scale_1", "float scale_2"},
		rows:  [][]float64{{0, 0, 0, 0, 0, 0}},
	}.bytes(t)

	out, err := Decode(data)
	require.Error(t, err)
	assert.Nil(t, out, "no partial buffer on failure")
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeUnknownField), "got %v", err)
	assert.Contains(t, err.Error(), "opacity not found")
}

func TestDecodeTruncatedBody(t *testing.T) {
	data := plyFile{
		props: gaussianProps,
		rows:  [][]float64{gaussianRow(1, 2, 3, 0, 0, 0, [4]float64{1, 0, 0, 0})},
	}.bytes(t)

	_, err := Decode(data[:len(data)-4])
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeBodyTruncated), "got %v", err)
}

func TestDecodeBigEndian(t *testing.T) {
	data := plyFile{
		format: FormatBinaryBigEndian,
		props:  gaussianProps,
		rows:   [][]float64{gaussianRow(1, 2, 3, 0, 0, 0, [4]float64{1, 0, 0, 0})},
	}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{1, 2, 3}, record.Decode(out, 0).Position)
}

func TestDecodeASCIIUnsupported(t *testing.T) {
	_, err := Decode([]byte("ply\nformat ascii 1.0\nelement vertex 0\nend_header\n"))
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeUnsupportedFormat), "got %v", err)
}

func TestDecodeEmpty(t *testing.T) {
	out, err := Decode([]byte("ply\nformat binary_little_endian 1.0\nelement vertex 0\nend_header\n"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeMixedTypes(t *testing.T) {
	data := plyFile{
		props: []string{"double x", "short y", "uint z", "uchar red", "uchar green", "uchar blue"},
		rows:  [][]float64{{1.5, -7, 9, 1, 2, 3}},
	}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err)
	r := record.Decode(out, 0)
	assert.Equal(t, [3]float32{1.5, -7, 9}, r.Position)
	assert.Equal(t, [4]uint8{1, 2, 3, 255}, r.Color)
}

func TestDecodeIgnoresFaceProperties(t *testing.T) {
	data := plyFile{
		props: []string{"float x", "float y", "float z", "uchar red", "uchar green", "uchar blue"},
		rows:  [][]float64{{1, 2, 3, 4, 5, 6}},
		extra: "element face 0\nproperty list uchar int vertex_indices\n",
	}.bytes(t)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{1, 2, 3}, record.Decode(out, 0).Position)
}

func TestDecodeLogsTimings(t *testing.T) {
	var logs bytes.Buffer
	logger := gsplat.NewLoggerTo(&logs, "ply", true)
	data := plyFile{
		props: gaussianProps,
		rows:  [][]float64{gaussianRow(1, 2, 3, 0, 0, 0, [4]float64{1, 0, 0, 0})},
	}.bytes(t)

	_, err := DecodeWithOptions(data, DecodeOptions{Logger: logger})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "importance ordering")
	assert.Contains(t, logs.String(), "building buffer")
}
