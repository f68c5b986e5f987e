package ply

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

// SHC0 is the zeroth-order spherical harmonic basis constant.
const SHC0 = 0.28209479177387814

var (
	fallbackScale    = [3]float32{0.01, 0.01, 0.01}
	fallbackRotation = [4]uint8{255, 0, 0, 0}
)

type DecodeOptions struct {
	Logger gsplat.Logger
}

// Decode converts a PLY file into a packed record buffer. Records come out in
// descending importance order, not file order.
func Decode(b []byte) ([]byte, error) {
	return DecodeWithOptions(b, DecodeOptions{})
}

func DecodeWithOptions(b []byte, opts DecodeOptions) ([]byte, error) {
	logger := gsplat.OrNop(opts.Logger)

	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	logger.Debugf("ply: %d vertices, %d bytes per row, format %s", h.VertexCount, h.Stride, h.Format)

	body := b[h.BodyOffset:]
	if len(body) < h.BodySize() {
		return nil, gsplat.NewError(gsplat.ErrCodeBodyTruncated, "body holds %d bytes, header declares %d rows of %d bytes", len(body), h.VertexCount, h.Stride)
	}

	s := NewSchema(h)
	if h.VertexCount > 0 {
		if err := requiredFields(s); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	order := importanceOrder(s, body, h.VertexCount)
	logger.Debugf("ply: importance ordering took %s", time.Since(start))

	start = time.Now()
	out := record.New(h.VertexCount)
	for j, row := range order {
		record.Encode(out, j, packRow(s, body, int(row)))
	}
	logger.Debugf("ply: building buffer took %s", time.Since(start))

	return out, nil
}

// requiredFields checks up front every column packRow and importanceOrder
// will read, so the hot loops can use unchecked access.
func requiredFields(s *Schema) error {
	if err := s.Require(FieldX, FieldY, FieldZ); err != nil {
		return err
	}
	if s.Has(FieldScale0) {
		if err := s.Require(FieldScale1, FieldScale2, FieldOpacity, FieldRot0, FieldRot1, FieldRot2, FieldRot3); err != nil {
			return err
		}
	}
	if s.Has(FieldDC0) {
		return s.Require(FieldDC1, FieldDC2)
	}
	return s.Require(FieldRed, FieldGreen, FieldBlue)
}

// Importance is volume times opacity for one row, or 0 when the header has no
// scale columns.
func Importance(s *Schema, body []byte, row int) float32 {
	if !s.Has(FieldScale0) {
		return 0
	}
	size := math.Exp(s.field(body, row, FieldScale0)) *
		math.Exp(s.field(body, row, FieldScale1)) *
		math.Exp(s.field(body, row, FieldScale2))
	return float32(size * sigmoid(s.field(body, row, FieldOpacity)))
}

// importanceOrder returns row indices stably sorted by descending importance.
func importanceOrder(s *Schema, body []byte, n int) []uint32 {
	order := make([]uint32, n)
	for i := range order {
		order[i] = uint32(i)
	}
	if !s.Has(FieldScale0) {
		return order
	}

	sizes := make([]float32, n)
	for i := range sizes {
		sizes[i] = Importance(s, body, i)
	}
	slices.SortStableFunc(order, func(a, b uint32) int {
		return cmp.Compare(sizes[b], sizes[a])
	})
	return order
}

func packRow(s *Schema, body []byte, row int) record.Record {
	var r record.Record

	r.Position = [3]float32{
		float32(s.field(body, row, FieldX)),
		float32(s.field(body, row, FieldY)),
		float32(s.field(body, row, FieldZ)),
	}

	if s.Has(FieldScale0) {
		q := [4]float64{
			s.field(body, row, FieldRot0),
			s.field(body, row, FieldRot1),
			s.field(body, row, FieldRot2),
			s.field(body, row, FieldRot3),
		}
		// A zero-length quaternion divides to NaN and saturates to 0.
		qlen := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
		r.Rotation = record.QuantizeQuat([4]float64{q[0] / qlen, q[1] / qlen, q[2] / qlen, q[3] / qlen})

		r.Scale = [3]float32{
			float32(math.Exp(s.field(body, row, FieldScale0))),
			float32(math.Exp(s.field(body, row, FieldScale1))),
			float32(math.Exp(s.field(body, row, FieldScale2))),
		}
	} else {
		r.Scale = fallbackScale
		r.Rotation = fallbackRotation
	}

	if s.Has(FieldDC0) {
		r.Color[0] = record.ClampByte((0.5 + SHC0*s.field(body, row, FieldDC0)) * 255)
		r.Color[1] = record.ClampByte((0.5 + SHC0*s.field(body, row, FieldDC1)) * 255)
		r.Color[2] = record.ClampByte((0.5 + SHC0*s.field(body, row, FieldDC2)) * 255)
	} else {
		r.Color[0] = record.ClampByte(s.field(body, row, FieldRed))
		r.Color[1] = record.ClampByte(s.field(body, row, FieldGreen))
		r.Color[2] = record.ClampByte(s.field(body, row, FieldBlue))
	}

	if s.Has(FieldOpacity) {
		r.Color[3] = record.ClampByte(sigmoid(s.field(body, row, FieldOpacity)) * 255)
	} else {
		r.Color[3] = 255
	}
	return r
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
