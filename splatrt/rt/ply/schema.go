package ply

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/gsplat"
)

// Field enumerates the vertex properties the decoder understands.
type Field int

const (
	FieldX Field = iota
	FieldY
	FieldZ
	FieldScale0
	FieldScale1
	FieldScale2
	FieldRot0
	FieldRot1
	FieldRot2
	FieldRot3
	FieldDC0
	FieldDC1
	FieldDC2
	FieldOpacity
	FieldRed
	FieldGreen
	FieldBlue

	fieldCount
)

var fieldNames = [fieldCount]string{
	"x", "y", "z",
	"scale_0", "scale_1", "scale_2",
	"rot_0", "rot_1", "rot_2", "rot_3",
	"f_dc_0", "f_dc_1", "f_dc_2",
	"opacity",
	"red", "green", "blue",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "unknown"
	}
	return fieldNames[f]
}

// Schema resolves column names to row offsets once per header.
type Schema struct {
	byName map[string]Column
	fields [fieldCount]Column
	has    [fieldCount]bool
	stride int
	order  binary.ByteOrder
}

func NewSchema(h *Header) *Schema {
	s := &Schema{
		byName: make(map[string]Column, len(h.Columns)),
		stride: h.Stride,
		order:  h.ByteOrder(),
	}
	for _, c := range h.Columns {
		s.byName[c.Name] = c
	}
	for f := Field(0); f < fieldCount; f++ {
		if c, ok := s.byName[fieldNames[f]]; ok {
			s.fields[f] = c
			s.has[f] = true
		}
	}
	return s
}

func (s *Schema) Has(f Field) bool {
	return s.has[f]
}

func (s *Schema) Lookup(name string) (Column, bool) {
	c, ok := s.byName[name]
	return c, ok
}

func (s *Schema) Stride() int {
	return s.stride
}

// Require fails with UnknownField on the first field in fs that the header
// does not declare.
func (s *Schema) Require(fs ...Field) error {
	for _, f := range fs {
		if !s.has[f] {
			return unknownField(f.String())
		}
	}
	return nil
}

// GetNamed reads an arbitrary declared column of row from body.
func (s *Schema) GetNamed(body []byte, row int, name string) (float64, error) {
	c, ok := s.byName[name]
	if !ok {
		return 0, unknownField(name)
	}
	return s.read(body, row, c), nil
}

// field reads f without checking; callers run Require first.
func (s *Schema) field(body []byte, row int, f Field) float64 {
	return s.read(body, row, s.fields[f])
}

func (s *Schema) read(body []byte, row int, c Column) float64 {
	p := body[row*s.stride+c.Offset:]
	switch c.Kind {
	case KindFloat:
		if c.Width == 8 {
			return math.Float64frombits(s.order.Uint64(p))
		}
		return float64(math.Float32frombits(s.order.Uint32(p)))
	case KindUint:
		switch c.Width {
		case 1:
			return float64(p[0])
		case 2:
			return float64(s.order.Uint16(p))
		default:
			return float64(s.order.Uint32(p))
		}
	default:
		switch c.Width {
		case 1:
			return float64(int8(p[0]))
		case 2:
			return float64(int16(s.order.Uint16(p)))
		default:
			return float64(int32(s.order.Uint32(p)))
		}
	}
}

func unknownField(name string) error {
	return gsplat.NewError(gsplat.ErrCodeUnknownField, "%s not found", name)
}
