package ply

import (
	"math"

	"github.com/gekko3d/gsplat"
)

// ColumnRange is the span of values one vertex property takes in a file.
type ColumnRange struct {
	Column   Column
	Min, Max float64
}

// Ranges scans every vertex row of b and reports the range of the named
// columns, or of every declared column in header order when names is empty.
// Naming a column the header does not declare fails with UnknownField.
func Ranges(b []byte, names ...string) ([]ColumnRange, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	body := b[h.BodyOffset:]
	if len(body) < h.BodySize() {
		return nil, gsplat.NewError(gsplat.ErrCodeBodyTruncated, "body holds %d bytes, header declares %d rows of %d bytes", len(body), h.VertexCount, h.Stride)
	}

	s := NewSchema(h)
	if len(names) == 0 {
		for _, c := range h.Columns {
			names = append(names, c.Name)
		}
	}
	out := make([]ColumnRange, len(names))
	for i, name := range names {
		c, ok := s.Lookup(name)
		if !ok {
			return nil, unknownField(name)
		}
		out[i] = ColumnRange{Column: c, Min: math.Inf(1), Max: math.Inf(-1)}
	}

	for row := 0; row < h.VertexCount; row++ {
		for i := range out {
			v, err := s.GetNamed(body, row, out[i].Column.Name)
			if err != nil {
				return nil, err
			}
			out[i].Min = math.Min(out[i].Min, v)
			out[i].Max = math.Max(out[i].Max, v)
		}
	}
	if h.VertexCount == 0 {
		for i := range out {
			out[i].Min, out[i].Max = 0, 0
		}
	}
	return out, nil
}
