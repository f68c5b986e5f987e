package ply

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/gekko3d/gsplat"
)

const (
	// HeaderSearchLimit bounds how far into the input the header terminator
	// is searched for.
	HeaderSearchLimit = 10 * 1024

	headerEnd = "end_header\n"

	FormatBinaryLittleEndian = "binary_little_endian"
	FormatBinaryBigEndian    = "binary_big_endian"
	FormatASCII              = "ascii"
)

// Magic is the four-byte prefix that selects the PLY decode path.
var Magic = []byte{'p', 'l', 'y', '\n'}

// HasMagic reports whether b starts with "ply\n". Anything else is treated as
// an already packed record buffer.
func HasMagic(b []byte) bool {
	return len(b) >= len(Magic) && bytes.Equal(b[:len(Magic)], Magic)
}

type Kind uint8

const (
	KindInt Kind = iota
	KindUint
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	default:
		return "int"
	}
}

type scalarType struct {
	width int
	kind  Kind
}

var typeTable = map[string]scalarType{
	"double":  {8, KindFloat},
	"float64": {8, KindFloat},
	"int":     {4, KindInt},
	"int32":   {4, KindInt},
	"uint":    {4, KindUint},
	"uint32":  {4, KindUint},
	"float":   {4, KindFloat},
	"float32": {4, KindFloat},
	"short":   {2, KindInt},
	"int16":   {2, KindInt},
	"ushort":  {2, KindUint},
	"uint16":  {2, KindUint},
	"uchar":   {1, KindUint},
	"uint8":   {1, KindUint},
}

// lookupType resolves a declared property type. Unknown names decode as a
// one-byte signed integer.
func lookupType(name string) scalarType {
	if t, ok := typeTable[name]; ok {
		return t
	}
	return scalarType{1, KindInt}
}

// Column is one declared vertex property with its position inside a row.
type Column struct {
	Name   string
	Type   string
	Offset int
	Width  int
	Kind   Kind
}

type Header struct {
	Format      string
	Version     string
	VertexCount int
	Columns     []Column
	// Stride is the byte size of one vertex row.
	Stride int
	// BodyOffset is the index of the first body byte in the input.
	BodyOffset int
	Comments   []string
}

// ByteOrder returns the body byte order named by the format line.
func (h *Header) ByteOrder() binary.ByteOrder {
	if h.Format == FormatBinaryBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// BodySize is the number of bytes the vertex body occupies.
func (h *Header) BodySize() int {
	return h.VertexCount * h.Stride
}

// ParseHeader reads the textual header at the start of b.
func ParseHeader(b []byte) (*Header, error) {
	limit := len(b)
	if limit > HeaderSearchLimit {
		limit = HeaderSearchLimit
	}
	text := string(b[:limit])
	end := strings.Index(text, headerEnd)
	if end < 0 {
		return nil, gsplat.NewError(gsplat.ErrCodeHeaderMalformed, "unable to read .ply file header: no %q in the first %d bytes", strings.TrimSpace(headerEnd), HeaderSearchLimit)
	}

	h := &Header{
		Format:      FormatBinaryLittleEndian,
		VertexCount: -1,
		BodyOffset:  end + len(headerEnd),
	}

	element := ""
	precedingRows := 0
	for _, line := range strings.Split(text[:end], "\n") {
		line = strings.TrimRight(line, "\r")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, gsplat.NewError(gsplat.ErrCodeHeaderMalformed, "format line without a format: %q", line)
			}
			h.Format = fields[1]
			if len(fields) > 2 {
				h.Version = fields[2]
			}
		case "comment", "obj_info":
			h.Comments = append(h.Comments, strings.TrimSpace(strings.TrimPrefix(line, fields[0])))
		case "element":
			if len(fields) < 3 {
				return nil, gsplat.NewError(gsplat.ErrCodeHeaderMalformed, "element line needs a name and a count: %q", line)
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, gsplat.WrapError(gsplat.ErrCodeHeaderMalformed, err, "bad element count in %q", line)
			}
			element = fields[1]
			if element == "vertex" {
				h.VertexCount = n
			} else if h.VertexCount < 0 {
				precedingRows += n
			}
		case "property":
			if element != "vertex" {
				continue
			}
			if len(fields) < 3 {
				return nil, gsplat.NewError(gsplat.ErrCodeHeaderMalformed, "property line needs a type and a name: %q", line)
			}
			if fields[1] == "list" {
				return nil, gsplat.NewError(gsplat.ErrCodeUnsupportedFormat, "list property %q in the vertex element", fields[len(fields)-1])
			}
			t := lookupType(fields[1])
			h.Columns = append(h.Columns, Column{
				Name:   fields[2],
				Type:   fields[1],
				Offset: h.Stride,
				Width:  t.width,
				Kind:   t.kind,
			})
			h.Stride += t.width
		}
	}

	if h.VertexCount < 0 {
		return nil, gsplat.NewError(gsplat.ErrCodeHeaderMalformed, "header has no \"element vertex\" line")
	}
	switch h.Format {
	case FormatBinaryLittleEndian, FormatBinaryBigEndian:
	case FormatASCII:
		return nil, gsplat.NewError(gsplat.ErrCodeUnsupportedFormat, "ascii .ply bodies are not supported")
	default:
		return nil, gsplat.NewError(gsplat.ErrCodeUnsupportedFormat, "unknown .ply format %q", h.Format)
	}
	if precedingRows > 0 {
		return nil, gsplat.NewError(gsplat.ErrCodeUnsupportedFormat, "vertex element must come first, %d rows precede it", precedingRows)
	}
	return h, nil
}
