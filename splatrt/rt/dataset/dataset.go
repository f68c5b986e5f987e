// Package dataset describes splat files on disk without loading them.
package dataset

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/ply"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

const (
	FormatSplat = "splat"
	FormatPLY   = "ply"
)

// Extensions lists the file extensions Scan picks up.
var Extensions = []string{".splat", ".ply"}

type Info struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
	// Splats is the record count, or the declared vertex count for PLY.
	Splats int `json:"splats"`
	// Header is set for PLY files.
	Header *ply.Header `json:"-"`
}

// Inspect classifies a file from its first bytes and total size. head needs
// at most ply.HeaderSearchLimit bytes.
func Inspect(name string, head []byte, size int64) (Info, error) {
	info := Info{Name: name, Size: size}
	if !ply.HasMagic(head) {
		info.Format = FormatSplat
		info.Splats = int(size / record.Stride)
		return info, nil
	}
	h, err := ply.ParseHeader(head)
	if err != nil {
		return info, err
	}
	info.Format = FormatPLY
	info.Splats = h.VertexCount
	info.Header = h
	return info, nil
}

// Stat inspects the file at path.
func Stat(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}
	head := make([]byte, ply.HeaderSearchLimit)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Info{}, err
	}
	return Inspect(filepath.Base(path), head[:n], st.Size())
}

// Supported reports whether name has one of Extensions.
func Supported(name string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(name)))
}

// Scan lists the supported files directly inside dir, sorted by name.
// Unreadable files are skipped.
func Scan(dir string, logger gsplat.Logger) ([]Info, error) {
	logger = gsplat.OrNop(logger)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		info, err := Stat(filepath.Join(dir, e.Name()))
		if err != nil {
			logger.Warnf("dataset: skipping %s: %v", e.Name(), err)
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}
