package cli

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

func plyBytes(n int) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "ply\nformat binary_little_endian 1.0\ncomment made by hand\nelement vertex %d\n", n)
	b.WriteString("property float x\nproperty float y\nproperty float z\n")
	b.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\nend_header\n")
	for i := 0; i < n; i++ {
		binary.Write(&b, binary.LittleEndian, [3]float32{float32(i), 0, 0})
		b.Write([]byte{255, 0, 0})
	}
	return b.Bytes()
}

func splats(n int) []byte {
	buf := record.New(n)
	for i := 0; i < n; i++ {
		record.Encode(buf, i, record.Record{
			Position: [3]float32{float32(i), -float32(i), 1},
			Scale:    [3]float32{0.5, 1, 2},
			Color:    [4]uint8{255, 255, 255, 255},
			Rotation: [4]uint8{255, 128, 128, 128},
		})
	}
	return buf
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	c := New(&out, &logs)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetErr(&logs)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "gsplat version "+gsplat.Version)
}

func TestInfoSplat(t *testing.T) {
	path := writeFile(t, "scene.splat", splats(3))
	out, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "scene.splat")
	assert.Contains(t, out, "splat")
	assert.Contains(t, out, "96 B")
	assert.Contains(t, out, "(0.000, -2.000, 1.000)")
	assert.Contains(t, out, "(2.000, 0.000, 1.000)")
	assert.Contains(t, out, "(0.500, 1.000, 2.000)")
}

func TestInfoPLY(t *testing.T) {
	path := writeFile(t, "scan.ply", plyBytes(2))
	out, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "binary_little_endian 1.0")
	assert.Contains(t, out, "comment: made by hand")
	assert.Regexp(t, `uchar\s+red\s+255 \.\. 255`, out)
	assert.Regexp(t, `float\s+x\s+0 \.\. 1`, out)
}

func TestInfoPLYColumns(t *testing.T) {
	path := writeFile(t, "scan.ply", plyBytes(3))
	out, err := run(t, "info", path, "--columns", "x")
	require.NoError(t, err)
	assert.Regexp(t, `float\s+x\s+0 \.\. 2`, out)
	assert.NotContains(t, out, "green")

	_, err = run(t, "info", path, "--columns", "opacity")
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeUnknownField))
}

func TestInfoMissingFile(t *testing.T) {
	_, err := run(t, "info", filepath.Join(t.TempDir(), "nope.splat"))
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	in := writeFile(t, "scan.ply", plyBytes(4))
	out := filepath.Join(t.TempDir(), "scan.splat")
	stdout, err := run(t, "convert", in, out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote 4 splats")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Len(t, data, 4*record.Stride)
	assert.Equal(t, [4]uint8{255, 0, 0, 255}, record.Decode(data, 0).Color)
}

func TestConvertRejectsSplatInput(t *testing.T) {
	in := writeFile(t, "scene.splat", splats(1))
	_, err := run(t, "convert", in, filepath.Join(t.TempDir(), "x.splat"))
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeUnsupportedFormat))
}

func TestConvertWithFileCache(t *testing.T) {
	cacheDir := t.TempDir()
	cfg := writeFile(t, "gsplat.toml", []byte(fmt.Sprintf("[cache]\nbackend = \"file\"\ndir = %q\n", cacheDir)))
	in := writeFile(t, "scan.ply", plyBytes(2))

	_, err := run(t, "--config", cfg, "convert", in, filepath.Join(t.TempDir(), "a.splat"))
	require.NoError(t, err)
	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "decode was cached")
}

func TestBadConfig(t *testing.T) {
	cfg := writeFile(t, "gsplat.toml", []byte("[viewer]\nwidth = -1\n"))
	_, err := run(t, "--config", cfg, "info", "x")
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeInvalidConfig))
}

func TestSort(t *testing.T) {
	path := writeFile(t, "scene.splat", splats(50))
	out, err := run(t, "sort", path, "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "50")
	assert.Contains(t, out, "skipped", "a repeated view is skipped")
}

func TestSortZeroThresholdNeverSkips(t *testing.T) {
	cfg := writeFile(t, "gsplat.toml", []byte("[sorter]\nskip_threshold = 0\n"))
	path := writeFile(t, "scene.splat", splats(20))
	out, err := run(t, "--config", cfg, "sort", path, "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "sorted")
	assert.NotContains(t, out, "skipped")
}

func TestSortFromURL(t *testing.T) {
	body := plyBytes(5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	out, err := run(t, "sort", srv.URL+"/scan.ply", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "5")
}

func TestSortBadView(t *testing.T) {
	path := writeFile(t, "scene.splat", splats(1))
	_, err := run(t, "sort", path, "--view", "[1,2,3]")
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	path := writeFile(t, "scene.splat", splats(5))
	img := filepath.Join(t.TempDir(), "out.png")
	view := core.FormatViewMatrix(core.DefaultCamera.ViewMatrix())
	out, err := run(t, "preview", path, "-o", img, "--width", "32", "--height", "16", "--view", view)
	require.NoError(t, err)
	assert.Contains(t, out, "rendered 5 splats")

	f, err := os.Open(img)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 32, decoded.Bounds().Dx())
	assert.Equal(t, 16, decoded.Bounds().Dy())
}

func TestViewFlagsCamera(t *testing.T) {
	c := New(&bytes.Buffer{}, &bytes.Buffer{})
	vf := viewFlags{camera: 0}
	m, err := vf.resolve(c)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultCamera.ViewMatrix(), m)

	vf.camera = 9
	m, err = vf.resolve(c)
	require.NoError(t, err)
	assert.Equal(t, [16]float32(gsplat.DefaultConfig().Viewer.DefaultView), [16]float32(m))
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "2.0 MiB", humanBytes(2*1024*1024))
}
