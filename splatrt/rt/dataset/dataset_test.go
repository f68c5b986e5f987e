package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

const plyHeader = "ply\nformat binary_little_endian 1.0\nelement vertex 7\nproperty float x\nproperty float y\nproperty float z\nend_header\n"

func TestInspectSplat(t *testing.T) {
	info, err := Inspect("a.splat", make([]byte, 64), 3*record.Stride+5)
	require.NoError(t, err)
	assert.Equal(t, FormatSplat, info.Format)
	assert.Equal(t, 3, info.Splats)
	assert.Nil(t, info.Header)
}

func TestInspectPLY(t *testing.T) {
	info, err := Inspect("b.ply", []byte(plyHeader), 1000)
	require.NoError(t, err)
	assert.Equal(t, FormatPLY, info.Format)
	assert.Equal(t, 7, info.Splats)
	require.NotNil(t, info.Header)
	assert.Equal(t, 12, info.Header.Stride)
}

func TestInspectBrokenPLY(t *testing.T) {
	_, err := Inspect("c.ply", []byte("ply\nformat binary_little_endian 1.0\n"), 40)
	assert.True(t, gsplat.Is(err, gsplat.ErrCodeHeaderMalformed))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.splat"), make([]byte, 2*record.Stride), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.PLY"), []byte(plyHeader), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.ply"), []byte("ply\nnope"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.splat"), 0755))

	var logs bytes.Buffer
	infos, err := Scan(dir, gsplat.NewLoggerTo(&logs, "test", false))
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a.PLY", infos[0].Name)
	assert.Equal(t, 7, infos[0].Splats)
	assert.Equal(t, "b.splat", infos[1].Name)
	assert.Equal(t, 2, infos[1].Splats)
	assert.Contains(t, logs.String(), "broken.ply")
}

func TestScanMissingDir(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("x.splat"))
	assert.True(t, Supported("X.Ply"))
	assert.False(t, Supported("x.json"))
	assert.False(t, Supported("splat"))
}
