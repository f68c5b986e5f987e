package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/cache"
	"github.com/gekko3d/gsplat/splatrt/rt/dataset"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

func plyBytes(n int) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "ply\nformat binary_little_endian 1.0\nelement vertex %d\n", n)
	b.WriteString("property float x\nproperty float y\nproperty float z\n")
	b.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\nend_header\n")
	for i := 0; i < n; i++ {
		binary.Write(&b, binary.LittleEndian, [3]float32{float32(i), 1, 2})
		b.Write([]byte{1, 2, 3})
	}
	return b.Bytes()
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.splat"), make([]byte, 4*record.Stride), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.ply"), plyBytes(3), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.ply"), []byte("ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nend_header\n1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0644))

	opts.Dir = dir
	ts := httptest.NewServer(New(opts).Handler())
	t.Cleanup(ts.Close)
	return ts, dir
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	resp, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var status healthStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "alive", status.Status)
	assert.Equal(t, 2, status.Datasets, "bad.ply is skipped")
}

func TestHealthzDegradedWithoutDir(t *testing.T) {
	ts := httptest.NewServer(New(Options{Dir: filepath.Join(t.TempDir(), "gone")}).Handler())
	defer ts.Close()
	resp, _ := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListDatasets(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	for _, path := range []string{"/datasets", "/datasets/"} {
		resp, body := get(t, ts.URL+path)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var infos []dataset.Info
		require.NoError(t, json.Unmarshal(body, &infos))
		require.Len(t, infos, 2)
		assert.Equal(t, dataset.Info{Name: "scan.ply", Format: "ply", Size: int64(len(plyBytes(3))), Splats: 3}, infos[0])
		assert.Equal(t, "scene.splat", infos[1].Name)
		assert.Equal(t, 4, infos[1].Splats)
	}
}

func TestGetSplatDataset(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	resp, body := get(t, ts.URL+"/datasets/scene.splat")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(4*record.Stride), resp.ContentLength)
	assert.Len(t, body, 4*record.Stride)
	assert.Equal(t, contentType, resp.Header.Get("Content-Type"))
}

func TestGetPLYDatasetIsDecoded(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	resp, body := get(t, ts.URL+"/datasets/scan.ply")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3*record.Stride), resp.ContentLength)
	require.Len(t, body, 3*record.Stride)

	r := record.Decode(body, 2)
	assert.Equal(t, [3]float32{2, 1, 2}, r.Position)
	assert.Equal(t, [4]uint8{1, 2, 3, 255}, r.Color)
}

func TestHeadReportsLength(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	resp, err := http.Head(ts.URL + "/datasets/scan.ply")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3*record.Stride), resp.ContentLength)
}

func TestGetDatasetErrors(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	cases := map[string]int{
		"/datasets/missing.splat": http.StatusNotFound,
		"/datasets/readme.txt":    http.StatusNotFound,
		"/datasets/..%2Fx.splat":  http.StatusNotFound,
		"/datasets/bad.ply":       http.StatusUnprocessableEntity,
	}
	for path, want := range cases {
		resp, _ := get(t, ts.URL+path)
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestPLYDecodesAreCached(t *testing.T) {
	c, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	ts, dir := newTestServer(t, Options{Cache: c, CacheTTL: time.Hour})

	get(t, ts.URL+"/datasets/scan.ply")
	raw, err := os.ReadFile(filepath.Join(dir, "scan.ply"))
	require.NoError(t, err)
	_, hit, err := c.Get(context.Background(), cache.DecodedKey(raw))
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc", resp.Header.Get("X-Request-ID"))
}

func TestRequestsAreLogged(t *testing.T) {
	var logs bytes.Buffer
	ts, _ := newTestServer(t, Options{Logger: gsplat.NewLoggerTo(&logs, "test", false)})
	get(t, ts.URL+"/datasets/scene.splat")
	assert.Contains(t, logs.String(), "GET /datasets/scene.splat 200")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	s := New(Options{Dir: t.TempDir(), Addr: addr})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
