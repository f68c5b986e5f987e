// Package fetch streams splat data over HTTP into an ingestion sink, so the
// scene appears progressively while it downloads.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/ply"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

const DefaultChunkSize = 64 * 1024

// Sink receives the stream. *ingest.Coordinator implements it.
type Sink interface {
	// BeginStream is called once the server has answered, before any bytes.
	BeginStream()
	AppendBytes(buf []byte, totalLength int)
	LoadSourceFormat(raw []byte)
	CompleteStream()
	FailStream(err error)
}

type Options struct {
	Client    *http.Client
	ChunkSize int
	Logger    gsplat.Logger
}

// Progress is a snapshot of a running or finished stream.
type Progress struct {
	BytesRead     int64
	ExpectedBytes int64 // -1 when the server sent no Content-Length
	Done          bool
}

// Records is the number of whole records received so far.
func (p Progress) Records() int {
	return int(p.BytesRead / record.Stride)
}

// ExpectedRecords is the record count the Content-Length announces, or -1.
func (p Progress) ExpectedRecords() int {
	if p.ExpectedBytes < 0 {
		return -1
	}
	return int(p.ExpectedBytes / record.Stride)
}

// Fraction is in [0,1], or 0 when the length is unknown.
func (p Progress) Fraction() float64 {
	if p.Done {
		return 1
	}
	if p.ExpectedBytes <= 0 {
		return 0
	}
	return min(1, float64(p.BytesRead)/float64(p.ExpectedBytes))
}

type Fetcher struct {
	client *http.Client
	chunk  int
	logger gsplat.Logger

	read     atomic.Int64
	expected atomic.Int64
	done     atomic.Bool
}

func New(opts Options) *Fetcher {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	f := &Fetcher{
		client: opts.Client,
		chunk:  opts.ChunkSize,
		logger: gsplat.OrNop(opts.Logger),
	}
	f.expected.Store(-1)
	return f
}

func (f *Fetcher) Progress() Progress {
	return Progress{
		BytesRead:     f.read.Load(),
		ExpectedBytes: f.expected.Load(),
		Done:          f.done.Load(),
	}
}

// ResolveURL resolves name against base, the way a relative link would be.
func ResolveURL(base, name string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("bad base url %q: %w", base, err)
	}
	ref, err := url.Parse(name)
	if err != nil {
		return "", fmt.Errorf("bad url %q: %w", name, err)
	}
	return b.ResolveReference(ref).String(), nil
}

// Probe asks for the size of the resource at rawURL with a HEAD request.
// It returns -1 when the server does not say.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return -1, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return -1, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return -1, gsplat.NewError(gsplat.ErrCodeStreamFailed, "%d Unable to load %s", resp.StatusCode, rawURL)
	}
	return resp.ContentLength, nil
}

// Stream downloads rawURL into sink. Packed record data is appended as it
// arrives; PLY data is collected and decoded once complete. Any failure is
// also reported to sink.FailStream, leaving what arrived visible. Cancelling
// ctx stops the stream silently: no flush, no FailStream.
func (f *Fetcher) Stream(ctx context.Context, rawURL string, sink Sink) error {
	f.read.Store(0)
	f.expected.Store(-1)
	f.done.Store(false)

	err := f.stream(ctx, rawURL, sink)
	if ctx.Err() != nil {
		f.logger.Infof("fetch: %s stopped after %d bytes", rawURL, f.read.Load())
		return ctx.Err()
	}
	if err != nil {
		sink.FailStream(err)
		return err
	}
	f.done.Store(true)
	sink.CompleteStream()
	return nil
}

func (f *Fetcher) stream(ctx context.Context, rawURL string, sink Sink) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return gsplat.WrapError(gsplat.ErrCodeStreamFailed, err, "bad request for %s", rawURL)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return gsplat.WrapError(gsplat.ErrCodeStreamFailed, err, "Unable to load %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gsplat.NewError(gsplat.ErrCodeStreamFailed, "%d Unable to load %s", resp.StatusCode, rawURL)
	}

	sink.BeginStream()
	expected := resp.ContentLength
	f.expected.Store(expected)
	size := 0
	if expected > 0 {
		size = int(expected)
	}
	buf := make([]byte, size)
	f.logger.Infof("fetch: %s, %d bytes expected (%d splats)", rawURL, expected, f.Progress().ExpectedRecords())

	start := time.Now()
	n := 0
	isPLY := false
	sniffed := false
	for {
		if n == len(buf) {
			// No Content-Length, or the body runs past it.
			grown := make([]byte, n+max(f.chunk, n/2))
			copy(grown, buf[:n])
			buf = grown
		}
		m, rerr := resp.Body.Read(buf[n:min(n+f.chunk, len(buf))])
		n += m
		f.read.Store(int64(n))
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !sniffed && n >= len(ply.Magic) {
			sniffed = true
			isPLY = ply.HasMagic(buf[:n])
		}
		if m > 0 && !isPLY && sniffed {
			sink.AppendBytes(buf, n)
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return gsplat.WrapError(gsplat.ErrCodeStreamFailed, rerr, "read failed after %d bytes", n)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.logger.Infof("fetch: %d bytes in %s", n, time.Since(start))
	if isPLY {
		sink.LoadSourceFormat(buf[:n])
		return nil
	}
	// Final flush for short bodies that never reached the sniff length.
	sink.AppendBytes(buf, n)
	return nil
}
