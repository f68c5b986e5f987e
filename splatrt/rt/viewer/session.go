// Package viewer holds the windowing-independent half of the interactive
// viewer: it owns the ingestion pipeline, the camera controls and the frame
// bookkeeping, and leaves drawing to whoever consumes the mailbox.
package viewer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/cache"
	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/fetch"
	"github.com/gekko3d/gsplat/splatrt/rt/ingest"
	"github.com/gekko3d/gsplat/splatrt/rt/ply"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
	"github.com/gekko3d/gsplat/splatrt/rt/sorter"
)

// carouselDelay is how long the idle animation waits once data shows up.
const carouselDelay = 2 * time.Second

type Options struct {
	Config gsplat.Config
	Logger gsplat.Logger
	// Cache, when set, memoizes PLY decodes.
	Cache cache.Cache
	// ExportPath, when set, receives every decoded PLY as a .splat file.
	ExportPath string
	Client     *http.Client
}

// Frame is what the renderer needs to draw one frame.
type Frame struct {
	View, Proj mgl32.Mat4
	Focal      mgl32.Vec2
	// Viewport is the render target size after downsampling.
	Viewport      mgl32.Vec2
	Width, Height int
}

type Session struct {
	cfg    gsplat.Config
	logger gsplat.Logger

	Coordinator *ingest.Coordinator
	Mailbox     *ingest.Mailbox
	Fetcher     *fetch.Fetcher
	Controls    *core.Controls
	Profiler    *Profiler

	camMu   sync.Mutex
	cameras []core.GSCamera

	// streamMu guards the active LoadURL. Its sink forwards under the lock,
	// so nothing from a stopped stream is queued after a later load.
	streamMu   sync.Mutex
	streamGen  uint64
	stopStream context.CancelFunc

	exportPath string
	downsample atomic.Int32
	expected   atomic.Int64

	errMu sync.Mutex
	err   error

	fps       float64
	lastFrame time.Time
}

func NewSession(opts Options) (*Session, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := gsplat.OrNop(opts.Logger)

	cameras := []core.GSCamera{core.DefaultCamera}
	if cfg.Viewer.CamerasFile != "" {
		loaded, err := core.LoadCameras(cfg.Viewer.CamerasFile)
		if err != nil {
			return nil, err
		}
		cameras = loaded
	}

	s := &Session{
		cfg:        cfg,
		logger:     logger,
		Mailbox:    ingest.NewMailbox(),
		Controls:   core.NewControls(mgl32.Mat4(cfg.Viewer.DefaultView), cfg.Viewer.Carousel),
		Profiler:   NewProfiler(),
		cameras:    cameras,
		exportPath: opts.ExportPath,
	}
	s.downsample.Store(1)
	s.expected.Store(-1)

	decode := func(raw []byte) ([]byte, error) {
		return ply.DecodeWithOptions(raw, ply.DecodeOptions{Logger: logger})
	}
	if opts.Cache != nil {
		decode = cache.Decoder(opts.Cache, cfg.Cache.TTL, logger, decode)
	}

	s.Coordinator = ingest.New(ingest.OutputFuncs{
		OnSortResult:    s.onSortResult,
		OnDecodedBuffer: s.onDecodedBuffer,
		OnFailed:        s.onFailed,
	}, ingest.Options{
		Sorter: &sorter.Options{
			SkipThreshold: cfg.Sorter.SkipThreshold,
			DepthBias:     cfg.Sorter.DepthBias,
		},
		Logger: logger,
		Decode: decode,
	})
	s.Fetcher = fetch.New(fetch.Options{
		Client:    opts.Client,
		ChunkSize: cfg.Stream.ChunkSize,
		Logger:    logger,
	})
	return s, nil
}

func (s *Session) Start(ctx context.Context) error {
	s.logger.Infof("viewer: session %s", s.Coordinator.ID())
	return s.Coordinator.Start(ctx)
}

func (s *Session) Stop() {
	s.Coordinator.Stop()
}

func (s *Session) onSortResult(res *sorter.Result) {
	st := s.Coordinator.Stats()
	s.Profiler.Record("sort", st.LastSort)
	s.Profiler.SetCount("splats", res.Len())
	s.Profiler.SetCount("sorts skipped", int(st.SortsSkipped))
	s.Mailbox.SortResult(res)
}

func (s *Session) onDecodedBuffer(buf []byte) {
	s.expected.Store(int64(record.Count(buf)))
	if s.exportPath == "" {
		return
	}
	if err := os.WriteFile(s.exportPath, buf, 0644); err != nil {
		s.logger.Errorf("viewer: export %s: %v", s.exportPath, err)
		return
	}
	s.logger.Infof("viewer: wrote %d splats to %s", record.Count(buf), s.exportPath)
}

func (s *Session) onFailed(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
	s.logger.Errorf("viewer: %v", err)
}

// Err is the last failure reported by the pipeline, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// setSize picks the render downsampling for a dataset of n bytes.
func (s *Session) setSize(n int64) {
	records := n / record.Stride
	s.expected.Store(records)
	if records > int64(s.cfg.Viewer.DownsampleAbove) {
		s.downsample.Store(2)
	} else {
		s.downsample.Store(1)
	}
	s.logger.Debugf("viewer: %d splats expected, downsample %d", records, s.Downsample())
}

// Downsample is the integer factor the render target is shrunk by.
func (s *Session) Downsample() int {
	return int(s.downsample.Load())
}

// LoadURL streams rawURL into the scene. It blocks until the download ends,
// so callers usually run it on its own goroutine.
// Loading another URL or file stops it; it then returns context.Canceled.
func (s *Session) LoadURL(ctx context.Context, rawURL string) error {
	ctx, sink := s.beginStream(ctx)
	defer sink.stop()

	if size, err := s.Fetcher.Probe(ctx, rawURL); err != nil {
		s.logger.Debugf("viewer: probe %s: %v", rawURL, err)
	} else if size > 0 {
		s.setSize(size)
	}
	return s.Fetcher.Stream(ctx, rawURL, sink)
}

// beginStream stops the running stream, if any, and registers a new one.
func (s *Session) beginStream(ctx context.Context) (context.Context, *streamSink) {
	ctx, cancel := context.WithCancel(ctx)
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	s.stopLocked()
	s.stopStream = cancel
	return ctx, &streamSink{s: s, gen: s.streamGen, stop: cancel}
}

// StopStream stops the running LoadURL without reporting a failure. Records
// already shown stay.
func (s *Session) StopStream() {
	s.streamMu.Lock()
	s.stopLocked()
	s.streamMu.Unlock()
}

func (s *Session) stopLocked() {
	s.streamGen++
	if s.stopStream != nil {
		s.stopStream()
		s.stopStream = nil
	}
}

// streamSink forwards one stream to the coordinator until that stream is
// superseded.
type streamSink struct {
	s    *Session
	gen  uint64
	stop context.CancelFunc
}

func (k *streamSink) forward(fn func(c *ingest.Coordinator)) {
	k.s.streamMu.Lock()
	defer k.s.streamMu.Unlock()
	if k.gen != k.s.streamGen {
		return
	}
	fn(k.s.Coordinator)
}

func (k *streamSink) BeginStream() {
	k.forward(func(c *ingest.Coordinator) { c.BeginStream() })
}

func (k *streamSink) AppendBytes(buf []byte, totalLength int) {
	k.forward(func(c *ingest.Coordinator) { c.AppendBytes(buf, totalLength) })
}

func (k *streamSink) LoadSourceFormat(raw []byte) {
	k.forward(func(c *ingest.Coordinator) { c.LoadSourceFormat(raw) })
}

func (k *streamSink) CompleteStream() {
	k.forward(func(c *ingest.Coordinator) { c.CompleteStream() })
}

func (k *streamSink) FailStream(err error) {
	k.forward(func(c *ingest.Coordinator) { c.FailStream(err) })
}

var _ fetch.Sink = (*streamSink)(nil)

// LoadFile opens a local file. A .json file replaces the camera presets;
// anything else replaces the scene.
func (s *Session) LoadFile(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		cams, err := core.LoadCameras(path)
		if err != nil {
			return err
		}
		s.camMu.Lock()
		s.cameras = cams
		s.camMu.Unlock()
		s.Controls.SelectCamera(cams[0])
		s.logger.Infof("viewer: loaded %d cameras from %s", len(cams), path)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.LoadBytes(data)
	s.logger.Infof("viewer: loaded %s (%d bytes)", path, len(data))
	return nil
}

// LoadBytes replaces the scene with a whole .splat or PLY file, stopping a
// stream that is still running.
func (s *Session) LoadBytes(data []byte) {
	s.StopStream()
	s.setSize(int64(len(data)))
	s.Coordinator.Load(data)
}

func (s *Session) Cameras() []core.GSCamera {
	s.camMu.Lock()
	defer s.camMu.Unlock()
	return s.cameras
}

// SelectCamera jumps to preset i. It reports false when there is no such
// preset.
func (s *Session) SelectCamera(i int) bool {
	cams := s.Cameras()
	if i < 0 || i >= len(cams) {
		return false
	}
	s.Controls.SelectCamera(cams[i])
	return true
}

// ShareView returns the current view as a pasteable string.
func (s *Session) ShareView() string {
	return core.FormatViewMatrix(s.Controls.View)
}

// Progress is the fraction of the expected splats that are visible, or 0 when
// the total is unknown.
func (s *Session) Progress() float64 {
	expected := s.expected.Load()
	if expected <= 0 {
		return 0
	}
	return min(1, float64(s.Coordinator.Stats().VertexCount)/float64(expected))
}

// Frame advances the controls to now, requests a sort for the new view and
// returns the matrices for a window of width by height pixels.
func (s *Session) Frame(keys core.KeyState, now time.Time, width, height int) Frame {
	if s.Coordinator.Stats().VertexCount == 0 && s.Controls.Carousel {
		s.Controls.RestartCarousel(now, carouselDelay)
	}
	view := s.Controls.Step(keys, now)

	d := s.Downsample()
	w, h := max(1, width/d), max(1, height/d)
	fx, fy := s.cfg.Viewer.Fx/float32(d), s.cfg.Viewer.Fy/float32(d)
	proj := core.ProjectionMatrix(fx, fy, w, h)
	s.Coordinator.SetViewProjection(proj.Mul4(view))

	if !s.lastFrame.IsZero() {
		if dt := now.Sub(s.lastFrame).Seconds(); dt > 0 {
			s.fps = s.fps*0.9 + (1/dt)*0.1
		}
	}
	s.lastFrame = now

	return Frame{
		View:     view,
		Proj:     proj,
		Focal:    mgl32.Vec2{fx, fy},
		Viewport: mgl32.Vec2{float32(w), float32(h)},
		Width:    w,
		Height:   h,
	}
}

// FPS is an exponential moving average over Frame calls.
func (s *Session) FPS() float64 {
	return s.fps
}

// Title summarizes the session for a window title bar.
func (s *Session) Title() string {
	st := s.Coordinator.Stats()
	title := fmt.Sprintf("%s - %d splats", s.cfg.Viewer.Title, st.VertexCount)
	if p := s.Progress(); p > 0 && p < 1 {
		title += fmt.Sprintf(" - %.0f%%", 100*p)
	}
	title += fmt.Sprintf(" - %.0f fps", s.fps)
	if err := s.Err(); err != nil {
		title += " - " + err.Error()
	}
	return title
}
