// Package ingest owns the record buffer while it is streamed, replaced or
// decoded, and keeps the depth sort current as the camera moves.
//
// All buffer state lives on a single worker goroutine. Buffer changes reach it
// through an ordered command queue; camera changes go through a single-slot
// inbox where a newer view overwrites one the worker has not picked up yet.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/ply"
	"github.com/gekko3d/gsplat/splatrt/rt/record"
	"github.com/gekko3d/gsplat/splatrt/rt/sorter"
)

type State int32

const (
	StateEmpty State = iota
	StateStreaming
	StateDecodingSourceFormat
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateStreaming:
		return "streaming"
	case StateDecodingSourceFormat:
		return "decoding"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// DecodeFunc turns source-format bytes into a packed record buffer.
type DecodeFunc func(raw []byte) ([]byte, error)

type Options struct {
	// Sorter defaults to sorter.DefaultOptions when nil.
	Sorter *sorter.Options
	Logger gsplat.Logger
	// Decode defaults to ply.Decode.
	Decode DecodeFunc
	// QueueSize bounds the buffer command queue. Senders block when full.
	QueueSize int
}

type Stats struct {
	State          State
	VertexCount    int
	SortRequests   uint64
	SortsRun       uint64
	SortsSkipped   uint64
	ViewsCoalesced uint64
	LastSort       time.Duration
}

type commandKind int

const (
	cmdAppend commandKind = iota
	cmdReplace
	cmdDecode
	cmdComplete
	cmdFail
	cmdBegin
)

type command struct {
	kind  commandKind
	buf   []byte
	count int
	err   error
}

type Coordinator struct {
	id     string
	out    Output
	logger gsplat.Logger
	decode DecodeFunc

	cmds chan command

	// view inbox
	viewMu      sync.Mutex
	pendingView mgl32.Mat4
	hasPending  bool
	wake        chan struct{}

	// producer-side append gate
	gateMu        sync.Mutex
	lastRequested int

	state       atomic.Int32
	busy        atomic.Bool
	vertexCount atomic.Int64

	sortRequests   atomic.Uint64
	sortsRun       atomic.Uint64
	sortsSkipped   atomic.Uint64
	viewsCoalesced atomic.Uint64
	lastSortNanos  atomic.Int64

	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup

	w worker
}

// worker holds the state touched only by the worker goroutine.
type worker struct {
	sorter     *sorter.Sorter
	buf        []byte
	count      int
	view       mgl32.Mat4
	hasView    bool
	sortWanted bool
}

func New(out Output, opts Options) *Coordinator {
	if out == nil {
		out = OutputFuncs{}
	}
	if opts.Decode == nil {
		logger := opts.Logger
		opts.Decode = func(raw []byte) ([]byte, error) {
			return ply.DecodeWithOptions(raw, ply.DecodeOptions{Logger: logger})
		}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	sorterOpts := sorter.DefaultOptions()
	if opts.Sorter != nil {
		sorterOpts = *opts.Sorter
	}
	return &Coordinator{
		id:     uuid.NewString(),
		out:    out,
		logger: gsplat.OrNop(opts.Logger),
		decode: opts.Decode,
		cmds:   make(chan command, opts.QueueSize),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		w:      worker{sorter: sorter.New(sorterOpts)},
	}
}

// ID identifies this coordinator's session in logs.
func (c *Coordinator) ID() string {
	return c.id
}

// Start launches the worker. It stops when ctx is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("coordinator %s already started", c.id)
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.done)
		c.run(ctx)
	}()
	c.logger.Debugf("ingest %s: worker started", c.id)
	return nil
}

// Stop cancels the worker and waits for an in-flight sort to finish.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Busy reports whether a sort or decode is running right now.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		State:          c.State(),
		VertexCount:    int(c.vertexCount.Load()),
		SortRequests:   c.sortRequests.Load(),
		SortsRun:       c.sortsRun.Load(),
		SortsSkipped:   c.sortsSkipped.Load(),
		ViewsCoalesced: c.viewsCoalesced.Load(),
		LastSort:       time.Duration(c.lastSortNanos.Load()),
	}
}

// BeginStream starts a new byte stream. The append gate is reset so the new
// stream's records are not compared against the count of whatever scene
// was loaded before it.
func (c *Coordinator) BeginStream() {
	c.gateMu.Lock()
	c.lastRequested = 0
	c.gateMu.Unlock()

	c.send(command{kind: cmdBegin})
}

// AppendBytes reports that buf now holds totalLength valid bytes. Only whole
// records are visible; a re-sort is requested only when the visible count grew.
func (c *Coordinator) AppendBytes(buf []byte, totalLength int) {
	if totalLength > len(buf) {
		totalLength = len(buf)
	}
	count := totalLength / record.Stride

	c.gateMu.Lock()
	if count <= c.lastRequested {
		c.gateMu.Unlock()
		return
	}
	c.lastRequested = count
	c.gateMu.Unlock()

	c.state.CompareAndSwap(int32(StateEmpty), int32(StateStreaming))
	c.send(command{kind: cmdAppend, buf: buf[:count*record.Stride], count: count})
}

// LoadFullBuffer swaps in a complete record buffer.
func (c *Coordinator) LoadFullBuffer(buf []byte, vertexCount int) {
	if n := record.Count(buf); vertexCount > n {
		vertexCount = n
	}
	c.gateMu.Lock()
	c.lastRequested = vertexCount
	c.gateMu.Unlock()

	c.send(command{kind: cmdReplace, buf: buf, count: vertexCount})
}

// LoadSourceFormat decodes raw (PLY) on the worker and installs the result.
// Decode failures are reported through Output.Failed.
func (c *Coordinator) LoadSourceFormat(raw []byte) {
	c.gateMu.Lock()
	c.lastRequested = 0
	c.gateMu.Unlock()

	c.send(command{kind: cmdDecode, buf: raw})
}

// Load dispatches on the PLY magic: PLY bytes are decoded, anything else is
// taken as a packed record buffer.
func (c *Coordinator) Load(raw []byte) {
	if ply.HasMagic(raw) {
		c.LoadSourceFormat(raw)
		return
	}
	c.LoadFullBuffer(raw, record.Count(raw))
}

// CompleteStream marks the end of a byte stream.
func (c *Coordinator) CompleteStream() {
	c.send(command{kind: cmdComplete})
}

// FailStream ends a stream with err. Records received so far stay visible.
func (c *Coordinator) FailStream(err error) {
	c.send(command{kind: cmdFail, err: err})
}

// SetViewProjection requests a sort for vp. Views arriving while the worker is
// busy collapse into the newest one.
func (c *Coordinator) SetViewProjection(vp mgl32.Mat4) {
	c.viewMu.Lock()
	if c.hasPending {
		c.viewsCoalesced.Add(1)
	}
	c.pendingView = vp
	c.hasPending = true
	c.viewMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) send(cmd command) {
	select {
	case c.cmds <- cmd:
	case <-c.done:
		c.logger.Warnf("ingest %s: worker stopped, dropping command %d", c.id, cmd.kind)
	}
}

func (c *Coordinator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.cmds:
			c.apply(cmd)
		case <-c.wake:
		}

		// Buffer commands queued so far take effect before the view.
		c.drain()
		c.takeView()
		c.sortIfWanted()
	}
}

func (c *Coordinator) drain() {
	for {
		select {
		case cmd := <-c.cmds:
			c.apply(cmd)
		default:
			return
		}
	}
}

func (c *Coordinator) takeView() {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	if !c.hasPending {
		return
	}
	c.w.view = c.pendingView
	c.w.hasView = true
	c.w.sortWanted = true
	c.hasPending = false
}

func (c *Coordinator) apply(cmd command) {
	w := &c.w
	switch cmd.kind {
	case cmdAppend:
		w.buf = cmd.buf
		w.count = cmd.count
		c.setCount(w.count)
		c.requestSort()

	case cmdReplace:
		w.buf = cmd.buf
		w.count = cmd.count
		w.sorter.Invalidate()
		c.setCount(w.count)
		c.state.Store(int32(StateReady))
		c.requestSort()

	case cmdDecode:
		c.decodeSource(cmd.buf)

	case cmdBegin:
		// The stream may reach the old scene's count with different records.
		w.sorter.Invalidate()
		c.state.Store(int32(StateStreaming))

	case cmdComplete:
		if c.State() == StateStreaming || c.State() == StateEmpty {
			c.state.Store(int32(StateReady))
		}
		c.logger.Infof("ingest %s: stream complete, %d splats", c.id, w.count)

	case cmdFail:
		c.state.Store(int32(StateFailed))
		err := gsplat.WrapError(gsplat.ErrCodeStreamFailed, cmd.err, "stream ended after %d splats", w.count)
		c.logger.Errorf("ingest %s: %v", c.id, err)
		c.out.Failed(err)
	}
}

func (c *Coordinator) decodeSource(raw []byte) {
	w := &c.w
	c.state.Store(int32(StateDecodingSourceFormat))
	c.busy.Store(true)
	defer c.busy.Store(false)

	// Clear the screen while decoding.
	w.count = 0
	c.setCount(0)
	if w.hasView {
		w.sorter.Invalidate()
		c.runSort()
	}

	start := time.Now()
	decoded, err := c.decode(raw)
	if err != nil {
		w.buf = nil
		c.state.Store(int32(StateEmpty))
		c.logger.Errorf("ingest %s: decode failed: %v", c.id, err)
		c.out.Failed(err)
		return
	}

	w.buf = decoded
	w.count = record.Count(decoded)
	w.sorter.Invalidate()
	c.setCount(w.count)

	c.gateMu.Lock()
	c.lastRequested = w.count
	c.gateMu.Unlock()

	c.logger.Infof("ingest %s: decoded %d splats in %s", c.id, w.count, time.Since(start))
	c.out.DecodedBuffer(append([]byte(nil), decoded...))
	c.state.Store(int32(StateReady))
	c.requestSort()
}

func (c *Coordinator) requestSort() {
	c.sortRequests.Add(1)
	c.w.sortWanted = true
}

func (c *Coordinator) setCount(n int) {
	c.vertexCount.Store(int64(n))
}

func (c *Coordinator) sortIfWanted() {
	if !c.w.sortWanted || !c.w.hasView {
		return
	}
	c.w.sortWanted = false
	c.busy.Store(true)
	c.runSort()
	c.busy.Store(false)
}

func (c *Coordinator) runSort() {
	w := &c.w
	start := time.Now()
	res, ok := w.sorter.Sort(w.buf, w.count, w.view)
	if !ok {
		c.sortsSkipped.Add(1)
		return
	}
	elapsed := time.Since(start)
	c.sortsRun.Add(1)
	c.lastSortNanos.Store(int64(elapsed))
	if c.logger.DebugEnabled() {
		c.logger.Debugf("ingest %s: sorted %d splats in %s", c.id, w.count, elapsed)
	}
	c.out.SortResult(res)
}
