// Package sorter orders the records of a splat buffer back to front for the
// current camera and unpacks them into the float arrays the renderer uploads.
package sorter

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gsplat/splatrt/rt/record"
)

const (
	DefaultSkipThreshold float32 = 0.01
	DefaultDepthBias     float32 = 10000
)

// Backend sorts packed keys ascending. Implementations may parallelise but
// must leave keys fully ordered when Sort returns.
type Backend interface {
	Sort(keys []uint64)
}

// SliceBackend is the single-threaded default.
type SliceBackend struct{}

func (SliceBackend) Sort(keys []uint64) { slices.Sort(keys) }

type Options struct {
	// SkipThreshold is the tolerance on |dot(prev forward, forward) - 1|
	// under which a re-sort is skipped.
	SkipThreshold float32
	// DepthBias is added to every depth score.
	DepthBias float32
	Backend   Backend
}

func DefaultOptions() Options {
	return Options{
		SkipThreshold: DefaultSkipThreshold,
		DepthBias:     DefaultDepthBias,
		Backend:       SliceBackend{},
	}
}

// Result is one sorted snapshot. Slices are freshly allocated and never alias
// the record buffer.
type Result struct {
	Center   []float32 // 3 per splat
	Color    []float32 // 4 per splat, 0..1
	Quat     []float32 // 4 per splat, -1..~1
	Scale    []float32 // 3 per splat
	Order    []uint32  // record index per output slot
	ViewProj mgl32.Mat4
}

// Len is the number of splats in the result.
func (r *Result) Len() int {
	return len(r.Order)
}

// SorterState is everything the sorter carries between calls. It is owned by
// exactly one goroutine.
type SorterState struct {
	LastViewProj mgl32.Mat4
	HasViewProj  bool
	LastCount    int
	// Keys holds one packed key per record: ordered depth bits in the high
	// word, record index in the low word.
	Keys []uint64
}

type Sorter struct {
	opts  Options
	state SorterState
}

// New uses opts as given; start from DefaultOptions to change one value. A
// SkipThreshold of 0 re-sorts on every call and a DepthBias of 0 adds no
// bias. A nil Backend means SliceBackend.
func New(opts Options) *Sorter {
	if opts.Backend == nil {
		opts.Backend = SliceBackend{}
	}
	return &Sorter{opts: opts}
}

// State exposes the carried state for inspection.
func (s *Sorter) State() *SorterState {
	return &s.state
}

// Invalidate forgets the key order and last view, so the next Sort runs even
// when the count and camera are unchanged. Call it when buffer contents are
// replaced.
func (s *Sorter) Invalidate() {
	s.state.Keys = nil
	s.state.HasViewProj = false
	s.state.LastCount = 0
}

// Sort orders the first vertexCount records of buf by depth under vp. It
// returns false, and no result, when the count is unchanged and the camera's
// forward axis has not moved enough to matter.
func (s *Sorter) Sort(buf []byte, vertexCount int, vp mgl32.Mat4) (*Result, bool) {
	st := &s.state

	if st.Keys == nil || st.LastCount != vertexCount || len(st.Keys) != vertexCount {
		st.Keys = identityKeys(vertexCount)
		st.LastCount = vertexCount
	} else if st.HasViewProj && s.facingSame(st.LastViewProj, vp) {
		return nil, false
	}

	bias := s.opts.DepthBias
	for j, k := range st.Keys {
		i := int(uint32(k))
		x, y, z := record.Position(buf, i)
		score := bias + vp[2]*x + vp[6]*y + vp[10]*z
		st.Keys[j] = PackKey(score, uint32(i))
	}
	st.LastViewProj = vp
	st.HasViewProj = true

	s.opts.Backend.Sort(st.Keys)

	return unpack(buf, st.Keys, vp), true
}

func (s *Sorter) facingSame(prev, cur mgl32.Mat4) bool {
	dot := prev[2]*cur[2] + prev[6]*cur[6] + prev[10]*cur[10]
	return float32(math.Abs(float64(dot-1))) < s.opts.SkipThreshold
}

func identityKeys(n int) []uint64 {
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i)
	}
	return keys
}

// OrderedBits maps a float32 to a uint32 whose unsigned order matches the
// numeric order of the floats.
func OrderedBits(f float32) uint32 {
	b := math.Float32bits(f)
	if b&0x80000000 != 0 {
		return ^b
	}
	return b | 0x80000000
}

// PackKey builds a sort key ordering by score first, then by index.
func PackKey(score float32, index uint32) uint64 {
	return uint64(OrderedBits(score))<<32 | uint64(index)
}

// KeyIndex extracts the record index from a packed key.
func KeyIndex(k uint64) uint32 {
	return uint32(k)
}

func unpack(buf []byte, keys []uint64, vp mgl32.Mat4) *Result {
	n := len(keys)
	res := &Result{
		Center:   make([]float32, 3*n),
		Color:    make([]float32, 4*n),
		Quat:     make([]float32, 4*n),
		Scale:    make([]float32, 3*n),
		Order:    make([]uint32, n),
		ViewProj: vp,
	}
	for j, k := range keys {
		i := KeyIndex(k)
		r := record.Decode(buf, int(i))
		res.Order[j] = i

		copy(res.Center[3*j:3*j+3], r.Position[:])
		copy(res.Scale[3*j:3*j+3], r.Scale[:])
		for c := 0; c < 4; c++ {
			res.Color[4*j+c] = float32(r.Color[c]) / 255
			res.Quat[4*j+c] = record.DequantizeUnit(r.Rotation[c])
		}
	}
	return res
}
