package gpu

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gsplat/splatrt/rt/sorter"
)

// UniformSize is the size of the Uniforms struct in splat.wgsl, rounded up to
// the uniform buffer alignment.
const UniformSize = 256

// quadCorners is the triangle strip every splat instance is drawn with.
var quadCorners = [8]float32{-2, -2, 2, -2, -2, 2, 2, 2}

// SplatBufferManager owns the GPU copies of the latest sort result. Each
// attribute stream lives in its own instance buffer so a Result can be
// uploaded without interleaving.
type SplatBufferManager struct {
	Device *wgpu.Device

	QuadBuffer    *wgpu.Buffer
	CenterBuffer  *wgpu.Buffer
	ColorBuffer   *wgpu.Buffer
	QuatBuffer    *wgpu.Buffer
	ScaleBuffer   *wgpu.Buffer
	UniformBuffer *wgpu.Buffer

	// InstanceCount is the number of splats in the last upload.
	InstanceCount uint32
	// Reallocated is set when the last Upload had to grow a buffer.
	Reallocated bool
}

func NewSplatBufferManager(device *wgpu.Device) *SplatBufferManager {
	m := &SplatBufferManager{Device: device}
	m.ensureBuffer("SplatQuad", &m.QuadBuffer, float32sToBytes(quadCorners[:]), wgpu.BufferUsageVertex, 0)
	m.ensureBuffer("SplatUniforms", &m.UniformBuffer, make([]byte, UniformSize), wgpu.BufferUsageUniform, 0)
	return m
}

func (m *SplatBufferManager) ensureBuffer(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage, headroom int) bool {
	neededSize := uint64(len(data) + headroom)
	if neededSize%4 != 0 {
		neededSize += 4 - (neededSize % 4)
	}
	// Zero-sized buffers are invalid; keep a minimal allocation for empty scenes.
	if neededSize == 0 {
		neededSize = 16
	}

	current := *buf
	if current == nil || current.GetSize() < neededSize {
		if current != nil {
			current.Release()
		}

		newBuf, err := m.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            name,
			Size:             neededSize,
			Usage:            usage | wgpu.BufferUsageCopyDst,
			MappedAtCreation: false,
		})
		if err != nil {
			panic(err)
		}
		*buf = newBuf

		if len(data) > 0 {
			m.Device.GetQueue().WriteBuffer(*buf, 0, data)
		}
		return true
	}
	if len(data) > 0 {
		m.Device.GetQueue().WriteBuffer(*buf, 0, data)
	}
	return false
}

// Upload copies a sort result into the instance buffers. Buffers grow with a
// quarter of headroom so a streaming scene does not reallocate every chunk.
func (m *SplatBufferManager) Upload(res *sorter.Result) {
	n := res.Len()
	m.Reallocated = false
	grow := func(name string, buf **wgpu.Buffer, data []float32) {
		b := float32sToBytes(data)
		if m.ensureBuffer(name, buf, b, wgpu.BufferUsageVertex, len(b)/4) {
			m.Reallocated = true
		}
	}
	grow("SplatCenter", &m.CenterBuffer, res.Center)
	grow("SplatColor", &m.ColorBuffer, res.Color)
	grow("SplatQuat", &m.QuatBuffer, res.Quat)
	grow("SplatScale", &m.ScaleBuffer, res.Scale)
	m.InstanceCount = uint32(n)
}

// UpdateUniforms writes the camera block read by the vertex stage.
func (m *SplatBufferManager) UpdateUniforms(view, proj mgl32.Mat4, focal, viewport mgl32.Vec2) {
	m.Device.GetQueue().WriteBuffer(m.UniformBuffer, 0, PackUniforms(view, proj, focal, viewport))
}

// PackUniforms lays out
//
//	struct Uniforms {
//	  projection: mat4x4<f32>, -- 0
//	  view: mat4x4<f32>,       -- 64
//	  focal: vec2<f32>,        -- 128
//	  viewport: vec2<f32>,     -- 136
//	}
//
// padded to UniformSize.
func PackUniforms(view, proj mgl32.Mat4, focal, viewport mgl32.Vec2) []byte {
	buf := make([]byte, 0, UniformSize)
	buf = append(buf, mat4ToBytes(proj)...)
	buf = append(buf, mat4ToBytes(view)...)
	buf = append(buf, float32sToBytes(focal[:])...)
	buf = append(buf, float32sToBytes(viewport[:])...)
	return buf[:UniformSize]
}

func (m *SplatBufferManager) Release() {
	for _, b := range []*wgpu.Buffer{m.QuadBuffer, m.CenterBuffer, m.ColorBuffer, m.QuatBuffer, m.ScaleBuffer, m.UniformBuffer} {
		if b != nil {
			b.Release()
		}
	}
}

func mat4ToBytes(m mgl32.Mat4) []byte {
	buf := make([]byte, 64)
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func float32sToBytes(ff []float32) []byte {
	buf := make([]byte, 4*len(ff))
	for i, v := range ff {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
