package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gsplat/splatrt/rt/shaders"
)

// SplatBlend composites premultiplied fragments front to back: each fragment
// only fills what the splats in front of it left uncovered.
var SplatBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		Operation: wgpu.BlendOperationAdd,
		SrcFactor: wgpu.BlendFactorOneMinusDstAlpha,
		DstFactor: wgpu.BlendFactorOne,
	},
	Alpha: wgpu.BlendComponent{
		Operation: wgpu.BlendOperationAdd,
		SrcFactor: wgpu.BlendFactorOneMinusDstAlpha,
		DstFactor: wgpu.BlendFactorOne,
	},
}

// instanceLayouts returns one buffer layout per attribute stream, in the
// order the buffers are bound in Draw.
func instanceLayouts() []wgpu.VertexBufferLayout {
	return []wgpu.VertexBufferLayout{
		{
			ArrayStride: 8,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0}},
		},
		{
			ArrayStride: 12,
			StepMode:    wgpu.VertexStepModeInstance,
			Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 1}},
		},
		{
			ArrayStride: 16,
			StepMode:    wgpu.VertexStepModeInstance,
			Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 2}},
		},
		{
			ArrayStride: 16,
			StepMode:    wgpu.VertexStepModeInstance,
			Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 3}},
		},
		{
			ArrayStride: 12,
			StepMode:    wgpu.VertexStepModeInstance,
			Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 4}},
		},
	}
}

type SplatRenderPass struct {
	Pipeline  *wgpu.RenderPipeline
	BindGroup *wgpu.BindGroup
	Buffers   *SplatBufferManager
}

func NewSplatRenderPass(device *wgpu.Device, format wgpu.TextureFormat, buffers *SplatBufferManager) (*SplatRenderPass, error) {
	shaderModule, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "SplatShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.SplatWGSL},
	})
	if err != nil {
		return nil, err
	}
	defer shaderModule.Release()

	bgl, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "SplatUniformBGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: UniformSize,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	pipelineLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return nil, err
	}

	blend := SplatBlend
	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "SplatPipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     shaderModule,
			EntryPoint: "vs_main",
			Buffers:    instanceLayouts(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     shaderModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					WriteMask: wgpu.ColorWriteMaskAll,
					Blend:     &blend,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleStrip,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, err
	}

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: buffers.UniformBuffer, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, err
	}

	return &SplatRenderPass{Pipeline: pipeline, BindGroup: bindGroup, Buffers: buffers}, nil
}

// Draw records the instanced splat draw. Nothing is drawn before the first
// upload.
func (p *SplatRenderPass) Draw(pass *wgpu.RenderPassEncoder) {
	b := p.Buffers
	if b.InstanceCount == 0 || b.CenterBuffer == nil {
		return
	}
	pass.SetPipeline(p.Pipeline)
	pass.SetBindGroup(0, p.BindGroup, nil)
	for slot, buf := range []*wgpu.Buffer{b.QuadBuffer, b.CenterBuffer, b.ColorBuffer, b.QuatBuffer, b.ScaleBuffer} {
		pass.SetVertexBuffer(uint32(slot), buf, 0, buf.GetSize())
	}
	pass.Draw(4, b.InstanceCount, 0, 0)
}

func (p *SplatRenderPass) Release() {
	if p.BindGroup != nil {
		p.BindGroup.Release()
	}
	if p.Pipeline != nil {
		p.Pipeline.Release()
	}
}
