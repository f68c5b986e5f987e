package app

import (
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/gpu"
	"github.com/gekko3d/gsplat/splatrt/rt/shaders"
	"github.com/gekko3d/gsplat/splatrt/rt/viewer"
)

// titleInterval throttles window title updates.
const titleInterval = 250 * time.Millisecond

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	// Splats render into Target at the downsampled size, then get blitted.
	Target       *wgpu.Texture
	TargetView   *wgpu.TextureView
	TargetWidth  int
	TargetHeight int
	Sampler      *wgpu.Sampler
	BlitPipeline *wgpu.RenderPipeline
	BlitBG       *wgpu.BindGroup

	Buffers   *gpu.SplatBufferManager
	SplatPass *gpu.SplatRenderPass

	Session *viewer.Session
	Logger  gsplat.Logger

	input     input
	lastTitle time.Time
}

func NewApp(window *glfw.Window, session *viewer.Session, logger gsplat.Logger) *App {
	return &App{
		Window:  window,
		Session: session,
		Logger:  gsplat.OrNop(logger),
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)

	surface := a.Instance.CreateSurface(GetSurfaceDescriptor(a.Window))
	a.Surface = surface

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	format := caps.Formats[0]

	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, a.Device, a.Config)

	a.Buffers = gpu.NewSplatBufferManager(a.Device)
	a.SplatPass, err = gpu.NewSplatRenderPass(a.Device, format, a.Buffers)
	if err != nil {
		return err
	}

	blitModule, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Blit",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.BlitWGSL},
	})
	if err != nil {
		return err
	}
	defer blitModule.Release()

	a.BlitPipeline, err = a.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Blit Pipeline",
		Vertex: wgpu.VertexState{
			Module:     blitModule,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     blitModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	a.Sampler, err = a.Device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}

	a.installCallbacks()
	return nil
}

// setupTarget (re)creates the offscreen splat target when the downsampled
// size changes.
func (a *App) setupTarget(w, h int) {
	if w == a.TargetWidth && h == a.TargetHeight && a.Target != nil {
		return
	}
	if a.TargetView != nil {
		a.TargetView.Release()
	}
	if a.Target != nil {
		a.Target.Release()
	}

	var err error
	a.Target, err = a.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Splat Target",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        a.Config.Format,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
		SampleCount:   1,
	})
	if err != nil {
		panic(err)
	}
	a.TargetView, err = a.Target.CreateView(nil)
	if err != nil {
		panic(err)
	}
	a.TargetWidth, a.TargetHeight = w, h

	if a.BlitBG != nil {
		a.BlitBG.Release()
	}
	a.BlitBG, err = a.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: a.BlitPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: a.TargetView},
			{Binding: 1, Sampler: a.Sampler},
		},
	})
	if err != nil {
		panic(err)
	}
	a.Logger.Debugf("app: render target %dx%d", w, h)
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
	}
}

// Update advances the camera, pushes the new view to the sorter and uploads
// the newest sort result, if one arrived.
func (a *App) Update() {
	now := time.Now()
	frame := a.Session.Frame(a.keyState(), now, int(a.Config.Width), int(a.Config.Height))
	a.setupTarget(frame.Width, frame.Height)

	prof := a.Session.Profiler
	if res := a.Session.Mailbox.Take(); res != nil {
		prof.BeginScope("upload")
		a.Buffers.Upload(res)
		prof.EndScope("upload")
	}
	a.Buffers.UpdateUniforms(frame.View, frame.Proj, frame.Focal, frame.Viewport)

	if now.Sub(a.lastTitle) >= titleInterval {
		a.Window.SetTitle(a.Session.Title())
		a.lastTitle = now
	}
}

func (a *App) Render() {
	prof := a.Session.Profiler
	prof.BeginScope("render")
	defer prof.EndScope("render")

	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Logger.Errorf("app: GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.Logger.Errorf("app: CreateView failed: %v", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.Logger.Errorf("app: CreateCommandEncoder failed: %v", err)
		return
	}

	// The under blend needs a transparent start.
	sPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       a.TargetView,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{0, 0, 0, 0},
		}},
	})
	a.SplatPass.Draw(sPass)
	if err := sPass.End(); err != nil {
		a.Logger.Errorf("app: splat pass End failed: %v", err)
	}

	rPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{0, 0, 0, 1},
		}},
	})
	rPass.SetPipeline(a.BlitPipeline)
	rPass.SetBindGroup(0, a.BlitBG, nil)
	rPass.Draw(3, 1, 0, 0)
	if err := rPass.End(); err != nil {
		a.Logger.Errorf("app: blit pass End failed: %v", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.Logger.Errorf("app: encoder Finish failed: %v", err)
		return
	}
	a.Queue.Submit(cmd)
	a.Surface.Present()
}

// Release frees GPU resources in reverse creation order.
func (a *App) Release() {
	if a.BlitBG != nil {
		a.BlitBG.Release()
	}
	if a.TargetView != nil {
		a.TargetView.Release()
	}
	if a.Target != nil {
		a.Target.Release()
	}
	if a.Sampler != nil {
		a.Sampler.Release()
	}
	if a.BlitPipeline != nil {
		a.BlitPipeline.Release()
	}
	if a.SplatPass != nil {
		a.SplatPass.Release()
	}
	if a.Buffers != nil {
		a.Buffers.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
}

func GetSurfaceDescriptor(w *glfw.Window) *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w)
}
