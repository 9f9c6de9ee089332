package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Engine drives one frame through the staged primary pass (deferred
// geometry + shadows + shading, then forward) followed by the
// postprocess chain (HDR eye adaptation, bloom, gamma). It is not
// goroutine-safe: RunFrame must be called from a single driver
// goroutine, matching spec.md §5's single-threaded GPU access model.
type Engine struct {
	Registry *Registry
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Logger   Logger
	Shaders  *ShaderRegistry
	Timer    *FrameTimer

	Camera   Camera
	Defaults *DefaultTextures

	GBuffer   *GBuffer
	PointMaps *PointShadowMaps
	Cascades  *CascadeShadowMaps
	Main      *MainHDRTarget
	HDR       *HDRDoubleBuffer

	primary []PrimaryStage
	post    []PostprocessStage
}

// NewEngine wires a device/queue pair into an otherwise-empty render
// core; callers attach stages with UsePrimaryStage/UsePostprocessStage
// before the first RunFrame.
func NewEngine(device *wgpu.Device, queue *wgpu.Queue, logger Logger) *Engine {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Engine{
		Registry:  NewRegistry(),
		Device:    device,
		Queue:     queue,
		Logger:    logger,
		Shaders:   NewShaderRegistry(device),
		Timer:     NewFrameTimer(),
		Camera:    NewCamera(),
		GBuffer:   NewGBuffer(device),
		PointMaps: NewPointShadowMaps(device, 1024),
		Cascades:  NewCascadeShadowMaps(device, 2048, 4),
		Main:      NewMainHDRTarget(device),
		HDR:       NewHDRDoubleBuffer(device),
	}
}

func (e *Engine) UsePrimaryStage(stage PrimaryStage) {
	e.primary = append(e.primary, stage)
}

func (e *Engine) UsePostprocessStage(stage PostprocessStage) {
	e.post = append(e.post, stage)
}

// Resize reallocates every size-dependent render target for a new
// framebuffer size. Must be called at least once before the first
// RunFrame.
func (e *Engine) Resize(w, h uint32) error {
	if err := e.GBuffer.Resize(w, h); err != nil {
		return err
	}
	if err := e.Main.Resize(w, h); err != nil {
		return err
	}
	if err := e.HDR.Resize(w, h); err != nil {
		return err
	}
	e.Camera.AspectRatio = float32(w) / float32(h)
	return nil
}

// clearMain clears Engine.Main's color to transparent black, matching
// spec.md §4.1 step 1 ("bind main target as draw; clear color and
// depth"). Depth is the G-buffer's shared depth attachment, cleared by
// GBufferStage as the first primary stage, so there is nothing left
// for this step to clear but color.
func (e *Engine) clearMain() error {
	encoder, err := e.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "main-clear"})
	if err != nil {
		return fmt.Errorf("forge: main clear encoder: %w", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "main-clear-pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       e.Main.Color.View(),
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0},
		}},
	})
	pass.End()
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: main clear finish: %w", err)
	}
	e.Queue.Submit(cmd)
	return nil
}

// blit copies src's full extent into dst, the GPU-side equivalent of
// glBlitFramebuffer this module's backend performs as a
// texture-to-texture copy (no format conversion needed: every target
// up to the final gamma pass is RGBA16Float).
func (e *Engine) blit(src, dst *GpuTexture, w, h uint32) error {
	encoder, err := e.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "blit"})
	if err != nil {
		return fmt.Errorf("forge: blit encoder: %w", err)
	}
	encoder.CopyTextureToTexture(
		&wgpu.ImageCopyTexture{Texture: src.Texture},
		&wgpu.ImageCopyTexture{Texture: dst.Texture},
		&wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: blit finish: %w", err)
	}
	e.Queue.Submit(cmd)
	return nil
}

// RunFrame advances the frame timer, runs every primary stage in
// order against Engine.Main, then sequences the postprocess chain over
// the HDR double buffer, finally presenting into surface — the
// swapchain's current texture, wrapped by the caller (platform.Window)
// as a GpuTexture — matching spec.md §4.1's five-step per-frame
// algorithm. With zero postprocess stages, Main is blitted straight to
// surface. Any stage error aborts the frame; there is no retry path,
// matching spec.md §7.
func (e *Engine) RunFrame(surface *GpuTexture) error {
	e.Timer.Tick()

	if err := e.clearMain(); err != nil {
		return err
	}

	for _, stage := range e.primary {
		if err := stage.Run(e); err != nil {
			return fmt.Errorf("forge: primary stage %q: %w", stage.Name(), err)
		}
	}

	if len(e.post) == 0 {
		return e.blit(e.Main.Color, surface, e.Main.Width, e.Main.Height)
	}

	if err := e.blit(e.Main.Color, e.HDR.Back(), e.HDR.Width, e.HDR.Height); err != nil {
		return err
	}
	e.HDR.Swap()

	for i, stage := range e.post {
		last := i == len(e.post)-1
		output := e.HDR.Back()
		if last {
			output = surface
		}
		if err := stage.Run(e, e.HDR.Front(), output); err != nil {
			return fmt.Errorf("forge: postprocess stage %q: %w", stage.Name(), err)
		}
		if !last {
			e.HDR.Swap()
		}
	}
	return nil
}
