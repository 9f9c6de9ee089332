package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// GBufferStage clears the G-buffer's attachments at the start of the
// primary pass. Kept as its own stage (rather than folded into
// DeferredGeometryStage) so a host inserting custom stages between
// clear and geometry draw has a seam to do it at, matching the
// teacher's one-stage-per-concern pipeline shape.
type GBufferStage struct{}

func NewGBufferStage() *GBufferStage { return &GBufferStage{} }

func (s *GBufferStage) Name() string { return "GBuffer" }

func (s *GBufferStage) Run(eng *Engine) error {
	gb := eng.GBuffer
	if gb.Position == nil {
		return fmt.Errorf("forge: gbuffer not sized, call Engine.Resize first")
	}

	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "gbuffer-clear"})
	if err != nil {
		return fmt.Errorf("forge: gbuffer clear encoder: %w", err)
	}

	colorTarget := func(view *wgpu.TextureView) wgpu.RenderPassColorAttachment {
		return wgpu.RenderPassColorAttachment{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0},
		}
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "gbuffer-clear-pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			colorTarget(gb.Position.View()),
			colorTarget(gb.Normal.View()),
			colorTarget(gb.Material.View()),
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            gb.Depth.View(),
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: gbuffer clear finish: %w", err)
	}
	eng.Queue.Submit(cmd)
	return nil
}
