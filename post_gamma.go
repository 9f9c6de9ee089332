package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// GammaParams are the tunables a host mutates directly.
type GammaParams struct {
	Gamma float32
}

func DefaultGammaParams() GammaParams {
	return GammaParams{Gamma: 2.2}
}

const gammaShaderWGSL = `
struct Gamma {
    value: f32,
};
@group(0) @binding(0) var samp: sampler;
@group(0) @binding(1) var screen_tex: texture_2d<f32>;
@group(0) @binding(2) var<uniform> gamma: Gamma;

struct VertexOut {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> VertexOut {
    var positions = array<vec2<f32>, 3>(
        vec2<f32>(-1.0, -1.0),
        vec2<f32>(3.0, -1.0),
        vec2<f32>(-1.0, 3.0),
    );
    var out: VertexOut;
    let p = positions[idx];
    out.clip_position = vec4<f32>(p, 0.0, 1.0);
    out.uv = vec2<f32>(p.x * 0.5 + 0.5, 1.0 - (p.y * 0.5 + 0.5));
    return out;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    let color = textureSample(screen_tex, samp, in.uv).rgb;
    let corrected = pow(color, vec3<f32>(1.0 / gamma.value, 1.0 / gamma.value, 1.0 / gamma.value));
    return vec4<f32>(corrected, 1.0);
}
`

// PostprocessGammaStage is the final gamma-correct pass (tone mapping
// happens earlier, in the HDR stage) that writes into the swapchain's
// own surface format, mirroring
// original_source's PostprocessGammaCorrectionStage.hpp. Its pipeline
// is built lazily against output's actual PixelFormat the first time
// Run executes, then reused for as long as that format doesn't change
// (it never does within a run — the swapchain surface format is fixed
// at window creation).
type PostprocessGammaStage struct {
	Gamma GammaParams

	sampler     *wgpu.Sampler
	gammaBuffer *wgpu.Buffer
	pipeline    *GpuPipeline
	builtFormat wgpu.TextureFormat
}

func NewPostprocessGammaStage(eng *Engine, params GammaParams) (*PostprocessGammaStage, error) {
	sampler, err := NewLinearSampler(eng.Device, "gamma-sampler")
	if err != nil {
		return nil, err
	}
	gammaBuffer, err := eng.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "gamma-uniform",
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: gamma uniform buffer: %w", err)
	}
	return &PostprocessGammaStage{Gamma: params, sampler: sampler, gammaBuffer: gammaBuffer}, nil
}

func (s *PostprocessGammaStage) Name() string { return "PostprocessGamma" }

func (s *PostprocessGammaStage) ensurePipeline(eng *Engine, format wgpu.TextureFormat) error {
	if s.pipeline != nil && s.builtFormat == format {
		return nil
	}
	pipeline, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:        "gamma-correct",
		ShaderName:   "gamma_correct",
		ShaderSource: ShaderSource{Label: "gamma_correct", Code: gammaShaderWGSL},
		ColorFormats: []wgpu.TextureFormat{format},
	})
	if err != nil {
		return err
	}
	s.pipeline = pipeline
	s.builtFormat = format
	return nil
}

func (s *PostprocessGammaStage) Run(eng *Engine, input TextureHandle, output TextureHandle) error {
	if err := s.ensurePipeline(eng, output.PixelFormat()); err != nil {
		return err
	}
	if err := eng.Queue.WriteBuffer(s.gammaBuffer, 0, wgpu.ToBytes([]float32{s.Gamma.Gamma})); err != nil {
		return fmt.Errorf("forge: gamma uniform write: %w", err)
	}

	bindGroup, err := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "gamma-bindgroup",
		Layout: s.pipeline.BindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: s.sampler},
			input.BindGroupEntry(1),
			{Binding: 2, Buffer: s.gammaBuffer, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("forge: gamma bind group: %w", err)
	}

	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "gamma"})
	if err != nil {
		return fmt.Errorf("forge: gamma encoder: %w", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "gamma-pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    output.View(),
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
		}},
	})
	bound := s.pipeline.Bind(pass)
	bound.SetBindGroup(0, bindGroup)
	bound.DrawFullscreenTriangle()
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: gamma finish: %w", err)
	}
	eng.Queue.Submit(cmd)
	return nil
}
