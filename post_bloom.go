package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// BloomParams are the tunables a host mutates directly, matching
// spec.md §6's threshold/blur_iterations/offset_scale configuration
// table.
type BloomParams struct {
	Threshold      float32
	Intensity      float32
	BlurIterations int
	OffsetScale    float32
}

func DefaultBloomParams() BloomParams {
	return BloomParams{Threshold: 1.0, Intensity: 0.2, BlurIterations: 4, OffsetScale: 1.0}
}

const bloomExtractShaderWGSL = `
struct Threshold {
    value: f32,
};
@group(0) @binding(0) var samp: sampler;
@group(0) @binding(1) var screen_tex: texture_2d<f32>;
@group(0) @binding(2) var<uniform> threshold: Threshold;

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
    let bright = max(color - vec3<f32>(threshold.value, threshold.value, threshold.value), vec3<f32>(0.0, 0.0, 0.0));
    return vec4<f32>(bright, 1.0);
}
`

const bloomBlurShaderWGSL = `
struct BlurParams {
    direction: vec2<f32>,
    texel_size: vec2<f32>,
};
@group(0) @binding(0) var samp: sampler;
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var<uniform> params: BlurParams;

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

const weights = array<f32, 5>(0.227027, 0.1945946, 0.1216216, 0.054054, 0.016216);

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    let step = params.direction * params.texel_size;
    var result = textureSample(src_tex, samp, in.uv).rgb * weights[0];
    for (var i: i32 = 1; i < 5; i = i + 1) {
        let offset = step * f32(i);
        result = result + textureSample(src_tex, samp, in.uv + offset).rgb * weights[i];
        result = result + textureSample(src_tex, samp, in.uv - offset).rgb * weights[i];
    }
    return vec4<f32>(result, 1.0);
}
`

const bloomBlendShaderWGSL = `
struct Intensity {
    value: f32,
};
@group(0) @binding(0) var samp: sampler;
@group(0) @binding(1) var screen_tex: texture_2d<f32>;
@group(0) @binding(2) var bloom_tex: texture_2d<f32>;
@group(0) @binding(3) var<uniform> intensity: Intensity;

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
    let base = textureSample(screen_tex, samp, in.uv).rgb;
    let bloom = textureSample(bloom_tex, samp, in.uv).rgb;
    return vec4<f32>(base + bloom * intensity.value, 1.0);
}
`

type blurParamsGPU struct {
	DirX, DirY     float32
	TexelX, TexelY float32
}

// PostprocessBloomStage extracts over-threshold brightness from the
// HDR buffer, blurs it with a separable ping-ponged Gaussian pass, and
// additively blends it back in, mirroring original_source's
// PostprocessBloomStage.hpp's bright-pass + blur + additive-composite
// shape without its multi-mip downsample chain (out of scope for this
// module's non-goals around GI-adjacent multipass lighting).
type PostprocessBloomStage struct {
	Params BloomParams

	extractPipeline *GpuPipeline
	blurPipeline    *GpuPipeline
	blendPipeline   *GpuPipeline
	sampler         *wgpu.Sampler

	thresholdBuffer *wgpu.Buffer
	blurParamsA     *wgpu.Buffer
	blurParamsB     *wgpu.Buffer
	intensityBuffer *wgpu.Buffer

	width, height uint32
	pingA, pingB  *GpuTexture
}

func NewPostprocessBloomStage(eng *Engine, params BloomParams) (*PostprocessBloomStage, error) {
	extract, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:        "bloom-extract",
		ShaderName:   "bloom_extract",
		ShaderSource: ShaderSource{Label: "bloom_extract", Code: bloomExtractShaderWGSL},
		ColorFormats: []wgpu.TextureFormat{wgpu.TextureFormatRGBA16Float},
	})
	if err != nil {
		return nil, err
	}
	blur, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:        "bloom-blur",
		ShaderName:   "bloom_blur",
		ShaderSource: ShaderSource{Label: "bloom_blur", Code: bloomBlurShaderWGSL},
		ColorFormats: []wgpu.TextureFormat{wgpu.TextureFormatRGBA16Float},
	})
	if err != nil {
		return nil, err
	}
	blend, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:        "bloom-blend",
		ShaderName:   "bloom_blend",
		ShaderSource: ShaderSource{Label: "bloom_blend", Code: bloomBlendShaderWGSL},
		ColorFormats: []wgpu.TextureFormat{wgpu.TextureFormatRGBA16Float},
	})
	if err != nil {
		return nil, err
	}
	sampler, err := NewLinearSampler(eng.Device, "bloom-sampler")
	if err != nil {
		return nil, err
	}

	makeUniform := func(label string, size uint64) (*wgpu.Buffer, error) {
		return eng.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label, Size: size, Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
	}
	thresholdBuffer, err := makeUniform("bloom-threshold", 16)
	if err != nil {
		return nil, fmt.Errorf("forge: bloom threshold buffer: %w", err)
	}
	blurParamsA, err := makeUniform("bloom-blur-params-h", 16)
	if err != nil {
		return nil, fmt.Errorf("forge: bloom blur params buffer: %w", err)
	}
	blurParamsB, err := makeUniform("bloom-blur-params-v", 16)
	if err != nil {
		return nil, fmt.Errorf("forge: bloom blur params buffer: %w", err)
	}
	intensityBuffer, err := makeUniform("bloom-intensity", 16)
	if err != nil {
		return nil, fmt.Errorf("forge: bloom intensity buffer: %w", err)
	}

	return &PostprocessBloomStage{
		Params:          params,
		extractPipeline: extract,
		blurPipeline:    blur,
		blendPipeline:   blend,
		sampler:         sampler,
		thresholdBuffer: thresholdBuffer,
		blurParamsA:     blurParamsA,
		blurParamsB:     blurParamsB,
		intensityBuffer: intensityBuffer,
	}, nil
}

func (s *PostprocessBloomStage) Name() string { return "PostprocessBloom" }

func (s *PostprocessBloomStage) ensurePingPong(eng *Engine) error {
	w, h := eng.HDR.Width, eng.HDR.Height
	if w == s.width && h == s.height && s.pingA != nil {
		return nil
	}
	s.width, s.height = w, h

	release := func(t *GpuTexture) {
		if t != nil {
			t.Texture.Release()
		}
	}
	release(s.pingA)
	release(s.pingB)

	make := func(label string) (*GpuTexture, error) {
		tex, err := eng.Device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         label,
			Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        wgpu.TextureFormatRGBA16Float,
			Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
		})
		if err != nil {
			return nil, err
		}
		view, err := tex.CreateView(nil)
		if err != nil {
			return nil, err
		}
		return NewGpuTexture(tex, view, wgpu.TextureFormatRGBA16Float), nil
	}

	var err error
	if s.pingA, err = make("bloom-ping-a"); err != nil {
		return fmt.Errorf("forge: bloom ping buffer a: %w", err)
	}
	if s.pingB, err = make("bloom-ping-b"); err != nil {
		return fmt.Errorf("forge: bloom ping buffer b: %w", err)
	}
	return nil
}

func (s *PostprocessBloomStage) Run(eng *Engine, input TextureHandle, output TextureHandle) error {
	if err := s.ensurePingPong(eng); err != nil {
		return err
	}

	if err := s.fullscreenPass(eng, "bloom-extract", s.extractPipeline, s.pingA, []wgpu.BindGroupEntry{
		{Binding: 0, Sampler: s.sampler},
		input.BindGroupEntry(1),
		{Binding: 2, Buffer: s.thresholdBuffer, Size: wgpu.WholeSize},
	}, func() error {
		return eng.Queue.WriteBuffer(s.thresholdBuffer, 0, wgpu.ToBytes([]float32{s.Params.Threshold}))
	}); err != nil {
		return err
	}

	texelX, texelY := float32(1)/float32(s.width), float32(1)/float32(s.height)
	src, dst := s.pingA, s.pingB
	iterations := s.Params.BlurIterations
	if iterations < 1 {
		iterations = 1
	}
	for i := 0; i < iterations; i++ {
		horizontal := blurParamsGPU{DirX: s.Params.OffsetScale, DirY: 0, TexelX: texelX, TexelY: texelY}
		if err := s.fullscreenPass(eng, "bloom-blur-h", s.blurPipeline, dst, []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: s.sampler},
			src.BindGroupEntry(1),
			{Binding: 2, Buffer: s.blurParamsA, Size: wgpu.WholeSize},
		}, func() error {
			return eng.Queue.WriteBuffer(s.blurParamsA, 0, wgpu.ToBytes([]blurParamsGPU{horizontal}))
		}); err != nil {
			return err
		}
		src, dst = dst, src

		vertical := blurParamsGPU{DirX: 0, DirY: s.Params.OffsetScale, TexelX: texelX, TexelY: texelY}
		if err := s.fullscreenPass(eng, "bloom-blur-v", s.blurPipeline, dst, []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: s.sampler},
			src.BindGroupEntry(1),
			{Binding: 2, Buffer: s.blurParamsB, Size: wgpu.WholeSize},
		}, func() error {
			return eng.Queue.WriteBuffer(s.blurParamsB, 0, wgpu.ToBytes([]blurParamsGPU{vertical}))
		}); err != nil {
			return err
		}
		src, dst = dst, src
	}

	return s.fullscreenPass(eng, "bloom-blend", s.blendPipeline, output, []wgpu.BindGroupEntry{
		{Binding: 0, Sampler: s.sampler},
		input.BindGroupEntry(1),
		src.BindGroupEntry(2),
		{Binding: 3, Buffer: s.intensityBuffer, Size: wgpu.WholeSize},
	}, func() error {
		return eng.Queue.WriteBuffer(s.intensityBuffer, 0, wgpu.ToBytes([]float32{s.Params.Intensity}))
	})
}

// fullscreenPass runs one draw-a-fullscreen-triangle pass writing into
// target, shared by extract/blur/blend since every bloom substep has
// the same shape: upload a uniform, build a bind group, draw.
func (s *PostprocessBloomStage) fullscreenPass(eng *Engine, label string, pipeline *GpuPipeline, target TextureHandle, entries []wgpu.BindGroupEntry, writeUniform func() error) error {
	if err := writeUniform(); err != nil {
		return fmt.Errorf("forge: %s uniform write: %w", label, err)
	}
	bindGroup, err := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label + "-bindgroup",
		Layout:  pipeline.BindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("forge: %s bind group: %w", label, err)
	}

	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("forge: %s encoder: %w", label, err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: label + "-pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    target.View(),
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
		}},
	})
	bound := pipeline.Bind(pass)
	bound.SetBindGroup(0, bindGroup)
	bound.DrawFullscreenTriangle()
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: %s finish: %w", label, err)
	}
	eng.Queue.Submit(cmd)
	return nil
}
