package forge

import (
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
)

// HDRParams are the tunables a host mutates directly, matching the
// ambient stack's plain-struct configuration convention.
type HDRParams struct {
	ExposureFactor float32
	AdaptationRate float32
	NumSamples     int // grid is NumSamples x ceil(NumSamples*aspect)
	UseAdaptation  bool
}

func DefaultHDRParams() HDRParams {
	return HDRParams{ExposureFactor: 0.35, AdaptationRate: 1.0, NumSamples: 64, UseAdaptation: true}
}

const hdrReduceShaderWGSL = `
struct Params {
    grid: vec2<u32>,
    tex_size: vec2<u32>,
};
@group(0) @binding(0) var screen_tex: texture_2d<f32>;
@group(0) @binding(1) var<uniform> params: Params;
@group(0) @binding(2) var<storage, read_write> out_values: array<f32>;

@compute @workgroup_size(1, 1, 1)
fn cs_main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x >= params.grid.x || gid.y >= params.grid.y) {
        return;
    }
    let uv = (vec2<f32>(gid.xy) + vec2<f32>(0.5, 0.5)) / vec2<f32>(params.grid);
    let coord = min(vec2<u32>(uv * vec2<f32>(params.tex_size)), params.tex_size - vec2<u32>(1u, 1u));
    let color = textureLoad(screen_tex, coord, 0);
    let lum = dot(color.rgb, vec3<f32>(0.2126, 0.7152, 0.0722));
    out_values[gid.y * params.grid.x + gid.x] = lum;
}
`

const hdrCompositeShaderWGSL = `
struct Exposure {
    value: f32,
};
@group(0) @binding(0) var samp: sampler;
@group(0) @binding(1) var screen_tex: texture_2d<f32>;
@group(0) @binding(2) var<uniform> exposure: Exposure;

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
    let hdr = textureSample(screen_tex, samp, in.uv).rgb;
    let mapped = vec3<f32>(1.0, 1.0, 1.0) - exp(-hdr * exposure.value);
    return vec4<f32>(mapped, 1.0);
}
`

type hdrReduceParams struct {
	GridX, GridY uint32
	TexW, TexH   uint32
}

// PostprocessHDREyeAdaptationStage reduces the HDR scene color to a
// single average luminance sample on the GPU, folds it into a
// time-weighted running mean, and derives an exposure factor from that
// mean — reproducing
// original_source/.../PostprocessHDREyeAdaptationStage.hpp exactly:
// scaled_weighted_mean_fold and exposure_function.
type PostprocessHDREyeAdaptationStage struct {
	Params HDRParams

	currentScreenValue float32
	reduced            *Storage[float32]
	oldNumSamples      int

	reduceLayout   *wgpu.BindGroupLayout
	reducePipeline *GpuComputePipeline
	paramsBuffer   *wgpu.Buffer

	compositePipeline *GpuPipeline
	sampler           *wgpu.Sampler
	exposureBuffer    *wgpu.Buffer
}

func NewPostprocessHDREyeAdaptationStage(eng *Engine, params HDRParams) (*PostprocessHDREyeAdaptationStage, error) {
	reducePipeline, err := BuildComputePipeline(eng.Device, eng.Shaders, "hdr_reduce", ShaderSource{Label: "hdr_reduce", Code: hdrReduceShaderWGSL})
	if err != nil {
		return nil, err
	}
	paramsBuffer, err := eng.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "hdr-reduce-params",
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: hdr reduce params buffer: %w", err)
	}

	compositePipeline, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:        "hdr-composite",
		ShaderName:   "hdr_composite",
		ShaderSource: ShaderSource{Label: "hdr_composite", Code: hdrCompositeShaderWGSL},
		ColorFormats: []wgpu.TextureFormat{wgpu.TextureFormatRGBA16Float},
	})
	if err != nil {
		return nil, err
	}
	sampler, err := NewLinearSampler(eng.Device, "hdr-composite-sampler")
	if err != nil {
		return nil, err
	}
	exposureBuffer, err := eng.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "hdr-composite-exposure",
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: hdr composite exposure buffer: %w", err)
	}

	return &PostprocessHDREyeAdaptationStage{
		Params:             params,
		currentScreenValue: 1.0,
		reduced:            NewStorage[float32](eng.Device, eng.Queue, "hdr-reduce"),
		oldNumSamples:      params.NumSamples,
		reduceLayout:       reducePipeline.BindGroupLayout(0),
		reducePipeline:     reducePipeline,
		paramsBuffer:       paramsBuffer,
		compositePipeline:  compositePipeline,
		sampler:            sampler,
		exposureBuffer:     exposureBuffer,
	}, nil
}

func (s *PostprocessHDREyeAdaptationStage) Name() string { return "PostprocessHDREyeAdaptation" }

func (s *PostprocessHDREyeAdaptationStage) Run(eng *Engine, input TextureHandle, output TextureHandle) error {
	if s.Params.UseAdaptation {
		avg, err := s.computeAvgScreenValue(eng, input)
		if err != nil {
			return err
		}
		frameWeight := float32(eng.Timer.Dt)
		s.currentScreenValue = scaledWeightedMeanFold(s.currentScreenValue, avg, frameWeight, s.Params.AdaptationRate)
	}

	exposure := exposureFunction(s.currentScreenValue, s.Params.ExposureFactor)
	return s.composite(eng, input, output, exposure)
}

// scaledWeightedMeanFold implements
// m_next = (m + s*w*v) / (1 + s*w), the exact running-mean update the
// original stage uses frame over frame.
func scaledWeightedMeanFold(currentMean, value, weight, scale float32) float32 {
	return (currentMean + scale*weight*value) / (1 + scale*weight)
}

// exposureFunction implements exposure = exposure_factor / (m + 1e-4).
func exposureFunction(screenValue, exposureFactor float32) float32 {
	return exposureFactor / (screenValue + 0.0001)
}

// computeAvgScreenValue dispatches the GPU luminance-reduction compute
// shader over an Nx x Ny grid (Nx = ceil(num_samples*aspect), Ny =
// num_samples), then reads the SSBO back and averages it on the CPU —
// the one explicit wgpu queue submit + map-read synchronization point
// spec.md §5 calls out.
func (s *PostprocessHDREyeAdaptationStage) computeAvgScreenValue(eng *Engine, screen TextureHandle) (float32, error) {
	numYSamples := s.Params.NumSamples
	numXSamples := int(math.Ceil(float64(numYSamples) * float64(eng.Camera.AspectRatio)))
	if numXSamples < 1 {
		numXSamples = 1
	}
	if numYSamples < 1 {
		numYSamples = 1
	}

	if s.needsStorageResize(numXSamples, numYSamples) {
		if err := s.resizeOutputStorage(numXSamples, numYSamples); err != nil {
			return 0, err
		}
	}

	texW, texH := eng.HDR.Width, eng.HDR.Height
	if err := eng.Queue.WriteBuffer(s.paramsBuffer, 0, wgpu.ToBytes([]hdrReduceParams{{
		GridX: uint32(numXSamples), GridY: uint32(numYSamples), TexW: texW, TexH: texH,
	}})); err != nil {
		return 0, fmt.Errorf("forge: hdr reduce params write: %w", err)
	}

	bindGroup, err := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "hdr-reduce-bindgroup",
		Layout: s.reduceLayout,
		Entries: []wgpu.BindGroupEntry{
			screen.BindGroupEntry(0),
			{Binding: 1, Buffer: s.paramsBuffer, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: s.reduced.Buffer(), Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("forge: hdr reduce bind group: %w", err)
	}

	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "hdr-reduce"})
	if err != nil {
		return 0, fmt.Errorf("forge: hdr reduce encoder: %w", err)
	}
	pass := encoder.BeginComputePass(nil)
	bound := s.reducePipeline.Bind(pass)
	bound.SetBindGroup(0, bindGroup)
	bound.Dispatch(uint32(numXSamples), uint32(numYSamples), 1)
	pass.End()
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return 0, fmt.Errorf("forge: hdr reduce finish: %w", err)
	}
	eng.Queue.Submit(cmd)

	values, err := s.reduced.ReadToStorage()
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 1.0, nil
	}
	var sum float32
	for _, v := range values {
		sum += v
	}
	return sum / float32(len(values)), nil
}

func (s *PostprocessHDREyeAdaptationStage) needsStorageResize(numX, numY int) bool {
	return numX*numY != s.oldNumSamples
}

func (s *PostprocessHDREyeAdaptationStage) resizeOutputStorage(numX, numY int) error {
	n := numX * numY
	if err := s.reduced.CreateStorage(n); err != nil {
		return fmt.Errorf("forge: resize hdr reduce storage: %w", err)
	}
	s.oldNumSamples = n
	return nil
}

func (s *PostprocessHDREyeAdaptationStage) composite(eng *Engine, input, output TextureHandle, exposure float32) error {
	if err := eng.Queue.WriteBuffer(s.exposureBuffer, 0, wgpu.ToBytes([]float32{exposure})); err != nil {
		return fmt.Errorf("forge: hdr composite exposure write: %w", err)
	}
	bindGroup, err := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "hdr-composite-bindgroup",
		Layout: s.compositePipeline.BindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: s.sampler},
			input.BindGroupEntry(1),
			{Binding: 2, Buffer: s.exposureBuffer, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("forge: hdr composite bind group: %w", err)
	}

	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "hdr-composite"})
	if err != nil {
		return fmt.Errorf("forge: hdr composite encoder: %w", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "hdr-composite-pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    output.View(),
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
		}},
	})
	bound := s.compositePipeline.Bind(pass)
	bound.SetBindGroup(0, bindGroup)
	bound.DrawFullscreenTriangle()
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: hdr composite finish: %w", err)
	}
	eng.Queue.Submit(cmd)
	return nil
}
