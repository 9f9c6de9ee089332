package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// ForwardOnly tags an entity as participating only in
// ForwardRenderingStage (e.g. transparent or emissive-only geometry),
// skipping the deferred G-buffer pass entirely.
type ForwardOnly struct{}

const deferredGeometryShaderWGSL = `
struct Uniforms {
    mvp: mat4x4<f32>,
    model: mat4x4<f32>,
    normal_model: mat4x4<f32>,
};
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(1) @binding(0) var samp: sampler;
@group(1) @binding(1) var diffuseTex: texture_2d<f32>;
@group(1) @binding(2) var specularTex: texture_2d<f32>;
@group(1) @binding(3) var normalTex: texture_2d<f32>;

struct VertexOut {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) world_position: vec3<f32>,
    @location(1) world_normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
};

@vertex
fn vs_main(
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
) -> VertexOut {
    var out: VertexOut;
    out.clip_position = uniforms.mvp * vec4<f32>(position, 1.0);
    out.world_position = (uniforms.model * vec4<f32>(position, 1.0)).xyz;
    out.world_normal = normalize((uniforms.normal_model * vec4<f32>(normal, 0.0)).xyz);
    out.uv = uv;
    return out;
}

struct FragmentOut {
    @location(0) position: vec4<f32>,
    @location(1) normal: vec4<f32>,
    @location(2) material: vec4<f32>,
};

@fragment
fn fs_main(in: VertexOut) -> FragmentOut {
    var out: FragmentOut;
    let diffuse = textureSample(diffuseTex, samp, in.uv);
    let specular = textureSample(specularTex, samp, in.uv);
    out.position = vec4<f32>(in.world_position, 1.0);
    out.normal = vec4<f32>(normalize(in.world_normal), 0.0);
    out.material = vec4<f32>(diffuse.rgb, specular.r);
    return out;
}
`

// DeferredGeometryStage fills the G-buffer with every opaque entity's
// position/normal/material data, binding DefaultTextures for every
// texture slot; a MaterialComponent's own texture ids are not resolved
// to textures here. Grounded on
// original_source/.../primary/GBufferStage.cpp's per-entity draw loop
// and gpu_operations.go's createRenderPipeline/createBindGroups for
// the pipeline/bind-group construction it performs once at startup.
type DeferredGeometryStage struct {
	defaults *DefaultTextures

	pipeline     *GpuPipeline
	textureGroup *wgpu.BindGroup
	uniforms     *uniformPool
}

func NewDeferredGeometryStage(eng *Engine, defaults *DefaultTextures) (*DeferredGeometryStage, error) {
	pipeline, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:         "deferred-geometry",
		ShaderName:    "deferred_geometry",
		ShaderSource:  ShaderSource{Label: "deferred_geometry", Code: deferredGeometryShaderWGSL},
		VertexBuffers: []wgpu.VertexBufferLayout{meshVertexBufferLayout()},
		ColorFormats: []wgpu.TextureFormat{
			wgpu.TextureFormatRGBA16Float,
			wgpu.TextureFormatRGBA16Float,
			wgpu.TextureFormatRGBA8Unorm,
		},
		DepthFormat:  wgpu.TextureFormatDepth32Float,
		DepthWrite:   true,
		DepthCompare: wgpu.CompareFunctionLess,
		CullMode:     wgpu.CullModeBack,
	})
	if err != nil {
		return nil, err
	}

	sampler, err := NewLinearSampler(eng.Device, "deferred-geometry-sampler")
	if err != nil {
		return nil, err
	}

	textureGroup, err := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "deferred-geometry-textures",
		Layout: pipeline.BindGroupLayout(1),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: sampler},
			defaults.Grey.BindGroupEntry(1),
			defaults.Grey.BindGroupEntry(2),
			defaults.FlatNormal.BindGroupEntry(3),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("forge: deferred geometry texture bind group: %w", err)
	}

	uniforms := newUniformPool(eng.Device, "deferred-geometry-uniforms", 64*3, pipeline.BindGroupLayout(0))

	return &DeferredGeometryStage{
		defaults:     defaults,
		pipeline:     pipeline,
		textureGroup: textureGroup,
		uniforms:     uniforms,
	}, nil
}

func (s *DeferredGeometryStage) Name() string { return "DeferredGeometry" }

func (s *DeferredGeometryStage) Run(eng *Engine) error {
	if eng.GBuffer.Position == nil {
		return fmt.Errorf("forge: gbuffer not sized")
	}

	viewProj := eng.Camera.ViewProjectionMatrix()
	frustum := ExtractFrustum(viewProj)

	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "deferred-geometry"})
	if err != nil {
		return fmt.Errorf("forge: deferred geometry encoder: %w", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "deferred-geometry",
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{View: eng.GBuffer.Position.View(), LoadOp: wgpu.LoadOpLoad, StoreOp: wgpu.StoreOpStore},
			{View: eng.GBuffer.Normal.View(), LoadOp: wgpu.LoadOpLoad, StoreOp: wgpu.StoreOpStore},
			{View: eng.GBuffer.Material.View(), LoadOp: wgpu.LoadOpLoad, StoreOp: wgpu.StoreOpStore},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:         eng.GBuffer.Depth.View(),
			DepthLoadOp:  wgpu.LoadOpLoad,
			DepthStoreOp: wgpu.StoreOpStore,
		},
	})
	s.uniforms.reset()
	bound := s.pipeline.Bind(pass)
	bound.SetBindGroup(1, s.textureGroup)

	var drawErr error
	NewQuery3[TransformComponent, MeshComponent, MaterialComponent](eng.Registry).
		WithoutTypes(typeOf[ForwardOnly]()).
		Map(func(id EntityId, t *TransformComponent, mesh *MeshComponent, mat *MaterialComponent) bool {
			world := *t
			if AnyOf[ChildMeshComponent](eng.Registry, id) {
				world = ResolveWorldTransform(eng.Registry, id)
			}
			if !frustum.IntersectsSphere(world.Position, cullRadius(world)) {
				return true
			}
			if mesh.Mesh == nil {
				drawErr = fmt.Errorf("forge: entity %d has no mesh handle", id)
				return false
			}

			buf, bg, err := s.uniforms.acquire()
			if err != nil {
				drawErr = err
				return false
			}
			model := world.Model()
			u := objectUniforms{
				MVP:         viewProj.Mul4(model),
				Model:       model,
				NormalModel: mat3ToMat4(world.NormalModel()),
			}
			if err := eng.Queue.WriteBuffer(buf, 0, wgpu.ToBytes([]objectUniforms{u})); err != nil {
				drawErr = fmt.Errorf("forge: deferred geometry uniform write: %w", err)
				return false
			}
			bound.SetBindGroup(0, bg)
			bound.DrawMesh(mesh.Mesh)
			return true
		})
	pass.End()

	if drawErr != nil {
		return drawErr
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: deferred geometry finish: %w", err)
	}
	eng.Queue.Submit(cmd)
	return nil
}

func cullRadius(t TransformComponent) float32 {
	s := t.Scale
	m := s.X()
	if s.Y() > m {
		m = s.Y()
	}
	if s.Z() > m {
		m = s.Z()
	}
	return m * 2
}
