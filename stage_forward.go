package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

const forwardShadingShaderWGSL = `
struct Uniforms {
    mvp: mat4x4<f32>,
    model: mat4x4<f32>,
    normal_model: mat4x4<f32>,
};
@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(1) @binding(0) var samp: sampler;
@group(1) @binding(1) var diffuseTex: texture_2d<f32>;
@group(1) @binding(2) var specularTex: texture_2d<f32>;

struct LightGPU {
    position: vec3<f32>,
    kind: u32,
    direction: vec3<f32>,
    range: f32,
    color: vec3<f32>,
    intensity: f32,
    cone_angle: f32,
    shadow_index: i32,
    _pad: vec2<f32>,
};

struct CascadeParams {
    proj_view: mat4x4<f32>,
    scale: vec3<f32>,
    z_split: f32,
};

struct SceneUniforms {
    ambient: vec3<f32>,
    point_z_far: f32,
    dir_direction: vec3<f32>,
    dir_cast_shadow: u32,
    dir_color: vec3<f32>,
    dir_intensity: f32,
    cascade_count: u32,
};

@group(2) @binding(0) var shadow_samp: sampler_comparison;
@group(2) @binding(1) var csm_depth: texture_depth_2d_array;
@group(2) @binding(2) var point_depth: texture_depth_cube_array;
@group(2) @binding(3) var<storage, read> lights_shadowed: array<LightGPU>;
@group(2) @binding(4) var<storage, read> lights_plain: array<LightGPU>;
@group(2) @binding(5) var<storage, read> cascades: array<CascadeParams>;
@group(2) @binding(6) var<uniform> scene: SceneUniforms;

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

fn fwd_cascade_index(view_depth: f32) -> i32 {
    for (var i: u32 = 0u; i < scene.cascade_count; i = i + 1u) {
        if (view_depth <= cascades[i].z_split) {
            return i32(i);
        }
    }
    return i32(scene.cascade_count) - 1;
}

fn fwd_directional_shadow(world_pos: vec3<f32>, n_dot_l: f32) -> f32 {
    if (scene.dir_cast_shadow == 0u || scene.cascade_count == 0u) {
        return 1.0;
    }
    let idx = fwd_cascade_index(length(world_pos));
    let clip = cascades[idx].proj_view * vec4<f32>(world_pos, 1.0);
    let ndc = clip.xyz / clip.w;
    let uv = vec2<f32>(ndc.x * 0.5 + 0.5, 1.0 - (ndc.y * 0.5 + 0.5));
    let bias = max(0.002 * (1.0 - n_dot_l), 0.0005);
    return textureSampleCompare(csm_depth, shadow_samp, uv, idx, ndc.z - bias);
}

fn fwd_point_shadow(light_index: i32, world_pos: vec3<f32>, light_pos: vec3<f32>) -> f32 {
    if (light_index < 0) {
        return 1.0;
    }
    let to_frag = world_pos - light_pos;
    let depth = length(to_frag) / scene.point_z_far;
    return textureSampleCompare(point_depth, shadow_samp, to_frag, light_index, depth - 0.003);
}

fn fwd_shade_point(l: LightGPU, world_pos: vec3<f32>, normal: vec3<f32>, shadowed: bool) -> vec3<f32> {
    let to_light = l.position - world_pos;
    let dist = length(to_light);
    if (l.range > 0.0 && dist > l.range) {
        return vec3<f32>(0.0);
    }
    let dir = to_light / max(dist, 1e-4);
    let n_dot_l = max(dot(normal, dir), 0.0);
    var atten = 1.0 / max(dist * dist, 1e-4);
    var shadow = 1.0;
    if (shadowed) {
        shadow = fwd_point_shadow(l.shadow_index, world_pos, l.position);
    }
    return l.color * l.intensity * n_dot_l * atten * shadow;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    let diffuse = textureSample(diffuseTex, samp, in.uv);
    let n = normalize(in.world_normal);

    var color = scene.ambient * diffuse.rgb;

    let n_dot_l_dir = max(dot(n, -scene.dir_direction), 0.0);
    let dir_shadow = fwd_directional_shadow(in.world_position, n_dot_l_dir);
    color = color + diffuse.rgb * scene.dir_color * scene.dir_intensity * n_dot_l_dir * dir_shadow;

    let shadowed_count = arrayLength(&lights_shadowed);
    for (var i: u32 = 0u; i < shadowed_count; i = i + 1u) {
        color = color + diffuse.rgb * fwd_shade_point(lights_shadowed[i], in.world_position, n, true);
    }
    let plain_count = arrayLength(&lights_plain);
    for (var i: u32 = 0u; i < plain_count; i = i + 1u) {
        color = color + diffuse.rgb * fwd_shade_point(lights_plain[i], in.world_position, n, false);
    }

    return vec4<f32>(color, diffuse.a);
}
`

// ForwardRenderingStage draws everything DeferredGeometryStage skipped
// (ForwardOnly-tagged entities: transparent or emissive-only meshes)
// directly on top of the shaded HDR buffer, in entity order — no
// transparency sorting, per spec.md's non-goals. Per spec.md §4.7 it
// binds the same shadow-casting/plain point-light SSBOs, directional
// shadow map, and point shadow cubemap array DeferredShadingStage
// does, so forward-shaded geometry gets the same per-pixel lighting
// with shadow sampling deferred geometry gets.
type ForwardRenderingStage struct {
	defaults  *DefaultTextures
	pointMaps SharedStorageView[PointShadowMapsOutput]
	cascades  SharedStorageView[CascadedShadowOutput]

	lightsShadowed *Storage[LightGPU]
	lightsPlain    *Storage[LightGPU]
	cascadeSSBO    *Storage[CascadeParams]
	sceneUniform   *wgpu.Buffer

	pipeline      *GpuPipeline
	textureGroup  *wgpu.BindGroup
	shadowSampler *wgpu.Sampler
	lightGroup    *wgpu.BindGroup
	uniforms      *uniformPool
}

func NewForwardRenderingStage(
	eng *Engine,
	defaults *DefaultTextures,
	pointMaps SharedStorageView[PointShadowMapsOutput],
	cascades SharedStorageView[CascadedShadowOutput],
) (*ForwardRenderingStage, error) {
	pipeline, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:         "forward-shading",
		ShaderName:    "forward_shading",
		ShaderSource:  ShaderSource{Label: "forward_shading", Code: forwardShadingShaderWGSL},
		VertexBuffers: []wgpu.VertexBufferLayout{meshVertexBufferLayout()},
		ColorFormats:  []wgpu.TextureFormat{wgpu.TextureFormatRGBA16Float},
		DepthFormat:   wgpu.TextureFormatDepth32Float,
		DepthWrite:    false,
		DepthCompare:  wgpu.CompareFunctionLess,
		CullMode:      wgpu.CullModeBack,
	})
	if err != nil {
		return nil, err
	}

	sampler, err := NewLinearSampler(eng.Device, "forward-shading-sampler")
	if err != nil {
		return nil, err
	}
	textureGroup, err := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "forward-shading-textures",
		Layout: pipeline.BindGroupLayout(1),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: sampler},
			defaults.Grey.BindGroupEntry(1),
			defaults.Grey.BindGroupEntry(2),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("forge: forward shading texture bind group: %w", err)
	}

	shadowSampler, err := eng.Device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "forward-shading-shadow-sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		Compare:       wgpu.CompareFunctionLess,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: forward shading shadow sampler: %w", err)
	}

	sceneUniform, err := eng.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "forward-shading-scene-uniforms",
		Size:  64,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: forward shading scene uniform buffer: %w", err)
	}

	uniforms := newUniformPool(eng.Device, "forward-shading-uniforms", 64*3, pipeline.BindGroupLayout(0))

	return &ForwardRenderingStage{
		defaults:       defaults,
		pointMaps:      pointMaps,
		cascades:       cascades,
		lightsShadowed: NewStorage[LightGPU](eng.Device, eng.Queue, "forward-point-lights-shadowed"),
		lightsPlain:    NewStorage[LightGPU](eng.Device, eng.Queue, "forward-point-lights-plain"),
		cascadeSSBO:    NewStorage[CascadeParams](eng.Device, eng.Queue, "forward-cascade-params"),
		sceneUniform:   sceneUniform,
		pipeline:       pipeline,
		textureGroup:   textureGroup,
		shadowSampler:  shadowSampler,
		uniforms:       uniforms,
	}, nil
}

// ensureLightGroup (re)builds group 2 whenever the shadow map views
// change shape, mirroring DeferredShadingStage.ensureBindGroup — a
// wgpu bind group pins specific TextureView objects at creation time.
func (s *ForwardRenderingStage) ensureLightGroup(eng *Engine) error {
	bg, err := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "forward-shading-lights",
		Layout: s.pipeline.BindGroupLayout(2),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: s.shadowSampler},
			{Binding: 1, TextureView: eng.Cascades.View},
			{Binding: 2, TextureView: eng.PointMaps.View},
			{Binding: 3, Buffer: s.lightsShadowed.Buffer(), Size: wgpu.WholeSize},
			{Binding: 4, Buffer: s.lightsPlain.Buffer(), Size: wgpu.WholeSize},
			{Binding: 5, Buffer: s.cascadeSSBO.Buffer(), Size: wgpu.WholeSize},
			{Binding: 6, Buffer: s.sceneUniform, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("forge: forward shading light bind group: %w", err)
	}
	s.lightGroup = bg
	return nil
}

func (s *ForwardRenderingStage) Name() string { return "ForwardRendering" }

func (s *ForwardRenderingStage) Run(eng *Engine) error {
	if eng.Main.Color == nil {
		return fmt.Errorf("forge: main hdr target not sized")
	}

	shadowed, plain := collectSplitPointLights(eng)
	if err := s.lightsShadowed.Upload(shadowed); err != nil {
		return fmt.Errorf("forge: forward shading upload shadowed lights: %w", err)
	}
	if err := s.lightsPlain.Upload(plain); err != nil {
		return fmt.Errorf("forge: forward shading upload plain lights: %w", err)
	}

	pointOut := s.pointMaps.Get()
	cascadeOut := s.cascades.Get()
	if err := s.cascadeSSBO.Upload(cascadeOut.Cascades); err != nil {
		return fmt.Errorf("forge: forward shading upload cascade params: %w", err)
	}

	dir, color, intensity := resolveDirectionalLight(eng)
	u := sceneUniforms{
		Ambient:       mgl32.Vec3{0.03, 0.03, 0.03},
		PointZFar:     pointOut.ZFar,
		DirDirection:  dir,
		DirCastShadow: boolToU32(len(cascadeOut.Cascades) > 0),
		DirColor:      color,
		DirIntensity:  intensity,
		CascadeCount:  uint32(len(cascadeOut.Cascades)),
	}
	if err := eng.Queue.WriteBuffer(s.sceneUniform, 0, wgpu.ToBytes([]sceneUniforms{u})); err != nil {
		return fmt.Errorf("forge: forward shading scene uniform write: %w", err)
	}
	if err := s.ensureLightGroup(eng); err != nil {
		return err
	}

	viewProj := eng.Camera.ViewProjectionMatrix()

	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "forward-shading"})
	if err != nil {
		return fmt.Errorf("forge: forward shading encoder: %w", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "forward-shading",
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{View: eng.Main.Color.View(), LoadOp: wgpu.LoadOpLoad, StoreOp: wgpu.StoreOpStore},
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
	bound.SetBindGroup(2, s.lightGroup)

	var drawErr error
	NewQuery3[TransformComponent, MeshComponent, ForwardOnly](eng.Registry).
		Map(func(id EntityId, t *TransformComponent, mesh *MeshComponent, _ *ForwardOnly) bool {
			world := *t
			if AnyOf[ChildMeshComponent](eng.Registry, id) {
				world = ResolveWorldTransform(eng.Registry, id)
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
				drawErr = fmt.Errorf("forge: forward shading uniform write: %w", err)
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
		return fmt.Errorf("forge: forward shading finish: %w", err)
	}
	eng.Queue.Submit(cmd)
	return nil
}
