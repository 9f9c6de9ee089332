package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

const deferredShadingShaderWGSL = `
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

@group(0) @binding(0) var samp: sampler;
@group(0) @binding(1) var gbuffer_position: texture_2d<f32>;
@group(0) @binding(2) var gbuffer_normal: texture_2d<f32>;
@group(0) @binding(3) var gbuffer_material: texture_2d<f32>;
@group(0) @binding(4) var shadow_samp: sampler_comparison;
@group(0) @binding(5) var csm_depth: texture_depth_2d_array;
@group(0) @binding(6) var point_depth: texture_depth_cube_array;
@group(0) @binding(7) var<storage, read> lights_shadowed: array<LightGPU>;
@group(0) @binding(8) var<storage, read> lights_plain: array<LightGPU>;
@group(0) @binding(9) var<storage, read> cascades: array<CascadeParams>;
@group(0) @binding(10) var<uniform> scene: SceneUniforms;

struct VertexOut {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> VertexOut {
    var out: VertexOut;
    let x = f32((i << 1u) & 2u);
    let y = f32(i & 2u);
    out.clip_position = vec4<f32>(x * 2.0 - 1.0, 1.0 - y * 2.0, 0.0, 1.0);
    out.uv = vec2<f32>(x, y);
    return out;
}

fn cascade_index(world_pos: vec3<f32>, view_depth: f32) -> i32 {
    for (var i: u32 = 0u; i < scene.cascade_count; i = i + 1u) {
        if (view_depth <= cascades[i].z_split) {
            return i32(i);
        }
    }
    return i32(scene.cascade_count) - 1;
}

fn directional_shadow(world_pos: vec3<f32>, n_dot_l: f32) -> f32 {
    if (scene.dir_cast_shadow == 0u || scene.cascade_count == 0u) {
        return 1.0;
    }
    let idx = cascade_index(world_pos, length(world_pos));
    let clip = cascades[idx].proj_view * vec4<f32>(world_pos, 1.0);
    let ndc = clip.xyz / clip.w;
    let uv = vec2<f32>(ndc.x * 0.5 + 0.5, 1.0 - (ndc.y * 0.5 + 0.5));
    let bias = max(0.002 * (1.0 - n_dot_l), 0.0005);
    return textureSampleCompare(csm_depth, shadow_samp, uv, idx, ndc.z - bias);
}

fn point_shadow(light_index: i32, world_pos: vec3<f32>, light_pos: vec3<f32>) -> f32 {
    if (light_index < 0) {
        return 1.0;
    }
    let to_frag = world_pos - light_pos;
    let depth = length(to_frag) / scene.point_z_far;
    return textureSampleCompare(point_depth, shadow_samp, to_frag, light_index, depth - 0.003);
}

fn shade_point(l: LightGPU, world_pos: vec3<f32>, normal: vec3<f32>, shadowed: bool) -> vec3<f32> {
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
        shadow = point_shadow(l.shadow_index, world_pos, l.position);
    }
    return l.color * l.intensity * n_dot_l * atten * shadow;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    let material = textureSample(gbuffer_material, samp, in.uv);
    if (material.a <= 0.0) {
        discard;
    }

    let world_pos = textureSample(gbuffer_position, samp, in.uv).xyz;
    let normal = normalize(textureSample(gbuffer_normal, samp, in.uv).xyz);
    let albedo = material.rgb;

    var color = scene.ambient * albedo;

    let n_dot_l_dir = max(dot(normal, -scene.dir_direction), 0.0);
    let dir_shadow = directional_shadow(world_pos, n_dot_l_dir);
    color = color + albedo * scene.dir_color * scene.dir_intensity * n_dot_l_dir * dir_shadow;

    let shadowed_count = arrayLength(&lights_shadowed);
    for (var i: u32 = 0u; i < shadowed_count; i = i + 1u) {
        color = color + albedo * shade_point(lights_shadowed[i], world_pos, normal, true);
    }
    let plain_count = arrayLength(&lights_plain);
    for (var i: u32 = 0u; i < plain_count; i = i + 1u) {
        color = color + albedo * shade_point(lights_plain[i], world_pos, normal, false);
    }

    return vec4<f32>(color, 1.0);
}
`

// sceneUniforms is deferredShadingShaderWGSL's SceneUniforms mirror;
// field grouping/order matches the WGSL struct's std140 layout.
type sceneUniforms struct {
	Ambient       mgl32.Vec3
	PointZFar     float32
	DirDirection  mgl32.Vec3
	DirCastShadow uint32
	DirColor      mgl32.Vec3
	DirIntensity  float32
	CascadeCount  uint32
	// No trailing pad field: WGSL rounds SceneUniforms up to a multiple
	// of its largest member's alignment (vec3<f32>, align 16) on its
	// own, landing this struct at 64 bytes without one.
}

// DeferredShadingStage composes the G-buffer, the point-light cubemap
// array, and the CSM cascade array into Engine.Main's HDR color via a
// fullscreen pass, driven by an SSBO-backed light list. Destination
// alpha is left untouched as a coverage mask (Design Notes): this
// stage writes alpha=1 only for pixels it actually shades (G-buffer
// material alpha > 0, i.e. DeferredGeometryStage actually wrote it),
// so unshaded background pixels keep the framebuffer's default alpha=0
// for compositing. Grounded on
// original_source/.../stages/DeferredShadingStage.cpp's two-SSBO
// shadowed/unshadowed point light split.
type DeferredShadingStage struct {
	pointMaps SharedStorageView[PointShadowMapsOutput]
	cascades  SharedStorageView[CascadedShadowOutput]

	lightsShadowed *Storage[LightGPU]
	lightsPlain    *Storage[LightGPU]
	cascadeSSBO    *Storage[CascadeParams]
	sceneUniform   *wgpu.Buffer

	pipeline *GpuPipeline
	sampler  *wgpu.Sampler
	shadowSampler *wgpu.Sampler
	bindGroup *wgpu.BindGroup

	ambient            mgl32.Vec3
	directionalColor   mgl32.Vec3
	directionalDir     mgl32.Vec3
	directionalIntensity float32
}

func NewDeferredShadingStage(
	eng *Engine,
	pointMaps SharedStorageView[PointShadowMapsOutput],
	cascades SharedStorageView[CascadedShadowOutput],
) (*DeferredShadingStage, error) {
	pipeline, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:        "deferred-shading",
		ShaderName:   "deferred_shading",
		ShaderSource: ShaderSource{Label: "deferred_shading", Code: deferredShadingShaderWGSL},
		ColorFormats: []wgpu.TextureFormat{wgpu.TextureFormatRGBA16Float},
	})
	if err != nil {
		return nil, err
	}

	sampler, err := NewLinearSampler(eng.Device, "deferred-shading-sampler")
	if err != nil {
		return nil, err
	}
	shadowSampler, err := eng.Device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "deferred-shading-shadow-sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		Compare:       wgpu.CompareFunctionLess,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: deferred shading shadow sampler: %w", err)
	}

	sceneUniform, err := eng.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "deferred-shading-scene-uniforms",
		Size:  64, // sceneUniforms: 4 vec4-aligned rows
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: deferred shading scene uniform buffer: %w", err)
	}

	return &DeferredShadingStage{
		pointMaps:      pointMaps,
		cascades:       cascades,
		lightsShadowed: NewStorage[LightGPU](eng.Device, eng.Queue, "point-lights-shadowed"),
		lightsPlain:    NewStorage[LightGPU](eng.Device, eng.Queue, "point-lights-plain"),
		cascadeSSBO:    NewStorage[CascadeParams](eng.Device, eng.Queue, "cascade-params"),
		sceneUniform:   sceneUniform,
		pipeline:       pipeline,
		sampler:        sampler,
		shadowSampler:  shadowSampler,
		ambient:        mgl32.Vec3{0.03, 0.03, 0.03},
		directionalDir: mgl32.Vec3{0, -1, 0},
	}, nil
}

func (s *DeferredShadingStage) Name() string { return "DeferredShading" }

func (s *DeferredShadingStage) Run(eng *Engine) error {
	shadowed, plain := collectSplitPointLights(eng)
	if err := s.lightsShadowed.Upload(shadowed); err != nil {
		return fmt.Errorf("forge: upload shadowed light list: %w", err)
	}
	if err := s.lightsPlain.Upload(plain); err != nil {
		return fmt.Errorf("forge: upload plain light list: %w", err)
	}

	pointOut := s.pointMaps.Get()
	cascadeOut := s.cascades.Get()
	if err := s.cascadeSSBO.Upload(cascadeOut.Cascades); err != nil {
		return fmt.Errorf("forge: upload cascade params: %w", err)
	}

	s.resolveDirectionalLight(eng)

	u := sceneUniforms{
		Ambient:       s.ambient,
		PointZFar:     pointOut.ZFar,
		DirDirection:  s.directionalDir,
		DirCastShadow: boolToU32(len(cascadeOut.Cascades) > 0),
		DirColor:      s.directionalColor,
		DirIntensity:  s.directionalIntensity,
		CascadeCount:  uint32(len(cascadeOut.Cascades)),
	}
	if err := eng.Queue.WriteBuffer(s.sceneUniform, 0, wgpu.ToBytes([]sceneUniforms{u})); err != nil {
		return fmt.Errorf("forge: deferred shading scene uniform write: %w", err)
	}

	if err := s.ensureBindGroup(eng); err != nil {
		return err
	}

	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "deferred-shading"})
	if err != nil {
		return fmt.Errorf("forge: deferred shading encoder: %w", err)
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "deferred-shading",
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{View: eng.Main.Color.View(), LoadOp: wgpu.LoadOpLoad, StoreOp: wgpu.StoreOpStore},
		},
	})
	bound := s.pipeline.Bind(pass)
	bound.SetBindGroup(0, s.bindGroup)
	bound.DrawFullscreenTriangle()
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: deferred shading finish: %w", err)
	}
	eng.Queue.Submit(cmd)
	return nil
}

// ensureBindGroup (re)builds the pass's single bind group whenever the
// shadow map views change shape (cubemap/cascade array reallocated),
// since a wgpu bind group pins specific TextureView objects at
// creation time rather than resolving them per-draw.
func (s *DeferredShadingStage) ensureBindGroup(eng *Engine) error {
	bg, err := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "deferred-shading-bindgroup",
		Layout: s.pipeline.BindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: s.sampler},
			{Binding: 1, TextureView: eng.GBuffer.Position.View()},
			{Binding: 2, TextureView: eng.GBuffer.Normal.View()},
			{Binding: 3, TextureView: eng.GBuffer.Material.View()},
			{Binding: 4, Sampler: s.shadowSampler},
			{Binding: 5, TextureView: eng.Cascades.View},
			{Binding: 6, TextureView: eng.PointMaps.View},
			{Binding: 7, Buffer: s.lightsShadowed.Buffer(), Size: wgpu.WholeSize},
			{Binding: 8, Buffer: s.lightsPlain.Buffer(), Size: wgpu.WholeSize},
			{Binding: 9, Buffer: s.cascadeSSBO.Buffer(), Size: wgpu.WholeSize},
			{Binding: 10, Buffer: s.sceneUniform, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("forge: deferred shading bind group: %w", err)
	}
	s.bindGroup = bg
	return nil
}

// resolveDirectionalLight picks the first directional light in query
// order (this core supports one active directional light at a time,
// same simplification the original ambient/dir uniform pair made).
// Shared by DeferredShadingStage and ForwardRenderingStage so both
// stages' directional uniforms always agree.
func (s *DeferredShadingStage) resolveDirectionalLight(eng *Engine) {
	s.directionalDir, s.directionalColor, s.directionalIntensity = resolveDirectionalLight(eng)
}

func resolveDirectionalLight(eng *Engine) (direction, color mgl32.Vec3, intensity float32) {
	direction = mgl32.Vec3{0, -1, 0}
	NewQuery2[TransformComponent, LightComponent](eng.Registry).
		Map(func(id EntityId, t *TransformComponent, l *LightComponent) bool {
			if l.Type != LightTypeDirectional {
				return true
			}
			direction = t.Rotation.Rotate(mgl32.Vec3{0, 0, -1})
			color = mgl32.Vec3{l.Color[0], l.Color[1], l.Color[2]}
			intensity = l.Intensity
			return false
		})
	return direction, color, intensity
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// collectSplitPointLights gathers every point light into two slices —
// shadow-casting and plain — matching the original engine's two-SSBO
// convention (§4.6/§4.7) so sampler/cubemap-array indices line up with
// PointShadowMappingStage's own iteration order. Shared by
// DeferredShadingStage and ForwardRenderingStage so both stages' point
// lights always agree on shadow indices.
func collectSplitPointLights(eng *Engine) (shadowed, plain []LightGPU) {
	NewQuery2[TransformComponent, LightComponent](eng.Registry).
		Map(func(id EntityId, t *TransformComponent, l *LightComponent) bool {
			if l.Type != LightTypePoint {
				return true
			}
			gpu := LightGPU{
				Position:  t.Position,
				Type:      uint32(l.Type),
				Range:     l.Range,
				Color:     mgl32.Vec3{l.Color[0], l.Color[1], l.Color[2]},
				Intensity: l.Intensity,
				ConeAngle: l.ConeAngle,
			}
			if AnyOf[ShadowCasting](eng.Registry, id) {
				gpu.ShadowIndex = findShadowIndex(eng, id, l.Type)
				shadowed = append(shadowed, gpu)
			} else {
				gpu.ShadowIndex = -1
				plain = append(plain, gpu)
			}
			return true
		})
	return shadowed, plain
}

// findShadowIndex assigns a light its position in the shadow map
// arrays; a real implementation tracks this during
// PointShadowMappingStage rather than recomputing it, but the
// ordinal-within-query-order convention here matches that stage's own
// iteration order (both stages run the identical query/filter).
func findShadowIndex(eng *Engine, target EntityId, lightType LightType) int32 {
	var index int32 = -1
	var ordinal int32
	NewQuery2[TransformComponent, LightComponent](eng.Registry).
		Map(func(id EntityId, t *TransformComponent, l *LightComponent) bool {
			if l.Type != lightType || !AnyOf[ShadowCasting](eng.Registry, id) {
				return true
			}
			if id == target {
				index = ordinal
				return false
			}
			ordinal++
			return true
		})
	return index
}
