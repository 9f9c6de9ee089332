package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

const depthOnlyShaderWGSL = `
struct Uniforms {
    mvp: mat4x4<f32>,
};
@group(0) @binding(0) var<uniform> uniforms: Uniforms;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return uniforms.mvp * vec4<f32>(position, 1.0);
}
`

// depthDraw is one entity's resolved world transform and mesh, the
// unit of work DepthOnlyPipeline.Render consumes — both
// stage_shadow_point.go and stage_shadow_csm.go resolve their own
// queries down to a []depthDraw before handing off to it.
type depthDraw struct {
	Model mgl32.Mat4
	Mesh  MeshHandle
}

// DepthOnlyPipeline is the depth-only render pipeline cascaded shadow
// mapping (stage_shadow_csm.go) draws its geometry with: no fragment
// stage, a single MVP uniform, rendering into a caller-supplied depth
// view. Point shadows use PointDepthPipeline below instead, since they
// store linear distance rather than clip-space depth (ground on the
// original engine's shadow passes reducing to "depth-only draw with
// per-entity model uniform", ShadowMappingStage.cpp / CascadeViews.cpp).
type DepthOnlyPipeline struct {
	pipeline *GpuPipeline
	uniforms *uniformPool
}

func NewDepthOnlyPipeline(eng *Engine, label string, depthFormat wgpu.TextureFormat) (*DepthOnlyPipeline, error) {
	pipeline, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:        label,
		ShaderName:   "depth_only",
		ShaderSource: ShaderSource{Label: "depth_only", Code: depthOnlyShaderWGSL},
		VertexBuffers: []wgpu.VertexBufferLayout{meshVertexBufferLayout()},
		DepthFormat:  depthFormat,
		DepthWrite:   true,
		DepthCompare: wgpu.CompareFunctionLess,
		CullMode:     wgpu.CullModeNone,
	})
	if err != nil {
		return nil, err
	}

	uniforms := newUniformPool(eng.Device, label+"-uniforms", 64, pipeline.BindGroupLayout(0))

	return &DepthOnlyPipeline{pipeline: pipeline, uniforms: uniforms}, nil
}

// Render draws every entry in draws into target, computing each
// entry's MVP as viewProj*Model. clear selects whether this call
// starts a fresh depth image (the first light/cascade of the frame)
// or accumulates onto one a previous call already primed, mirroring
// ShadowMappingStage.cpp's "clear only once" rule.
func (d *DepthOnlyPipeline) Render(eng *Engine, target *wgpu.TextureView, clear bool, viewProj mgl32.Mat4, draws []depthDraw) error {
	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "depth-only-pass"})
	if err != nil {
		return fmt.Errorf("forge: depth-only encoder: %w", err)
	}

	loadOp := wgpu.LoadOpLoad
	if clear {
		loadOp = wgpu.LoadOpClear
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "depth-only",
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            target,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})

	d.uniforms.reset()
	bound := d.pipeline.Bind(pass)
	for _, dr := range draws {
		buf, bg, err := d.uniforms.acquire()
		if err != nil {
			pass.End()
			return err
		}
		mvp := viewProj.Mul4(dr.Model)
		if err := eng.Queue.WriteBuffer(buf, 0, wgpu.ToBytes([]depthOnlyUniforms{{MVP: mvp}})); err != nil {
			pass.End()
			return fmt.Errorf("forge: depth-only uniform write: %w", err)
		}
		bound.SetBindGroup(0, bg)
		bound.DrawMesh(dr.Mesh)
	}
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: depth-only finish: %w", err)
	}
	eng.Queue.Submit(cmd)
	return nil
}

// pointDepthShaderWGSL writes each fragment's linear distance to the
// light (normalized by z_far) as its depth, instead of the rasterizer's
// implicit non-linear clip-space depth. Point-light shadow sampling
// (stage_deferred_shading.go's point_shadow) measures
// length(world_pos-light_pos)/z_far, a linear distance, so the stored
// and sampled encodings must match — grounded on
// ShadowMappingStage.cpp's draw_scene_depth_onto_cubemap, which writes
// gl_FragDepth the same way for the same reason.
const pointDepthShaderWGSL = `
struct Uniforms {
    mvp: mat4x4<f32>,
    model: mat4x4<f32>,
    light_pos_far: vec4<f32>,
};
@group(0) @binding(0) var<uniform> uniforms: Uniforms;

struct VertexOut {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) world_pos: vec3<f32>,
};

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> VertexOut {
    var out: VertexOut;
    out.world_pos = (uniforms.model * vec4<f32>(position, 1.0)).xyz;
    out.clip_position = uniforms.mvp * vec4<f32>(position, 1.0);
    return out;
}

@fragment
fn fs_main(in: VertexOut) -> @builtin(frag_depth) f32 {
    let dist = length(in.world_pos - uniforms.light_pos_far.xyz);
    return clamp(dist / uniforms.light_pos_far.w, 0.0, 1.0);
}
`

// pointDepthDraw is one entity's resolved world transform and mesh,
// PointDepthPipeline.Render's unit of work — an alias of depthDraw,
// which already carries Model on its own rather than folded into an
// MVP, as the linear-depth shader needs.
type pointDepthDraw = depthDraw

// PointDepthPipeline is the depth-only pipeline point-light shadow
// cubemaps render with: same per-draw rhythm as DepthOnlyPipeline, but
// its fragment stage writes linear light-distance depth instead of
// leaving depth to the rasterizer, so it matches
// stage_deferred_shading.go's linear point_shadow() sampling.
type PointDepthPipeline struct {
	pipeline *GpuPipeline
	uniforms *uniformPool
}

func NewPointDepthPipeline(eng *Engine, label string, depthFormat wgpu.TextureFormat) (*PointDepthPipeline, error) {
	pipeline, err := BuildRenderPipeline(eng.Device, eng.Shaders, RenderPipelineSpec{
		Label:               label,
		ShaderName:          "point_depth",
		ShaderSource:        ShaderSource{Label: "point_depth", Code: pointDepthShaderWGSL},
		VertexBuffers:       []wgpu.VertexBufferLayout{meshVertexBufferLayout()},
		DepthFormat:         depthFormat,
		DepthWrite:          true,
		DepthCompare:        wgpu.CompareFunctionLess,
		CullMode:            wgpu.CullModeNone,
		FragmentWritesDepth: true,
	})
	if err != nil {
		return nil, err
	}

	uniforms := newUniformPool(eng.Device, label+"-uniforms", 144, pipeline.BindGroupLayout(0))

	return &PointDepthPipeline{pipeline: pipeline, uniforms: uniforms}, nil
}

// Render draws every entry in draws onto target's face, writing each
// fragment's distance to lightPos (normalized by zFar) as depth.
func (d *PointDepthPipeline) Render(eng *Engine, target *wgpu.TextureView, clear bool, viewProj mgl32.Mat4, lightPos mgl32.Vec3, zFar float32, draws []pointDepthDraw) error {
	encoder, err := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "point-depth-pass"})
	if err != nil {
		return fmt.Errorf("forge: point-depth encoder: %w", err)
	}

	loadOp := wgpu.LoadOpLoad
	if clear {
		loadOp = wgpu.LoadOpClear
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "point-depth",
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            target,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})

	lightPosFar := mgl32.Vec4{lightPos.X(), lightPos.Y(), lightPos.Z(), zFar}

	d.uniforms.reset()
	bound := d.pipeline.Bind(pass)
	for _, dr := range draws {
		buf, bg, err := d.uniforms.acquire()
		if err != nil {
			pass.End()
			return err
		}
		mvp := viewProj.Mul4(dr.Model)
		u := pointDepthUniforms{MVP: mvp, Model: dr.Model, LightPosFar: lightPosFar}
		if err := eng.Queue.WriteBuffer(buf, 0, wgpu.ToBytes([]pointDepthUniforms{u})); err != nil {
			pass.End()
			return fmt.Errorf("forge: point-depth uniform write: %w", err)
		}
		bound.SetBindGroup(0, bg)
		bound.DrawMesh(dr.Mesh)
	}
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("forge: point-depth finish: %w", err)
	}
	eng.Queue.Submit(cmd)
	return nil
}
