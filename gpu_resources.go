package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// GpuPipeline owns a compiled render pipeline. Stage code never touches
// the underlying *wgpu.RenderPipeline directly: Bind is the only way
// to reach a render pass, and it hands back a BoundPipeline, a
// short-lived token good for exactly the pass it was bound into. This
// mirrors the "bind()/bound-view" split this module's design notes
// call for, generalizing the teacher's pattern of threading a raw
// *wgpu.RenderPipeline + *wgpu.BindGroup pair through every draw call
// (gpu_operations.go's createRenderPipeline/createBindGroups,
// mod_client.go's rendering()) into an owning handle instead.
type GpuPipeline struct {
	label    string
	pipeline *wgpu.RenderPipeline
}

func NewGpuPipeline(label string, pipeline *wgpu.RenderPipeline) *GpuPipeline {
	return &GpuPipeline{label: label, pipeline: pipeline}
}

// BindGroupLayout exposes one of the pipeline's inferred bind group
// layouts, the way gpu_operations.go's createBindGroups looks one up
// per group id to build a matching *wgpu.BindGroup.
func (p *GpuPipeline) BindGroupLayout(group uint32) *wgpu.BindGroupLayout {
	return p.pipeline.GetBindGroupLayout(group)
}

// Bind attaches p to pass, returning the token through which the
// caller issues SetBindGroup/draw calls for the remainder of pass.
func (p *GpuPipeline) Bind(pass *wgpu.RenderPassEncoder) BoundPipeline {
	pass.SetPipeline(p.pipeline)
	return BoundPipeline{pass: pass}
}

// BoundPipeline is the short-lived view returned by GpuPipeline.Bind;
// it exists only for the render pass it was bound into and must not be
// retained past that pass's End().
type BoundPipeline struct {
	pass *wgpu.RenderPassEncoder
}

func (b BoundPipeline) SetBindGroup(group uint32, bg *wgpu.BindGroup) {
	b.pass.SetBindGroup(group, bg, nil)
}

func (b BoundPipeline) DrawMesh(mesh MeshHandle) {
	mesh.Draw(b.pass)
}

// DrawFullscreenTriangle issues the vertex-buffer-less 3-vertex draw
// every postprocess/compose pass in this module uses, relying on the
// vertex shader to synthesize clip position and UV from
// @builtin(vertex_index) rather than reading an actual buffer.
func (b BoundPipeline) DrawFullscreenTriangle() {
	b.pass.Draw(3, 1, 0, 0)
}

// GpuComputePipeline/BoundComputePipeline are GpuPipeline/BoundPipeline's
// compute-pass counterpart, grounded on
// voxelrt/rt/gpu/manager.go's CreateShadowPipeline/DispatchShadowPass.
type GpuComputePipeline struct {
	label    string
	pipeline *wgpu.ComputePipeline
}

func NewGpuComputePipeline(label string, pipeline *wgpu.ComputePipeline) *GpuComputePipeline {
	return &GpuComputePipeline{label: label, pipeline: pipeline}
}

func (p *GpuComputePipeline) BindGroupLayout(group uint32) *wgpu.BindGroupLayout {
	return p.pipeline.GetBindGroupLayout(group)
}

func (p *GpuComputePipeline) Bind(pass *wgpu.ComputePassEncoder) BoundComputePipeline {
	pass.SetPipeline(p.pipeline)
	return BoundComputePipeline{pass: pass}
}

type BoundComputePipeline struct {
	pass *wgpu.ComputePassEncoder
}

func (b BoundComputePipeline) SetBindGroup(group uint32, bg *wgpu.BindGroup) {
	b.pass.SetBindGroup(group, bg, nil)
}

func (b BoundComputePipeline) Dispatch(x, y, z uint32) {
	b.pass.DispatchWorkgroups(x, y, z)
}

// RenderPipelineSpec is the subset of wgpu.RenderPipelineDescriptor
// every stage's pipeline construction in this module varies: the
// compiled WGSL, its vertex buffer layout (nil for vertex-buffer-less
// fullscreen passes), which color targets it writes, and whether it
// reads/writes depth. Collecting it here is what lets each stage's
// NewXStage constructor stay a few lines instead of repeating
// gpu_operations.go's full createRenderPipeline body.
type RenderPipelineSpec struct {
	Label          string
	ShaderName     string
	ShaderSource   ShaderSource
	VertexBuffers  []wgpu.VertexBufferLayout
	ColorFormats   []wgpu.TextureFormat
	Blend          *wgpu.BlendState
	DepthFormat    wgpu.TextureFormat // TextureFormatUndefined to disable
	DepthWrite     bool
	DepthCompare   wgpu.CompareFunction
	CullMode       wgpu.CullMode

	// FragmentWritesDepth forces a fragment stage onto a pipeline with
	// zero color targets, for a shader that only writes
	// @builtin(frag_depth) (point-light linear-distance depth in
	// depth_only_pass.go) rather than relying on the rasterizer's
	// implicit clip-space depth.
	FragmentWritesDepth bool
}

// BuildRenderPipeline compiles spec's shader (through the shared
// registry, so repeated stage construction doesn't recompile
// identical WGSL) and creates the render pipeline it describes,
// mirroring gpu_operations.go's createRenderPipeline.
func BuildRenderPipeline(device *wgpu.Device, shaders *ShaderRegistry, spec RenderPipelineSpec) (*GpuPipeline, error) {
	program, err := shaders.CompileProgram(spec.ShaderName, spec.ShaderSource)
	if err != nil {
		return nil, err
	}

	targets := make([]wgpu.ColorTargetState, len(spec.ColorFormats))
	for i, f := range spec.ColorFormats {
		targets[i] = wgpu.ColorTargetState{Format: f, Blend: spec.Blend, WriteMask: wgpu.ColorWriteMaskAll}
	}

	desc := &wgpu.RenderPipelineDescriptor{
		Label: spec.Label,
		Vertex: wgpu.VertexState{
			Module:     program.Module,
			EntryPoint: "vs_main",
			Buffers:    spec.VertexBuffers,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  spec.CullMode,
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	}
	if len(targets) > 0 || spec.FragmentWritesDepth {
		desc.Fragment = &wgpu.FragmentState{Module: program.Module, EntryPoint: "fs_main", Targets: targets}
	}
	if spec.DepthFormat != wgpu.TextureFormatUndefined {
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            spec.DepthFormat,
			DepthWriteEnabled: spec.DepthWrite,
			DepthCompare:      spec.DepthCompare,
		}
	}

	pipeline, err := device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("forge: build pipeline %q: %w", spec.Label, err)
	}
	return NewGpuPipeline(spec.Label, pipeline), nil
}

// BuildComputePipeline compiles spec through the shared registry and
// creates the compute pipeline it describes, mirroring
// voxelrt/rt/gpu/manager.go's CreateShadowPipeline.
func BuildComputePipeline(device *wgpu.Device, shaders *ShaderRegistry, name string, src ShaderSource) (*GpuComputePipeline, error) {
	program, err := shaders.CompileProgram(name, src)
	if err != nil {
		return nil, err
	}
	pipeline, err := device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   name,
		Compute: wgpu.ProgrammableStageDescriptor{Module: program.Module, EntryPoint: "cs_main"},
	})
	if err != nil {
		return nil, fmt.Errorf("forge: build compute pipeline %q: %w", name, err)
	}
	return NewGpuComputePipeline(name, pipeline), nil
}

// uniformPool hands out one (buffer, bind group) pair per draw call
// within a frame, growing as needed and reusing prior allocations
// across frames. A single shared uniform buffer reused across every
// draw in a pass would let the last draw's WriteBuffer stomp every
// earlier draw's data before the GPU executes any of them — a queue
// write is ordered relative to other queue operations, not to a
// command buffer that hasn't been submitted yet, so by the time the
// render pass's draw calls actually execute only the final write would
// be visible. This generalizes mod_client.go's per-material
// UniformBuffer/BindGroup pair to a dynamic per-frame entity count.
type uniformPool struct {
	device *wgpu.Device
	label  string
	size   uint64
	layout *wgpu.BindGroupLayout

	buffers    []*wgpu.Buffer
	bindGroups []*wgpu.BindGroup
	next       int
}

func newUniformPool(device *wgpu.Device, label string, size uint64, layout *wgpu.BindGroupLayout) *uniformPool {
	return &uniformPool{device: device, label: label, size: size, layout: layout}
}

// reset must be called once at the start of every frame that will use
// the pool, before any acquire call.
func (p *uniformPool) reset() { p.next = 0 }

func (p *uniformPool) acquire() (*wgpu.Buffer, *wgpu.BindGroup, error) {
	if p.next < len(p.buffers) {
		i := p.next
		p.next++
		return p.buffers[i], p.bindGroups[i], nil
	}

	i := len(p.buffers)
	buf, err := p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: fmt.Sprintf("%s-%d", p.label, i),
		Size:  p.size,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("forge: %s buffer %d: %w", p.label, i, err)
	}
	bg, err := p.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  fmt.Sprintf("%s-bindgroup-%d", p.label, i),
		Layout: p.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: buf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("forge: %s bind group %d: %w", p.label, i, err)
	}
	p.buffers = append(p.buffers, buf)
	p.bindGroups = append(p.bindGroups, bg)
	p.next++
	return buf, bg, nil
}

// NewLinearSampler builds the one sampler configuration every
// postprocess/compose pass in this module needs: clamped, linearly
// filtered, no mipmaps.
func NewLinearSampler(device *wgpu.Device, label string) (*wgpu.Sampler, error) {
	return device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         label,
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   1,
		MaxAnisotropy: 1,
	})
}
