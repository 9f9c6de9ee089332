package forge

import "github.com/cogentcore/webgpu/wgpu"

// MeshVertex is the fixed interleaved layout every GpuMesh's vertex
// buffer holds: position, normal, then a single UV set. Mirrors the
// teacher's sqVertex (mod_vox_client.go) in spirit — one fixed struct
// per draw kind instead of a reflection-driven layout, since this
// module only ever draws one vertex shape.
type MeshVertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

const meshVertexStride = 8 * 4 // 3 + 3 + 2 float32s

func meshVertexBufferLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: meshVertexStride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{ShaderLocation: 0, Offset: 0, Format: wgpu.VertexFormatFloat32x3},
			{ShaderLocation: 1, Offset: 3 * 4, Format: wgpu.VertexFormatFloat32x3},
			{ShaderLocation: 2, Offset: 6 * 4, Format: wgpu.VertexFormatFloat32x2},
		},
	}
}
