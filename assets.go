package forge

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// AssetId identifies a GPU-backed asset (mesh, texture, material).
// Backed by a UUID rather than a sequential integer so ids minted by
// independently-loaded asset batches never collide.
type AssetId struct {
	uuid uuid.UUID
}

// NewAssetId mints a fresh random AssetId.
func NewAssetId() AssetId {
	return AssetId{uuid: uuid.New()}
}

func (a AssetId) String() string {
	return a.uuid.String()
}

func (a AssetId) IsZero() bool {
	return a.uuid == uuid.Nil
}

// MeshHandle is the mesh-draw interface stages issue draw calls
// through, without needing to know how the mesh's buffers were built.
type MeshHandle interface {
	Draw(pass *wgpu.RenderPassEncoder)
	IndexCount() uint32
}

// GpuMesh is the concrete MeshHandle built from a vertex/index buffer
// pair, the way the teacher's mod_client.go built WgpuMesh from raw
// vertex/index slices.
type GpuMesh struct {
	VertexBuffer *wgpu.Buffer
	IndexBuffer  *wgpu.Buffer
	indexCount   uint32
}

func NewGpuMesh(vertexBuffer, indexBuffer *wgpu.Buffer, indexCount uint32) *GpuMesh {
	return &GpuMesh{VertexBuffer: vertexBuffer, IndexBuffer: indexBuffer, indexCount: indexCount}
}

func (m *GpuMesh) IndexCount() uint32 { return m.indexCount }

func (m *GpuMesh) Draw(pass *wgpu.RenderPassEncoder) {
	pass.SetVertexBuffer(0, m.VertexBuffer, 0, wgpu.WholeSize)
	pass.SetIndexBuffer(m.IndexBuffer, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
	pass.DrawIndexed(m.indexCount, 1, 0, 0, 0)
}

// TextureHandle is the binding-agnostic surface stages use to attach
// a texture to a bind group, standing in for a GL "bind_to_unit(i)"
// call in this bind-group-based backend.
type TextureHandle interface {
	View() *wgpu.TextureView
	BindGroupEntry(binding uint32) wgpu.BindGroupEntry
	PixelFormat() wgpu.TextureFormat
}

// GpuTexture is the concrete TextureHandle wrapping a single wgpu
// texture view. Format is tracked alongside the view so a stage whose
// output format depends on its place in the postprocess chain
// (PostprocessGammaStage, which writes into the swapchain's own
// format when it is last instead of the postprocess chain's
// RGBA16Float) can build a pipeline that matches without the caller
// threading the format through separately.
type GpuTexture struct {
	Texture *wgpu.Texture
	Format  wgpu.TextureFormat
	view    *wgpu.TextureView
}

func NewGpuTexture(texture *wgpu.Texture, view *wgpu.TextureView, format wgpu.TextureFormat) *GpuTexture {
	return &GpuTexture{Texture: texture, view: view, Format: format}
}

func (t *GpuTexture) View() *wgpu.TextureView         { return t.view }
func (t *GpuTexture) PixelFormat() wgpu.TextureFormat { return t.Format }

func (t *GpuTexture) BindGroupEntry(binding uint32) wgpu.BindGroupEntry {
	return wgpu.BindGroupEntry{Binding: binding, TextureView: t.view}
}

// DefaultTextures holds the 1x1 fallback textures bound when a
// material omits a diffuse/specular/normal map, replacing the
// teacher's implicit global texture pool with an explicit object the
// host constructs once at startup and threads to the stages that need
// it (DeferredGeometryStage, ForwardRenderingStage).
type DefaultTextures struct {
	Grey      TextureHandle // diffuse/specular fallback
	Black     TextureHandle // emissive/AO fallback
	FlatNormal TextureHandle // (0.5, 0.5, 1.0) tangent-space normal
}

// NewDefaultTextures builds the three 1x1 fallback textures on device.
func NewDefaultTextures(device *wgpu.Device, queue *wgpu.Queue) (*DefaultTextures, error) {
	makeSolid := func(label string, rgba [4]byte) (TextureHandle, error) {
		desc := &wgpu.TextureDescriptor{
			Label:         label,
			Size:          wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        wgpu.TextureFormatRGBA8Unorm,
			Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		}
		tex, err := device.CreateTexture(desc)
		if err != nil {
			return nil, err
		}
		view, err := tex.CreateView(nil)
		if err != nil {
			return nil, err
		}
		err = queue.WriteTexture(
			tex.AsImageCopy(),
			rgba[:],
			&wgpu.TextureDataLayout{Offset: 0, BytesPerRow: 4, RowsPerImage: 1},
			&wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
		)
		if err != nil {
			return nil, err
		}
		return NewGpuTexture(tex, view, wgpu.TextureFormatRGBA8Unorm), nil
	}

	grey, err := makeSolid("default-grey", [4]byte{128, 128, 128, 255})
	if err != nil {
		return nil, err
	}
	black, err := makeSolid("default-black", [4]byte{0, 0, 0, 255})
	if err != nil {
		return nil, err
	}
	flatNormal, err := makeSolid("default-normal", [4]byte{128, 128, 255, 255})
	if err != nil {
		return nil, err
	}

	return &DefaultTextures{Grey: grey, Black: black, FlatNormal: flatNormal}, nil
}
