package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// GBuffer holds the deferred geometry pass's render targets: world
// position, normal, and a packed diffuse+specular material target,
// plus a depth attachment, each as separate textures+views. Grounded
// on voxelrt/rt/gpu/manager.go's CreateGBufferTextures, adapted from
// its compute-friendly RGBA32Float choices down to the formats this
// engine's shading pass actually needs.
type GBuffer struct {
	device *wgpu.Device

	Width, Height uint32

	Position *GpuTexture
	Normal   *GpuTexture
	Material *GpuTexture
	Depth    *GpuTexture
}

func NewGBuffer(device *wgpu.Device) *GBuffer {
	return &GBuffer{device: device}
}

// Resize (re)allocates the G-buffer's textures for a new framebuffer
// size. Called once at startup and again on window resize.
func (g *GBuffer) Resize(w, h uint32) error {
	if w == g.Width && h == g.Height && g.Position != nil {
		return nil
	}
	g.Width, g.Height = w, h

	release := func(t *GpuTexture) {
		if t != nil {
			t.Texture.Release()
		}
	}
	release(g.Position)
	release(g.Normal)
	release(g.Material)
	release(g.Depth)

	make2D := func(label string, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*GpuTexture, error) {
		tex, err := g.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         label,
			Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        format,
			Usage:         usage,
		})
		if err != nil {
			return nil, fmt.Errorf("forge: gbuffer %q: %w", label, err)
		}
		view, err := tex.CreateView(nil)
		if err != nil {
			return nil, fmt.Errorf("forge: gbuffer %q view: %w", label, err)
		}
		return NewGpuTexture(tex, view, format), nil
	}

	var err error
	attachmentUsage := wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding
	if g.Position, err = make2D("gbuffer-position", wgpu.TextureFormatRGBA16Float, attachmentUsage); err != nil {
		return err
	}
	if g.Normal, err = make2D("gbuffer-normal", wgpu.TextureFormatRGBA16Float, attachmentUsage); err != nil {
		return err
	}
	if g.Material, err = make2D("gbuffer-material", wgpu.TextureFormatRGBA8Unorm, attachmentUsage); err != nil {
		return err
	}
	if g.Depth, err = make2D("gbuffer-depth", wgpu.TextureFormatDepth32Float,
		wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding); err != nil {
		return err
	}
	return nil
}

// PointShadowMaps is the depth cubemap array point lights render into,
// one face-layer-group of 6 per shadow-casting point light. Grounded
// on PointShadowMappingStage.hpp's RenderTargetDepthCubemapArray and
// voxelrt/rt/gpu/manager.go's CreateShadowMapTextures.
type PointShadowMaps struct {
	device *wgpu.Device

	Size       uint32 // square face resolution
	LightCount uint32 // number of shadow-casting point lights (6 layers each)

	texture *wgpu.Texture
	View    *wgpu.TextureView // cube-array view, 6*LightCount layers
}

func NewPointShadowMaps(device *wgpu.Device, size uint32) *PointShadowMaps {
	return &PointShadowMaps{device: device, Size: size}
}

// ResizeIfNeeded reallocates the cubemap array only when lightCount
// changed, mirroring ShadowMappingStage.cpp's
// resize_point_light_cubemap_array_if_needed (new_size != old_size).
func (p *PointShadowMaps) ResizeIfNeeded(lightCount uint32) error {
	if lightCount == p.LightCount && p.texture != nil {
		return nil
	}
	if p.texture != nil {
		p.texture.Release()
		p.texture = nil
	}
	p.LightCount = lightCount
	if lightCount == 0 {
		return nil
	}

	layers := lightCount * 6
	tex, err := p.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "point-shadow-cubemap-array",
		Size:          wgpu.Extent3D{Width: p.Size, Height: p.Size, DepthOrArrayLayers: layers},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth32Float,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("forge: point shadow cubemap array: %w", err)
	}
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimensionCubeArray,
		ArrayLayerCount: layers,
	})
	if err != nil {
		return fmt.Errorf("forge: point shadow cubemap array view: %w", err)
	}
	p.texture = tex
	p.View = view
	return nil
}

// FaceView creates a single-layer 2D view into the cubemap array at
// layer, the per-face render target renderFaceDepths renders into
// since this backend has no geometry-shader layer broadcast and must
// record one render pass per face (stage_shadow_point.go).
func (p *PointShadowMaps) FaceView(layer uint32) (*wgpu.TextureView, error) {
	view, err := p.texture.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2D,
		BaseArrayLayer:  layer,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: point shadow face view %d: %w", layer, err)
	}
	return view, nil
}

// CascadeShadowMaps is the 2D depth texture array cascaded directional
// shadows render into, one layer per cascade. Grounded on
// CascadedShadowMapping.cpp's resize_cascade_storage_if_needed.
type CascadeShadowMaps struct {
	device *wgpu.Device

	Size      uint32
	Count     uint32
	MaxCount  uint32

	texture *wgpu.Texture
	View    *wgpu.TextureView
}

func NewCascadeShadowMaps(device *wgpu.Device, size uint32, maxCount uint32) *CascadeShadowMaps {
	return &CascadeShadowMaps{device: device, Size: size, MaxCount: maxCount}
}

// ResizeIfNeeded reallocates the cascade array only if the requested
// count differs from the current one, clamping to MaxCount.
func (c *CascadeShadowMaps) ResizeIfNeeded(count uint32, logger Logger) error {
	if count > c.MaxCount {
		logger.Warnf("cascade count %d exceeds max %d, clamping", count, c.MaxCount)
		count = c.MaxCount
	}
	if count == c.Count && c.texture != nil {
		return nil
	}
	if c.texture != nil {
		c.texture.Release()
		c.texture = nil
	}
	c.Count = count
	if count == 0 {
		return nil
	}

	tex, err := c.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "csm-depth-array",
		Size:          wgpu.Extent3D{Width: c.Size, Height: c.Size, DepthOrArrayLayers: count},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth32Float,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("forge: csm depth array: %w", err)
	}
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2DArray,
		ArrayLayerCount: count,
	})
	if err != nil {
		return fmt.Errorf("forge: csm depth array view: %w", err)
	}
	c.texture = tex
	c.View = view
	return nil
}

// LayerView creates a single-layer 2D view into the cascade array at
// layer, the per-cascade render target drawCascade renders into.
func (c *CascadeShadowMaps) LayerView(layer uint32) (*wgpu.TextureView, error) {
	view, err := c.texture.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2D,
		BaseArrayLayer:  layer,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: cascade layer view %d: %w", layer, err)
	}
	return view, nil
}

// MainHDRTarget is the single (non-double-buffered) HDR color target
// the primary pass renders into: deferred shading composes onto it and
// forward rendering draws on top, depth-testing against GBuffer.Depth.
// Kept distinct from HDRDoubleBuffer (the postprocess ping-pong chain)
// because the primary pass writes once per frame while postprocessing
// reads-and-writes repeatedly — conflating them, as an earlier version
// of this engine did, left RunFrame unable to express "clear the scene
// target" and "swap the postprocess buffer" as separate operations.
type MainHDRTarget struct {
	device *wgpu.Device

	Width, Height uint32
	Color         *GpuTexture
}

func NewMainHDRTarget(device *wgpu.Device) *MainHDRTarget {
	return &MainHDRTarget{device: device}
}

func (m *MainHDRTarget) Resize(w, h uint32) error {
	if w == m.Width && h == m.Height && m.Color != nil {
		return nil
	}
	m.Width, m.Height = w, h

	if m.Color != nil {
		m.Color.Texture.Release()
	}

	tex, err := m.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "main-hdr-color",
		Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA16Float,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("forge: main hdr target: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		return fmt.Errorf("forge: main hdr target view: %w", err)
	}
	m.Color = NewGpuTexture(tex, view, wgpu.TextureFormatRGBA16Float)
	return nil
}

// HDRDoubleBuffer is the ping-ponged HDR color pair the postprocess
// stages read from and write into (RunFrame blits Engine.Main into it
// first), mirroring the original engine's PostprocessDoubleBuffer.
type HDRDoubleBuffer struct {
	device *wgpu.Device

	Width, Height uint32
	front, back   *GpuTexture
}

func NewHDRDoubleBuffer(device *wgpu.Device) *HDRDoubleBuffer {
	return &HDRDoubleBuffer{device: device}
}

func (b *HDRDoubleBuffer) Resize(w, h uint32) error {
	if w == b.Width && h == b.Height && b.front != nil {
		return nil
	}
	b.Width, b.Height = w, h

	make := func(label string) (*GpuTexture, error) {
		tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         label,
			Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        wgpu.TextureFormatRGBA16Float,
			Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
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
	if b.front, err = make("hdr-front"); err != nil {
		return fmt.Errorf("forge: hdr double buffer front: %w", err)
	}
	if b.back, err = make("hdr-back"); err != nil {
		return fmt.Errorf("forge: hdr double buffer back: %w", err)
	}
	return nil
}

func (b *HDRDoubleBuffer) Front() *GpuTexture { return b.front }
func (b *HDRDoubleBuffer) Back() *GpuTexture  { return b.back }
func (b *HDRDoubleBuffer) Swap()              { b.front, b.back = b.back, b.front }
