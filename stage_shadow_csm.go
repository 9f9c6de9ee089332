package forge

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// CascadedShadowMappingStage renders the scene's depth into a
// directional light's cascade array and publishes each cascade's
// CascadeParams for the shading pass. Grounded on
// original_source/.../primary/CascadeViews.cpp: resize only on count
// change, skip drawing entirely when there are zero cascades (an
// empty depth array has no attachment to render into), skip entities
// tagged CulledFromCSM, and draw alpha-tested geometry like opaque
// geometry, with no alpha test applied.
type CascadedShadowMappingStage struct {
	builder *CascadeBuilder
	output  *SharedStorage[CascadedShadowOutput]
	depth   *DepthOnlyPipeline
}

type CascadedShadowOutput struct {
	Cascades []CascadeParams
}

func NewCascadedShadowMappingStage(eng *Engine, builder *CascadeBuilder) (*CascadedShadowMappingStage, error) {
	depth, err := NewDepthOnlyPipeline(eng, "csm-depth", wgpu.TextureFormatDepth32Float)
	if err != nil {
		return nil, err
	}
	return &CascadedShadowMappingStage{
		builder: builder,
		output:  NewSharedStorage(CascadedShadowOutput{}),
		depth:   depth,
	}, nil
}

func (s *CascadedShadowMappingStage) Name() string { return "CascadedShadowMapping" }

func (s *CascadedShadowMappingStage) OutputView() SharedStorageView[CascadedShadowOutput] {
	return s.output.View()
}

func (s *CascadedShadowMappingStage) Run(eng *Engine) error {
	if s.builder == nil || s.builder.NumCascades == 0 {
		if err := eng.Cascades.ResizeIfNeeded(0, eng.Logger); err != nil {
			return err
		}
		s.output.Set(CascadedShadowOutput{})
		return nil
	}

	if err := eng.Cascades.ResizeIfNeeded(uint32(s.builder.NumCascades), eng.Logger); err != nil {
		return err
	}
	if eng.Cascades.Count == 0 {
		s.output.Set(CascadedShadowOutput{})
		return nil
	}

	cascades := s.builder.Build(eng.Camera.Position, eng.Camera.ZNear, eng.Camera.ZFar)
	// eng.Cascades.Count may be clamped below builder.NumCascades
	// (ResizeIfNeeded warns and clamps to MaxCount); drop the excess
	// cascades here too so neither the draw loop nor the params SSBO
	// ever reference a layer the array doesn't have.
	if uint32(len(cascades)) > eng.Cascades.Count {
		cascades = cascades[:eng.Cascades.Count]
	}
	params := BuildCascadeParams(cascades)

	for i, c := range cascades {
		if err := s.drawCascade(eng, uint32(i), c.Projection.Mul4(c.View)); err != nil {
			return fmt.Errorf("cascade %d: %w", i, err)
		}
	}

	s.output.Set(CascadedShadowOutput{Cascades: params})
	return nil
}

func (s *CascadedShadowMappingStage) drawCascade(eng *Engine, layer uint32, viewProj mgl32.Mat4) error {
	var draws []depthDraw

	// Non-alpha-tested geometry, excluding anything tagged out of CSM.
	NewQuery2[TransformComponent, MeshComponent](eng.Registry).
		WithoutTypes(typeOf[AlphaTested](), typeOf[CulledFromCSM]()).
		Map(func(id EntityId, t *TransformComponent, m *MeshComponent) bool {
			if m.Mesh == nil {
				return true
			}
			world := *t
			if AnyOf[ChildMeshComponent](eng.Registry, id) {
				world = ResolveWorldTransform(eng.Registry, id)
			}
			draws = append(draws, depthDraw{Model: world.Model(), Mesh: m.Mesh})
			return true
		})

	// Alpha-tested geometry, with or without a diffuse material, is
	// drawn exactly like opaque geometry: DepthOnlyPipeline has no
	// alpha-tested variant, so no alpha test is applied.
	NewQuery2[TransformComponent, MeshComponent](eng.Registry).
		WithoutTypes(typeOf[CulledFromCSM]()).
		Map(func(id EntityId, t *TransformComponent, m *MeshComponent) bool {
			if !AnyOf[AlphaTested](eng.Registry, id) || m.Mesh == nil {
				return true
			}
			world := *t
			if AnyOf[ChildMeshComponent](eng.Registry, id) {
				world = ResolveWorldTransform(eng.Registry, id)
			}
			draws = append(draws, depthDraw{Model: world.Model(), Mesh: m.Mesh})
			return true
		})

	view, err := eng.Cascades.LayerView(layer)
	if err != nil {
		return err
	}
	return s.depth.Render(eng, view, true, viewProj, draws)
}
