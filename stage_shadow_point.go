package forge

import (
	"fmt"
	"reflect"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// PointShadowMappingStage renders depth onto a cubemap array, one
// six-face group per shadow-casting point light, clearing each face
// only on its first light (skipped entirely when there are zero
// shadow-casting point lights, to avoid driving an empty render pass).
// Grounded on
// original_source/src/learnlib/engine/ShadowMappingStage.cpp's
// map_point_light_shadows/draw_scene_depth_onto_cubemap.
type PointShadowMappingStage struct {
	params PointShadowParams
	output *SharedStorage[PointShadowMapsOutput]
	depth  *PointDepthPipeline
}

// PointShadowParams are the tunables the host can mutate directly
// (no generic config map, per the ambient stack's configuration
// convention).
type PointShadowParams struct {
	ZNear float32
	ZFar  float32
}

func DefaultPointShadowParams() PointShadowParams {
	return PointShadowParams{ZNear: 0.05, ZFar: 150}
}

// PointShadowMapsOutput is what downstream stages (deferred shading)
// read: per light, in shadow-index order, the six view-projection
// matrices used to render into the cubemap array, plus the far plane
// the stored linear depth is normalized by. The array view itself is
// Engine.PointMaps.View.
type PointShadowMapsOutput struct {
	LightViews [][6]mgl32.Mat4
	ZFar       float32
}

func NewPointShadowMappingStage(eng *Engine, params PointShadowParams) (*PointShadowMappingStage, error) {
	depth, err := NewPointDepthPipeline(eng, "point-shadow-depth", wgpu.TextureFormatDepth32Float)
	if err != nil {
		return nil, err
	}
	return &PointShadowMappingStage{
		params: params,
		output: NewSharedStorage(PointShadowMapsOutput{}),
		depth:  depth,
	}, nil
}

func (s *PointShadowMappingStage) Name() string { return "PointShadowMapping" }

func (s *PointShadowMappingStage) OutputView() SharedStorageView[PointShadowMapsOutput] {
	return s.output.View()
}

func (s *PointShadowMappingStage) Run(eng *Engine) error {
	type lightEntry struct {
		position mgl32.Vec3
	}
	var lights []lightEntry
	NewQuery2[TransformComponent, LightComponent](eng.Registry).
		Map(func(id EntityId, t *TransformComponent, l *LightComponent) bool {
			if l.Type != LightTypePoint {
				return true
			}
			if !AnyOf[ShadowCasting](eng.Registry, id) {
				return true
			}
			lights = append(lights, lightEntry{position: t.Position})
			return true
		})

	if err := eng.PointMaps.ResizeIfNeeded(uint32(len(lights))); err != nil {
		return err
	}
	if len(lights) == 0 {
		s.output.Set(PointShadowMapsOutput{ZFar: s.params.ZFar})
		return nil
	}

	basis := WorldBasis()
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1.0, s.params.ZNear, s.params.ZFar)

	allViews := make([][6]mgl32.Mat4, len(lights))
	for i, light := range lights {
		views := sixCubeFaceViews(light.position, basis)
		var projViews [6]mgl32.Mat4
		for f := 0; f < 6; f++ {
			projViews[f] = proj.Mul4(views[f])
		}
		allViews[i] = projViews

		if err := s.renderFaceDepths(eng, i, light.position, projViews); err != nil {
			return fmt.Errorf("light %d: %w", i, err)
		}
	}

	s.output.Set(PointShadowMapsOutput{LightViews: allViews, ZFar: s.params.ZFar})
	return nil
}

func (s *PointShadowMappingStage) renderFaceDepths(eng *Engine, lightIndex int, lightPos mgl32.Vec3, projViews [6]mgl32.Mat4) error {
	draws := collectDepthDraws(eng, nil)
	for face := 0; face < 6; face++ {
		layer := uint32(lightIndex*6 + face)
		view, err := eng.PointMaps.FaceView(layer)
		if err != nil {
			return err
		}
		if err := s.depth.Render(eng, view, true, projViews[face], lightPos, s.params.ZFar, draws); err != nil {
			return fmt.Errorf("face %d: %w", face, err)
		}
	}
	return nil
}

// sixCubeFaceViews builds the six view matrices for a point light's
// shadow cubemap, reproducing the exact axis/sign convention from
// ShadowMappingStage.cpp's draw_scene_depth_onto_cubemap:
//
//	0: +X face: lookAt(pos, pos+X, -Y)
//	1: -X face: lookAt(pos, pos-X, -Y)
//	2: +Y face: lookAt(pos, pos+Y,  Z)
//	3: -Y face: lookAt(pos, pos-Y, -Z)
//	4: +Z face: lookAt(pos, pos+Z, -Y)
//	5: -Z face: lookAt(pos, pos-Z, -Y)
func sixCubeFaceViews(position mgl32.Vec3, basis Basis) [6]mgl32.Mat4 {
	return [6]mgl32.Mat4{
		mgl32.LookAtV(position, position.Add(basis.X), basis.Y.Mul(-1)),
		mgl32.LookAtV(position, position.Sub(basis.X), basis.Y.Mul(-1)),
		mgl32.LookAtV(position, position.Add(basis.Y), basis.Z),
		mgl32.LookAtV(position, position.Sub(basis.Y), basis.Z.Mul(-1)),
		mgl32.LookAtV(position, position.Add(basis.Z), basis.Y.Mul(-1)),
		mgl32.LookAtV(position, position.Sub(basis.Z), basis.Y.Mul(-1)),
	}
}

// collectDepthDraws walks every entity carrying a mesh (honoring
// exclude, a set of component types whose presence drops the entity,
// e.g. CulledFromCSM) and resolves its world transform, matching
// draw_scene_depth_onto_cubemap's per-entity model-uniform update.
func collectDepthDraws(eng *Engine, exclude []reflect.Type) []depthDraw {
	q := NewQuery2[TransformComponent, MeshComponent](eng.Registry).WithoutTypes(exclude...)
	var draws []depthDraw
	q.Map(func(id EntityId, t *TransformComponent, m *MeshComponent) bool {
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
	return draws
}
