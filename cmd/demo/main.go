// Command demo wires the render core onto a real window, the way a
// host application would: it owns the window/platform layer and
// scene population, both explicitly out of the core's scope.
package main

import (
	"log"

	forge "github.com/gekko3d/forge"
	"github.com/gekko3d/forge/platform"
	"github.com/go-gl/mathgl/mgl32"
)

func main() {
	win, err := platform.NewWindow(1280, 720, "forge demo")
	if err != nil {
		log.Fatalf("open window: %v", err)
	}
	defer win.Close()

	logger := forge.NewDefaultLogger("forge", false)
	eng := forge.NewEngine(win.Device, win.Queue, logger)
	if err := eng.Resize(uint32(win.Width), uint32(win.Height)); err != nil {
		log.Fatalf("size engine: %v", err)
	}

	defaults, err := forge.NewDefaultTextures(win.Device, win.Queue)
	if err != nil {
		log.Fatalf("default textures: %v", err)
	}
	eng.Defaults = defaults

	pointShadows, err := forge.NewPointShadowMappingStage(eng, forge.DefaultPointShadowParams())
	if err != nil {
		log.Fatalf("point shadow stage: %v", err)
	}
	cascadeBuilder := forge.NewCascadeBuilder(mgl32.Vec3{-0.3, -1, -0.2}, 4)
	cascadedShadows, err := forge.NewCascadedShadowMappingStage(eng, cascadeBuilder)
	if err != nil {
		log.Fatalf("cascaded shadow stage: %v", err)
	}

	deferredGeometry, err := forge.NewDeferredGeometryStage(eng, defaults)
	if err != nil {
		log.Fatalf("deferred geometry stage: %v", err)
	}
	deferredShading, err := forge.NewDeferredShadingStage(eng, pointShadows.OutputView(), cascadedShadows.OutputView())
	if err != nil {
		log.Fatalf("deferred shading stage: %v", err)
	}
	forwardRendering, err := forge.NewForwardRenderingStage(eng, defaults, pointShadows.OutputView(), cascadedShadows.OutputView())
	if err != nil {
		log.Fatalf("forward rendering stage: %v", err)
	}

	eng.UsePrimaryStage(forge.NewGBufferStage())
	eng.UsePrimaryStage(deferredGeometry)
	eng.UsePrimaryStage(pointShadows)
	eng.UsePrimaryStage(cascadedShadows)
	eng.UsePrimaryStage(deferredShading)
	eng.UsePrimaryStage(forwardRendering)

	hdrAdaptation, err := forge.NewPostprocessHDREyeAdaptationStage(eng, forge.DefaultHDRParams())
	if err != nil {
		log.Fatalf("hdr eye adaptation stage: %v", err)
	}
	bloom, err := forge.NewPostprocessBloomStage(eng, forge.DefaultBloomParams())
	if err != nil {
		log.Fatalf("bloom stage: %v", err)
	}
	gamma, err := forge.NewPostprocessGammaStage(eng, forge.DefaultGammaParams())
	if err != nil {
		log.Fatalf("gamma stage: %v", err)
	}
	eng.UsePostprocessStage(hdrAdaptation)
	eng.UsePostprocessStage(bloom)
	eng.UsePostprocessStage(gamma)

	for !win.ShouldClose() {
		win.PollEvents()

		w, h := win.Glfw.GetSize()
		if uint32(w) != win.Config.Width || uint32(h) != win.Config.Height {
			win.Resize(w, h)
			if err := eng.Resize(uint32(w), uint32(h)); err != nil {
				log.Fatalf("resize engine: %v", err)
			}
		}

		surface, present, err := win.AcquireFrame()
		if err != nil {
			log.Printf("acquire frame: %v", err)
			continue
		}
		if err := eng.RunFrame(surface); err != nil {
			log.Printf("frame error: %v", err)
			continue
		}
		present()
	}
}
