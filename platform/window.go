// Package platform owns window/context creation — explicitly out of
// scope for the render core (spec.md §1 non-goals), kept here as the
// one external collaborator a host needs to get a *wgpu.Device onto
// the screen. Adapted from the teacher's gpu_operations.go
// createWindowState/createGpuState.
package platform

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	forge "github.com/gekko3d/forge"
)

func init() {
	runtime.LockOSThread()
}

// Window owns a GLFW window plus the wgpu surface/device/queue it was
// used to create.
type Window struct {
	Glfw   *glfw.Window
	Width  int
	Height int

	Instance *wgpu.Instance
	Surface  *wgpu.Surface
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Config   *wgpu.SurfaceConfiguration
}

// NewWindow creates a GLFW window with no client API (wgpu owns
// presentation) and bootstraps a wgpu device/queue against it.
func NewWindow(width, height int, title string) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("forge/platform: glfw init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("forge/platform: create window: %w", err)
	}

	instance := wgpu.CreateInstance(nil)
	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(win))

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("forge/platform: request adapter: %w", err)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "forge-device"})
	if err != nil {
		return nil, fmt.Errorf("forge/platform: request device: %w", err)
	}
	queue := device.GetQueue()

	caps := surface.GetCapabilities(adapter)
	config := &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, config)

	return &Window{
		Glfw:     win,
		Width:    width,
		Height:   height,
		Instance: instance,
		Surface:  surface,
		Adapter:  adapter,
		Device:   device,
		Queue:    queue,
		Config:   config,
	}, nil
}

// ShouldClose reports whether the host's close button/keybind fired.
func (w *Window) ShouldClose() bool {
	return w.Glfw.ShouldClose()
}

// PollEvents pumps GLFW's event queue; input handling (free camera,
// ImGui, ...) is the host's responsibility per spec.md §1.
func (w *Window) PollEvents() {
	glfw.PollEvents()
}

func (w *Window) Close() {
	w.Glfw.Destroy()
	glfw.Terminate()
}

// AcquireFrame blocks until the swapchain hands back its current
// texture, wraps it as the forge.GpuTexture Engine.RunFrame writes its
// last postprocess stage into, and returns a present func the caller
// runs after RunFrame to flip it onto the screen. Grounded on
// mod_client.go's surface.GetCurrentTexture()/CreateView/Present
// sequence (gpu_operations.go never wrapped this in its own helper,
// every call site repeated it inline).
func (w *Window) AcquireFrame() (*forge.GpuTexture, func(), error) {
	tex, err := w.Surface.GetCurrentTexture()
	if err != nil {
		return nil, nil, fmt.Errorf("forge/platform: acquire frame: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("forge/platform: acquire frame view: %w", err)
	}
	present := func() {
		w.Surface.Present()
	}
	return forge.NewGpuTexture(tex, view, w.Config.Format), present, nil
}

// Resize updates Width/Height and reconfigures the surface for a new
// framebuffer size; callers follow this with Engine.Resize.
func (w *Window) Resize(width, height int) {
	w.Width, w.Height = width, height
	w.Config.Width = uint32(width)
	w.Config.Height = uint32(height)
	w.Surface.Configure(w.Adapter, w.Device, w.Config)
}
