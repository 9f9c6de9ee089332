package forge

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// ShaderSource is a named bundle of WGSL entry points compiled into a
// single shader module: every entry point (vertex, fragment or
// compute) lives in Code. Geometry has no wgpu analogue (the backend
// has no geometry stage) and is never compiled; the point/CSM shadow
// stages record one render pass per target layer instead of a
// geometry-shader layer select.
type ShaderSource struct {
	Label    string
	Code     string
	Geometry string
}

// ShaderProgram is a compiled shader module cached by name, the way
// the original engine's ShaderBuilder fails construction once at
// startup rather than on every frame's pipeline bind.
type ShaderProgram struct {
	Name   string
	Module *wgpu.ShaderModule
}

// ShaderRegistry compiles and caches ShaderPrograms by a uuid-keyed
// name so repeated CompileProgram calls for the same logical shader
// (e.g. across multiple stage instances) don't recompile it.
type ShaderRegistry struct {
	device *wgpu.Device
	mu     sync.Mutex
	cache  map[uuid.UUID]*ShaderProgram
	byName map[string]uuid.UUID
}

func NewShaderRegistry(device *wgpu.Device) *ShaderRegistry {
	return &ShaderRegistry{
		device: device,
		cache:  make(map[uuid.UUID]*ShaderProgram),
		byName: make(map[string]uuid.UUID),
	}
}

// CompileProgram compiles src under name, returning a cached program
// if name was already compiled. Compile/link failure is returned as
// an error, never a panic, so a host can fail stage construction
// gracefully.
func (r *ShaderRegistry) CompileProgram(name string, src ShaderSource) (*ShaderProgram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		return r.cache[id], nil
	}

	module, err := r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          src.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.Code},
	})
	if err != nil {
		return nil, fmt.Errorf("forge: compile shader %q: %w", name, err)
	}

	program := &ShaderProgram{Name: name, Module: module}
	id := uuid.New()
	r.cache[id] = program
	r.byName[name] = id
	return program, nil
}
