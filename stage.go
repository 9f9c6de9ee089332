package forge

// PrimaryStage is one step of the primary (opaque scene) pass:
// G-buffer clear, deferred geometry, shadow mapping (point and
// cascaded), deferred shading compose, forward rendering. Stages run
// in the order Engine.primary lists them; each reads shared storage
// views produced by earlier stages and may publish its own.
type PrimaryStage interface {
	Name() string
	Run(eng *Engine) error
}

// PostprocessStage is one step of the postprocess chain (HDR eye
// adaptation, bloom, gamma correction): it reads the current HDR
// color target and writes the next one.
type PostprocessStage interface {
	Name() string
	Run(eng *Engine, input TextureHandle, output TextureHandle) error
}
