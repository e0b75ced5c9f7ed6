package host

import "portatil/internal/input"

// NoopDisplay discards every framebuffer sync, for headless batch runs.
type NoopDisplay struct{}

func (NoopDisplay) Sync(framebuffer, palette []uint8) {}

// NoopSpeaker discards every audio buffer, for headless batch runs.
type NoopSpeaker struct{}

func (NoopSpeaker) Sync(buffer []int8) {}

// NoopInput reports every button as released, for headless batch runs.
type NoopInput struct{}

func (NoopInput) Sync() input.Button { return 0 }
