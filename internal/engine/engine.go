// Package engine implements the sprite pool and the per-layer entity
// arrays that drive kinematics, animation, and drawing each frame.
package engine

import (
	"portatil/internal/debug"
	"portatil/internal/fixedpoint"
	"portatil/internal/video"
)

const (
	MaxSprites       = 256
	MaxLayers        = 4
	MaxLayerEntities = 128
)

// Sprite describes one loaded image along with its animation frame
// layout. Sprites are pooled; GetSprite hands out the next free slot
// and ReleaseSprite returns it.
type Sprite struct {
	Index            uint32
	IsFree           bool
	Image            video.Image
	TransparentColor uint16
	FrameWidth       uint16
	FrameHeight      uint16
	FrameSpeed       fixedpoint.F16
	NumberOfFrames   uint8
}

// Entity is one live instance of a sprite placed on a layer, with its
// own position, facing direction, speed, and animation cursor.
type Entity struct {
	LayerIndex       uint8
	Index            uint32
	TypeID           uint32
	Sprite           *Sprite
	PositionX        fixedpoint.F16
	PositionY        fixedpoint.F16
	DirectionX       int32
	DirectionY       int32
	SpeedX           fixedpoint.F16
	SpeedY           fixedpoint.F16
	FrameIndex       fixedpoint.F16
	DataAddress      uint32
	ReleaseAfterSync bool
}

// Engine owns the sprite pool, the per-layer entity arrays, and the
// GPU the draw pass renders into.
type Engine struct {
	gpu *video.GPU

	sprites             [MaxSprites]Sprite
	nextFreeSpriteIndex uint32

	numberOfEntities [MaxLayers]uint32
	entities         [MaxLayers][MaxLayerEntities]Entity

	lastSyncNanos int64

	logger *debug.Logger
}

// SetLogger attaches a diagnostics logger.
func (e *Engine) SetLogger(logger *debug.Logger) {
	e.logger = logger
}

// New creates an engine bound to a GPU for drawing entities during
// Sync, with every sprite and entity slot reset to its empty state.
func New(gpu *video.GPU) *Engine {
	e := &Engine{gpu: gpu}
	e.Reset()
	return e
}

// Reset clears the sprite pool and every layer's entity count,
// reinitializing each slot's identity fields.
func (e *Engine) Reset() {
	for i := range e.sprites {
		e.sprites[i] = Sprite{Index: uint32(i), IsFree: true}
	}
	e.nextFreeSpriteIndex = 0

	for layer := 0; layer < MaxLayers; layer++ {
		e.numberOfEntities[layer] = 0
		for i := range e.entities[layer] {
			e.entities[layer][i] = Entity{LayerIndex: uint8(layer), Index: uint32(i)}
		}
	}
}

// GetSprite allocates a sprite slot for image, or returns nil if the
// pool is exhausted.
func (e *Engine) GetSprite(image video.Image) *Sprite {
	if e.nextFreeSpriteIndex >= MaxSprites {
		if e.logger != nil {
			e.logger.LogEngine(debug.LogLevelWarning, "sprite pool exhausted", nil)
		}
		return nil
	}

	index := e.nextFreeSpriteIndex
	e.sprites[index] = Sprite{
		Index:  index,
		IsFree: false,
		Image:  image,
	}
	sprite := &e.sprites[index]

	// Scan forward for the next free slot; if none remains, push the
	// hint past the end so the next allocation fails cleanly.
	e.nextFreeSpriteIndex = MaxSprites
	for next := index + 1; next < MaxSprites; next++ {
		if e.sprites[next].IsFree {
			e.nextFreeSpriteIndex = next
			break
		}
	}

	return sprite
}

// GetSpriteByIndex returns a live sprite by pool index, or nil if the
// index is out of range or the slot is free.
func (e *Engine) GetSpriteByIndex(index uint32) *Sprite {
	if index >= MaxSprites || e.sprites[index].IsFree {
		return nil
	}
	return &e.sprites[index]
}

// ReleaseSprite frees a sprite slot immediately, rewinding the
// allocator's free-index hint if this slot precedes it.
func (e *Engine) ReleaseSprite(sprite *Sprite) {
	sprite.IsFree = true
	if sprite.Index < e.nextFreeSpriteIndex {
		e.nextFreeSpriteIndex = sprite.Index
	}
}

// GetNumberOfEntities reports how many entities are live on a layer.
func (e *Engine) GetNumberOfEntities(layer uint8) uint32 {
	if layer >= MaxLayers {
		return 0
	}
	return e.numberOfEntities[layer]
}

// GetEntity allocates a new entity on a layer, or returns nil if the
// layer is full.
func (e *Engine) GetEntity(layer uint8, typeID uint32, sprite *Sprite, x, y fixedpoint.F16) *Entity {
	if layer >= MaxLayers || e.numberOfEntities[layer] >= MaxLayerEntities {
		if e.logger != nil {
			e.logger.LogEnginef(debug.LogLevelWarning, "rejected entity allocation on layer %d", layer)
		}
		return nil
	}

	index := e.numberOfEntities[layer]
	e.numberOfEntities[layer]++

	entity := &e.entities[layer][index]
	entity.TypeID = typeID
	entity.PositionX = x
	entity.PositionY = y
	entity.Sprite = sprite
	entity.FrameIndex = 0
	entity.DirectionX = 0
	entity.DirectionY = 0
	entity.SpeedX = 0
	entity.SpeedY = 0
	entity.ReleaseAfterSync = false

	return entity
}

// GetEntityByIndex returns a live entity by its current slot index.
func (e *Engine) GetEntityByIndex(layer uint8, index uint32) *Entity {
	if layer >= MaxLayers || index >= e.numberOfEntities[layer] {
		return nil
	}
	return &e.entities[layer][index]
}

// ReleaseEntity marks an entity for removal at the end of the next
// Sync pass, rather than removing it immediately.
func (e *Engine) ReleaseEntity(entity *Entity) {
	if entity == nil {
		return
	}
	entity.ReleaseAfterSync = true
}

func entityFrameRect(entity *Entity) video.Rectangle2D {
	return video.Rectangle2D{
		X:      int(entity.PositionX.ToInt()),
		Y:      int(entity.PositionY.ToInt()),
		Width:  int(entity.Sprite.FrameWidth),
		Height: int(entity.Sprite.FrameHeight),
	}
}

// GetCollidingEntity returns the first other entity on the same layer
// with the given type ID whose frame rectangle overlaps entity's,
// using strict half-open AABB overlap. Returns nil if none overlaps.
func (e *Engine) GetCollidingEntity(entity *Entity, otherTypeID uint32) *Entity {
	if entity == nil {
		return nil
	}

	rect := entityFrameRect(entity)
	layer := e.entities[entity.LayerIndex]

	for i := uint32(0); i < e.numberOfEntities[entity.LayerIndex]; i++ {
		if i == entity.Index || layer[i].TypeID != otherTypeID {
			continue
		}

		other := entityFrameRect(&layer[i])
		if other.X < rect.X+rect.Width && other.X+other.Width > rect.X &&
			other.Y < rect.Y+rect.Height && other.Y+other.Height > rect.Y {
			return &e.entities[entity.LayerIndex][i]
		}
	}

	return nil
}

// IsEntityOnScreen reports whether an entity's top-left position lies
// within [-FrameWidth, video.Width) horizontally and
// [-FrameHeight, video.Height) vertically.
func IsEntityOnScreen(entity *Entity) bool {
	if entity == nil {
		return false
	}
	return entity.PositionX >= -fixedpoint.FromInt(int32(entity.Sprite.FrameWidth)) &&
		entity.PositionY >= -fixedpoint.FromInt(int32(entity.Sprite.FrameHeight)) &&
		entity.PositionX < fixedpoint.FromInt(video.Width) &&
		entity.PositionY < fixedpoint.FromInt(video.Height)
}

// FindEntityIndex returns the slot index of the Nth (1-indexed)
// live entity of a given type on a layer, or -1 if there is no such
// occurrence.
func (e *Engine) FindEntityIndex(layer uint8, typeID uint32, occurrence uint32) int32 {
	if layer >= MaxLayers || occurrence == 0 {
		return -1
	}

	found := uint32(0)
	for i := uint32(0); i < e.numberOfEntities[layer]; i++ {
		if e.entities[layer][i].TypeID == typeID {
			found++
			if found == occurrence {
				return int32(i)
			}
		}
	}

	return -1
}

func (e *Engine) drawEntity(entity *Entity) {
	framesPerRow := uint8(entity.Sprite.Image.Width) / uint8(entity.Sprite.FrameWidth)
	frameIndex := uint8(entity.FrameIndex.ToInt())
	frameRow := frameIndex / framesPerRow
	frameColumn := frameIndex % framesPerRow

	frameRect := video.Rectangle2D{
		X:      int(frameColumn) * int(entity.Sprite.FrameWidth),
		Y:      int(frameRow) * int(entity.Sprite.FrameHeight),
		Width:  int(entity.Sprite.FrameWidth),
		Height: int(entity.Sprite.FrameHeight),
	}

	e.gpu.SetTransparentColor(entity.Sprite.TransparentColor)
	e.gpu.Draw(&entity.Sprite.Image, video.Point2D{X: int(entity.PositionX.ToInt()), Y: int(entity.PositionY.ToInt())}, frameRect)
}

// Sync advances every live entity's animation frame and kinematics by
// one frame, draws them in layer order, and then sweeps away any
// entity released during this frame via a swap-remove with the last
// live entity in its layer, preserving that slot's own identity.
func (e *Engine) Sync(speedMultiplier fixedpoint.F16) {
	for layer := uint8(0); layer < MaxLayers; layer++ {
		for i := uint32(0); i < e.numberOfEntities[layer]; i++ {
			entity := &e.entities[layer][i]

			if entity.Sprite.FrameSpeed != 0 {
				entity.FrameIndex += fixedpoint.Mult(entity.Sprite.FrameSpeed, speedMultiplier)
				if uint8(entity.FrameIndex.ToInt()) >= entity.Sprite.NumberOfFrames {
					entity.FrameIndex = 0
				}
			}

			if entity.DirectionX != 0 {
				entity.PositionX += fixedpoint.Mult(entity.SpeedX, speedMultiplier) * fixedpoint.F16(entity.DirectionX)
			}
			if entity.DirectionY != 0 {
				entity.PositionY += fixedpoint.Mult(entity.SpeedY, speedMultiplier) * fixedpoint.F16(entity.DirectionY)
			}

			e.drawEntity(entity)
		}
	}

	for layer := uint8(0); layer < MaxLayers; layer++ {
		index := uint32(0)
		for index < e.numberOfEntities[layer] {
			if !e.entities[layer][index].ReleaseAfterSync {
				index++
				continue
			}

			e.numberOfEntities[layer]--

			if index < e.numberOfEntities[layer] {
				indexBackup := e.entities[layer][index].Index
				e.entities[layer][index] = e.entities[layer][e.numberOfEntities[layer]]
				e.entities[layer][index].Index = indexBackup
			}
			// Re-examine this slot: it may now hold the entity that was
			// swapped in from the end of the layer.
		}
	}
}
