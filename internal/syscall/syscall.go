// Package syscall wires the guest's ecall ABI (arguments in a0..a6,
// result in a0) to the host-side video, audio, engine, and input
// state, installing one handler per populated syscall number into a
// CPU's syscall table.
package syscall

import (
	"math/rand"
	"strconv"

	"portatil/internal/audio"
	"portatil/internal/cpu"
	"portatil/internal/debug"
	"portatil/internal/engine"
	"portatil/internal/fixedpoint"
	"portatil/internal/input"
	"portatil/internal/video"
)

const maxTextLength = 128

// Numeric syscall IDs, matching the guest ABI.
const (
	Exit                 = 1
	Sync                 = 2
	Random               = 3
	GetFrameTime         = 4
	GetTickSeconds       = 5
	GetBatteryPercent    = 10
	GetInputState        = 20
	GetInputAxis         = 21
	IsButtonPressed      = 22
	IsButtonJustPressed  = 23
	IsButtonJustReleased = 24

	ClearScreen         = 30
	GetColorIndex       = 31
	SetTransparentColor = 32
	SetBackgroundColor  = 33
	SetForegroundColor  = 34
	SetDrawAnchor       = 35
	SetDrawScale        = 36
	SetTargetPosition   = 37
	SetSourceRectangle  = 38
	SetTargetRectangle  = 39
	SetTextFont         = 40
	DrawRectangle       = 41
	DrawImage           = 42
	DrawText            = 43
	DrawNumber          = 44

	SetChannelVolume = 50
	PlayTone         = 51
	StopChannel      = 52
	StopAllSound     = 53

	SyncEngine              = 60
	GetSprite               = 61
	ReleaseSprite           = 62
	SetSpriteProps          = 63
	SetSpriteFrames         = 64
	SetActiveLayer          = 65
	GetNumberOfEntities     = 66
	GetEntity               = 67
	ReleaseEntity           = 68
	SetEntityPosition       = 69
	SetEntityDirection      = 70
	SetEntitySpeed          = 71
	SetEntityFrameIndex     = 72
	SetEntityData           = 73
	GetEntityTypeID         = 74
	GetEntityPositionX      = 75
	GetEntityPositionY      = 76
	GetEntityDirectionX     = 77
	GetEntityDirectionY     = 78
	GetEntitySpeedX         = 79
	GetEntitySpeedY         = 80
	GetEntityFrameIndex     = 81
	GetEntityData           = 82
	GetCollidingEntityIndex = 83
	FindEntityIndex         = 84
	IsEntityOnScreen        = 85
)

// TargetFPS is the engine's animation reference rate, used to convert
// a guest-specified frames-per-second into the per-sync frame step.
const TargetFPS = 30

// Clock reports frame timing and tick counts to the guest.
type Clock interface {
	FrameTimeMicros() int64
	TickMicros() int64
}

// PowerSource reports remaining battery charge to the guest.
type PowerSource interface {
	BatteryPercent() int32
}

// drawState holds the kernel-side drawing state the original runtime
// keeps as file-local statics around the raw GPU primitives: pending
// target position/rectangles and an optional custom text font.
type drawState struct {
	targetPosition  video.Point2D
	sourceRectangle video.Rectangle2D
	targetRectangle video.Rectangle2D
	customFont      *video.BitmapFont
}

// Table owns every subsystem a syscall touches and installs its
// handlers into a CPU.
type Table struct {
	gpu    *video.GPU
	mixer  *audio.Mixer
	engine *engine.Engine
	input  *input.State
	clock  Clock
	power  PowerSource

	defaultFont      *video.BitmapFont
	draw             drawState
	activeLayerIndex uint8

	logger *debug.Logger
}

// SetLogger attaches a diagnostics logger.
func (t *Table) SetLogger(logger *debug.Logger) {
	t.logger = logger
}

// New creates a syscall table bound to the subsystems it dispatches
// into.
func New(gpu *video.GPU, mixer *audio.Mixer, eng *engine.Engine, in *input.State, clock Clock, power PowerSource) *Table {
	return &Table{
		gpu:         gpu,
		mixer:       mixer,
		engine:      eng,
		input:       in,
		clock:       clock,
		power:       power,
		defaultFont: video.NewDefaultFont(),
	}
}

// Install registers every populated syscall number into c's table.
func (t *Table) Install(c *cpu.CPU) {
	c.SetSyscall(Exit, func(c *cpu.CPU) bool { return false })
	c.SetSyscall(Sync, t.sysSync)
	c.SetSyscall(Random, t.sysRandom)
	c.SetSyscall(GetFrameTime, t.sysGetFrameTime)
	c.SetSyscall(GetTickSeconds, t.sysGetTickSeconds)
	c.SetSyscall(GetBatteryPercent, t.sysGetBatteryPercent)

	c.SetSyscall(GetInputState, t.sysGetInputState)
	c.SetSyscall(GetInputAxis, t.sysGetInputAxis)
	c.SetSyscall(IsButtonPressed, t.sysIsButtonPressed)
	c.SetSyscall(IsButtonJustPressed, t.sysIsButtonJustPressed)
	c.SetSyscall(IsButtonJustReleased, t.sysIsButtonJustReleased)

	c.SetSyscall(ClearScreen, t.sysClearScreen)
	c.SetSyscall(GetColorIndex, t.sysGetColorIndex)
	c.SetSyscall(SetTransparentColor, t.sysSetTransparentColor)
	c.SetSyscall(SetBackgroundColor, t.sysSetBackgroundColor)
	c.SetSyscall(SetForegroundColor, t.sysSetForegroundColor)
	c.SetSyscall(SetDrawAnchor, t.sysSetDrawAnchor)
	c.SetSyscall(SetDrawScale, t.sysSetDrawScale)
	c.SetSyscall(SetTargetPosition, t.sysSetTargetPosition)
	c.SetSyscall(SetSourceRectangle, t.sysSetSourceRectangle)
	c.SetSyscall(SetTargetRectangle, t.sysSetTargetRectangle)
	c.SetSyscall(SetTextFont, t.sysSetTextFont)
	c.SetSyscall(DrawRectangle, t.sysDrawRectangle)
	c.SetSyscall(DrawImage, t.sysDrawImage)
	c.SetSyscall(DrawText, t.sysDrawText)
	c.SetSyscall(DrawNumber, t.sysDrawNumber)

	c.SetSyscall(SetChannelVolume, t.sysSetChannelVolume)
	c.SetSyscall(PlayTone, t.sysPlayTone)
	c.SetSyscall(StopChannel, t.sysStopChannel)
	c.SetSyscall(StopAllSound, t.sysStopAllSound)

	c.SetSyscall(SyncEngine, t.sysSyncEngine)
	c.SetSyscall(GetSprite, t.sysGetSprite)
	c.SetSyscall(ReleaseSprite, t.sysReleaseSprite)
	c.SetSyscall(SetSpriteProps, t.sysSetSpriteProps)
	c.SetSyscall(SetSpriteFrames, t.sysSetSpriteFrames)
	c.SetSyscall(SetActiveLayer, t.sysSetActiveLayer)
	c.SetSyscall(GetNumberOfEntities, t.sysGetNumberOfEntities)
	c.SetSyscall(GetEntity, t.sysGetEntity)
	c.SetSyscall(ReleaseEntity, t.sysReleaseEntity)
	c.SetSyscall(SetEntityPosition, t.sysSetEntityPosition)
	c.SetSyscall(SetEntityDirection, t.sysSetEntityDirection)
	c.SetSyscall(SetEntitySpeed, t.sysSetEntitySpeed)
	c.SetSyscall(SetEntityFrameIndex, t.sysSetEntityFrameIndex)
	c.SetSyscall(SetEntityData, t.sysSetEntityData)
	c.SetSyscall(GetEntityTypeID, t.sysGetEntityTypeID)
	c.SetSyscall(GetEntityPositionX, t.sysGetEntityPositionX)
	c.SetSyscall(GetEntityPositionY, t.sysGetEntityPositionY)
	c.SetSyscall(GetEntityDirectionX, t.sysGetEntityDirectionX)
	c.SetSyscall(GetEntityDirectionY, t.sysGetEntityDirectionY)
	c.SetSyscall(GetEntitySpeedX, t.sysGetEntitySpeedX)
	c.SetSyscall(GetEntitySpeedY, t.sysGetEntitySpeedY)
	c.SetSyscall(GetEntityFrameIndex, t.sysGetEntityFrameIndex)
	c.SetSyscall(GetEntityData, t.sysGetEntityData)
	c.SetSyscall(GetCollidingEntityIndex, t.sysGetCollidingEntityIndex)
	c.SetSyscall(FindEntityIndex, t.sysFindEntityIndex)
	c.SetSyscall(IsEntityOnScreen, t.sysIsEntityOnScreen)
}

func (t *Table) sysSync(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(c.SpeedMultiplier()))
	c.RequestSync()
	return false
}

func (t *Table) sysRandom(c *cpu.CPU) bool {
	minValue := c.X(cpu.A0)
	maxValue := c.X(cpu.A1)

	if maxValue-minValue > 0 {
		c.SetX(cpu.A0, minValue+rand.Int31n(maxValue+1-minValue))
	} else {
		c.SetX(cpu.A0, minValue)
	}
	return true
}

func (t *Table) sysGetFrameTime(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(t.clock.FrameTimeMicros()))
	return true
}

func (t *Table) sysGetTickSeconds(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(t.clock.TickMicros()/1_000_000))
	return true
}

func (t *Table) sysGetBatteryPercent(c *cpu.CPU) bool {
	c.SetX(cpu.A0, t.power.BatteryPercent())
	return true
}

func (t *Table) sysGetInputState(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(t.input.Current()))
	return true
}

func (t *Table) sysGetInputAxis(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(t.input.Axis(input.Button(c.X(cpu.A0)), input.Button(c.X(cpu.A1)))))
	return true
}

func (t *Table) sysIsButtonPressed(c *cpu.CPU) bool {
	c.SetX(cpu.A0, boolToInt(t.input.IsPressed(input.Button(c.X(cpu.A0)))))
	return true
}

func (t *Table) sysIsButtonJustPressed(c *cpu.CPU) bool {
	c.SetX(cpu.A0, boolToInt(t.input.IsJustPressed(input.Button(c.X(cpu.A0)))))
	return true
}

func (t *Table) sysIsButtonJustReleased(c *cpu.CPU) bool {
	c.SetX(cpu.A0, boolToInt(t.input.IsJustReleased(input.Button(c.X(cpu.A0)))))
	return true
}

func (t *Table) sysClearScreen(c *cpu.CPU) bool {
	t.gpu.Clear(uint8(c.X(cpu.A0)))
	return true
}

func (t *Table) sysGetColorIndex(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(t.gpu.NearestColorIndex(uint8(c.X(cpu.A0)), uint8(c.X(cpu.A1)), uint8(c.X(cpu.A2)))))
	return true
}

func (t *Table) sysSetTransparentColor(c *cpu.CPU) bool {
	t.gpu.SetTransparentColor(uint16(c.X(cpu.A0)))
	return true
}

func (t *Table) sysSetBackgroundColor(c *cpu.CPU) bool {
	t.gpu.SetBackgroundColor(uint16(c.X(cpu.A0)))
	return true
}

func (t *Table) sysSetForegroundColor(c *cpu.CPU) bool {
	t.gpu.SetForegroundColor(uint16(c.X(cpu.A0)))
	return true
}

func (t *Table) sysSetDrawAnchor(c *cpu.CPU) bool {
	t.gpu.SetDrawAnchor(uint8(c.X(cpu.A0)))
	return true
}

func (t *Table) sysSetDrawScale(c *cpu.CPU) bool {
	t.gpu.SetDrawScale(fixedpoint.F16(c.X(cpu.A0)), fixedpoint.F16(c.X(cpu.A1)))
	return true
}

func (t *Table) sysSetTargetPosition(c *cpu.CPU) bool {
	t.draw.targetPosition = video.Point2D{X: int(c.X(cpu.A0)), Y: int(c.X(cpu.A1))}
	return true
}

func (t *Table) sysSetSourceRectangle(c *cpu.CPU) bool {
	t.draw.sourceRectangle = video.Rectangle2D{
		X: int(c.X(cpu.A0)), Y: int(c.X(cpu.A1)),
		Width: int(c.X(cpu.A2)), Height: int(c.X(cpu.A3)),
	}
	return true
}

func (t *Table) sysSetTargetRectangle(c *cpu.CPU) bool {
	t.draw.targetRectangle = video.Rectangle2D{
		X: int(c.X(cpu.A0)), Y: int(c.X(cpu.A1)),
		Width: int(c.X(cpu.A2)), Height: int(c.X(cpu.A3)),
	}
	return true
}

func (t *Table) sysSetTextFont(c *cpu.CPU) bool {
	width := int(c.X(cpu.A0))
	height := int(c.X(cpu.A1))
	dataAddress := c.X(cpu.A2)

	if dataAddress == 0 || width < 16 || height < 16 {
		t.draw.customFont = nil
		return true
	}

	data, ok := c.Memory().Slice(int64(dataAddress), width*height)
	if !ok {
		t.draw.customFont = nil
		return true
	}

	image := &video.Image{Width: width, Height: height, Data: data}
	t.draw.customFont = &video.BitmapFont{Image: image, CharWidth: width / 16, CharHeight: height / 8}
	return true
}

func (t *Table) sysDrawRectangle(c *cpu.CPU) bool {
	t.gpu.DrawRectangle(t.draw.targetRectangle, uint8(c.X(cpu.A0)))
	return true
}

func (t *Table) sysDrawImage(c *cpu.CPU) bool {
	width := int(c.X(cpu.A0))
	height := int(c.X(cpu.A1))
	dataAddress := c.X(cpu.A2)

	data, ok := c.Memory().Slice(int64(dataAddress), width*height)
	if !ok {
		if t.logger != nil {
			t.logger.LogSyscallf(debug.LogLevelWarning, "sysDrawImage: rejected out-of-range image at %#x (%dx%d)", dataAddress, width, height)
		}
		return true
	}

	image := &video.Image{Width: width, Height: height, Data: data}
	t.gpu.Draw(image, t.draw.targetPosition, t.draw.sourceRectangle)
	return true
}

func (t *Table) activeFont() *video.BitmapFont {
	if t.draw.customFont != nil {
		return t.draw.customFont
	}
	return t.defaultFont
}

func (t *Table) sysDrawText(c *cpu.CPU) bool {
	text, ok := c.Memory().ReadCString(int64(c.X(cpu.A0)), maxTextLength)
	if !ok {
		return false
	}
	t.gpu.DrawText(t.activeFont(), t.draw.targetPosition, text)
	return true
}

func (t *Table) sysDrawNumber(c *cpu.CPU) bool {
	t.gpu.DrawText(t.activeFont(), t.draw.targetPosition, strconv.Itoa(int(c.X(cpu.A0))))
	return true
}

func (t *Table) sysSetChannelVolume(c *cpu.CPU) bool {
	t.mixer.SetChannelVolume(uint8(c.X(cpu.A0)), uint8(c.X(cpu.A1)))
	return true
}

func (t *Table) sysPlayTone(c *cpu.CPU) bool {
	t.mixer.PlayTone(uint8(c.X(cpu.A0)), audio.WaveType(c.X(cpu.A1)), uint16(c.X(cpu.A2)), uint32(c.X(cpu.A3)))
	return true
}

func (t *Table) sysStopChannel(c *cpu.CPU) bool {
	t.mixer.StopChannel(uint8(c.X(cpu.A0)))
	return true
}

func (t *Table) sysStopAllSound(c *cpu.CPU) bool {
	t.mixer.StopAllSound()
	return true
}

func (t *Table) sysSyncEngine(c *cpu.CPU) bool {
	t.engine.Sync(c.SpeedMultiplier())
	return true
}

func (t *Table) sysGetSprite(c *cpu.CPU) bool {
	width := int(c.X(cpu.A0))
	height := int(c.X(cpu.A1))
	dataAddress := c.X(cpu.A2)

	data, ok := c.Memory().Slice(int64(dataAddress), width*height)
	if !ok {
		if t.logger != nil {
			t.logger.LogSyscallf(debug.LogLevelWarning, "sysGetSprite: rejected out-of-range image at %#x (%dx%d)", dataAddress, width, height)
		}
		c.SetX(cpu.A0, -1)
		return true
	}

	sprite := t.engine.GetSprite(video.Image{Width: width, Height: height, Data: data})
	if sprite == nil {
		c.SetX(cpu.A0, -1)
	} else {
		c.SetX(cpu.A0, int32(sprite.Index))
	}
	return true
}

func (t *Table) sysReleaseSprite(c *cpu.CPU) bool {
	t.engine.ReleaseSprite(t.engine.GetSpriteByIndex(uint32(c.X(cpu.A0))))
	return true
}

func (t *Table) sysSetSpriteProps(c *cpu.CPU) bool {
	sprite := t.engine.GetSpriteByIndex(uint32(c.X(cpu.A0)))
	if sprite != nil {
		sprite.TransparentColor = uint16(c.X(cpu.A1))
		sprite.FrameWidth = uint16(c.X(cpu.A2))
		sprite.FrameHeight = uint16(c.X(cpu.A3))
	}
	return true
}

func (t *Table) sysSetSpriteFrames(c *cpu.CPU) bool {
	sprite := t.engine.GetSpriteByIndex(uint32(c.X(cpu.A0)))
	if sprite != nil {
		sprite.NumberOfFrames = uint8(c.X(cpu.A1))
		sprite.FrameSpeed = fixedpoint.Div(fixedpoint.FromInt(c.X(cpu.A2)), fixedpoint.FromInt(TargetFPS))
	}
	return true
}

func (t *Table) sysSetActiveLayer(c *cpu.CPU) bool {
	layer := c.X(cpu.A0)
	if layer >= 0 && layer < engine.MaxLayers {
		t.activeLayerIndex = uint8(layer)
	}
	return true
}

func (t *Table) sysGetNumberOfEntities(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(t.engine.GetNumberOfEntities(t.activeLayerIndex)))
	return true
}

func (t *Table) sysGetEntity(c *cpu.CPU) bool {
	sprite := t.engine.GetSpriteByIndex(uint32(c.X(cpu.A1)))
	if sprite == nil {
		c.SetX(cpu.A0, 0)
		return true
	}

	entity := t.engine.GetEntity(t.activeLayerIndex, uint32(c.X(cpu.A0)), sprite, fixedpoint.F16(c.X(cpu.A2)), fixedpoint.F16(c.X(cpu.A3)))
	if entity == nil {
		c.SetX(cpu.A0, -1)
	} else {
		c.SetX(cpu.A0, int32(entity.Index))
	}
	return true
}

func (t *Table) entityByIndex(c *cpu.CPU, reg int32) *engine.Entity {
	return t.engine.GetEntityByIndex(t.activeLayerIndex, uint32(c.X(reg)))
}

func (t *Table) sysReleaseEntity(c *cpu.CPU) bool {
	t.engine.ReleaseEntity(t.entityByIndex(c, cpu.A0))
	return true
}

func (t *Table) sysSetEntityPosition(c *cpu.CPU) bool {
	if e := t.entityByIndex(c, cpu.A0); e != nil {
		e.PositionX = fixedpoint.F16(c.X(cpu.A1))
		e.PositionY = fixedpoint.F16(c.X(cpu.A2))
	}
	return true
}

func (t *Table) sysSetEntityDirection(c *cpu.CPU) bool {
	if e := t.entityByIndex(c, cpu.A0); e != nil {
		e.DirectionX = c.X(cpu.A1)
		e.DirectionY = c.X(cpu.A2)
	}
	return true
}

func (t *Table) sysSetEntitySpeed(c *cpu.CPU) bool {
	if e := t.entityByIndex(c, cpu.A0); e != nil {
		e.SpeedX = fixedpoint.F16(c.X(cpu.A1))
		e.SpeedY = fixedpoint.F16(c.X(cpu.A2))
	}
	return true
}

func (t *Table) sysSetEntityFrameIndex(c *cpu.CPU) bool {
	if e := t.entityByIndex(c, cpu.A0); e != nil {
		e.FrameIndex = fixedpoint.F16(c.X(cpu.A1))
	}
	return true
}

func (t *Table) sysSetEntityData(c *cpu.CPU) bool {
	if e := t.entityByIndex(c, cpu.A0); e != nil {
		e.DataAddress = uint32(c.X(cpu.A1))
	}
	return true
}

func (t *Table) sysGetEntityTypeID(c *cpu.CPU) bool {
	e := t.entityByIndex(c, cpu.A0)
	if e == nil {
		c.SetX(cpu.A0, -1)
		return true
	}
	c.SetX(cpu.A0, int32(e.TypeID))
	return true
}

func (t *Table) sysGetEntityPositionX(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(entityOr(t.entityByIndex(c, cpu.A0), func(e *engine.Entity) fixedpoint.F16 { return e.PositionX })))
	return true
}

func (t *Table) sysGetEntityPositionY(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(entityOr(t.entityByIndex(c, cpu.A0), func(e *engine.Entity) fixedpoint.F16 { return e.PositionY })))
	return true
}

func (t *Table) sysGetEntityDirectionX(c *cpu.CPU) bool {
	e := t.entityByIndex(c, cpu.A0)
	if e == nil {
		c.SetX(cpu.A0, 0)
		return true
	}
	c.SetX(cpu.A0, e.DirectionX)
	return true
}

func (t *Table) sysGetEntityDirectionY(c *cpu.CPU) bool {
	e := t.entityByIndex(c, cpu.A0)
	if e == nil {
		c.SetX(cpu.A0, 0)
		return true
	}
	c.SetX(cpu.A0, e.DirectionY)
	return true
}

func (t *Table) sysGetEntitySpeedX(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(entityOr(t.entityByIndex(c, cpu.A0), func(e *engine.Entity) fixedpoint.F16 { return e.SpeedX })))
	return true
}

func (t *Table) sysGetEntitySpeedY(c *cpu.CPU) bool {
	c.SetX(cpu.A0, int32(entityOr(t.entityByIndex(c, cpu.A0), func(e *engine.Entity) fixedpoint.F16 { return e.SpeedY })))
	return true
}

func (t *Table) sysGetEntityFrameIndex(c *cpu.CPU) bool {
	e := t.entityByIndex(c, cpu.A0)
	if e == nil {
		c.SetX(cpu.A0, int32(fixedpoint.FromInt(-1)))
		return true
	}
	c.SetX(cpu.A0, int32(e.FrameIndex))
	return true
}

func (t *Table) sysGetEntityData(c *cpu.CPU) bool {
	e := t.entityByIndex(c, cpu.A0)
	if e == nil {
		c.SetX(cpu.A0, 0)
		return true
	}
	c.SetX(cpu.A0, int32(e.DataAddress))
	return true
}

func (t *Table) sysGetCollidingEntityIndex(c *cpu.CPU) bool {
	e := t.entityByIndex(c, cpu.A0)
	if e == nil {
		c.SetX(cpu.A0, -1)
		return true
	}
	other := t.engine.GetCollidingEntity(e, uint32(c.X(cpu.A1)))
	if other == nil {
		c.SetX(cpu.A0, -1)
	} else {
		c.SetX(cpu.A0, int32(other.Index))
	}
	return true
}

func (t *Table) sysFindEntityIndex(c *cpu.CPU) bool {
	c.SetX(cpu.A0, t.engine.FindEntityIndex(t.activeLayerIndex, uint32(c.X(cpu.A0)), uint32(c.X(cpu.A1))))
	return true
}

func (t *Table) sysIsEntityOnScreen(c *cpu.CPU) bool {
	c.SetX(cpu.A0, boolToInt(engine.IsEntityOnScreen(t.entityByIndex(c, cpu.A0))))
	return true
}

func entityOr(e *engine.Entity, get func(*engine.Entity) fixedpoint.F16) fixedpoint.F16 {
	if e == nil {
		return 0
	}
	return get(e)
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

