// Package kernel implements the frame-paced outer loop: sampling
// input, running the guest until it yields, mixing audio, and
// shipping the framebuffer to the display on a fixed cadence. It also
// owns the small state machine that switches between running a
// program, showing a trap message, and the pause/shell stubs.
package kernel

import (
	"portatil/internal/audio"
	"portatil/internal/cpu"
	"portatil/internal/debug"
	"portatil/internal/engine"
	"portatil/internal/fixedpoint"
	"portatil/internal/input"
	"portatil/internal/rom"
	syscalltable "portatil/internal/syscall"
	"portatil/internal/video"
)

const (
	// TargetFPS is the reference frame rate the speed multiplier and
	// GPU sync cadence are measured against.
	TargetFPS = 30

	// TargetFrameTime is one frame's budget in microseconds.
	TargetFrameTime = 1_000_000 / TargetFPS

	// TargetFrameTimeMs is the same budget in milliseconds.
	TargetFrameTimeMs = TargetFrameTime / 1000

	powerSyncInterval           = 10_000_000
	lowBatteryIndicatorInterval = 500_000
	lowBatteryWarningPercentage = 10
)

// Clock abstracts wall-clock access and the end-of-frame sleep, so
// tests can drive the loop deterministically.
type Clock interface {
	NowMicros() int64
	Sleep(micros int64)
}

// Display receives a framebuffer and palette snapshot once per GPU
// sync interval.
type Display interface {
	Sync(framebuffer, palette []uint8)
}

// Speaker receives one frame's worth of mixed audio samples.
type Speaker interface {
	Sync(buffer []int8)
}

// PowerSource reports remaining battery charge, sampled periodically
// rather than every frame.
type PowerSource interface {
	BatteryPercent() int32
}

// InputSource polls the physical buttons once per frame.
type InputSource interface {
	Sync() input.Button
}

// StateFunc is one state in the kernel's dispatch table, invoked once
// per frame with the elapsed frame time in microseconds.
type StateFunc func(k *Kernel, frameTimeMicros int64)

// Kernel owns every subsystem and the state machine that drives them.
type Kernel struct {
	CPU    *cpu.CPU
	GPU    *video.GPU
	Mixer  *audio.Mixer
	Engine *engine.Engine
	Input  *input.State

	display     Display
	speaker     Speaker
	power       PowerSource
	inputSource InputSource
	clock       Clock
	logger      *debug.Logger

	defaultFont *video.BitmapFont

	currentState StateFunc
	errorNext    StateFunc
	errorMessage string

	speedMultiplier   fixedpoint.F16
	batteryPercent    int32
	lowBatteryCounter int64
	showLowBattery    bool
	shutdownRequested bool

	frameTime     int64
	busyFrameTime int64
}

// New wires a kernel to its subsystems and host drivers.
func New(c *cpu.CPU, gpu *video.GPU, mixer *audio.Mixer, eng *engine.Engine, in *input.State,
	display Display, speaker Speaker, power PowerSource, inputSource InputSource, clock Clock) *Kernel {

	k := &Kernel{
		CPU: c, GPU: gpu, Mixer: mixer, Engine: eng, Input: in,
		display: display, speaker: speaker, power: power, inputSource: inputSource, clock: clock,
		defaultFont: video.NewDefaultFont(),
	}
	k.currentState = stateInGame
	return k
}

// SetLogger attaches a diagnostics logger.
func (k *Kernel) SetLogger(logger *debug.Logger) {
	k.logger = logger
}

// ChangeState installs a new state function, taking effect on the
// next frame.
func (k *Kernel) ChangeState(state StateFunc) {
	if state == nil {
		return
	}
	k.currentState = state
}

// ShowError records a trap message and the state to resume once the
// player acknowledges it, then switches to the error state.
func (k *Kernel) ShowError(nextState StateFunc, message string) {
	k.errorMessage = message
	k.errorNext = nextState
	k.ChangeState(stateError)
}

// Shutdown asks Run to stop after the current frame.
func (k *Kernel) Shutdown() {
	k.shutdownRequested = true
}

// SetInputSource replaces the button source polled each frame. Host
// drivers that only learn of a shutdown request while sampling input
// (a closed window, an Escape key) construct their InputSource after
// the kernel exists and install it here.
func (k *Kernel) SetInputSource(source InputSource) {
	k.inputSource = source
}

// FrameTime returns the current frame's elapsed time in microseconds.
func (k *Kernel) FrameTime() int64 { return k.frameTime }

// BusyFrameTime returns how long the last frame's work took, before
// the end-of-frame sleep.
func (k *Kernel) BusyFrameTime() int64 { return k.busyFrameTime }

// FrameTimeMicros satisfies the syscall table's Clock interface,
// reporting the same elapsed time the getFrameTime syscall exposes to
// the guest.
func (k *Kernel) FrameTimeMicros() int64 { return k.frameTime }

// TickMicros satisfies the syscall table's Clock interface, reporting
// the host's monotonic tick.
func (k *Kernel) TickMicros() int64 { return k.clock.NowMicros() }

// Boot loads a program image and resets the engine and state machine
// to start running it.
func (k *Kernel) Boot(source rom.Source, path string) error {
	if err := rom.Load(source, path, k.CPU, k.logger); err != nil {
		return err
	}
	k.Engine.Reset()
	k.Mixer.StopAllSound()
	k.currentState = stateInGame
	return nil
}

// RunOptions configures a Run call.
type RunOptions struct {
	// Unlimited disables the end-of-frame sleep, running as fast as
	// the host can manage (useful for headless batch execution).
	Unlimited bool

	// FrameCap stops Run after this many frames. Zero means unbounded.
	FrameCap int
}

// Run drives the kernel loop until Shutdown is called or the frame
// cap is reached.
func (k *Kernel) Run(opts RunOptions) {
	k.shutdownRequested = false
	k.batteryPercent = k.power.BatteryPercent()

	lastSyncTick := k.clock.NowMicros()
	var lastGPUSync, lastPowerSync int64
	frames := 0

	for !k.shutdownRequested {
		syncTick := k.clock.NowMicros()

		k.frameTime = syncTick - lastSyncTick
		k.Input.Shift(k.inputSource.Sync())

		k.currentState(k, k.frameTime)
		k.updateLowBatteryIndicator()

		k.Mixer.Sync()
		k.speaker.Sync(k.Mixer.Buffer())

		if syncTick-lastGPUSync >= TargetFrameTime {
			lastGPUSync = syncTick
			k.display.Sync(k.GPU.Framebuffer(), k.GPU.Palette())
		}

		if syncTick-lastPowerSync >= powerSyncInterval {
			lastPowerSync = syncTick
			k.batteryPercent = k.power.BatteryPercent()
		}

		k.busyFrameTime = k.clock.NowMicros() - syncTick
		if !opts.Unlimited && k.busyFrameTime < TargetFrameTime {
			k.clock.Sleep(TargetFrameTime - k.busyFrameTime)
		}

		lastSyncTick = syncTick
		frames++
		if opts.FrameCap > 0 && frames >= opts.FrameCap {
			break
		}
	}
}

func (k *Kernel) updateLowBatteryIndicator() {
	if k.batteryPercent > lowBatteryWarningPercentage {
		return
	}

	k.lowBatteryCounter += k.frameTime
	if k.lowBatteryCounter > lowBatteryIndicatorInterval {
		k.showLowBattery = !k.showLowBattery
		k.lowBatteryCounter = 0
	}

	if !k.showLowBattery {
		return
	}

	k.GPU.SetTransparentColor(0)
	k.GPU.DrawText(k.defaultFont, video.Point2D{X: video.Width - k.defaultFont.CharWidth - 1, Y: 1}, "!")
}

func computeSpeedMultiplier(frameTimeMicros int64) fixedpoint.F16 {
	sm := fixedpoint.Div(fixedpoint.FromInt(int32(frameTimeMicros/1000)), fixedpoint.FromInt(TargetFrameTimeMs))

	if sm == 0 {
		sm = fixedpoint.Div(fixedpoint.FromFloat(float64(frameTimeMicros)/1000.0), fixedpoint.FromFloat(float64(TargetFrameTime)/1000.0))
	}
	if sm == 0 {
		sm = fixedpoint.One
	}

	return sm
}

func stateInGame(k *Kernel, frameTimeMicros int64) {
	k.speedMultiplier = computeSpeedMultiplier(frameTimeMicros)

	if k.Input.IsPressed(input.Up) && k.Input.IsJustPressed(input.A) && k.Input.IsJustPressed(input.X) {
		k.Mixer.PauseAll(true)
		k.ChangeState(statePauseMenu)
		return
	}

	if !k.CPU.Sync(k.speedMultiplier) {
		k.Mixer.StopAllSound()

		message := k.CPU.Error()
		if message == "" {
			message = "unknown vm error"
		}
		k.ShowError(stateShell, message)
		return
	}
}

func stateError(k *Kernel, frameTimeMicros int64) {
	if k.Input.IsJustPressed(input.Y) && k.errorNext != nil {
		next := k.errorNext
		k.errorNext = nil
		k.ChangeState(next)
		return
	}

	backgroundRect := video.Rectangle2D{X: 0, Y: (video.Height-k.defaultFont.CharHeight*5)/2 - 2, Width: video.Width, Height: k.defaultFont.CharHeight*5 + 4}
	messageRect := video.Rectangle2D{X: 0, Y: backgroundRect.Y + 2, Width: video.Width, Height: k.defaultFont.CharHeight * 5}

	k.GPU.DrawRectangle(backgroundRect, k.GPU.NearestColorIndex(255, 255, 255))
	k.GPU.DrawRectangle(messageRect, k.GPU.NearestColorIndex(220, 0, 0))

	k.GPU.SetTransparentColor(0)
	k.GPU.DrawText(k.defaultFont, centeredTextPosition(k.errorMessage, k.defaultFont, video.Height/2-k.defaultFont.CharHeight), k.errorMessage)
	k.GPU.DrawText(k.defaultFont, centeredTextPosition("Press Y to Continue", k.defaultFont, video.Height/2+k.defaultFont.CharHeight), "Press Y to Continue")
}

func centeredTextPosition(text string, font *video.BitmapFont, y int) video.Point2D {
	return video.Point2D{X: (video.Width - len(text)*font.CharWidth) / 2, Y: y}
}

// statePauseMenu is a minimal stub: menu rendering belongs to the host
// shell, so this state only resumes the guest on a button press.
func statePauseMenu(k *Kernel, frameTimeMicros int64) {
	if k.Input.IsJustPressed(input.A) {
		k.Mixer.PauseAll(false)
		k.ChangeState(stateInGame)
	}
}

// stateShell is a minimal stub standing in for the program-selection
// menu, out of scope here.
func stateShell(k *Kernel, frameTimeMicros int64) {
}

// InstallSyscalls builds and installs the syscall table this kernel's
// CPU will dispatch into, wiring it to the kernel's own subsystems.
func (k *Kernel) InstallSyscalls() {
	table := syscalltable.New(k.GPU, k.Mixer, k.Engine, k.Input, k, k.power)
	table.SetLogger(k.logger)
	table.Install(k.CPU)
}
