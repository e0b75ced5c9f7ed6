package kernel

import (
	"testing"

	"portatil/internal/audio"
	"portatil/internal/cpu"
	"portatil/internal/engine"
	"portatil/internal/fixedpoint"
	"portatil/internal/input"
	"portatil/internal/memory"
	"portatil/internal/video"
)

type fakeClock struct {
	micros int64
	slept  int64
}

func (c *fakeClock) NowMicros() int64 { return c.micros }
func (c *fakeClock) Sleep(micros int64) {
	c.slept += micros
	c.micros += micros
}

type fakeDisplay struct{ syncs int }

func (d *fakeDisplay) Sync(framebuffer, palette []uint8) { d.syncs++ }

type fakeSpeaker struct{ syncs int }

func (s *fakeSpeaker) Sync(buffer []int8) { s.syncs++ }

type fakePower struct{ percent int32 }

func (p *fakePower) BatteryPercent() int32 { return p.percent }

type fakeInput struct{ mask input.Button }

func (i *fakeInput) Sync() input.Button { return i.mask }

func newTestKernel() (*Kernel, *fakeClock) {
	mem := memory.New()
	clock := &fakeClock{}
	c := cpu.New(mem, clock)
	gpu := video.New()
	mixer := audio.New(clock)
	eng := engine.New(gpu)
	inputState := &input.State{}

	k := New(c, gpu, mixer, eng, inputState, &fakeDisplay{}, &fakeSpeaker{}, &fakePower{percent: 100}, &fakeInput{}, clock)
	k.InstallSyscalls()
	return k, clock
}

func loadHaltingProgram(t *testing.T, k *Kernel) {
	// exit ecall: addi a7,zero,1 ; ecall
	program := []byte{
		0x93, 0x08, 0x10, 0x00, // addi a7, zero, 1
		0x73, 0x00, 0x00, 0x00, // ecall
	}
	if !k.CPU.Reset(0, 0, uint32(len(program))) {
		t.Fatalf("reset failed")
	}
	if !k.CPU.Memory().LoadBytes(program) {
		t.Fatalf("load failed")
	}
}

func loadYieldingProgram(t *testing.T, k *Kernel) {
	// addi a7,zero,2 (sync) ; ecall ; jal zero,-8 (loop back to the addi)
	program := []byte{
		0x93, 0x08, 0x20, 0x00, // addi a7, zero, 2
		0x73, 0x00, 0x00, 0x00, // ecall
		0x6f, 0xf0, 0x9f, 0xff, // jal zero, -8
	}
	if !k.CPU.Reset(0, 0, uint32(len(program))) {
		t.Fatalf("reset failed")
	}
	if !k.CPU.Memory().LoadBytes(program) {
		t.Fatalf("load failed")
	}
}

func TestRunTrapEntersErrorState(t *testing.T) {
	k, _ := newTestKernel()
	loadHaltingProgram(t, k)

	k.Run(RunOptions{Unlimited: true, FrameCap: 1})

	if k.errorMessage == "" {
		t.Fatalf("expected a trap to record an error message")
	}
}

func TestErrorStateResumesOnYButton(t *testing.T) {
	k, _ := newTestKernel()
	loadHaltingProgram(t, k)

	k.Run(RunOptions{Unlimited: true, FrameCap: 1})
	if k.currentState == nil {
		t.Fatalf("expected a current state after trapping")
	}

	in := k.inputSource.(*fakeInput)
	in.mask = input.Y
	k.Run(RunOptions{Unlimited: true, FrameCap: 1})

	// Pressing Y should have returned to the shell stub, clearing the
	// pending next-state.
	if k.errorNext != nil {
		t.Fatalf("expected errorNext to be cleared after resuming")
	}
}

func TestRunRespectsFrameCap(t *testing.T) {
	k, _ := newTestKernel()
	loadYieldingProgram(t, k)

	display := k.display.(*fakeDisplay)
	speaker := k.speaker.(*fakeSpeaker)

	k.Run(RunOptions{Unlimited: true, FrameCap: 5})

	if speaker.syncs != 5 {
		t.Fatalf("speaker synced %d times, want 5", speaker.syncs)
	}
	_ = display
}

func TestUnlimitedSkipsSleep(t *testing.T) {
	k, clock := newTestKernel()
	loadYieldingProgram(t, k)

	k.Run(RunOptions{Unlimited: true, FrameCap: 3})

	if clock.slept != 0 {
		t.Fatalf("unlimited mode should never sleep, slept %d micros", clock.slept)
	}
}

func TestSpeedMultiplierFallsBackToOne(t *testing.T) {
	sm := computeSpeedMultiplier(0)
	if sm != fixedpoint.One {
		t.Fatalf("speed multiplier = %v, want fixedpoint.One when the frame time is zero", sm)
	}
}
