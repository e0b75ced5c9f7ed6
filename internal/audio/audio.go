// Package audio implements the 4-channel wavetable mixer: sawtooth,
// square, and triangle generators, per-channel volume and duration,
// and the fixed-size buffer fill that runs once per frame.
package audio

import (
	"portatil/internal/debug"
	"portatil/internal/fixedpoint"
)

// WaveType selects a channel's oscillator shape.
type WaveType uint8

const (
	Sawtooth WaveType = iota
	Square
	Triangle
	NumberOfWaveTypes
)

const (
	NumberOfChannels = 4
	BufferSize       = 735 // SoundFrequency / target frame rate
	Frequency        = 22050
	PlayForever      = 0
)

var (
	sampleMin = fixedpoint.FromInt(-127)
	sampleMax = fixedpoint.FromInt(127)
)

// Clock abstracts wall-clock access so tests can drive duration decay
// deterministically.
type Clock interface {
	NowMicros() int64
}

type channelState struct {
	waveType         WaveType
	noteFrequency    fixedpoint.F16
	timeLeftMicros   int64
	sampleStep       fixedpoint.F16
	internalSample   fixedpoint.F16
	sampleValue      fixedpoint.F16
	volumeMultiplier fixedpoint.F16
	isPaused         bool
	playForever      bool
	lastSyncMicros   int64
}

// Mixer owns the 4 channels and the per-frame output buffer.
type Mixer struct {
	clock    Clock
	channels [NumberOfChannels]channelState
	buffer   [BufferSize]int8
	logger   *debug.Logger
}

// New creates a mixer with every channel silent and at full volume.
func New(clock Clock) *Mixer {
	m := &Mixer{clock: clock}
	for i := range m.channels {
		m.channels[i].volumeMultiplier = fixedpoint.One
	}
	return m
}

// SetLogger attaches a diagnostics logger.
func (m *Mixer) SetLogger(logger *debug.Logger) {
	m.logger = logger
}

// Buffer returns the most recently mixed frame of signed 8-bit PCM
// samples, ready for the host audio driver to queue.
func (m *Mixer) Buffer() []int8 {
	return m.buffer[:]
}

func (c *channelState) update() {
	switch c.waveType {
	case Sawtooth:
		c.sampleValue += c.sampleStep
		if c.sampleValue >= sampleMax {
			c.sampleValue = sampleMin
		}
	case Square:
		c.internalSample += c.sampleStep
		if c.internalSample >= sampleMax {
			c.internalSample = sampleMin
			c.sampleValue = -c.sampleValue
		}
	case Triangle:
		c.sampleValue += c.sampleStep
		if c.sampleValue >= sampleMax {
			c.sampleValue = sampleMax
			c.sampleStep = -c.sampleStep
		} else if c.sampleValue <= sampleMin {
			c.sampleValue = sampleMin
			c.sampleStep = -c.sampleStep
		}
	}
}

func (m *Mixer) fillBuffer() {
	for sampleIndex := 0; sampleIndex < BufferSize; sampleIndex++ {
		var accumulator int64
		var active int64

		for i := range m.channels {
			c := &m.channels[i]
			if c.noteFrequency <= 0 || c.isPaused {
				continue
			}

			c.update()

			accumulator += int64(fixedpoint.Mult(c.sampleValue, c.volumeMultiplier).ToInt())
			active++
		}

		if active == 0 {
			m.buffer[sampleIndex] = 0
			continue
		}

		m.buffer[sampleIndex] = int8(fixedpoint.Div(fixedpoint.FromInt(int32(accumulator)), fixedpoint.FromInt(int32(active))).ToInt())
	}
}

// Sync decays each channel's remaining duration by the elapsed wall
// time and fills the output buffer for this frame. Paused channels
// still track the clock (so resuming doesn't fast-forward a note) but
// don't spend their time budget.
func (m *Mixer) Sync() {
	now := m.clock.NowMicros()

	for i := range m.channels {
		c := &m.channels[i]
		if c.noteFrequency <= 0 || c.timeLeftMicros <= 0 || c.playForever {
			continue
		}

		if c.isPaused {
			c.lastSyncMicros = now
			continue
		}

		c.timeLeftMicros -= now - c.lastSyncMicros
		c.lastSyncMicros = now

		if c.timeLeftMicros <= 0 {
			c.noteFrequency = 0
		}
	}

	m.fillBuffer()
}

// SetChannelVolume sets a channel's volume as a percentage, clamped to
// 100%.
func (m *Mixer) SetChannelVolume(channel uint8, volumePercent uint8) {
	if channel >= NumberOfChannels {
		if m.logger != nil {
			m.logger.LogAudiof(debug.LogLevelWarning, "rejected volume on out-of-range channel %d", channel)
		}
		return
	}
	multiplier := fixedpoint.Div(fixedpoint.FromInt(int32(volumePercent)), fixedpoint.FromInt(100))
	if multiplier > fixedpoint.One {
		multiplier = fixedpoint.One
	}
	m.channels[channel].volumeMultiplier = multiplier
}

// PlayTone starts a note on a channel. durationMs of PlayForever loops
// the note until explicitly stopped.
func (m *Mixer) PlayTone(channel uint8, waveType WaveType, noteFrequency uint16, durationMs uint32) {
	if channel >= NumberOfChannels || waveType >= NumberOfWaveTypes {
		if m.logger != nil {
			m.logger.LogAudiof(debug.LogLevelWarning, "rejected tone on channel %d wave %d", channel, waveType)
		}
		return
	}

	c := &m.channels[channel]
	now := m.clock.NowMicros()

	c.isPaused = false
	c.lastSyncMicros = now
	c.timeLeftMicros = int64(durationMs) * 1000
	c.playForever = durationMs == PlayForever

	c.waveType = waveType
	c.noteFrequency = fixedpoint.FromInt(int32(noteFrequency))

	waveSamples := fixedpoint.Div(fixedpoint.FromInt(Frequency), c.noteFrequency)

	c.sampleValue = sampleMin
	c.internalSample = sampleMin

	stepNumerator := int32(512)
	if waveType == Sawtooth {
		stepNumerator = 256
	}
	c.sampleStep = fixedpoint.Div(fixedpoint.FromInt(stepNumerator), waveSamples)
}

// PauseChannel pauses or resumes a channel's duration countdown
// without resetting its waveform.
func (m *Mixer) PauseChannel(channel uint8, pause bool) {
	if channel >= NumberOfChannels {
		return
	}
	m.channels[channel].isPaused = pause
}

// StopChannel silences a channel immediately.
func (m *Mixer) StopChannel(channel uint8) {
	if channel >= NumberOfChannels {
		return
	}
	m.channels[channel].timeLeftMicros = 0
	m.channels[channel].noteFrequency = 0
}

// StopAllSound silences every channel.
func (m *Mixer) StopAllSound() {
	for i := range m.channels {
		m.StopChannel(uint8(i))
	}
}

// PauseAll pauses or resumes every channel's duration countdown at
// once, used when the kernel suspends the guest (e.g. entering the
// pause menu).
func (m *Mixer) PauseAll(pause bool) {
	for i := range m.channels {
		m.PauseChannel(uint8(i), pause)
	}
}
