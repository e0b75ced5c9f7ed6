package host

import (
	"github.com/pkg/errors"
	"github.com/veandco/go-sdl2/sdl"

	"portatil/internal/audio"
	"portatil/internal/input"
	"portatil/internal/video"
)

// SDLShell is the interactive host driver: an SDL2 window and renderer
// for the framebuffer, a queued audio device for the mixer's buffer,
// and the keyboard as the button source. It implements kernel.Display,
// kernel.Speaker, and kernel.InputSource.
type SDLShell struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	audioDev sdl.AudioDeviceID

	scale       int32
	pixels      []byte
	quitPending bool
}

// NewSDLShell opens a window sized to the framebuffer at the given
// integer scale, plus a queued audio device matched to the mixer's
// sample rate and frame buffer size.
func NewSDLShell(scale int) (*SDLShell, error) {
	if scale < 1 {
		scale = 1
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO | sdl.INIT_EVENTS); err != nil {
		return nil, errors.Wrap(err, "init sdl")
	}

	sdl.SetHint(sdl.HINT_RENDER_SCALE_QUALITY, "0")

	width, height := int32(video.Width*scale), int32(video.Height*scale)

	window, err := sdl.CreateWindow("Portatil", sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED, width, height, sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return nil, errors.Wrap(err, "create renderer")
	}

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_RGB24, sdl.TEXTUREACCESS_STREAMING, video.Width, video.Height)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return nil, errors.Wrap(err, "create texture")
	}

	audioSpec := sdl.AudioSpec{
		Freq:     audio.Frequency,
		Format:   sdl.AUDIO_S8,
		Channels: 1,
		Samples:  audio.BufferSize,
	}
	audioDev, err := sdl.OpenAudioDevice("", false, &audioSpec, nil, 0)
	if err != nil {
		// Audio is a nice-to-have; a display without sound still runs.
		audioDev = 0
	} else {
		sdl.PauseAudioDevice(audioDev, false)
	}

	return &SDLShell{
		window:   window,
		renderer: renderer,
		texture:  texture,
		audioDev: audioDev,
		scale:    int32(scale),
		pixels:   make([]byte, video.Width*video.Height*3),
	}, nil
}

// Close tears down every SDL resource this shell opened.
func (s *SDLShell) Close() {
	if s.audioDev != 0 {
		sdl.CloseAudioDevice(s.audioDev)
	}
	if s.texture != nil {
		s.texture.Destroy()
	}
	if s.renderer != nil {
		s.renderer.Destroy()
	}
	if s.window != nil {
		s.window.Destroy()
	}
	sdl.Quit()
}

// Quit reports whether the window's close button or Escape was pressed
// since the last poll. ShutdownInput checks it after each input poll and
// calls its onQuit callback once it turns true.
func (s *SDLShell) Quit() bool {
	return s.quitPending
}

// Sync uploads a palette-indexed framebuffer to the window, converting
// each pixel through the palette to RGB24.
func (s *SDLShell) Sync(framebuffer, palette []uint8) {
	for i, index := range framebuffer {
		s.pixels[i*3] = palette[int(index)*3]
		s.pixels[i*3+1] = palette[int(index)*3+1]
		s.pixels[i*3+2] = palette[int(index)*3+2]
	}

	if err := s.texture.Update(nil, s.pixels, video.Width*3); err != nil {
		return
	}

	s.renderer.Clear()
	s.renderer.Copy(s.texture, nil, &sdl.Rect{W: video.Width * s.scale, H: video.Height * s.scale})
	s.renderer.Present()
}

// Speaker adapts this shell's audio output to kernel.Speaker, whose
// Sync signature differs from the display's.
func (s *SDLShell) Speaker() *sdlSpeaker { return &sdlSpeaker{shell: s} }

// Input adapts this shell's keyboard polling to kernel.InputSource,
// whose Sync signature differs from the display's.
func (s *SDLShell) Input() *sdlInput { return &sdlInput{shell: s} }

type sdlSpeaker struct{ shell *SDLShell }

func (a *sdlSpeaker) Sync(buffer []int8) { a.shell.syncAudio(buffer) }

type sdlInput struct{ shell *SDLShell }

func (a *sdlInput) Sync() input.Button { return a.shell.syncInput() }

// ShutdownInput wraps a shell's input source so that, once the window
// is closed or Escape is pressed, it invokes onQuit (typically
// Kernel.Shutdown) instead of only setting the shell's own quit flag.
type ShutdownInput struct {
	shell  *SDLShell
	onQuit func()
}

// NewShutdownInput builds a ShutdownInput bound to a kernel's Shutdown
// method, installed after the kernel is constructed since the shell
// itself is built before the kernel that polls it.
func NewShutdownInput(shell *SDLShell, onQuit func()) *ShutdownInput {
	return &ShutdownInput{shell: shell, onQuit: onQuit}
}

func (s *ShutdownInput) Sync() input.Button {
	buttons := s.shell.syncInput()
	if s.shell.Quit() {
		s.onQuit()
	}
	return buttons
}

// syncAudio queues one frame of mixed audio for playback.
func (s *SDLShell) syncAudio(buffer []int8) {
	if s.audioDev == 0 {
		return
	}

	bytes := make([]byte, len(buffer))
	for i, sample := range buffer {
		bytes[i] = byte(sample)
	}

	const maxQueuedBytes = audio.BufferSize * 4
	if sdl.GetQueuedAudioSize(s.audioDev) > maxQueuedBytes {
		return
	}
	sdl.QueueAudio(s.audioDev, bytes)
}

var keyToButton = map[sdl.Scancode]input.Button{
	sdl.SCANCODE_UP:    input.Up,
	sdl.SCANCODE_DOWN:  input.Down,
	sdl.SCANCODE_LEFT:  input.Left,
	sdl.SCANCODE_RIGHT: input.Right,
	sdl.SCANCODE_Z:     input.A,
	sdl.SCANCODE_X:     input.B,
	sdl.SCANCODE_A:     input.X,
	sdl.SCANCODE_S:     input.Y,
}

// syncInput pumps pending SDL events (tracking quit requests) and
// samples the keyboard into the handheld's 8-button mask.
func (s *SDLShell) syncInput() input.Button {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			s.quitPending = true
		case *sdl.KeyboardEvent:
			if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
				s.quitPending = true
			}
		}
	}

	keys := sdl.GetKeyboardState()
	var mask input.Button
	for scancode, button := range keyToButton {
		if keys[scancode] != 0 {
			mask |= button
		}
	}
	return mask
}
