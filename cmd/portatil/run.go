package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"portatil/internal/audio"
	"portatil/internal/cpu"
	"portatil/internal/debug"
	"portatil/internal/engine"
	"portatil/internal/host"
	"portatil/internal/input"
	"portatil/internal/kernel"
	"portatil/internal/memory"
	"portatil/internal/video"
)

var (
	flagUnlimited bool
	flagFrames    int
	flagLog       string
	flagDisplay   bool
	flagScale     int
)

var runCmd = &cobra.Command{
	Use:   "run <program-file>",
	Short: "load and run a program image",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgram,
}

func init() {
	runCmd.Flags().BoolVar(&flagUnlimited, "unlimited", false, "run at unlimited speed, skipping the end-of-frame sleep")
	runCmd.Flags().IntVar(&flagFrames, "frames", 0, "stop after this many frames (0 means unbounded)")
	runCmd.Flags().StringVar(&flagLog, "log", "", "enable diagnostics as component=level,... (e.g. cpu=debug,kernel=info)")
	runCmd.Flags().BoolVar(&flagDisplay, "display", false, "open an SDL2 window instead of running headless")
	runCmd.Flags().IntVar(&flagScale, "scale", 3, "SDL2 window scale, only used with --display")
}

func runProgram(cmd *cobra.Command, args []string) error {
	programPath := args[0]

	clock := host.NewWallClock()
	mem := memory.New()
	c := cpu.New(mem, clock)
	gpu := video.New()
	mixer := audio.New(clock)
	eng := engine.New(gpu)
	in := &input.State{}

	logger := debug.NewLogger(10000)
	if err := applyLogFlags(logger, flagLog); err != nil {
		return err
	}
	defer logger.Shutdown()
	mem.SetLogger(logger)
	c.SetLogger(logger)
	gpu.SetLogger(logger)
	mixer.SetLogger(logger)
	eng.SetLogger(logger)

	var (
		display kernel.Display
		speaker kernel.Speaker
		source  kernel.InputSource
	)

	var shell *host.SDLShell
	if flagDisplay {
		var err error
		shell, err = host.NewSDLShell(flagScale)
		if err != nil {
			return err
		}
		defer shell.Close()
		display, speaker, source = shell, shell.Speaker(), shell.Input()
	} else {
		display, speaker, source = host.NoopDisplay{}, host.NoopSpeaker{}, host.NoopInput{}
	}

	k := kernel.New(c, gpu, mixer, eng, in, display, speaker, host.StaticPower{Percent: 100}, source, clock)
	k.SetLogger(logger)
	k.InstallSyscalls()

	if shell != nil {
		k.SetInputSource(host.NewShutdownInput(shell, k.Shutdown))
	}

	if err := k.Boot(host.FileSystem{}, programPath); err != nil {
		return err
	}

	k.Run(kernel.RunOptions{Unlimited: flagUnlimited, FrameCap: flagFrames})

	if msg := c.Error(); msg != "" {
		return fmt.Errorf("program halted: %s", msg)
	}

	return nil
}
