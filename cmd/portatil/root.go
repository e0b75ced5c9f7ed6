package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "portatil",
	Short: "portatil runs compiled programs on the handheld's virtual machine",
	Long:  "portatil is the headless and SDL2-backed runtime for the handheld's RV32IM bytecode VM.",
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
