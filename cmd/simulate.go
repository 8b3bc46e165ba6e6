// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ldscope/internal/simulator"
)

var (
	simRPM         float64
	simHealthEvery int
	simOutput      string
	simFrames      int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate a synthetic LD19 byte stream",
	Long: `Generate measurement and health frames for a sensor spinning in a
rectangular room.

Targets:
  --output FILE   write --frames frames to a file as fast as possible,
                  suitable for 'replay'
  --port DEV      stream to a serial port at the sensor's real frame rate
                  until Ctrl+C (or --frames frames when set)

Rotation speed and health frame interval default to the simulator section of
the config file.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Float64Var(&simRPM, "rpm", 0, "Rotation speed (default from config)")
	simulateCmd.Flags().IntVar(&simHealthEvery, "health-every", -1, "Measurement frames between health frames, 0 disables (default from config)")
	simulateCmd.Flags().StringVarP(&simOutput, "output", "o", "", "Write frames to file")
	simulateCmd.Flags().IntVarP(&simFrames, "frames", "n", 0, "Number of frames (0 = one rotation for files, unlimited for ports)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	simCfg := simulator.DefaultConfig()
	simCfg.RPM = cfg.Simulator.RPM
	simCfg.HealthEvery = cfg.Simulator.HealthEvery
	if simRPM > 0 {
		simCfg.RPM = simRPM
	}
	if simHealthEvery >= 0 {
		simCfg.HealthEvery = simHealthEvery
	}

	sim, err := simulator.New(simCfg)
	if err != nil {
		return err
	}

	switch {
	case simOutput != "":
		return simulateToFile(sim, simCfg)
	case portName != "":
		return simulateToPort(cmd.Context(), sim, simCfg)
	default:
		return fmt.Errorf("no target: use --output FILE or --port DEV")
	}
}

func simulateToFile(sim *simulator.Simulator, simCfg simulator.Config) error {
	frames := simFrames
	if frames <= 0 {
		// One full rotation of measurement frames
		frames = int(60 / simCfg.RPM / sim.FrameInterval().Seconds())
	}

	f, err := os.Create(simOutput)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	if err := sim.WriteFrames(f, frames); err != nil {
		return err
	}

	fmt.Printf("Wrote %d frames at %.1f RPM to %s\n", frames, simCfg.RPM, simOutput)
	return nil
}

func simulateToPort(ctx context.Context, sim *simulator.Simulator, simCfg simulator.Config) error {
	conn, err := OpenSerialConnection(portName, baudRate)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Printf("ldscope - Simulator\n")
	fmt.Printf("Serial: %s @ %d baud\n", portName, baudRate)
	fmt.Printf("Speed: %.1f RPM, frame interval %v\n", simCfg.RPM, sim.FrameInterval())
	fmt.Printf("Press Ctrl+C to stop\n\n")

	var w io.Writer = conn
	if simFrames > 0 {
		w = &frameLimiter{w: conn, remaining: simFrames, done: stop}
	}
	return sim.Run(ctx, w)
}

// frameLimiter passes through a fixed number of writes, then calls done and
// discards the rest
type frameLimiter struct {
	w         io.Writer
	remaining int
	done      func()
}

func (l *frameLimiter) Write(p []byte) (int, error) {
	if l.remaining <= 0 {
		return len(p), nil
	}
	l.remaining--
	if l.remaining == 0 {
		defer l.done()
	}
	return l.w.Write(p)
}
