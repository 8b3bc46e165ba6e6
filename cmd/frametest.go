// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

var (
	frameTestTimeout     int
	frameTestMeasurement bool
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid LD19 frame",
	Long: `Wait for a valid LD19 frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any frame
that passes its checksum. Bytes before the first header and frames with a bad
checksum are counted and skipped. With --measurement only a measurement frame
ends the wait.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking wiring and baud rate before a capture.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().BoolVar(&frameTestMeasurement, "measurement", false, "Wait for a measurement frame specifically")
}

type frameTestResult struct {
	kind  ld19.FrameKind
	frame []byte
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("ldscope - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid LD19 frame...\n\n")

	receiver := ld19.NewReceiver(nil)
	resultChan := make(chan frameTestResult, 1)
	errChan := make(chan error, 1)

	receiver.SetFrameHandler(func(kind ld19.FrameKind, frame []byte) {
		if frameTestMeasurement && kind != ld19.FrameMeasurement {
			return
		}
		select {
		case resultChan <- frameTestResult{kind: kind, frame: append([]byte(nil), frame...)}:
		default:
		}
	})

	go func() {
		buf := make([]byte, ld19.MaxFrameSize)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			receiver.Write(buf[:n])
			if len(resultChan) > 0 {
				return
			}
		}
	}()

	select {
	case result := <-resultChan:
		snap := receiver.Statistics().Snapshot()
		if snap.SkippedBytes > 0 {
			fmt.Printf("(skipped %d bytes before sync)\n", snap.SkippedBytes)
		}
		if snap.CRCErrors > 0 {
			fmt.Printf("(%d frames failed CRC)\n", snap.CRCErrors)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Kind: %s (0x%02X)\n", result.kind, result.kind.Marker())
		fmt.Printf("  Length: %d bytes\n", len(result.frame))
		fmt.Printf("  CRC: 0x%02X\n", result.frame[len(result.frame)-1])
		if result.kind == ld19.FrameMeasurement {
			if rec, err := ld19.DecodeMeasurement(result.frame); err == nil {
				fmt.Printf("  Speed: %.1f RPM\n", rec.RPM())
				fmt.Printf("  Angle: %.2f° -> %.2f°\n", rec.StartAngleDegrees(), rec.EndAngleDegrees())
			}
		}
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
