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
	stabilityDuration int
	stabilityMaxGap   int
)

var stabilityCmd = &cobra.Command{
	Use:   "stability",
	Short: "Test connection stability",
	Long: `Watch the connection for a fixed time and report whether the stream stayed
healthy.

Every byte is decoded; once per second a heartbeat line shows the running
frame and error counts. The test fails if the connection drops or no valid
frame arrives for longer than --max-gap seconds. Useful for debugging flaky
USB adapters and WebSocket bridges.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	RunE: runStability,
}

func init() {
	rootCmd.AddCommand(stabilityCmd)
	stabilityCmd.Flags().IntVar(&stabilityDuration, "duration", 30, "Test duration in seconds")
	stabilityCmd.Flags().IntVar(&stabilityMaxGap, "max-gap", 2, "Longest tolerated silence in seconds")
}

func runStability(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("ldscope - Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", stabilityDuration)

	receiver := ld19.NewReceiver(nil)
	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(stabilityDuration) * time.Second)
	maxGap := time.Duration(stabilityMaxGap) * time.Second
	lastFrame := start
	var lastValid uint64
	var longestGap time.Duration

	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	fmt.Printf("Listening for data...\n\n")

	result := "PASSED (connection stable)"
	failed := false

loop:
	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			receiver.Write(data)
			if valid := receiver.Statistics().Snapshot().ValidFrames(); valid != lastValid {
				lastValid = valid
				lastFrame = time.Now()
			}

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), err)
			result = "FAILED (connection error)"
			failed = true
			break loop

		case now := <-heartbeat.C:
			gap := now.Sub(lastFrame)
			if gap > longestGap {
				longestGap = gap
			}
			snap := receiver.Statistics().Snapshot()
			fmt.Printf("[%s] %d frames, %d errors, %d bytes (%.0fs remaining)\n",
				now.Format("15:04:05.000"), snap.ValidFrames(), snap.Errors(), snap.Bytes,
				time.Until(endTime).Seconds())
			if gap > maxGap {
				fmt.Printf("\n[%s] No valid frame for %v\n", now.Format("15:04:05.000"), gap.Round(time.Millisecond))
				result = "FAILED (stream stalled)"
				failed = true
				break loop
			}
		}
	}

	snap := receiver.Statistics().Snapshot()
	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Second))
	fmt.Printf("Valid frames: %d\n", snap.ValidFrames())
	fmt.Printf("Errors: %d (CRC %d, framing %d)\n", snap.Errors(), snap.CRCErrors, snap.FramingErrors)
	fmt.Printf("Bytes received: %d\n", snap.Bytes)
	fmt.Printf("Longest gap: %v\n", longestGap.Round(time.Millisecond))
	fmt.Printf("Result: %s\n", result)

	if failed {
		os.Exit(1)
	}
	return nil
}
