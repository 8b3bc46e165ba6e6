// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze corrupt frames and anomalous scans",
	Long: `Track frame errors and anomalous measurement records with statistics.

This command checks every frame and detects:
  - CRC errors (frame dropped, nothing published)
  - Framing errors (unknown frame marker, overflow)
  - Anomalous records (stalled motor, angles out of range, missing frames,
    timestamp jumps, scans with no returns)
  - Statistics and trends (frame rate, error rate, skipped bytes)

By default, only errors are displayed. Use --show-all to display valid frames too.

Errors before the first valid frame are counted but not shown, since the
stream is joined at an arbitrary byte.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode("LDSCOPE - ERROR DETECTION", conn, connInfo, showAll)
	}
	return runTextMode(conn, connInfo)
}

// printFrameError prints a dropped frame in highlighted format
func printFrameError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mFRAME ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME DROPPED <<<\n\n")
}

// printAnomalies prints the anomalies found in a record
func printAnomalies(rec ld19.MeasurementRecord, anomalies []ld19.Anomaly) {
	timestamp := rec.ReceivedAt.Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %s %.2f° -> %.2f° ts=%d ms\n",
		timestamp, ld19.FrameMeasurement, rec.StartAngleDegrees(), rec.EndAngleDegrees(), rec.Timestamp)
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, a := range anomalies {
		fmt.Printf("  Issue %d: \033[1;33m%s\033[0m (%s)\n", i+1, a.Message, a.Type)
	}

	fmt.Printf("  Speed: %.1f RPM, valid points: %d/%d\n\n", rec.RPM(), rec.Valid(), ld19.PointsPerFrame)
}

// runTextMode runs error detection with plain text output
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("ldscope - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	receiver := ld19.NewReceiver(nil)
	stats := receiver.Statistics()
	validator := ld19.NewRecordValidator()

	// Errors are only reported once the stream is synchronized
	synchronized := false
	markSynchronized := func() {
		if synchronized {
			return
		}
		synchronized = true
		if skipped := stats.Snapshot().SkippedBytes; skipped > 0 {
			fmt.Printf("[SYNC] Synchronized after skipping %d bytes\n\n", skipped)
		} else {
			fmt.Printf("[SYNC] Synchronized\n\n")
		}
	}

	receiver.Publisher().RegisterHandler(func(rec ld19.MeasurementRecord) {
		markSynchronized()
		anomalies := validator.Validate(rec)
		stats.AddAnomalies(len(anomalies))
		if len(anomalies) > 0 {
			printAnomalies(rec, anomalies)
		} else if showAll {
			fmt.Println(ld19.FormatRecordLine(rec))
		}
	})
	receiver.SetFrameHandler(func(kind ld19.FrameKind, frame []byte) {
		markSynchronized()
		if kind != ld19.FrameMeasurement && showAll {
			fmt.Print(ld19.FormatFrame(kind, frame))
		}
	})

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads
	chunks := make(chan []byte, 10)
	go func() {
		buf := make([]byte, ld19.MaxFrameSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunks <- data
			}
			if errors.Is(err, ErrConnectionClosed) {
				close(chunks)
				return
			}
			if err != nil {
				log.Printf("Read error: %v", err)
			}
		}
	}()

	for {
		select {
		case data, ok := <-chunks:
			if !ok {
				fmt.Println()
				fmt.Print(stats.Snapshot().String())
				return nil
			}
			for _, b := range data {
				if _, err := receiver.HandleByte(b); err != nil && synchronized {
					printFrameError(err)
				}
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.Snapshot().String())
			fmt.Println()
		}
	}
}
