// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

var (
	rawLogCompact bool
	rawLogErrors  bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded frames in human-readable format",
	Long: `Continuously decode and display LD19 frames as they arrive.

Measurement frames are shown with speed, angles and all twelve points.
Health and manufacturer info frames are shown as hex dumps of their payload.
Use --compact for one summary line per measurement frame.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogCompact, "compact", false, "One line per measurement frame")
	rawLogCmd.Flags().BoolVar(&rawLogErrors, "errors", true, "Show framing and CRC errors")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("ldscope - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	receiver := ld19.NewReceiver(nil)
	receiver.SetFrameHandler(func(kind ld19.FrameKind, frame []byte) {
		if kind == ld19.FrameMeasurement {
			return
		}
		fmt.Print(ld19.FormatFrame(kind, frame))
	})
	receiver.Publisher().RegisterHandler(func(rec ld19.MeasurementRecord) {
		if rawLogCompact {
			fmt.Println(ld19.FormatRecordLine(rec))
			return
		}
		fmt.Print(ld19.FormatRecord(rec))
	})

	return pumpConnection(cmd.Context(), conn, receiver, func(err error) {
		if rawLogErrors {
			fmt.Printf("[ERROR] %v\n", err)
		}
	})
}

// pumpConnection reads conn until it closes or ctx is done, feeding every
// byte to receiver and reporting pipeline errors to onError
func pumpConnection(ctx context.Context, conn io.Reader, receiver *ld19.Receiver, onError func(error)) error {
	buf := make([]byte, ld19.MaxFrameSize)

	for {
		n, err := conn.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		for i := 0; i < n; i++ {
			if _, decodeErr := receiver.HandleByte(buf[i]); decodeErr != nil && onError != nil {
				onError(decodeErr)
			}
		}
		if err == nil {
			continue
		}

		// A closed WebSocket or an exhausted capture file ends the stream
		if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
			log.Printf("Connection closed")
			return nil
		}
		log.Printf("Read error: %v", err)
	}
}
