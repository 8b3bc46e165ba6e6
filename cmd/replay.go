// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ldscope/internal/scandb"
	"github.com/Thermoquad/ldscope/pkg/ld19"
)

var (
	replayCBOR      bool
	replayShow      bool
	replayRotations bool
	replayRealtime  bool
	replaySessions  bool
	replaySession   string
	replayLimit     int
)

var replayCmd = &cobra.Command{
	Use:   "replay [FILE]",
	Short: "Decode a capture file or stored session",
	Long: `Decode a capture made by 'record' and report what it contains.

Sources:
  replay capture.bin            raw bytes, decoded through the full pipeline
  replay --cbor capture.cbor    CBOR record sequence
  replay --sessions             list sessions in the scan database
  replay --session ID           records of one database session

With --rotations, records are grouped into full sensor revolutions and one
summary line is printed per revolution.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayCBOR, "cbor", false, "FILE is a CBOR record sequence")
	replayCmd.Flags().BoolVar(&replayShow, "show", false, "Print every record")
	replayCmd.Flags().BoolVar(&replayRotations, "rotations", false, "Print one line per sensor revolution")
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Pace raw replay at the configured baud rate")
	replayCmd.Flags().BoolVar(&replaySessions, "sessions", false, "List database sessions")
	replayCmd.Flags().StringVar(&replaySession, "session", "", "Replay a database session")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 0, "Maximum records from a database session (0 = all)")
}

// recordPrinter prints records and rotations according to the replay flags
type recordPrinter struct {
	out        io.Writer
	show       bool
	byRotation bool

	assembler ld19.RotationAssembler
	records   int
	rotations int
}

func newRecordPrinter(out io.Writer) *recordPrinter {
	return &recordPrinter{out: out, show: replayShow, byRotation: replayRotations}
}

func (p *recordPrinter) handle(rec ld19.MeasurementRecord) {
	p.records++
	if p.show {
		fmt.Fprintln(p.out, ld19.FormatRecordLine(rec))
	}
	if !p.byRotation {
		return
	}
	if rot, done := p.assembler.Add(rec); done {
		p.rotations++
		p.printRotation(rot, "")
	}
}

// flush prints the rotation still being assembled at end of input
func (p *recordPrinter) flush() {
	if !p.byRotation {
		return
	}
	if rot, ok := p.assembler.Flush(); ok {
		p.rotations++
		p.printRotation(rot, " (partial)")
	}
}

func (p *recordPrinter) printRotation(rot ld19.Rotation, note string) {
	pts := rot.Points()
	raw := make([]ld19.Point, len(pts))
	for i, pt := range pts {
		raw[i] = ld19.Point{Distance: pt.Distance, Intensity: pt.Intensity}
	}
	s := ld19.SummarizePoints(raw)
	fmt.Fprintf(p.out, "Rotation %4d: %4d frames %5d points %.1f RPM valid=%d mean=%.0f mm min=%.0f mm max=%.0f mm%s\n",
		p.rotations, len(rot.Records), len(pts), rot.RPM(), s.Valid, s.MeanDistance, s.MinDistance, s.MaxDistance, note)
}

func (p *recordPrinter) summary() {
	fmt.Fprintf(p.out, "\n%d records, %d rotations\n", p.records, p.rotations)
}

func runReplay(cmd *cobra.Command, args []string) error {
	if replaySessions {
		return listSessions()
	}
	if replaySession != "" {
		return replayDBSession(replaySession, newRecordPrinter(cmd.OutOrStdout()))
	}
	if len(args) != 1 {
		return fmt.Errorf("a capture file is required")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	printer := newRecordPrinter(cmd.OutOrStdout())
	if replayCBOR {
		return replayCBORFile(f, printer)
	}
	return replayRawFile(f, printer)
}

func replayRawFile(f io.Reader, printer *recordPrinter) error {
	receiver := ld19.NewReceiver(nil)
	receiver.Publisher().RegisterHandler(printer.handle)
	receiver.SetFrameHandler(func(kind ld19.FrameKind, frame []byte) {
		if kind != ld19.FrameMeasurement && printer.show {
			fmt.Fprint(printer.out, ld19.FormatFrame(kind, frame))
		}
	})

	if replayRealtime {
		// 10 bits per byte on an 8N1 line
		perChunk := time.Duration(float64(ld19.MaxFrameSize*10) / float64(baudRate) * float64(time.Second))
		buf := make([]byte, ld19.MaxFrameSize)
		for {
			n, err := f.Read(buf)
			receiver.Write(buf[:n])
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("read error: %w", err)
			}
			time.Sleep(perChunk)
		}
	} else if _, err := io.Copy(receiver, f); err != nil {
		return fmt.Errorf("read error: %w", err)
	}
	printer.flush()

	fmt.Fprintln(printer.out)
	fmt.Fprint(printer.out, receiver.Statistics().Snapshot().String())
	return nil
}

func replayCBORFile(f io.Reader, printer *recordPrinter) error {
	reader := ld19.NewRecordReader(f)

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", printer.records+1, err)
		}
		printer.handle(rec)
	}
	printer.flush()

	printer.summary()
	return nil
}

func listSessions() error {
	db, err := scandb.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Printf("No sessions in %s\n", cfg.Storage.DBPath)
		return nil
	}

	for _, s := range sessions {
		ended := "open"
		if !s.EndedAt.IsZero() {
			ended = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("%s  %s  %6d scans  %-8s  %s", s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.ScanCount, ended, s.Source)
		if s.Notes != "" {
			fmt.Printf("  (%s)", s.Notes)
		}
		fmt.Println()
	}
	return nil
}

func replayDBSession(sessionID string, printer *recordPrinter) error {
	db, err := scandb.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.Scans(sessionID, replayLimit)
	if err != nil {
		return err
	}

	for _, rec := range records {
		printer.handle(rec)
	}
	printer.flush()

	printer.summary()
	return nil
}
