// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ldscope/internal/scandb"
	"github.com/Thermoquad/ldscope/pkg/ld19"
)

var (
	recordRawPath  string
	recordCBORPath string
	recordDB       bool
	recordNotes    string
	recordCount    int
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Capture the sensor stream to files or a database",
	Long: `Capture the sensor stream until Ctrl+C, --count records or --duration.

Outputs (any combination):
  --raw FILE    every byte as received, for later replay
  --cbor FILE   validated measurement records as a CBOR sequence
  --db          validated records into the SQLite scan database
                (path from config storage.db_path or LDSCOPE_DB)

Each --db capture is a new session; list sessions with 'replay --sessions'.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVar(&recordRawPath, "raw", "", "Write raw bytes to file")
	recordCmd.Flags().StringVar(&recordCBORPath, "cbor", "", "Write records as a CBOR sequence to file")
	recordCmd.Flags().BoolVar(&recordDB, "db", false, "Store records in the scan database")
	recordCmd.Flags().StringVar(&recordNotes, "notes", "", "Notes stored with the database session")
	recordCmd.Flags().IntVar(&recordCount, "count", 0, "Stop after this many records (0 = unlimited)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 = unlimited)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordRawPath == "" && recordCBORPath == "" && !recordDB {
		return fmt.Errorf("nothing to record: use --raw, --cbor and/or --db")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if recordDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}
	ctx, finish := context.WithCancel(ctx)
	defer finish()

	var source io.Reader = conn
	if recordRawPath != "" {
		rawFile, err := os.Create(recordRawPath)
		if err != nil {
			return fmt.Errorf("failed to create raw capture: %w", err)
		}
		defer rawFile.Close()
		source = io.TeeReader(conn, rawFile)
	}

	receiver := ld19.NewReceiver(nil)
	var handlers []ld19.RecordHandler

	if recordCBORPath != "" {
		cborFile, err := os.Create(recordCBORPath)
		if err != nil {
			return fmt.Errorf("failed to create CBOR capture: %w", err)
		}
		defer cborFile.Close()
		writer := ld19.NewRecordWriter(cborFile)
		handlers = append(handlers, func(rec ld19.MeasurementRecord) {
			if err := writer.Write(rec); err != nil {
				log.Printf("CBOR write error: %v", err)
			}
		})
	}

	var sessionID string
	var dbWriter *scandb.Writer
	if recordDB {
		db, err := scandb.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		sessionID, err = db.StartSession(connInfo, recordNotes)
		if err != nil {
			return err
		}
		dbWriter = scandb.NewWriter(db, sessionID, scandb.DefaultWriterQueue)
		defer func() {
			dbWriter.Close()
			if err := db.EndSession(sessionID); err != nil {
				log.Printf("Failed to close session: %v", err)
			}
		}()

		handlers = append(handlers, dbWriter.Handler())
	}

	recorded := 0
	receiver.Publisher().RegisterHandler(func(rec ld19.MeasurementRecord) {
		if recordCount > 0 && recorded >= recordCount {
			return
		}
		for _, h := range handlers {
			h(rec)
		}
		recorded++
		if recordCount > 0 && recorded >= recordCount {
			finish()
		}
	})

	fmt.Printf("ldscope - Record\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if recordRawPath != "" {
		fmt.Printf("Raw: %s\n", recordRawPath)
	}
	if recordCBORPath != "" {
		fmt.Printf("CBOR: %s\n", recordCBORPath)
	}
	if recordDB {
		fmt.Printf("Database: %s (session %s)\n", cfg.Storage.DBPath, sessionID)
	}
	fmt.Printf("Press Ctrl+C to stop\n\n")

	done := make(chan error, 1)
	go func() {
		done <- pumpConnection(ctx, source, receiver, nil)
	}()

	select {
	case <-ctx.Done():
		// Unblock the pending read
		conn.Close()
		<-done
	case err := <-done:
		if err != nil {
			return err
		}
	}

	fmt.Printf("Recorded %d records\n", recorded)
	if dbWriter != nil {
		// Flush queued inserts before reporting
		dbWriter.Close()
		c := dbWriter.Counts()
		fmt.Printf("Database: %d stored, %d failed, %d dropped\n", c.Written, c.Failed, c.Dropped)
	}
	fmt.Println()
	fmt.Print(receiver.Statistics().Snapshot().String())
	return nil
}
