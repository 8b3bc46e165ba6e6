// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scandb persists LD19 measurement records to SQLite, grouped into
// capture sessions.
package scandb

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

// schema.sql defines the sessions, scans and points tables.
//
//go:embed schema.sql
var schemaSQL string

// Session is one capture run
type Session struct {
	ID        string
	Source    string
	Notes     string
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is open
	ScanCount int
}

// DB is a scan database
type DB struct {
	*sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{DB: db, now: time.Now}, nil
}

// StartSession creates a session and returns its ID
func (d *DB) StartSession(source, notes string) (string, error) {
	id := uuid.New().String()

	_, err := d.Exec(`INSERT INTO sessions (id, source, notes, started_at) VALUES (?, ?, ?, ?)`,
		id, source, notes, d.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession marks a session closed
func (d *DB) EndSession(sessionID string) error {
	res, err := d.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, d.now().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	return nil
}

// InsertRecord stores a record and its points in the session, returning the
// record's sequence number within the session (starting at 1)
func (d *DB) InsertRecord(sessionID string, rec ld19.MeasurementRecord) (int, error) {
	tx, err := d.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRow(`SELECT scan_count + 1 FROM sessions WHERE id = ?`, sessionID).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("unknown session %s", sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read session: %w", err)
	}

	var receivedAt sql.NullInt64
	if !rec.ReceivedAt.IsZero() {
		receivedAt = sql.NullInt64{Int64: rec.ReceivedAt.UnixNano(), Valid: true}
	}

	res, err := tx.Exec(`
		INSERT INTO scans (session_id, seq, speed, start_angle, end_angle, timestamp_ms, crc, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, rec.Speed, rec.StartAngle, rec.EndAngle, rec.Timestamp, rec.CRC, receivedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan: %w", err)
	}
	scanID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get scan ID: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO points (scan_id, idx, distance, intensity) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare point insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range rec.Points {
		if _, err := stmt.Exec(scanID, i, p.Distance, p.Intensity); err != nil {
			return 0, fmt.Errorf("failed to insert point %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(`UPDATE sessions SET scan_count = ? WHERE id = ?`, seq, sessionID); err != nil {
		return 0, fmt.Errorf("failed to update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan: %w", err)
	}
	return seq, nil
}

// Scans returns up to limit records of a session in capture order. A limit
// of 0 or less returns all of them.
func (d *DB) Scans(sessionID string, limit int) ([]ld19.MeasurementRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := d.Query(`
		SELECT id, speed, start_angle, end_angle, timestamp_ms, crc, received_at
		FROM scans WHERE session_id = ? ORDER BY seq LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}

	var ids []int64
	var records []ld19.MeasurementRecord
	for rows.Next() {
		var id int64
		var receivedAt sql.NullInt64
		rec := ld19.MeasurementRecord{Header: ld19.HeaderByte, VerLen: ld19.MarkerMeasurement}
		if err := rows.Scan(&id, &rec.Speed, &rec.StartAngle, &rec.EndAngle, &rec.Timestamp, &rec.CRC, &receivedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if receivedAt.Valid {
			rec.ReceivedAt = time.Unix(0, receivedAt.Int64)
		}
		ids = append(ids, id)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read scans: %w", err)
	}
	rows.Close()

	for i, id := range ids {
		if err := d.loadPoints(id, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (d *DB) loadPoints(scanID int64, rec *ld19.MeasurementRecord) error {
	rows, err := d.Query(`SELECT idx, distance, intensity FROM points WHERE scan_id = ?`, scanID)
	if err != nil {
		return fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var p ld19.Point
		if err := rows.Scan(&idx, &p.Distance, &p.Intensity); err != nil {
			return fmt.Errorf("failed to scan point: %w", err)
		}
		if idx < 0 || idx >= ld19.PointsPerFrame {
			return fmt.Errorf("scan %d has point index %d out of range", scanID, idx)
		}
		rec.Points[idx] = p
	}
	return rows.Err()
}

// Sessions returns all sessions, newest first
func (d *DB) Sessions() ([]Session, error) {
	rows, err := d.Query(`
		SELECT id, source, notes, started_at, ended_at, scan_count
		FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Source, &s.Notes, &started, &ended, &s.ScanCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartedAt = time.Unix(0, started)
		if ended.Valid {
			s.EndedAt = time.Unix(0, ended.Int64)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
