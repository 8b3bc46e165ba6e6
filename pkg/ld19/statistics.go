// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Statistics tracks frame statistics and error counts.
//
// Counters are updated by the receiving goroutine and may be read
// concurrently through Snapshot.
type Statistics struct {
	startTime atomic.Int64 // unix nanoseconds

	bytes              atomic.Uint64
	skippedBytes       atomic.Uint64
	measurementFrames  atomic.Uint64
	healthFrames       atomic.Uint64
	manufacturerFrames atomic.Uint64
	crcErrors          atomic.Uint64
	framingErrors      atomic.Uint64
	decodeErrors       atomic.Uint64
	published          atomic.Uint64
	anomalies          atomic.Uint64
}

// Snapshot is a point-in-time copy of the statistics counters
type Snapshot struct {
	StartTime time.Time
	Elapsed   time.Duration

	// Counters
	Bytes              uint64
	SkippedBytes       uint64
	MeasurementFrames  uint64
	HealthFrames       uint64
	ManufacturerFrames uint64
	CRCErrors          uint64
	FramingErrors      uint64
	DecodeErrors       uint64
	Published          uint64
	Anomalies          uint64 // records flagged by a RecordValidator

	// Rates (calculated)
	FrameRate float64 // valid frames/sec
	ErrorRate float64 // errors/sec
	ByteRate  float64 // bytes/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.startTime.Store(time.Now().UnixNano())
	return s
}

func (s *Statistics) countFrame(kind FrameKind) {
	switch kind {
	case FrameMeasurement:
		s.measurementFrames.Add(1)
	case FrameHealth:
		s.healthFrames.Add(1)
	case FrameManufacturerInfo:
		s.manufacturerFrames.Add(1)
	}
}

// Snapshot returns a consistent-enough copy of all counters with rates
func (s *Statistics) Snapshot() Snapshot {
	start := time.Unix(0, s.startTime.Load())
	snap := Snapshot{
		StartTime:          start,
		Elapsed:            time.Since(start),
		Bytes:              s.bytes.Load(),
		SkippedBytes:       s.skippedBytes.Load(),
		MeasurementFrames:  s.measurementFrames.Load(),
		HealthFrames:       s.healthFrames.Load(),
		ManufacturerFrames: s.manufacturerFrames.Load(),
		CRCErrors:          s.crcErrors.Load(),
		FramingErrors:      s.framingErrors.Load(),
		DecodeErrors:       s.decodeErrors.Load(),
		Published:          s.published.Load(),
		Anomalies:          s.anomalies.Load(),
	}
	snap.CalculateRates()
	return snap
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.startTime.Store(time.Now().UnixNano())
	s.bytes.Store(0)
	s.skippedBytes.Store(0)
	s.measurementFrames.Store(0)
	s.healthFrames.Store(0)
	s.manufacturerFrames.Store(0)
	s.crcErrors.Store(0)
	s.framingErrors.Store(0)
	s.decodeErrors.Store(0)
	s.published.Store(0)
	s.anomalies.Store(0)
}

// AddAnomalies counts anomalies found in published records
func (s *Statistics) AddAnomalies(n int) {
	if n > 0 {
		s.anomalies.Add(uint64(n))
	}
}

// ValidFrames returns the number of frames of any kind that passed the checksum
func (s Snapshot) ValidFrames() uint64 {
	return s.MeasurementFrames + s.HealthFrames + s.ManufacturerFrames
}

// TotalFrames returns valid frames plus frames dropped for any reason
func (s Snapshot) TotalFrames() uint64 {
	return s.ValidFrames() + s.Errors()
}

// Errors returns the number of dropped frames
func (s Snapshot) Errors() uint64 {
	return s.CRCErrors + s.FramingErrors + s.DecodeErrors
}

// CalculateRates calculates frame, error and byte rates
func (s *Snapshot) CalculateRates() {
	elapsed := s.Elapsed.Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.ValidFrames()) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
		s.ByteRate = float64(s.Bytes) / elapsed
	}
}

// String returns a formatted statistics summary
func (s Snapshot) String() string {
	total := s.TotalFrames()

	// Calculate percentages
	var validPercent, crcErrorPercent, framingErrorPercent float64
	if total > 0 {
		validPercent = float64(s.ValidFrames()) * 100.0 / float64(total)
		crcErrorPercent = float64(s.CRCErrors) * 100.0 / float64(total)
		framingErrorPercent = float64(s.FramingErrors) * 100.0 / float64(total)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", s.Elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", total)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames(), validPercent)
	result += fmt.Sprintf("  Measurement:      %5d\n", s.MeasurementFrames)
	if s.HealthFrames > 0 {
		result += fmt.Sprintf("  Health:           %5d\n", s.HealthFrames)
	}
	if s.ManufacturerFrames > 0 {
		result += fmt.Sprintf("  Manufacturer:     %5d\n", s.ManufacturerFrames)
	}

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcErrorPercent)
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", s.FramingErrors, framingErrorPercent)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
	}
	if s.SkippedBytes > 0 {
		result += fmt.Sprintf("Skipped Bytes:   %8d\n", s.SkippedBytes)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += fmt.Sprintf("Byte Rate:       %8.1f bytes/sec\n", s.ByteRate)
	result += "================================\n"

	return result
}
