// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator produces a synthetic LD19 byte stream: a sensor spinning
// in the middle of a rectangular room, with periodic health frames.
package simulator

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

// Sensor constants
const (
	DefaultSampleRate = 4500.0 // points per second
	MaxRange          = 12000  // mm
)

// Config describes the simulated sensor and its surroundings
type Config struct {
	RPM         float64
	HealthEvery int     // measurement frames between health frames, 0 disables
	SampleRate  float64 // points per second, 0 uses DefaultSampleRate
	RoomWidth   float64 // mm, along 0°
	RoomDepth   float64 // mm, along 90°
}

// DefaultConfig returns a 1 Hz sensor in a 6 m x 4 m room
func DefaultConfig() Config {
	return Config{
		RPM:         60,
		HealthEvery: 100,
		SampleRate:  DefaultSampleRate,
		RoomWidth:   6000,
		RoomDepth:   4000,
	}
}

// Simulator generates frames one at a time
type Simulator struct {
	cfg         Config
	angle       float64 // degrees, start of next frame
	timestamp   float64 // ms
	sinceHealth int
}

// New creates a simulator starting at 0°
func New(cfg Config) (*Simulator, error) {
	if cfg.RPM <= 0 {
		return nil, fmt.Errorf("invalid RPM %.1f", cfg.RPM)
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.SampleRate < 0 || cfg.RoomWidth <= 0 || cfg.RoomDepth <= 0 {
		return nil, fmt.Errorf("invalid simulator geometry")
	}
	// Speed must fit the 16-bit centidegree field
	if math.Round(cfg.RPM*6*100) > math.MaxUint16 {
		return nil, fmt.Errorf("RPM %.1f exceeds the speed field range", cfg.RPM)
	}
	return &Simulator{cfg: cfg}, nil
}

// FrameInterval returns the time the sensor takes to sample one frame
func (s *Simulator) FrameInterval() time.Duration {
	return time.Duration(float64(ld19.PointsPerFrame) / s.cfg.SampleRate * float64(time.Second))
}

// Distance returns the room wall distance seen at angle degrees
func (s *Simulator) Distance(angle float64) uint16 {
	rad := angle * math.Pi / 180
	halfW, halfD := s.cfg.RoomWidth/2, s.cfg.RoomDepth/2

	d := math.Inf(1)
	if c := math.Abs(math.Cos(rad)); c > 1e-9 {
		d = halfW / c
	}
	if sn := math.Abs(math.Sin(rad)); sn > 1e-9 {
		d = math.Min(d, halfD/sn)
	}
	if d > MaxRange {
		return 0
	}
	return uint16(math.Round(d))
}

// NextRecord returns the next measurement record
func (s *Simulator) NextRecord() ld19.MeasurementRecord {
	degPerSec := s.cfg.RPM * 6
	step := degPerSec / s.cfg.SampleRate

	rec := ld19.MeasurementRecord{
		Header:     ld19.HeaderByte,
		VerLen:     ld19.MarkerMeasurement,
		Speed:      uint16(math.Round(degPerSec * 100)),
		StartAngle: centidegrees(s.angle),
		EndAngle:   centidegrees(s.angle + step*float64(ld19.PointsPerFrame-1)),
		Timestamp:  uint16(s.timestamp),
	}
	for i := range rec.Points {
		d := s.Distance(s.angle + step*float64(i))
		var intensity uint8
		if d != 0 {
			// Closer walls return more light
			intensity = uint8(255 - uint(d)*200/MaxRange)
		}
		rec.Points[i] = ld19.Point{Distance: d, Intensity: intensity}
	}

	s.angle = math.Mod(s.angle+step*float64(ld19.PointsPerFrame), 360)
	s.timestamp = math.Mod(s.timestamp+float64(ld19.PointsPerFrame)/s.cfg.SampleRate*1000, ld19.TimestampWrap)
	return rec
}

// NextFrame returns the next encoded frame, which is a health frame once
// every HealthEvery measurement frames
func (s *Simulator) NextFrame() []byte {
	if s.cfg.HealthEvery > 0 && s.sinceHealth >= s.cfg.HealthEvery {
		s.sinceHealth = 0
		return ld19.MustEncodeFrame(ld19.FrameHealth, make([]byte, ld19.HealthFrameLen-3))
	}
	s.sinceHealth++
	rec := s.NextRecord()
	return ld19.EncodeMeasurement(rec)
}

// WriteFrames writes n frames to w without pacing
func (s *Simulator) WriteFrames(w io.Writer, n int) error {
	for i := 0; i < n; i++ {
		if _, err := w.Write(s.NextFrame()); err != nil {
			return fmt.Errorf("write error: %w", err)
		}
	}
	return nil
}

// Run writes frames to w at the sensor's real rate until ctx is done
func (s *Simulator) Run(ctx context.Context, w io.Writer) error {
	ticker := time.NewTicker(s.FrameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Write(s.NextFrame()); err != nil {
				return fmt.Errorf("write error: %w", err)
			}
		}
	}
}

func centidegrees(angle float64) uint16 {
	return uint16(int(math.Round(math.Mod(angle, 360)*100)) % 36000)
}
