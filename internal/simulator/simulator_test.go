// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

func newSimulator(t *testing.T, mutate func(*Config)) *Simulator {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	sim, err := New(cfg)
	require.NoError(t, err)
	return sim
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rpm", func(c *Config) { c.RPM = 0 }},
		{"speed overflow", func(c *Config) { c.RPM = 200 }},
		{"negative sample rate", func(c *Config) { c.SampleRate = -1 }},
		{"no room", func(c *Config) { c.RoomWidth = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestDistance_RoomGeometry(t *testing.T) {
	sim := newSimulator(t, nil)

	assert.Equal(t, uint16(3000), sim.Distance(0))
	assert.Equal(t, uint16(2000), sim.Distance(90))
	assert.Equal(t, uint16(3000), sim.Distance(180))
	assert.Equal(t, uint16(2000), sim.Distance(270))
	assert.Equal(t, uint16(2828), sim.Distance(45))
}

func TestDistance_BeyondRange(t *testing.T) {
	sim := newSimulator(t, func(c *Config) {
		c.RoomWidth = 30000
		c.RoomDepth = 30000
	})
	assert.Equal(t, uint16(0), sim.Distance(0), "walls past the sensor range return nothing")
}

func TestNextRecord_Fields(t *testing.T) {
	sim := newSimulator(t, nil)

	first := sim.NextRecord()
	second := sim.NextRecord()

	assert.Equal(t, uint16(36000), first.Speed)
	assert.InDelta(t, 60.0, first.RPM(), 1e-9)
	assert.Equal(t, uint16(0), first.StartAngle)
	assert.Equal(t, uint16(88), first.EndAngle)
	assert.Equal(t, uint16(96), second.StartAngle)
	assert.Equal(t, uint16(2), second.Timestamp)
	assert.Equal(t, 12, first.Valid())
}

func TestStream_DecodesThroughReceiver(t *testing.T) {
	sim := newSimulator(t, nil)

	var buf bytes.Buffer
	require.NoError(t, sim.WriteFrames(&buf, 1000))

	r := ld19.NewReceiver(nil)
	_, err := buf.WriteTo(r)
	require.NoError(t, err)

	snap := r.Statistics().Snapshot()
	assert.Equal(t, uint64(991), snap.MeasurementFrames)
	assert.Equal(t, uint64(9), snap.HealthFrames)
	assert.Equal(t, uint64(0), snap.Errors())
	assert.Equal(t, uint64(0), snap.SkippedBytes)
}

func TestStream_RotationsComplete(t *testing.T) {
	sim := newSimulator(t, func(c *Config) { c.HealthEvery = 0 })

	var rotations []ld19.Rotation
	var assembler ld19.RotationAssembler
	for i := 0; i < 1200; i++ {
		if rot, done := assembler.Add(sim.NextRecord()); done {
			rotations = append(rotations, rot)
		}
	}

	require.GreaterOrEqual(t, len(rotations), 2)
	// 60 RPM at 4500 points/s is 375 frames per rotation
	for _, rot := range rotations[1:] {
		assert.InDelta(t, 375, len(rot.Records), 1)
		assert.InDelta(t, 60.0, rot.RPM(), 1e-9)
	}
}

func TestTimestampWraps(t *testing.T) {
	// 100 ms per frame wraps the timestamp every 300 frames
	sim := newSimulator(t, func(c *Config) {
		c.SampleRate = 120
		c.RPM = 1
	})

	wraps := 0
	prev := sim.NextRecord().Timestamp
	for i := 0; i < 400; i++ {
		ts := sim.NextRecord().Timestamp
		assert.Less(t, ts, uint16(30000))
		if ts < prev {
			wraps++
		}
		prev = ts
	}
	assert.Equal(t, 1, wraps)
}

func TestRun_StopsOnCancel(t *testing.T) {
	sim := newSimulator(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	require.NoError(t, sim.Run(ctx, &buf))
	assert.Greater(t, buf.Len(), 0)
}
