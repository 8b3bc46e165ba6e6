// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"encoding/json"
	"time"
)

// JSONPoint is a point in engineering units
type JSONPoint struct {
	Angle     float64 `json:"angle"`    // degrees
	Distance  uint16  `json:"distance"` // mm
	Intensity uint8   `json:"intensity"`
}

// JSONRecord is the JSON form of a measurement record, with angles and
// speed converted to degrees
type JSONRecord struct {
	Speed       float64     `json:"speed"` // degrees per second
	RPM         float64     `json:"rpm"`
	StartAngle  float64     `json:"start_angle"`
	EndAngle    float64     `json:"end_angle"`
	TimestampMs uint16      `json:"timestamp_ms"`
	Points      []JSONPoint `json:"points"`
	ReceivedAt  *time.Time  `json:"received_at,omitempty"`
}

// ToJSONRecord converts a record to its JSON form
func ToJSONRecord(rec MeasurementRecord) JSONRecord {
	j := JSONRecord{
		Speed:       rec.SpeedDegrees(),
		RPM:         rec.RPM(),
		StartAngle:  rec.StartAngleDegrees(),
		EndAngle:    rec.EndAngleDegrees(),
		TimestampMs: rec.Timestamp,
		Points:      make([]JSONPoint, PointsPerFrame),
	}
	for i, p := range rec.Points {
		j.Points[i] = JSONPoint{Angle: rec.PointAngle(i), Distance: p.Distance, Intensity: p.Intensity}
	}
	if !rec.ReceivedAt.IsZero() {
		t := rec.ReceivedAt
		j.ReceivedAt = &t
	}
	return j
}

// MarshalRecordJSON encodes a record as JSON
func MarshalRecordJSON(rec MeasurementRecord) ([]byte, error) {
	return json.Marshal(ToJSONRecord(rec))
}
