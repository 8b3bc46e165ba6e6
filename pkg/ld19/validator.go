// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import "fmt"

// TimestampWrap is the period of the sensor's millisecond timestamp
const TimestampWrap = 30000

// AnomalyType represents different kinds of suspicious measurement records.
// An anomalous record still passed its checksum.
type AnomalyType int

const (
	AnomalyStalled AnomalyType = iota
	AnomalyAngleOutOfRange
	AnomalySpanTooWide
	AnomalyFrameGap
	AnomalyTimestampJump
	AnomalyNoReturns
)

// String returns the human-readable name of the anomaly type
func (a AnomalyType) String() string {
	switch a {
	case AnomalyStalled:
		return "STALLED"
	case AnomalyAngleOutOfRange:
		return "ANGLE_OUT_OF_RANGE"
	case AnomalySpanTooWide:
		return "SPAN_TOO_WIDE"
	case AnomalyFrameGap:
		return "FRAME_GAP"
	case AnomalyTimestampJump:
		return "TIMESTAMP_JUMP"
	case AnomalyNoReturns:
		return "NO_RETURNS"
	default:
		return "UNKNOWN"
	}
}

// Anomaly describes one problem found in a record
type Anomaly struct {
	Type    AnomalyType
	Message string
}

// Error implements the error interface
func (a Anomaly) Error() string {
	return a.Message
}

// RecordValidator checks records for values a healthy sensor would not
// produce, comparing each record with the one before it
type RecordValidator struct {
	MaxSpan         float64 // degrees covered by one frame
	MaxFrameGap     float64 // degrees between consecutive frames
	MaxTimestampGap int     // ms between consecutive frames

	prev    MeasurementRecord
	hasPrev bool
}

// NewRecordValidator creates a validator with default limits
func NewRecordValidator() *RecordValidator {
	return &RecordValidator{
		MaxSpan:         45,
		MaxFrameGap:     10,
		MaxTimestampGap: 100,
	}
}

// Reset forgets the previous record
func (v *RecordValidator) Reset() {
	v.hasPrev = false
}

// Validate returns the anomalies found in rec (empty if rec looks sane)
func (v *RecordValidator) Validate(rec MeasurementRecord) []Anomaly {
	anomalies := []Anomaly{}

	if rec.Speed == 0 {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyStalled,
			Message: "Rotation speed is zero",
		})
	}

	angleOK := true
	if rec.StartAngle >= 36000 || rec.EndAngle >= 36000 {
		angleOK = false
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyAngleOutOfRange,
			Message: fmt.Sprintf("Angle out of range: start=%.2f° end=%.2f°", rec.StartAngleDegrees(), rec.EndAngleDegrees()),
		})
	}

	if angleOK && rec.AngularSpan() > v.MaxSpan {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalySpanTooWide,
			Message: fmt.Sprintf("Frame spans %.2f° (max %.0f°)", rec.AngularSpan(), v.MaxSpan),
		})
	}

	if rec.Valid() == 0 {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyNoReturns,
			Message: "No point returned a distance",
		})
	}

	if v.hasPrev {
		if angleOK && v.prev.EndAngle < 36000 {
			gap := int(rec.StartAngle) - int(v.prev.EndAngle)
			if gap < 0 {
				gap += 36000
			}
			if float64(gap)/100.0 > v.MaxFrameGap {
				anomalies = append(anomalies, Anomaly{
					Type:    AnomalyFrameGap,
					Message: fmt.Sprintf("Gap of %.2f° after previous frame (missing frames?)", float64(gap)/100.0),
				})
			}
		}

		delta := TimestampDelta(v.prev.Timestamp, rec.Timestamp)
		if delta > v.MaxTimestampGap {
			anomalies = append(anomalies, Anomaly{
				Type:    AnomalyTimestampJump,
				Message: fmt.Sprintf("Timestamp advanced %d ms (max %d)", delta, v.MaxTimestampGap),
			})
		}
	}

	v.prev = rec
	v.hasPrev = true
	return anomalies
}

// TimestampDelta returns the milliseconds from prev to next, accounting for
// the timestamp wrapping at TimestampWrap. Values at or above TimestampWrap
// are outside the sensor's range; when either is, the delta is taken modulo
// the full 16-bit range so it is never negative.
func TimestampDelta(prev, next uint16) int {
	modulus := TimestampWrap
	if prev >= TimestampWrap || next >= TimestampWrap {
		modulus = 1 << 16
	}
	delta := int(next) - int(prev)
	if delta < 0 {
		delta += modulus
	}
	return delta
}
