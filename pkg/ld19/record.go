// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Point is one distance/intensity sample within a measurement frame
type Point struct {
	Distance  uint16 // millimeters, 0 means no return
	Intensity uint8
}

// MeasurementRecord is a decoded measurement frame
type MeasurementRecord struct {
	Header     uint8
	VerLen     uint8
	Speed      uint16 // 0.01 degrees per second
	StartAngle uint16 // 0.01 degrees
	Points     [PointsPerFrame]Point
	EndAngle   uint16 // 0.01 degrees
	Timestamp  uint16 // milliseconds, wraps
	CRC        uint8

	// ReceivedAt is the host time the frame completed; not part of the wire format
	ReceivedAt time.Time
}

// DecodeError describes a buffer that cannot be assembled into a record
type DecodeError struct {
	Field string
	Got   int
	Want  int
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Field == "length" {
		return fmt.Sprintf("invalid length: got %d bytes, want %d", e.Got, e.Want)
	}
	return fmt.Sprintf("invalid %s: got 0x%02X, want 0x%02X", e.Field, e.Got, e.Want)
}

// DecodeMeasurement extracts a MeasurementRecord from a complete, checksum-valid
// measurement frame. The checksum itself is not re-verified.
func DecodeMeasurement(buf []byte) (MeasurementRecord, error) {
	var rec MeasurementRecord

	if len(buf) != MeasurementFrameLen {
		return rec, &DecodeError{Field: "length", Got: len(buf), Want: MeasurementFrameLen}
	}
	if buf[offsetHeader] != HeaderByte {
		return rec, &DecodeError{Field: "header", Got: int(buf[offsetHeader]), Want: HeaderByte}
	}
	if buf[offsetMarker] != MarkerMeasurement {
		return rec, &DecodeError{Field: "marker", Got: int(buf[offsetMarker]), Want: MarkerMeasurement}
	}

	rec.Header = buf[offsetHeader]
	rec.VerLen = buf[offsetMarker]
	rec.Speed = binary.LittleEndian.Uint16(buf[offsetSpeed:])
	rec.StartAngle = binary.LittleEndian.Uint16(buf[offsetStartAngle:])

	offset := measurementPointStart
	for i := range rec.Points {
		rec.Points[i].Distance = binary.LittleEndian.Uint16(buf[offset:])
		rec.Points[i].Intensity = buf[offset+2]
		offset += PointSize
	}

	rec.EndAngle = binary.LittleEndian.Uint16(buf[offsetEndAngle:])
	rec.Timestamp = binary.LittleEndian.Uint16(buf[offsetTimestamp:])
	rec.CRC = buf[offsetCRC]

	return rec, nil
}

// SpeedDegrees returns the rotation speed in degrees per second
func (r MeasurementRecord) SpeedDegrees() float64 {
	return float64(r.Speed) / 100.0
}

// RPM returns the rotation speed in revolutions per minute
func (r MeasurementRecord) RPM() float64 {
	return r.SpeedDegrees() * 60.0 / 360.0
}

// StartAngleDegrees returns the angle of the first point in degrees
func (r MeasurementRecord) StartAngleDegrees() float64 {
	return float64(r.StartAngle) / 100.0
}

// EndAngleDegrees returns the angle of the last point in degrees
func (r MeasurementRecord) EndAngleDegrees() float64 {
	return float64(r.EndAngle) / 100.0
}

// AngularSpan returns the angle covered by the frame in degrees. The sensor
// crosses 0° mid-frame once per rotation, so the span wraps at 360°.
func (r MeasurementRecord) AngularSpan() float64 {
	span := int(r.EndAngle) - int(r.StartAngle)
	if span < 0 {
		span += 36000
	}
	return float64(span) / 100.0
}

// PointAngle returns the interpolated angle of point i in degrees, in [0, 360)
func (r MeasurementRecord) PointAngle(i int) float64 {
	step := r.AngularSpan() / float64(PointsPerFrame-1)
	angle := r.StartAngleDegrees() + step*float64(i)
	for angle >= 360.0 {
		angle -= 360.0
	}
	return angle
}

// Valid returns the number of points with a non-zero distance
func (r MeasurementRecord) Valid() int {
	n := 0
	for _, p := range r.Points {
		if p.Distance != 0 {
			n++
		}
	}
	return n
}
