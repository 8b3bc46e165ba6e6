// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

// maxRotationRecords bounds a rotation when the start angle never wraps
// (stalled motor or a corrupt angle stream)
const maxRotationRecords = 1024

// AnglePoint is a point with its interpolated angle
type AnglePoint struct {
	Angle     float64 // degrees
	Distance  uint16  // mm
	Intensity uint8
}

// Rotation is one sensor revolution assembled from consecutive records
type Rotation struct {
	Records []MeasurementRecord
}

// Points returns every point of the rotation with its angle
func (r Rotation) Points() []AnglePoint {
	pts := make([]AnglePoint, 0, len(r.Records)*PointsPerFrame)
	for _, rec := range r.Records {
		for i, p := range rec.Points {
			pts = append(pts, AnglePoint{
				Angle:     rec.PointAngle(i),
				Distance:  p.Distance,
				Intensity: p.Intensity,
			})
		}
	}
	return pts
}

// RPM returns the mean rotation speed over the rotation's records
func (r Rotation) RPM() float64 {
	if len(r.Records) == 0 {
		return 0
	}
	var sum float64
	for _, rec := range r.Records {
		sum += rec.RPM()
	}
	return sum / float64(len(r.Records))
}

// RotationAssembler groups consecutive records into rotations. A rotation is
// complete when the start angle wraps past 0°.
type RotationAssembler struct {
	current   []MeasurementRecord
	lastStart uint16
}

// Add appends rec and returns the previous rotation when rec starts a new one
func (a *RotationAssembler) Add(rec MeasurementRecord) (Rotation, bool) {
	wrapped := len(a.current) > 0 && rec.StartAngle < a.lastStart
	full := len(a.current) >= maxRotationRecords
	a.lastStart = rec.StartAngle

	if !wrapped && !full {
		a.current = append(a.current, rec)
		return Rotation{}, false
	}

	done := Rotation{Records: a.current}
	a.current = []MeasurementRecord{rec}
	return done, true
}

// Flush returns the rotation in progress, which may be partial, and starts
// over. It returns false when no records are buffered.
func (a *RotationAssembler) Flush() (Rotation, bool) {
	if len(a.current) == 0 {
		return Rotation{}, false
	}
	rot := Rotation{Records: a.current}
	a.Reset()
	return rot, true
}

// Reset drops the rotation in progress
func (a *RotationAssembler) Reset() {
	a.current = nil
	a.lastStart = 0
}
