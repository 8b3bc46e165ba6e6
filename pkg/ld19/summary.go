// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds distance and intensity statistics over the points of a record
// that returned a distance
type Summary struct {
	Valid          int
	MinDistance    float64 // mm
	MaxDistance    float64 // mm
	MeanDistance   float64 // mm
	StdDevDistance float64 // mm
	MeanIntensity  float64
}

// Summarize computes statistics over the non-zero points of rec
func Summarize(rec MeasurementRecord) Summary {
	return SummarizePoints(rec.Points[:])
}

// SummarizePoints computes statistics over the non-zero points in pts
func SummarizePoints(pts []Point) Summary {
	distances := make([]float64, 0, len(pts))
	intensities := make([]float64, 0, len(pts))
	for _, p := range pts {
		if p.Distance == 0 {
			continue
		}
		distances = append(distances, float64(p.Distance))
		intensities = append(intensities, float64(p.Intensity))
	}

	s := Summary{Valid: len(distances)}
	if s.Valid == 0 {
		return s
	}

	s.MinDistance = floats.Min(distances)
	s.MaxDistance = floats.Max(distances)
	if s.Valid > 1 {
		s.MeanDistance, s.StdDevDistance = stat.MeanStdDev(distances, nil)
	} else {
		s.MeanDistance = distances[0]
	}
	s.MeanIntensity = stat.Mean(intensities, nil)

	return s
}
