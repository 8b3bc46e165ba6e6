// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"fmt"
	"strings"
)

// FormatRecord formats a measurement record into a human-readable string
func FormatRecord(rec MeasurementRecord) string {
	timestamp := rec.ReceivedAt.Format("15:04:05.000")

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (0x%02X) speed=%.2f°/s (%.1f RPM) ts=%d ms crc=0x%02X\n",
		timestamp, FrameMeasurement, rec.VerLen, rec.SpeedDegrees(), rec.RPM(), rec.Timestamp, rec.CRC)
	fmt.Fprintf(&b, "  Angle: %.2f° -> %.2f° (span %.2f°)\n",
		rec.StartAngleDegrees(), rec.EndAngleDegrees(), rec.AngularSpan())

	for i, p := range rec.Points {
		if p.Distance == 0 {
			fmt.Fprintf(&b, "  [%2d] %7.2f°  no return\n", i, rec.PointAngle(i))
			continue
		}
		fmt.Fprintf(&b, "  [%2d] %7.2f°  %5d mm  intensity %3d\n", i, rec.PointAngle(i), p.Distance, p.Intensity)
	}

	return b.String()
}

// FormatRecordLine formats a measurement record as a single summary line
func FormatRecordLine(rec MeasurementRecord) string {
	s := Summarize(rec)
	return fmt.Sprintf("[%s] %s %.2f°->%.2f° %.1f RPM valid=%d/%d mean=%.0f mm",
		rec.ReceivedAt.Format("15:04:05.000"), FrameMeasurement,
		rec.StartAngleDegrees(), rec.EndAngleDegrees(), rec.RPM(),
		s.Valid, PointsPerFrame, s.MeanDistance)
}

// FormatFrame formats a raw checksum-valid frame. Measurement frames are
// decoded; other kinds are shown as a hex dump since their payload layout is
// not documented.
func FormatFrame(kind FrameKind, frame []byte) string {
	if kind == FrameMeasurement {
		if rec, err := DecodeMeasurement(frame); err == nil {
			return FormatRecord(rec)
		}
	}

	marker := byte(0)
	if len(frame) > 1 {
		marker = frame[1]
	}
	result := fmt.Sprintf("%s (0x%02X) len=%d\n", kind, marker, len(frame))
	if len(frame) > 3 {
		result += FormatHexDump(frame[2 : len(frame)-1])
	}
	return result
}

// FormatHexDump formats bytes as a hex dump, 16 bytes per line
func FormatHexDump(data []byte) string {
	result := "  Payload: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

// String returns the human-readable name of the decoder phase
func (p Phase) String() string {
	switch p {
	case PhaseAwaitHeader:
		return "AWAIT_HEADER"
	case PhaseAwaitKind:
		return "AWAIT_KIND"
	case PhaseAccumulating:
		return "ACCUMULATING"
	default:
		return "UNKNOWN"
	}
}
