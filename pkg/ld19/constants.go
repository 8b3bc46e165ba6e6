// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ld19 decodes the serial byte stream of LDROBOT LD19-class 2D LiDAR
// sensors.
//
// The sensor transmits three interleaved frame kinds that share a fixed header
// byte and are selected by the byte that follows it. Every frame closes with a
// table-driven CRC8. This package provides the byte-at-a-time frame decoder,
// the checksum validator, the measurement record assembler and a single-slot
// publisher for the most recent record.
package ld19

// Protocol framing bytes
const (
	HeaderByte = 0x54
)

// Kind markers (second byte of every frame)
const (
	MarkerMeasurement      = 0x2C
	MarkerHealth           = 0xE0
	MarkerManufacturerInfo = 0x0F
)

// Frame size limits
const (
	MaxFrameSize          = 128
	PointsPerFrame        = 12
	PointSize             = 3
	MeasurementFrameLen   = PointsPerFrame*PointSize + 11 // 47
	HealthFrameLen        = 12
	ManufacturerFrameLen  = 12
	measurementPointStart = 6
)

// Measurement frame field offsets
const (
	offsetHeader     = 0
	offsetMarker     = 1
	offsetSpeed      = 2
	offsetStartAngle = 4
	offsetEndAngle   = 42
	offsetTimestamp  = 44
	offsetCRC        = 46
)

// Default serial parameters of the sensor
const (
	DefaultBaudRate = 230400
)

// Phase is the decoder state machine phase
type Phase int

// Decoder phases
const (
	PhaseAwaitHeader Phase = iota
	PhaseAwaitKind
	PhaseAccumulating
)

// FrameKind identifies the frame type selected by the marker byte
type FrameKind uint8

// Frame kind values
const (
	FrameUnrecognized FrameKind = iota
	FrameMeasurement
	FrameHealth
	FrameManufacturerInfo
)

// kindForMarker maps a marker byte to its frame kind
func kindForMarker(b byte) FrameKind {
	switch b {
	case MarkerMeasurement:
		return FrameMeasurement
	case MarkerHealth:
		return FrameHealth
	case MarkerManufacturerInfo:
		return FrameManufacturerInfo
	default:
		return FrameUnrecognized
	}
}

// Marker returns the wire marker byte for the kind (0 for FrameUnrecognized)
func (k FrameKind) Marker() byte {
	switch k {
	case FrameMeasurement:
		return MarkerMeasurement
	case FrameHealth:
		return MarkerHealth
	case FrameManufacturerInfo:
		return MarkerManufacturerInfo
	default:
		return 0
	}
}

// FrameLen returns the required total frame length for the kind, including
// header, marker and checksum. Unrecognized kinds have no length.
func (k FrameKind) FrameLen() int {
	switch k {
	case FrameMeasurement:
		return MeasurementFrameLen
	case FrameHealth:
		return HealthFrameLen
	case FrameManufacturerInfo:
		return ManufacturerFrameLen
	default:
		return 0
	}
}

// String returns the human-readable name of the frame kind
func (k FrameKind) String() string {
	switch k {
	case FrameMeasurement:
		return "MEASUREMENT"
	case FrameHealth:
		return "HEALTH"
	case FrameManufacturerInfo:
		return "MANUFACTURER_INFO"
	default:
		return "UNKNOWN"
	}
}
