// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"encoding/binary"
	"fmt"
)

// EncodeMeasurement creates a complete wire-formatted measurement frame.
// Header, marker and CRC are always computed; the record's own values for
// those fields are ignored.
func EncodeMeasurement(rec MeasurementRecord) []byte {
	frame := make([]byte, MeasurementFrameLen)

	frame[offsetHeader] = HeaderByte
	frame[offsetMarker] = MarkerMeasurement
	binary.LittleEndian.PutUint16(frame[offsetSpeed:], rec.Speed)
	binary.LittleEndian.PutUint16(frame[offsetStartAngle:], rec.StartAngle)

	offset := measurementPointStart
	for _, p := range rec.Points {
		binary.LittleEndian.PutUint16(frame[offset:], p.Distance)
		frame[offset+2] = p.Intensity
		offset += PointSize
	}

	binary.LittleEndian.PutUint16(frame[offsetEndAngle:], rec.EndAngle)
	binary.LittleEndian.PutUint16(frame[offsetTimestamp:], rec.Timestamp)
	frame[offsetCRC] = CalculateCRC(frame[:offsetCRC])

	return frame
}

// EncodeFrame creates a wire-formatted frame of the given kind around an
// opaque payload. The payload must fill the frame exactly: kind length minus
// header, marker and CRC.
func EncodeFrame(kind FrameKind, payload []byte) ([]byte, error) {
	frameLen := kind.FrameLen()
	if frameLen == 0 {
		return nil, fmt.Errorf("cannot encode frame of kind %s", kind)
	}
	if len(payload) != frameLen-3 {
		return nil, fmt.Errorf("%s payload must be %d bytes, got %d", kind, frameLen-3, len(payload))
	}

	frame := make([]byte, 0, frameLen)
	frame = append(frame, HeaderByte, kind.Marker())
	frame = append(frame, payload...)
	frame = append(frame, CalculateCRC(frame))

	return frame, nil
}

// MustEncodeFrame is like EncodeFrame but panics on error
func MustEncodeFrame(kind FrameKind, payload []byte) []byte {
	frame, err := EncodeFrame(kind, payload)
	if err != nil {
		panic(fmt.Sprintf("ld19: encode error: %v", err))
	}
	return frame
}
