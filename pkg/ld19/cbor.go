// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// cborRecord is the CBOR layout of a MeasurementRecord: an integer-keyed map
//
//	0 => speed, 1 => start angle, 2 => end angle, 3 => timestamp,
//	4 => [distances], 5 => intensities (bstr), 6 => crc, 7 => received-at (unix ms)
type cborRecord struct {
	Speed       uint16   `cbor:"0,keyasint"`
	StartAngle  uint16   `cbor:"1,keyasint"`
	EndAngle    uint16   `cbor:"2,keyasint"`
	Timestamp   uint16   `cbor:"3,keyasint"`
	Distances   []uint16 `cbor:"4,keyasint"`
	Intensities []byte   `cbor:"5,keyasint"`
	CRC         uint8    `cbor:"6,keyasint"`
	ReceivedAt  int64    `cbor:"7,keyasint,omitempty"`
}

func toCBORRecord(rec MeasurementRecord) cborRecord {
	c := cborRecord{
		Speed:       rec.Speed,
		StartAngle:  rec.StartAngle,
		EndAngle:    rec.EndAngle,
		Timestamp:   rec.Timestamp,
		Distances:   make([]uint16, PointsPerFrame),
		Intensities: make([]byte, PointsPerFrame),
		CRC:         rec.CRC,
	}
	for i, p := range rec.Points {
		c.Distances[i] = p.Distance
		c.Intensities[i] = p.Intensity
	}
	if !rec.ReceivedAt.IsZero() {
		c.ReceivedAt = rec.ReceivedAt.UnixMilli()
	}
	return c
}

func (c cborRecord) toRecord() (MeasurementRecord, error) {
	var rec MeasurementRecord
	if len(c.Distances) != PointsPerFrame || len(c.Intensities) != PointsPerFrame {
		return rec, fmt.Errorf("expected %d points, got %d distances and %d intensities",
			PointsPerFrame, len(c.Distances), len(c.Intensities))
	}

	rec.Header = HeaderByte
	rec.VerLen = MarkerMeasurement
	rec.Speed = c.Speed
	rec.StartAngle = c.StartAngle
	rec.EndAngle = c.EndAngle
	rec.Timestamp = c.Timestamp
	rec.CRC = c.CRC
	for i := range rec.Points {
		rec.Points[i] = Point{Distance: c.Distances[i], Intensity: c.Intensities[i]}
	}
	if c.ReceivedAt != 0 {
		rec.ReceivedAt = time.UnixMilli(c.ReceivedAt)
	}
	return rec, nil
}

// MarshalRecordCBOR encodes a record as a CBOR map
func MarshalRecordCBOR(rec MeasurementRecord) ([]byte, error) {
	data, err := cbor.Marshal(toCBORRecord(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR record: %w", err)
	}
	return data, nil
}

// UnmarshalRecordCBOR decodes a record produced by MarshalRecordCBOR
func UnmarshalRecordCBOR(data []byte) (MeasurementRecord, error) {
	if len(data) == 0 {
		return MeasurementRecord{}, fmt.Errorf("empty CBOR record")
	}
	var c cborRecord
	if err := cbor.Unmarshal(data, &c); err != nil {
		return MeasurementRecord{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return c.toRecord()
}

// RecordWriter writes records as a CBOR sequence
type RecordWriter struct {
	enc *cbor.Encoder
}

// NewRecordWriter creates a CBOR sequence writer on w
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{enc: cbor.NewEncoder(w)}
}

// Write appends one record to the sequence
func (w *RecordWriter) Write(rec MeasurementRecord) error {
	return w.enc.Encode(toCBORRecord(rec))
}

// RecordReader reads records from a CBOR sequence
type RecordReader struct {
	dec *cbor.Decoder
}

// NewRecordReader creates a CBOR sequence reader on r
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{dec: cbor.NewDecoder(r)}
}

// Read returns the next record, or io.EOF at the end of the sequence
func (r *RecordReader) Read() (MeasurementRecord, error) {
	var c cborRecord
	if err := r.dec.Decode(&c); err != nil {
		return MeasurementRecord{}, err
	}
	return c.toRecord()
}
