// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

// testRecord returns a record with distinct values in every field
func testRecord() MeasurementRecord {
	rec := MeasurementRecord{
		Header:     HeaderByte,
		VerLen:     MarkerMeasurement,
		Speed:      3600,
		StartAngle: 12000,
		EndAngle:   12800,
		Timestamp:  1234,
	}
	for i := range rec.Points {
		rec.Points[i] = Point{Distance: uint16(1000 + i*10), Intensity: uint8(200 + i)}
	}
	return rec
}

// buildFrame assembles a measurement frame by hand, independent of the encoder
func buildFrame(speed, start uint16, points [PointsPerFrame]Point, end, ts uint16) []byte {
	frame := []byte{0x54, 0x2C}
	frame = binary.LittleEndian.AppendUint16(frame, speed)
	frame = binary.LittleEndian.AppendUint16(frame, start)
	for _, p := range points {
		frame = binary.LittleEndian.AppendUint16(frame, p.Distance)
		frame = append(frame, p.Intensity)
	}
	frame = binary.LittleEndian.AppendUint16(frame, end)
	frame = binary.LittleEndian.AppendUint16(frame, ts)
	return append(frame, CalculateCRC(frame))
}

// feedAll feeds every byte and returns the events that were not EventNone
func feedAll(d *Decoder, data []byte) []Event {
	var events []Event
	for _, b := range data {
		if ev := d.Feed(b); ev.Type != EventNone {
			events = append(events, ev)
		}
	}
	return events
}

// stripReceivedAt zeroes the host timestamp for field comparisons
func stripReceivedAt(rec MeasurementRecord) MeasurementRecord {
	rec.ReceivedAt = time.Time{}
	return rec
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC([]byte{}); crc != 0 {
		t.Errorf("CRC of empty data should be 0, got 0x%02X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint8
	}{
		{name: "ASCII '123456789'", data: []byte("123456789"), expected: 0xC3},
		{name: "header only", data: []byte{0x54}, expected: 0xEE},
		{name: "header and marker", data: []byte{0x54, 0x2C}, expected: 0xD8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := CalculateCRC(tt.data); crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%02X, got 0x%02X", tt.expected, crc)
			}
		})
	}
}

func TestCRCTable_MatchesPolynomial(t *testing.T) {
	for i := 0; i < 256; i++ {
		crc := uint8(i)
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x4D
			} else {
				crc <<= 1
			}
		}
		if crcTable[i] != crc {
			t.Fatalf("crcTable[%d] = 0x%02X, want 0x%02X", i, crcTable[i], crc)
		}
	}
}

func TestValidateChecksum(t *testing.T) {
	frame := buildFrame(3600, 12000, testRecord().Points, 12800, 1234)

	if frame[46] != 0xD9 {
		t.Fatalf("Expected checksum 0xD9 for reference frame, got 0x%02X", frame[46])
	}
	if !ValidateChecksum(frame, len(frame)) {
		t.Error("Valid frame should pass checksum")
	}

	bad := append([]byte(nil), frame...)
	bad[46] ^= 0xFF
	if ValidateChecksum(bad, len(bad)) {
		t.Error("Frame with wrong checksum byte should fail")
	}

	if ValidateChecksum(frame, 1) {
		t.Error("Length 1 should never be valid")
	}
	if ValidateChecksum(frame, len(frame)+1) {
		t.Error("Length beyond buffer should never be valid")
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_InitialState(t *testing.T) {
	d := NewDecoder()
	if !d.AwaitingHeader() {
		t.Error("New decoder should await header")
	}
	if d.Buffered() != 0 {
		t.Errorf("New decoder should have empty buffer, got %d", d.Buffered())
	}
	if len(d.Frame()) != 0 {
		t.Error("New decoder should have no frame")
	}
}

func TestDecoder_MeasurementFrame(t *testing.T) {
	d := NewDecoder()
	frame := buildFrame(3600, 12000, testRecord().Points, 12800, 1234)

	for i, b := range frame[:len(frame)-1] {
		if ev := d.Feed(b); ev.Type != EventNone {
			t.Fatalf("Unexpected event %v at byte %d", ev, i)
		}
	}

	ev := d.Feed(frame[len(frame)-1])
	if !ev.Ready() || ev.Kind != FrameMeasurement {
		t.Fatalf("Expected FrameReady(MEASUREMENT), got %+v", ev)
	}
	if !bytes.Equal(d.Frame(), frame) {
		t.Error("Decoder frame does not match input")
	}
	if !d.AwaitingHeader() {
		t.Error("Decoder should return to AwaitHeader after a frame")
	}
}

func TestDecoder_ShortFrames(t *testing.T) {
	tests := []struct {
		kind   FrameKind
		marker byte
	}{
		{FrameHealth, MarkerHealth},
		{FrameManufacturerInfo, MarkerManufacturerInfo},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			d := NewDecoder()
			frame := MustEncodeFrame(tt.kind, make([]byte, 9))
			if len(frame) != 12 || frame[1] != tt.marker {
				t.Fatalf("Bad test frame: % X", frame)
			}

			events := feedAll(d, frame)
			if len(events) != 1 || !events[0].Ready() || events[0].Kind != tt.kind {
				t.Fatalf("Expected one FrameReady(%s), got %+v", tt.kind, events)
			}
			if len(d.Frame()) != 12 {
				t.Errorf("Expected 12-byte frame, got %d", len(d.Frame()))
			}
		})
	}
}

func TestDecoder_SkipsNonHeaderBytes(t *testing.T) {
	d := NewDecoder()
	garbage := []byte{0x00, 0xFF, 0x2C, 0xE0, 0x0F, 0x53, 0x55}

	if events := feedAll(d, garbage); len(events) != 0 {
		t.Errorf("Garbage should produce no events, got %+v", events)
	}
	if !d.AwaitingHeader() {
		t.Error("Decoder should still await header")
	}
	if d.SkippedBytes() != uint64(len(garbage)) {
		t.Errorf("Expected %d skipped bytes, got %d", len(garbage), d.SkippedBytes())
	}
}

func TestDecoder_UnrecognizedMarker(t *testing.T) {
	d := NewDecoder()

	d.Feed(HeaderByte)
	if d.State().Phase != PhaseAwaitKind {
		t.Fatalf("Expected AWAIT_KIND after header, got %s", d.State().Phase)
	}

	ev := d.Feed(0x99)
	if ev.Type != EventFramingError || ev.Kind != FrameUnrecognized {
		t.Errorf("Expected framing error for unknown marker, got %+v", ev)
	}
	if !d.AwaitingHeader() || d.Buffered() != 0 {
		t.Error("Decoder should discard the header and await a new one")
	}
}

func TestDecoder_StateTracksKind(t *testing.T) {
	d := NewDecoder()
	d.Feed(HeaderByte)
	d.Feed(MarkerHealth)

	state := d.State()
	if state.Phase != PhaseAccumulating || state.Kind != FrameHealth {
		t.Errorf("Expected ACCUMULATING(HEALTH), got %s(%s)", state.Phase, state.Kind)
	}
	if d.Buffered() != 2 {
		t.Errorf("Expected 2 buffered bytes, got %d", d.Buffered())
	}
}

func TestDecoder_HeaderInsidePayloadIsData(t *testing.T) {
	rec := testRecord()
	rec.Points[0].Distance = 0x5454
	rec.Speed = 0x5454
	frame := EncodeMeasurement(rec)

	d := NewDecoder()
	events := feedAll(d, frame)
	if len(events) != 1 || !events[0].Ready() {
		t.Fatalf("Expected one frame despite header bytes in payload, got %+v", events)
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.Feed(HeaderByte)
	d.Feed(MarkerMeasurement)
	d.Feed(0x01)

	d.Reset()
	if !d.AwaitingHeader() || d.Buffered() != 0 {
		t.Error("Reset should drop the partial frame")
	}
}

func TestDecoder_CapacityBound(t *testing.T) {
	d := NewDecoder()

	// Force an oversize requirement to exercise the overflow guard
	d.Feed(HeaderByte)
	d.Feed(MarkerMeasurement)
	d.required = MaxFrameSize + 10

	var overflow bool
	for i := 0; i < MaxFrameSize*2; i++ {
		if d.bufferIndex > MaxFrameSize {
			t.Fatalf("Cursor %d exceeds capacity", d.bufferIndex)
		}
		if ev := d.Feed(0x00); ev.Type == EventFramingError {
			overflow = true
			break
		}
	}

	if !overflow {
		t.Fatal("Expected framing error when buffer capacity is exhausted")
	}
	if !d.AwaitingHeader() {
		t.Error("Decoder should resynchronize after overflow")
	}
}

func TestDecoder_NoAllocations(t *testing.T) {
	d := NewDecoder()
	frame := EncodeMeasurement(testRecord())
	i := 0

	allocs := testing.AllocsPerRun(1000, func() {
		d.Feed(frame[i%len(frame)])
		i++
	})
	if allocs != 0 {
		t.Errorf("Feed allocated %.1f times per call", allocs)
	}
}

// ============================================================
// Record Tests
// ============================================================

func TestDecodeMeasurement_Fields(t *testing.T) {
	want := testRecord()
	frame := buildFrame(want.Speed, want.StartAngle, want.Points, want.EndAngle, want.Timestamp)
	want.CRC = frame[46]

	got, err := DecodeMeasurement(frame)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if got != want {
		t.Errorf("Decoded record mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestDecodeMeasurement_LittleEndian(t *testing.T) {
	frame := make([]byte, MeasurementFrameLen)
	frame[0], frame[1] = HeaderByte, MarkerMeasurement
	frame[2], frame[3] = 0x34, 0x12 // speed 0x1234
	frame[6], frame[7], frame[8] = 0xCD, 0xAB, 0x7F
	frame[44], frame[45] = 0x01, 0x80

	rec, err := DecodeMeasurement(frame)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if rec.Speed != 0x1234 {
		t.Errorf("Speed: expected 0x1234, got 0x%04X", rec.Speed)
	}
	if rec.Points[0].Distance != 0xABCD || rec.Points[0].Intensity != 0x7F {
		t.Errorf("Point 0: expected (0xABCD, 0x7F), got (0x%04X, 0x%02X)", rec.Points[0].Distance, rec.Points[0].Intensity)
	}
	if rec.Timestamp != 0x8001 {
		t.Errorf("Timestamp: expected 0x8001, got 0x%04X", rec.Timestamp)
	}
}

func TestDecodeMeasurement_Errors(t *testing.T) {
	good := EncodeMeasurement(testRecord())

	wrongHeader := append([]byte(nil), good...)
	wrongHeader[0] = 0x55
	wrongMarker := append([]byte(nil), good...)
	wrongMarker[1] = MarkerHealth

	tests := []struct {
		name  string
		data  []byte
		field string
	}{
		{"short", good[:20], "length"},
		{"long", append(append([]byte(nil), good...), 0x00), "length"},
		{"header", wrongHeader, "header"},
		{"marker", wrongMarker, "marker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMeasurement(tt.data)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("Expected *DecodeError, got %v", err)
			}
			if de.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, de.Field)
			}
		})
	}
}

func TestRecord_Units(t *testing.T) {
	rec := testRecord()

	if rec.SpeedDegrees() != 36.0 {
		t.Errorf("SpeedDegrees: expected 36.0, got %f", rec.SpeedDegrees())
	}
	if rec.RPM() != 6.0 {
		t.Errorf("RPM: expected 6.0, got %f", rec.RPM())
	}
	if rec.AngularSpan() != 8.0 {
		t.Errorf("AngularSpan: expected 8.0, got %f", rec.AngularSpan())
	}
	if rec.PointAngle(0) != 120.0 {
		t.Errorf("PointAngle(0): expected 120.0, got %f", rec.PointAngle(0))
	}
	if got := rec.PointAngle(11); got < 127.999 || got > 128.001 {
		t.Errorf("PointAngle(11): expected 128.0, got %f", got)
	}
}

func TestRecord_AngleWrap(t *testing.T) {
	rec := testRecord()
	rec.StartAngle = 35600 // 356°
	rec.EndAngle = 500     // 5°

	if span := rec.AngularSpan(); span != 9.0 {
		t.Errorf("Expected wrapped span 9.0, got %f", span)
	}
	if angle := rec.PointAngle(11); angle < 4.999 || angle > 5.001 {
		t.Errorf("Expected last point at 5°, got %f", angle)
	}
}

func TestRecord_Valid(t *testing.T) {
	rec := testRecord()
	rec.Points[3].Distance = 0
	rec.Points[7].Distance = 0
	if rec.Valid() != 10 {
		t.Errorf("Expected 10 valid points, got %d", rec.Valid())
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeMeasurement_MatchesHandBuilt(t *testing.T) {
	rec := testRecord()
	want := buildFrame(rec.Speed, rec.StartAngle, rec.Points, rec.EndAngle, rec.Timestamp)

	if got := EncodeMeasurement(rec); !bytes.Equal(got, want) {
		t.Errorf("Encoded frame mismatch:\n got  % X\n want % X", got, want)
	}
}

func TestEncodeFrame_Errors(t *testing.T) {
	if _, err := EncodeFrame(FrameUnrecognized, nil); err == nil {
		t.Error("Expected error for unrecognized kind")
	}
	if _, err := EncodeFrame(FrameHealth, make([]byte, 3)); err == nil {
		t.Error("Expected error for wrong payload size")
	}
	if _, err := EncodeFrame(FrameMeasurement, make([]byte, 44)); err != nil {
		t.Errorf("44-byte measurement payload should encode: %v", err)
	}
}

// ============================================================
// Publisher Tests
// ============================================================

func TestPublisher_EmptyBeforeFirstPublish(t *testing.T) {
	p := NewPublisher()
	if _, ok := p.Latest(); ok {
		t.Error("Latest should report no record before first publish")
	}
}

func TestPublisher_OverwritesAndNotifies(t *testing.T) {
	p := NewPublisher()

	var seen []uint16
	p.RegisterHandler(func(rec MeasurementRecord) {
		latest, ok := p.Latest()
		if !ok || latest.Timestamp != rec.Timestamp {
			t.Error("Cache should be updated before the handler runs")
		}
		seen = append(seen, rec.Timestamp)
	})

	for _, ts := range []uint16{10, 20, 30} {
		rec := testRecord()
		rec.Timestamp = ts
		p.Publish(rec)
	}

	latest, _ := p.Latest()
	if latest.Timestamp != 30 {
		t.Errorf("Expected latest timestamp 30, got %d", latest.Timestamp)
	}
	if len(seen) != 3 || seen[0] != 10 || seen[2] != 30 {
		t.Errorf("Handler should see every record in order, got %v", seen)
	}

	p.RegisterHandler(nil)
	p.Publish(testRecord())
	if len(seen) != 3 {
		t.Error("Handler should not be called after being cleared")
	}
}

func TestPublisher_ConcurrentReadersNeverSeeTornRecord(t *testing.T) {
	p := NewPublisher()

	// Every published record has all points equal to its timestamp
	makeRecord := func(v uint16) MeasurementRecord {
		rec := MeasurementRecord{Timestamp: v, Speed: v, StartAngle: v, EndAngle: v}
		for i := range rec.Points {
			rec.Points[i] = Point{Distance: v, Intensity: uint8(v)}
		}
		return rec
	}

	var wg sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				rec, ok := p.Latest()
				if !ok {
					continue
				}
				v := rec.Timestamp
				if rec.Speed != v || rec.StartAngle != v || rec.EndAngle != v {
					t.Errorf("Torn header fields: %+v", rec)
					return
				}
				for _, pt := range rec.Points {
					if pt.Distance != v || pt.Intensity != uint8(v) {
						t.Errorf("Torn point data in record %d", v)
						return
					}
				}
			}
		}()
	}

	for v := uint16(1); v < 5000; v++ {
		p.Publish(makeRecord(v))
	}
	close(done)
	wg.Wait()
}

// ============================================================
// Receiver Tests
// ============================================================

func TestReceiver_ConcreteScenario(t *testing.T) {
	want := testRecord()
	frame := buildFrame(want.Speed, want.StartAngle, want.Points, want.EndAngle, want.Timestamp)
	want.CRC = frame[46]

	r := NewReceiver(nil)
	var events []Event
	for _, b := range frame {
		ev, err := r.HandleByte(b)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if ev.Type != EventNone {
			events = append(events, ev)
		}
	}

	if len(events) != 1 || events[0].Kind != FrameMeasurement {
		t.Fatalf("Expected exactly one FrameReady(MEASUREMENT), got %+v", events)
	}

	got, ok := r.Publisher().Latest()
	if !ok {
		t.Fatal("Expected a published record")
	}
	if got.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be set")
	}
	if stripReceivedAt(got) != want {
		t.Errorf("Published record mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestReceiver_WrongChecksumPublishesNothing(t *testing.T) {
	frame := EncodeMeasurement(testRecord())
	correct := frame[46]

	for crc := 0; crc < 256; crc++ {
		if byte(crc) == correct {
			continue
		}
		frame[46] = byte(crc)

		r := NewReceiver(nil)
		var lastErr error
		for _, b := range frame {
			if _, err := r.HandleByte(b); err != nil {
				lastErr = err
			}
		}

		if _, ok := r.Publisher().Latest(); ok {
			t.Fatalf("CRC 0x%02X should not publish", crc)
		}
		var ce *ChecksumError
		if !errors.As(lastErr, &ce) || ce.Expected != correct || ce.Got != byte(crc) {
			t.Fatalf("Expected ChecksumError(0x%02X, 0x%02X), got %v", correct, crc, lastErr)
		}
	}
}

func TestReceiver_SingleBitFlipRejected(t *testing.T) {
	frame := EncodeMeasurement(testRecord())

	for pos := 0; pos < MeasurementFrameLen-1; pos++ {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), frame...)
			corrupt[pos] ^= 1 << bit

			r := NewReceiver(nil)
			r.Write(corrupt)

			if _, ok := r.Publisher().Latest(); ok {
				t.Fatalf("Bit %d of byte %d flipped but record was published", bit, pos)
			}
		}
	}
}

func TestReceiver_GarbageThenFrame(t *testing.T) {
	frame := EncodeMeasurement(testRecord())

	prefixes := [][]byte{
		{},
		{0x00},
		bytes.Repeat([]byte{0xAA}, 500),
		{0x2C, 0xE0, 0x0F, 0xFF, 0x01},
	}

	for _, prefix := range prefixes {
		r := NewReceiver(nil)
		count := 0
		r.Publisher().RegisterHandler(func(MeasurementRecord) { count++ })

		r.Write(prefix)
		r.Write(frame)

		if count != 1 {
			t.Errorf("Prefix of %d bytes: expected 1 record, got %d", len(prefix), count)
		}
		snap := r.Statistics().Snapshot()
		if snap.SkippedBytes != uint64(len(prefix)) {
			t.Errorf("Prefix of %d bytes: expected %d skipped, got %d", len(prefix), len(prefix), snap.SkippedBytes)
		}
	}
}

func TestReceiver_BackToBackFrames(t *testing.T) {
	first := testRecord()
	second := testRecord()
	second.Timestamp = 5678
	second.StartAngle = 12900

	stream := append(EncodeMeasurement(first), EncodeMeasurement(second)...)

	r := NewReceiver(nil)
	var order []uint16
	r.Publisher().RegisterHandler(func(rec MeasurementRecord) {
		order = append(order, rec.Timestamp)
	})
	r.Write(stream)

	if len(order) != 2 || order[0] != 1234 || order[1] != 5678 {
		t.Fatalf("Expected records [1234 5678], got %v", order)
	}
	latest, _ := r.Publisher().Latest()
	if latest.Timestamp != 5678 || latest.StartAngle != 12900 {
		t.Errorf("Cache should hold the second record, got %+v", latest)
	}
}

func TestReceiver_InterleavedKinds(t *testing.T) {
	health := MustEncodeFrame(FrameHealth, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	info := MustEncodeFrame(FrameManufacturerInfo, []byte{9, 8, 7, 6, 5, 4, 3, 2, 1})
	meas := EncodeMeasurement(testRecord())

	var stream []byte
	stream = append(stream, health...)
	stream = append(stream, meas...)
	stream = append(stream, info...)
	stream = append(stream, meas...)

	r := NewReceiver(nil)
	var kinds []FrameKind
	r.SetFrameHandler(func(kind FrameKind, frame []byte) {
		if len(frame) != kind.FrameLen() {
			t.Errorf("%s frame has length %d", kind, len(frame))
		}
		kinds = append(kinds, kind)
	})
	r.Write(stream)

	want := []FrameKind{FrameHealth, FrameMeasurement, FrameManufacturerInfo, FrameMeasurement}
	if len(kinds) != len(want) {
		t.Fatalf("Expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Frame %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}

	snap := r.Statistics().Snapshot()
	if snap.MeasurementFrames != 2 || snap.HealthFrames != 1 || snap.ManufacturerFrames != 1 {
		t.Errorf("Unexpected frame counts: %+v", snap)
	}
	if snap.Published != 2 {
		t.Errorf("Expected 2 published records, got %d", snap.Published)
	}
}

func TestReceiver_CorruptHealthFrameCounted(t *testing.T) {
	health := MustEncodeFrame(FrameHealth, make([]byte, 9))
	health[5] ^= 0x01

	r := NewReceiver(nil)
	called := false
	r.SetFrameHandler(func(FrameKind, []byte) { called = true })
	r.Write(health)

	if called {
		t.Error("Frame handler should not see a frame with a bad checksum")
	}
	if snap := r.Statistics().Snapshot(); snap.CRCErrors != 1 || snap.HealthFrames != 0 {
		t.Errorf("Expected 1 CRC error and no health frames, got %+v", snap)
	}
}

func TestReceiver_FramingErrorReported(t *testing.T) {
	r := NewReceiver(nil)
	r.HandleByte(HeaderByte)
	_, err := r.HandleByte(0x77)

	var fe *FramingError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *FramingError, got %v", err)
	}
	if !strings.Contains(fe.Error(), "0x77") {
		t.Errorf("Error should name the marker byte: %v", fe)
	}
	if r.Statistics().Snapshot().FramingErrors != 1 {
		t.Error("Framing error should be counted")
	}
}

func TestReceiver_FramingErrorIsSilentResync(t *testing.T) {
	r := NewReceiver(nil)
	var got []MeasurementRecord
	r.Publisher().RegisterHandler(func(rec MeasurementRecord) {
		got = append(got, rec)
	})

	want := testRecord()
	stream := append([]byte{HeaderByte, 0x77, HeaderByte, 0x13}, EncodeMeasurement(want)...)
	n, err := r.Write(stream)
	if err != nil || n != len(stream) {
		t.Fatalf("Write returned (%d, %v), want (%d, nil)", n, err, len(stream))
	}

	if len(got) != 1 || got[0].Timestamp != want.Timestamp {
		t.Fatalf("Expected the frame after the bad markers to publish, got %d records", len(got))
	}
	if fe := r.Statistics().Snapshot().FramingErrors; fe != 2 {
		t.Errorf("Expected 2 framing errors counted, got %d", fe)
	}
}

func TestReceiver_ResumesAfterCorruptFrame(t *testing.T) {
	bad := EncodeMeasurement(testRecord())
	bad[10] ^= 0x40
	good := testRecord()
	good.Timestamp = 42

	r := NewReceiver(nil)
	r.Write(bad)
	r.Write(EncodeMeasurement(good))

	latest, ok := r.Publisher().Latest()
	if !ok || latest.Timestamp != 42 {
		t.Errorf("Receiver should decode the frame after a corrupt one, got %+v", latest)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_SnapshotAndReset(t *testing.T) {
	r := NewReceiver(nil)
	r.Write([]byte{0x00, 0x01})
	r.Write(EncodeMeasurement(testRecord()))

	snap := r.Statistics().Snapshot()
	if snap.Bytes != 49 {
		t.Errorf("Expected 49 bytes, got %d", snap.Bytes)
	}
	if snap.ValidFrames() != 1 || snap.TotalFrames() != 1 || snap.Errors() != 0 {
		t.Errorf("Unexpected totals: valid=%d total=%d errors=%d", snap.ValidFrames(), snap.TotalFrames(), snap.Errors())
	}
	if !strings.Contains(snap.String(), "Valid Frames:") {
		t.Error("Summary should list valid frames")
	}

	r.Statistics().Reset()
	snap = r.Statistics().Snapshot()
	if snap.Bytes != 0 || snap.MeasurementFrames != 0 || snap.SkippedBytes != 0 {
		t.Errorf("Reset should zero counters, got %+v", snap)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatRecord(t *testing.T) {
	rec := testRecord()
	rec.Points[5].Distance = 0
	out := FormatRecord(rec)

	for _, want := range []string{"MEASUREMENT", "6.0 RPM", "120.00°", "no return", "1000 mm"} {
		if !strings.Contains(out, want) {
			t.Errorf("Formatted record missing %q:\n%s", want, out)
		}
	}
}

func TestFormatFrame_OpaqueKinds(t *testing.T) {
	frame := MustEncodeFrame(FrameHealth, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0, 0})
	out := FormatFrame(FrameHealth, frame)

	if !strings.Contains(out, "HEALTH (0xE0)") || !strings.Contains(out, "DE AD BE EF") {
		t.Errorf("Unexpected health frame format:\n%s", out)
	}
}

func TestFrameKind_String(t *testing.T) {
	tests := map[FrameKind]string{
		FrameMeasurement:      "MEASUREMENT",
		FrameHealth:           "HEALTH",
		FrameManufacturerInfo: "MANUFACTURER_INFO",
		FrameUnrecognized:     "UNKNOWN",
	}
	for kind, want := range tests {
		if kind.String() != want {
			t.Errorf("%d.String() = %q, want %q", kind, kind.String(), want)
		}
	}
}
