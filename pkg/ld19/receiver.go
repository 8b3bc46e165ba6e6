// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"fmt"
	"time"
)

// FrameHandler receives every frame that passed its checksum. The frame slice
// aliases the decoder buffer and must be copied if retained.
type FrameHandler func(kind FrameKind, frame []byte)

// ChecksumError reports a complete frame dropped for a CRC mismatch
type ChecksumError struct {
	Kind     FrameKind
	Expected uint8
	Got      uint8
}

// Error implements the error interface
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("CRC mismatch on %s frame: expected 0x%02X, got 0x%02X", e.Kind, e.Expected, e.Got)
}

// FramingError reports a partial frame abandoned during resynchronization.
// Only HandleByte returns it, for callers that want to log resyncs; Write
// and the decoder itself recover silently and only count it in Statistics.
type FramingError struct {
	Phase Phase
	Kind  FrameKind
	Byte  byte
}

// Error implements the error interface
func (e *FramingError) Error() string {
	if e.Phase == PhaseAwaitKind {
		return fmt.Sprintf("unrecognized frame marker 0x%02X", e.Byte)
	}
	return fmt.Sprintf("%s frame overflow", e.Kind)
}

// Receiver runs the full receive pipeline: frame decoding, checksum
// validation, record assembly and publication.
//
// Like Decoder, a Receiver must be fed from a single goroutine. The Publisher
// and Statistics it exposes are safe to read from any goroutine.
type Receiver struct {
	decoder      *Decoder
	publisher    *Publisher
	stats        *Statistics
	frameHandler FrameHandler
	now          func() time.Time
}

// NewReceiver creates a receiver publishing into p. A nil publisher gets a
// fresh one.
func NewReceiver(p *Publisher) *Receiver {
	if p == nil {
		p = NewPublisher()
	}
	return &Receiver{
		decoder:   NewDecoder(),
		publisher: p,
		stats:     NewStatistics(),
		now:       time.Now,
	}
}

// Publisher returns the publisher holding the latest measurement record
func (r *Receiver) Publisher() *Publisher {
	return r.publisher
}

// Statistics returns the receiver's frame counters
func (r *Receiver) Statistics() *Statistics {
	return r.stats
}

// Decoder returns the underlying frame decoder
func (r *Receiver) Decoder() *Decoder {
	return r.decoder
}

// SetFrameHandler registers a callback for every checksum-valid frame,
// including Health and ManufacturerInfo frames. It must be set before bytes
// are fed.
func (r *Receiver) SetFrameHandler(h FrameHandler) {
	r.frameHandler = h
}

// HandleByte feeds one byte through the pipeline.
//
// Framing and checksum failures are returned as *FramingError and
// *ChecksumError; they are counted and the decoder has already resynchronized,
// so callers may log or ignore them.
func (r *Receiver) HandleByte(b byte) (Event, error) {
	r.stats.bytes.Add(1)

	phase := r.decoder.state
	ev := r.decoder.Feed(b)

	switch ev.Type {
	case EventNone:
		if phase == PhaseAwaitHeader && b != HeaderByte {
			r.stats.skippedBytes.Add(1)
		}
		return ev, nil

	case EventFramingError:
		r.stats.framingErrors.Add(1)
		return ev, &FramingError{Phase: phase, Kind: ev.Kind, Byte: b}
	}

	frame := r.decoder.Frame()
	if !ValidateChecksum(frame, len(frame)) {
		r.stats.crcErrors.Add(1)
		return ev, &ChecksumError{
			Kind:     ev.Kind,
			Expected: CalculateCRC(frame[:len(frame)-1]),
			Got:      frame[len(frame)-1],
		}
	}

	if ev.Kind == FrameMeasurement {
		rec, err := DecodeMeasurement(frame)
		if err != nil {
			r.stats.decodeErrors.Add(1)
			return ev, fmt.Errorf("failed to decode measurement: %w", err)
		}
		rec.ReceivedAt = r.now()
		r.stats.countFrame(ev.Kind)
		r.publisher.Publish(rec)
		r.stats.published.Add(1)
	} else {
		r.stats.countFrame(ev.Kind)
	}

	if r.frameHandler != nil {
		r.frameHandler(ev.Kind, frame)
	}

	return ev, nil
}

// Write feeds p through the pipeline so a Receiver can be the destination of
// io.Copy. Decode errors are counted, not returned.
func (r *Receiver) Write(p []byte) (int, error) {
	for _, b := range p {
		r.HandleByte(b)
	}
	return len(p), nil
}
