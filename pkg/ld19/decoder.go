// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

// EventType classifies the outcome of feeding one byte to the Decoder.
//
// EventNone and EventFrameReady are the whole decoding contract.
// EventFramingError is an observability extension: it marks the byte on which
// a partial frame was abandoned so callers can count or log it. The decoder
// has already resynchronized when it is returned and needs nothing from the
// caller, so treating it like EventNone is always correct.
type EventType uint8

// Event types
const (
	EventNone EventType = iota
	EventFrameReady
	// EventFramingError reports a discarded partial frame; informational only
	EventFramingError
)

// Event is returned by Decoder.Feed for every byte
type Event struct {
	Type EventType
	Kind FrameKind
}

// Ready returns true if a complete frame is waiting in the decoder buffer
func (e Event) Ready() bool {
	return e.Type == EventFrameReady
}

// State is the externally visible decoder state
type State struct {
	Phase Phase
	Kind  FrameKind
}

// Decoder implements the LD19 frame synchronization state machine.
//
// Feed must be called serially from a single goroutine. It never blocks and
// never allocates; the frame buffer is a fixed array owned by the decoder.
type Decoder struct {
	state       Phase
	kind        FrameKind
	required    int
	buffer      [MaxFrameSize]byte
	bufferIndex int
	frameLen    int // length of the last completed frame, 0 if none
	skipped     uint64
}

// NewDecoder creates a new frame decoder waiting for a header byte
func NewDecoder() *Decoder {
	return &Decoder{state: PhaseAwaitHeader}
}

// Reset returns the decoder to AwaitHeader and drops any partial frame
func (d *Decoder) Reset() {
	d.state = PhaseAwaitHeader
	d.kind = FrameUnrecognized
	d.required = 0
	d.bufferIndex = 0
	d.frameLen = 0
}

// State returns the current phase and, while accumulating, the frame kind
func (d *Decoder) State() State {
	return State{Phase: d.state, Kind: d.kind}
}

// AwaitingHeader returns true if the decoder is between frames
func (d *Decoder) AwaitingHeader() bool {
	return d.state == PhaseAwaitHeader
}

// Buffered returns the number of bytes held for the frame in progress
func (d *Decoder) Buffered() int {
	if d.state == PhaseAwaitHeader {
		return 0
	}
	return d.bufferIndex
}

// SkippedBytes returns the number of non-header bytes discarded while
// waiting for a frame to start
func (d *Decoder) SkippedBytes() uint64 {
	return d.skipped
}

// Frame returns the last completed frame. The slice aliases the decoder
// buffer and is only valid until the next call to Feed.
func (d *Decoder) Frame() []byte {
	return d.buffer[:d.frameLen]
}

// Feed processes a single byte through the decoder state machine
func (d *Decoder) Feed(b byte) Event {
	switch d.state {
	case PhaseAwaitHeader:
		if b != HeaderByte {
			d.skipped++
			return Event{}
		}
		d.bufferIndex = 0
		d.frameLen = 0
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		d.state = PhaseAwaitKind
		return Event{}

	case PhaseAwaitKind:
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		kind := kindForMarker(b)
		if kind == FrameUnrecognized {
			d.Reset()
			return Event{Type: EventFramingError, Kind: FrameUnrecognized}
		}
		d.kind = kind
		d.required = kind.FrameLen()
		d.state = PhaseAccumulating
		return Event{}

	case PhaseAccumulating:
		// Check for buffer overflow before accepting byte
		if d.bufferIndex >= len(d.buffer) || d.bufferIndex >= d.required {
			kind := d.kind
			d.Reset()
			return Event{Type: EventFramingError, Kind: kind}
		}
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		if d.bufferIndex < d.required {
			return Event{}
		}
		kind := d.kind
		d.frameLen = d.bufferIndex
		d.state = PhaseAwaitHeader
		d.kind = FrameUnrecognized
		d.required = 0
		return Event{Type: EventFrameReady, Kind: kind}

	default:
		d.Reset()
		return Event{Type: EventFramingError}
	}
}
