// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ld19

import (
	"sync"
	"sync/atomic"
)

// RecordHandler is called with every newly published record
type RecordHandler func(MeasurementRecord)

// Publisher holds the most recently validated measurement record.
//
// Publish stores a fresh copy behind an atomic pointer, so readers on other
// goroutines always see either the previous or the new record in full.
type Publisher struct {
	latest atomic.Pointer[MeasurementRecord]

	mu      sync.RWMutex
	handler RecordHandler
}

// NewPublisher creates an empty publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish replaces the cached record and invokes the registered handler, if
// any, on the calling goroutine
func (p *Publisher) Publish(rec MeasurementRecord) {
	stored := rec
	p.latest.Store(&stored)

	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()

	if handler != nil {
		handler(rec)
	}
}

// Latest returns the most recent record, or false before the first Publish
func (p *Publisher) Latest() (MeasurementRecord, bool) {
	rec := p.latest.Load()
	if rec == nil {
		return MeasurementRecord{}, false
	}
	return *rec, true
}

// RegisterHandler stores the notification callback, replacing any previous
// one. Passing nil removes it.
func (p *Publisher) RegisterHandler(handler RecordHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}
