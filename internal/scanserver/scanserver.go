// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scanserver serves decoded measurement records to WebSocket clients
// as JSON, with small HTTP endpoints for the latest record and statistics.
package scanserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

// clientBuffer is the number of records queued per client before records
// are dropped for that client
const clientBuffer = 64

// Server broadcasts every record it is handed to all connected clients
type Server struct {
	publisher *ld19.Publisher
	stats     *ld19.Statistics

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// statsResponse is the /api/stats body
type statsResponse struct {
	Elapsed            float64 `json:"elapsed"` // seconds
	Bytes              uint64  `json:"bytes"`
	SkippedBytes       uint64  `json:"skipped_bytes"`
	MeasurementFrames  uint64  `json:"measurement_frames"`
	HealthFrames       uint64  `json:"health_frames"`
	ManufacturerFrames uint64  `json:"manufacturer_frames"`
	CRCErrors          uint64  `json:"crc_errors"`
	FramingErrors      uint64  `json:"framing_errors"`
	DecodeErrors       uint64  `json:"decode_errors"`
	Published          uint64  `json:"published"`
	Clients            int     `json:"clients"`
}

// New creates a server reading the latest record from publisher and counters
// from stats. Records reach clients through Broadcast or Handler.
func New(publisher *ld19.Publisher, stats *ld19.Statistics) *Server {
	return &Server{
		publisher: publisher,
		stats:     stats,
		clients:   make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes returns the HTTP handler for all endpoints
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/latest", s.handleLatest)
	mux.HandleFunc("/api/stats", s.handleStats)
	return mux
}

// Run serves on addr until ctx is done
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns a record handler that broadcasts each record
func (s *Server) Handler() ld19.RecordHandler {
	return func(rec ld19.MeasurementRecord) {
		s.Broadcast(rec)
	}
}

// Broadcast sends rec to every client. Clients whose queue is full miss it.
func (s *Server) Broadcast(rec ld19.MeasurementRecord) {
	data, err := ld19.MarshalRecordJSON(rec)
	if err != nil {
		log.Printf("[ws] encode error: %v", err)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	count := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", count)

	// New clients see the current record without waiting for the next frame
	if rec, ok := s.publisher.Latest(); ok {
		if data, err := ld19.MarshalRecordJSON(rec); err == nil {
			client.send <- data
		}
	}

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			count := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", count)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec, ok := s.publisher.Latest()
	if !ok {
		http.Error(w, "no record yet", http.StatusNotFound)
		return
	}

	data, err := ld19.MarshalRecordJSON(rec)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.stats.Snapshot()
	resp := statsResponse{
		Elapsed:            snap.Elapsed.Seconds(),
		Bytes:              snap.Bytes,
		SkippedBytes:       snap.SkippedBytes,
		MeasurementFrames:  snap.MeasurementFrames,
		HealthFrames:       snap.HealthFrames,
		ManufacturerFrames: snap.ManufacturerFrames,
		CRCErrors:          snap.CRCErrors,
		FramingErrors:      snap.FramingErrors,
		DecodeErrors:       snap.DecodeErrors,
		Published:          snap.Published,
		Clients:            s.ClientCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[server] stats encode error: %v", err)
	}
}
