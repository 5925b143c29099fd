package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/observability/log"
)

// HTTPServer serves the websocket hub on /telemetry and the latest
// snapshot on /snapshot.
type HTTPServer struct {
	server *http.Server
	hub    *Hub
	logger log.Log

	mu     sync.RWMutex
	latest *Snapshot
	addr   net.Addr
}

func NewHTTPServer(hub *Hub, logger log.Log) *HTTPServer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &HTTPServer{hub: hub, logger: logger.With(log.String("component", "http"))}
}

// Start binds addr and serves in the background.
func (s *HTTPServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Join(ErrListenerFailed, err)
	}
	s.server = &http.Server{Handler: s}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.logger.Info("websocket telemetry listening", log.String("addr", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", log.Error(err))
		}
	}()
	return nil
}

func (s *HTTPServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Store replaces the snapshot served on /snapshot.
func (s *HTTPServer) Store(snap Snapshot) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/telemetry":
		s.hub.handleWebSocket(w, r)
	case "/snapshot":
		s.handleSnapshot(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest == nil {
		http.Error(w, ErrNoSnapshot.Error(), http.StatusServiceUnavailable)
		return
	}

	snap := *latest
	if raw := r.URL.Query().Get("partition"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 0 || p >= s.hub.partitions {
			http.Error(w, ErrUnknownPartition.Error(), http.StatusBadRequest)
			return
		}
		snap = snap.Only(models.PartitionID(p))
	}
	data, err := snap.Serialize()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
