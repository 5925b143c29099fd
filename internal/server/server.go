// Package server publishes per-frame camera telemetry of a world over
// websocket and QUIC.
package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/bigspace/internal/core/config"
	"github.com/zeusync/bigspace/internal/core/events/bus"
	"github.com/zeusync/bigspace/internal/core/observability/log"
	"github.com/zeusync/bigspace/internal/core/system"
)

// Config holds server configuration. An empty address disables its
// transport.
type Config struct {
	WebSocketAddr string
	QUICAddr      string

	// EveryFrames samples one frame out of this many.
	EveryFrames int

	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		WebSocketAddr:   "127.0.0.1:8080",
		QUICAddr:        "127.0.0.1:8443",
		EveryFrames:     30,
		WriteTimeout:    time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// ConfigFrom maps the telemetry section of the world configuration.
func ConfigFrom(c config.TelemetryConfig) Config {
	out := DefaultServerConfig()
	out.WebSocketAddr = c.WebSocketAddr
	out.QUICAddr = c.QUICAddr
	out.EveryFrames = c.EveryFrames
	return out
}

func (c Config) Validate() error {
	if c.EveryFrames < 1 {
		return fmt.Errorf("%w: every_frames %d must be positive", ErrInvalidConfig, c.EveryFrames)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: write timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Server samples frame.completed events of a world and pushes snapshots to
// the configured transports. Snapshots are built on the frame goroutine and
// sent from a background worker; a slow transport skips frames rather than
// delaying the world.
type Server struct {
	config Config
	source Source
	logger log.Log

	hub  *Hub
	http *HTTPServer
	quic *QUICSink

	sub     bus.Subscription
	pending chan Snapshot
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	sent    atomic.Uint64
	running atomic.Bool
	closed  atomic.Bool
}

func New(cfg Config, source Source, logger log.Log) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With(log.String("component", "telemetry"))
	hub := NewHub(source.PartitionCount(), cfg.WriteTimeout, logger)

	s := &Server{
		config: cfg,
		source: source,
		logger: logger,
		hub:    hub,
	}
	if cfg.WebSocketAddr != "" {
		s.http = NewHTTPServer(hub, logger)
	}
	if cfg.QUICAddr != "" {
		s.quic = NewQUICSink(cfg.WriteTimeout, logger)
	}
	logger.Info("telemetry server created",
		log.String("websocket_addr", cfg.WebSocketAddr),
		log.String("quic_addr", cfg.QUICAddr),
		log.Int("every_frames", cfg.EveryFrames))
	return s, nil
}

// Start binds the transports and subscribes to the world's frames.
func (s *Server) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	if s.http != nil {
		if err := s.http.Start(s.config.WebSocketAddr); err != nil {
			cancel()
			s.running.Store(false)
			return err
		}
	}
	if s.quic != nil {
		if err := s.quic.Listen(ctx, s.config.QUICAddr, nil); err != nil {
			cancel()
			if s.http != nil {
				_ = s.http.Stop(context.Background())
			}
			s.running.Store(false)
			return err
		}
	}

	s.pending = make(chan Snapshot, 1)
	every := uint64(s.config.EveryFrames)
	sub, err := s.source.Bus().Subscribe(bus.TypeFrameCompleted, s.onFrame, func(e bus.Event) bool {
		return e.Frame%every == 0
	})
	if err != nil {
		cancel()
		s.shutdownTransports()
		s.running.Store(false)
		return err
	}

	s.sub = sub
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broadcastLoop(ctx, s.pending)
	}()
	s.logger.Info("telemetry server started")
	return nil
}

func (s *Server) onFrame(e bus.Event) error {
	report, ok := e.Data.(system.FrameReport)
	if !ok {
		return fmt.Errorf("unexpected frame payload %T", e.Data)
	}
	snap := BuildSnapshot(report, s.source)
	if s.http != nil {
		s.http.Store(snap)
	}
	// Latest wins: replace an unsent snapshot.
	select {
	case s.pending <- snap:
	default:
		select {
		case <-s.pending:
		default:
		}
		select {
		case s.pending <- snap:
		default:
		}
	}
	return nil
}

func (s *Server) broadcastLoop(ctx context.Context, pending <-chan Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-pending:
			s.hub.Broadcast(snap)
			if s.quic != nil {
				s.quic.Broadcast(snap)
			}
			s.sent.Add(1)
		}
	}
}

// Stop unsubscribes from the world and shuts the transports down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	s.logger.Info("stopping telemetry server")

	if s.sub != nil {
		_ = s.source.Bus().Unsubscribe(s.sub)
	}
	s.cancel()
	s.wg.Wait()

	var err error
	if s.http != nil {
		err = s.http.Stop(ctx)
	}
	s.hub.Close()
	if s.quic != nil {
		_ = s.quic.Close()
	}
	s.logger.Info("telemetry server stopped", log.Uint64("snapshots_sent", s.sent.Load()))
	return err
}

func (s *Server) shutdownTransports() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if s.http != nil {
		_ = s.http.Stop(ctx)
	}
	if s.quic != nil {
		_ = s.quic.Close()
	}
}

// Close stops the server if needed; a closed server cannot be restarted.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.running.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(ctx)
	}
	return nil
}

// Stats contains server statistics
type Stats struct {
	WebSocketClients int
	QUICClients      int
	SnapshotsSent    uint64
	Running          bool

	// BusTopics and BusSubscribers describe the world's event bus.
	BusTopics      int
	BusSubscribers int
}

func (s *Server) GetStats() Stats {
	st := Stats{
		WebSocketClients: s.hub.Clients(),
		SnapshotsSent:    s.sent.Load(),
		Running:          s.running.Load(),
	}
	if s.quic != nil {
		st.QUICClients = s.quic.Clients()
	}
	topics := s.source.Bus().GetTopics()
	st.BusTopics = len(topics)
	for _, t := range topics {
		st.BusSubscribers += t.Subs
	}
	return st
}

// WebSocketAddr is the bound websocket address, or "" when disabled.
func (s *Server) WebSocketAddr() string {
	if s.http == nil || s.http.Addr() == nil {
		return ""
	}
	return s.http.Addr().String()
}

func (s *Server) QUICAddr() string {
	if s.quic == nil || s.quic.Addr() == nil {
		return ""
	}
	return s.quic.Addr().String()
}
