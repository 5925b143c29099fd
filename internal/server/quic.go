package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/bigspace/internal/core/observability/log"
	"github.com/zeusync/bigspace/pkg/encoding"
	"github.com/zeusync/bigspace/pkg/generic"
)

// ALPN is the application protocol negotiated by telemetry QUIC clients.
const ALPN = "bigspace-telemetry"

type quicClient struct {
	conn   *quic.Conn
	stream *quic.Stream
}

// QUICSink streams newline delimited JSON snapshots to QUIC clients. Each
// accepted connection gets one server opened stream, visible to the client
// once the first snapshot is written.
type QUICSink struct {
	listener     *quic.Listener
	writeTimeout time.Duration
	logger       log.Log

	buffers *generic.Pool[*bytes.Buffer]

	mu      sync.Mutex
	clients map[*quicClient]struct{}
	wg      sync.WaitGroup
}

// hotBuffers line buffers are allocated up front so the first broadcasts
// do not allocate.
const hotBuffers = 4

func NewQUICSink(writeTimeout time.Duration, logger log.Log) *QUICSink {
	if logger == nil {
		logger = log.NewNop()
	}
	return &QUICSink{
		writeTimeout: writeTimeout,
		logger:       logger.With(log.String("component", "quic")),
		buffers: generic.NewHotPool(
			func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
			func(b *bytes.Buffer) { b.Reset() },
			hotBuffers,
		),
		clients: make(map[*quicClient]struct{}),
	}
}

// Listen binds addr and starts accepting clients until ctx is done or the
// sink is closed.
func (s *QUICSink) Listen(ctx context.Context, addr string, tlsConf *tls.Config) error {
	if tlsConf == nil {
		var err error
		if tlsConf, err = generateTLSConfig(); err != nil {
			return err
		}
	}
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}
	s.listener = ln
	s.logger.Info("quic telemetry listening", log.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections(ctx)
	}()
	return nil
}

func (s *QUICSink) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *QUICSink) acceptConnections(ctx context.Context) {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, quic.ErrServerClosed) {
				s.logger.Warn("quic accept failed", log.Error(err))
			}
			return
		}
		stream, err := conn.OpenStreamSync(ctx)
		if err != nil {
			s.logger.Warn("quic open stream failed",
				log.String("remote_addr", conn.RemoteAddr().String()), log.Error(err))
			_ = conn.CloseWithError(0, "stream unavailable")
			continue
		}
		c := &quicClient{conn: conn, stream: stream}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		s.logger.Debug("quic client connected", log.String("remote_addr", conn.RemoteAddr().String()))

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			<-conn.Context().Done()
			s.drop(c)
		}()
	}
}

func (s *QUICSink) drop(c *quicClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		_ = c.conn.CloseWithError(0, "closed")
		s.logger.Debug("quic client disconnected", log.String("remote_addr", c.conn.RemoteAddr().String()))
	}
}

// Broadcast writes snap as one JSON line to every client.
func (s *QUICSink) Broadcast(snap Snapshot) {
	buf := s.buffers.Get()
	defer s.buffers.Put(buf)
	if err := encoding.WriteLine(buf, &snap); err != nil {
		s.logger.Error("encode snapshot", log.Frame(snap.Frame), log.Error(err))
		return
	}
	line := buf.Bytes()

	s.mu.Lock()
	clients := make([]*quicClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.stream.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if _, err := c.stream.Write(line); err != nil {
			s.logger.Debug("quic write failed", log.Error(err))
			s.drop(c)
		}
	}
}

func (s *QUICSink) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting and disconnects every client.
func (s *QUICSink) Close() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*quicClient]struct{})
	s.mu.Unlock()
	for c := range clients {
		_ = c.conn.CloseWithError(0, "server stopping")
	}
	s.wg.Wait()
	return err
}

// generateTLSConfig creates a self-signed certificate for localhost.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"BigSpace"},
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:    []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
