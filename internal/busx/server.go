// Package busx owns the bus session: an embedded NATS server with
// JetStream (so the rest of the control-plane never speaks to an
// external broker process in development or tests), plus BusBrokerCore,
// the multi-subject fan-in dispatcher described in spec.md §4.6.
package busx

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const (
	// DefaultMaxMem is the JetStream in-memory limit (256 MiB).
	DefaultMaxMem = 256 << 20
	// DefaultMaxStore is the JetStream file storage limit (1 GiB).
	DefaultMaxStore = 1 << 30
)

// ServerConfig configures the embedded bus server.
type ServerConfig struct {
	Port     int
	StoreDir string
}

// Server wraps an embedded NATS server and an in-process connection used
// for the control-plane's own publish/subscribe traffic.
type Server struct {
	ns   *server.Server
	conn *nats.Conn
	port int
}

// Start brings up the embedded bus server and connects to it in-process.
// This is an Unrecoverable failure per spec.md §7 if it cannot complete:
// callers should treat a non-nil error as fatal at startup.
func Start(cfg ServerConfig) (*Server, error) {
	if err := os.MkdirAll(cfg.StoreDir, 0o700); err != nil {
		return nil, fmt.Errorf("busx: create store dir: %w", err)
	}

	opts := &server.Options{
		ServerName:         "habitat-controlplane",
		Host:               "127.0.0.1",
		Port:               cfg.Port,
		JetStream:          true,
		JetStreamMaxMemory: DefaultMaxMem,
		JetStreamMaxStore:  DefaultMaxStore,
		StoreDir:           cfg.StoreDir,
		NoLog:              true,
		NoSigs:             true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("busx: create bus server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("busx: bus server not ready within 10s")
	}

	port := ns.Addr().(*net.TCPAddr).Port
	nc, err := nats.Connect(fmt.Sprintf("nats://127.0.0.1:%d", port),
		nats.Name("habitat-controlplane-internal"))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("busx: in-process connect: %w", err)
	}

	return &Server{ns: ns, conn: nc, port: port}, nil
}

// Conn returns the in-process NATS connection.
func (s *Server) Conn() *nats.Conn { return s.conn }

// Port returns the TCP port the embedded server is listening on.
func (s *Server) Port() int { return s.port }

// Shutdown drains the in-process connection and stops the embedded server.
func (s *Server) Shutdown() {
	if s.conn != nil {
		s.conn.Drain()
		s.conn.Close()
	}
	if s.ns != nil {
		s.ns.Shutdown()
		s.ns.WaitForShutdown()
	}
}
