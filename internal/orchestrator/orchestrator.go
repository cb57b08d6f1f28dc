// Package orchestrator implements the Connection Orchestrator (spec.md
// §4.H): accept/dial and spawn a per-client worker. The handshake itself is
// run by the Handler (internal/transfer), not by this package.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/jumpbeam/jumpbeam/internal/xerrors"
)

// Handler processes one accepted or dialed connection. Handlers instantiate
// Transfer Engines (spec.md §4.H).
type Handler func(ctx context.Context, conn net.Conn) error

// Server wraps a listener and tolerates per-accept errors without
// terminating the accept loop.
type Server struct {
	ln     net.Listener
	log    *slog.Logger
	closed chan struct{}
}

// RunServer binds port, listens, and for each accepted socket spawns a
// goroutine that runs handler(conn). The accept loop logs and continues on
// per-accept errors and exits when ctx is cancelled or Stop is called.
func RunServer(ctx context.Context, addr string, handler Handler, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "listen", err)
	}

	s := &Server{ln: ln, log: log, closed: make(chan struct{})}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	go s.acceptLoop(ctx, handler)
	return s, nil
}

// Addr returns the server's bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Stop closes the listener, unblocking the accept loop. Idempotent.
func (s *Server) Stop() {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
		_ = s.ln.Close()
	}
}

func (s *Server) acceptLoop(ctx context.Context, handler Handler) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed, continuing", "error", err)
			continue
		}

		go func() {
			if herr := handler(ctx, conn); herr != nil {
				s.log.Error("session failed", "peer", conn.RemoteAddr(), "error", herr)
			}
		}()
	}
}

// DialOptions configures RunClient's connect retries.
type DialOptions struct {
	ConnectTimeout time.Duration // default 10s
	Retries        int           // default 3
	Backoff        time.Duration // default 1s
}

// DefaultDialOptions returns spec.md §6's client dial defaults.
func DefaultDialOptions() DialOptions {
	return DialOptions{ConnectTimeout: 10 * time.Second, Retries: 3, Backoff: 1 * time.Second}
}

// RunClient dials host:port with a connect timeout and retry/backoff, then
// invokes handler on the established connection.
func RunClient(ctx context.Context, addr string, opts DialOptions, handler Handler) error {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultDialOptions().ConnectTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultDialOptions().Retries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultDialOptions().Backoff
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return xerrors.Wrap(xerrors.Cancelled, "dial retry cancelled", ctx.Err())
			case <-time.After(opts.Backoff):
			}
		}

		dialer := net.Dialer{Timeout: opts.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return handler(ctx, conn)
	}
	return xerrors.Wrap(xerrors.Io, "dial failed after retries", lastErr)
}
