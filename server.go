package rics

import (
	"context"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Server is the RICS routing daemon: a node table, a drop injector, a
// forwarder, and a fleet of listeners accepting on any number of
// Unix-domain and TCP endpoints concurrently.
type Server struct {
	cfg       *Config
	table     *NodeTable
	drop      *DropInjector
	forwarder *Forwarder

	conns sync.Map // traceID string -> *connHandler, swept by janitor
}

// NewServer builds a Server over the given endpoints and options. If no
// endpoints are supplied via WithEndpoints, the default Unix-domain socket
// is used on platforms that support it, otherwise DefaultServerTCPAddr.
func NewServer(opts ...Option) *Server {
	cfg := applyConfig(defaultServerEndpoints(), opts)

	table := NewNodeTable()
	table.SetCanBroadcast(cfg.canBroadcast)
	drop := NewDropInjector(cfg.canDropChance)

	return &Server{
		cfg:       cfg,
		table:     table,
		drop:      drop,
		forwarder: NewForwarder(table, drop, cfg.metrics),
	}
}

func defaultServerEndpoints() []Endpoint {
	if runtime.GOOS == "windows" {
		return []Endpoint{{Network: "tcp", Address: DefaultServerTCPAddr}}
	}
	return []Endpoint{{Network: "unix", Address: DefaultUnixSocket}}
}

// Serve binds every configured endpoint and blocks, accepting connections,
// until the Server's context (see WithContext) is canceled or a listener
// fails to bind. A bind failure on any endpoint is fatal to the whole
// Server: Serve returns that error and stops every other listener too,
// since a partially bound daemon is rarely the operator's intent.
func (s *Server) Serve() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(s.cfg.ctx)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	for _, ep := range s.cfg.endpoints {
		ep := ep
		ln, err := net.Listen(ep.Network, ep.Address)
		if err != nil {
			return errors.Wrapf(err, "rics: bind %s %s", ep.Network, ep.Address)
		}
		if ep.Network == "unix" {
			defer os.Remove(ep.Address)
		}

		group.Go(func() error {
			return s.acceptLoop(gctx, ln)
		})
	}

	if s.cfg.idleTimeout > 0 {
		group.Go(func() error {
			s.janitor(gctx)
			return nil
		})
	}

	return group.Wait()
}

// acceptLoop runs one listener's accept cycle until ctx is canceled. A
// transient Accept error backs off via AdaptivePoll instead of busy-looping;
// ctx cancellation closes the listener to unblock Accept.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	poll := NewAdaptivePoll(s.cfg.acceptFastPoll, s.cfg.acceptPoll)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			poll.Sleep()
			continue
		}
		poll.Reset()

		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	h := newConnHandler(conn, s.table, s.drop, s.forwarder, s.cfg.metrics)
	s.conns.Store(h.traceID, h)
	defer s.conns.Delete(h.traceID)

	if err := h.Serve(); err == ErrDaemonQuit {
		os.Exit(2)
	}
}

// janitor periodically closes connections that have gone idle past the
// configured timeout, ticking at half that interval. Grounded on the
// teacher's Listener.janitor (aznet.go), adapted from its peerLastSeen/
// closed/closedRead bookkeeping to connHandler's single lastSeen timestamp.
func (s *Server) janitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.conns.Range(func(key, value any) bool {
				h := value.(*connHandler)
				if h.IdleSince() > s.cfg.idleTimeout {
					_ = h.Close()
					s.conns.Delete(key)
				}
				return true
			})
		}
	}
}

// Close cancels the Server's context, unblocking every acceptLoop and
// returning Serve. It does not close already-accepted connections; those
// tear down on their own as their peers disconnect.
func (s *Server) Close() error {
	s.cfg.cancel()
	return nil
}

// Metrics returns the server's metrics sink, for an exporter endpoint to
// read.
func (s *Server) Metrics() Metrics {
	return s.cfg.metrics
}
