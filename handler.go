package rics

import (
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atsika/rics/wire"
	"github.com/google/uuid"
)

// lockedWriter serializes frame writes onto a single net.Conn. One instance
// is created per accepted connection and used for every write that
// connection's socket ever sees: the handler's own query replies, and, if it
// registers as a node, the Forwarder's deliveries from other connections'
// goroutines. This is the one mutex in the package that is ever held across
// a blocking call (the write itself); it is never taken while the
// NodeTable's lock is held, matching the documented lock order table-lock
// -> writer-lock.
type lockedWriter struct {
	conn    net.Conn
	mu      sync.Mutex
	metrics Metrics
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.conn.Write(p)
	if n > 0 {
		w.metrics.IncrementBytesSent(int64(n))
	}
	return n, err
}

// countingReader tallies every byte read off a connection's socket, so the
// handler can report BytesReceived without ReadEnvelope needing to know
// about metrics itself.
type countingReader struct {
	conn    net.Conn
	metrics Metrics
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.conn.Read(p)
	if n > 0 {
		r.metrics.IncrementBytesReceived(int64(n))
	}
	return n, err
}

// connHandler drives one accepted connection through handshake, request
// loop and teardown.
type connHandler struct {
	conn      net.Conn
	writer    *lockedWriter
	reader    *countingReader
	table     *NodeTable
	drop      *DropInjector
	forwarder *Forwarder
	metrics   Metrics
	traceID   string

	node    int32
	hasNode bool

	lastSeen atomic.Int64
}

func newConnHandler(conn net.Conn, table *NodeTable, drop *DropInjector, forwarder *Forwarder, metrics Metrics) *connHandler {
	h := &connHandler{
		conn:      conn,
		writer:    &lockedWriter{conn: conn, metrics: metrics},
		reader:    &countingReader{conn: conn, metrics: metrics},
		table:     table,
		drop:      drop,
		forwarder: forwarder,
		metrics:   metrics,
		traceID:   uuid.New().String(),
	}
	h.touch()
	return h
}

// touch records the current time as this connection's last sign of life.
// The janitor compares against it to find connections to reap.
func (h *connHandler) touch() {
	h.lastSeen.Store(time.Now().UnixNano())
}

// IdleSince reports how long it has been since this connection last read a
// full request (or, before the first one, since it was accepted).
func (h *connHandler) IdleSince() time.Duration {
	return time.Since(time.Unix(0, h.lastSeen.Load()))
}

// Close closes the underlying connection, unblocking the handler's Serve
// loop so it can run its own teardown. Used by the janitor to reap
// connections that have gone idle past the configured timeout.
func (h *connHandler) Close() error {
	return h.conn.Close()
}

// Serve runs the connection's full lifecycle. It returns ErrDaemonQuit if
// the peer sent a DAEMON_QUIT query; any other return value is a plain
// close (the caller should not treat it as a server-wide failure).
func (h *connHandler) Serve() error {
	defer h.teardown()

	h.metrics.IncrementConnectionsAccepted()

	if err := h.handshake(); err != nil {
		log.Printf("rics[%s]: handshake: %v", h.traceID, err)
		return nil
	}

	for {
		var req wire.Request
		if err := wire.ReadEnvelope(h.reader, &req); err != nil {
			if err != io.EOF {
				log.Printf("rics[%s]: invalid message, closing connection: %v", h.traceID, err)
			}
			return nil
		}
		h.touch()
		h.metrics.IncrementRequestsHandled()

		if err := h.dispatch(req); err != nil {
			return err
		}
	}
}

// handshake reads the RICS_Connection envelope. A decode error or closed
// connection here is returned to Serve, which then tears the connection
// down without entering the request loop.
func (h *connHandler) handshake() error {
	var conn wire.Connection
	if err := wire.ReadEnvelope(h.reader, &conn); err != nil {
		return err
	}
	h.touch()
	if conn.ConnectAsNode {
		h.node = h.table.NewNode(h.writer)
		h.hasNode = true
	}
	return nil
}

func (h *connHandler) dispatch(req wire.Request) error {
	switch {
	case req.HasSetName:
		if h.hasNode {
			h.table.Rename(h.node, req.SetName)
		}

	case req.HasQuery:
		return h.dispatchQuery(req.Query)

	case req.HasData:
		h.forwarder.Forward(req.Data, h.nodePtr())

	case req.HasAddRoute:
		h.table.AddRoute(req.AddRoute.From, req.AddRoute.To)

	case req.HasDelRoute:
		h.table.DelRoute(req.DelRoute.From, req.DelRoute.To)

	case req.HasCanDropChance:
		h.drop.SetChance(req.CanDropChance)

	default:
		log.Printf("rics[%s]: empty or unrecognized request, ignoring", h.traceID)
	}
	return nil
}

func (h *connHandler) dispatchQuery(q wire.Query) error {
	switch q {
	case wire.QueryNull:
		// no-op

	case wire.QueryListSink:
		resp := wire.Response{HasIDList: true}
		for _, n := range h.table.List() {
			resp.IDList.IDs = append(resp.IDList.IDs, wire.ResponseID{ID: n.ID, Name: n.Name})
		}
		return h.reply(resp)

	case wire.QueryWhoAmI:
		resp := wire.Response{}
		if h.hasNode {
			resp.HasNode = true
			resp.Node = h.node
		}
		return h.reply(resp)

	case wire.QuerySetFlagCANBroadcast:
		h.table.SetCanBroadcast(true)

	case wire.QueryClearFlagCANBroadcast:
		h.table.SetCanBroadcast(false)

	case wire.QueryDaemonQuit:
		return ErrDaemonQuit

	default:
		log.Printf("rics[%s]: unrecognized query %d, ignoring", h.traceID, q)
	}
	return nil
}

func (h *connHandler) reply(resp wire.Response) error {
	if err := wire.WriteEnvelope(h.writer, &resp); err != nil {
		log.Printf("rics[%s]: write response: %v", h.traceID, err)
	}
	return nil
}

func (h *connHandler) nodePtr() *int32 {
	if !h.hasNode {
		return nil
	}
	return &h.node
}

func (h *connHandler) teardown() {
	if h.hasNode {
		h.table.Delete(h.node)
	}
	h.conn.Close()
}
