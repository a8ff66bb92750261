package rics

import (
	"io"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/atsika/rics/wire"
	"github.com/pkg/errors"
)

// Client is the RICS client library: a thin wrapper around a single
// net.Conn that speaks the Request/Response protocol, plus the small amount
// of client-side state (cached node list, own node id) the high-level
// convenience methods need.
type Client struct {
	conn    net.Conn
	timeout time.Duration

	writeMu sync.Mutex

	node    int32
	hasNode bool

	namesMu sync.RWMutex
	names   map[int32]string

	listening bool
}

func defaultClientEndpoint() Endpoint {
	if runtime.GOOS == "windows" {
		return Endpoint{Network: "tcp", Address: DefaultClientTCPAddr}
	}
	return Endpoint{Network: "unix", Address: DefaultUnixSocket}
}

// Dial opens a connection to the server and returns a Client ready to call
// Connect on. With no WithEndpoints option, it dials the platform default
// (the Unix-domain socket on platforms that support it, otherwise the
// client's default TCP address).
func Dial(opts ...Option) (*Client, error) {
	cfg := applyConfig([]Endpoint{defaultClientEndpoint()}, opts)
	ep := cfg.endpoints[0]

	conn, err := net.Dial(ep.Network, ep.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "rics: dial %s %s", ep.Network, ep.Address)
	}

	return &Client{
		conn:    conn,
		timeout: cfg.clientTimeout,
		names:   make(map[int32]string),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) deadline() time.Time {
	if c.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.timeout)
}

func (c *Client) write(msg wire.Marshaler) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(c.deadline())
	return wire.WriteEnvelope(c.conn, msg)
}

func (c *Client) read(msg wire.Unmarshaler) error {
	if c.listening {
		return errors.New("rics: client is in ListenResponse mode, direct reads are unavailable")
	}
	c.conn.SetReadDeadline(c.deadline())
	return wire.ReadEnvelope(c.conn, msg)
}

// Connect sends the initial handshake. Pass asNode true to register as a
// routable node (the server allocates an id and keeps this connection's
// writer in its table); pass false to open an info-only connection (e.g. a
// CLI that only issues queries).
func (c *Client) Connect(asNode bool) error {
	return c.write(&wire.Connection{ConnectAsNode: asNode})
}

// WhoAmI asks the server for this connection's node id and caches it.
// The result is 0 if this connection never registered as a node.
func (c *Client) WhoAmI() (int32, error) {
	if err := c.write(&wire.Request{HasQuery: true, Query: wire.QueryWhoAmI}); err != nil {
		return 0, err
	}
	var resp wire.Response
	if err := c.read(&resp); err != nil {
		return 0, err
	}
	if resp.HasNode {
		c.node = resp.Node
		c.hasNode = true
	}
	return c.node, nil
}

// SetCanDropChance updates the server's CAN frame drop probability.
func (c *Client) SetCanDropChance(v float32) error {
	return c.write(&wire.Request{HasCanDropChance: true, CanDropChance: v})
}

// SetCanBroadcast toggles the server's CAN-broadcast flag. The server sends
// no confirmation.
func (c *Client) SetCanBroadcast(v bool) error {
	q := wire.QueryClearFlagCANBroadcast
	if v {
		q = wire.QuerySetFlagCANBroadcast
	}
	return c.write(&wire.Request{HasQuery: true, Query: q})
}

// ListNodes fetches the current node id/name table from the server and
// caches it for NodeFromStringCached/NodeFromNameCached.
func (c *Client) ListNodes() (map[int32]string, error) {
	if err := c.write(&wire.Request{HasQuery: true, Query: wire.QueryListSink}); err != nil {
		return nil, err
	}
	var resp wire.Response
	if err := c.read(&resp); err != nil {
		return nil, err
	}

	names := make(map[int32]string, len(resp.IDList.IDs))
	for _, id := range resp.IDList.IDs {
		names[id.ID] = id.Name
	}

	c.namesMu.Lock()
	c.names = names
	c.namesMu.Unlock()

	return names, nil
}

// NodeFromNameCached looks up every node id currently cached under name,
// without contacting the server.
func (c *Client) NodeFromNameCached(name string) []int32 {
	c.namesMu.RLock()
	defer c.namesMu.RUnlock()

	var ids []int32
	for id, n := range c.names {
		if n == name {
			ids = append(ids, id)
		}
	}
	return ids
}

// NodeFromName refreshes the node cache via ListNodes and then looks up
// name against it.
func (c *Client) NodeFromName(name string) ([]int32, error) {
	if _, err := c.ListNodes(); err != nil {
		return nil, err
	}
	return c.NodeFromNameCached(name), nil
}

// NodeFromStringCached resolves s to a node id using only cached state: an
// integer literal resolves to itself (the server is never asked whether
// that id actually exists), otherwise s is looked up by name in the cached
// node list. ok is false if s is neither a valid integer nor a cached name.
func (c *Client) NodeFromStringCached(s string) (id int32, ok bool) {
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(n), true
	}
	ids := c.NodeFromNameCached(s)
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// NodeFromString resolves s to a node id like NodeFromStringCached, except
// that a name lookup refreshes the node cache from the server first.
func (c *Client) NodeFromString(s string) (id int32, ok bool) {
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(n), true
	}
	ids, err := c.NodeFromName(s)
	if err != nil || len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// AddRoute resolves from with a live lookup (NodeFromString) and to with a
// cached lookup (NodeFromStringCached) -- this asymmetry matches the
// original client library and lets a caller add_route("me", "1") right
// after list_nodes() without a second round trip to resolve the numeric
// target. It reports false without sending anything if either side fails
// to resolve.
func (c *Client) AddRoute(from, to string) (bool, error) {
	f, ok := c.NodeFromString(from)
	if !ok {
		return false, ErrUnknownNode
	}
	t, ok := c.NodeFromStringCached(to)
	if !ok {
		return false, ErrUnknownNode
	}
	return true, c.write(&wire.Request{HasAddRoute: true, AddRoute: wire.Route{From: f, To: t}})
}

// DelRoute resolves from and to exactly like AddRoute and sends a del_route
// request.
func (c *Client) DelRoute(from, to string) (bool, error) {
	f, ok := c.NodeFromString(from)
	if !ok {
		return false, ErrUnknownNode
	}
	t, ok := c.NodeFromStringCached(to)
	if !ok {
		return false, ErrUnknownNode
	}
	return true, c.write(&wire.Request{HasDelRoute: true, DelRoute: wire.Route{From: f, To: t}})
}

// SendPacketTo sends data to an explicit target node, overriding routing.
func (c *Client) SendPacketTo(data wire.Data, target int32) error {
	data.HasTarget = true
	data.Target = target
	return c.write(&wire.Request{HasData: true, Data: data})
}

// SendPacket sends data along the sender's configured routes (or CAN
// broadcast, if enabled and data is CAN-typed), with no explicit target.
func (c *Client) SendPacket(data wire.Data) error {
	data.HasTarget = false
	return c.write(&wire.Request{HasData: true, Data: data})
}

// GetResponse blocks for the next Response envelope. It returns ErrNoResponse
// if the server closes the connection, or the read deadline elapses, before
// a response arrives; it returns an error directly if ListenResponse has
// already taken ownership of the read side.
func (c *Client) GetResponse() (*wire.Response, error) {
	var resp wire.Response
	if err := c.read(&resp); err != nil {
		if err == io.EOF || errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, ErrNoResponse
		}
		return nil, err
	}
	return &resp, nil
}

// GetPacket blocks for the next Response that carries a Data payload,
// discarding any other response in between.
func (c *Client) GetPacket() (*wire.Data, error) {
	for {
		resp, err := c.GetResponse()
		if err != nil {
			return nil, err
		}
		if resp.HasData {
			return &resp.Data, nil
		}
	}
}

// Node returns this connection's own node id. It returns ErrNotConnected if
// Connect was never called with asNode true (WhoAmI must be called at least
// once first to populate it).
func (c *Client) Node() (int32, error) {
	if !c.hasNode {
		return 0, ErrNotConnected
	}
	return c.node, nil
}

// ListenResponse hands the connection's read side to a background goroutine
// that decodes every incoming Response and publishes it on the returned
// channel, closing the channel when the connection ends. After this call,
// GetResponse and GetPacket return an error: the read side can no longer be
// used directly, matching the original client library's one-shot channel
// handoff.
func (c *Client) ListenResponse() (<-chan wire.Response, error) {
	if c.listening {
		return nil, errors.New("rics: ListenResponse already called")
	}
	c.listening = true

	ch := make(chan wire.Response)
	go func() {
		defer close(ch)
		for {
			var resp wire.Response
			c.conn.SetReadDeadline(time.Time{})
			if err := wire.ReadEnvelope(c.conn, &resp); err != nil {
				return
			}
			ch <- resp
		}
	}()
	return ch, nil
}

// CANPacket builds a Data envelope carrying a CAN frame: id is the CAN
// arbitration id, payload its bytes.
func CANPacket(id int32, payload []byte) wire.Data {
	return wire.Data{Type: wire.DataTypeCAN, ID: id, Payload: payload}
}

// StreamPacket builds a Data envelope carrying an opaque byte stream.
func StreamPacket(payload []byte) wire.Data {
	return wire.Data{Type: wire.DataTypeStream, Payload: payload}
}
