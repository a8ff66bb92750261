package rics

import "github.com/pkg/errors"

// Configuration errors, returned by Config.Validate.
var (
	ErrInvalidConfig = errors.New("rics: invalid configuration")
	ErrNoEndpoints   = errors.New("rics: no listener endpoints configured")
)

// Protocol and operation errors surfaced by the client library.
var (
	// ErrNotConnected is returned by Client.Node when no node id is known
	// yet: the client never connected as a node, or WhoAmI has not yet
	// returned one.
	ErrNotConnected = errors.New("rics: client did not connect as a node")
	// ErrUnknownNode is returned when a name cannot be resolved against the
	// server's node list.
	ErrUnknownNode = errors.New("rics: node name not found")
	// ErrNoResponse is returned by GetPacket when the server closes the
	// connection, or the read deadline elapses, before a data packet arrives.
	ErrNoResponse = errors.New("rics: no response received")
)

// ErrDaemonQuit is the sentinel handler.go returns, and Server.handle in
// server.go checks for, when a client sends the DAEMON_QUIT query. The
// whole daemon process then exits with status 2, not merely the one
// connection.
var ErrDaemonQuit = errors.New("rics: daemon quit requested")
