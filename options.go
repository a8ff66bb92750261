package rics

import (
	"context"
	"time"
)

const (
	// DefaultUnixSocket is the default Unix-domain endpoint the server binds
	// and the client dials when no endpoint is configured.
	DefaultUnixSocket = "/tmp/rics.socket"
	// DefaultServerTCPAddr is the default TCP endpoint the server binds when
	// no Unix-domain socket is available and no endpoint is configured.
	DefaultServerTCPAddr = "localhost:7299"
	// DefaultClientTCPAddr is the default TCP endpoint the client dials when
	// no endpoint is configured. It intentionally differs from
	// DefaultServerTCPAddr (see SPEC_FULL.md §9): unifying the two would
	// silently change one side's default, so both sides are expected to pass
	// an explicit address whenever more than one daemon is involved.
	DefaultClientTCPAddr = "localhost:7899"

	// DefaultAcceptPoll is the backoff ceiling for a listener's accept loop
	// after a transient Accept error.
	DefaultAcceptPoll = 1 * time.Second
	// DefaultAcceptFastPoll is the first retry interval after a transient
	// Accept error; AdaptivePoll backs it off towards DefaultAcceptPoll.
	DefaultAcceptFastPoll = 10 * time.Millisecond

	// DefaultClientTimeout is the read/write deadline the client library
	// applies to every socket operation, matching the original daemon's
	// one-second request timeout.
	DefaultClientTimeout = 1 * time.Second

	// DefaultCanDropChance is the server's initial CAN frame drop
	// probability.
	DefaultCanDropChance = 0.0

	// DefaultIdleTimeout is how long a connection may go without a
	// successfully read request before the janitor closes it. Zero disables
	// idle reaping: a registered node's connection is expected to sit quiet
	// for long stretches (it may only ever receive forwarded packets and
	// never send a request of its own), and spec §5 terminates a handler
	// only on EOF or a decode error. Idle reaping is therefore opt-in via
	// WithIdleTimeout/config, never on by default.
	DefaultIdleTimeout = 0
)

// Option configures a Server or Client constructed by NewServer/Dial.
type Option func(*Config)

// Config holds runtime settings shared by the server and the client
// library. Its zero value is never used directly; construct one through
// defaultConfig and functional options.
type Config struct {
	ctx    context.Context
	cancel context.CancelFunc

	metrics Metrics

	endpoints []Endpoint

	acceptFastPoll time.Duration
	acceptPoll     time.Duration

	clientTimeout time.Duration
	idleTimeout   time.Duration

	canBroadcast  bool
	canDropChance float32
	strictRoutes  bool
}

// Endpoint is one address a Server listens on, or a Client dials.
type Endpoint struct {
	// Network is "unix" or "tcp", matching the net package's dial/listen
	// network names.
	Network string
	Address string
}

// Validate reports whether the configuration is usable.
func (c *Config) Validate() error {
	if len(c.endpoints) == 0 {
		return ErrNoEndpoints
	}
	for _, ep := range c.endpoints {
		if ep.Network != "unix" && ep.Network != "tcp" {
			return ErrInvalidConfig
		}
		if ep.Address == "" {
			return ErrInvalidConfig
		}
	}
	return nil
}

// defaultConfig returns a Config with library defaults: the given default
// endpoints (chosen by the caller, see defaultServerEndpoints and
// defaultClientEndpoint), CAN broadcast disabled, and no drop chance.
func defaultConfig(endpoints []Endpoint) *Config {
	ctx, cancel := context.WithCancel(context.Background())
	return &Config{
		ctx:            ctx,
		cancel:         cancel,
		metrics:        NewDefaultMetrics(),
		endpoints:      endpoints,
		acceptFastPoll: DefaultAcceptFastPoll,
		acceptPoll:     DefaultAcceptPoll,
		clientTimeout:  DefaultClientTimeout,
		idleTimeout:    DefaultIdleTimeout,
		canDropChance:  DefaultCanDropChance,
	}
}

// applyConfig builds a runtime config by applying opts on top of defaults.
func applyConfig(endpoints []Endpoint, opts []Option) *Config {
	cfg := defaultConfig(endpoints)
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithEndpoints overrides the listener/dial endpoints entirely.
func WithEndpoints(endpoints ...Endpoint) Option {
	return func(c *Config) {
		if len(endpoints) > 0 {
			c.endpoints = endpoints
		}
	}
}

// WithAcceptPoll sets the steady-state backoff ceiling for a listener's
// accept-retry loop.
func WithAcceptPoll(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.acceptPoll = d
		}
	}
}

// WithAcceptFastPoll sets the first retry interval after a transient Accept
// error.
func WithAcceptFastPoll(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.acceptFastPoll = d
		}
	}
}

// WithClientTimeout sets the read/write deadline the client library applies
// to socket operations. Zero or negative disables the deadline.
func WithClientTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.clientTimeout = d
	}
}

// WithIdleTimeout sets how long a connection may go without a successfully
// read request before the server's janitor closes it. Zero or negative
// disables idle reaping.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.idleTimeout = d
	}
}

// WithCanBroadcast sets the server's initial CAN-broadcast flag.
func WithCanBroadcast(v bool) Option {
	return func(c *Config) {
		c.canBroadcast = v
	}
}

// WithCanDropChance sets the server's initial CAN frame drop probability.
// A value outside [0, 1] is ignored.
func WithCanDropChance(v float32) Option {
	return func(c *Config) {
		if validChance(v) {
			c.canDropChance = v
		}
	}
}

// WithStrictRoutes records a destination-existence validation setting in
// Config (off by default). Nothing reads it: NodeTable.AddRoute never checks
// that the destination id exists, whether or not this option is set, so a
// route may point at an id whose peer has not connected yet.
func WithStrictRoutes(v bool) Option {
	return func(c *Config) {
		c.strictRoutes = v
	}
}

// WithContext sets the base context for a Server's lifetime. Canceling it
// stops all listeners.
func WithContext(ctx context.Context) Option {
	return func(c *Config) {
		if ctx != nil {
			c.ctx, c.cancel = context.WithCancel(ctx)
		}
	}
}

// WithMetrics sets a custom metrics sink. If not provided, DefaultMetrics is
// used.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}
