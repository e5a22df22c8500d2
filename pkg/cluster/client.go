// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package cluster

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dxwatch/pkg/model"
)

// State is the session state of the cluster client
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Event is a state-change notification surfaced to the caller. Err is set
// when the transition was caused by a failure.
type Event struct {
	State State
	Err   error
	Time  time.Time
}

// ConnectionError wraps a network failure that drops the session. It drives
// the reconnect policy and is never fatal to the process.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cluster %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Dialer abstracts the transport so the session state machine is testable
// without real sockets. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// DefaultLoginCommands is the setup sequence sent after announcing the
// callsign, per VE7CC server convention: raw feed, CC11 machine format,
// skimmer spots on, dedupe off.
var DefaultLoginCommands = []string{
	"set/nofilter",
	"set/ve7cc",
	"set/skimmer",
	"set/nodedupe",
}

// Config contains cluster client configuration
type Config struct {
	Addr          string
	Callsign      string
	LoginCommands []string // nil means DefaultLoginCommands
	AutoReconnect bool

	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration // max silence before the session is dropped
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// CommandInterval paces outbound commands; zero disables pacing.
	CommandInterval time.Duration

	Dialer Dialer
}

func (cfg *Config) applyDefaults() {
	if cfg.LoginCommands == nil {
		cfg.LoginCommands = DefaultLoginCommands
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 1 * time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{Timeout: cfg.DialTimeout}
	}
}

// Client maintains a single logical session against a spot-feed server.
// States move Disconnected -> Connecting -> Connected, back to Disconnected
// on any read/write error or idle timeout, and through Disconnecting on an
// explicit user disconnect. Reconnection always targets the configured
// endpoint; changing servers requires a new client.
type Client struct {
	cfg     Config
	limiter *rate.Limiter

	mu     sync.Mutex
	state  State
	conn   net.Conn
	sendCh chan string
	cancel context.CancelFunc
	done   chan struct{}

	lines  chan string
	events chan Event
}

// NewClient creates a cluster client for the configured endpoint
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()

	c := &Client{
		cfg:    cfg,
		lines:  make(chan string, 256),
		events: make(chan Event, 16),
	}
	if cfg.CommandInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.CommandInterval), 3)
	}
	return c
}

// Lines returns the channel of raw inbound lines, forwarded in order as
// they arrive. The caller owns routing them to the spot parser.
func (c *Client) Lines() <-chan string {
	return c.lines
}

// Events returns the state-change event channel. Events are dropped rather
// than block the session when the caller falls behind.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the current session state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the session loop. It returns immediately; progress is
// reported through Events. Calling Connect on a session that is not
// disconnected is an error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	// done outlives the Disconnected state across backoff waits; the
	// session loop is still running until it is closed.
	if c.state != StateDisconnected || c.done != nil {
		c.mu.Unlock()
		return model.ErrAlreadyRunning
	}
	sctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.sendCh = make(chan string, 32)
	c.mu.Unlock()

	go c.run(sctx)
	return nil
}

// Disconnect ends the session and cancels any pending reconnect attempt.
// It blocks until the session loop has fully stopped.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected && c.done == nil {
		c.mu.Unlock()
		return
	}
	if c.state == StateConnected {
		c.setStateLocked(StateDisconnecting, nil)
	}
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
}

// Send queues an outbound command for the serialized writer. Commands are
// written verbatim, newline-terminated. Fails when not connected.
func (c *Client) Send(cmd string) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return model.ErrNotConnected
	}
	ch := c.sendCh
	c.mu.Unlock()

	select {
	case ch <- cmd:
		return nil
	default:
		return fmt.Errorf("command queue full: %w", model.ErrNotConnected)
	}
}

// run is the session loop: dial, run the session, and when auto-reconnect
// is enabled retry the same endpoint with capped exponential backoff. The
// backoff wait is cancellable by Disconnect.
func (c *Client) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		done := c.done
		c.done = nil
		c.cancel = nil
		c.mu.Unlock()
		close(done)
	}()

	backoff := c.cfg.InitialBackoff
	for {
		c.setState(StateConnecting, nil)

		conn, err := c.cfg.Dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			err = &ConnectionError{Op: "dial", Err: err}
		} else {
			backoff = c.cfg.InitialBackoff
			err = c.session(ctx, conn)
		}

		if ctx.Err() != nil {
			c.setState(StateDisconnected, nil)
			return
		}

		c.setState(StateDisconnected, err)
		if !c.cfg.AutoReconnect {
			return
		}

		log.Printf("WARN: cluster session to %s lost, reconnecting in %s: %v", c.cfg.Addr, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// session runs one connected session to completion and returns the error
// that ended it.
func (c *Client) session(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	if err := c.login(conn); err != nil {
		return &ConnectionError{Op: "login", Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.setStateLocked(StateConnected, nil)
	sendCh := c.sendCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	wctx, wcancel := context.WithCancel(ctx)
	defer wcancel()
	go c.writeLoop(wctx, conn, sendCh)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout)); err != nil {
			return &ConnectionError{Op: "deadline", Err: err}
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return &ConnectionError{Op: "read", Err: err}
			}
			return &ConnectionError{Op: "read", Err: fmt.Errorf("connection closed by server")}
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		select {
		case c.lines <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// login announces the callsign and sends the setup command sequence
func (c *Client) login(conn net.Conn) error {
	commands := append([]string{c.cfg.Callsign}, c.cfg.LoginCommands...)
	for _, cmd := range commands {
		if err := c.write(conn, cmd); err != nil {
			return err
		}
	}
	return nil
}

// writeLoop serializes outbound commands onto the connection. A write
// failure closes the connection so the read loop ends the session.
func (c *Client) writeLoop(ctx context.Context, conn net.Conn, sendCh <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-sendCh:
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if err := c.write(conn, cmd); err != nil {
				log.Printf("ERROR: cluster write failed: %v", err)
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) write(conn net.Conn, line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := conn.Write([]byte(line))
	return err
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s, err)
}

func (c *Client) setStateLocked(s State, err error) {
	if c.state == s && err == nil {
		return
	}
	c.state = s

	// Never block the session on a slow event consumer
	select {
	case c.events <- Event{State: s, Err: err, Time: time.Now()}:
	default:
	}
}
