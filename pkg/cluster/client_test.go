package cluster

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"dxwatch/pkg/model"
)

// pipeDialer hands the session loop the client end of a net.Pipe and makes
// the server end available to the test.
type pipeDialer struct {
	mu       sync.Mutex
	attempts int
	fail     bool
	conns    chan net.Conn
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{conns: make(chan net.Conn, 4)}
}

func (d *pipeDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.mu.Lock()
	d.attempts++
	fail := d.fail
	d.mu.Unlock()

	if fail {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	d.conns <- server
	return client, nil
}

func (d *pipeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func accept(t *testing.T, d *pipeDialer) net.Conn {
	t.Helper()
	select {
	case conn := <-d.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a connection attempt")
		return nil
	}
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	return strings.TrimRight(line, "\n")
}

func writeLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

// consumeLogin reads the announce sequence and verifies the callsign line
func consumeLogin(t *testing.T, conn net.Conn, r *bufio.Reader, callsign string) {
	t.Helper()
	if got := readLine(t, conn, r); got != callsign {
		t.Fatalf("got login line %q, want %q", got, callsign)
	}
	for range DefaultLoginCommands {
		readLine(t, conn, r)
	}
}

func waitState(t *testing.T, c *Client, want State) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.State == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
			return Event{}
		}
	}
}

func testConfig(d *pipeDialer) Config {
	return Config{
		Addr:        "cluster.example.net:23",
		Callsign:    "W1AW-5",
		Dialer:      d,
		IdleTimeout: 2 * time.Second,
	}
}

func TestConnectForwardsLinesInOrder(t *testing.T) {
	d := newPipeDialer()
	c := NewClient(testConfig(d))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	server := accept(t, d)
	r := bufio.NewReader(server)
	consumeLogin(t, server, r, "W1AW-5")
	waitState(t, c, StateConnected)

	writeLine(t, server, "Hello from the test cluster")
	writeLine(t, server, "CC11^14074.0^JA1ABC^25-Aug-2026^1201Z^FT8^W2XYZ^")

	want := []string{
		"Hello from the test cluster",
		"CC11^14074.0^JA1ABC^25-Aug-2026^1201Z^FT8^W2XYZ^",
	}
	for i, w := range want {
		select {
		case got := <-c.Lines():
			if got != w {
				t.Errorf("line %d: got %q, want %q", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for line %d", i)
		}
	}
}

func TestSendWritesCommandVerbatim(t *testing.T) {
	d := newPipeDialer()
	c := NewClient(testConfig(d))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	server := accept(t, d)
	r := bufio.NewReader(server)
	consumeLogin(t, server, r, "W1AW-5")
	waitState(t, c, StateConnected)

	if err := c.Send("sh/dx 10"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := readLine(t, server, r); got != "sh/dx 10" {
		t.Errorf("got command %q, want %q", got, "sh/dx 10")
	}
}

func TestSendWhenDisconnected(t *testing.T) {
	c := NewClient(testConfig(newPipeDialer()))
	if err := c.Send("sh/dx"); !errors.Is(err, model.ErrNotConnected) {
		t.Errorf("got %v, want ErrNotConnected", err)
	}
}

func TestConnectTwice(t *testing.T) {
	d := newPipeDialer()
	c := NewClient(testConfig(d))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	server := accept(t, d)
	r := bufio.NewReader(server)
	consumeLogin(t, server, r, "W1AW-5")
	waitState(t, c, StateConnected)

	if err := c.Connect(context.Background()); !errors.Is(err, model.ErrAlreadyRunning) {
		t.Errorf("got %v, want ErrAlreadyRunning", err)
	}
}

func TestDisconnectMidBackoffCancelsReconnect(t *testing.T) {
	d := newPipeDialer()
	d.fail = true

	cfg := testConfig(d)
	cfg.AutoReconnect = true
	cfg.InitialBackoff = time.Minute
	cfg.MaxBackoff = time.Minute
	c := NewClient(cfg)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// First dial fails, leaving the loop waiting out the backoff
	ev := waitState(t, c, StateDisconnected)
	if ev.Err == nil {
		t.Error("disconnect event after a failed dial should carry the error")
	}

	c.Disconnect()
	time.Sleep(100 * time.Millisecond)

	if got := d.Attempts(); got != 1 {
		t.Errorf("got %d dial attempts after disconnect, want 1", got)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("got state %v, want disconnected", got)
	}

	// An explicit reconnect starts a fresh attempt
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	waitState(t, c, StateDisconnected)
	if got := d.Attempts(); got != 2 {
		t.Errorf("got %d dial attempts after explicit reconnect, want 2", got)
	}
	c.Disconnect()
}

func TestIdleTimeoutDropsSession(t *testing.T) {
	d := newPipeDialer()
	cfg := testConfig(d)
	cfg.IdleTimeout = 100 * time.Millisecond
	c := NewClient(cfg)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	server := accept(t, d)
	r := bufio.NewReader(server)
	consumeLogin(t, server, r, "W1AW-5")
	waitState(t, c, StateConnected)

	// Server goes silent; the idle timeout must end the session
	ev := waitState(t, c, StateDisconnected)
	var connErr *ConnectionError
	if !errors.As(ev.Err, &connErr) {
		t.Errorf("got %v, want a ConnectionError", ev.Err)
	}
}

func TestAutoReconnectRedialsSameEndpoint(t *testing.T) {
	d := newPipeDialer()
	cfg := testConfig(d)
	cfg.AutoReconnect = true
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	c := NewClient(cfg)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	server1 := accept(t, d)
	r1 := bufio.NewReader(server1)
	consumeLogin(t, server1, r1, "W1AW-5")
	waitState(t, c, StateConnected)

	server1.Close()

	// The loop must come back with a fresh dial and a fresh login
	server2 := accept(t, d)
	r2 := bufio.NewReader(server2)
	consumeLogin(t, server2, r2, "W1AW-5")
	waitState(t, c, StateConnected)
}
