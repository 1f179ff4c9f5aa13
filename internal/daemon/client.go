package daemon

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/sccd/internal/protocol"
)

var (
	// ErrNotConnected is returned when trying to use a closed client.
	ErrNotConnected = errors.New("not connected to daemon")
	// ErrBadHandshake is returned when the peer is not an scc daemon.
	ErrBadHandshake = errors.New("unexpected handshake")
)

// FailError is a Fail response from the daemon.
type FailError struct {
	Msg string
}

func (e *FailError) Error() string {
	return "daemon: " + e.Msg
}

// Client talks to a running daemon over its control socket.
type Client struct {
	conn   net.Conn
	parser *protocol.Parser
	writer *protocol.Writer

	mu     sync.Mutex // serializes reads
	closed atomic.Bool

	// Hello is the state announced in the handshake.
	Hello protocol.Hello

	// OnMessage receives lines that are not replies: events, broadcasts
	// and forwarded OSD requests read while waiting for a reply.
	OnMessage func(line string)

	timeout time.Duration
}

// Dial connects to the daemon at socketPath and reads the handshake.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := Connect(socketPath, timeout)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		parser:  protocol.NewParser(conn),
		writer:  protocol.NewWriter(conn),
		timeout: timeout,
	}
	if err := c.readHandshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) readHandshake() error {
	c.deadline()
	defer c.conn.SetReadDeadline(time.Time{})

	line, err := c.parser.ReadLine()
	if err != nil {
		return err
	}
	if line != protocol.LineGreeting {
		return fmt.Errorf("%w: %q", ErrBadHandshake, line)
	}
	for {
		line, err := c.parser.ReadLine()
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(line, protocol.PrefixVersion):
			c.Hello.Version = line[len(protocol.PrefixVersion):]
		case strings.HasPrefix(line, protocol.PrefixPID):
			c.Hello.PID, _ = strconv.Atoi(line[len(protocol.PrefixPID):])
		case strings.HasPrefix(line, protocol.PrefixCurrentProfile):
			c.Hello.Profile = line[len(protocol.PrefixCurrentProfile):]
		case strings.HasPrefix(line, protocol.PrefixControllerCount):
			c.Hello.ControllerCount, _ = strconv.Atoi(line[len(protocol.PrefixControllerCount):])
		case line == protocol.LineReady:
			return nil
		case strings.HasPrefix(line, protocol.PrefixError):
			c.Hello.Err = line[len(protocol.PrefixError):]
			return nil
		default:
			return fmt.Errorf("%w: %q", ErrBadHandshake, line)
		}
	}
}

func (c *Client) deadline() {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

// Send writes a command line and returns the reply line. Other lines read
// in the meantime go to OnMessage.
func (c *Client) Send(line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return "", ErrNotConnected
	}
	c.deadline()
	defer c.conn.SetDeadline(time.Time{})

	if err := c.writer.WriteLine(line); err != nil {
		return "", err
	}
	for {
		reply, err := c.parser.ReadLine()
		if err != nil {
			return "", err
		}
		if reply == protocol.LineOK || strings.HasPrefix(reply, protocol.PrefixFail) {
			return reply, nil
		}
		if c.OnMessage != nil {
			c.OnMessage(reply)
		}
	}
}

// Command sends a command line and converts a Fail reply into *FailError.
func (c *Client) Command(line string) error {
	reply, err := c.Send(line)
	if err != nil {
		return err
	}
	if msg, ok := strings.CutPrefix(reply, protocol.PrefixFail); ok {
		return &FailError{Msg: msg}
	}
	return nil
}

// ReadLine reads the next line without sending anything. It blocks until
// the daemon writes or the connection closes.
func (c *Client) ReadLine() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return "", ErrNotConnected
	}
	return c.parser.ReadLine()
}

// Close closes the connection, unblocking a pending read.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
