package daemon

import (
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/standardbeagle/sccd/internal/action"
	"github.com/standardbeagle/sccd/internal/protocol"
	"github.com/standardbeagle/sccd/internal/source"
)

// DefaultQueueSize bounds the messages waiting to be written to one client.
const DefaultQueueSize = 1024

// ErrQueueFull is returned when a client falls too far behind. The client
// is disconnected.
var ErrQueueFull = errors.New("client outbound queue full")

// Session is one connected client.
type Session struct {
	id     string
	conn   net.Conn
	daemon *Daemon
	logger *slog.Logger
	parser *protocol.Parser

	// Messages are queued under the daemon lock and written by writeLoop,
	// so a client that stops reading never blocks the daemon.
	writer *protocol.Writer
	out    chan []byte
	done   chan struct{}
	closed atomic.Bool

	// Sources this session wrapped, guarded by the daemon lock.
	locked   map[source.Source]struct{}
	observed map[source.Source]struct{}
}

func newSession(conn net.Conn, d *Daemon) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		daemon:   d,
		logger:   d.logger.With("session", id),
		parser:   protocol.NewParser(conn),
		writer:   protocol.NewWriter(conn),
		out:      make(chan []byte, d.config.QueueSize),
		done:     make(chan struct{}),
		locked:   make(map[source.Source]struct{}),
		observed: make(map[source.Source]struct{}),
	}
}

// ID returns the session id used in logs.
func (s *Session) ID() string { return s.id }

// write queues one complete message. It never blocks: a full queue
// disconnects the client, and its read loop then releases what it holds.
func (s *Session) write(msg []byte) error {
	if s.closed.Load() {
		return net.ErrClosed
	}
	select {
	case s.out <- msg:
		return nil
	default:
	}
	s.logger.Warn("client is not reading; disconnecting", "queued", len(s.out))
	s.Close()
	return ErrQueueFull
}

// writeLoop writes queued messages in order until the session closes. A
// failed or timed out write closes the session.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			if t := s.daemon.config.WriteTimeout; t > 0 {
				_ = s.conn.SetWriteDeadline(time.Now().Add(t))
			}
			if err := s.writer.WriteRaw(msg); err != nil {
				if !isClosedError(err) {
					s.logger.Warn("write failed; disconnecting", "error", err)
				}
				s.Close()
				return
			}
		}
	}
}

// ReportEvent sends an event for a source this session locked or observes.
// It runs on whichever goroutine fires the action, with the daemon lock
// held.
func (s *Session) ReportEvent(ev action.Event) {
	if err := s.write(protocol.FormatEvent(ev.Source, ev.Values...)); err != nil {
		s.logger.Debug("event report failed", "source", ev.Source, "error", err)
		return
	}
	s.daemon.metrics.Event(ev.Source.String())
}

// Close closes the connection and drops queued messages. The read loop
// notices and cleans up.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)
	return s.conn.Close()
}

func sortedSources(set map[source.Source]struct{}) []source.Source {
	out := make([]source.Source, 0, len(set))
	for src := range set {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
