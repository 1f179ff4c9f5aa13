package daemon

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"github.com/standardbeagle/sccd/internal/protocol"
)

var pid = os.Getpid()

// openSession registers a new session and sends the handshake. It returns
// nil while the daemon is exiting.
func (d *Daemon) openSession(conn net.Conn) *Session {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()

	if d.state.exiting {
		return nil
	}
	s := newSession(conn, d)
	d.state.sessions[s] = struct{}{}
	d.metrics.SessionOpened()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		s.writeLoop()
	}()

	if err := s.write(protocol.FormatHandshake(d.state.hello())); err != nil {
		s.logger.Debug("handshake failed", "error", err)
	}
	s.logger.Debug("client connected")
	return s
}

// Handle reads commands until the client disconnects. There is no read
// timeout.
func (s *Session) Handle() {
	defer s.daemon.closeSession(s)

	for {
		line, err := s.parser.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !isClosedError(err) {
				s.logger.Debug("read error", "error", err)
			}
			return
		}
		if protocol.IsBlank(line) {
			continue
		}
		s.daemon.execute(s, line)
	}
}

// closeSession releases everything s holds and forgets it.
func (d *Daemon) closeSession(s *Session) {
	d.state.mu.Lock()
	d.releaseAll(s)
	for role, holder := range d.state.companions {
		if holder == s {
			delete(d.state.companions, role)
			d.logger.Info("companion lost", "role", role)
		}
	}
	delete(d.state.sessions, s)
	d.state.mu.Unlock()

	s.Close()
	d.metrics.SessionClosed()
	s.logger.Debug("client disconnected")
}

func isClosedError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
