package protocol

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/standardbeagle/sccd/internal/source"
)

// Fixed lines.
const (
	LineGreeting     = "SCCDaemon"
	LineOK           = "OK."
	LineReady        = "Ready."
	LineReconfigured = "Reconfigured."
)

// Line prefixes of daemon messages.
const (
	PrefixFail            = "Fail: "
	PrefixError           = "Error: "
	PrefixEvent           = "Event: "
	PrefixVersion         = "Version: "
	PrefixPID             = "PID: "
	PrefixCurrentProfile  = "Current profile: "
	PrefixControllerCount = "Controller count: "
	PrefixOSDRequest      = "OSD: "
)

// Fail messages fixed by the protocol.
const (
	MsgUnknownCommand   = "Unknown command"
	MsgSniffingDisabled = "Sniffing disabled."
	MsgNoOSD            = "Cannot show OSD; there is no scc-osd-daemon registered"
	MsgOSDFailed        = "cannot display OSD"
	MsgMenuItemInvalid  = "Selected menu item is no longer valid"
)

// Hello is the state announced to a client right after it connects.
type Hello struct {
	Version         string
	PID             int
	Profile         string
	ControllerCount int
	// Err is the current driver error; empty means ready.
	Err string
}

// FormatHandshake formats the greeting block sent on accept.
func FormatHandshake(h Hello) []byte {
	var b strings.Builder
	b.WriteString(LineGreeting + "\n")
	b.WriteString(PrefixVersion + h.Version + "\n")
	b.WriteString(PrefixPID + strconv.Itoa(h.PID) + "\n")
	b.WriteString(PrefixCurrentProfile + h.Profile + "\n")
	b.WriteString(PrefixControllerCount + strconv.Itoa(h.ControllerCount) + "\n")
	b.Write(FormatStatus(h.Err))
	return []byte(b.String())
}

// FormatStatus formats "Ready." or "Error: <msg>".
func FormatStatus(errMsg string) []byte {
	if errMsg == "" {
		return []byte(LineReady + "\n")
	}
	return []byte(PrefixError + oneLine(errMsg) + "\n")
}

// FormatOK formats a success response.
func FormatOK() []byte {
	return []byte(LineOK + "\n")
}

// FormatFail formats a failure response. Multi-line diagnostics are
// escaped so the response stays on one line.
func FormatFail(msg string) []byte {
	return []byte(PrefixFail + oneLine(msg) + "\n")
}

// FormatControllerCount formats the controller count broadcast.
func FormatControllerCount(n int) []byte {
	return []byte(PrefixControllerCount + strconv.Itoa(n) + "\n")
}

// FormatReconfigured formats the reconfiguration broadcast.
func FormatReconfigured() []byte {
	return []byte(LineReconfigured + "\n")
}

// FormatEvent formats an event report for a locked or observed source.
func FormatEvent(src source.Source, values ...int) []byte {
	var b strings.Builder
	b.WriteString(PrefixEvent)
	b.WriteString(src.String())
	for _, v := range values {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// FormatOSDRequest formats a request forwarded to the OSD companion.
// Arguments are shell-quoted so the companion can split them back.
func FormatOSDRequest(args ...string) []byte {
	return []byte(PrefixOSDRequest + shellquote.Join(args...) + "\n")
}

// ParseEvent parses an "Event: ..." line.
func ParseEvent(line string) (name string, values []int, ok bool) {
	if !strings.HasPrefix(line, PrefixEvent) {
		return "", nil, false
	}
	fields := strings.Fields(line[len(PrefixEvent):])
	if len(fields) < 2 {
		return "", nil, false
	}
	for _, f := range fields[1:] {
		v, err := strconv.Atoi(f)
		if err != nil {
			return "", nil, false
		}
		values = append(values, v)
	}
	return fields[0], values, true
}

// ParseOSDRequest splits a forwarded OSD request back into arguments.
func ParseOSDRequest(line string) ([]string, error) {
	if !strings.HasPrefix(line, PrefixOSDRequest) {
		return nil, fmt.Errorf("not an OSD request: %q", line)
	}
	return shellquote.Split(line[len(PrefixOSDRequest):])
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", `\r`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

// Writer writes protocol messages to a stream. It does not serialize
// concurrent writers; callers must.
type Writer struct {
	w io.Writer
}

// NewWriter creates a protocol writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteOK writes "OK.".
func (w *Writer) WriteOK() error {
	_, err := w.w.Write(FormatOK())
	return err
}

// WriteFail writes "Fail: <msg>".
func (w *Writer) WriteFail(msg string) error {
	_, err := w.w.Write(FormatFail(msg))
	return err
}

// WriteRaw writes an already formatted message.
func (w *Writer) WriteRaw(msg []byte) error {
	_, err := w.w.Write(msg)
	return err
}

// WriteLine writes a command line, appending the terminator.
func (w *Writer) WriteLine(line string) error {
	_, err := io.WriteString(w.w, line+"\n")
	return err
}
