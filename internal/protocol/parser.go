package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ErrUnknownCommand is returned for lines that match no command prefix.
var ErrUnknownCommand = errors.New("unknown command")

// ArgumentError reports malformed arguments of a known command.
type ArgumentError struct {
	Kind CommandKind
	Msg  string
	Err  error
}

func (e *ArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// ParseLine parses a single command line (without the trailing newline).
// A failed parse still reports the command kind when the prefix matched.
func ParseLine(line string) (Command, error) {
	switch {
	case strings.HasPrefix(line, PrefixProfile):
		return Command{Kind: CmdProfile, Path: trimArg(line[len(PrefixProfile):])}, nil

	case strings.HasPrefix(line, PrefixOSD):
		return Command{Kind: CmdOSD, Text: trimArg(line[len(PrefixOSD):])}, nil

	case strings.HasPrefix(line, PrefixLed):
		raw := strings.TrimSpace(line[len(PrefixLed):])
		level, err := strconv.Atoi(raw)
		if errors.Is(err, strconv.ErrRange) {
			// Out-of-range values saturate; the daemon clamps them anyway.
			level, err = math.MaxInt, nil
			if strings.HasPrefix(raw, "-") {
				level = math.MinInt
			}
		}
		if err != nil {
			return Command{Kind: CmdLed}, &ArgumentError{
				Kind: CmdLed,
				Msg:  fmt.Sprintf("invalid LED level %q", raw),
				Err:  errors.Unwrap(err),
			}
		}
		return Command{Kind: CmdLed, Level: level}, nil

	case strings.HasPrefix(line, PrefixObserve):
		return parseSources(CmdObserve, line[len(PrefixObserve):])

	case strings.HasPrefix(line, PrefixLock):
		return parseSources(CmdLock, line[len(PrefixLock):])

	case strings.HasPrefix(line, PrefixUnlock):
		return Command{Kind: CmdUnlock}, nil

	case strings.HasPrefix(line, PrefixReconfigure):
		return Command{Kind: CmdReconfigure}, nil

	case strings.HasPrefix(line, PrefixSelected):
		words, err := shellquote.Split(line[len(PrefixSelected):])
		if err != nil {
			return Command{Kind: CmdSelected}, &ArgumentError{Kind: CmdSelected, Msg: "malformed selection", Err: err}
		}
		if len(words) != 2 {
			return Command{Kind: CmdSelected}, &ArgumentError{
				Kind: CmdSelected,
				Msg:  fmt.Sprintf("expected menu and item id, got %d words", len(words)),
			}
		}
		return Command{Kind: CmdSelected, MenuID: words[0], ItemID: words[1]}, nil

	case strings.HasPrefix(line, PrefixRegister):
		return Command{Kind: CmdRegister, Role: strings.TrimSpace(line[len(PrefixRegister):])}, nil
	}
	return Command{Kind: CmdUnknown}, ErrUnknownCommand
}

func parseSources(kind CommandKind, rest string) (Command, error) {
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return Command{Kind: kind}, &ArgumentError{Kind: kind, Msg: "no sources given"}
	}
	return Command{Kind: kind, Tokens: tokens}, nil
}

func trimArg(s string) string {
	return strings.Trim(s, "\t\r ")
}

// IsBlank reports whether a line carries no command.
func IsBlank(line string) bool {
	return strings.Trim(line, "\t\r\n ") == ""
}

// Parser reads newline-delimited lines from a stream.
type Parser struct {
	reader *bufio.Reader
}

// NewParser creates a line parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{reader: bufio.NewReader(r)}
}

// ReadLine returns the next line without its terminator. A final line
// without a terminator is returned before io.EOF.
func (p *Parser) ReadLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
