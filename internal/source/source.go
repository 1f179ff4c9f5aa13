// Package source identifies the addressable input elements of a controller:
// digital buttons, the analog stick, the left and right pads and the left
// and right triggers.
package source

import (
	"errors"
	"fmt"
	"strings"
)

// Kind groups sources by the kind of events they produce.
type Kind uint8

const (
	// KindButton sources produce press and release events.
	KindButton Kind = iota
	// KindTrigger sources produce analog position updates.
	KindTrigger
	// KindPad sources produce two-axis position updates.
	KindPad
	// KindStick is the analog stick; it produces two-axis position updates.
	KindStick
)

func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindTrigger:
		return "trigger"
	case KindPad:
		return "pad"
	case KindStick:
		return "stick"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Source is one addressable input element.
type Source uint8

// Buttons.
const (
	A Source = iota + 1
	B
	X
	Y
	Back
	C
	Start
	LB
	RB
	LGrip
	RGrip
	LPad
	RPad
	LPadTouch
	RPadTouch
	CPadTouch
	CPadPress
	// StickPress is the button under the analog stick.
	StickPress
)

// Analog sources.
const (
	LT Source = iota + 32
	RT
	Left
	Right
	Stick
)

var names = map[Source]string{
	A:          "A",
	B:          "B",
	X:          "X",
	Y:          "Y",
	Back:       "BACK",
	C:          "C",
	Start:      "START",
	LB:         "LB",
	RB:         "RB",
	LGrip:      "LGRIP",
	RGrip:      "RGRIP",
	LPad:       "LPAD",
	RPad:       "RPAD",
	LPadTouch:  "LPADTOUCH",
	RPadTouch:  "RPADTOUCH",
	CPadTouch:  "CPADTOUCH",
	CPadPress:  "CPADPRESS",
	StickPress: "STICKPRESS",
	LT:         "LT",
	RT:         "RT",
	Left:       "LEFT",
	Right:      "RIGHT",
	Stick:      "STICK",
}

var byName = func() map[string]Source {
	m := make(map[string]Source, len(names))
	for s, n := range names {
		m[n] = s
	}
	return m
}()

// ErrUnknownSource is returned when a token does not name any source.
var ErrUnknownSource = errors.New("unknown source")

// UnknownSourceError carries the token that failed to resolve.
type UnknownSourceError struct {
	Token string
}

func (e *UnknownSourceError) Error() string {
	return "Unknown source: " + e.Token
}

func (e *UnknownSourceError) Unwrap() error {
	return ErrUnknownSource
}

// Parse resolves a protocol token such as "A", "LEFT" or "STICKPRESS".
// Surrounding whitespace is ignored; names are case sensitive.
func Parse(token string) (Source, error) {
	t := strings.Trim(token, " \t\r\n")
	if s, ok := byName[t]; ok {
		return s, nil
	}
	return 0, &UnknownSourceError{Token: t}
}

// ParseList resolves every token, stopping at the first failure.
// Duplicates are collapsed, keeping the first occurrence.
func ParseList(tokens []string) ([]Source, error) {
	out := make([]Source, 0, len(tokens))
	seen := make(map[Source]bool, len(tokens))
	for _, tok := range tokens {
		s, err := Parse(tok)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// String returns the wire name. The stick's button is reported as
// STICKPRESS so it cannot be confused with the stick itself.
func (s Source) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("Source(%d)", uint8(s))
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	_, ok := names[s]
	return ok
}

// Kind returns the kind of events s produces.
func (s Source) Kind() Kind {
	switch s {
	case LT, RT:
		return KindTrigger
	case Left, Right:
		return KindPad
	case Stick:
		return KindStick
	}
	return KindButton
}

// Related returns the sources that share physical hardware with s and must
// be free for s to be locked. Locking the stick requires its button as well.
func (s Source) Related() []Source {
	if s == Stick {
		return []Source{Stick, StickPress}
	}
	return []Source{s}
}

// All returns every source in declaration order.
func All() []Source {
	out := make([]Source, 0, len(names))
	for s := A; s <= StickPress; s++ {
		out = append(out, s)
	}
	for s := LT; s <= Stick; s++ {
		out = append(out, s)
	}
	return out
}
