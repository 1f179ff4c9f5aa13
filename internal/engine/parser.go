// Package engine is the boundary between the daemon and the input-mapping
// engine: profiles and their per-source action slots, menus, the engine
// scheduler, attached controllers and the mapper tying them together.
//
// Action descriptor semantics belong to the engine. The daemon only needs to
// load, wrap, fire and save them, so descriptors are resolved through a
// pluggable Parser.
package engine

import (
	"strings"

	"github.com/standardbeagle/sccd/internal/action"
	"github.com/standardbeagle/sccd/internal/source"
)

// Parser turns action descriptors found in profiles and menus into actions.
type Parser interface {
	Parse(desc string) (action.Action, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(desc string) (action.Action, error)

func (f ParserFunc) Parse(desc string) (action.Action, error) {
	return f(desc)
}

// OpaqueParser keeps descriptors verbatim without interpreting them.
type OpaqueParser struct{}

func (OpaqueParser) Parse(desc string) (action.Action, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" || desc == NoAction.Desc {
		return NoAction, nil
	}
	return Opaque{Desc: desc}, nil
}

// Opaque is an action known only by its descriptor. Firing it does nothing.
type Opaque struct {
	Desc string
}

// NoAction is bound to sources a profile leaves unmapped.
var NoAction = Opaque{Desc: "None"}

func (Opaque) ButtonPress(action.Mapper)                     {}
func (Opaque) ButtonRelease(action.Mapper)                   {}
func (Opaque) Trigger(action.Mapper, int, int)               {}
func (Opaque) Whole(action.Mapper, int, int, source.Source) {}
func (o Opaque) Describe() string                            { return o.Desc }
