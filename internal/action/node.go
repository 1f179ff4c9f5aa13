// Package action intercepts the actions bound to input sources.
//
// Every slot of a profile holds a Node. A Node is a tagged variant: a Base
// node carries the action owned by the mapping engine, while Locked and
// Observing nodes wrap another node on behalf of a client session. Locked
// nodes redirect events exclusively to their owner; Observing nodes report
// events to their owner and then let the wrapped node fire as usual.
package action

import (
	"fmt"
	"time"

	"github.com/standardbeagle/sccd/internal/source"
)

// MinDifference is how far a two-axis position must move away from the last
// reported position, on either axis, before a new report is emitted.
const MinDifference = 300

// Mapper is the part of the mapping engine visible to actions.
type Mapper interface {
	// Schedule runs fn on the engine loop after delay.
	Schedule(delay time.Duration, fn func(Mapper))
}

// Action is an engine-owned action. Its behavior is opaque to the daemon.
type Action interface {
	ButtonPress(m Mapper)
	ButtonRelease(m Mapper)
	Trigger(m Mapper, position, old int)
	Whole(m Mapper, x, y int, what source.Source)
	Describe() string
}

// Event is a report sent to the owner of a Locked or Observing node.
type Event struct {
	Source source.Source
	Values []int
}

// Reporter receives events for the sources it locked or observes.
// Implementations must be comparable; ownership is decided with ==.
type Reporter interface {
	ReportEvent(ev Event)
}

// Kind discriminates Node variants.
type Kind uint8

const (
	KindBase Kind = iota
	KindLocked
	KindObserving
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindLocked:
		return "locked"
	case KindObserving:
		return "observing"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Node is one element of a source's action chain.
type Node struct {
	kind  Kind
	base  Action
	src   source.Source
	owner Reporter
	inner *Node

	// last reported two-axis position
	lastX, lastY int
}

// Base returns a chain consisting only of a.
func Base(a Action) *Node {
	return &Node{kind: KindBase, base: a}
}

// Kind returns the variant discriminant.
func (n *Node) Kind() Kind { return n.kind }

// Source returns the source a wrapper was installed for.
func (n *Node) Source() source.Source { return n.src }

// Owner returns the session owning a wrapper, nil for Base nodes.
func (n *Node) Owner() Reporter { return n.owner }

// Inner returns the wrapped node, nil for Base nodes.
func (n *Node) Inner() *Node { return n.inner }

// Action returns the engine action of a Base node.
func (n *Node) Action() Action { return n.base }

func (n *Node) String() string { return describe(n) }

func (n *Node) wraps() bool { return n.kind != KindBase }

func (n *Node) report(values ...int) {
	n.owner.ReportEvent(Event{Source: n.src, Values: values})
}

func describe(n *Node) string {
	switch n.kind {
	case KindBase:
		if n.base == nil {
			return "base(nil)"
		}
		return n.base.Describe()
	default:
		return fmt.Sprintf("%s(%s, %s)", n.kind, n.src, describe(n.inner))
	}
}

// ButtonPress fires a press through the chain.
func (n *Node) ButtonPress(m Mapper) {
	if !n.wraps() {
		if n.base != nil {
			n.base.ButtonPress(m)
		}
		return
	}
	n.report(1)
	if n.kind == KindObserving {
		n.inner.ButtonPress(m)
	}
}

// ButtonRelease fires a release through the chain.
func (n *Node) ButtonRelease(m Mapper) {
	if !n.wraps() {
		if n.base != nil {
			n.base.ButtonRelease(m)
		}
		return
	}
	n.report(0)
	if n.kind == KindObserving {
		n.inner.ButtonRelease(m)
	}
}

// Trigger fires a single-axis position update through the chain.
func (n *Node) Trigger(m Mapper, position, old int) {
	if !n.wraps() {
		if n.base != nil {
			n.base.Trigger(m, position, old)
		}
		return
	}
	n.report(position, old)
	if n.kind == KindObserving {
		n.inner.Trigger(m, position, old)
	}
}

// Whole fires a two-axis position update through the chain. Reports are
// throttled by MinDifference; forwarding from Observing nodes is not.
func (n *Node) Whole(m Mapper, x, y int, what source.Source) {
	if !n.wraps() {
		if n.base != nil {
			n.base.Whole(m, x, y, what)
		}
		return
	}
	if abs(x-n.lastX) > MinDifference || abs(y-n.lastY) > MinDifference {
		n.lastX, n.lastY = x, y
		n.report(x, y)
	}
	if n.kind == KindObserving {
		n.inner.Whole(m, x, y, what)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
