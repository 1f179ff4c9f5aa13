package action

import (
	"errors"
	"fmt"

	"github.com/standardbeagle/sccd/internal/source"
)

// ErrNotWrapped means a release was requested for a wrapper that is not in
// the chain. It indicates broken bookkeeping, not a client mistake.
var ErrNotWrapped = errors.New("action is not wrapped by owner")

// NotWrappedError describes a failed release.
type NotWrappedError struct {
	Kind   Kind
	Source source.Source
}

func (e *NotWrappedError) Error() string {
	return fmt.Sprintf("releasing %s wrapper on %s: %v", e.Kind, e.Source, ErrNotWrapped)
}

func (e *NotWrappedError) Unwrap() error {
	return ErrNotWrapped
}

// Observe wraps n so events are reported to owner and still handled.
func Observe(n *Node, src source.Source, owner Reporter) *Node {
	return &Node{kind: KindObserving, src: src, owner: owner, inner: n}
}

// Lock wraps n so events are reported to owner only. The Locked node is
// placed beneath any Observing nodes at the top of the chain so observers
// keep receiving reports. Callers must check IsLocked first.
func Lock(n *Node, src source.Source, owner Reporter) *Node {
	if n.kind == KindObserving {
		c := *n
		c.inner = Lock(n.inner, src, owner)
		return &c
	}
	return &Node{kind: KindLocked, src: src, owner: owner, inner: n}
}

// Release removes the first wrapper of the given kind owned by owner and
// returns the new chain. Surviving wrappers keep their order.
func Release(n *Node, src source.Source, owner Reporter, kind Kind) (*Node, error) {
	if n == nil || n.kind == KindBase {
		return n, &NotWrappedError{Kind: kind, Source: src}
	}
	if n.kind == kind && n.owner == owner {
		return n.inner, nil
	}
	inner, err := Release(n.inner, src, owner, kind)
	if err != nil {
		return n, err
	}
	c := *n
	c.inner = inner
	return &c, nil
}

// IsLocked reports whether any Locked wrapper exists in the chain.
func IsLocked(n *Node) bool {
	for ; n != nil; n = n.inner {
		if n.kind == KindLocked {
			return true
		}
	}
	return false
}

// LockOwner returns the owner of the Locked wrapper in the chain, if any.
func LockOwner(n *Node) (Reporter, bool) {
	for ; n != nil; n = n.inner {
		if n.kind == KindLocked {
			return n.owner, true
		}
	}
	return nil, false
}

// Unwrap returns the engine action at the bottom of the chain.
func Unwrap(n *Node) Action {
	for n != nil && n.kind != KindBase {
		n = n.inner
	}
	if n == nil {
		return nil
	}
	return n.base
}

// Depth counts the wrappers above the base action.
func Depth(n *Node) int {
	d := 0
	for ; n != nil && n.kind != KindBase; n = n.inner {
		d++
	}
	return d
}
