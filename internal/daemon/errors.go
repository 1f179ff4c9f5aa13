package daemon

import (
	"errors"
	"fmt"

	"github.com/standardbeagle/sccd/internal/protocol"
	"github.com/standardbeagle/sccd/internal/source"
)

var (
	// ErrSniffingDisabled is returned for Observe when the configuration
	// does not allow it.
	ErrSniffingDisabled = errors.New("sniffing disabled")
	// ErrNoCompanion is returned when a request needs a companion that is
	// not registered.
	ErrNoCompanion = errors.New("no companion registered")
	// ErrOSDFailed is returned when forwarding to the OSD companion fails.
	ErrOSDFailed = errors.New("cannot display OSD")
	// ErrMenuItemInvalid is returned when a selected menu item cannot be
	// resolved.
	ErrMenuItemInvalid = errors.New("selected menu item is no longer valid")
)

// LockConflictError reports a source that is already locked.
type LockConflictError struct {
	Source source.Source
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("cannot lock %s", e.Source)
}

// failMessage turns a command error into the text of a Fail response.
func failMessage(err error) string {
	var conflict *LockConflictError
	switch {
	case errors.As(err, &conflict):
		return "Cannot lock " + conflict.Source.String()
	case errors.Is(err, protocol.ErrUnknownCommand):
		return protocol.MsgUnknownCommand
	case errors.Is(err, ErrSniffingDisabled):
		return protocol.MsgSniffingDisabled
	case errors.Is(err, ErrNoCompanion):
		return protocol.MsgNoOSD
	case errors.Is(err, ErrOSDFailed):
		return protocol.MsgOSDFailed
	case errors.Is(err, ErrMenuItemInvalid):
		return protocol.MsgMenuItemInvalid
	}
	return err.Error()
}
