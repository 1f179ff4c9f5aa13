// Package protocol defines the line-oriented control protocol spoken over
// the daemon socket: command parsing, responses, broadcasts and event
// reports. Every message is a single UTF-8 line terminated by "\n".
package protocol

import "fmt"

// CommandKind identifies a control command.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdProfile
	CmdOSD
	CmdLed
	CmdObserve
	CmdLock
	CmdUnlock
	CmdReconfigure
	CmdSelected
	CmdRegister
)

// Command prefixes as they appear on the wire.
const (
	PrefixProfile     = "Profile:"
	PrefixOSD         = "OSD:"
	PrefixLed         = "Led:"
	PrefixObserve     = "Observe:"
	PrefixLock        = "Lock:"
	PrefixUnlock      = "Unlock."
	PrefixReconfigure = "Reconfigure."
	PrefixSelected    = "Selected:"
	PrefixRegister    = "Register:"
)

var kindNames = map[CommandKind]string{
	CmdUnknown:     "unknown",
	CmdProfile:     "profile",
	CmdOSD:         "osd",
	CmdLed:         "led",
	CmdObserve:     "observe",
	CmdLock:        "lock",
	CmdUnlock:      "unlock",
	CmdReconfigure: "reconfigure",
	CmdSelected:    "selected",
	CmdRegister:    "register",
}

func (k CommandKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is a parsed control command. Only the fields relevant to Kind
// are set.
type Command struct {
	Kind CommandKind

	Path   string   // Profile
	Text   string   // OSD
	Level  int      // Led, as sent (not clamped)
	Tokens []string // Observe, Lock: unresolved source names
	MenuID string   // Selected
	ItemID string   // Selected
	Role   string   // Register
}

// Companion roles accepted by Register.
const (
	RoleOSD        = "osd"
	RoleAutoswitch = "autoswitch"
)
