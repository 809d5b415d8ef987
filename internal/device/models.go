package device

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinSocket is the lowest logical socket id
	MinSocket SocketID = 1

	// MaxSocket is the highest logical socket id
	MaxSocket SocketID = 4

	// NumSockets is the fixed number of switched outlets on the device
	NumSockets = 4

	// socketOffset is added to a logical id to get the device's outlet number
	socketOffset = 60
)

// SocketID identifies one physical outlet (1-4).
type SocketID int

// Valid reports whether the id addresses one of the four outlets.
func (id SocketID) Valid() bool {
	return id >= MinSocket && id <= MaxSocket
}

// DeviceNumber returns the outlet number used on the wire (61-64).
func (id SocketID) DeviceNumber() int {
	return int(id) + socketOffset
}

// DefaultName returns the name a socket carries until the device reports one.
func (id SocketID) DefaultName() string {
	return fmt.Sprintf("S%d", int(id))
}

// ParseSocketID parses a user supplied socket number.
func ParseSocketID(s string) (SocketID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, NewInvalidArgumentError(fmt.Sprintf("socket %q is not a number", s))
	}
	id := SocketID(n)
	if !id.Valid() {
		return 0, NewInvalidArgumentError(fmt.Sprintf("socket %d out of range %d-%d", n, MinSocket, MaxSocket))
	}
	return id, nil
}

// AllSockets returns the ids 1-4 in order.
func AllSockets() []SocketID {
	return []SocketID{1, 2, 3, 4}
}

// PowerState is the relay state of one outlet.
// PowerUnset is only observed before the first successful poll.
type PowerState int

const (
	PowerUnset PowerState = iota
	PowerOff
	PowerOn
)

// String returns the display value used for socket variables
func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "On"
	case PowerOff:
		return "Off"
	default:
		return "?"
	}
}

// Opposite returns the toggled state. PowerUnset has no opposite.
func (p PowerState) Opposite() PowerState {
	switch p {
	case PowerOn:
		return PowerOff
	case PowerOff:
		return PowerOn
	default:
		return PowerUnset
	}
}

// wireValue returns the 1/0 value the device expects for a set command.
func (p PowerState) wireValue() string {
	if p == PowerOn {
		return "1"
	}
	return "0"
}

// MarshalText encodes the state as "on", "off" or "unset"
func (p PowerState) MarshalText() ([]byte, error) {
	switch p {
	case PowerOn:
		return []byte("on"), nil
	case PowerOff:
		return []byte("off"), nil
	default:
		return []byte("unset"), nil
	}
}

// UnmarshalText accepts everything ParsePowerState does plus "unset"
func (p *PowerState) UnmarshalText(text []byte) error {
	if strings.EqualFold(string(text), "unset") {
		*p = PowerUnset
		return nil
	}
	state, err := ParsePowerState(string(text))
	if err != nil {
		return err
	}
	*p = state
	return nil
}

// ParsePowerState accepts on/off, 1/0 and true/false in any case.
func ParsePowerState(s string) (PowerState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1", "true":
		return PowerOn, nil
	case "off", "0", "false":
		return PowerOff, nil
	default:
		return PowerUnset, NewInvalidArgumentError(fmt.Sprintf("invalid power state %q (expected on or off)", s))
	}
}

// SocketRecord is the last known state of one outlet.
type SocketRecord struct {
	ID    SocketID   `json:"id"`
	Name  string     `json:"name"`
	Power PowerState `json:"power"`
}

// NewSocketRecord returns the record a socket has before any poll.
func NewSocketRecord(id SocketID) SocketRecord {
	return SocketRecord{ID: id, Name: id.DefaultName(), Power: PowerUnset}
}

// SocketUpdate carries the fields one response reported for a socket.
// A zero field (PowerUnset, empty Name) means the field was not reported.
type SocketUpdate struct {
	Power PowerState
	Name  string
}

// Delta is a partial update to socket fields produced by one poll.
type Delta map[SocketID]SocketUpdate

// Merge folds other into d. Fields present in other win.
func (d Delta) Merge(other Delta) Delta {
	if d == nil {
		d = make(Delta, len(other))
	}
	for id, upd := range other {
		cur := d[id]
		if upd.Power != PowerUnset {
			cur.Power = upd.Power
		}
		if upd.Name != "" {
			cur.Name = upd.Name
		}
		d[id] = cur
	}
	return d
}

// Dialect selects the device wire protocol.
type Dialect int

const (
	DialectLegacy Dialect = iota
	DialectJSON
)

// String returns the configuration spelling of the dialect
func (d Dialect) String() string {
	switch d {
	case DialectJSON:
		return "json"
	case DialectLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// ParseDialect parses "legacy" (also "text") or "json".
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "text":
		return DialectLegacy, nil
	case "json", "":
		return DialectJSON, nil
	default:
		return DialectLegacy, NewInvalidArgumentError(fmt.Sprintf("unknown dialect %q (expected legacy or json)", s))
	}
}
