package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/ippower/internal/device"
)

// Payload values
const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadToggle  = "TOGGLE"
	PayloadUnknown = "UNKNOWN"

	StatusOffline = "offline"
)

// Topics builds topic names under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) Status() string {
	return t.Prefix + "/status"
}

func (t Topics) Power(id device.SocketID) string {
	return fmt.Sprintf("%s/socket/%d/power", t.Prefix, id)
}

func (t Topics) Name(id device.SocketID) string {
	return fmt.Sprintf("%s/socket/%d/name", t.Prefix, id)
}

func (t Topics) Set(id device.SocketID) string {
	return fmt.Sprintf("%s/socket/%d/set", t.Prefix, id)
}

// SetFilter matches the set topic of every socket.
func (t Topics) SetFilter() string {
	return t.Prefix + "/socket/+/set"
}

// ParseSet extracts the socket id from a set topic.
func (t Topics) ParseSet(topic string) (device.SocketID, error) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/socket/")
	if !ok {
		return 0, device.NewInvalidArgumentError(fmt.Sprintf("unexpected topic %q", topic))
	}
	num, ok := strings.CutSuffix(rest, "/set")
	if !ok {
		return 0, device.NewInvalidArgumentError(fmt.Sprintf("unexpected topic %q", topic))
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, device.NewInvalidArgumentError(fmt.Sprintf("unexpected topic %q", topic))
	}
	id := device.SocketID(n)
	if !id.Valid() {
		return 0, device.NewInvalidArgumentError(fmt.Sprintf("socket %d out of range", n))
	}
	return id, nil
}

// PowerPayload encodes a power state for the power topic.
func PowerPayload(p device.PowerState) string {
	switch p {
	case device.PowerOn:
		return PayloadOn
	case device.PowerOff:
		return PayloadOff
	default:
		return PayloadUnknown
	}
}
