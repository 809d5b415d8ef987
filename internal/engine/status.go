package engine

import "github.com/muurk/ippower/internal/device"

// Status is the connectivity status of the device as last observed.
type Status int

const (
	StatusUnknown Status = iota
	StatusConnecting
	StatusOK
	StatusUnreachable
	StatusError
	StatusBadConfig
)

// String returns the status name used in the API, MQTT and metrics
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOK:
		return "ok"
	case StatusUnreachable:
		return "unreachable"
	case StatusError:
		return "error"
	case StatusBadConfig:
		return "bad_config"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// statusOf maps a poll or command outcome to a status
func statusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	kind, ok := device.KindOf(err)
	if !ok {
		return StatusError
	}
	switch kind {
	case device.KindUnreachable:
		return StatusUnreachable
	case device.KindConfigIncomplete:
		return StatusBadConfig
	default:
		return StatusError
	}
}

// StatusObserver is called when the connectivity status changes.
type StatusObserver func(status Status, err error)
