package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// Kind represents the category of error that occurred
type Kind int

const (
	// KindUnreachable indicates the device did not answer (timeout, refused, unroutable)
	KindUnreachable Kind = iota
	// KindProtocol indicates an unexpected response (non-2xx status, undecodable body, bad URL)
	KindProtocol
	// KindInvalidArgument indicates a bad command argument (socket id out of range)
	KindInvalidArgument
	// KindPreconditionFailed indicates a command that needs state the cache does not have yet
	KindPreconditionFailed
	// KindConfigIncomplete indicates missing address or credentials
	KindConfigIncomplete
)

// NetworkSubtype provides more specific classification of unreachable errors
type NetworkSubtype int

const (
	NetworkGeneral NetworkSubtype = iota
	NetworkTimeout
	NetworkConnectionRefused
	NetworkDNS
	NetworkHostUnreachable
	NetworkNetworkUnreachable
)

// String returns a human-readable name for the error kind
func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "Unreachable"
	case KindProtocol:
		return "Protocol Error"
	case KindInvalidArgument:
		return "Invalid Argument"
	case KindPreconditionFailed:
		return "Precondition Failed"
	case KindConfigIncomplete:
		return "Configuration Incomplete"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error represents a failure of a device operation or command
type Error struct {
	Kind       Kind           // Category of error
	Op         string         // Operation that failed (e.g. "getpower")
	Message    string         // Human-readable error message
	StatusCode int            // HTTP status code (if applicable)
	Err        error          // Underlying error (if any)
	Subtype    NetworkSubtype // More specific unreachable classification
	Address    string         // Device address (for context)
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyTransportError turns an error from http.Client.Do into an *Error.
// Timeouts and dial failures are unreachable; anything else is a protocol error.
func ClassifyTransportError(err error, address string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:    KindUnreachable,
			Message: "request timed out",
			Err:     err,
			Subtype: NetworkTimeout,
			Address: address,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Kind:    KindUnreachable,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:     err,
			Subtype: NetworkDNS,
			Address: address,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{Kind: KindUnreachable, Message: "device refused connection", Err: err, Subtype: NetworkConnectionRefused, Address: address}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{Kind: KindUnreachable, Message: "host unreachable", Err: err, Subtype: NetworkHostUnreachable, Address: address}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{Kind: KindUnreachable, Message: "network unreachable", Err: err, Subtype: NetworkNetworkUnreachable, Address: address}
		case opErr.Op == "dial":
			return &Error{Kind: KindUnreachable, Message: "could not connect to device", Err: err, Subtype: NetworkGeneral, Address: address}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && urlErr.Err != err {
		return ClassifyTransportError(urlErr.Err, address)
	}

	return &Error{
		Kind:    KindProtocol,
		Message: "request failed",
		Err:     err,
		Address: address,
	}
}

// NewProtocolError creates a protocol error for an unexpected response
func NewProtocolError(message string, err error) *Error {
	return &Error{
		Kind:    KindProtocol,
		Message: message,
		Err:     err,
	}
}

// NewHTTPError creates a protocol error for a non-2xx status
func NewHTTPError(statusCode int, message string) *Error {
	return &Error{
		Kind:       KindProtocol,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewInvalidArgumentError creates an invalid argument error
func NewInvalidArgumentError(message string) *Error {
	return &Error{
		Kind:    KindInvalidArgument,
		Message: message,
	}
}

// NewPreconditionFailedError creates a precondition error
func NewPreconditionFailedError(message string) *Error {
	return &Error{
		Kind:    KindPreconditionFailed,
		Message: message,
	}
}

// NewConfigIncompleteError creates a configuration error
func NewConfigIncompleteError(message string) *Error {
	return &Error{
		Kind:    KindConfigIncomplete,
		Message: message,
	}
}

// KindOf returns the kind of err and whether err carries one.
func KindOf(err error) (Kind, bool) {
	var devErr *Error
	if errors.As(err, &devErr) {
		return devErr.Kind, true
	}
	return 0, false
}

func isKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsUnreachable checks if an error means the device is offline or unroutable
func IsUnreachable(err error) bool {
	return isKind(err, KindUnreachable)
}

// IsProtocol checks if an error is a protocol error
func IsProtocol(err error) bool {
	return isKind(err, KindProtocol)
}

// IsInvalidArgument checks if an error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return isKind(err, KindInvalidArgument)
}

// IsPreconditionFailed checks if an error is a precondition error
func IsPreconditionFailed(err error) bool {
	return isKind(err, KindPreconditionFailed)
}

// IsConfigIncomplete checks if an error is a configuration error
func IsConfigIncomplete(err error) bool {
	return isKind(err, KindConfigIncomplete)
}

// ShortMessage returns a concise, user-friendly error message
func ShortMessage(err error) string {
	var devErr *Error
	if !errors.As(err, &devErr) {
		return err.Error()
	}

	switch devErr.Kind {
	case KindUnreachable:
		switch devErr.Subtype {
		case NetworkTimeout:
			return "Device not responding (timeout)"
		case NetworkConnectionRefused:
			return "Device refused connection"
		case NetworkDNS:
			return "Cannot resolve device address"
		case NetworkHostUnreachable:
			return "Device unreachable - check network connection"
		case NetworkNetworkUnreachable:
			return "Network unreachable"
		default:
			return "Device offline"
		}
	case KindProtocol:
		if devErr.StatusCode == 401 {
			return "Authentication failed - check username and password"
		}
		if devErr.StatusCode != 0 {
			return fmt.Sprintf("Device error (HTTP %d)", devErr.StatusCode)
		}
		return "Unexpected response from device"
	default:
		return devErr.Message
	}
}

// TroubleshootingHint returns user-friendly troubleshooting advice for an error
func TroubleshootingHint(err error) string {
	var devErr *Error
	if !errors.As(err, &devErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Kind {
	case KindUnreachable:
		hint := []string{
			"The power strip did not answer.",
			"Troubleshooting:",
			"  • Check that the power strip is powered and cabled",
			"  • Verify the configured address",
		}
		if devErr.Address != "" {
			hint = append(hint, "  • Try pinging the device: ping "+devErr.Address)
		}
		if devErr.Subtype == NetworkTimeout {
			hint = append(hint, "  • Increase the poll interval if the device is slow to answer")
		}
		return strings.Join(hint, "\n")

	case KindProtocol:
		if devErr.StatusCode == 401 {
			return strings.Join([]string{
				"The device rejected the credentials.",
				"Troubleshooting:",
				"  • Check username and password",
				"  • Log in to the device web interface with the same credentials",
			}, "\n")
		}
		return strings.Join([]string{
			"The device answered with something unexpected.",
			"Troubleshooting:",
			"  • Check the configured dialect (legacy or json) matches the firmware",
			"  • Try rebooting the device",
		}, "\n")

	case KindConfigIncomplete:
		return "Set the device address, username and password (config file, flags or IPPOWER_DEVICE_* variables)."

	case KindPreconditionFailed:
		return "The socket state is not known yet. Wait for the first successful poll."

	case KindInvalidArgument:
		return fmt.Sprintf("Sockets are numbered %d to %d.", MinSocket, MaxSocket)

	default:
		return "An error occurred. Please check the error message for details."
	}
}
