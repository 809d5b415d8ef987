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
	"testing"
)

// timeoutError implements net.Error with Timeout() == true
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    Kind
		wantSubtype NetworkSubtype
	}{
		{
			name:        "timeout",
			err:         timeoutError{},
			wantKind:    KindUnreachable,
			wantSubtype: NetworkTimeout,
		},
		{
			name:        "deadline exceeded",
			err:         fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
			wantKind:    KindUnreachable,
			wantSubtype: NetworkTimeout,
		},
		{
			name:        "dns",
			err:         &net.DNSError{Err: "no such host", Name: "pdu.invalid"},
			wantKind:    KindUnreachable,
			wantSubtype: NetworkDNS,
		},
		{
			name:        "connection refused",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)},
			wantKind:    KindUnreachable,
			wantSubtype: NetworkConnectionRefused,
		},
		{
			name:        "host unreachable",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)},
			wantKind:    KindUnreachable,
			wantSubtype: NetworkHostUnreachable,
		},
		{
			name:        "network unreachable",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ENETUNREACH)},
			wantKind:    KindUnreachable,
			wantSubtype: NetworkNetworkUnreachable,
		},
		{
			name:        "other dial failure",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")},
			wantKind:    KindUnreachable,
			wantSubtype: NetworkGeneral,
		},
		{
			name:        "url error wrapping refused",
			err:         &url.Error{Op: "Get", URL: "http://10.0.0.5", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}},
			wantKind:    KindUnreachable,
			wantSubtype: NetworkConnectionRefused,
		},
		{
			name:     "reset during read",
			err:      &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET},
			wantKind: KindProtocol,
		},
		{
			name:     "unknown",
			err:      errors.New("malformed HTTP response"),
			wantKind: KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTransportError(tt.err, "10.0.0.5")
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if tt.wantKind == KindUnreachable && got.Subtype != tt.wantSubtype {
				t.Errorf("Subtype = %v, want %v", got.Subtype, tt.wantSubtype)
			}
			if got.Address != "10.0.0.5" {
				t.Errorf("Address = %q, want 10.0.0.5", got.Address)
			}
			if got.Err == nil {
				t.Error("Err should keep the cause")
			}
		})
	}

	if ClassifyTransportError(nil, "") != nil {
		t.Error("ClassifyTransportError(nil) should be nil")
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindProtocol, Op: "getpower", Message: "bad body", Err: errors.New("eof")}
	want := "Protocol Error [getpower]: bad body (caused by: eof)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = NewInvalidArgumentError("socket 9 out of range")
	if err.Error() != "Invalid Argument: socket 9 out of range" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("command failed: %w", NewPreconditionFailedError("unknown state"))

	if !IsPreconditionFailed(wrapped) {
		t.Error("IsPreconditionFailed should see through wrapping")
	}
	if IsUnreachable(wrapped) || IsProtocol(wrapped) || IsInvalidArgument(wrapped) || IsConfigIncomplete(wrapped) {
		t.Error("only IsPreconditionFailed should match")
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf(plain error) should report false")
	}
	if IsProtocol(nil) {
		t.Error("IsProtocol(nil) should be false")
	}

	cause := errors.New("root")
	devErr := NewProtocolError("decode", cause)
	if !errors.Is(devErr, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
}

func TestShortMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&Error{Kind: KindUnreachable, Subtype: NetworkTimeout}, "Device not responding (timeout)"},
		{&Error{Kind: KindUnreachable, Subtype: NetworkConnectionRefused}, "Device refused connection"},
		{&Error{Kind: KindUnreachable}, "Device offline"},
		{NewHTTPError(401, "unauthorized"), "Authentication failed - check username and password"},
		{NewHTTPError(500, "server error"), "Device error (HTTP 500)"},
		{NewProtocolError("decode", nil), "Unexpected response from device"},
		{NewConfigIncompleteError("missing device address"), "missing device address"},
		{errors.New("plain"), "plain"},
	}

	for _, tt := range tests {
		if got := ShortMessage(tt.err); got != tt.want {
			t.Errorf("ShortMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestTroubleshootingHint(t *testing.T) {
	hint := TroubleshootingHint(&Error{Kind: KindUnreachable, Subtype: NetworkTimeout, Address: "10.0.0.5"})
	if !strings.Contains(hint, "ping 10.0.0.5") {
		t.Errorf("hint should suggest pinging the device, got:\n%s", hint)
	}
	if !strings.Contains(hint, "poll interval") {
		t.Errorf("timeout hint should mention the poll interval, got:\n%s", hint)
	}

	hint = TroubleshootingHint(NewHTTPError(401, ""))
	if !strings.Contains(hint, "credentials") {
		t.Errorf("401 hint should mention credentials, got:\n%s", hint)
	}

	if hint := TroubleshootingHint(errors.New("x")); hint == "" {
		t.Error("hint for plain error should not be empty")
	}
}
