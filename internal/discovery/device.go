package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device is a power strip found on the local network
type Device struct {
	// Instance is the advertised service instance name (e.g., "IP9258 Rack A")
	Instance string

	// Hostname is the mDNS hostname (e.g., "ippower-3f2a.local.")
	Hostname string

	// IP is the device address, IPv4 when one was advertised
	IP string

	// Port is the HTTP port (typically 80)
	Port int

	// Metadata contains the mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("Power strip %q (%s) at %s", d.Instance, d.Hostname, d.Address())
}

// Address returns the value to use as the device address in the configuration.
// The port is omitted when it is the HTTP default.
func (d *Device) Address() string {
	if d.Port == DefaultPort {
		if net.ParseIP(d.IP).To4() == nil {
			return "[" + d.IP + "]"
		}
		return d.IP
	}
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
