package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func serviceEntry(instance, host string, port int, v4, v6 []net.IP, text ...string) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	entry.HostName = host
	entry.Port = port
	entry.AddrIPv4 = v4
	entry.AddrIPv6 = v6
	entry.Text = text
	return entry
}

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
	}{
		{
			name:     "hostname match with IPv4",
			entry:    serviceEntry("web", "ippower-3f2a.local.", 80, []net.IP{net.ParseIP("192.168.4.16")}, nil, "path=/"),
			wantIP:   "192.168.4.16",
			wantPort: 80,
		},
		{
			name:     "instance name match",
			entry:    serviceEntry("Aviosys IP9258", "device-01.local.", 8080, []net.IP{net.ParseIP("10.0.0.5")}, nil),
			wantIP:   "10.0.0.5",
			wantPort: 8080,
		},
		{
			name:     "no port defaults to 80",
			entry:    serviceEntry("IP9258", "ip9258.local.", 0, []net.IP{net.ParseIP("172.16.0.1")}, nil),
			wantIP:   "172.16.0.1",
			wantPort: 80,
		},
		{
			name:     "IPv6 only",
			entry:    serviceEntry("pdu", "pdu.local.", 80, nil, []net.IP{net.ParseIP("fe80::1")}),
			wantIP:   "fe80::1",
			wantPort: 80,
		},
		{
			name:     "prefers IPv4",
			entry:    serviceEntry("pdu", "pdu.local.", 80, []net.IP{net.ParseIP("192.168.1.50")}, []net.IP{net.ParseIP("fe80::2")}),
			wantIP:   "192.168.1.50",
			wantPort: 80,
		},
		{
			name:    "unrelated HTTP service",
			entry:   serviceEntry("Office Printer", "printer.local.", 80, []net.IP{net.ParseIP("192.168.1.1")}, nil),
			wantNil: true,
		},
		{
			name:    "no address",
			entry:   serviceEntry("IP9258", "ip9258.local.", 80, nil, nil),
			wantNil: true,
		},
		{
			name:    "no names",
			entry:   serviceEntry("", "", 80, []net.IP{net.ParseIP("192.168.1.1")}, nil),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}
			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want non-nil device")
			}
			if device.IP != tt.wantIP {
				t.Errorf("device.IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("device.Port = %v, want %v", device.Port, tt.wantPort)
			}
			if device.Instance != tt.entry.Instance {
				t.Errorf("device.Instance = %v, want %v", device.Instance, tt.entry.Instance)
			}
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("device.DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}
}

func TestScanner_NilPatternAcceptsAll(t *testing.T) {
	scanner := NewScanner()
	scanner.Pattern = nil

	entry := serviceEntry("Office Printer", "printer.local.", 80, []net.IP{net.ParseIP("192.168.1.1")}, nil)
	if scanner.parseServiceEntry(entry) == nil {
		t.Error("parseServiceEntry() = nil with no pattern, want device")
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	entry := serviceEntry("IP9258", "ip9258.local.", 80, []net.IP{net.ParseIP("192.168.4.16")}, nil,
		"path=/", "model=IP9258", "flag", "fw=1.0=beta")

	device := NewScanner().parseServiceEntry(entry)
	if device == nil {
		t.Fatal("parseServiceEntry() = nil, want device")
	}

	expected := map[string]string{
		"path":  "/",
		"model": "IP9258",
		"flag":  "",
		"fw":    "1.0=beta",
	}
	if len(device.Metadata) != len(expected) {
		t.Errorf("device.Metadata has %d entries, want %d", len(device.Metadata), len(expected))
	}
	for key, want := range expected {
		if got, ok := device.Metadata[key]; !ok {
			t.Errorf("device.Metadata missing key %q", key)
		} else if got != want {
			t.Errorf("device.Metadata[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()

	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
	if scanner.Pattern != DefaultPattern {
		t.Error("scanner.Pattern should default to DefaultPattern")
	}
}

func TestDefaultPattern(t *testing.T) {
	tests := []struct {
		name  string
		match bool
	}{
		{"ippower-3f2a.local.", true},
		{"IP-Power", true},
		{"IP9258", true},
		{"ip9212.local.", true},
		{"Aviosys web", true},
		{"powerstrip", true},
		{"rack-pdu-2", true},
		{"printer.local.", false},
		{"ip1234", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := DefaultPattern.MatchString(tt.name); got != tt.match {
			t.Errorf("DefaultPattern.MatchString(%q) = %v, want %v", tt.name, got, tt.match)
		}
	}
}
