package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/ippower/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type power strips advertise their web UI under
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is the default HTTP port of the devices
	DefaultPort = 80
)

// DefaultPattern matches the hostnames and instance names of known IP power
// strip firmwares.
var DefaultPattern = regexp.MustCompile(`(?i)(ip-?power|ip9\d{3}|aviosys|power-?strip|pdu)`)

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	// Pattern selects entries by hostname or instance name. Nil accepts every
	// HTTP service.
	Pattern *regexp.Regexp
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Pattern: DefaultPattern,
	}
}

// Scan browses until the timeout expires or ctx is cancelled and returns every
// matching device, deduplicated by address.
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		devices []*Device
		seen    = make(map[string]bool)
	)

	err := s.browse(ctx, func(d *Device) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[d.Address()] {
			seen[d.Address()] = true
			devices = append(devices, d)
			logging.Debug("Discovered power strip", zap.String("device", d.String()))
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Device(nil), devices...), nil
}

// First returns the first matching device, or an error when none answers
// within the timeout.
func (s *Scanner) First(ctx context.Context) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Device, 1)
	err := s.browse(ctx, func(d *Device) bool {
		select {
		case found <- d:
		default:
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	select {
	case d := <-found:
		return d, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no power strip found within %s", s.Timeout)
	}
}

// browse feeds matching entries to fn until ctx ends or fn returns false
func (s *Scanner) browse(ctx context.Context, fn func(*Device) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		done := false
		for entry := range entries {
			if done {
				continue
			}
			if d := s.parseServiceEntry(entry); d != nil {
				done = !fn(d)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry does not look like a power strip or has no address.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry.HostName == "" && entry.Instance == "" {
		return nil
	}
	if s.Pattern != nil && !s.Pattern.MatchString(entry.HostName) && !s.Pattern.MatchString(entry.Instance) {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Device{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// QuickScan performs a fast scan with a 3-second timeout
func QuickScan(ctx context.Context) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = 3 * time.Second
	return scanner.Scan(ctx)
}
