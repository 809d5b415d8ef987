// Package discovery finds IP power strips on the local network over mDNS.
//
// Devices that advertise their web interface as "_http._tcp" are collected
// and filtered by hostname or instance name. The default filter matches the
// common firmware names; set Scanner.Pattern to nil to list every HTTP
// service on the segment.
//
// # Usage Example
//
//	devices, err := discovery.NewScanner().Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Println(d.Address())
//	}
//
// Device.Address returns a value that can be used directly as the device
// address in the configuration.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
//
// Many power strips do not advertise over mDNS at all. Those have to be
// configured by address.
package discovery
