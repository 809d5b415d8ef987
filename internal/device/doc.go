// Package device provides an HTTP client for IP power strips with four switched outlets.
//
// This package implements the three operations the device exposes over its embedded
// HTTP server: query power state, query socket names and set power state. Two
// incompatible wire dialects exist for the same device family and both are normalized
// into a single Delta type so callers never need to know which one produced it.
//
// # Dialects
//
// The dialect is a fixed configuration choice per deployment:
//   - Legacy: plain-text key/value bodies such as "p61=1 p62=0" and "p61_name=Rack1"
//   - JSON:   {"result":{"RL":[{"id":1,"name":"Rack1","state":1}]}}
//
// The device numbers its outlets 61-64. Logical socket ids 1-4 are used everywhere
// outside this package; the +60 offset is applied only on the wire.
//
// # Usage Example
//
//	client, err := device.NewClient(device.Options{
//	    Address:  "10.0.0.5",
//	    Username: "admin",
//	    Password: "12345678",
//	    Dialect:  device.DialectJSON,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	delta, err := client.Poll(ctx)
//	if err != nil {
//	    log.Fatal(device.ShortMessage(err))
//	}
//
//	if err := client.SetPower(ctx, 2, device.PowerOn); err != nil {
//	    log.Fatal(err)
//	}
//
// SetPower never reports the resulting state. The device acknowledgment does not
// reliably reflect the final relay position, so callers poll again to confirm.
//
// # Error Handling
//
// Every failure is returned as *Error with a Kind. Timeouts and dial failures are
// KindUnreachable (device presumed offline); malformed URLs, non-2xx responses and
// undecodable bodies are KindProtocol. The client never retries on its own.
package device
