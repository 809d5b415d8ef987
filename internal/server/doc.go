// Package server exposes the engine over HTTP.
//
// Routes:
//
//	GET  /api/status               device status, poll state and all sockets
//	GET  /api/sockets              all sockets
//	GET  /api/sockets/{id}         one socket (1-4)
//	PUT  /api/sockets/{id}/power   body {"state":"on"} or {"state":"off"}
//	POST /api/sockets/{id}/toggle  toggle a socket with known state
//	POST /api/refresh              poll now
//	POST /api/refresh/names        poll now (names are part of every poll)
//	GET  /api/variables            p1..p4 and p1_name..p4_name
//	GET  /api/ws                   websocket event stream
//	GET  /metrics                  Prometheus metrics (optional)
//
// Commands return once the confirming poll has completed, so the socket in
// the response reflects the device's reported state.
//
// Errors are returned as {"error": ..., "kind": ..., "hint": ...} with a
// status code derived from the error kind: invalid arguments map to 400,
// unknown state for a toggle to 409, an unreachable device to 504 and a
// protocol failure to 502.
//
// The websocket stream starts with a "snapshot" event followed by the
// current "status", then carries a "socket" event for every cache change
// and a "status" event whenever the device status changes.
package server
