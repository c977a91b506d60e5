// Package transport carries session traffic to and from the terminal.
//
// The websocket Client:
//   - Frames every message as a JSON envelope {"type", "id", "data"}
//   - Sends a start_api hello carrying the client id after each dial
//   - Decodes inbound envelopes into event values and hands them to the
//     session handler on the read goroutine, one at a time
//   - Paces outbound requests with a token-bucket limiter
//   - Pings the terminal and treats a silent connection as lost
//   - Reports a lost connection as event.ConnectionClosed, never a close the
//     session requested
package transport
