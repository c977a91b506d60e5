// Package connection implements the Connection Monitor, the state machine
// that owns the session's transport lifecycle.
//
// The Connection Monitor:
//   - Opens the transport after a pre-connect delay
//   - Confirms the session once the handshake completes, after a short
//     confirmation delay that a fatal error can still interrupt
//   - Reconnects when an open connection is not confirmed in time
//   - Tears down and reopens the transport on Reconnect, waiting a fixed
//     delay between attempts until one opens or another command arrives
//   - Publishes every status transition, plus an edge-triggered Change when
//     the session becomes usable or stops being usable
//
// Commands are executed by a single control goroutine and delivered through
// a one-slot mailbox: a command submitted before the previous one was taken
// replaces it. Disconnect and Reconnect interrupt a delay in progress,
// unless they repeat the command being executed; any other command
// arriving during a delay is absorbed.
package connection
