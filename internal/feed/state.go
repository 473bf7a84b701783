// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package feed

// State is the externally visible connection state of one feed manager.
//
// Transitions are owned exclusively by the manager instance; no other
// component mutates them. StateFailed is terminal for a given subscription:
// the manager stops retrying until it is explicitly re-enabled or given
// new subscription parameters.
type State string

const (
	// StateDisconnected is the initial state, and the state while a
	// scheduled reconnect is pending.
	StateDisconnected State = "disconnected"

	// StateConnecting means a dial is in flight.
	StateConnecting State = "connecting"

	// StateConnected means the transport is open and delivering messages.
	StateConnected State = "connected"

	// StateError is reserved for transport faults that are not closures.
	// The underlying transport contract guarantees every error event is
	// followed by a close event, so the manager transitions at close and
	// never parks in this state itself.
	StateError State = "error"

	// StateFailed means a fatal close code was received or the retry
	// budget is exhausted. No further automatic reconnects fire.
	StateFailed State = "failed"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}
