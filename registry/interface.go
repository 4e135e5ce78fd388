/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package registry

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Handle uniquely identifies one accepted socket for as long as it
// remains in the registry. Never reused while the connection is live.
type Handle = uuid.UUID

// Mode is the tunnel mode a connection was accepted under.
type Mode uint8

const (
	// ModeSecure requires a mutual-TLS handshake (the vault port).
	ModeSecure Mode = iota
	// ModeEnrollment is the plaintext, one-shot CSR-signing port.
	ModeEnrollment
)

// State is the connection lifecycle state.
type State uint8

const (
	// StateAwaitingHandshake is the initial state for ModeSecure
	// connections before the TLS handshake completes.
	StateAwaitingHandshake State = iota
	// StateAuthenticated means the handshake succeeded and the peer's
	// identity has been verified.
	StateAuthenticated
	// StateClosing means teardown is in progress or complete.
	StateClosing
)

// Status is a read-only snapshot of one connection, for the admin
// STATUS command and for metrics scraping.
type Status struct {
	Handle       Handle
	Mode         Mode
	State        State
	Identity     string
	LastActivity time.Time
}

// DefaultBufferCap is the per-connection inbound buffer size; 2 KiB
// comfortably fits the longest legal command line.
const DefaultBufferCap = 2048

// Config controls per-registry limits.
type Config struct {
	// BufferCap is the inbound byte-buffer capacity per connection.
	// Zero selects DefaultBufferCap.
	BufferCap int
}

// Registry is the indexed store of live connections.
type Registry interface {
	// Add registers a freshly accepted socket and returns its new
	// Connection record, locked (as if returned by LookupAndLock).
	Add(conn net.Conn, mode Mode) *Connection

	// LookupAndLock atomically acquires the per-connection mutex of the
	// record for handle before releasing the registry's read lock, so
	// the caller can never observe a record mid-teardown. Returns nil
	// if no such connection is currently registered.
	LookupAndLock(handle Handle) *Connection

	// LookupAndLockByIdentity is LookupAndLock's secondary-index
	// counterpart, keyed by verified identity.
	LookupAndLockByIdentity(identity string) *Connection

	// Unlock releases the per-connection mutex acquired by a Lookup*
	// call. Safe to call with a nil conn.
	Unlock(conn *Connection)

	// BindIdentity installs identity as the secondary-index key for
	// handle. If another live connection currently holds that identity,
	// its secondary-index entry is replaced; that older connection is
	// not torn down and remains reachable by handle until its own
	// teardown.
	BindIdentity(handle Handle, identity string)

	// Remove tears down and frees the record for handle: removes it
	// from the primary index first (so new lookups miss it), removes
	// the secondary-index entry only if it still points at this exact
	// record, waits for any in-flight per-connection-mutex holder to
	// finish, marks the record closing and runs teardown. The registry
	// itself closes nothing; teardown is invoked while
	// holding the per-connection mutex, after the primary/secondary
	// index removal and before the record is released; it is the
	// caller's hook to unsubscribe from topics and close sockets/tunnels.
	Remove(handle Handle, teardown func(*Connection))

	// SweepIdle collects every authenticated connection whose
	// last-activity timestamp is older than threshold and removes each
	// one (via Remove, so teardown still runs per connection).
	SweepIdle(threshold time.Duration, teardown func(*Connection))

	// SnapshotStatus returns a point-in-time view of every registered
	// connection, for the admin STATUS command and metrics.
	SnapshotStatus() []Status
}

// New builds a Registry with the given configuration.
func New(cfg Config) Registry {
	bufCap := cfg.BufferCap
	if bufCap <= 0 {
		bufCap = DefaultBufferCap
	}
	return &reg{
		bufCap:     bufCap,
		byHandle:   make(map[Handle]*Connection),
		byIdentity: make(map[string]*Connection),
	}
}
