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
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection is one registered socket's mutable state. Every field below
// the embedded mutex must only be read or written while that mutex is
// held by the caller (i.e. between a Lookup* call and the matching
// Unlock).
type Connection struct {
	mu sync.Mutex

	handle Handle
	conn   net.Conn
	mode   Mode

	state        State
	identity     string
	lastActivity time.Time

	buf inboundBuffer

	// Tunnel is the secure session for this connection, set by the
	// event engine on the connection's first worker wake, before the
	// handshake runs. Opaque here; registry never inspects it.
	Tunnel interface{ Close() error }
}

// Handle returns the connection's identity in the registry.
func (c *Connection) Handle() Handle { return c.handle }

// Conn returns the underlying net.Conn.
func (c *Connection) Conn() net.Conn { return c.conn }

// Mode returns the tunnel mode this connection was accepted under.
func (c *Connection) Mode() Mode { return c.mode }

// State returns the current lifecycle state.
func (c *Connection) State() State { return c.state }

// SetState transitions the lifecycle state. Caller must hold the lock.
func (c *Connection) SetState(s State) { c.state = s }

// Identity returns the verified identity bound to this connection, or
// "" if none has been bound yet.
func (c *Connection) Identity() string { return c.identity }

// Touch refreshes the last-activity timestamp, used by SweepIdle.
func (c *Connection) Touch(now time.Time) { c.lastActivity = now }

// Buffer returns the connection's inbound line-assembly buffer.
func (c *Connection) Buffer() *inboundBuffer { return &c.buf }

// Write sends p to the peer through the negotiated tunnel when one
// exists, falling back to the raw socket otherwise (enrollment mode,
// pre-handshake). Caller must hold the lock.
func (c *Connection) Write(p []byte) (int, error) {
	if w, ok := c.Tunnel.(io.Writer); ok && w != nil {
		return w.Write(p)
	}
	return c.conn.Write(p)
}

type reg struct {
	mu         sync.RWMutex
	byHandle   map[Handle]*Connection
	byIdentity map[string]*Connection
	bufCap     int
}

func (r *reg) Add(conn net.Conn, mode Mode) *Connection {
	c := &Connection{
		handle:       uuid.New(),
		conn:         conn,
		mode:         mode,
		state:        StateAwaitingHandshake,
		lastActivity: time.Now(),
		buf:          newInboundBuffer(r.bufCap),
	}
	c.mu.Lock()

	r.mu.Lock()
	r.byHandle[c.handle] = c
	r.mu.Unlock()

	return c
}

func (r *reg) LookupAndLock(handle Handle) *Connection {
	r.mu.RLock()
	c, ok := r.byHandle[handle]
	if !ok {
		r.mu.RUnlock()
		return nil
	}
	c.mu.Lock()
	r.mu.RUnlock()
	return c
}

func (r *reg) LookupAndLockByIdentity(identity string) *Connection {
	r.mu.RLock()
	c, ok := r.byIdentity[identity]
	if !ok {
		r.mu.RUnlock()
		return nil
	}
	c.mu.Lock()
	r.mu.RUnlock()
	return c
}

func (r *reg) Unlock(conn *Connection) {
	if conn == nil {
		return
	}
	conn.mu.Unlock()
}

func (r *reg) BindIdentity(handle Handle, identity string) {
	r.mu.RLock()
	c, ok := r.byHandle[handle]
	r.mu.RUnlock()
	if !ok {
		return
	}

	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	r.mu.Lock()
	r.byIdentity[identity] = c
	r.mu.Unlock()
}

func (r *reg) Remove(handle Handle, teardown func(*Connection)) {
	r.mu.Lock()
	c, ok := r.byHandle[handle]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byHandle, handle)
	if c.identity != "" {
		if cur, ok := r.byIdentity[c.identity]; ok && cur == c {
			delete(r.byIdentity, c.identity)
		}
	}
	r.mu.Unlock()

	// Wait for any in-flight holder (e.g. a worker mid-dispatch) to
	// finish before tearing the record down.
	c.mu.Lock()
	c.state = StateClosing
	if teardown != nil {
		teardown(c)
	}
	c.mu.Unlock()
}

func (r *reg) SweepIdle(threshold time.Duration, teardown func(*Connection)) {
	cutoff := time.Now().Add(-threshold)

	r.mu.RLock()
	var stale []Handle
	for h, c := range r.byHandle {
		c.mu.Lock()
		idle := c.state == StateAuthenticated && c.lastActivity.Before(cutoff)
		c.mu.Unlock()
		if idle {
			stale = append(stale, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range stale {
		r.Remove(h, teardown)
	}
}

func (r *reg) SnapshotStatus() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.byHandle))
	for _, c := range r.byHandle {
		c.mu.Lock()
		out = append(out, Status{
			Handle:       c.handle,
			Mode:         c.mode,
			State:        c.state,
			Identity:     c.identity,
			LastActivity: c.lastActivity,
		})
		c.mu.Unlock()
	}
	return out
}
