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

package engine

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/sabouaram/vaultmesh/queue"
	"github.com/sabouaram/vaultmesh/registry"
)

// worker pulls readiness tasks off the queue and drives one
// read-dispatch (or handshake, or enrollment) cycle per wake. At the
// end of a cycle the connection is re-armed one-shot, so no second
// worker can race this one on the same connection.
func (e *Engine) worker(id int) {
	defer e.wg.Done()

	log := e.log.WithField("worker", id)

	for {
		task, ok := e.tasks.Dequeue()
		if !ok {
			return
		}
		if e.met != nil {
			e.met.QueueDepth.Set(float64(e.tasks.Len()))
		}

		switch task.Mode {
		case queue.ModeEnrollment:
			e.serveEnrollment(log, task.Handle)
		default:
			e.serveVault(log, task.Handle)
		}
	}
}

func (e *Engine) serveVault(log logEntry, h registry.Handle) {
	c := e.reg.LookupAndLock(h)
	if c == nil {
		return
	}

	if c.State() == registry.StateClosing {
		e.reg.Unlock(c)
		return
	}

	// Bind the TLS session on first wake, before the handshake below,
	// which completes or fails within this single wake.
	if c.Tunnel == nil {
		c.Tunnel = tls.Server(c.Conn(), e.tlsConf)
	}

	if c.State() == registry.StateAwaitingHandshake {
		e.driveHandshake(log, c)
		return
	}

	e.readDispatch(log, c)
}

// rearmOrDrop re-enables readable interest; if the fd is already gone
// the connection is torn down instead.
func (e *Engine) rearmOrDrop(log logEntry, h registry.Handle) {
	fd, ok := e.fdForHandle(h)
	if !ok {
		return
	}
	if err := e.poll.rearm(fd); err != nil {
		log.WithError(err).Debug("re-arm failed, removing connection")
		e.remove(h)
	}
}

// readDispatch performs at most one decrypting read, then drains every
// complete line out of the inbound buffer.
func (e *Engine) readDispatch(log logEntry, c *registry.Connection) {
	h := c.Handle()
	tun, ok := c.Tunnel.(net.Conn)
	if !ok {
		e.reg.Unlock(c)
		e.remove(h)
		return
	}

	buf := make([]byte, 1024)
	_ = tun.SetReadDeadline(time.Now().Add(e.cfg.ReadPoll))
	n, err := tun.Read(buf)

	if err != nil && isWouldBlock(err) {
		// Partial TLS record or spurious wake: yield and wait for the
		// next readiness event.
		e.reg.Unlock(c)
		e.rearmOrDrop(log, h)
		return
	}
	if err != nil && n <= 0 {
		if !errors.Is(err, io.EOF) {
			log.WithError(err).Debug("connection read failed")
		}
		e.reg.Unlock(c)
		e.remove(h)
		return
	}

	c.Touch(time.Now())

	if !c.Buffer().Append(buf[:n]) {
		// Overflow discards the whole buffer but keeps the connection:
		// a malformed peer is preferable to a DoS.
		log.WithField("identity", c.Identity()).Warn("inbound buffer overflow, discarded")
	}

	alive := true
	for alive {
		line, ok := c.Buffer().ExtractLine()
		if !ok {
			break
		}
		c, alive = e.dispatch(log, c, line)
	}

	if !alive {
		// The connection vanished mid-publish; nothing left to unlock.
		return
	}

	e.reg.Unlock(c)
	e.rearmOrDrop(log, h)
}

// isWouldBlock reports whether err is the deadline-expiry the engine
// uses as its want-read signal on non-blocking reads.
func isWouldBlock(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// reply writes one \n-terminated frame back to the peer. Failures are
// not retried; the next read observes the broken pipe and removes the
// connection.
func (e *Engine) reply(c *registry.Connection, line string) {
	if nc, ok := c.Tunnel.(net.Conn); ok {
		_ = nc.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout))
	}
	_, _ = c.Write([]byte(line))
}
