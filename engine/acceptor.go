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
	"context"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/vaultmesh/queue"
	"github.com/sabouaram/vaultmesh/registry"
)

const maxEvents = 64

// acceptLoop is the single-threaded acceptor: it waits on the epoll
// instance, drains pending accepts off the two listeners, and turns
// readiness on established connections into queue tasks. It never
// reads from a client socket itself.
func (e *Engine) acceptLoop(ctx context.Context) {
	events := make([]unix.EpollEvent, maxEvents)

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := e.poll.wait(events, 1000)
		if err != nil {
			e.log.WithError(err).Error("multiplexer wait failed")
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)

			switch fd {
			case e.vaultFD:
				e.acceptAll(e.vaultFD, registry.ModeSecure)
			case e.lobbyFD:
				e.acceptAll(e.lobbyFD, registry.ModeEnrollment)
			default:
				e.enqueueReady(events[i].Fd)
			}
		}
	}
}

// acceptAll drains the listener until the kernel reports no more
// pending connections, registering and arming each one.
func (e *Engine) acceptAll(listenFD int, mode registry.Mode) {
	for {
		conn, ok, err := e.acceptOne(listenFD, mode)
		if err != nil {
			e.log.WithError(err).Warn("accept failed")
			return
		}
		if !ok {
			return
		}
		e.log.WithFields(map[string]interface{}{
			"remote": conn.Conn().RemoteAddr().String(),
			"mode":   mode,
		}).Debug("accepted connection")
	}
}

func (e *Engine) acceptOne(listenFD int, mode registry.Mode) (*registry.Connection, bool, error) {
	nc, ok, err := acceptConn(listenFD)
	if err != nil || !ok {
		return nil, false, err
	}

	fd, ok := connFD(nc)
	if !ok {
		_ = nc.Close()
		return nil, true, nil
	}

	c := e.reg.Add(nc, mode)
	e.trackFD(c.Handle(), fd)
	e.reg.Unlock(c)

	if err = e.poll.armOneShot(fd); err != nil {
		e.remove(c.Handle())
		return nil, true, err
	}
	return c, true, nil
}

// enqueueReady turns one one-shot readiness event into a worker task.
func (e *Engine) enqueueReady(fd int32) {
	if e.closing.Load() {
		return
	}
	h, ok := e.handleForFD(fd)
	if !ok {
		// Raced with teardown; interest died with the fd.
		return
	}

	c := e.reg.LookupAndLock(h)
	if c == nil {
		return
	}
	mode := queue.ModeSecure
	if c.Mode() == registry.ModeEnrollment {
		mode = queue.ModeEnrollment
	}
	e.reg.Unlock(c)

	if !e.tasks.Enqueue(queue.Task{Handle: h, Mode: mode}) {
		return
	}
	if e.met != nil {
		e.met.QueueDepth.Set(float64(e.tasks.Len()))
	}
}
