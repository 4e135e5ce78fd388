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

package queue

import "github.com/google/uuid"

// Mode identifies which listener a Task originated from.
type Mode uint8

const (
	// ModeSecure marks a task for a connection on the mTLS vault port.
	ModeSecure Mode = iota
	// ModeEnrollment marks a task for a connection on the plaintext lobby port.
	ModeEnrollment
)

// Task is the opaque descriptor the acceptor enqueues and a worker
// dequeues: just enough to look the connection back up in the registry.
type Task struct {
	Handle uuid.UUID
	Mode   Mode
}

// Queue is a bounded, thread-safe FIFO of Task values.
type Queue interface {
	// Enqueue blocks while the queue is full, then appends task. It
	// returns false without blocking forever if the queue has been
	// shut down in the meantime.
	Enqueue(task Task) bool
	// Dequeue blocks while the queue is empty, then removes and returns
	// the oldest task. ok is false only once the queue has been shut
	// down and fully drained.
	Dequeue() (task Task, ok bool)
	// Shutdown marks the queue as draining: every blocked Enqueue/Dequeue
	// wakes up, new Enqueue calls are rejected, and Dequeue keeps
	// returning buffered tasks until the queue is empty.
	Shutdown()
	// Len returns the number of buffered tasks, for status/metrics.
	Len() int
}

// Config controls queue capacity.
type Config struct {
	// Capacity is the maximum number of buffered tasks. Zero selects
	// DefaultCapacity.
	Capacity int
}

// DefaultCapacity bounds the backlog of readiness events.
const DefaultCapacity = 100

// New builds a Queue with the given configuration.
func New(cfg Config) Queue {
	cap := cfg.Capacity
	if cap <= 0 {
		cap = DefaultCapacity
	}
	q := &fifo{buf: make([]Task, cap)}
	q.notEmpty = newCond(&q.mu)
	q.notFull = newCond(&q.mu)
	return q
}
