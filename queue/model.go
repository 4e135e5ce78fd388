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

import "sync"

// fifo is a ring buffer guarded by one mutex and two condition
// variables, one mutex with a pair of condition
// pair directly: not-empty wakes blocked Dequeue callers, not-full
// wakes blocked Enqueue callers.
type fifo struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf   []Task
	head  int
	tail  int
	count int

	shutdown bool
}

func newCond(l sync.Locker) *sync.Cond {
	return sync.NewCond(l)
}

func (q *fifo) Enqueue(task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.buf) && !q.shutdown {
		q.notFull.Wait()
	}
	if q.shutdown {
		return false
	}

	q.buf[q.tail] = task
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++

	q.notEmpty.Signal()
	return true
}

func (q *fifo) Dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.shutdown {
		q.notEmpty.Wait()
	}

	if q.count == 0 && q.shutdown {
		return Task{}, false
	}

	task := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.count--

	q.notFull.Signal()
	return task, true
}

func (q *fifo) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.shutdown = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

func (q *fifo) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
