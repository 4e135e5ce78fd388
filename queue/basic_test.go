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

package queue_test

import (
	"github.com/google/uuid"
	"github.com/sabouaram/vaultmesh/queue"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Queue basic FIFO behavior", func() {
	It("dequeues in the order tasks were enqueued", func() {
		q := queue.New(queue.Config{Capacity: 4})

		a := queue.Task{Handle: uuid.New(), Mode: queue.ModeSecure}
		b := queue.Task{Handle: uuid.New(), Mode: queue.ModeEnrollment}

		Expect(q.Enqueue(a)).To(BeTrue())
		Expect(q.Enqueue(b)).To(BeTrue())
		Expect(q.Len()).To(Equal(2))

		got1, ok := q.Dequeue()
		Expect(ok).To(BeTrue())
		Expect(got1).To(Equal(a))

		got2, ok := q.Dequeue()
		Expect(ok).To(BeTrue())
		Expect(got2).To(Equal(b))

		Expect(q.Len()).To(Equal(0))
	})

	It("defaults to capacity 100 when configured with zero", func() {
		q := queue.New(queue.Config{})
		for i := 0; i < queue.DefaultCapacity; i++ {
			Expect(q.Enqueue(queue.Task{Handle: uuid.New()})).To(BeTrue())
		}
		Expect(q.Len()).To(Equal(queue.DefaultCapacity))
	})

	It("returns ok=false from Dequeue once shut down and drained", func() {
		q := queue.New(queue.Config{Capacity: 2})
		Expect(q.Enqueue(queue.Task{Handle: uuid.New()})).To(BeTrue())

		q.Shutdown()

		_, ok := q.Dequeue()
		Expect(ok).To(BeTrue(), "one buffered task must still drain")

		_, ok = q.Dequeue()
		Expect(ok).To(BeFalse(), "queue is empty and shut down")
	})

	It("rejects further Enqueue calls after shutdown", func() {
		q := queue.New(queue.Config{Capacity: 2})
		q.Shutdown()
		Expect(q.Enqueue(queue.Task{Handle: uuid.New()})).To(BeFalse())
	})
})
