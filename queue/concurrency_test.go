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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sabouaram/vaultmesh/queue"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Queue concurrent producers/consumers", func() {
	It("delivers every enqueued task exactly once across many workers", func() {
		const producers = 8
		const perProducer = 200
		q := queue.New(queue.Config{Capacity: 16})

		var wg sync.WaitGroup
		wg.Add(producers)
		for i := 0; i < producers; i++ {
			go func() {
				defer wg.Done()
				for j := 0; j < perProducer; j++ {
					q.Enqueue(queue.Task{Handle: uuid.New()})
				}
			}()
		}

		var mu sync.Mutex
		seen := make(map[uuid.UUID]bool)
		done := make(chan struct{})

		go func() {
			for {
				t, ok := q.Dequeue()
				if !ok {
					close(done)
					return
				}
				mu.Lock()
				seen[t.Handle] = true
				mu.Unlock()
			}
		}()

		wg.Wait()
		// give the consumer a moment to drain, then shut the queue down
		// so the blocked Dequeue wakes with ok=false.
		Eventually(func() int { return q.Len() }, time.Second).Should(Equal(0))
		q.Shutdown()
		<-done

		Expect(seen).To(HaveLen(producers * perProducer))
	})

	It("wakes blocked Enqueue/Dequeue callers on Shutdown", func() {
		q := queue.New(queue.Config{Capacity: 1})
		Expect(q.Enqueue(queue.Task{Handle: uuid.New()})).To(BeTrue())

		blocked := make(chan bool, 1)
		go func() {
			blocked <- q.Enqueue(queue.Task{Handle: uuid.New()})
		}()

		time.Sleep(20 * time.Millisecond)
		q.Shutdown()

		Eventually(blocked, time.Second).Should(Receive(BeFalse()))
	})
})
