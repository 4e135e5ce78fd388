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

package registry_test

import (
	"time"

	"github.com/sabouaram/vaultmesh/registry"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry lock ordering under contention", func() {
	It("blocks Remove until the in-flight LookupAndLock holder releases the connection", func() {
		r := registry.New(registry.Config{})
		_, server := newPipe()
		c := r.Add(server, registry.ModeSecure)
		r.Unlock(c)

		held := r.LookupAndLock(c.Handle())
		Expect(held).NotTo(BeNil())

		removed := make(chan struct{})
		go func() {
			r.Remove(c.Handle(), nil)
			close(removed)
		}()

		// Remove must not complete while the worker still holds the
		// per-connection mutex.
		Consistently(removed, 100*time.Millisecond).ShouldNot(BeClosed())

		r.Unlock(held)
		Eventually(removed, time.Second).Should(BeClosed())
	})

	It("allows independent connections to be looked up concurrently without blocking each other", func() {
		r := registry.New(registry.Config{})
		_, s1 := newPipe()
		_, s2 := newPipe()
		c1 := r.Add(s1, registry.ModeSecure)
		r.Unlock(c1)
		c2 := r.Add(s2, registry.ModeSecure)
		r.Unlock(c2)

		h1 := r.LookupAndLock(c1.Handle())
		Expect(h1).NotTo(BeNil())
		defer r.Unlock(h1)

		done := make(chan struct{})
		go func() {
			h2 := r.LookupAndLock(c2.Handle())
			r.Unlock(h2)
			close(done)
		}()

		Eventually(done, time.Second).Should(BeClosed())
	})
})
