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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/vaultmesh/access"
	"github.com/sabouaram/vaultmesh/logging"
	"github.com/sabouaram/vaultmesh/queue"
	"github.com/sabouaram/vaultmesh/registry"
	"github.com/sabouaram/vaultmesh/topic"
)

var _ = Describe("Command tokenizer", func() {
	It("splits command, argument and payload", func() {
		cmd, arg, rest, n := splitCommand("PUBLISH CMD-GRP-1 reboot now")
		Expect(cmd).To(Equal("PUBLISH"))
		Expect(arg).To(Equal("CMD-GRP-1"))
		Expect(rest).To(Equal("reboot now"))
		Expect(n).To(Equal(3))
	})

	It("keeps payload-internal spacing", func() {
		_, _, rest, _ := splitCommand("SET motd hello   world")
		Expect(rest).To(Equal("hello   world"))
	})

	It("strips a trailing carriage return", func() {
		cmd, arg, _, n := splitCommand("PING now\r")
		Expect(cmd).To(Equal("PING"))
		Expect(arg).To(Equal("now"))
		Expect(n).To(Equal(2))
	})

	It("reports an empty line as zero fields", func() {
		_, _, _, n := splitCommand("   \r")
		Expect(n).To(Equal(0))
	})

	It("does not confuse an argument that prefixes the command", func() {
		cmd, arg, rest, n := splitCommand("SUBSCRIBE SUB")
		Expect(cmd).To(Equal("SUBSCRIBE"))
		Expect(arg).To(Equal("SUB"))
		Expect(rest).To(BeEmpty())
		Expect(n).To(Equal(2))
	})
})

var _ = Describe("Command dispatch", func() {
	var (
		e      *Engine
		reg    registry.Registry
		topics topic.Index
		st     *memStore
	)

	// addAgent registers a fake connection, binds identity, and
	// returns it locked, the way a worker holds it mid-cycle.
	addAgent := func(id string) (*registry.Connection, *fakeConn) {
		fc := newFakeConn("10.0.0.1:40000")
		c := reg.Add(fc, registry.ModeSecure)
		h := c.Handle()
		reg.Unlock(c)
		reg.BindIdentity(h, id)
		c = reg.LookupAndLock(h)
		Expect(c).ToNot(BeNil())
		c.SetState(registry.StateAuthenticated)
		return c, fc
	}

	BeforeEach(func() {
		policy, err := access.Load(writePolicy(GinkgoT().TempDir()))
		Expect(err).ToNot(HaveOccurred())

		reg = registry.New(registry.Config{})
		topics = topic.New(topic.Config{}, reg)
		st = newMemStore()

		e = New(Config{}, Deps{
			Log:      logging.Discard(),
			Registry: reg,
			Topics:   topics,
			Queue:    queue.New(queue.Config{}),
			Policy:   policy,
			Store:    st,
			Resolver: fakeResolver{},
		})
	})

	log := func() logEntry { return logging.Component(logging.Discard(), "test") }

	It("subscribes an allowed identity and confirms", func() {
		c, fc := addAgent("agent-01.example")
		defer reg.Unlock(c)

		_, alive := e.dispatch(log(), c, "SUBSCRIBE CMD-GRP-1")
		Expect(alive).To(BeTrue())
		Expect(fc.Written()).To(Equal("Subscribed to CMD-GRP-1\n"))
		Expect(topics.Snapshot()).To(HaveLen(1))
	})

	It("denies a subscribe outside the allow-list", func() {
		c, fc := addAgent("limited.example")
		defer reg.Unlock(c)

		_, alive := e.dispatch(log(), c, "SUBSCRIBE secret-topic")
		Expect(alive).To(BeTrue())
		Expect(fc.Written()).To(Equal("ERROR: Access denied.\n"))
		Expect(topics.Snapshot()).To(BeEmpty())
	})

	It("fans a publish out to subscribers and audits it", func() {
		sub, subConn := addAgent("agent-01.example")
		_, _ = e.dispatch(log(), sub, "SUBSCRIBE CMD-GRP-1")
		reg.Unlock(sub)

		pub, pubConn := addAgent("agent-02.example")
		c, alive := e.dispatch(log(), pub, "PUBLISH CMD-GRP-1 reboot now")
		Expect(alive).To(BeTrue())
		reg.Unlock(c)

		Expect(subConn.Written()).To(ContainSubstring("[CMD-GRP-1] reboot now\n"))
		Expect(pubConn.Written()).To(Equal("Published to CMD-GRP-1\n"))

		recs, _ := st.AuditTail(10)
		// One record for the subscribe, one for the publish.
		Expect(recs).To(HaveLen(2))
		Expect(recs[1].Sender).To(Equal("agent-02.example"))
		Expect(recs[1].Message).To(Equal("reboot now"))
	})

	It("suffix-wildcard publish rules allow b-prefixed topics only", func() {
		c, fc := addAgent("limited.example")

		got, alive := e.dispatch(log(), c, "PUBLISH backup starting")
		Expect(alive).To(BeTrue())
		Expect(fc.Written()).To(Equal("Published to backup\n"))

		_, alive = e.dispatch(log(), got, "PUBLISH c hi")
		Expect(alive).To(BeTrue())
		Expect(fc.Written()).To(ContainSubstring("ERROR: Access denied.\n"))
		reg.Unlock(got)

		recs, _ := st.AuditTail(10)
		// The denied publish never reaches the audit log.
		Expect(recs).To(HaveLen(1))
		Expect(recs[0].Topic).To(Equal("backup"))
	})

	It("round-trips SET then GET", func() {
		c, fc := addAgent("agent-01.example")
		defer reg.Unlock(c)

		_, _ = e.dispatch(log(), c, "SET uptime 12345")
		Expect(fc.Written()).To(Equal("SUCCESS: State 'uptime' updated.\n"))

		_, _ = e.dispatch(log(), c, "GET uptime")
		Expect(fc.Written()).To(ContainSubstring("VALUE: uptime=12345\n"))
	})

	It("scopes state to the caller's verified identity", func() {
		a, _ := addAgent("agent-01.example")
		_, _ = e.dispatch(log(), a, "SET uptime 1")
		reg.Unlock(a)

		b, fc := addAgent("agent-02.example")
		defer reg.Unlock(b)
		_, _ = e.dispatch(log(), b, "GET uptime")
		Expect(fc.Written()).To(Equal("ERROR: Key 'uptime' not found.\n"))
	})

	It("answers PING with PONG and swallows PONG", func() {
		c, fc := addAgent("agent-01.example")
		defer reg.Unlock(c)

		_, _ = e.dispatch(log(), c, "PING")
		_, _ = e.dispatch(log(), c, "PONG")
		Expect(fc.Written()).To(Equal("PONG\n"))
	})

	It("rejects unknown and under-filled commands", func() {
		c, fc := addAgent("agent-01.example")
		defer reg.Unlock(c)

		_, _ = e.dispatch(log(), c, "FROBNICATE x")
		_, _ = e.dispatch(log(), c, "PUBLISH only-two")
		_, _ = e.dispatch(log(), c, "GET")
		Expect(fc.Written()).To(Equal("ERROR: Invalid command.\nERROR: Invalid command.\nERROR: Invalid command.\n"))
	})

	It("skips a subscriber torn down between snapshot and fan-out", func() {
		sub, _ := addAgent("agent-01.example")
		h := sub.Handle()
		_, _ = e.dispatch(log(), sub, "SUBSCRIBE CMD-GRP-1")
		reg.Unlock(sub)
		reg.Remove(h, nil)

		pub, pubConn := addAgent("agent-02.example")
		c, alive := e.dispatch(log(), pub, "PUBLISH CMD-GRP-1 hello")
		Expect(alive).To(BeTrue())
		reg.Unlock(c)
		Expect(pubConn.Written()).To(Equal("Published to CMD-GRP-1\n"))
	})
})
