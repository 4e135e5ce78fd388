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
	"net"

	"github.com/sabouaram/vaultmesh/registry"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Connection inbound buffer", func() {
	var conn *registry.Connection

	BeforeEach(func() {
		r := registry.New(registry.Config{BufferCap: 16})
		_, server := net.Pipe()
		conn = r.Add(server, registry.ModeSecure)
		r.Unlock(conn)
	})

	It("returns no line until a newline has been appended", func() {
		buf := conn.Buffer()
		Expect(buf.Append([]byte("PING"))).To(BeTrue())
		_, ok := buf.ExtractLine()
		Expect(ok).To(BeFalse())
	})

	It("extracts a complete line and keeps the remainder for the next read", func() {
		buf := conn.Buffer()
		Expect(buf.Append([]byte("PING\nPONG"))).To(BeTrue())

		line, ok := buf.ExtractLine()
		Expect(ok).To(BeTrue())
		Expect(line).To(Equal("PING"))
		Expect(buf.Len()).To(Equal(len("PONG")))

		_, ok = buf.ExtractLine()
		Expect(ok).To(BeFalse())
	})

	It("strips a trailing carriage return", func() {
		buf := conn.Buffer()
		Expect(buf.Append([]byte("PING\r\n"))).To(BeTrue())
		line, ok := buf.ExtractLine()
		Expect(ok).To(BeTrue())
		Expect(line).To(Equal("PING"))
	})

	It("discards the whole buffer when an append would overflow capacity", func() {
		buf := conn.Buffer()
		Expect(buf.Append([]byte("0123456789"))).To(BeTrue())
		ok := buf.Append([]byte("0123456789"))
		Expect(ok).To(BeFalse())
		Expect(buf.Len()).To(Equal(0))
	})
})
