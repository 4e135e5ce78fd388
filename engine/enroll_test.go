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
	"net"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/vaultmesh/logging"
	"github.com/sabouaram/vaultmesh/pki"
	"github.com/sabouaram/vaultmesh/queue"
	"github.com/sabouaram/vaultmesh/registry"
	"github.com/sabouaram/vaultmesh/topic"
)

var _ = Describe("Enrollment exchange", func() {
	var (
		e   *Engine
		csr []byte
	)

	BeforeEach(func() {
		auth, _, _, err := pki.NewSelfSigned("test-ca", time.Hour)
		Expect(err).ToNot(HaveOccurred())

		csr, _, err = pki.NewCSR("new-agent.example")
		Expect(err).ToNot(HaveOccurred())

		reg := registry.New(registry.Config{})
		e = New(Config{}, Deps{
			Log:       logging.Discard(),
			Registry:  reg,
			Topics:    topic.New(topic.Config{}, reg),
			Queue:     queue.New(queue.Config{}),
			Store:     newMemStore(),
			Authority: auth,
			Resolver: fakeResolver{byHost: map[string][]net.IP{
				"new-agent.example": {net.IPv4(10, 0, 0, 7)},
			}},
		})
	})

	log := func() logEntry { return logging.Component(logging.Discard(), "test") }

	It("issues a certificate when IP matches DNS", func() {
		req := "ENROLL new-agent.example\n" + string(csr)
		out := string(e.processEnrollment(log(), "10.0.0.7:50000", req))

		Expect(out).To(HavePrefix("SUCCESS: Certificate generated.\n"))
		Expect(out).To(ContainSubstring("-----BEGIN CERTIFICATE-----"))
	})

	It("refuses a peer whose IP is not in the DNS result set", func() {
		req := "ENROLL new-agent.example\n" + string(csr)
		out := string(e.processEnrollment(log(), "192.0.2.99:50000", req))

		Expect(out).To(Equal("ERROR: Security violation. IP does not match DNS.\n"))
	})

	It("refuses an unresolvable hostname", func() {
		req := "ENROLL bogus.example\n" + string(csr)
		out := string(e.processEnrollment(log(), "10.0.0.7:50000", req))

		Expect(out).To(Equal("ERROR: Security violation. IP does not match DNS.\n"))
	})

	It("requires a CSR block", func() {
		out := string(e.processEnrollment(log(), "10.0.0.7:50000", "ENROLL new-agent.example\njunk"))
		Expect(out).To(Equal("ERROR: No valid CSR block found in request.\n"))
	})

	It("rejects non-ENROLL requests", func() {
		out := string(e.processEnrollment(log(), "10.0.0.7:50000", "HELLO there\n"))
		Expect(out).To(Equal("ERROR: Lobby only accepts ENROLL <hostname> commands.\n"))
	})

	It("rejects a request with no newline at all", func() {
		out := string(e.processEnrollment(log(), "10.0.0.7:50000", strings.Repeat("x", 64)))
		Expect(out).To(Equal("ERROR: Invalid request format.\n"))
	})

	It("reports signing failure on a mangled CSR", func() {
		mangled := strings.Replace(string(csr), "REQUEST-----\n", "REQUEST-----\nAAAA", 1)
		out := string(e.processEnrollment(log(), "10.0.0.7:50000", "ENROLL new-agent.example\n"+mangled))
		Expect(out).To(Equal("ERROR: Certificate signing failed.\n"))
	})
})
