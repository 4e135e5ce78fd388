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

package store_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/vaultmesh/errs"
	"github.com/sabouaram/vaultmesh/store"
)

var _ = Describe("Persistent state store", func() {
	var st store.Store

	BeforeEach(func() {
		var err error
		st, err = store.Open(GinkgoT().TempDir())
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(st.Close()).To(Succeed())
	})

	It("round-trips SET then GET", func() {
		Expect(st.SetState("agent-01.example", "uptime", "12345")).To(Succeed())

		v, err := st.GetState("agent-01.example", "uptime")
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal("12345"))
	})

	It("replaces on repeated SET, latest write wins", func() {
		Expect(st.SetState("agent-01.example", "uptime", "1")).To(Succeed())
		Expect(st.SetState("agent-01.example", "uptime", "2")).To(Succeed())

		v, err := st.GetState("agent-01.example", "uptime")
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal("2"))
	})

	It("keys by (identity, key), not key alone", func() {
		Expect(st.SetState("agent-01.example", "uptime", "1")).To(Succeed())
		Expect(st.SetState("agent-02.example", "uptime", "2")).To(Succeed())

		v, err := st.GetState("agent-01.example", "uptime")
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal("1"))
	})

	It("reports a missing pair as not found", func() {
		_, err := st.GetState("agent-01.example", "nope")
		Expect(err).To(HaveOccurred())
		Expect(errs.Is(err, errs.KindNotFound)).To(BeTrue())
	})

	It("appends audit records in order", func() {
		Expect(st.Log("admin", "CMD-GRP-1", "reboot now")).To(Succeed())
		Expect(st.Log("admin", "CMD-GRP-1", "shutdown")).To(Succeed())

		recs, err := st.AuditTail(10)
		Expect(err).ToNot(HaveOccurred())
		Expect(recs).To(HaveLen(2))
		Expect(recs[0].Message).To(Equal("reboot now"))
		Expect(recs[1].Message).To(Equal("shutdown"))
		Expect(recs[0].Sender).To(Equal("admin"))
		Expect(recs[0].Topic).To(Equal("CMD-GRP-1"))
	})

	It("returns nothing from an empty audit log", func() {
		recs, err := st.AuditTail(10)
		Expect(err).ToNot(HaveOccurred())
		Expect(recs).To(BeEmpty())
	})
})
