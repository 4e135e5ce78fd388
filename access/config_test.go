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

package access_test

import (
	"os"
	"path/filepath"

	"github.com/sabouaram/vaultmesh/access"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const policyFixture = `
[role:ADMIN]
SUBSCRIBE = *
PUBLISH = *
SET = *

[role:WORKER]
SUBSCRIBE = CMD-GRP-1,CMD-GRP-2,jobs.*
PUBLISH = results.*
SET = worker.*

[map]
admin.example = ADMIN
worker-* = WORKER
`

func writeFixture(dir string) string {
	path := filepath.Join(dir, "rbac.conf")
	Expect(os.WriteFile(path, []byte(policyFixture), 0o644)).To(Succeed())
	return path
}

var _ = Describe("Access policy loading", func() {
	var tbl access.Table

	BeforeEach(func() {
		tbl = mustLoad(writeFixture(GinkgoT().TempDir()))
	})

	It("resolves an identity to its mapped role, first match wins", func() {
		Expect(tbl.RoleFor("admin.example")).To(Equal("ADMIN"))
		Expect(tbl.RoleFor("worker-7.example")).To(Equal("WORKER"))
	})

	It("defaults to DEFAULT for an identity matching no mapping entry", func() {
		Expect(tbl.RoleFor("stranger.example")).To(Equal(access.DefaultRole))
	})

	It("grants allow-all roles every verb", func() {
		Expect(tbl.CanSubscribe("admin.example", "anything")).To(BeTrue())
		Expect(tbl.CanPublish("admin.example", "anything")).To(BeTrue())
		Expect(tbl.CanSet("admin.example", "anything")).To(BeTrue())
	})

	It("honors literal and prefix-wildcard entries in a role's list", func() {
		Expect(tbl.CanSubscribe("worker-7.example", "CMD-GRP-1")).To(BeTrue())
		Expect(tbl.CanSubscribe("worker-7.example", "jobs.42")).To(BeTrue())
		Expect(tbl.CanSubscribe("worker-7.example", "CMD-GRP-9")).To(BeFalse())
	})

	It("denies by default when the resolved role has no matching entry", func() {
		Expect(tbl.CanPublish("worker-7.example", "CMD-GRP-1")).To(BeFalse())
		Expect(tbl.CanPublish("worker-7.example", "results.nightly")).To(BeTrue())
	})

	It("denies an identity that resolves to a role absent from the table", func() {
		Expect(tbl.CanSubscribe("stranger.example", "anything")).To(BeFalse())
	})

	It("gates unsubscribe by the same rule as subscribe", func() {
		Expect(tbl.CanUnsubscribe("worker-7.example", "jobs.1")).To(BeTrue())
		Expect(tbl.CanUnsubscribe("worker-7.example", "CMD-GRP-9")).To(BeFalse())
	})
})

func mustLoad(path string) access.Table {
	tbl, err := access.Load(path)
	Expect(err).NotTo(HaveOccurred())
	return tbl
}
