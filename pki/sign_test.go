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

package pki_test

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/vaultmesh/errs"
	"github.com/sabouaram/vaultmesh/pki"
)

var _ = Describe("Certificate authority", func() {
	var (
		auth   pki.Authority
		caCert []byte
		caKey  []byte
	)

	BeforeEach(func() {
		var err error
		auth, caCert, caKey, err = pki.NewSelfSigned("vaultmesh-test-ca", time.Hour)
		Expect(err).ToNot(HaveOccurred())
	})

	It("round-trips through PEM", func() {
		reloaded, err := pki.Parse(caCert, caKey)
		Expect(err).ToNot(HaveOccurred())
		Expect(reloaded.CACertificate().Subject.CommonName).To(Equal("vaultmesh-test-ca"))
	})

	It("signs a valid CSR with 365-day validity", func() {
		csrPEM, _, err := pki.NewCSR("agent-01.example")
		Expect(err).ToNot(HaveOccurred())

		certPEM, err := auth.SignCSR(csrPEM)
		Expect(err).ToNot(HaveOccurred())

		blk, _ := pem.Decode(certPEM)
		Expect(blk).ToNot(BeNil())
		cert, err := x509.ParseCertificate(blk.Bytes)
		Expect(err).ToNot(HaveOccurred())

		Expect(cert.Subject.CommonName).To(Equal("agent-01.example"))
		Expect(cert.NotAfter.Sub(cert.NotBefore)).To(BeNumerically("~", pki.DefaultValidity, 2*time.Minute))

		pool := x509.NewCertPool()
		pool.AddCert(auth.CACertificate())
		_, err = cert.Verify(x509.VerifyOptions{
			Roots:     pool,
			KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		})
		Expect(err).ToNot(HaveOccurred())
	})

	It("rejects garbage input", func() {
		_, err := auth.SignCSR([]byte("not a csr at all"))
		Expect(err).To(HaveOccurred())
		Expect(errs.Is(err, errs.KindProtocol)).To(BeTrue())
	})

	It("rejects a PEM block of the wrong type", func() {
		_, err := auth.SignCSR(caCert)
		Expect(err).To(HaveOccurred())
	})

	It("builds a mutual-TLS server config", func() {
		certPEM, keyPEM, err := pki.IssueServerCert(auth, "broker.example")
		Expect(err).ToNot(HaveOccurred())

		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		Expect(err).ToNot(HaveOccurred())

		cfg := auth.ServerTLSConfig(pair)
		Expect(cfg.ClientAuth).To(Equal(tls.RequireAndVerifyClientCert))
		Expect(cfg.ClientCAs).ToNot(BeNil())
		Expect(cfg.MinVersion).To(BeEquivalentTo(tls.VersionTLS12))
	})
})
