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

package pki

import (
	"crypto/tls"
	"crypto/x509"
	"time"
)

// DefaultValidity is the lifetime given to every certificate this CA
// signs.
const DefaultValidity = 365 * 24 * time.Hour

// Authority is the CA signer collaborator: sign_csr(pem_in) -> pem_out
// | error.
type Authority interface {
	// SignCSR parses a PEM-encoded PKCS#10 certificate signing request,
	// verifies its self-signature, and issues a PEM-encoded leaf
	// certificate under this authority, valid for DefaultValidity.
	SignCSR(pemCSR []byte) (pemCert []byte, err error)

	// CACertificate returns the authority's own certificate, for
	// building client/server trust pools.
	CACertificate() *x509.Certificate

	// ServerTLSConfig builds a *tls.Config for the vault listener:
	// presents serverCert, requires and verifies a client certificate
	// against this authority's pool.
	ServerTLSConfig(serverCert tls.Certificate) *tls.Config
}
