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
	"crypto"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"time"

	"github.com/sabouaram/vaultmesh/errs"
)

type authority struct {
	cert *x509.Certificate
	key  crypto.Signer
	pool *x509.CertPool
}

// Load reads the CA certificate and its private key from PEM files and
// returns the Authority that signs enrollment CSRs with them.
func Load(caCertPath, caKeyPath string) (Authority, error) {
	certPEM, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindTLS, err, "reading CA certificate %q", caCertPath)
	}
	keyPEM, err := os.ReadFile(caKeyPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindTLS, err, "reading CA key %q", caKeyPath)
	}
	return Parse(certPEM, keyPEM)
}

// Parse builds an Authority from in-memory PEM blocks.
func Parse(certPEM, keyPEM []byte) (Authority, error) {
	cert, err := decodeCertificate(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := decodePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	return &authority{cert: cert, key: key, pool: pool}, nil
}

func decodeCertificate(pemBytes []byte) (*x509.Certificate, error) {
	blk, _ := pem.Decode(pemBytes)
	if blk == nil || blk.Type != "CERTIFICATE" {
		return nil, errs.New(errs.KindTLS, "no CERTIFICATE block in PEM input")
	}
	cert, err := x509.ParseCertificate(blk.Bytes)
	if err != nil {
		return nil, errs.Wrap(errs.KindTLS, err, "parsing CA certificate")
	}
	if !cert.IsCA {
		return nil, errs.New(errs.KindTLS, "certificate is not a CA")
	}
	return cert, nil
}

func decodePrivateKey(pemBytes []byte) (crypto.Signer, error) {
	blk, _ := pem.Decode(pemBytes)
	if blk == nil {
		return nil, errs.New(errs.KindTLS, "no private key block in PEM input")
	}

	if k, err := x509.ParsePKCS8PrivateKey(blk.Bytes); err == nil {
		if s, ok := k.(crypto.Signer); ok {
			return s, nil
		}
		return nil, errs.New(errs.KindTLS, "unsupported private key type")
	}
	if k, err := x509.ParseECPrivateKey(blk.Bytes); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS1PrivateKey(blk.Bytes); err == nil {
		return k, nil
	}
	return nil, errs.New(errs.KindTLS, "unparseable private key")
}

func (a *authority) SignCSR(pemCSR []byte) ([]byte, error) {
	blk, _ := pem.Decode(pemCSR)
	if blk == nil || blk.Type != "CERTIFICATE REQUEST" {
		return nil, errs.New(errs.KindProtocol, "no CERTIFICATE REQUEST block in request")
	}

	csr, err := x509.ParseCertificateRequest(blk.Bytes)
	if err != nil {
		return nil, errs.Wrap(errs.KindProtocol, err, "parsing CSR")
	}
	if err = csr.CheckSignature(); err != nil {
		return nil, errs.Wrap(errs.KindTLS, err, "CSR signature check failed")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, errs.Wrap(errs.KindTLS, err, "generating serial number")
	}

	now := time.Now()
	tpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               csr.Subject,
		DNSNames:              csr.DNSNames,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(DefaultValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	if len(tpl.DNSNames) == 0 && tpl.Subject.CommonName != "" {
		tpl.DNSNames = []string{tpl.Subject.CommonName}
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, a.cert, csr.PublicKey, a.key)
	if err != nil {
		return nil, errs.Wrap(errs.KindTLS, err, "signing certificate")
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), nil
}

func (a *authority) CACertificate() *x509.Certificate { return a.cert }

func (a *authority) ServerTLSConfig(serverCert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    a.pool,
		MinVersion:   tls.VersionTLS12,
	}
}

// NewSelfSigned creates a fresh CA keypair, self-signs it, and returns
// the Authority together with its PEM-encoded certificate and key.
// Used at first boot when no CA material exists yet, and by tests.
func NewSelfSigned(commonName string, validity time.Duration) (Authority, []byte, []byte, error) {
	key, err := newKey()
	if err != nil {
		return nil, nil, nil, errs.Wrap(errs.KindTLS, err, "generating CA key")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, nil, errs.Wrap(errs.KindTLS, err, "generating serial number")
	}

	now := time.Now()
	tpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, key.Public(), key)
	if err != nil {
		return nil, nil, nil, errs.Wrap(errs.KindTLS, err, "self-signing CA certificate")
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, nil, errs.Wrap(errs.KindTLS, err, "re-parsing CA certificate")
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, nil, errs.Wrap(errs.KindTLS, err, "marshalling CA key")
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	return &authority{cert: cert, key: key, pool: pool}, certPEM, keyPEM, nil
}
