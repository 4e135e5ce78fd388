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
	"context"
	"net"
	"strings"
	"time"

	"github.com/sabouaram/vaultmesh/identity"
	"github.com/sabouaram/vaultmesh/registry"
)

const (
	// enrollReadLimit caps the single read an enrollment session gets.
	enrollReadLimit = 4096

	csrMarker = "-----BEGIN CERTIFICATE REQUEST-----"
)

// serveEnrollment runs the lobby port's one-shot exchange: read one
// request, verify the claimed hostname against the peer's address,
// sign the embedded CSR, reply, close. Enrollment connections are
// never registered with the topic index or the state store.
func (e *Engine) serveEnrollment(log logEntry, h registry.Handle) {
	c := e.reg.LookupAndLock(h)
	if c == nil {
		return
	}

	nc := c.Conn()
	buf := make([]byte, enrollReadLimit)
	_ = nc.SetReadDeadline(time.Now().Add(e.cfg.ReadPoll))
	n, err := nc.Read(buf)

	if err != nil && isWouldBlock(err) {
		e.reg.Unlock(c)
		e.rearmOrDrop(log, h)
		return
	}
	if n <= 0 {
		e.reg.Unlock(c)
		e.remove(h)
		return
	}

	request := string(buf[:n])
	reply := e.processEnrollment(log, nc.RemoteAddr().String(), request)

	_ = nc.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout))
	_, _ = nc.Write(reply)

	e.reg.Unlock(c)
	e.remove(h)
}

// processEnrollment parses and answers one enrollment request. Split
// from the socket handling so tests can drive it with plain strings.
func (e *Engine) processEnrollment(log logEntry, remoteAddr, request string) []byte {
	nl := strings.IndexByte(request, '\n')
	if nl < 0 {
		return []byte("ERROR: Invalid request format.\n")
	}

	cmd, host, _, n := splitCommand(request[:nl])
	if n < 2 || cmd != "ENROLL" {
		return []byte("ERROR: Lobby only accepts ENROLL <hostname> commands.\n")
	}

	addr := remoteAddr
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		addr = addr[:i]
	}

	log.WithFields(map[string]interface{}{
		"hostname": host,
		"peer":     addr,
	}).Info("validating enrollment request")

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.HandshakeTimeout)
	verified := identity.Verify(ctx, e.dns, host, net.ParseIP(addr))
	cancel()
	if !verified {
		return []byte("ERROR: Security violation. IP does not match DNS.\n")
	}

	i := strings.Index(request, csrMarker)
	if i < 0 {
		return []byte("ERROR: No valid CSR block found in request.\n")
	}

	certPEM, err := e.ca.SignCSR([]byte(request[i:]))
	if err != nil {
		log.WithError(err).Warn("certificate signing failed")
		return []byte("ERROR: Certificate signing failed.\n")
	}

	log.WithField("hostname", host).Info("certificate issued")
	if e.met != nil {
		e.met.EnrollmentsTotal.Inc()
	}

	out := make([]byte, 0, len(certPEM)+32)
	out = append(out, "SUCCESS: Certificate generated.\n"...)
	out = append(out, certPEM...)
	return out
}
