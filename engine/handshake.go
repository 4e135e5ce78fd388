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
	"crypto/tls"
	"time"

	"github.com/sabouaram/vaultmesh/identity"
	"github.com/sabouaram/vaultmesh/registry"
)

// driveHandshake completes the mutual-TLS negotiation and then runs
// identity verification: the certificate's common name must resolve in
// DNS to the socket's own peer address. Entered with the connection
// locked; always leaves it unlocked.
//
// crypto/tls drives the record exchange internally, so unlike the
// readiness-per-step pattern a raw TLS library needs, one worker
// invocation either finishes the handshake or fails it; the deadline
// bounds how long a slow peer can occupy this worker.
func (e *Engine) driveHandshake(log logEntry, c *registry.Connection) {
	h := c.Handle()
	tun, ok := c.Tunnel.(*tls.Conn)
	if !ok {
		e.reg.Unlock(c)
		e.remove(h)
		return
	}

	_ = tun.SetDeadline(time.Now().Add(e.cfg.HandshakeTimeout))
	err := tun.Handshake()
	_ = tun.SetDeadline(time.Time{})

	if err != nil {
		log.WithError(err).Debug("tls handshake failed")
		e.reg.Unlock(c)
		e.remove(h)
		return
	}

	state := tun.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		log.Debug("peer presented no certificate")
		e.reg.Unlock(c)
		e.remove(h)
		return
	}
	cn := state.PeerCertificates[0].Subject.CommonName

	addr := peerIP(c.Conn())
	e.reg.Unlock(c)

	// DNS corroboration runs without any lock held: resolution can be
	// slow and needs neither the registry nor the record.
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.HandshakeTimeout)
	verified := cn != "" && identity.Verify(ctx, e.dns, cn, addr)
	cancel()

	if !verified {
		log.WithFields(map[string]interface{}{
			"identity": cn,
			"peer":     addr.String(),
		}).Warn("identity verification failed, closing")
		e.remove(h)
		return
	}

	// BindIdentity installs the secondary index entry; an older
	// connection holding the same name is orphaned, not torn down.
	e.reg.BindIdentity(h, cn)

	c = e.reg.LookupAndLock(h)
	if c == nil {
		return
	}
	if c.State() == registry.StateClosing {
		e.reg.Unlock(c)
		return
	}
	c.SetState(registry.StateAuthenticated)
	c.Touch(time.Now())
	e.reg.Unlock(c)

	log.WithField("identity", cn).Info("agent authenticated")
	if e.met != nil {
		e.met.ConnectionsAuthenticated.Set(float64(e.countAuthenticated()))
	}

	e.rearmOrDrop(log, h)
}
