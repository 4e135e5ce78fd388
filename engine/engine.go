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
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sabouaram/vaultmesh/access"
	"github.com/sabouaram/vaultmesh/identity"
	"github.com/sabouaram/vaultmesh/metrics"
	"github.com/sabouaram/vaultmesh/pki"
	"github.com/sabouaram/vaultmesh/queue"
	"github.com/sabouaram/vaultmesh/registry"
	"github.com/sabouaram/vaultmesh/store"
	"github.com/sabouaram/vaultmesh/topic"
)

// Config sizes the engine.
type Config struct {
	// VaultPort is the mTLS command port; LobbyPort the plaintext
	// enrollment port.
	VaultPort int
	LobbyPort int

	// Workers is the fixed pool size. Zero selects 10.
	Workers int

	// SweepInterval is how often the idle sweeper runs; IdleThreshold
	// how long an authenticated connection may stay silent before it
	// is removed. Zero selects 10s / 60s.
	SweepInterval time.Duration
	IdleThreshold time.Duration

	// HandshakeTimeout bounds how long a worker may spend driving one
	// TLS handshake. Zero selects 5s.
	HandshakeTimeout time.Duration

	// ReadPoll bounds a single post-handshake read, so a readiness
	// event that carries only a partial TLS record cannot hold a
	// worker; the timeout is treated as want-read and the connection
	// is re-armed. Zero selects 50ms.
	ReadPoll time.Duration

	// WriteTimeout bounds reply and fan-out writes. Zero selects 5s.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Second
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = 60 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReadPoll <= 0 {
		c.ReadPoll = 50 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Deps are the engine's collaborators. Metrics may be nil.
type Deps struct {
	Log       *logrus.Logger
	Registry  registry.Registry
	Topics    topic.Index
	Queue     queue.Queue
	Policy    access.Table
	Store     store.Store
	Authority pki.Authority
	Resolver  identity.Resolver
	Metrics   *metrics.Set
	TLS       *tls.Config
}

type logEntry = *logrus.Entry

// Engine owns the acceptor, the worker pool and the sweeper.
type Engine struct {
	cfg Config

	log     *logrus.Entry
	reg     registry.Registry
	topics  topic.Index
	tasks   queue.Queue
	policy  access.Table
	st      store.Store
	ca      pki.Authority
	dns     identity.Resolver
	met     *metrics.Set
	tlsConf *tls.Config

	poll *poller

	mu       sync.Mutex
	fdByConn map[registry.Handle]int
	connByFD map[int32]registry.Handle

	vaultFD int
	lobbyFD int

	closing atomic.Bool
	wg      sync.WaitGroup
}

// New wires an Engine; no sockets are opened until Run.
func New(cfg Config, d Deps) *Engine {
	log := d.Log
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		log:      log.WithField("component", "engine"),
		reg:      d.Registry,
		topics:   d.Topics,
		tasks:    d.Queue,
		policy:   d.Policy,
		st:       d.Store,
		ca:       d.Authority,
		dns:      d.Resolver,
		met:      d.Metrics,
		tlsConf:  d.TLS,
		fdByConn: make(map[registry.Handle]int),
		connByFD: make(map[int32]registry.Handle),
		vaultFD:  -1,
		lobbyFD:  -1,
	}
}

func (e *Engine) trackFD(h registry.Handle, fd int) {
	e.mu.Lock()
	e.fdByConn[h] = fd
	e.connByFD[int32(fd)] = h
	e.mu.Unlock()
}

func (e *Engine) handleForFD(fd int32) (registry.Handle, bool) {
	e.mu.Lock()
	h, ok := e.connByFD[fd]
	e.mu.Unlock()
	return h, ok
}

func (e *Engine) fdForHandle(h registry.Handle) (int, bool) {
	e.mu.Lock()
	fd, ok := e.fdByConn[h]
	e.mu.Unlock()
	return fd, ok
}

func (e *Engine) untrack(h registry.Handle) {
	e.mu.Lock()
	if fd, ok := e.fdByConn[h]; ok {
		delete(e.connByFD, int32(fd))
		delete(e.fdByConn, h)
	}
	e.mu.Unlock()
}

// teardown is the registry.Remove hook: runs with the per-connection
// mutex held, after the record left both indexes. Order per the
// lifecycle contract: topics first, then tunnel, then socket.
func (e *Engine) teardown(c *registry.Connection) {
	e.topics.UnsubscribeAll(c.Handle())

	if fd, ok := e.fdForHandle(c.Handle()); ok {
		e.poll.remove(fd)
	}
	e.untrack(c.Handle())

	if c.Tunnel != nil {
		_ = c.Tunnel.Close()
	}
	_ = c.Conn().Close()

	if e.met != nil {
		e.met.ConnectionsAuthenticated.Set(float64(e.countAuthenticated()))
		e.met.TopicsTotal.Set(float64(len(e.topics.Snapshot())))
	}
}

func (e *Engine) countAuthenticated() int {
	n := 0
	for _, s := range e.reg.SnapshotStatus() {
		if s.State == registry.StateAuthenticated {
			n++
		}
	}
	return n
}

// remove takes a connection out of service through the registry, which
// waits for any in-flight worker before invoking teardown.
func (e *Engine) remove(h registry.Handle) {
	e.reg.Remove(h, e.teardown)
}

// Run opens both listening ports and blocks until ctx is cancelled,
// then drains workers and tears every connection down.
func (e *Engine) Run(ctx context.Context) error {
	var err error

	if e.poll, err = newPoller(); err != nil {
		return err
	}
	defer e.poll.close()

	if e.vaultFD, err = listenTCP(e.cfg.VaultPort); err != nil {
		return err
	}
	if e.lobbyFD, err = listenTCP(e.cfg.LobbyPort); err != nil {
		_ = closeFD(e.vaultFD)
		return err
	}

	if err = e.poll.addListener(e.vaultFD); err != nil {
		e.closeListeners()
		return err
	}
	if err = e.poll.addListener(e.lobbyFD); err != nil {
		e.closeListeners()
		return err
	}

	e.log.WithFields(logrus.Fields{
		"vault_port": e.cfg.VaultPort,
		"lobby_port": e.cfg.LobbyPort,
		"workers":    e.cfg.Workers,
	}).Info("engine starting")

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	e.wg.Add(1)
	go e.sweeper(ctx)

	e.acceptLoop(ctx)

	// Shutdown: stop feeding workers, wake them to drain and exit,
	// then remove whatever is still registered.
	e.closing.Store(true)
	e.closeListeners()
	e.tasks.Shutdown()
	e.wg.Wait()

	for _, s := range e.reg.SnapshotStatus() {
		e.remove(s.Handle)
	}

	e.log.Info("engine stopped")
	return nil
}

func (e *Engine) closeListeners() {
	if e.vaultFD >= 0 {
		_ = closeFD(e.vaultFD)
		e.vaultFD = -1
	}
	if e.lobbyFD >= 0 {
		_ = closeFD(e.lobbyFD)
		e.lobbyFD = -1
	}
}

// sweeper is the heartbeat thread: every SweepInterval it removes
// authenticated connections idle past IdleThreshold. Removal goes
// through the normal registry path, so it never interrupts a worker
// mid-dispatch.
func (e *Engine) sweeper(ctx context.Context) {
	defer e.wg.Done()

	t := time.NewTicker(e.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			before := len(e.reg.SnapshotStatus())
			e.reg.SweepIdle(e.cfg.IdleThreshold, e.teardown)
			if swept := before - len(e.reg.SnapshotStatus()); swept > 0 {
				e.log.WithField("count", swept).Warn("removed idle connections")
				if e.met != nil {
					e.met.SweptTotal.Add(float64(swept))
				}
			}
		}
	}
}
