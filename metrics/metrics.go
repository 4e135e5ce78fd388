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

// Package metrics exposes the broker's operational counters and gauges
// over an optional Prometheus /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles every instrument the broker updates.
type Set struct {
	reg *prometheus.Registry

	// ConnectionsAuthenticated tracks live, handshake-complete
	// connections on the vault port.
	ConnectionsAuthenticated prometheus.Gauge

	// TopicsTotal tracks how many topics currently exist in the index.
	TopicsTotal prometheus.Gauge

	// QueueDepth tracks buffered tasks waiting for a worker.
	QueueDepth prometheus.Gauge

	// PublishTotal counts accepted PUBLISH commands.
	PublishTotal prometheus.Counter

	// AccessDeniedTotal counts policy rejections across all verbs.
	AccessDeniedTotal prometheus.Counter

	// EnrollmentsTotal counts certificates issued over the lobby port.
	EnrollmentsTotal prometheus.Counter

	// SweptTotal counts connections removed by the idle sweeper.
	SweptTotal prometheus.Counter
}

// New builds and registers the broker's instrument set on a private
// registry, so tests can build as many as they like without colliding
// on the global default.
func New() *Set {
	s := &Set{
		reg: prometheus.NewRegistry(),
		ConnectionsAuthenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vaultmesh_connections_authenticated",
			Help: "Live authenticated connections on the vault port.",
		}),
		TopicsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vaultmesh_topics_total",
			Help: "Topics currently present in the index.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vaultmesh_queue_depth",
			Help: "Tasks buffered in the event queue.",
		}),
		PublishTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultmesh_publish_total",
			Help: "PUBLISH commands accepted by policy.",
		}),
		AccessDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultmesh_access_denied_total",
			Help: "Commands rejected by the access policy.",
		}),
		EnrollmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultmesh_enrollments_total",
			Help: "Certificates issued over the lobby port.",
		}),
		SweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultmesh_swept_total",
			Help: "Connections removed by the idle sweeper.",
		}),
	}

	s.reg.MustRegister(
		s.ConnectionsAuthenticated,
		s.TopicsTotal,
		s.QueueDepth,
		s.PublishTotal,
		s.AccessDeniedTotal,
		s.EnrollmentsTotal,
		s.SweptTotal,
	)
	return s
}

// Handler returns the scrape handler for this set.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

// Serve blocks serving /metrics on addr. Intended to run in its own
// goroutine; errors are returned for the caller to log.
func (s *Set) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	return http.ListenAndServe(addr, mux)
}
