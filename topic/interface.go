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

package topic

import "github.com/sabouaram/vaultmesh/registry"

// Broadcast is the distinguished topic name reachable to every agent
// that requests it.
const Broadcast = "BROADCAST"

// Default bounds on index growth.
const (
	DefaultMaxTopics              = 50
	DefaultMaxSubscribersPerTopic = 100
)

// Config bounds the index's growth.
type Config struct {
	MaxTopics              int
	MaxSubscribersPerTopic int
}

// Snapshot is a point-in-time view of one topic's subscriber count,
// for the admin STATUS command.
type Snapshot struct {
	Name        string
	Subscribers int
}

// Resolver is the subset of registry.Registry the index needs in order
// to write a published frame to each subscriber. It exists so Publish
// can be unit-tested against a fake without standing up a real
// registry.
type Resolver interface {
	LookupAndLock(handle registry.Handle) *registry.Connection
	Unlock(conn *registry.Connection)
}

// Index is the topic-name-to-subscribers map.
type Index interface {
	// Subscribe adds handle to topic's subscriber set, creating the
	// topic if it does not exist. A duplicate subscribe is a no-op and
	// still yields exactly one delivery per future publish.
	Subscribe(handle registry.Handle, topicName string) error

	// Unsubscribe removes handle from topic's subscriber set, if
	// present. Unknown topic or handle is a no-op.
	Unsubscribe(handle registry.Handle, topicName string)

	// UnsubscribeAll removes handle from every topic it is currently
	// subscribed to. Called during connection teardown.
	UnsubscribeAll(handle registry.Handle)

	// Publish writes "[<topic>] <payload>\n" to every current
	// subscriber of topic and returns how many deliveries succeeded.
	// Callers MUST NOT hold their own per-connection mutex when calling
	// Publish: fan-out acquires each subscriber's mutex one at a time
	// through the Resolver, and holding two connection mutexes at once
	// risks an ABBA deadlock with a concurrent publish in the other
	// direction.
	Publish(topicName, payload string) int

	// Snapshot returns the current subscriber count for every topic.
	Snapshot() []Snapshot
}

// New builds an Index bounded by cfg and backed by resolver for
// fan-out writes.
func New(cfg Config, resolver Resolver) Index {
	maxTopics := cfg.MaxTopics
	if maxTopics <= 0 {
		maxTopics = DefaultMaxTopics
	}
	maxSubs := cfg.MaxSubscribersPerTopic
	if maxSubs <= 0 {
		maxSubs = DefaultMaxSubscribersPerTopic
	}
	return &index{
		maxTopics: maxTopics,
		maxSubs:   maxSubs,
		resolver:  resolver,
		topics:    make(map[string]map[registry.Handle]struct{}),
	}
}
