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

import (
	"fmt"
	"sync"

	"github.com/sabouaram/vaultmesh/errs"
	"github.com/sabouaram/vaultmesh/registry"
)

type index struct {
	mu        sync.Mutex
	maxTopics int
	maxSubs   int
	resolver  Resolver
	topics    map[string]map[registry.Handle]struct{}
}

func (x *index) Subscribe(handle registry.Handle, topicName string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	subs, ok := x.topics[topicName]
	if !ok {
		if len(x.topics) >= x.maxTopics {
			return errs.New(errs.KindCapacity, "topic index full (max %d topics)", x.maxTopics)
		}
		subs = make(map[registry.Handle]struct{})
		x.topics[topicName] = subs
	}

	if _, already := subs[handle]; !already && len(subs) >= x.maxSubs {
		return errs.New(errs.KindCapacity, "topic %q full (max %d subscribers)", topicName, x.maxSubs)
	}

	subs[handle] = struct{}{}
	return nil
}

func (x *index) Unsubscribe(handle registry.Handle, topicName string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if subs, ok := x.topics[topicName]; ok {
		delete(subs, handle)
	}
}

func (x *index) UnsubscribeAll(handle registry.Handle) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, subs := range x.topics {
		delete(subs, handle)
	}
}

func (x *index) Publish(topicName, payload string) int {
	x.mu.Lock()
	subs, ok := x.topics[topicName]
	var handles []registry.Handle
	if ok {
		handles = make([]registry.Handle, 0, len(subs))
		for h := range subs {
			handles = append(handles, h)
		}
	}
	x.mu.Unlock()

	if !ok {
		return 0
	}

	frame := []byte(fmt.Sprintf("[%s] %s\n", topicName, payload))

	delivered := 0
	for _, h := range handles {
		conn := x.resolver.LookupAndLock(h)
		if conn == nil {
			// Stale subscriber: removed between snapshot and fan-out.
			continue
		}
		if conn.State() != registry.StateClosing {
			if _, err := conn.Write(frame); err == nil {
				delivered++
			}
		}
		x.resolver.Unlock(conn)
	}
	return delivered
}

func (x *index) Snapshot() []Snapshot {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]Snapshot, 0, len(x.topics))
	for name, subs := range x.topics {
		out = append(out, Snapshot{Name: name, Subscribers: len(subs)})
	}
	return out
}
