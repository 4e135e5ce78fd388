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

package access

// DefaultRole is the role name assigned when no identity-map entry
// matches a connection's verified identity.
const DefaultRole = "DEFAULT"

// verbRule is one role's allow-list for a single verb: either
// wildcard-all, or a set of literal/prefix-wildcard name patterns.
type verbRule struct {
	wildcard bool
	items    []string
}

// Role is a named permission set over the three verbs the broker
// gates: subscribe, publish, set.
type Role struct {
	Name      string
	Subscribe verbRule
	Publish   verbRule
	Set       verbRule
}

// mapping is one ordered entry of the identity->role table.
type mapping struct {
	pattern string
	role    string
}

// Table is the loaded access policy: every role plus the ordered
// identity->role map. Every predicate is pure and safe for concurrent
// use by multiple goroutines, since it is never mutated after Load.
type Table interface {
	// CanSubscribe reports whether identity's role permits
	// subscribing to topic.
	CanSubscribe(identity, topic string) bool
	// CanUnsubscribe reports whether identity's role permits
	// unsubscribing from topic. Matches CanSubscribe's rule, per
	// §4.4: unsubscribe is gated by the same subscribe allow-list.
	CanUnsubscribe(identity, topic string) bool
	// CanPublish reports whether identity's role permits publishing
	// to topic.
	CanPublish(identity, topic string) bool
	// CanSet reports whether identity's role permits writing key.
	CanSet(identity, key string) bool
	// RoleFor resolves identity to its role name via the ordered
	// identity->role map, first match wins, defaulting to
	// DefaultRole if nothing matches.
	RoleFor(identity string) string
}
