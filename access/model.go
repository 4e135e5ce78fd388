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

type table struct {
	roles    map[string]Role
	mappings []mapping
}

func (t *table) RoleFor(identity string) string {
	for _, m := range t.mappings {
		if matchPattern(m.pattern, identity) {
			return m.role
		}
	}
	return DefaultRole
}

func (t *table) role(identity string) (Role, bool) {
	r, ok := t.roles[t.RoleFor(identity)]
	return r, ok
}

func (t *table) CanSubscribe(identity, topic string) bool {
	r, ok := t.role(identity)
	return ok && r.Subscribe.allows(topic)
}

func (t *table) CanUnsubscribe(identity, topic string) bool {
	return t.CanSubscribe(identity, topic)
}

func (t *table) CanPublish(identity, topic string) bool {
	r, ok := t.role(identity)
	return ok && r.Publish.allows(topic)
}

func (t *table) CanSet(identity, key string) bool {
	r, ok := t.role(identity)
	return ok && r.Set.allows(key)
}
