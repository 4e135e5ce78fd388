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
	"fmt"
	"strings"

	"github.com/sabouaram/vaultmesh/errs"
	"github.com/sabouaram/vaultmesh/registry"
)

const (
	replyDenied  = "ERROR: Access denied.\n"
	replyInvalid = "ERROR: Invalid command.\n"
)

// splitCommand tokenizes one frame into up to three fields: the
// command word, its first argument, and the untouched rest of the
// line. Runs of whitespace separate the first two fields only; the
// rest keeps its internal spacing (it is a publish payload or a state
// value).
func splitCommand(line string) (cmd, arg, rest string, n int) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if line == "" {
		return "", "", "", 0
	}

	fields := strings.Fields(line)
	cmd = fields[0]
	if len(fields) == 1 {
		return cmd, "", "", 1
	}

	after := strings.TrimLeft(line[len(cmd):], " \t")
	if i := strings.IndexAny(after, " \t"); i >= 0 {
		arg = after[:i]
		rest = strings.TrimLeft(after[i:], " \t")
	} else {
		arg = after
	}
	n = 2
	if rest != "" {
		n = 3
	}
	return cmd, arg, rest, n
}

// dispatch handles one complete frame. It returns the (possibly
// re-acquired) connection and whether it is still alive and locked;
// PUBLISH must drop the caller's own per-connection mutex before
// fanning out, so the connection may legitimately vanish mid-command.
func (e *Engine) dispatch(log logEntry, c *registry.Connection, line string) (*registry.Connection, bool) {
	cmd, arg, rest, n := splitCommand(line)
	if n == 0 {
		return c, true
	}

	id := c.Identity()

	switch {
	case cmd == "SUBSCRIBE" && n >= 2:
		if !e.policy.CanSubscribe(id, arg) {
			e.denied(log, c, id, "subscribe", arg)
			return c, true
		}
		if err := e.st.Log(id, arg, rest); err != nil {
			log.WithError(err).Warn("audit append failed")
		}
		if err := e.topics.Subscribe(c.Handle(), arg); err != nil {
			if errs.Is(err, errs.KindCapacity) {
				log.WithFields(map[string]interface{}{
					"identity": id,
					"topic":    arg,
				}).Warn("subscription dropped, topic index full")
			}
		}
		e.reply(c, fmt.Sprintf("Subscribed to %s\n", arg))
		if e.met != nil {
			e.met.TopicsTotal.Set(float64(len(e.topics.Snapshot())))
		}
		return c, true

	case cmd == "UNSUBSCRIBE" && n >= 2:
		if !e.policy.CanUnsubscribe(id, arg) {
			e.denied(log, c, id, "unsubscribe", arg)
			return c, true
		}
		e.topics.Unsubscribe(c.Handle(), arg)
		e.reply(c, fmt.Sprintf("Unsubscribed from %s\n", arg))
		return c, true

	case cmd == "PUBLISH" && n == 3:
		if !e.policy.CanPublish(id, arg) {
			e.denied(log, c, id, "publish", arg)
			return c, true
		}
		if err := e.st.Log(id, arg, rest); err != nil {
			log.WithError(err).Warn("audit append failed")
		}

		// Fan-out acquires other connections' mutexes; holding our own
		// across it would invert the lock order against a concurrent
		// publisher. Drop it, publish, then re-acquire and recheck.
		h := c.Handle()
		e.reg.Unlock(c)

		delivered := e.topics.Publish(arg, rest)
		if e.met != nil {
			e.met.PublishTotal.Inc()
		}
		log.WithFields(map[string]interface{}{
			"identity":  id,
			"topic":     arg,
			"delivered": delivered,
		}).Debug("published")

		c = e.reg.LookupAndLock(h)
		if c == nil || c.State() == registry.StateClosing {
			if c != nil {
				e.reg.Unlock(c)
			}
			return nil, false
		}
		e.reply(c, fmt.Sprintf("Published to %s\n", arg))
		return c, true

	case cmd == "SET" && n == 3:
		if !e.policy.CanSet(id, arg) {
			e.denied(log, c, id, "set", arg)
			return c, true
		}
		if err := e.st.SetState(id, arg, rest); err != nil {
			log.WithError(err).Error("state write failed")
			e.reply(c, "ERROR: Internal server error.\n")
			return c, true
		}
		e.reply(c, fmt.Sprintf("SUCCESS: State '%s' updated.\n", arg))
		return c, true

	case cmd == "GET" && n == 2:
		v, err := e.st.GetState(id, arg)
		if err != nil {
			if errs.Is(err, errs.KindNotFound) {
				e.reply(c, fmt.Sprintf("ERROR: Key '%s' not found.\n", arg))
			} else {
				log.WithError(err).Error("state read failed")
				e.reply(c, "ERROR: Internal server error.\n")
			}
			return c, true
		}
		e.reply(c, fmt.Sprintf("VALUE: %s=%s\n", arg, v))
		return c, true

	case cmd == "PING":
		e.reply(c, "PONG\n")
		return c, true

	case cmd == "PONG":
		// Heartbeat reply; activity was already refreshed by the read.
		return c, true

	default:
		e.reply(c, replyInvalid)
		return c, true
	}
}

func (e *Engine) denied(log logEntry, c *registry.Connection, id, verb, name string) {
	log.WithFields(map[string]interface{}{
		"identity": id,
		"verb":     verb,
		"name":     name,
	}).Warn("access denied")
	if e.met != nil {
		e.met.AccessDeniedTotal.Inc()
	}
	e.reply(c, replyDenied)
}
