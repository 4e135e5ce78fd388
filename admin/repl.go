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

// Package admin is the broker's local operator surface: a plain
// line-oriented loop over stdin that drives the same registry, topic
// and store operations agents use, under the same locking discipline.
// It bypasses the access policy because its commands originate
// locally. No line editing or history; that is deliberate.
package admin

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/sabouaram/vaultmesh/registry"
	"github.com/sabouaram/vaultmesh/store"
	"github.com/sabouaram/vaultmesh/topic"
)

// REPL reads operator commands and answers on its output writer.
type REPL struct {
	Log    *logrus.Entry
	Reg    registry.Registry
	Topics topic.Index
	Store  store.Store

	// Quit is invoked by EXIT; typically wired to the process's
	// shutdown cancel.
	Quit func()
}

var (
	okColor   = color.New(color.FgGreen)
	errColor  = color.New(color.FgRed)
	infoColor = color.New(color.FgCyan)
)

// Run consumes in until EOF or EXIT. Intended to run on its own
// goroutine when stdin is a terminal.
func (r *REPL) Run(in io.Reader, out io.Writer) {
	sc := bufio.NewScanner(in)
	fmt.Fprintln(out, "vaultmesh admin console: STATUS, PUBLISH, SUBSCRIBE, UNSUBSCRIBE, SET, GET, AUDIT, EXIT")

	for sc.Scan() {
		if !r.handle(out, sc.Text()) {
			return
		}
	}
}

// handle executes one command line; returns false when the loop
// should stop.
func (r *REPL) handle(out io.Writer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch {
	case cmd == "STATUS":
		r.status(out)

	case cmd == "PUBLISH" && len(args) >= 2:
		payload := strings.Join(args[1:], " ")
		if err := r.Store.Log("admin", args[0], payload); err != nil {
			r.Log.WithError(err).Warn("audit append failed")
		}
		n := r.Topics.Publish(args[0], payload)
		okColor.Fprintf(out, "Message dispatched to topic '%s' (%d subscribers)\n", args[0], n)

	case cmd == "SUBSCRIBE" && len(args) == 2:
		c := r.Reg.LookupAndLockByIdentity(args[0])
		if c == nil {
			errColor.Fprintf(out, "No connected agent with identity '%s'\n", args[0])
			break
		}
		h := c.Handle()
		r.Reg.Unlock(c)
		if err := r.Topics.Subscribe(h, args[1]); err != nil {
			errColor.Fprintf(out, "Subscribe failed: %v\n", err)
			break
		}
		okColor.Fprintf(out, "Subscribed %s to %s\n", args[0], args[1])

	case cmd == "UNSUBSCRIBE" && len(args) == 2:
		c := r.Reg.LookupAndLockByIdentity(args[0])
		if c == nil {
			errColor.Fprintf(out, "No connected agent with identity '%s'\n", args[0])
			break
		}
		h := c.Handle()
		r.Reg.Unlock(c)
		r.Topics.Unsubscribe(h, args[1])
		okColor.Fprintf(out, "Unsubscribed %s from %s\n", args[0], args[1])

	case cmd == "SET" && len(args) >= 3:
		if err := r.Store.SetState(args[0], args[1], strings.Join(args[2:], " ")); err != nil {
			errColor.Fprintf(out, "Set failed: %v\n", err)
			break
		}
		okColor.Fprintf(out, "State '%s' updated for %s\n", args[1], args[0])

	case cmd == "GET" && len(args) == 2:
		v, err := r.Store.GetState(args[0], args[1])
		if err != nil {
			errColor.Fprintf(out, "%v\n", err)
			break
		}
		fmt.Fprintf(out, "%s=%s\n", args[1], v)

	case cmd == "AUDIT":
		recs, err := r.Store.AuditTail(20)
		if err != nil {
			errColor.Fprintf(out, "Audit read failed: %v\n", err)
			break
		}
		for _, rec := range recs {
			fmt.Fprintf(out, "%s  %-24s %-16s %s\n",
				rec.Time.Format(time.RFC3339), rec.Sender, rec.Topic, rec.Message)
		}

	case cmd == "EXIT":
		fmt.Fprintln(out, "Shutting down console...")
		if r.Quit != nil {
			r.Quit()
		}
		return false

	default:
		errColor.Fprintln(out, "Invalid command.")
		fmt.Fprintln(out, "  Usage: STATUS")
		fmt.Fprintln(out, "  Usage: PUBLISH <topic> <message>")
		fmt.Fprintln(out, "  Usage: SUBSCRIBE <identity> <topic>")
		fmt.Fprintln(out, "  Usage: UNSUBSCRIBE <identity> <topic>")
		fmt.Fprintln(out, "  Usage: SET <identity> <key> <value>")
		fmt.Fprintln(out, "  Usage: GET <identity> <key>")
		fmt.Fprintln(out, "  Usage: AUDIT")
		fmt.Fprintln(out, "  Usage: EXIT")
	}
	return true
}

func (r *REPL) status(out io.Writer) {
	conns := r.Reg.SnapshotStatus()
	infoColor.Fprintf(out, "Connections: %d\n", len(conns))
	for _, s := range conns {
		id := s.Identity
		if id == "" {
			id = "(pending)"
		}
		fmt.Fprintf(out, "  %-36s %-10s %-12s %-24s idle %s\n",
			s.Handle, modeName(s.Mode), stateName(s.State), id,
			time.Since(s.LastActivity).Truncate(time.Second))
	}

	tops := r.Topics.Snapshot()
	infoColor.Fprintf(out, "Topics: %d\n", len(tops))
	for _, t := range tops {
		fmt.Fprintf(out, "  %-24s %d subscriber(s)\n", t.Name, t.Subscribers)
	}
}

func modeName(m registry.Mode) string {
	if m == registry.ModeEnrollment {
		return "lobby"
	}
	return "vault"
}

func stateName(s registry.State) string {
	switch s {
	case registry.StateAuthenticated:
		return "authed"
	case registry.StateClosing:
		return "closing"
	default:
		return "handshake"
	}
}
