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

package store

import "time"

// AuditRecord is one append-only entry of who published what, where,
// and when.
type AuditRecord struct {
	Time    time.Time `json:"time"`
	Sender  string    `json:"sender"`
	Topic   string    `json:"topic"`
	Message string    `json:"message"`
}

// Store is the persistent collaborator interface the core requires:
// log / set_state / get_state. Implementations must persist a write
// durably before acknowledging it, and must serialize concurrent
// access internally.
type Store interface {
	// Log appends one audit record.
	Log(sender, topic, message string) error

	// SetState upserts (identity, key) -> value; an existing pair is
	// replaced atomically.
	SetState(identity, key, value string) error

	// GetState returns the value last written for (identity, key), or
	// an errs.KindNotFound error if the pair was never set.
	GetState(identity, key string) (string, error)

	// AuditTail returns up to n most recent audit records, oldest
	// first, for the admin surface.
	AuditTail(n int) ([]AuditRecord, error)

	// Close flushes and releases the underlying database.
	Close() error
}
