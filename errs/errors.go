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

package errs

import "fmt"

// Kind classifies an Error so the caller knows how the connection state
// machine must react (tear down, reply, or continue).
type Kind uint8

const (
	// KindNone is the zero value; never returned by a constructor.
	KindNone Kind = iota
	// KindTransport covers socket read/write failures and peer close.
	KindTransport
	// KindTLS covers handshake failure, missing certificate, verification failure.
	KindTLS
	// KindIdentity covers a socket IP that is not in the DNS result set.
	KindIdentity
	// KindProtocol covers malformed frames and inbound buffer overflow.
	KindProtocol
	// KindAccessDenied covers a policy check failure.
	KindAccessDenied
	// KindNotFound covers GET on a missing state key.
	KindNotFound
	// KindCapacity covers topic or subscriber limits being reached.
	KindCapacity
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTLS:
		return "tls"
	case KindIdentity:
		return "identity"
	case KindProtocol:
		return "protocol"
	case KindAccessDenied:
		return "access_denied"
	case KindNotFound:
		return "not_found"
	case KindCapacity:
		return "capacity"
	default:
		return "none"
	}
}

// Error is the broker's coded error: a Kind plus a message and an
// optional wrapped cause. Kept deliberately small; errors here only
// ever reach logs and single-line ERROR: wire replies.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New builds an Error of the given Kind with a formatted message.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given Kind, recording cause for Unwrap.
func Wrap(k Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Kind returns the classification of the error, or KindNone for a nil
// receiver.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindNone
	}
	return e.kind
}

// Is reports whether err carries the given Kind. It tolerates plain
// errors (returns false) so callers can write `errs.Is(err, errs.KindNotFound)`
// without type-asserting first.
func Is(err error, k Kind) bool {
	type kinder interface{ Kind() Kind }
	for err != nil {
		if ke, ok := err.(kinder); ok {
			if ke.Kind() == k {
				return true
			}
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
