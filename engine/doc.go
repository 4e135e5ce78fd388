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

// Package engine is the broker's connection engine: a single acceptor
// goroutine multiplexing two listening ports over a one-shot epoll
// instance, a fixed pool of workers pulling readiness tasks off a
// bounded queue, and an idle sweeper. Workers drive the per-connection
// state machine: TLS handshake, DNS-corroborated identity
// verification, line-framed command dispatch, enrollment CSR signing.
//
// Lock order is canonical and must never be inverted:
//
//	registry read lock -> per-connection mutex -> topic index mutex
//
// In particular, a worker drops its own per-connection mutex before
// calling Publish, because fan-out acquires other connections' mutexes
// through the registry; it re-acquires its own record afterwards and
// rechecks that the connection still exists.
package engine
