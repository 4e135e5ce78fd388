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

package identity

import (
	"context"
	"net"
)

// Resolver looks up the IPv4 A records for a hostname. The default
// implementation resolves against the system's configured DNS servers;
// tests and alternate deployments may substitute a fake.
type Resolver interface {
	ResolveA(ctx context.Context, hostname string) ([]net.IP, error)
}

// Verify reports whether peerIP is among hostname's resolved IPv4
// A records, corroborating a claimed identity against DNS.
func Verify(ctx context.Context, r Resolver, hostname string, peerIP net.IP) bool {
	addrs, err := r.ResolveA(ctx, hostname)
	if err != nil {
		return false
	}
	peerIP = peerIP.To4()
	if peerIP == nil {
		return false
	}
	for _, a := range addrs {
		if a.Equal(peerIP) {
			return true
		}
	}
	return false
}
