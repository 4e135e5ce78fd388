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

// dnsResolver resolves hostnames against the system resolver, keeping
// only IPv4 A records; agents are addressed over IPv4.
type dnsResolver struct {
	lookup func(ctx context.Context, network, host string) ([]net.IP, error)
}

// NewDNSResolver builds a Resolver backed by net.DefaultResolver.
func NewDNSResolver() Resolver {
	return &dnsResolver{lookup: net.DefaultResolver.LookupIP}
}

func (d *dnsResolver) ResolveA(ctx context.Context, hostname string) ([]net.IP, error) {
	addrs, err := d.lookup(ctx, "ip4", hostname)
	if err != nil {
		return nil, err
	}

	out := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if v4 := a.To4(); v4 != nil {
			out = append(out, v4)
		}
	}
	return out, nil
}
