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
	"net"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/vaultmesh/errs"
)

// listenTCP opens a non-blocking IPv4 listening socket on port.
func listenTCP(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, errs.Wrap(errs.KindTransport, err, "creating listening socket")
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, errs.Wrap(errs.KindTransport, err, "setting SO_REUSEADDR")
	}

	if err = unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		_ = unix.Close(fd)
		return -1, errs.Wrap(errs.KindTransport, err, "binding port %d", port)
	}

	if err = unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, errs.Wrap(errs.KindTransport, err, "listening on port %d", port)
	}

	return fd, nil
}

// acceptConn accepts one pending connection off the listener, wrapping
// the new socket in a net.Conn. ok is false when the kernel reports no
// more pending connections.
func acceptConn(listenFD int) (conn net.Conn, ok bool, err error) {
	nfd, _, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.KindTransport, err, "accept")
	}

	// net.FileConn dups the descriptor, so the original can be closed
	// right away; epoll interest is registered on the dup.
	f := os.NewFile(uintptr(nfd), "conn-"+strconv.Itoa(nfd))
	conn, err = net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return nil, false, errs.Wrap(errs.KindTransport, err, "wrapping accepted socket")
	}
	return conn, true, nil
}

// connFD digs the kernel descriptor back out of a net.Conn so it can
// be registered with the engine's own epoll instance.
func connFD(c net.Conn) (int, bool) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return -1, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, false
	}
	fd := -1
	if err = raw.Control(func(u uintptr) { fd = int(u) }); err != nil {
		return -1, false
	}
	return fd, true
}

// peerIP extracts the remote IPv4 address of a connection.
func peerIP(c net.Conn) net.IP {
	if addr, ok := c.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP
	}
	if host, _, err := net.SplitHostPort(c.RemoteAddr().String()); err == nil {
		return net.ParseIP(host)
	}
	return nil
}

func closeFD(fd int) error {
	return unix.Close(fd)
}
