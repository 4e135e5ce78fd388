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
	"golang.org/x/sys/unix"

	"github.com/sabouaram/vaultmesh/errs"
)

// poller wraps one epoll instance. Listening sockets stay armed
// level-triggered; accepted connections are armed one-shot so no two
// workers can ever be woken for the same connection concurrently.
type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "epoll_create1")
	}
	return &poller{epfd: fd}, nil
}

func (p *poller) addListener(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errs.Wrap(errs.KindTransport, err, "registering listener fd %d", fd)
	}
	return nil
}

const connInterest = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLONESHOT

func (p *poller) armOneShot(fd int) error {
	ev := unix.EpollEvent{Events: connInterest, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errs.Wrap(errs.KindTransport, err, "arming fd %d", fd)
	}
	return nil
}

// rearm re-enables one-shot interest after a worker finished its cycle.
func (p *poller) rearm(fd int) error {
	ev := unix.EpollEvent{Events: connInterest, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errs.Wrap(errs.KindTransport, err, "re-arming fd %d", fd)
	}
	return nil
}

// remove drops fd from the interest set. Errors are ignored: the fd
// may already be gone if the peer closed first.
func (p *poller) remove(fd int) {
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait fills events and returns how many fired. EINTR is not an
// error; the caller just loops.
func (p *poller) wait(events []unix.EpollEvent, msec int) (int, error) {
	n, err := unix.EpollWait(p.epfd, events, msec)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Wrap(errs.KindTransport, err, "epoll_wait")
	}
	return n, nil
}

func (p *poller) close() {
	_ = unix.Close(p.epfd)
}
