//go:build linux

package ioengine

import (
	"golang.org/x/sys/unix"
)

// epollPoller implements poller on Linux via epoll: one epoll fd,
// level-triggered registrations, EPOLLRDHUP treated as read-side EOF.
// Registration calls are made only from the single I/O worker goroutine,
// so fds needs no locking of its own.
type epollPoller struct {
	epfd int
	buf  []unix.EpollEvent
	fds  map[int32]*socket
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd: fd,
		buf:  make([]unix.EpollEvent, MaxEvent),
		fds:  make(map[int32]*socket),
	}, nil
}

func eventsFor(read, write bool) uint32 {
	var ev uint32
	if read {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if write {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) add(fd int, tag *socket) error {
	ev := unix.EpollEvent{Events: eventsFor(true, false), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	p.fds[int32(fd)] = tag
	return nil
}

func (p *epollPoller) del(fd int) error {
	delete(p.fds, int32(fd))
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) enable(fd int, tag *socket, read, write bool) error {
	ev := unix.EpollEvent{Events: eventsFor(read, write), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) wait(events []pollEvent) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.buf, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	max := n
	if max > len(events) {
		max = len(events)
	}
	for i := 0; i < max; i++ {
		raw := p.buf[i]
		tag := p.fds[raw.Fd]
		events[i] = pollEvent{
			tag:        tag,
			readReady:  raw.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			writeReady: raw.Events&unix.EPOLLOUT != 0,
			errReady:   raw.Events&unix.EPOLLERR != 0,
			eof:        raw.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		}
	}
	return max, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
