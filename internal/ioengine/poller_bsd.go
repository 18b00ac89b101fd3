//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package ioengine

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller implements poller on BSD-family kernels via kqueue. Unlike
// epoll, read and write interest are independent filters that must each be
// added/deleted explicitly; enable toggles each filter's EV_ENABLE/
// EV_DISABLE flag rather than replacing a single event mask.
type kqueuePoller struct {
	kq  int
	buf []unix.Kevent_t
	fds map[int]*socket
}

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{kq: kq, buf: make([]unix.Kevent_t, MaxEvent), fds: make(map[int]*socket)}, nil
}

func (p *kqueuePoller) add(fd int, tag *socket) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_DISABLE},
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return err
	}
	p.fds[fd] = tag
	return nil
}

func (p *kqueuePoller) del(fd int) error {
	delete(p.fds, fd)
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) enable(fd int, tag *socket, read, write bool) error {
	readFlag := uint16(unix.EV_DISABLE)
	if read {
		readFlag = unix.EV_ENABLE
	}
	writeFlag := uint16(unix.EV_DISABLE)
	if write {
		writeFlag = unix.EV_ENABLE
	}
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: readFlag},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: writeFlag},
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) wait(events []pollEvent) (int, error) {
	n, err := unix.Kevent(p.kq, nil, p.buf, nil)
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
		fd := int(raw.Ident)
		tag := p.fds[fd]
		ev := pollEvent{
			tag:      tag,
			errReady: raw.Flags&unix.EV_ERROR != 0,
			eof:      raw.Flags&unix.EV_EOF != 0,
		}
		switch raw.Filter {
		case unix.EVFILT_READ:
			ev.readReady = true
		case unix.EVFILT_WRITE:
			ev.writeReady = true
		}
		events[i] = ev
	}
	return max, nil
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}
