//go:build solaris || aix

package ioengine

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// selectPoller is the last-resort poller backend for platforms without
// epoll or kqueue. It is O(maxFd) per wait and limited to FD_SETSIZE
// descriptors, the usual tradeoff of a select(2)-based fallback.
type selectPoller struct {
	mu    sync.Mutex
	regs  map[int]*reg
	maxFD int
}

type reg struct {
	tag          *socket
	read, write  bool
}

func newPoller() (poller, error) {
	return &selectPoller{regs: make(map[int]*reg)}, nil
}

func (p *selectPoller) add(fd int, tag *socket) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs[fd] = &reg{tag: tag, read: true}
	if fd > p.maxFD {
		p.maxFD = fd
	}
	return nil
}

func (p *selectPoller) del(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.regs, fd)
	return nil
}

func (p *selectPoller) enable(fd int, tag *socket, read, write bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.regs[fd]
	if !ok {
		return errors.New("ioengine: enable on unregistered fd")
	}
	r.read, r.write = read, write
	return nil
}

func (p *selectPoller) wait(events []pollEvent) (int, error) {
	p.mu.Lock()
	var rfds, wfds unix.FdSet
	any := false
	for fd, r := range p.regs {
		if r.read {
			fdSet(&rfds, fd)
			any = true
		}
		if r.write {
			fdSet(&wfds, fd)
			any = true
		}
	}
	maxFD := p.maxFD
	p.mu.Unlock()

	if !any {
		return 0, nil
	}

	n, err := unix.Select(maxFD+1, &rfds, &wfds, nil, nil)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n <= 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for fd, r := range p.regs {
		if count >= len(events) {
			break
		}
		readReady := r.read && fdIsSet(&rfds, fd)
		writeReady := r.write && fdIsSet(&wfds, fd)
		if readReady || writeReady {
			events[count] = pollEvent{tag: r.tag, readReady: readReady, writeReady: writeReady}
			count++
		}
	}
	return count, nil
}

func (p *selectPoller) close() error {
	return nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
