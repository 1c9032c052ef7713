//go:build linux

package evcore

import (
	"time"

	"golang.org/x/sys/unix"
)

func init() {
	registerBackend("epoll", func() backend { return &epollBackend{} })
}

// epollBackend wraps Linux epoll, grounded on eventloop's FastPoller
// (eventloop/poller_linux.go) — same EpollCreate1/EpollCtl/EpollWait
// calls, but re-shaped around an aggregate-interest add/del(old, new)
// contract instead of per-fd single-callback registration.
type epollBackend struct {
	epfd     int
	eventBuf [256]unix.EpollEvent

	useChangelist bool
	pendingOp     []int
	pendingEvent  []unix.EpollEvent
	pendingFD     []int
}

// configure implements backendConfigurable for WithEpollChangelist: batch
// epoll_ctl calls raised by add/del and flush them just before EpollWait,
// trading a round of extra bookkeeping for fewer syscalls under
// high-churn registration workloads.
func (b *epollBackend) configure(cfg *Config) {
	b.useChangelist = cfg.epollChangelist
}

func (b *epollBackend) queueCtl(op int, fd int, ev unix.EpollEvent) error {
	if !b.useChangelist {
		if err := unix.EpollCtl(b.epfd, op, fd, &ev); err != nil {
			return WrapBackendError("epoll", "ctl", err)
		}
		return nil
	}
	b.pendingOp = append(b.pendingOp, op)
	b.pendingFD = append(b.pendingFD, fd)
	b.pendingEvent = append(b.pendingEvent, ev)
	return nil
}

func (b *epollBackend) flushChangelist() {
	for i, op := range b.pendingOp {
		var evp *unix.EpollEvent
		if op != unix.EPOLL_CTL_DEL {
			evp = &b.pendingEvent[i]
		}
		_ = unix.EpollCtl(b.epfd, op, b.pendingFD[i], evp)
	}
	b.pendingOp = b.pendingOp[:0]
	b.pendingFD = b.pendingFD[:0]
	b.pendingEvent = b.pendingEvent[:0]
}

func (b *epollBackend) name() string { return "epoll" }

func (b *epollBackend) features() backendFeature {
	return featureEdgeTriggered | featureO1 | featureCloseNotify
}

func (b *epollBackend) needReinit() bool { return true }

func (b *epollBackend) init() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return WrapBackendError("epoll", "create1", err)
	}
	b.epfd = fd
	return nil
}

func (b *epollBackend) dealloc() error {
	if b.epfd <= 0 {
		return nil
	}
	err := unix.Close(b.epfd)
	b.epfd = 0
	if err != nil {
		return WrapBackendError("epoll", "close", err)
	}
	return nil
}

func epollEvents(mask EventMask) uint32 {
	var ev uint32
	if mask&EvRead != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&EvWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	if mask&EvClosed != 0 {
		ev |= unix.EPOLLRDHUP
	}
	if mask&EvEdgeTriggered != 0 {
		ev |= unix.EPOLLET
	}
	return ev
}

func (b *epollBackend) add(fd int, oldMask, newMask EventMask) error {
	op := unix.EPOLL_CTL_MOD
	if oldMask == 0 {
		op = unix.EPOLL_CTL_ADD
	}
	return b.queueCtl(op, fd, unix.EpollEvent{Events: epollEvents(newMask), Fd: int32(fd)})
}

func (b *epollBackend) del(fd int, oldMask, newMask EventMask) error {
	if newMask != 0 {
		return b.add(fd, oldMask, newMask)
	}
	return b.queueCtl(unix.EPOLL_CTL_DEL, fd, unix.EpollEvent{})
}

func (b *epollBackend) dispatch(timeout time.Duration) ([]readyFD, error) {
	if b.useChangelist {
		b.flushChangelist()
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}
	n, err := unix.EpollWait(b.epfd, b.eventBuf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, WrapBackendError("epoll", "wait", err)
	}
	out := make([]readyFD, 0, n)
	for i := 0; i < n; i++ {
		e := b.eventBuf[i]
		var mask EventMask
		if e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			mask |= EvRead
		}
		if e.Events&unix.EPOLLOUT != 0 {
			mask |= EvWrite
		}
		if e.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
			mask |= EvClosed
		}
		if e.Events&unix.EPOLLERR != 0 {
			mask |= EvRead | EvWrite
		}
		out = append(out, readyFD{fd: int(e.Fd), mask: mask})
	}
	return out, nil
}
