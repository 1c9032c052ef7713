//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package evcore

import (
	"time"

	"golang.org/x/sys/unix"
)

func init() {
	registerBackend("kqueue", func() backend { return &kqueueBackend{} })
}

// kqueueBackend wraps BSD/Darwin kqueue, grounded on eventloop's
// FastPoller (eventloop/poller_darwin.go) — same Kqueue/Kevent calls,
// re-shaped around an aggregate-interest add/del(old, new) contract
// rather than per-fd single-callback registration. Unlike
// epoll, kqueue needs one changelist entry per filter (read/write), so
// add/del diff the old and new masks bit by bit.
type kqueueBackend struct {
	kqfd       int
	eventBuf   [256]unix.Kevent_t
	changeBuf  []unix.Kevent_t
}

func (b *kqueueBackend) name() string { return "kqueue" }

func (b *kqueueBackend) features() backendFeature {
	return featureEdgeTriggered | featureO1 | featureCloseNotify
}

func (b *kqueueBackend) needReinit() bool { return true }

func (b *kqueueBackend) init() error {
	fd, err := unix.Kqueue()
	if err != nil {
		return WrapBackendError("kqueue", "kqueue", err)
	}
	b.kqfd = fd
	return nil
}

func (b *kqueueBackend) dealloc() error {
	if b.kqfd <= 0 {
		return nil
	}
	err := unix.Close(b.kqfd)
	b.kqfd = 0
	if err != nil {
		return WrapBackendError("kqueue", "close", err)
	}
	return nil
}

func kqueueFlags(edge bool) uint16 {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if edge {
		flags |= unix.EV_CLEAR
	}
	return flags
}

func (b *kqueueBackend) add(fd int, oldMask, newMask EventMask) error {
	edge := newMask&EvEdgeTriggered != 0
	b.changeBuf = b.changeBuf[:0]
	if newMask&EvRead != 0 && oldMask&EvRead == 0 {
		b.changeBuf = append(b.changeBuf, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: kqueueFlags(edge)})
	}
	if newMask&EvWrite != 0 && oldMask&EvWrite == 0 {
		b.changeBuf = append(b.changeBuf, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: kqueueFlags(edge)})
	}
	if oldMask&EvRead != 0 && newMask&EvRead == 0 {
		b.changeBuf = append(b.changeBuf, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if oldMask&EvWrite != 0 && newMask&EvWrite == 0 {
		b.changeBuf = append(b.changeBuf, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	if len(b.changeBuf) == 0 {
		return nil
	}
	if _, err := unix.Kevent(b.kqfd, b.changeBuf, nil, nil); err != nil {
		return WrapBackendError("kqueue", "kevent_add", err)
	}
	return nil
}

func (b *kqueueBackend) del(fd int, oldMask, newMask EventMask) error {
	return b.add(fd, oldMask, newMask)
}

func (b *kqueueBackend) dispatch(timeout time.Duration) ([]readyFD, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(b.kqfd, nil, b.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, WrapBackendError("kqueue", "kevent_wait", err)
	}
	byFD := make(map[int]EventMask, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		e := b.eventBuf[i]
		fd := int(e.Ident)
		var mask EventMask
		switch e.Filter {
		case unix.EVFILT_READ:
			mask = EvRead
		case unix.EVFILT_WRITE:
			mask = EvWrite
		}
		if e.Flags&unix.EV_EOF != 0 {
			mask |= EvClosed
		}
		if e.Flags&unix.EV_ERROR != 0 {
			mask |= EvRead | EvWrite
		}
		if _, ok := byFD[fd]; !ok {
			order = append(order, fd)
		}
		byFD[fd] |= mask
	}
	out := make([]readyFD, 0, len(order))
	for _, fd := range order {
		out = append(out, readyFD{fd: fd, mask: byFD[fd]})
	}
	return out, nil
}
