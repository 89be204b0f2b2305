//go:build linux

package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"tiltpan/internal/tilt"
)

// Evdev reads gyroscope frames from a Linux input device.
//
// One goroutine waits in epoll on the device and an eventfd; Stop writes the
// eventfd so the wait returns immediately instead of after the next frame.
type Evdev struct {
	cfg    EvdevConfig
	orient *OrientationTracker
	loop   loop
}

func NewEvdev(cfg EvdevConfig, orient *OrientationTracker) *Evdev {
	return &Evdev{cfg: cfg, orient: orient}
}

func (e *Evdev) Name() string { return "evdev:" + e.cfg.Device }

// Available reports whether the device node exists and is readable.
func (e *Evdev) Available() bool {
	return e.cfg.Device != "" && unix.Access(e.cfg.Device, unix.R_OK) == nil
}

// Start opens the device. The interval hint is ignored: the device reports at
// its own rate.
func (e *Evdev) Start(_ time.Duration, deliver func(tilt.Sample), fail func(error)) error {
	fd, err := unix.Open(e.cfg.Device, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EACCES) || errors.Is(err, unix.ENODEV) {
			return fmt.Errorf("open %s: %w (%v)", e.cfg.Device, tilt.ErrSensorUnavailable, err)
		}
		return fmt.Errorf("open %s: %w", e.cfg.Device, err)
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("eventfd: %w", err)
	}

	err = e.loop.start(func(stop <-chan struct{}) {
		defer unix.Close(fd)
		defer unix.Close(efd)

		// Joined before efd is closed.
		join := stopWaker(stop, func() {
			var one [8]byte
			binary.LittleEndian.PutUint64(one[:], 1)
			_, _ = unix.Write(efd, one[:])
		})
		defer join()

		if err := e.readFrames(fd, efd, deliver); err != nil && fail != nil {
			fail(err)
		}
	})
	if err != nil {
		unix.Close(fd)
		unix.Close(efd)
	}
	return err
}

func (e *Evdev) Stop() { e.loop.halt() }

// readFrames runs the epoll loop until the eventfd fires (nil) or the device fails.
func (e *Evdev) readFrames(fd, efd int, deliver func(tilt.Sample)) error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	for _, watch := range []int{fd, efd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(watch)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, watch, &ev); err != nil {
			return fmt.Errorf("epoll_ctl_add fd=%d: %w", watch, err)
		}
	}

	dec := newEvdevDecoder(e.cfg.UnitsPerDPS, e.orient)

	// Reusable buffers
	const maxEvents = 4
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, inputEventSize*64)

	for {
		n, err := unix.EpollWait(epfd, epollEvents, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			ready := epollEvents[i]
			if int(ready.Fd) == efd {
				return nil
			}
			if ready.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s: %w", e.cfg.Device, tilt.ErrSensorUnavailable)
			}

			nr, err := unix.Read(fd, buf)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					continue
				}
				if errors.Is(err, unix.ENODEV) {
					return fmt.Errorf("read from %s: %w", e.cfg.Device, tilt.ErrSensorUnavailable)
				}
				return fmt.Errorf("read from %s: %w", e.cfg.Device, err)
			}

			for _, ev := range decodeInputEvents(buf[:nr]) {
				if s, ok := dec.feed(ev); ok {
					deliver(s)
				}
			}
		}
	}
}
