// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// tickTimeout is the fixed poll timeout: one 60 Hz frame period.
const tickTimeout = 16 * time.Millisecond

// Callback runs to completion on the reactor thread when its source is
// ready. Callbacks must not block indefinitely.
type Callback func()

// Token identifies one registered event source.
type Token uint64

type source struct {
	fd      int
	name    string
	cb      Callback
	timer   bool
	ownedFd bool
}

// Reactor is a single-threaded cooperative event loop: one thread polls a
// bounded set of fds with a fixed 16 ms timeout and dispatches each ready
// source's callback before polling again.
type Reactor struct {
	epfd    int
	wakeFd  int
	stop    atomic.Bool
	sources map[Token]*source
	byFd    map[int]Token
	next    Token
	// optional hard wall-clock failsafe for bring-up runs
	failsafe time.Duration
}

func New() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	r := &Reactor{
		epfd:    epfd,
		wakeFd:  wakeFd,
		sources: make(map[Token]*source),
		byFd:    make(map[int]Token),
		next:    1,
	}
	if err := r.add(wakeFd); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reactor) add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Register adds a readable fd to the poll set. The callback fires every time
// the fd becomes ready.
func (r *Reactor) Register(fd int, name string, cb Callback) (Token, error) {
	if _, busy := r.byFd[fd]; busy {
		return 0, fmt.Errorf("fd %d already registered", fd)
	}
	if err := r.add(fd); err != nil {
		return 0, err
	}
	token := r.next
	r.next++
	r.sources[token] = &source{fd: fd, name: name, cb: cb}
	r.byFd[fd] = token
	logrus.WithFields(logrus.Fields{"source": name, "fd": fd}).Debugln("Registered event source")
	return token, nil
}

// RegisterTimer adds a periodic timerfd source owned by the reactor.
func (r *Reactor) RegisterTimer(interval time.Duration, name string, cb Callback) (Token, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return 0, fmt.Errorf("timerfd_create: %w", err)
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
		Value:    unix.NsecToTimespec(interval.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("timerfd_settime: %w", err)
	}
	if err := r.add(fd); err != nil {
		unix.Close(fd)
		return 0, err
	}
	token := r.next
	r.next++
	r.sources[token] = &source{fd: fd, name: name, cb: cb, timer: true, ownedFd: true}
	r.byFd[fd] = token
	logrus.WithFields(logrus.Fields{"source": name, "interval": interval}).Debugln("Registered timer source")
	return token, nil
}

// Unregister removes a source. Owned fds (timers) are closed; borrowed fds
// stay open for their owner to close.
func (r *Reactor) Unregister(token Token) error {
	src, ok := r.sources[token]
	if !ok {
		return errors.New("unknown registration token")
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, src.fd, nil); err != nil {
		logrus.WithError(err).WithField("source", src.name).Warnln("Failed to remove source from epoll")
	}
	delete(r.byFd, src.fd)
	delete(r.sources, token)
	if src.ownedFd {
		unix.Close(src.fd)
	}
	return nil
}

// SetFailsafe arms a hard wall-clock exit used during bring-up and testing.
// Zero disables it.
func (r *Reactor) SetFailsafe(d time.Duration) {
	r.failsafe = d
}

// Stop requests a graceful shutdown. Safe to call from any goroutine; the
// loop observes the flag once per iteration.
func (r *Reactor) Stop() {
	r.stop.Store(true)
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(r.wakeFd, one[:])
}

// Run dispatches events until Stop is called or the failsafe expires. It
// only returns on shutdown or a poll error.
func (r *Reactor) Run() error {
	start := time.Now()
	events := make([]unix.EpollEvent, 32)
	for {
		if r.stop.Load() {
			logrus.Infoln("Reactor shutdown requested")
			return nil
		}
		if r.failsafe > 0 && time.Since(start) > r.failsafe {
			logrus.WithField("failsafe", r.failsafe).Warnln("Failsafe timeout reached, exiting loop")
			return nil
		}
		n, err := unix.EpollWait(r.epfd, events, int(tickTimeout.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.wakeFd {
				r.drain(fd)
				continue
			}
			token, ok := r.byFd[fd]
			if !ok {
				continue
			}
			src := r.sources[token]
			if src.timer {
				r.drain(src.fd)
			}
			src.cb()
		}
	}
}

func (r *Reactor) drain(fd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}

func (r *Reactor) Close() {
	for token := range r.sources {
		_ = r.Unregister(token)
	}
	unix.Close(r.wakeFd)
	unix.Close(r.epfd)
}
