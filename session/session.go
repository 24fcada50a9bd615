// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package session

import (
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"unsafe"

	"github.com/Nuthatch-Inc/nuthatch-compositor/util/multiplexer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Event is a seat lifecycle notification driven by VT switches.
type Event int

const (
	// PauseSession: the VT was switched away; drop device access and stop
	// presenting.
	PauseSession Event = iota
	// ActivateSession: the VT was switched back; reacquire and resume.
	ActivateSession
)

func (e Event) String() string {
	if e == PauseSession {
		return "pause"
	}
	return "activate"
}

// Handler observes session events on the reactor thread.
type Handler func(Event)

// vt ioctls from <linux/vt.h>
const (
	vtSetMode = 0x5602
	vtRelDisp = 0x5605

	vtAuto    = 0
	vtProcess = 1
	vtAckAcq  = 2
)

type vtModeArg struct {
	Mode   int8
	Waitv  int8
	Relsig int16
	Acqsig int16
	Frsig  int16
}

// Session owns exclusive access to the seat: it opens device files on behalf
// of the backend and converts VT release/acquire signals into pause/resume
// notifications delivered on the reactor thread.
type Session struct {
	seat     string
	ttyFd    int
	notifyFd int
	inbox    chan Event
	sender   multiplexer.ManyToOne[Event]
	handlers []Handler
	signals  chan os.Signal
}

// New establishes a direct seat session. When the process has no VT (for
// example when started over SSH during bring-up), VT switching is disabled
// and the session still hands out device fds.
func New() (*Session, error) {
	notifyFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("session eventfd: %w", err)
	}

	inbox := make(chan Event, 16)
	s := &Session{
		seat:     "seat0",
		ttyFd:    -1,
		notifyFd: notifyFd,
		inbox:    inbox,
		sender:   multiplexer.NewManyToOne(inbox),
		signals:  make(chan os.Signal, 4),
	}

	if err := s.claimVT(); err != nil {
		logrus.WithError(err).Warnln("No VT available, session pause/resume disabled")
	}

	go s.forwardSignals()
	return s, nil
}

// claimVT puts the controlling terminal into process-controlled switching so
// the kernel asks us before taking the display away.
func (s *Session) claimVT() error {
	fd, err := unix.Open("/dev/tty", unix.O_RDWR|unix.O_CLOEXEC|unix.O_NOCTTY, 0)
	if err != nil {
		return fmt.Errorf("open controlling tty: %w", err)
	}
	mode := vtModeArg{
		Mode:   vtProcess,
		Relsig: int16(unix.SIGUSR1),
		Acqsig: int16(unix.SIGUSR2),
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), vtSetMode, uintptr(unsafe.Pointer(&mode))); errno != 0 {
		unix.Close(fd)
		return fmt.Errorf("VT_SETMODE: %w", errno)
	}
	s.ttyFd = fd
	signal.Notify(s.signals, unix.SIGUSR1, unix.SIGUSR2)
	logrus.WithField("seat", s.seat).Infoln("Session initialized with VT switching")
	return nil
}

// forwardSignals bridges async VT signals onto the reactor: queue the event,
// then poke the eventfd so the loop wakes up.
func (s *Session) forwardSignals() {
	for sig := range s.signals {
		var ev Event
		switch sig {
		case unix.SIGUSR1:
			ev = PauseSession
		case unix.SIGUSR2:
			ev = ActivateSession
		default:
			continue
		}
		if err := s.sender.Send(ev); err != nil {
			return
		}
		var one [8]byte
		binary.LittleEndian.PutUint64(one[:], 1)
		_, _ = unix.Write(s.notifyFd, one[:])
	}
}

// Open opens a device file for the seat with the access semantics every
// mode-setting consumer needs: read-write, non-blocking, close-on-exec.
func (s *Session) Open(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC|unix.O_NOCTTY, 0)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return fd, nil
}

// Seat returns the seat identifier.
func (s *Session) Seat() string { return s.seat }

// NotifyFd is the fd the reactor polls for pending session events.
func (s *Session) NotifyFd() int { return s.notifyFd }

// OnEvent registers a handler. Handlers run on the reactor thread in
// registration order.
func (s *Session) OnEvent(h Handler) {
	s.handlers = append(s.handlers, h)
}

// Dispatch drains pending events. Must run on the reactor thread. After all
// handlers have seen a pause, the VT switch is acknowledged so the kernel
// can complete it; an activate is acknowledged before handlers run.
func (s *Session) Dispatch() {
	var buf [8]byte
	for {
		if _, err := unix.Read(s.notifyFd, buf[:]); err != nil {
			break
		}
	}
	for {
		select {
		case ev := <-s.inbox:
			logrus.WithField("event", ev).Infoln("Session event")
			if ev == ActivateSession {
				s.ackVT(vtAckAcq)
			}
			for _, h := range s.handlers {
				h(ev)
			}
			if ev == PauseSession {
				s.ackVT(1)
			}
		default:
			return
		}
	}
}

func (s *Session) ackVT(arg uintptr) {
	if s.ttyFd < 0 {
		return
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.ttyFd), vtRelDisp, arg); errno != 0 {
		logrus.WithError(errno).Warnln("VT_RELDISP failed")
	}
}

// Close restores automatic VT switching and releases session resources.
func (s *Session) Close() {
	signal.Stop(s.signals)
	close(s.signals)
	if s.ttyFd >= 0 {
		mode := vtModeArg{Mode: vtAuto}
		_, _, _ = unix.Syscall(unix.SYS_IOCTL, uintptr(s.ttyFd), vtSetMode, uintptr(unsafe.Pointer(&mode)))
		unix.Close(s.ttyFd)
		s.ttyFd = -1
	}
	unix.Close(s.notifyFd)
}
