// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package input

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/Nuthatch-Inc/nuthatch-compositor/reactor"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// evdev constants from <linux/input-event-codes.h>
const (
	evKey = 0x01
	evRel = 0x02

	relX = 0x00
	relY = 0x01

	keyBackspace = 14
	keyQ         = 16
	keyLeftCtrl  = 29
	keyLeftAlt   = 56
	keyRightCtrl = 97
	keyRightAlt  = 100

	valueRelease = 0
	valuePress   = 1
)

// struct input_event on 64-bit: 16 bytes of timeval + type/code/value.
const eventSize = 24

type inputEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Registrar is the slice of the reactor the input manager needs.
type Registrar interface {
	Register(fd int, name string, cb reactor.Callback) (reactor.Token, error)
	Unregister(token reactor.Token) error
}

// KeyFunc receives raw key events (code, pressed) that were not consumed by
// the exit combination, for the windowing-protocol layer's keyboard state.
type KeyFunc func(code uint16, pressed bool)

// PointerFunc receives the clamped pointer location after each motion.
type PointerFunc func(x, y float64)

type device struct {
	fd    int
	path  string
	token reactor.Token
}

// Manager owns the seat's input devices: it reads raw evdev events, tracks
// keyboard modifiers, detects the compositor exit combination, and maintains
// the shared pointer location.
type Manager struct {
	reg       Registrar
	devices   map[string]*device
	suspended bool

	ctrl, alt  bool
	pointerX   float64
	pointerY   float64
	bounds     func() (float64, float64)
	onShutdown func()
	onKey      KeyFunc
	onPointer  PointerFunc
}

func NewManager(reg Registrar) *Manager {
	return &Manager{
		reg:     reg,
		devices: make(map[string]*device),
		// center of the smallest usable layout until outputs appear
		pointerX: 960,
		pointerY: 540,
		bounds:   func() (float64, float64) { return 1920, 1080 },
	}
}

// SetBounds installs the layout-extent provider used to clamp the pointer.
func (m *Manager) SetBounds(f func() (float64, float64)) { m.bounds = f }

// OnShutdownRequest installs the graceful shutdown trigger fired by
// Ctrl+Alt+Q or Ctrl+Alt+Backspace.
func (m *Manager) OnShutdownRequest(f func()) { m.onShutdown = f }

// OnKey installs the raw key forwarder.
func (m *Manager) OnKey(f KeyFunc) { m.onKey = f }

// OnPointerMotion installs the pointer location observer.
func (m *Manager) OnPointerMotion(f PointerFunc) { m.onPointer = f }

// PointerLocation returns the current pointer position in layout space.
func (m *Manager) PointerLocation() (float64, float64) { return m.pointerX, m.pointerY }

// Scan opens every evdev node and registers it with the reactor. Devices
// that cannot be opened are skipped; input is best-effort.
func (m *Manager) Scan() error {
	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return fmt.Errorf("enumerate input devices: %w", err)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if _, have := m.devices[path]; have {
			continue
		}
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			logrus.WithError(err).WithField("device", path).Debugln("Skipping input device")
			continue
		}
		dev := &device{fd: fd, path: path}
		token, err := m.reg.Register(fd, "input:"+filepath.Base(path), func() { m.drain(dev) })
		if err != nil {
			unix.Close(fd)
			logrus.WithError(err).WithField("device", path).Warnln("Failed to register input device")
			continue
		}
		dev.token = token
		m.devices[path] = dev
		logrus.WithField("device", path).Debugln("Input device added")
	}
	m.suspended = false
	logrus.WithField("devices", len(m.devices)).Infoln("Input subsystem ready")
	return nil
}

// Suspend closes all devices, e.g. when the VT is switched away.
func (m *Manager) Suspend() {
	for path, dev := range m.devices {
		_ = m.reg.Unregister(dev.token)
		unix.Close(dev.fd)
		delete(m.devices, path)
	}
	m.suspended = true
	logrus.Infoln("Input subsystem suspended")
}

// Resume reopens the seat's input devices after a VT switch back.
func (m *Manager) Resume() error {
	if !m.suspended {
		return nil
	}
	return m.Scan()
}

func (m *Manager) drain(dev *device) {
	buf := make([]byte, eventSize*64)
	for {
		n, err := unix.Read(dev.fd, buf)
		if err == unix.EAGAIN {
			return
		}
		if err != nil || n == 0 {
			// Device went away underneath us (unplug); drop it.
			logrus.WithField("device", dev.path).Debugln("Input device removed")
			_ = m.reg.Unregister(dev.token)
			unix.Close(dev.fd)
			delete(m.devices, dev.path)
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			m.process(decodeEvent(buf[off : off+eventSize]))
		}
	}
}

func decodeEvent(b []byte) inputEvent {
	return inputEvent{
		Type:  binary.LittleEndian.Uint16(b[16:18]),
		Code:  binary.LittleEndian.Uint16(b[18:20]),
		Value: int32(binary.LittleEndian.Uint32(b[20:24])),
	}
}

func (m *Manager) process(ev inputEvent) {
	switch ev.Type {
	case evKey:
		m.processKey(ev.Code, ev.Value)
	case evRel:
		m.processMotion(ev.Code, ev.Value)
	}
}

func (m *Manager) processKey(code uint16, value int32) {
	pressed := value != valueRelease
	switch code {
	case keyLeftCtrl, keyRightCtrl:
		m.ctrl = pressed
	case keyLeftAlt, keyRightAlt:
		m.alt = pressed
	}
	if value == valuePress && m.ctrl && m.alt && (code == keyQ || code == keyBackspace) {
		logrus.WithField("code", code).Infoln("Exit key combination detected, shutting down")
		if m.onShutdown != nil {
			m.onShutdown()
		}
		return
	}
	if m.onKey != nil {
		m.onKey(code, pressed)
	}
}

func (m *Manager) processMotion(code uint16, value int32) {
	switch code {
	case relX:
		m.pointerX += float64(value)
	case relY:
		m.pointerY += float64(value)
	default:
		return
	}
	w, h := m.bounds()
	m.pointerX = clamp(m.pointerX, 0, w)
	m.pointerY = clamp(m.pointerY, 0, h)
	if m.onPointer != nil {
		m.onPointer(m.pointerX, m.pointerY)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
