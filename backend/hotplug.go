// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package backend

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
	"github.com/Nuthatch-Inc/nuthatch-compositor/reactor"
	"github.com/Nuthatch-Inc/nuthatch-compositor/util/multiplexer"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const driDir = "/dev/dri"

type hotplugEvent struct {
	path    string
	removed bool
}

// hotplug watches /dev/dri for GPU device nodes appearing and disappearing.
// The watcher goroutine only queues events; AddDevice and RemoveDevice run on
// the reactor thread.
type hotplug struct {
	server   *Server
	watcher  *fsnotify.Watcher
	notifyFd int
	inbox    chan hotplugEvent
	sender   multiplexer.ManyToOne[hotplugEvent]
	token    reactor.Token
}

func newHotplug(s *Server) (*hotplug, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating device watcher: %w", err)
	}
	if err := watcher.Add(driDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", driDir, err)
	}
	notifyFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("hotplug eventfd: %w", err)
	}

	inbox := make(chan hotplugEvent, 16)
	h := &hotplug{
		server:   s,
		watcher:  watcher,
		notifyFd: notifyFd,
		inbox:    inbox,
		sender:   multiplexer.NewManyToOne(inbox),
	}
	token, err := s.loop.Register(notifyFd, "hotplug", h.dispatch)
	if err != nil {
		watcher.Close()
		unix.Close(notifyFd)
		return nil, err
	}
	h.token = token

	go h.watch()
	logrus.WithField("dir", driDir).Infoln("Watching for GPU hotplug")
	return h, nil
}

// isCardNode filters the watch stream down to primary nodes; render and
// control nodes never drive outputs.
func isCardNode(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "card")
}

func (h *hotplug) watch() {
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if !isCardNode(ev.Name) {
				continue
			}
			var queued hotplugEvent
			switch {
			case ev.Op.Has(fsnotify.Create):
				queued = hotplugEvent{path: ev.Name}
			case ev.Op.Has(fsnotify.Remove):
				queued = hotplugEvent{path: ev.Name, removed: true}
			default:
				continue
			}
			if err := h.sender.Send(queued); err != nil {
				return
			}
			var one [8]byte
			binary.LittleEndian.PutUint64(one[:], 1)
			_, _ = unix.Write(h.notifyFd, one[:])
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			logrus.WithError(err).Warnln("Device watcher error")
		}
	}
}

// dispatch applies queued hotplug events on the reactor thread.
func (h *hotplug) dispatch() {
	var buf [8]byte
	for {
		if _, err := unix.Read(h.notifyFd, buf[:]); err != nil {
			break
		}
	}
	for {
		select {
		case ev := <-h.inbox:
			h.apply(ev)
		default:
			return
		}
	}
}

func (h *hotplug) apply(ev hotplugEvent) {
	if ev.removed {
		for node, data := range h.server.backends {
			if data.dev.Path() == ev.path {
				logrus.WithField("path", ev.path).Infoln("GPU device removed")
				h.server.RemoveDevice(node)
				return
			}
		}
		return
	}
	node, err := kms.NodeFromPath(ev.path)
	if err != nil {
		logrus.WithError(err).WithField("path", ev.path).Warnln("Ignoring non-DRM device node")
		return
	}
	logrus.WithField("path", ev.path).Infoln("GPU device appeared")
	if err := h.server.AddDevice(node, ev.path); err != nil {
		logrus.WithError(err).WithField("path", ev.path).Errorln("Failed to add hotplugged device")
	}
}

func (h *hotplug) close() {
	h.sender.Close()
	h.watcher.Close()
	_ = h.server.loop.Unregister(h.token)
	unix.Close(h.notifyFd)
}
