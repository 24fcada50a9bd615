// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kms

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

// drmMajor is the character device major number reserved for DRM nodes.
const drmMajor = 226

var ErrNotDRMNode = errors.New("not a DRM device node")

// DeviceNode identifies a GPU by its stable (major, minor) kernel device
// number. The same physical GPU usually exposes a primary node (card0) with
// mode-setting privileges and a render node (renderD128) for off-screen work.
type DeviceNode struct {
	Major uint32
	Minor uint32
}

func (n DeviceNode) String() string {
	return fmt.Sprintf("%d:%d", n.Major, n.Minor)
}

// IsRender reports whether the node sits in the render-node minor range.
func (n DeviceNode) IsRender() bool {
	return n.Minor >= 128 && n.Minor < 192
}

func (n DeviceNode) sysDir() string {
	return fmt.Sprintf("/sys/dev/char/%d:%d", n.Major, n.Minor)
}

// NodeFromPath stats a device file and returns its node identity.
func NodeFromPath(path string) (DeviceNode, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return DeviceNode{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return NodeFromDevNum(uint64(st.Rdev))
}

// NodeFromDevNum converts a kernel dev_t into a DeviceNode, rejecting
// anything outside the DRM major.
func NodeFromDevNum(dev uint64) (DeviceNode, error) {
	node := DeviceNode{Major: unix.Major(dev), Minor: unix.Minor(dev)}
	if node.Major != drmMajor {
		return DeviceNode{}, fmt.Errorf("%w: major %d", ErrNotDRMNode, node.Major)
	}
	return node, nil
}

// RenderNode resolves the render-only sibling of a primary node through
// sysfs. Multi-GPU systems may render on this node while displaying through
// the primary one. Falls back to the node itself when the device exposes no
// render node (common for display-only devices like simpledrm).
func (n DeviceNode) RenderNode() DeviceNode {
	entries, err := os.ReadDir(filepath.Join(n.sysDir(), "device", "drm"))
	if err != nil {
		return n
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "renderD") {
			continue
		}
		render, err := NodeFromPath(filepath.Join("/dev/dri", e.Name()))
		if err == nil {
			return render
		}
	}
	return n
}

// DevPath returns the /dev/dri path for the node, derived from sysfs.
func (n DeviceNode) DevPath() (string, error) {
	entries, err := os.ReadDir(filepath.Join(n.sysDir(), "device", "drm"))
	if err != nil {
		return "", fmt.Errorf("resolve dev path for %s: %w", n, err)
	}
	prefix := "card"
	if n.IsRender() {
		prefix = "renderD"
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			candidate := filepath.Join("/dev/dri", e.Name())
			if node, err := NodeFromPath(candidate); err == nil && node == n {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("no device file found for %s", n)
}

// bootVGA reports whether sysfs marks this node's device as the boot VGA
// adapter, the same heuristic smithay and libdrm use to pick a primary GPU.
func (n DeviceNode) bootVGA() bool {
	raw, err := os.ReadFile(filepath.Join(n.sysDir(), "device", "boot_vga"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(raw)) == "1"
}

// EnumerateCards lists the primary DRM nodes present under /dev/dri in a
// stable order.
func EnumerateCards() ([]string, error) {
	paths, err := filepath.Glob("/dev/dri/card*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// PrimaryGPU picks the device path to treat as the primary render GPU:
// the boot VGA adapter if sysfs identifies one, else the first card.
// Returns an error when no card exists at all.
func PrimaryGPU() (string, error) {
	cards, err := EnumerateCards()
	if err != nil {
		return "", err
	}
	if len(cards) == 0 {
		return "", errors.New("no DRM devices present")
	}
	for _, path := range cards {
		node, err := NodeFromPath(path)
		if err != nil {
			continue
		}
		if node.bootVGA() {
			return path, nil
		}
	}
	return cards[0], nil
}
