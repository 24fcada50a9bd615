// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kms

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

var ErrNoDumbBuffers = errors.New("device does not support dumb buffers")

// Device wraps an open mode-setting node. The file descriptor is owned by
// the Device once wrapped; Close releases it.
type Device struct {
	fd   int
	node DeviceNode
	path string
}

// Wrap takes ownership of an already-open DRM fd (opened through the session
// so that seat access rules apply) and validates that it can do software
// scanout.
func Wrap(fd int, path string) (*Device, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("fstat %s: %w", path, err)
	}
	node, err := NodeFromDevNum(uint64(st.Rdev))
	if err != nil {
		return nil, err
	}
	dev := &Device{fd: fd, node: node, path: path}
	cap := getCap{Capability: capDumbBuffer}
	if err := ioctl(fd, reqGetCap, unsafe.Pointer(&cap)); err != nil {
		return nil, fmt.Errorf("query capabilities of %s: %w", path, err)
	}
	if cap.Value == 0 {
		return nil, ErrNoDumbBuffers
	}
	return dev, nil
}

func (d *Device) Fd() int          { return d.fd }
func (d *Device) Node() DeviceNode { return d.node }
func (d *Device) Path() string     { return d.path }

func (d *Device) Close() error {
	return unix.Close(d.fd)
}

// SetMaster acquires mode-setting privileges on the node.
func (d *Device) SetMaster() error {
	return ioctl(d.fd, reqSetMaster, nil)
}

// DropMaster releases mode-setting privileges, e.g. across a VT switch.
func (d *Device) DropMaster() error {
	return ioctl(d.fd, reqDropMaster, nil)
}

// Resources is the device's current set of mode-setting object IDs.
type Resources struct {
	CRTCs      []uint32
	Connectors []uint32
	Encoders   []uint32
	MinWidth   uint32
	MaxWidth   uint32
	MinHeight  uint32
	MaxHeight  uint32
}

// Resources enumerates the device's mode-setting objects. The kernel can
// grow the sets between the count query and the fill; retry until stable.
func (d *Device) Resources() (*Resources, error) {
	for {
		var res modeCardRes
		if err := ioctl(d.fd, reqModeGetResources, unsafe.Pointer(&res)); err != nil {
			return nil, fmt.Errorf("get resources: %w", err)
		}
		counts := res
		crtcs := make([]uint32, res.CountCRTCs)
		connectors := make([]uint32, res.CountConnectors)
		encoders := make([]uint32, res.CountEncoders)
		if len(crtcs) > 0 {
			res.CRTCIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
		}
		if len(connectors) > 0 {
			res.ConnectorIDPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
		}
		if len(encoders) > 0 {
			res.EncoderIDPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
		}
		res.CountFBs = 0
		res.FBIDPtr = 0
		if err := ioctl(d.fd, reqModeGetResources, unsafe.Pointer(&res)); err != nil {
			return nil, fmt.Errorf("get resources: %w", err)
		}
		if res.CountCRTCs > counts.CountCRTCs ||
			res.CountConnectors > counts.CountConnectors ||
			res.CountEncoders > counts.CountEncoders {
			continue
		}
		return &Resources{
			CRTCs:      crtcs[:res.CountCRTCs],
			Connectors: connectors[:res.CountConnectors],
			Encoders:   encoders[:res.CountEncoders],
			MinWidth:   res.MinWidth,
			MaxWidth:   res.MaxWidth,
			MinHeight:  res.MinHeight,
			MaxHeight:  res.MaxHeight,
		}, nil
	}
}

// Connector describes one display attachment point and its probed state.
type Connector struct {
	ID           uint32
	Type         uint32
	TypeID       uint32
	Connection   uint32
	PhysWidthMM  uint32
	PhysHeightMM uint32
	Subpixel     uint32
	EncoderID    uint32
	Encoders     []uint32
	Modes        []Mode
}

// Name derives the interface name clients see, e.g. "HDMI-A-1".
func (c *Connector) Name() string {
	name, ok := connectorTypeNames[c.Type]
	if !ok {
		name = "Unknown"
	}
	return fmt.Sprintf("%s-%d", name, c.TypeID)
}

// Connected reports whether a monitor is attached and probed.
func (c *Connector) Connected() bool {
	return c.Connection == connectionConnected
}

// Connector probes a single connector, forcing a fresh detect cycle.
func (d *Device) Connector(id uint32) (*Connector, error) {
	for {
		probe := modeGetConnector{ConnectorID: id}
		if err := ioctl(d.fd, reqModeGetConnector, unsafe.Pointer(&probe)); err != nil {
			return nil, fmt.Errorf("get connector %d: %w", id, err)
		}
		counts := probe
		modes := make([]modeInfo, probe.CountModes)
		encoders := make([]uint32, probe.CountEncoders)
		props := make([]uint32, probe.CountProps)
		values := make([]uint64, probe.CountProps)
		if len(modes) > 0 {
			probe.ModesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
		}
		if len(encoders) > 0 {
			probe.EncodersPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
		}
		if len(props) > 0 {
			probe.PropsPtr = uint64(uintptr(unsafe.Pointer(&props[0])))
			probe.PropValuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
		}
		if err := ioctl(d.fd, reqModeGetConnector, unsafe.Pointer(&probe)); err != nil {
			return nil, fmt.Errorf("get connector %d: %w", id, err)
		}
		if probe.CountModes > counts.CountModes || probe.CountEncoders > counts.CountEncoders {
			continue
		}
		conn := &Connector{
			ID:           probe.ConnectorID,
			Type:         probe.ConnectorType,
			TypeID:       probe.ConnectorTypeID,
			Connection:   probe.Connection,
			PhysWidthMM:  probe.MMWidth,
			PhysHeightMM: probe.MMHeight,
			Subpixel:     probe.Subpixel,
			EncoderID:    probe.EncoderID,
			Encoders:     encoders[:probe.CountEncoders],
		}
		conn.Modes = make([]Mode, 0, probe.CountModes)
		for _, raw := range modes[:probe.CountModes] {
			conn.Modes = append(conn.Modes, modeFromInfo(raw))
		}
		return conn, nil
	}
}

// Encoder describes a CRTC-to-connector routing element.
type Encoder struct {
	ID             uint32
	Type           uint32
	CRTCID         uint32
	PossibleCRTCs  uint32
	PossibleClones uint32
}

func (d *Device) Encoder(id uint32) (*Encoder, error) {
	enc := modeGetEncoder{EncoderID: id}
	if err := ioctl(d.fd, reqModeGetEncoder, unsafe.Pointer(&enc)); err != nil {
		return nil, fmt.Errorf("get encoder %d: %w", id, err)
	}
	return &Encoder{
		ID:             enc.EncoderID,
		Type:           enc.EncoderType,
		CRTCID:         enc.CRTCID,
		PossibleCRTCs:  enc.PossibleCRTCs,
		PossibleClones: enc.PossibleClones,
	}, nil
}

// SetCRTC programs a mode-setting controller to scan out a framebuffer
// through the given connectors. A nil mode with fb 0 disables the CRTC.
func (d *Device) SetCRTC(crtcID, fbID uint32, connectors []uint32, mode *Mode) error {
	crtc := modeCRTC{CRTCID: crtcID, FBID: fbID}
	if len(connectors) > 0 {
		crtc.SetConnectorsPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
		crtc.CountConnectors = uint32(len(connectors))
	}
	if mode != nil {
		crtc.Mode = mode.raw
		crtc.ModeValid = 1
	}
	if err := ioctl(d.fd, reqModeSetCRTC, unsafe.Pointer(&crtc)); err != nil {
		return fmt.Errorf("set crtc %d: %w", crtcID, err)
	}
	return nil
}

// PageFlip schedules a buffer swap at the next vblank and requests a
// flip-complete event carrying userData back on the card fd.
func (d *Device) PageFlip(crtcID, fbID uint32, userData uint64) error {
	flip := modeCRTCPageFlip{
		CRTCID:   crtcID,
		FBID:     fbID,
		Flags:    pageFlipEvent,
		UserData: userData,
	}
	if err := ioctl(d.fd, reqModePageFlip, unsafe.Pointer(&flip)); err != nil {
		return fmt.Errorf("page flip crtc %d fb %d: %w", crtcID, fbID, err)
	}
	return nil
}
