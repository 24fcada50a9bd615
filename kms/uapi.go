// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kms

import "unsafe"

// Mirrors of the DRM uapi structures from <drm/drm.h> and <drm/drm_mode.h>.
// Field order and sizes must match the kernel ABI exactly; the request codes
// below encode the struct sizes, so a mismatch shows up as EINVAL at runtime
// and as a failing request-code test at build time.

type modeCardRes struct {
	FBIDPtr         uint64
	CRTCIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFBs        uint32
	CountCRTCs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

type modeInfo struct {
	Clock      uint32
	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16
	VRefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

type modeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MMWidth         uint32
	MMHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

type modeGetEncoder struct {
	EncoderID      uint32
	EncoderType    uint32
	CRTCID         uint32
	PossibleCRTCs  uint32
	PossibleClones uint32
}

type modeCRTC struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CRTCID           uint32
	FBID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             modeInfo
}

type modeFBCmd struct {
	FBID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	BPP    uint32
	Depth  uint32
	Handle uint32
}

type modeCRTCPageFlip struct {
	CRTCID   uint32
	FBID     uint32
	Flags    uint32
	Reserved uint32
	UserData uint64
}

type modeCreateDumb struct {
	Height uint32
	Width  uint32
	BPP    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

type modeMapDumb struct {
	Handle uint32
	Pad    uint32
	Offset uint64
}

type modeDestroyDumb struct {
	Handle uint32
}

type getCap struct {
	Capability uint64
	Value      uint64
}

// Request codes. Computed from the struct sizes so they stay honest.
var (
	reqSetMaster = drmIO(0x1e)
	reqDropMaster = drmIO(0x1f)
	reqGetCap = drmIOWR(0x0c, unsafe.Sizeof(getCap{}))

	reqModeGetResources = drmIOWR(0xa0, unsafe.Sizeof(modeCardRes{}))
	reqModeGetCRTC      = drmIOWR(0xa1, unsafe.Sizeof(modeCRTC{}))
	reqModeSetCRTC      = drmIOWR(0xa2, unsafe.Sizeof(modeCRTC{}))
	reqModeGetEncoder   = drmIOWR(0xa6, unsafe.Sizeof(modeGetEncoder{}))
	reqModeGetConnector = drmIOWR(0xa7, unsafe.Sizeof(modeGetConnector{}))
	reqModeAddFB        = drmIOWR(0xae, unsafe.Sizeof(modeFBCmd{}))
	reqModeRmFB         = drmIOWR(0xaf, unsafe.Sizeof(uint32(0)))
	reqModePageFlip     = drmIOWR(0xb0, unsafe.Sizeof(modeCRTCPageFlip{}))
	reqModeCreateDumb   = drmIOWR(0xb2, unsafe.Sizeof(modeCreateDumb{}))
	reqModeMapDumb      = drmIOWR(0xb3, unsafe.Sizeof(modeMapDumb{}))
	reqModeDestroyDumb  = drmIOWR(0xb4, unsafe.Sizeof(modeDestroyDumb{}))
)

const (
	// Connection states reported by the kernel for a connector.
	connectionConnected    = 1
	connectionDisconnected = 2
	connectionUnknown      = 3

	// DRM_MODE_TYPE_PREFERRED
	modeTypePreferred = 1 << 3

	// DRM_MODE_PAGE_FLIP_EVENT
	pageFlipEvent = 0x01

	// DRM_CAP_DUMB_BUFFER
	capDumbBuffer = 0x1

	// Event types delivered on the card fd.
	eventTypeVBlank       = 0x01
	eventTypeFlipComplete = 0x02
)

// connectorTypeNames maps the kernel connector type to the interface name
// used in output names ("HDMI-A-1", "eDP-1", ...). Matches libdrm's
// drmModeGetConnectorTypeName table.
var connectorTypeNames = map[uint32]string{
	0:  "Unknown",
	1:  "VGA",
	2:  "DVI-I",
	3:  "DVI-D",
	4:  "DVI-A",
	5:  "Composite",
	6:  "SVIDEO",
	7:  "LVDS",
	8:  "Component",
	9:  "DIN",
	10: "DP",
	11: "HDMI-A",
	12: "HDMI-B",
	13: "TV",
	14: "eDP",
	15: "Virtual",
	16: "DSI",
	17: "DPI",
	18: "Writeback",
	19: "SPI",
	20: "USB",
}
