// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kms

import "fmt"

// Enumerator is the slice of Device the scanner needs. Split out so scans
// can run against fakes.
type Enumerator interface {
	Resources() (*Resources, error)
	Connector(id uint32) (*Connector, error)
	Encoder(id uint32) (*Encoder, error)
}

// ScanEvent pairs a connector with the CRTC assigned to drive it.
type ScanEvent struct {
	Connector *Connector
	CRTC      uint32
}

// ScanResult is the ordered outcome of one connector scan.
type ScanResult struct {
	Connected    []ScanEvent
	Disconnected []ScanEvent
}

func (r *ScanResult) Empty() bool {
	return len(r.Connected) == 0 && len(r.Disconnected) == 0
}

type scanEntry struct {
	crtc uint32
}

// Scanner diffs consecutive connector enumerations for one device and
// assigns a free CRTC to each newly connected connector. Scanning twice with
// no physical change yields an empty result both times.
type Scanner struct {
	// connector id -> assignment for connectors seen connected last scan
	connected map[uint32]scanEntry
}

func NewScanner() *Scanner {
	return &Scanner{connected: make(map[uint32]scanEntry)}
}

// Assignments returns the current connector -> CRTC mapping.
func (s *Scanner) Assignments() map[uint32]uint32 {
	out := make(map[uint32]uint32, len(s.connected))
	for id, e := range s.connected {
		out[id] = e.crtc
	}
	return out
}

// Scan enumerates the device's connectors and reports what changed since the
// previous scan. Enumeration failure aborts the scan without mutating state,
// so the next hotplug cycle retries from the same baseline.
func (s *Scanner) Scan(dev Enumerator) (*ScanResult, error) {
	res, err := dev.Resources()
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	type probed struct {
		conn *Connector
	}
	seen := make(map[uint32]probed, len(res.Connectors))
	order := make([]uint32, 0, len(res.Connectors))
	for _, id := range res.Connectors {
		conn, err := dev.Connector(id)
		if err != nil {
			return nil, fmt.Errorf("scan connector %d: %w", id, err)
		}
		seen[id] = probed{conn: conn}
		order = append(order, id)
	}

	// Diff against a scratch copy of the baseline; s.connected is only
	// replaced once the whole scan has succeeded, so an abort mid-scan
	// leaves the previous state intact and the retry re-reports the same
	// changes.
	next := make(map[uint32]scanEntry, len(s.connected))
	for id, e := range s.connected {
		next[id] = e
	}

	taken := make(map[uint32]bool)
	for id, e := range s.connected {
		// Assignments of connectors that vanished or dropped are about to be
		// freed; keep the rest reserved.
		if p, ok := seen[id]; ok && p.conn.Connected() {
			taken[e.crtc] = true
		}
	}

	result := &ScanResult{}

	// Disconnects first so their CRTCs free up for new connections in the
	// same scan.
	for _, id := range order {
		p := seen[id]
		prev, had := next[id]
		if had && !p.conn.Connected() {
			result.Disconnected = append(result.Disconnected, ScanEvent{Connector: p.conn, CRTC: prev.crtc})
			delete(next, id)
		}
	}
	for id, prev := range next {
		if _, ok := seen[id]; !ok {
			ghost := &Connector{ID: id, Connection: connectionDisconnected}
			result.Disconnected = append(result.Disconnected, ScanEvent{Connector: ghost, CRTC: prev.crtc})
			delete(next, id)
		}
	}

	for _, id := range order {
		p := seen[id]
		if _, had := next[id]; had || !p.conn.Connected() {
			continue
		}
		crtc, err := pickCRTC(dev, res, p.conn, taken)
		if err != nil {
			return nil, err
		}
		if crtc == 0 {
			// No free mode-setting controller; leave the connector unscanned
			// so a later scan can pick it up once one frees.
			continue
		}
		taken[crtc] = true
		next[id] = scanEntry{crtc: crtc}
		result.Connected = append(result.Connected, ScanEvent{Connector: p.conn, CRTC: crtc})
	}

	s.connected = next
	return result, nil
}

// pickCRTC chooses a controller for a connector: the one its current encoder
// already drives when free, else the first free CRTC any of its encoders can
// reach. Returns 0 when none is available.
func pickCRTC(dev Enumerator, res *Resources, conn *Connector, taken map[uint32]bool) (uint32, error) {
	if conn.EncoderID != 0 {
		enc, err := dev.Encoder(conn.EncoderID)
		if err == nil && enc.CRTCID != 0 && !taken[enc.CRTCID] {
			return enc.CRTCID, nil
		}
	}
	for _, encID := range conn.Encoders {
		enc, err := dev.Encoder(encID)
		if err != nil {
			return 0, fmt.Errorf("scan encoder %d: %w", encID, err)
		}
		for i, crtc := range res.CRTCs {
			if enc.PossibleCRTCs&(1<<uint(i)) == 0 {
				continue
			}
			if !taken[crtc] {
				return crtc, nil
			}
		}
	}
	return 0, nil
}

// Forget drops all scanner state, e.g. when the device goes away.
func (s *Scanner) Forget() {
	s.connected = make(map[uint32]scanEntry)
}
