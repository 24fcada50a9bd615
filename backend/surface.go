// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package backend

import (
	"github.com/Nuthatch-Inc/nuthatch-compositor/gpu"
	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
	"github.com/Nuthatch-Inc/nuthatch-compositor/output"
	"github.com/sirupsen/logrus"
)

// Surface is one active output head on one GPU: the mapped output plus its
// presentation state and frame counter.
type Surface struct {
	Output    *output.Output
	connector uint32
	crtc      uint32
	presenter *gpu.Presenter
	frames    uint64
}

// scanConnectors diffs the device's connector state against the last scan and
// applies the result. A scan failure leaves every existing surface untouched.
func (s *Server) scanConnectors(node kms.DeviceNode) {
	data, ok := s.backends[node]
	if !ok {
		return
	}
	result, err := data.scanner.Scan(data.dev)
	if err != nil {
		logrus.WithError(err).WithField("device", data.dev.Path()).Warnln("Connector scan failed")
		return
	}
	for _, ev := range result.Disconnected {
		s.connectorDisconnected(data, ev)
	}
	for _, ev := range result.Connected {
		s.connectorConnected(node, data, ev)
	}
}

func (s *Server) connectorConnected(node kms.DeviceNode, data *BackendData, ev kms.ScanEvent) {
	conn := ev.Connector
	mode, ok := output.SelectMode(conn.Modes)
	if !ok {
		logrus.WithField("connector", conn.Name()).Warnln("Connector has no modes, ignoring")
		return
	}
	out := &output.Output{
		Name:         conn.Name(),
		PhysWidthMM:  conn.PhysWidthMM,
		PhysHeightMM: conn.PhysHeightMM,
		Subpixel:     output.SubpixelName(conn.Subpixel),
		Mode:         mode,
		Modes:        conn.Modes,
	}
	s.layout.Map(out)
	s.publish(out)

	surface := &Surface{
		Output:    out,
		connector: conn.ID,
		crtc:      ev.CRTC,
	}
	data.surfaces[ev.CRTC] = surface
	logrus.WithFields(logrus.Fields{
		"output": out.Name,
		"mode":   mode.String(),
		"crtc":   ev.CRTC,
	}).Infoln("Output connected")
	s.announce("output connected: " + out.Name)

	if s.probe {
		return
	}
	// Prime the pipeline: the first queued frame performs the modeset and
	// every later frame is paced by its flip-complete event.
	s.renderSurface(node, ev.CRTC)
}

func (s *Server) connectorDisconnected(data *BackendData, ev kms.ScanEvent) {
	surface, ok := data.surfaces[ev.CRTC]
	if !ok {
		return
	}
	logrus.WithField("output", surface.Output.Name).Infoln("Output disconnected")
	s.announce("output disconnected: " + surface.Output.Name)
	s.releaseSurface(data, ev.CRTC, surface)
}

// releaseSurface disables the CRTC, frees the swapchain, and unmaps the
// output from the layout.
func (s *Server) releaseSurface(data *BackendData, crtc uint32, surface *Surface) {
	if surface.presenter != nil {
		surface.presenter.Off()
		surface.presenter = nil
	}
	s.layout.Unmap(surface.Output.Name)
	delete(data.surfaces, crtc)
}

// renderSurface runs one render cycle for a surface: fill the backbuffer
// with the current sweep color, draw the cursor, and queue the page flip.
// With a frame still in flight the cycle is skipped; the flip-complete
// handler restarts it.
func (s *Server) renderSurface(node kms.DeviceNode, crtc uint32) {
	if s.paused {
		return
	}
	data, ok := s.backends[node]
	if !ok {
		return
	}
	surface, ok := data.surfaces[crtc]
	if !ok {
		return
	}

	renderer, err := s.pool.Renderer(s.primary)
	if err != nil {
		renderer, err = s.pool.Renderer(data.renderNode)
	}
	if err != nil {
		logrus.WithError(err).Errorln("No renderer available for surface")
		return
	}

	if surface.presenter == nil {
		presenter, err := data.mgr.InitializeOutput(surface.crtc, surface.connector, surface.Output.Mode)
		if err != nil {
			logrus.WithError(err).WithField("output", surface.Output.Name).Errorln("Failed to initialize output presentation")
			return
		}
		surface.presenter = presenter
	}
	if surface.presenter.Pending() {
		return
	}

	hue := float64((surface.frames * 2) % 360)
	r, g, b := gpu.HueToRGB(hue)
	clear := gpu.Color{R: r, G: g, B: b, A: 1}

	var elements []gpu.RenderElement
	px, py := s.inputs.PointerLocation()
	hx, hy := s.cursorImg.Hotspot()
	cx := int(px) - surface.Output.X - hx
	cy := int(py) - surface.Output.Y - hy
	elements = append(elements, gpu.RenderElement{Image: s.cursorImg.Image(), X: cx, Y: cy})

	renderer.RenderPass(surface.presenter.Backbuffer(), clear, elements)

	if err := surface.presenter.Queue(); err != nil {
		logrus.WithError(err).WithField("output", surface.Output.Name).Errorln("Failed to queue frame")
		return
	}
	surface.frames++
}

// handleDeviceEvents drains the DRM event stream for one device and restarts
// the render cycle of every surface whose flip completed.
func (s *Server) handleDeviceEvents(node kms.DeviceNode) {
	data, ok := s.backends[node]
	if !ok {
		return
	}
	events, err := data.dev.ReadEvents()
	if err != nil {
		logrus.WithError(err).WithField("device", data.dev.Path()).Warnln("Failed to read device events")
		return
	}
	for _, ev := range events {
		if ev.Type != kms.EventFlipComplete {
			continue
		}
		crtc := ev.CRTC
		if crtc == 0 {
			// Pre-crtc_id kernels report the flip only through the cookie.
			crtc = uint32(ev.UserData)
		}
		surface, ok := data.surfaces[crtc]
		if !ok {
			continue
		}
		if surface.presenter != nil {
			surface.presenter.FrameSubmitted()
		}
		s.renderSurface(node, crtc)
	}
}
