package backend

import (
	"errors"
	"fmt"

	"github.com/Nuthatch-Inc/nuthatch-compositor/gpu"
	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
	"github.com/sirupsen/logrus"
)

// DeviceAddStep identifies where in the device-add pipeline a failure
// happened. Every step is non-fatal to the process: the device is skipped
// and already-initialized devices keep running.
type DeviceAddStep int

const (
	StepDeviceOpen DeviceAddStep = iota
	StepModeSetting
	StepAllocator
	StepAddNode
	StepEventLoop
)

func (s DeviceAddStep) String() string {
	switch s {
	case StepDeviceOpen:
		return "open device"
	case StepModeSetting:
		return "create mode-setting device"
	case StepAllocator:
		return "create buffer allocator"
	case StepAddNode:
		return "add render node"
	case StepEventLoop:
		return "register event source"
	default:
		return "unknown step"
	}
}

// DeviceAddError wraps a device-add failure with the step it happened at.
type DeviceAddError struct {
	Step DeviceAddStep
	Path string
	Err  error
}

func (e *DeviceAddError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Step, e.Path, e.Err)
}

func (e *DeviceAddError) Unwrap() error { return e.Err }

func addErr(step DeviceAddStep, path string, err error) *DeviceAddError {
	return &DeviceAddError{Step: step, Path: path, Err: err}
}

// AddDevice runs the device-add pipeline for one GPU. Either the device ends
// fully registered (handle, allocator, render node, presentation manager and
// event source all present) or not registered at all. Finishes with an
// immediate connector scan so no render can see stale connector state.
func (s *Server) AddDevice(node kms.DeviceNode, path string) error {
	log := logrus.WithFields(logrus.Fields{"node": node.String(), "path": path})

	if _, exists := s.backends[node]; exists {
		// Hotplug storms can replay Added events; treat a re-add as a
		// request to rescan rather than tearing down a live device.
		log.Warnln("Device already registered, rescanning connectors")
		s.scanConnectors(node)
		return nil
	}

	fd, err := s.opener.Open(path)
	if err != nil {
		return addErr(StepDeviceOpen, path, err)
	}

	dev, err := kms.Wrap(fd, path)
	if err != nil {
		_ = closeFd(fd)
		if errors.Is(err, kms.ErrNoDumbBuffers) {
			return addErr(StepAllocator, path, err)
		}
		return addErr(StepModeSetting, path, err)
	}

	if !s.probe {
		if err := dev.SetMaster(); err != nil {
			// Not fatal: another master may hold the device briefly (VT
			// worker, late display manager); mode setting fails loudly later
			// if so.
			log.WithError(err).Warnln("Could not become DRM master")
		}
	}

	token, err := s.loop.Register(dev.Fd(), "drm:"+path, func() { s.handleDeviceEvents(node) })
	if err != nil {
		dev.Close()
		return addErr(StepEventLoop, path, err)
	}

	renderNode := node.RenderNode()
	if err := s.pool.AddNode(renderNode); err != nil && !errors.Is(err, gpu.ErrNodeExists) {
		_ = s.loop.Unregister(token)
		dev.Close()
		return addErr(StepAddNode, path, err)
	}

	s.backends[node] = &BackendData{
		dev:        dev,
		mgr:        gpu.NewOutputManager(dev),
		renderNode: renderNode,
		token:      token,
		scanner:    kms.NewScanner(),
		surfaces:   make(map[uint32]*Surface),
	}
	log.WithField("render_node", renderNode.String()).Infoln("GPU device registered")
	s.announce("device added: " + path)

	s.scanConnectors(node)
	return nil
}

// RemoveDevice tears a GPU down completely: every surface is released, the
// vblank event source unregistered, and the render node dropped from the
// acceleration pool unless another device still renders on it.
func (s *Server) RemoveDevice(node kms.DeviceNode) {
	data, ok := s.backends[node]
	if !ok {
		return
	}
	log := logrus.WithField("node", node.String())

	for crtc, surface := range data.surfaces {
		s.releaseSurface(data, crtc, surface)
	}
	if err := s.loop.Unregister(data.token); err != nil {
		log.WithError(err).Warnln("Failed to unregister device event source")
	}
	delete(s.backends, node)

	renderShared := false
	for _, other := range s.backends {
		if other.renderNode == data.renderNode {
			renderShared = true
			break
		}
	}
	if !renderShared {
		s.pool.DropNode(data.renderNode)
	}

	_ = data.dev.DropMaster()
	if err := data.dev.Close(); err != nil {
		log.WithError(err).Warnln("Failed to close device")
	}
	log.Infoln("GPU device removed")
	s.announce("device removed: " + data.dev.Path())
}
