package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/Nuthatch-Inc/nuthatch-compositor/config"
	"github.com/Nuthatch-Inc/nuthatch-compositor/cursor"
	"github.com/Nuthatch-Inc/nuthatch-compositor/gpu"
	"github.com/Nuthatch-Inc/nuthatch-compositor/input"
	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
	"github.com/Nuthatch-Inc/nuthatch-compositor/output"
	"github.com/Nuthatch-Inc/nuthatch-compositor/reactor"
	"github.com/Nuthatch-Inc/nuthatch-compositor/session"
	"github.com/Nuthatch-Inc/nuthatch-compositor/util/multiplexer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// rescanInterval paces the periodic connector rescan that stands in for
// fine-grained connector-change notifications.
const rescanInterval = time.Second

// cursorScale enlarges the pointer image for visibility during bring-up.
const cursorScale = 2

// ErrNoUsableGPU is the only fatal startup condition: not a single device
// survived the add pipeline.
var ErrNoUsableGPU = errors.New("no usable GPU device")

// opener abstracts the session's device-open path so the add pipeline can be
// exercised without a seat.
type opener interface {
	Open(path string) (int, error)
}

// outputInitializer is the slice of gpu.OutputManager a surface needs to
// bring up presentation, split out so render cycles can run against fakes.
type outputInitializer interface {
	InitializeOutput(crtc, connector uint32, mode kms.Mode) (*gpu.Presenter, error)
}

// BackendData is everything the server tracks for one registered GPU.
// Created whole by AddDevice, destroyed whole by RemoveDevice.
type BackendData struct {
	dev        *kms.Device
	mgr        outputInitializer
	renderNode kms.DeviceNode
	token      reactor.Token
	scanner    *kms.Scanner
	surfaces   map[uint32]*Surface // crtc id -> surface
}

// Server is the DRM backend: it owns the seat session, the reactor, the GPU
// registry and every active output, and keeps the vblank-driven frame loop
// alive until shutdown.
type Server struct {
	cfg    *config.Config
	loop   *reactor.Reactor
	sess   *session.Session
	opener opener
	pool   *gpu.Pool
	inputs *input.Manager
	layout *output.Layout

	primary  kms.DeviceNode
	backends map[kms.DeviceNode]*BackendData

	cursorImg *cursor.Cursor

	publish output.PublishFunc
	hotplug *hotplug
	events  *multiplexer.OneToMany[string]
	paused  bool
	probe   bool
	closed  bool
}

func NewServer(cfg *config.Config) (*Server, error) {
	loop, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("creating reactor: %w", err)
	}

	sess, err := session.New()
	if err != nil {
		loop.Close()
		return nil, fmt.Errorf("initializing session: %w", err)
	}

	server := &Server{
		cfg:       cfg,
		loop:      loop,
		sess:      sess,
		opener:    sess,
		pool:      gpu.NewPool(),
		layout:    output.NewLayout(),
		backends:  make(map[kms.DeviceNode]*BackendData),
		cursorImg: cursor.Load(cursorScale),
		events:    multiplexer.NewOneToMany[string](),
		publish: func(o *output.Output) {
			// Placeholder until the windowing-protocol layer hooks in its
			// global-publish function.
			logrus.WithField("output", o.Name).Debugln("Output published")
		},
	}

	server.inputs = input.NewManager(loop)
	server.inputs.SetBounds(server.layout.Extent)
	server.inputs.OnShutdownRequest(server.Stop)

	go server.events.StartPlexer()

	sess.OnEvent(server.handleSessionEvent)
	if _, err := loop.Register(sess.NotifyFd(), "session", sess.Dispatch); err != nil {
		server.Close()
		return nil, fmt.Errorf("registering session notifier: %w", err)
	}

	return server, nil
}

// Events is the broadcast feed of backend state changes, consumed by the
// repl's events command.
func (s *Server) Events() *multiplexer.OneToMany[string] {
	return s.events
}

// announce pushes a state-change message to subscribers, best effort.
func (s *Server) announce(msg string) {
	s.events.Send(msg)
}

// SetProbeOnly puts the server in discovery mode: devices and connectors are
// enumerated and mapped but nothing is mode-set or presented, and no input or
// hotplug sources are armed. Used by the tool mode.
func (s *Server) SetProbeOnly() {
	s.probe = true
}

// SetPublishFunc installs the windowing-protocol layer's global-publish
// function for new outputs.
func (s *Server) SetPublishFunc(f output.PublishFunc) {
	if f != nil {
		s.publish = f
	}
}

// Start discovers GPUs, brings up input, and arms hotplug watching. The only
// fatal outcome is that no device at all could be registered.
func (s *Server) Start() error {
	devices, primaryPath, err := s.discoverDevices()
	if err != nil {
		return err
	}

	// A chosen path that does not resolve is a per-device open failure like
	// any other; remaining GPUs still get their chance.
	primary, primaryErr := kms.NodeFromPath(primaryPath)
	if primaryErr != nil {
		logrus.WithError(addErr(StepDeviceOpen, primaryPath, primaryErr)).Errorln("Primary GPU path unusable, skipping")
	} else {
		s.primary = primary.RenderNode()
	}

	var firstAdded kms.DeviceNode
	haveAdded := false
	for _, path := range devices {
		node, err := kms.NodeFromPath(path)
		if err != nil {
			logrus.WithError(addErr(StepDeviceOpen, path, err)).Errorln("Failed to add device, skipping")
			continue
		}
		if err := s.AddDevice(node, path); err != nil {
			logrus.WithError(err).WithField("path", path).Errorln("Failed to add device, skipping")
			continue
		}
		if !haveAdded {
			firstAdded = node
			haveAdded = true
		}
	}
	if len(s.backends) == 0 {
		return ErrNoUsableGPU
	}
	if primaryErr != nil {
		s.primary = firstAdded.RenderNode()
	}
	logrus.WithField("node", s.primary.String()).Infoln("Primary render GPU selected")

	if s.probe {
		logrus.WithField("devices", len(s.backends)).Infoln("Probe complete")
		return nil
	}

	if err := s.inputs.Scan(); err != nil {
		logrus.WithError(err).Warnln("Input scan failed, running without input")
	}

	hp, err := newHotplug(s)
	if err != nil {
		logrus.WithError(err).Warnln("Device hotplug watching unavailable")
	} else {
		s.hotplug = hp
	}

	if _, err := s.loop.RegisterTimer(rescanInterval, "connector-rescan", s.rescanAll); err != nil {
		logrus.WithError(err).Warnln("Connector rescan timer unavailable")
	}

	logrus.WithField("devices", len(s.backends)).Infoln("DRM backend started")
	return nil
}

// discoverDevices returns the device paths to add, honoring the device
// override, and the path to treat as the primary GPU.
func (s *Server) discoverDevices() ([]string, string, error) {
	cards, err := kms.EnumerateCards()
	if err != nil {
		return nil, "", fmt.Errorf("enumerating GPUs: %w", err)
	}

	if forced := s.cfg.DRMDevice; forced != "" {
		logrus.WithField("path", forced).Infoln("Device override set")
		found := false
		for _, c := range cards {
			if c == forced {
				found = true
				break
			}
		}
		if !found {
			cards = append([]string{forced}, cards...)
		}
		return cards, forced, nil
	}

	primaryPath, err := kms.PrimaryGPU()
	if err != nil {
		return nil, "", fmt.Errorf("selecting primary GPU: %w", err)
	}
	return cards, primaryPath, nil
}

// Run blocks in the reactor loop until Stop is called or the failsafe
// expires, then tears everything down.
func (s *Server) Run() error {
	if s.cfg.FailsafeSeconds > 0 {
		s.loop.SetFailsafe(time.Duration(s.cfg.FailsafeSeconds) * time.Second)
	}
	err := s.loop.Run()
	s.Close()
	return err
}

// Stop requests a graceful shutdown of the reactor loop. Safe from any
// goroutine.
func (s *Server) Stop() {
	s.loop.Stop()
}

// Close releases every registered device and the session. Idempotent.
func (s *Server) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for node := range s.backends {
		s.RemoveDevice(node)
	}
	if s.hotplug != nil {
		s.hotplug.close()
		s.hotplug = nil
	}
	s.inputs.Suspend()
	s.events.CloseSender()
	// The loop must drop the session's notify fd from its poll set before
	// the session closes it.
	s.loop.Close()
	s.sess.Close()
}

// rescanAll runs a connector scan on every device, picking up monitor
// hotplug that arrived since the last pass.
func (s *Server) rescanAll() {
	for node := range s.backends {
		s.scanConnectors(node)
	}
}

// handleSessionEvent reacts to VT switches: pause drops device access and
// presentation, activate restores both and re-primes every surface.
func (s *Server) handleSessionEvent(ev session.Event) {
	switch ev {
	case session.PauseSession:
		s.paused = true
		s.announce("session paused")
		s.inputs.Suspend()
		for _, data := range s.backends {
			for _, surface := range data.surfaces {
				if surface.presenter != nil {
					surface.presenter.Suspend()
				}
			}
			if err := data.dev.DropMaster(); err != nil {
				logrus.WithError(err).Warnln("Failed to drop DRM master on pause")
			}
		}
	case session.ActivateSession:
		s.paused = false
		s.announce("session activated")
		for node, data := range s.backends {
			if err := data.dev.SetMaster(); err != nil {
				logrus.WithError(err).Errorln("Failed to reacquire DRM master")
				continue
			}
			for crtc, surface := range data.surfaces {
				if surface.presenter != nil {
					surface.presenter.Resume()
				}
				s.renderSurface(node, crtc)
			}
		}
		if err := s.inputs.Resume(); err != nil {
			logrus.WithError(err).Errorln("Failed to resume input subsystem")
		}
	}
}

// Outputs lists the currently mapped outputs, for the repl and the probe
// tool.
func (s *Server) Outputs() []*output.Output {
	return s.layout.Outputs()
}

// FrameCounts returns the per-output frame counters as a liveness signal.
func (s *Server) FrameCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	for _, data := range s.backends {
		for _, surface := range data.surfaces {
			counts[surface.Output.Name] = surface.frames
		}
	}
	return counts
}

// PointerLocation exposes the cursor position for inspection.
func (s *Server) PointerLocation() (float64, float64) {
	return s.inputs.PointerLocation()
}

// Devices lists the registered device nodes, for inspection.
func (s *Server) Devices() []string {
	var out []string
	for node, data := range s.backends {
		out = append(out, fmt.Sprintf("%s (%s, render %s)", node.String(), data.dev.Path(), data.renderNode.String()))
	}
	return out
}

func closeFd(fd int) error {
	return unix.Close(fd)
}
