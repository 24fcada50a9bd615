package gpu

import (
	"errors"
	"testing"

	"github.com/Nuthatch-Inc/nuthatch-compositor/kms"
)

type flipCall struct {
	op   string
	fbID uint32
}

type fakeFlipDevice struct {
	calls    []flipCall
	flipErr  error
	setErr   error
	lastMode *kms.Mode
}

func (f *fakeFlipDevice) SetCRTC(crtcID, fbID uint32, connectors []uint32, mode *kms.Mode) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.calls = append(f.calls, flipCall{op: "set", fbID: fbID})
	f.lastMode = mode
	return nil
}

func (f *fakeFlipDevice) PageFlip(crtcID, fbID uint32, userData uint64) error {
	if f.flipErr != nil {
		return f.flipErr
	}
	f.calls = append(f.calls, flipCall{op: "flip", fbID: fbID})
	return nil
}

type fakeChain struct {
	bufs      [2]*kms.Framebuffer
	front     int
	destroyed bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{bufs: [2]*kms.Framebuffer{{ID: 100}, {ID: 101}}}
}

func (c *fakeChain) Backbuffer() *kms.Framebuffer { return c.bufs[1-c.front] }
func (c *fakeChain) Swap()                        { c.front = 1 - c.front }
func (c *fakeChain) Destroy()                     { c.destroyed = true }

func newTestPresenter(dev *fakeFlipDevice, chain *fakeChain) *Presenter {
	return NewPresenter(dev, chain, 7, 3, kms.NewMode(1920, 1080, 60000, true))
}

func TestQueueFirstFramePerformsModeset(t *testing.T) {
	dev := &fakeFlipDevice{}
	chain := newFakeChain()
	p := newTestPresenter(dev, chain)

	if err := p.Queue(); err != nil {
		t.Fatalf("queue failed: %s", err)
	}
	if len(dev.calls) != 2 || dev.calls[0].op != "set" || dev.calls[1].op != "flip" {
		t.Fatalf("expected set then flip, got %+v", dev.calls)
	}
	if dev.calls[0].fbID != 101 || dev.calls[1].fbID != 101 {
		t.Errorf("modeset and flip must target the rendered backbuffer: %+v", dev.calls)
	}
	if dev.lastMode == nil || dev.lastMode.Width != 1920 {
		t.Errorf("modeset carried the wrong mode: %+v", dev.lastMode)
	}
	if !p.Pending() {
		t.Error("frame must be pending after queue")
	}
}

func TestQueueRejectsSecondFrameInFlight(t *testing.T) {
	dev := &fakeFlipDevice{}
	p := newTestPresenter(dev, newFakeChain())

	if err := p.Queue(); err != nil {
		t.Fatalf("queue failed: %s", err)
	}
	if err := p.Queue(); !errors.Is(err, ErrFrameInFlight) {
		t.Fatalf("expected ErrFrameInFlight, got %v", err)
	}

	p.FrameSubmitted()
	if err := p.Queue(); err != nil {
		t.Fatalf("queue after ack failed: %s", err)
	}
	// second queue skips the modeset
	if len(dev.calls) != 3 || dev.calls[2].op != "flip" {
		t.Errorf("expected a bare flip after ack, got %+v", dev.calls)
	}
}

func TestQueueAlternatesBuffers(t *testing.T) {
	dev := &fakeFlipDevice{}
	p := newTestPresenter(dev, newFakeChain())

	p.Queue()
	p.FrameSubmitted()
	p.Queue()
	p.FrameSubmitted()
	p.Queue()

	flips := []uint32{}
	for _, c := range dev.calls {
		if c.op == "flip" {
			flips = append(flips, c.fbID)
		}
	}
	want := []uint32{101, 100, 101}
	for i := range want {
		if flips[i] != want[i] {
			t.Fatalf("flip sequence %v, want %v", flips, want)
		}
	}
}

func TestSuspendedPresenterRejectsFrames(t *testing.T) {
	dev := &fakeFlipDevice{}
	p := newTestPresenter(dev, newFakeChain())

	p.Queue()
	p.Suspend()
	if p.Pending() {
		t.Error("suspend must drop the in-flight frame")
	}
	if err := p.Queue(); !errors.Is(err, ErrSuspended) {
		t.Fatalf("expected ErrSuspended, got %v", err)
	}

	p.Resume()
	if err := p.Queue(); err != nil {
		t.Fatalf("queue after resume failed: %s", err)
	}
	// the CRTC state is unknown after a VT round trip, so resume re-modesets
	last := dev.calls[len(dev.calls)-2]
	if last.op != "set" {
		t.Errorf("expected a fresh modeset after resume, got %+v", dev.calls)
	}
}

func TestFailedFlipLeavesNothingPending(t *testing.T) {
	dev := &fakeFlipDevice{flipErr: errors.New("device busy")}
	p := newTestPresenter(dev, newFakeChain())

	if err := p.Queue(); err == nil {
		t.Fatal("expected the flip error to surface")
	}
	if p.Pending() {
		t.Error("failed queue must not leave a frame pending")
	}
}

func TestOffDisablesAndDestroys(t *testing.T) {
	dev := &fakeFlipDevice{}
	chain := newFakeChain()
	p := newTestPresenter(dev, chain)

	p.Queue()
	p.Off()
	if !chain.destroyed {
		t.Error("off must release the swapchain")
	}
	last := dev.calls[len(dev.calls)-1]
	if last.op != "set" || last.fbID != 0 {
		t.Errorf("off must disable the CRTC, got %+v", last)
	}
}
