package reactor

import (
	"encoding/binary"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("creating reactor: %s", err)
	}
	t.Cleanup(r.Close)
	return r
}

func poke(t *testing.T, fd int) {
	t.Helper()
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(fd, one[:]); err != nil {
		t.Fatalf("writing eventfd: %s", err)
	}
}

func TestDispatchAndStop(t *testing.T) {
	r := newTestReactor(t)

	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		t.Fatalf("eventfd: %s", err)
	}
	defer unix.Close(fd)

	fired := 0
	_, err = r.Register(fd, "test", func() {
		fired++
		var buf [8]byte
		unix.Read(fd, buf[:])
		r.Stop()
	})
	if err != nil {
		t.Fatalf("register: %s", err)
	}

	poke(t, fd)
	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reactor did not stop")
	}
	if fired != 1 {
		t.Errorf("callback fired %d times, want 1", fired)
	}
}

// A callback may unregister its own source mid-dispatch without breaking the
// loop.
func TestUnregisterDuringDispatch(t *testing.T) {
	r := newTestReactor(t)

	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		t.Fatalf("eventfd: %s", err)
	}
	defer unix.Close(fd)

	var token Token
	token, err = r.Register(fd, "self-removing", func() {
		if err := r.Unregister(token); err != nil {
			t.Errorf("unregister: %s", err)
		}
		r.Stop()
	})
	if err != nil {
		t.Fatalf("register: %s", err)
	}

	poke(t, fd)
	if err := r.Run(); err != nil {
		t.Fatalf("run: %s", err)
	}
	if err := r.Unregister(token); err == nil {
		t.Error("token still valid after unregister")
	}
}

func TestTimerFires(t *testing.T) {
	r := newTestReactor(t)

	ticks := 0
	_, err := r.RegisterTimer(10*time.Millisecond, "test-timer", func() {
		ticks++
		if ticks >= 3 {
			r.Stop()
		}
	})
	if err != nil {
		t.Fatalf("register timer: %s", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never accumulated three ticks")
	}
	if ticks < 3 {
		t.Errorf("only %d ticks", ticks)
	}
}

func TestFailsafeExitsLoop(t *testing.T) {
	r := newTestReactor(t)
	r.SetFailsafe(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("failsafe did not trigger")
	}
}

func TestStopFromAnotherGoroutine(t *testing.T) {
	r := newTestReactor(t)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	go r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop from another goroutine did not wake the loop")
	}
}
