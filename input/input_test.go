package input

import (
	"encoding/binary"
	"testing"

	"github.com/Nuthatch-Inc/nuthatch-compositor/reactor"
)

type nopRegistrar struct{}

func (nopRegistrar) Register(fd int, name string, cb reactor.Callback) (reactor.Token, error) {
	return 1, nil
}
func (nopRegistrar) Unregister(token reactor.Token) error { return nil }

func press(m *Manager, code uint16) {
	m.process(inputEvent{Type: evKey, Code: code, Value: valuePress})
}

func release(m *Manager, code uint16) {
	m.process(inputEvent{Type: evKey, Code: code, Value: valueRelease})
}

func TestExitCombination(t *testing.T) {
	m := NewManager(nopRegistrar{})
	fired := 0
	m.OnShutdownRequest(func() { fired++ })

	press(m, keyQ)
	release(m, keyQ)
	if fired != 0 {
		t.Fatal("bare Q must not shut down")
	}

	press(m, keyLeftCtrl)
	press(m, keyLeftAlt)
	press(m, keyQ)
	if fired != 1 {
		t.Fatalf("Ctrl+Alt+Q fired %d times, want 1", fired)
	}

	// releasing a modifier disarms the combination
	release(m, keyLeftAlt)
	release(m, keyQ)
	press(m, keyQ)
	if fired != 1 {
		t.Fatal("combination fired without Alt held")
	}
}

func TestExitCombinationRightModifiers(t *testing.T) {
	m := NewManager(nopRegistrar{})
	fired := 0
	m.OnShutdownRequest(func() { fired++ })

	press(m, keyRightCtrl)
	press(m, keyRightAlt)
	press(m, keyBackspace)
	if fired != 1 {
		t.Errorf("Ctrl+Alt+Backspace fired %d times, want 1", fired)
	}
}

func TestConsumedKeysNotForwarded(t *testing.T) {
	m := NewManager(nopRegistrar{})
	m.OnShutdownRequest(func() {})
	var forwarded []uint16
	m.OnKey(func(code uint16, pressed bool) {
		if pressed {
			forwarded = append(forwarded, code)
		}
	})

	press(m, keyLeftCtrl)
	press(m, keyLeftAlt)
	press(m, keyQ) // consumed by the exit combination
	press(m, 30)   // KEY_A

	want := []uint16{keyLeftCtrl, keyLeftAlt, 30}
	if len(forwarded) != len(want) {
		t.Fatalf("forwarded %v, want %v", forwarded, want)
	}
	for i := range want {
		if forwarded[i] != want[i] {
			t.Fatalf("forwarded %v, want %v", forwarded, want)
		}
	}
}

func TestPointerClampsToBounds(t *testing.T) {
	m := NewManager(nopRegistrar{})
	m.SetBounds(func() (float64, float64) { return 800, 600 })

	m.process(inputEvent{Type: evRel, Code: relX, Value: 10000})
	m.process(inputEvent{Type: evRel, Code: relY, Value: -10000})
	x, y := m.PointerLocation()
	if x != 800 || y != 0 {
		t.Errorf("pointer at (%f,%f), want clamped to (800,0)", x, y)
	}

	m.process(inputEvent{Type: evRel, Code: relX, Value: -50})
	m.process(inputEvent{Type: evRel, Code: relY, Value: 25})
	x, y = m.PointerLocation()
	if x != 750 || y != 25 {
		t.Errorf("pointer at (%f,%f), want (750,25)", x, y)
	}
}

func TestDecodeEvent(t *testing.T) {
	buf := make([]byte, eventSize)
	binary.LittleEndian.PutUint16(buf[16:18], evKey)
	binary.LittleEndian.PutUint16(buf[18:20], keyQ)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(valuePress))

	ev := decodeEvent(buf)
	if ev.Type != evKey || ev.Code != keyQ || ev.Value != valuePress {
		t.Errorf("decoded %+v", ev)
	}

	// negative relative motion survives the round trip
	binary.LittleEndian.PutUint16(buf[16:18], evRel)
	neg := int32(-7)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(neg))
	if ev := decodeEvent(buf); ev.Value != -7 {
		t.Errorf("negative value decoded as %d", ev.Value)
	}
}
