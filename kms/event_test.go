package kms

import (
	"encoding/binary"
	"testing"
)

func putEvent(buf []byte, typ uint32, userData uint64, seq, crtc uint32) []byte {
	rec := make([]byte, eventVBlankSize)
	binary.LittleEndian.PutUint32(rec[0:4], typ)
	binary.LittleEndian.PutUint32(rec[4:8], eventVBlankSize)
	binary.LittleEndian.PutUint64(rec[8:16], userData)
	binary.LittleEndian.PutUint32(rec[24:28], seq)
	binary.LittleEndian.PutUint32(rec[28:32], crtc)
	return append(buf, rec...)
}

func TestDecodeEvents(t *testing.T) {
	var buf []byte
	buf = putEvent(buf, eventTypeFlipComplete, 42, 100, 7)
	buf = putEvent(buf, eventTypeVBlank, 0, 101, 7)

	events, err := decodeEvents(buf)
	if err != nil {
		t.Fatalf("decode failed: %s", err)
	}
	if len(events) != 2 {
		t.Fatalf("decoded %d events, want 2", len(events))
	}
	if events[0].Type != EventFlipComplete || events[0].UserData != 42 || events[0].CRTC != 7 {
		t.Errorf("flip event decoded wrong: %+v", events[0])
	}
	if events[1].Type != EventVBlank || events[1].Sequence != 101 {
		t.Errorf("vblank event decoded wrong: %+v", events[1])
	}
}

// Unknown event types carry their own length and must be skipped, not choke
// the decoder.
func TestDecodeEventsSkipsUnknown(t *testing.T) {
	unknown := make([]byte, 16)
	binary.LittleEndian.PutUint32(unknown[0:4], 0x99)
	binary.LittleEndian.PutUint32(unknown[4:8], 16)
	buf := putEvent(unknown, eventTypeFlipComplete, 1, 1, 3)

	events, err := decodeEvents(buf)
	if err != nil {
		t.Fatalf("decode failed: %s", err)
	}
	if len(events) != 1 || events[0].CRTC != 3 {
		t.Errorf("expected only the flip event, got %+v", events)
	}
}

func TestDecodeEventsMalformedLength(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], eventTypeVBlank)
	binary.LittleEndian.PutUint32(buf[4:8], 4) // shorter than the header

	if _, err := decodeEvents(buf); err == nil {
		t.Error("expected an error for a malformed length")
	}
}
