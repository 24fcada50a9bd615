package kms

import (
	"errors"
	"testing"
)

// fakeEnumerator is a device with a scriptable connector topology.
type fakeEnumerator struct {
	crtcs      []uint32
	connectors map[uint32]*Connector
	encoders   map[uint32]*Encoder
	encoderErr error
}

func (f *fakeEnumerator) Resources() (*Resources, error) {
	res := &Resources{CRTCs: f.crtcs}
	for id := range f.connectors {
		res.Connectors = append(res.Connectors, id)
	}
	for id := range f.encoders {
		res.Encoders = append(res.Encoders, id)
	}
	return res, nil
}

func (f *fakeEnumerator) Connector(id uint32) (*Connector, error) {
	return f.connectors[id], nil
}

func (f *fakeEnumerator) Encoder(id uint32) (*Encoder, error) {
	if f.encoderErr != nil {
		return nil, f.encoderErr
	}
	return f.encoders[id], nil
}

func newFakeDevice() *fakeEnumerator {
	return &fakeEnumerator{
		crtcs: []uint32{10, 11},
		connectors: map[uint32]*Connector{
			1: {ID: 1, Connection: connectionDisconnected, Encoders: []uint32{20}},
			2: {ID: 2, Connection: connectionDisconnected, Encoders: []uint32{21}},
		},
		encoders: map[uint32]*Encoder{
			// each encoder can reach both controllers
			20: {ID: 20, PossibleCRTCs: 0b11},
			21: {ID: 21, PossibleCRTCs: 0b11},
		},
	}
}

func TestScanAssignsFreeCRTC(t *testing.T) {
	dev := newFakeDevice()
	dev.connectors[1].Connection = connectionConnected
	scanner := NewScanner()

	result, err := scanner.Scan(dev)
	if err != nil {
		t.Fatalf("scan failed: %s", err)
	}
	if len(result.Connected) != 1 || len(result.Disconnected) != 0 {
		t.Fatalf("unexpected scan result: %+v", result)
	}
	if result.Connected[0].Connector.ID != 1 {
		t.Errorf("wrong connector reported: %d", result.Connected[0].Connector.ID)
	}
	if result.Connected[0].CRTC != 10 {
		t.Errorf("expected first free CRTC 10, got %d", result.Connected[0].CRTC)
	}
}

// Scanning twice with nothing changed must be a no-op both times.
func TestScanIdempotent(t *testing.T) {
	dev := newFakeDevice()
	dev.connectors[1].Connection = connectionConnected
	scanner := NewScanner()

	if _, err := scanner.Scan(dev); err != nil {
		t.Fatalf("first scan failed: %s", err)
	}
	result, err := scanner.Scan(dev)
	if err != nil {
		t.Fatalf("second scan failed: %s", err)
	}
	if !result.Empty() {
		t.Errorf("second scan not empty: %+v", result)
	}
}

func TestScanDisconnectFreesCRTC(t *testing.T) {
	dev := newFakeDevice()
	dev.connectors[1].Connection = connectionConnected
	dev.connectors[2].Connection = connectionConnected
	scanner := NewScanner()

	result, _ := scanner.Scan(dev)
	if len(result.Connected) != 2 {
		t.Fatalf("expected both connectors assigned, got %+v", result)
	}

	// unplug the first monitor, plug a new one into its place
	dev.connectors[1].Connection = connectionDisconnected
	result, err := scanner.Scan(dev)
	if err != nil {
		t.Fatalf("scan failed: %s", err)
	}
	if len(result.Disconnected) != 1 || result.Disconnected[0].Connector.ID != 1 {
		t.Fatalf("expected connector 1 disconnected, got %+v", result)
	}
	freed := result.Disconnected[0].CRTC

	dev.connectors[1].Connection = connectionConnected
	result, _ = scanner.Scan(dev)
	if len(result.Connected) != 1 || result.Connected[0].CRTC != freed {
		t.Errorf("freed CRTC %d not reused: %+v", freed, result)
	}
}

// A connector that vanishes from the resource list entirely still produces a
// disconnect so its surface gets torn down.
func TestScanGhostDisconnect(t *testing.T) {
	dev := newFakeDevice()
	dev.connectors[1].Connection = connectionConnected
	scanner := NewScanner()
	scanner.Scan(dev)

	delete(dev.connectors, 1)
	result, err := scanner.Scan(dev)
	if err != nil {
		t.Fatalf("scan failed: %s", err)
	}
	if len(result.Disconnected) != 1 || result.Disconnected[0].Connector.ID != 1 {
		t.Errorf("expected ghost disconnect for connector 1, got %+v", result)
	}
	if result.Disconnected[0].Connector.Connected() {
		t.Error("ghost connector must report disconnected")
	}
}

// With one controller and two monitors, the second connector waits until a
// controller frees up.
func TestScanExhaustedCRTCs(t *testing.T) {
	dev := newFakeDevice()
	dev.crtcs = []uint32{10}
	dev.encoders[20].PossibleCRTCs = 0b1
	dev.encoders[21].PossibleCRTCs = 0b1
	dev.connectors[1].Connection = connectionConnected
	dev.connectors[2].Connection = connectionConnected
	scanner := NewScanner()

	result, _ := scanner.Scan(dev)
	if len(result.Connected) != 1 {
		t.Fatalf("expected exactly one assignment, got %+v", result)
	}
	assigned := result.Connected[0].Connector.ID

	// free the controller and the waiting connector gets its turn
	dev.connectors[assigned].Connection = connectionDisconnected
	result, _ = scanner.Scan(dev)
	if len(result.Disconnected) != 1 || len(result.Connected) != 1 {
		t.Errorf("expected a handover, got %+v", result)
	}
}

// An aborted scan must not swallow changes: the retry after an enumeration
// failure re-reports everything observed during the failed pass.
func TestScanAbortKeepsBaseline(t *testing.T) {
	dev := newFakeDevice()
	dev.connectors[1].Connection = connectionConnected
	scanner := NewScanner()
	if _, err := scanner.Scan(dev); err != nil {
		t.Fatalf("initial scan failed: %s", err)
	}

	// monitor 1 unplugged and monitor 2 plugged in, but the new connector's
	// encoder lookup fails and aborts the scan
	dev.connectors[1].Connection = connectionDisconnected
	dev.connectors[2].Connection = connectionConnected
	dev.encoderErr = errors.New("device vanished")
	if _, err := scanner.Scan(dev); err == nil {
		t.Fatal("expected the encoder failure to abort the scan")
	}

	dev.encoderErr = nil
	result, err := scanner.Scan(dev)
	if err != nil {
		t.Fatalf("retry scan failed: %s", err)
	}
	if len(result.Disconnected) != 1 || result.Disconnected[0].Connector.ID != 1 {
		t.Errorf("retry lost the disconnect of connector 1: %+v", result)
	}
	if len(result.Connected) != 1 || result.Connected[0].Connector.ID != 2 {
		t.Errorf("retry lost the connect of connector 2: %+v", result)
	}
}

func TestScanPrefersCurrentEncoderCRTC(t *testing.T) {
	dev := newFakeDevice()
	dev.connectors[1].Connection = connectionConnected
	dev.connectors[1].EncoderID = 20
	dev.encoders[20].CRTCID = 11
	scanner := NewScanner()

	result, _ := scanner.Scan(dev)
	if len(result.Connected) != 1 || result.Connected[0].CRTC != 11 {
		t.Errorf("expected the encoder's current CRTC 11, got %+v", result)
	}
}
