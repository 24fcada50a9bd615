package kms

import "testing"

func TestRefreshFromClock(t *testing.T) {
	// 1920x1080@60: 148.5 MHz clock over 2200x1125 totals
	raw := modeInfo{Clock: 148500, HTotal: 2200, VTotal: 1125}
	got := refreshMillihertz(raw)
	if got != 60000 {
		t.Errorf("derived refresh %d mHz, want 60000", got)
	}
}

func TestRefreshPrefersVRefresh(t *testing.T) {
	raw := modeInfo{VRefresh: 75, Clock: 148500, HTotal: 2200, VTotal: 1125}
	if got := refreshMillihertz(raw); got != 75000 {
		t.Errorf("refresh %d mHz, want 75000", got)
	}
}

func TestModeString(t *testing.T) {
	m := NewMode(2560, 1440, 59951, true)
	if got := m.String(); got != "2560x1440@59.951Hz" {
		t.Errorf("mode string %q", got)
	}
}

func TestConnectorName(t *testing.T) {
	c := Connector{Type: 11, TypeID: 1} // HDMI-A
	if got := c.Name(); got != "HDMI-A-1" {
		t.Errorf("connector name %q, want HDMI-A-1", got)
	}
	unknown := Connector{Type: 9999, TypeID: 2}
	if got := unknown.Name(); got != "Unknown-2" {
		t.Errorf("connector name %q, want Unknown-2", got)
	}
}
