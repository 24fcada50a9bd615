package util

import "testing"

func TestUnpack(t *testing.T) {
	var a, b, c string
	Unpack([]string{"x", "y"}, &a, &b, &c)
	if a != "x" || b != "y" || c != "" {
		t.Errorf("got %q %q %q", a, b, c)
	}

	var d string
	Unpack([]string{"one", "two", "three"}, &d)
	if d != "one" {
		t.Errorf("extra elements must be dropped, got %q", d)
	}
}
