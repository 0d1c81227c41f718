package version

import "testing"

func TestGet(t *testing.T) {
	if got := Get(); got != "0.3.0" {
		t.Errorf("Get() = %q, want 0.3.0", got)
	}
}

func TestGet_Override(t *testing.T) {
	defer func(old string) { override = old }(override)
	override = " 1.2.3-dev\n"
	if got := Get(); got != "1.2.3-dev" {
		t.Errorf("Get() = %q, want 1.2.3-dev", got)
	}
}
