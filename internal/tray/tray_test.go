package tray

import "testing"

func TestTray_Toggle(t *testing.T) {
	tr := New(true)

	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	tr.Toggle()
	tr.Toggle()

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Errorf("toggle callback got %v, want [false true]", got)
	}
	if !tr.IsEnabled() {
		t.Error("expected tray to be enabled after two toggles")
	}
}

func TestTray_SetEnabledSkipsCallback(t *testing.T) {
	tr := New(true)
	called := false
	tr.OnToggle(func(bool) { called = true })

	tr.SetEnabled(false)

	if called {
		t.Error("SetEnabled should not call the toggle callback")
	}
	if tr.IsEnabled() {
		t.Error("expected tray to be disabled")
	}
}

func TestTray_SetLastSign(t *testing.T) {
	tr := New(true)

	tr.SetLastSign("hello")
	tr.SetLastSign("")
	tr.SetLastSign("thanks")

	if tr.LastSign() != "thanks" {
		t.Errorf("LastSign() = %q, want %q", tr.LastSign(), "thanks")
	}
	if tr.Count() != 2 {
		t.Errorf("Count() = %d, want 2", tr.Count())
	}
}

func TestTitles(t *testing.T) {
	if toggleTitle(true) == toggleTitle(false) {
		t.Error("toggle titles should differ")
	}
	if lastSignTitle("") != "Last: none" {
		t.Errorf("lastSignTitle(\"\") = %q", lastSignTitle(""))
	}
	if countTitle(3) != "Recognized: 3" {
		t.Errorf("countTitle(3) = %q", countTitle(3))
	}
}
