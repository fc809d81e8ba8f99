package input

import (
	"testing"

	"github.com/veandco/go-sdl2/sdl"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		in   sdl.Event
		want Event
		ok   bool
	}{
		{"quit", &sdl.QuitEvent{Type: sdl.QUIT}, Event{Type: EventQuit}, true},
		{
			"resize",
			&sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_SIZE_CHANGED, Data1: 800, Data2: 600},
			Event{Type: EventWindowResize, Width: 800, Height: 600},
			true,
		},
		{"window moved", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_MOVED}, Event{}, false},
		{
			"key down",
			&sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Scancode: sdl.SCANCODE_TAB}},
			Event{Type: EventKeyDown, Key: sdl.SCANCODE_TAB},
			true,
		},
		{
			"key up",
			&sdl.KeyboardEvent{Type: sdl.KEYUP, Keysym: sdl.Keysym{Scancode: sdl.SCANCODE_W}},
			Event{Type: EventKeyUp, Key: sdl.SCANCODE_W},
			true,
		},
		{
			"key repeat",
			&sdl.KeyboardEvent{Type: sdl.KEYDOWN, Repeat: 1, Keysym: sdl.Keysym{Scancode: sdl.SCANCODE_TAB}},
			Event{},
			false,
		},
		{
			"mouse down",
			&sdl.MouseButtonEvent{Type: sdl.MOUSEBUTTONDOWN, Button: sdl.BUTTON_LEFT},
			Event{Type: EventMouseDown, Button: sdl.BUTTON_LEFT},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translate(tt.in)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestAxis(t *testing.T) {
	in := New()
	in.keys = make([]uint8, sdl.NUM_SCANCODES)

	if v := in.Axis(sdl.SCANCODE_W, sdl.SCANCODE_S); v != 0 {
		t.Errorf("expected 0 with no keys held, got %v", v)
	}
	in.keys[sdl.SCANCODE_W] = 1
	if v := in.Axis(sdl.SCANCODE_W, sdl.SCANCODE_S); v != 1 {
		t.Errorf("expected 1, got %v", v)
	}
	in.keys[sdl.SCANCODE_S] = 1
	if v := in.Axis(sdl.SCANCODE_W, sdl.SCANCODE_S); v != 0 {
		t.Errorf("expected opposing keys to cancel, got %v", v)
	}
	if in.IsKeyHeld(sdl.Scancode(sdl.NUM_SCANCODES + 10)) {
		t.Error("expected out-of-range scancode to read as released")
	}
}

func TestIsKeyPressed(t *testing.T) {
	in := New()
	in.events = append(in.events, Event{Type: EventKeyUp, Key: sdl.SCANCODE_F12})
	if in.IsKeyPressed(sdl.SCANCODE_F12) {
		t.Error("expected key up not to count as pressed")
	}
	in.events = append(in.events, Event{Type: EventKeyDown, Key: sdl.SCANCODE_F12})
	if !in.IsKeyPressed(sdl.SCANCODE_F12) {
		t.Error("expected F12 pressed")
	}
}
