// Package input turns SDL2 events into viewer events and tracks held keys.
package input

import (
	"github.com/veandco/go-sdl2/sdl"
)

// EventType identifies a translated event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventKeyDown
	EventKeyUp
	EventMouseDown
	EventMouseUp
)

// Event is a translated SDL event. Only the fields relevant to Type are set.
type Event struct {
	Type   EventType
	Key    sdl.Scancode
	Width  int
	Height int
	Button uint8
}

// Input collects one frame of events plus keyboard and mouse state.
type Input struct {
	events []Event
	keys   []uint8
	dx, dy int
}

// New creates an input handler.
func New() *Input {
	return &Input{events: make([]Event, 0, 16)}
}

// translate maps an SDL event to an Event. Key repeats are dropped so toggles
// fire once per press.
func translate(ev sdl.Event) (Event, bool) {
	switch e := ev.(type) {
	case *sdl.QuitEvent:
		return Event{Type: EventQuit}, true
	case *sdl.WindowEvent:
		if e.Event != sdl.WINDOWEVENT_SIZE_CHANGED {
			return Event{}, false
		}
		return Event{Type: EventWindowResize, Width: int(e.Data1), Height: int(e.Data2)}, true
	case *sdl.KeyboardEvent:
		if e.Repeat != 0 {
			return Event{}, false
		}
		t := EventKeyUp
		if e.Type == sdl.KEYDOWN {
			t = EventKeyDown
		}
		return Event{Type: t, Key: e.Keysym.Scancode}, true
	case *sdl.MouseButtonEvent:
		t := EventMouseUp
		if e.Type == sdl.MOUSEBUTTONDOWN {
			t = EventMouseDown
		}
		return Event{Type: t, Button: e.Button}, true
	}
	return Event{}, false
}

// Update drains the SDL queue. It returns true once a quit was requested.
func (i *Input) Update() bool {
	i.events = i.events[:0]
	i.dx, i.dy = 0, 0

	quit := false
	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		if m, ok := ev.(*sdl.MouseMotionEvent); ok {
			i.dx += int(m.XRel)
			i.dy += int(m.YRel)
			continue
		}
		if e, ok := translate(ev); ok {
			i.events = append(i.events, e)
			quit = quit || e.Type == EventQuit
		}
	}
	i.keys = sdl.GetKeyboardState()
	return quit
}

// Events returns the events from the last Update.
func (i *Input) Events() []Event {
	return i.events
}

// IsKeyPressed reports whether scancode went down during the last Update.
func (i *Input) IsKeyPressed(scancode sdl.Scancode) bool {
	for _, e := range i.events {
		if e.Type == EventKeyDown && e.Key == scancode {
			return true
		}
	}
	return false
}

// IsKeyHeld reports whether scancode is down.
func (i *Input) IsKeyHeld(scancode sdl.Scancode) bool {
	return int(scancode) < len(i.keys) && i.keys[scancode] != 0
}

// Axis returns +1, -1 or 0 from a pair of held keys.
func (i *Input) Axis(positive, negative sdl.Scancode) float32 {
	var v float32
	if i.IsKeyHeld(positive) {
		v++
	}
	if i.IsKeyHeld(negative) {
		v--
	}
	return v
}

// MouseDelta returns relative mouse motion since the previous Update.
func (i *Input) MouseDelta() (dx, dy int) {
	return i.dx, i.dy
}
