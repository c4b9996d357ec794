// Package application runs the top-level event loop shared by all example
// programs. A program implements State; Run owns the SDL event pump,
// pauses rendering while the window is minimized, and calls Update once
// per frame otherwise.
package application

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
)

// ErrQuit may be returned from State.HandleEvent or State.Update to end
// the run loop cleanly.
var ErrQuit = errors.New("quit requested")

// State holds everything a program renders with. Run drives it.
type State interface {
	// HandleEvent reacts to a single SDL event. Window resize events are
	// where a state typically invalidates its swapchain.
	HandleEvent(event sdl.Event) error

	// Update renders one frame. Not called while the window is minimized.
	Update() error
}

// Run pumps events and updates state until the window is closed, the state
// requests a quit, or an error escapes. Rendering pauses while the window
// has no drawable area.
func Run(window *Window, state State) error {
	rendering := true

	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				return nil
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED:
					extent := window.FramebufferExtent()
					rendering = extent.Width > 0 && extent.Height > 0
				}
			}

			err := state.HandleEvent(event)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				return err
			}
		}

		if !rendering {
			// Nothing to draw; don't spin on the event queue.
			sdl.Delay(16)
			continue
		}

		err := state.Update()
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
