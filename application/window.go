package application

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/core1_0"
)

// Window wraps an SDL2 window configured for Vulkan rendering.
type Window struct {
	window     *sdl.Window
	fullscreen bool
}

// NewWindow initializes SDL's video subsystem and opens a resizable
// Vulkan-capable window.
func NewWindow(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "initializing sdl")
	}

	window, err := sdl.CreateWindow(
		title,
		sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE,
	)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "creating window")
	}

	return &Window{window: window}, nil
}

// SDLWindow exposes the underlying window for surface creation.
func (w *Window) SDLWindow() *sdl.Window {
	return w.window
}

// FramebufferExtent reports the drawable area in pixels. Zero in either
// dimension means the window is minimized and nothing can be rendered.
func (w *Window) FramebufferExtent() core1_0.Extent2D {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return core1_0.Extent2D{}
	}
	width, height := w.window.VulkanGetDrawableSize()
	return core1_0.Extent2D{Width: int(width), Height: int(height)}
}

// ToggleFullscreen switches between borderless fullscreen and windowed
// mode. The swapchain picks up the new extent on its next rebuild.
func (w *Window) ToggleFullscreen() error {
	var flags uint32
	if !w.fullscreen {
		flags = sdl.WINDOW_FULLSCREEN_DESKTOP
	}
	if err := w.window.SetFullscreen(flags); err != nil {
		return errors.Wrap(err, "toggling fullscreen")
	}
	w.fullscreen = !w.fullscreen
	return nil
}

// Destroy closes the window and shuts SDL down.
func (w *Window) Destroy() {
	if w.window != nil {
		_ = w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
