package present

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// Outcome reports how an acquire or present operation left the swapchain.
type Outcome int

const (
	// Optimal means the operation succeeded and the swapchain still
	// matches the surface.
	Optimal Outcome = iota

	// Suboptimal means the operation succeeded but the swapchain no
	// longer matches the surface exactly. The frame is still usable;
	// a rebuild should happen before the next one.
	Suboptimal

	// OutOfDate means the operation failed because the swapchain is
	// incompatible with the surface. No image was produced.
	OutOfDate
)

// Target is the swapchain surface the frame lifecycle drives. The
// production implementation wraps Swapchain and the present queue; tests
// substitute fakes.
type Target interface {
	Acquire(imageAvailable core1_0.Semaphore) (imageIndex int, outcome Outcome, err error)
	Present(imageIndex int, renderFinished core1_0.Semaphore) (Outcome, error)
	Rebuild(extent core1_0.Extent2D) error
	ImageCount() int
}

// Submitter hands a recorded slot to the graphics queue, signaling the
// slot's render-finished semaphore and in-flight fence on completion.
type Submitter interface {
	Submit(slot *Slot) error
}

// ExtentSource reports the window's current framebuffer extent in pixels.
// A zero extent means the window has no drawable area (minimized).
type ExtentSource func() core1_0.Extent2D

// Token is the handle for a frame between BeginFrame and EndFrame. At most
// one token is live at a time; the frame loop is single-threaded.
type Token struct {
	SlotIndex  int
	ImageIndex int
}

// Config parameterizes the frame lifecycle.
type Config struct {
	// FrameCount is the number of in-flight frame slots. Zero means 2.
	FrameCount int
}

func (c Config) frameCount() int {
	if c.FrameCount == 0 {
		return 2
	}
	return c.FrameCount
}

// Frames orchestrates the acquire -> record -> submit -> present loop for a
// fixed ring of in-flight frame slots, rebuilding the swapchain whenever it
// is invalidated by a resize or display change.
//
// The in-flight fence wait in BeginFrame is the sole backpressure bounding
// how far the CPU runs ahead of the GPU; there is no other frame pacing.
type Frames struct {
	target   Target
	submit   Submitter
	idle     func() error
	extent   ExtentSource
	pool     *SlotPool
	ownsPool bool

	// imagesInFlight maps a swapchain image index to the fence of the slot
	// that last rendered into it, so an image is never re-acquired while
	// the presentation engine may still be reading it.
	imagesInFlight []Fence

	rebuildPending bool
	recording      bool
	idled          bool
}

// NewFrames wires a Frames controller to a real swapchain and queues.
//
// The swapchain is owned by the caller (render passes need it for formats
// and image views); the slot pool is owned by Frames.
func NewFrames(
	device core1_0.Device,
	graphicsQueue core1_0.Queue,
	presentQueue core1_0.Queue,
	graphicsFamily int,
	swapchain *Swapchain,
	extent ExtentSource,
	config Config,
) (*Frames, error) {
	pool, err := NewSlotPool(device, graphicsFamily, config.frameCount())
	if err != nil {
		return nil, err
	}

	idle := func() error {
		_, err := device.WaitIdle()
		return err
	}

	f := newFrames(
		&swapchainTarget{swapchain: swapchain, presentQueue: presentQueue},
		&queueSubmitter{queue: graphicsQueue},
		idle,
		extent,
		pool,
	)
	f.ownsPool = true
	return f, nil
}

// newFrames is the seam constructor shared by production wiring and tests.
func newFrames(target Target, submit Submitter, idle func() error, extent ExtentSource, pool *SlotPool) *Frames {
	f := &Frames{
		target: target,
		submit: submit,
		idle:   idle,
		extent: extent,
		pool:   pool,
	}
	f.resetImageTracker(target.ImageCount())
	return f
}

// FrameCount is the number of in-flight frame slots.
func (f *Frames) FrameCount() int {
	return f.pool.Count()
}

// Invalidate forces a swapchain rebuild before the next frame. Useful when
// the caller already knows the swapchain is stale, e.g. on a resize event.
func (f *Frames) Invalidate() {
	f.rebuildPending = true
}

// BeginFrame selects the next frame slot, waits for its previous submission
// to complete, and acquires a swapchain image.
//
// On success the slot's command buffer has been restarted and is ready for
// recording; fetch it with Commands. If the swapchain was invalidated the
// engine rebuilds it and returns ErrRetryNeeded: no frame was produced and
// the caller should simply try again next loop iteration.
func (f *Frames) BeginFrame() (Token, error) {
	if f.recording {
		return Token{}, errors.New("BeginFrame called while a frame is already in progress")
	}
	f.idled = false

	if f.rebuildPending {
		rebuilt, err := f.tryRebuild()
		if err != nil {
			return Token{}, err
		}
		if !rebuilt {
			return Token{}, ErrRetryNeeded
		}
	}

	slot := f.pool.Current()

	// Bounds the number of frames queued ahead of the CPU to the slot
	// count. Typically a no-op because other frames completed in between.
	if err := slot.InFlight.Wait(); err != nil {
		return Token{}, asFatal(errors.Wrapf(err, "waiting for slot %d fence", slot.Index))
	}

	imageIndex, outcome, err := f.target.Acquire(slot.ImageAvailable)
	if err != nil {
		return Token{}, asFatal(errors.Wrap(err, "acquiring swapchain image"))
	}

	switch outcome {
	case OutOfDate:
		f.rebuildPending = true
		if _, err := f.tryRebuild(); err != nil {
			return Token{}, err
		}
		return Token{}, ErrRetryNeeded
	case Suboptimal:
		// The acquired image is still presentable; rebuild after present.
		f.rebuildPending = true
	}

	// An image can be handed out again before the slot that previously
	// rendered into it has finished; wait on that slot's fence first.
	if prev := f.imagesInFlight[imageIndex]; prev != nil {
		if err := prev.Wait(); err != nil {
			return Token{}, asFatal(errors.Wrapf(err, "waiting for image %d to leave flight", imageIndex))
		}
	}
	f.imagesInFlight[imageIndex] = slot.InFlight

	if slot.Commands != nil {
		slot.Commands.Reset(0)
		_, err = slot.Commands.Begin(core1_0.CommandBufferBeginInfo{
			Flags: core1_0.CommandBufferUsageOneTimeSubmit,
		})
		if err != nil {
			return Token{}, asFatal(errors.Wrapf(err, "beginning command buffer for slot %d", slot.Index))
		}
	}

	f.recording = true
	return Token{SlotIndex: slot.Index, ImageIndex: imageIndex}, nil
}

// Commands returns the primary command buffer for the frame identified by
// token. The buffer is already in the recording state.
func (f *Frames) Commands(token Token) core1_0.CommandBuffer {
	return f.pool.Slot(token.SlotIndex).Commands
}

// EndFrame submits the frame's recorded commands to the graphics queue and
// schedules the acquired image for presentation. A suboptimal or
// out-of-date present triggers a swapchain rebuild before the next
// BeginFrame acquires; any other failure is fatal.
func (f *Frames) EndFrame(token Token) error {
	if !f.recording {
		return errors.New("EndFrame called without a frame in progress")
	}
	f.recording = false

	slot := f.pool.Slot(token.SlotIndex)

	if slot.Commands != nil {
		if _, err := slot.Commands.End(); err != nil {
			return asFatal(errors.Wrapf(err, "ending command buffer for slot %d", slot.Index))
		}
	}

	// Unsignal the fence only once submission is certain to re-signal it.
	if err := slot.InFlight.Reset(); err != nil {
		return asFatal(errors.Wrapf(err, "resetting slot %d fence", slot.Index))
	}

	if err := f.submit.Submit(slot); err != nil {
		return asFatal(errors.Wrapf(err, "submitting slot %d", slot.Index))
	}

	outcome, err := f.target.Present(token.ImageIndex, slot.RenderFinished)
	if err != nil {
		return asFatal(errors.Wrapf(err, "presenting image %d", token.ImageIndex))
	}

	f.pool.Advance()

	if outcome != Optimal {
		f.rebuildPending = true
	}
	if f.rebuildPending {
		if _, err := f.tryRebuild(); err != nil {
			return err
		}
	}
	return nil
}

// WaitIdle drains all queued GPU work. Safe to call repeatedly; the second
// and later calls during shutdown are no-ops.
func (f *Frames) WaitIdle() error {
	if f.idled {
		return nil
	}
	if err := f.idle(); err != nil {
		return asFatal(errors.Wrap(err, "waiting for device idle"))
	}
	f.idled = true
	return nil
}

// Destroy waits for the device to go idle and releases the slot pool.
// The swapchain passed to NewFrames is destroyed by its owner.
func (f *Frames) Destroy() {
	_ = f.WaitIdle()
	if f.ownsPool && f.pool != nil {
		f.pool.Destroy()
	}
}

// tryRebuild rebuilds the swapchain from the window's current framebuffer
// extent. A zero extent (minimized window) leaves the rebuild pending and
// reports rebuilt=false; rendering resumes once the window has a drawable
// area again.
func (f *Frames) tryRebuild() (bool, error) {
	extent := f.extent()
	if extent.Width == 0 || extent.Height == 0 {
		f.rebuildPending = true
		return false, nil
	}

	// Old swapchain resources may only be destroyed once the GPU work
	// referencing them is complete.
	if err := f.pool.WaitAll(); err != nil {
		return false, asFatal(err)
	}
	if err := f.idle(); err != nil {
		return false, asFatal(errors.Wrap(err, "waiting for device idle before swapchain rebuild"))
	}

	if err := f.target.Rebuild(extent); err != nil {
		return false, err
	}

	f.rebuildPending = false
	f.resetImageTracker(f.target.ImageCount())
	return true, nil
}

func (f *Frames) resetImageTracker(imageCount int) {
	f.imagesInFlight = make([]Fence, imageCount)
}
