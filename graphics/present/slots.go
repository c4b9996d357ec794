package present

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
)

// Fence is the CPU-observable synchronization primitive a frame slot blocks
// on. It exists as a seam so the frame lifecycle can be tested without a
// device; production slots use the device fence below.
type Fence interface {
	Wait() error
	Reset() error
	Destroy()
}

// Slot owns the per-frame resources for one in-flight frame: a primary
// command buffer plus the semaphores and fence that order its submission.
// Slots are independent of the swapchain image count and never need to be
// rebuilt on resize.
type Slot struct {
	Index          int
	Commands       core1_0.CommandBuffer
	ImageAvailable core1_0.Semaphore
	RenderFinished core1_0.Semaphore
	InFlight       Fence
}

// SlotPool is a fixed ring of frame slots. The pool owns one command pool;
// each slot gets a primary buffer allocated from it.
type SlotPool struct {
	device      core1_0.Device
	commandPool core1_0.CommandPool
	slots       []*Slot
	current     int

	// teardown records destruction steps in construction order; Destroy
	// runs them in reverse.
	teardown []func()
}

// NewSlotPool creates count frame slots on the given device. Fences are
// created signaled so the first wait in BeginFrame is a no-op. count must
// be at least 2 for the fence wait to overlap CPU recording with GPU work.
func NewSlotPool(device core1_0.Device, graphicsFamily int, count int) (*SlotPool, error) {
	if count < 2 {
		return nil, errors.Newf("frame slot count must be at least 2, got %d", count)
	}

	pool := &SlotPool{device: device}

	commandPool, res, err := device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: graphicsFamily,
	})
	if err != nil {
		return nil, classifyResult(res, errors.Wrap(err, "creating frame command pool"))
	}
	pool.commandPool = commandPool
	pool.teardown = append(pool.teardown, func() { commandPool.Destroy(nil) })

	buffers, res, err := device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		pool.Destroy()
		return nil, classifyResult(res, errors.Wrap(err, "allocating frame command buffers"))
	}
	pool.teardown = append(pool.teardown, func() { device.FreeCommandBuffers(buffers) })

	for i := 0; i < count; i++ {
		slot := &Slot{Index: i, Commands: buffers[i]}

		slot.ImageAvailable, res, err = device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			pool.Destroy()
			return nil, classifyResult(res, errors.Wrapf(err, "creating image-available semaphore for slot %d", i))
		}
		imageAvailable := slot.ImageAvailable
		pool.teardown = append(pool.teardown, func() { imageAvailable.Destroy(nil) })

		slot.RenderFinished, res, err = device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			pool.Destroy()
			return nil, classifyResult(res, errors.Wrapf(err, "creating render-finished semaphore for slot %d", i))
		}
		renderFinished := slot.RenderFinished
		pool.teardown = append(pool.teardown, func() { renderFinished.Destroy(nil) })

		fence, res, err := device.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			pool.Destroy()
			return nil, classifyResult(res, errors.Wrapf(err, "creating in-flight fence for slot %d", i))
		}
		slot.InFlight = &deviceFence{device: device, fence: fence}
		pool.teardown = append(pool.teardown, func() { fence.Destroy(nil) })

		pool.slots = append(pool.slots, slot)
	}

	return pool, nil
}

// Count is the number of in-flight frames the pool supports.
func (p *SlotPool) Count() int {
	return len(p.slots)
}

// Slot returns the slot at the given index.
func (p *SlotPool) Slot(index int) *Slot {
	return p.slots[index]
}

// Current is the slot the next frame will record into.
func (p *SlotPool) Current() *Slot {
	return p.slots[p.current]
}

// Advance moves the ring to the next slot. Called once per presented frame.
func (p *SlotPool) Advance() {
	p.current = (p.current + 1) % len(p.slots)
}

// WaitAll blocks until every slot's in-flight fence is signaled.
func (p *SlotPool) WaitAll() error {
	for _, slot := range p.slots {
		if err := slot.InFlight.Wait(); err != nil {
			return errors.Wrapf(err, "waiting for slot %d to complete", slot.Index)
		}
	}
	return nil
}

// Destroy releases every slot resource in reverse construction order. The
// device must be idle.
func (p *SlotPool) Destroy() {
	for i := len(p.teardown) - 1; i >= 0; i-- {
		p.teardown[i]()
	}
	p.teardown = nil
	p.slots = nil
}

// deviceFence adapts a core1_0.Fence to the Fence seam.
type deviceFence struct {
	device core1_0.Device
	fence  core1_0.Fence
}

func (f *deviceFence) Wait() error {
	_, err := f.device.WaitForFences(true, common.NoTimeout, []core1_0.Fence{f.fence})
	return err
}

func (f *deviceFence) Reset() error {
	_, err := f.device.ResetFences([]core1_0.Fence{f.fence})
	return err
}

func (f *deviceFence) Destroy() {
	f.fence.Destroy(nil)
}
