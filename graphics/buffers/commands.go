package buffers

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// Runner submits short one-off command buffers, like staging copies and
// layout transitions, and blocks until they complete.
type Runner struct {
	device core1_0.Device
	queue  core1_0.Queue
	pool   core1_0.CommandPool
}

// NewRunner creates a transient command pool on the given queue family.
func NewRunner(device core1_0.Device, queue core1_0.Queue, queueFamily int) (*Runner, error) {
	pool, _, err := device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateTransient,
		QueueFamilyIndex: queueFamily,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating transient command pool")
	}
	return &Runner{device: device, queue: queue, pool: pool}, nil
}

// Run records commands through the callback, submits them, and waits for
// the queue to drain.
func (r *Runner) Run(record func(core1_0.CommandBuffer) error) error {
	commandBuffers, _, err := r.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        r.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "allocating single-time command buffer")
	}
	buffer := commandBuffers[0]
	defer r.device.FreeCommandBuffers(commandBuffers)

	_, err = buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "beginning single-time command buffer")
	}

	if err := record(buffer); err != nil {
		return err
	}

	if _, err := buffer.End(); err != nil {
		return errors.Wrap(err, "ending single-time command buffer")
	}

	_, err = r.queue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	})
	if err != nil {
		return errors.Wrap(err, "submitting single-time commands")
	}

	if _, err := r.queue.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for single-time commands")
	}
	return nil
}

// Upload copies data into a device-local buffer through a temporary staging
// buffer.
func (r *Runner) Upload(physicalDevice core1_0.PhysicalDevice, dst *Buffer, data any) error {
	staging, err := NewBuffer(r.device, physicalDevice, dst.Size,
		core1_0.BufferUsageTransferSrc,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return err
	}
	defer staging.Destroy()

	if err := staging.Write(0, data); err != nil {
		return err
	}

	return r.Run(func(commands core1_0.CommandBuffer) error {
		return commands.CmdCopyBuffer(staging.Handle, dst.Handle, []core1_0.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: dst.Size},
		})
	})
}

// UploadToImage copies tightly-packed pixel data into an image, handling
// the undefined -> transfer-dst -> shader-read layout transitions.
func (r *Runner) UploadToImage(physicalDevice core1_0.PhysicalDevice, dst *Image, pixels any, size int) error {
	staging, err := NewBuffer(r.device, physicalDevice, size,
		core1_0.BufferUsageTransferSrc,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return err
	}
	defer staging.Destroy()

	if err := staging.Write(0, pixels); err != nil {
		return err
	}

	err = r.TransitionLayout(dst.Handle, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
	if err != nil {
		return err
	}

	err = r.Run(func(commands core1_0.CommandBuffer) error {
		return commands.CmdCopyBufferToImage(staging.Handle, dst.Handle, core1_0.ImageLayoutTransferDstOptimal, []core1_0.BufferImageCopy{
			{
				BufferOffset:      0,
				BufferRowLength:   0,
				BufferImageHeight: 0,

				ImageSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       0,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
				ImageExtent: core1_0.Extent3D{Width: dst.Width, Height: dst.Height, Depth: 1},
			},
		})
	})
	if err != nil {
		return err
	}

	return r.TransitionLayout(dst.Handle, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
}

// TransitionLayout moves an image between the layout pairs the upload path
// needs.
func (r *Runner) TransitionLayout(image core1_0.Image, oldLayout, newLayout core1_0.ImageLayout) error {
	var sourceStage, destStage core1_0.PipelineStageFlags
	var sourceAccess, destAccess core1_0.AccessFlags

	if oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutTransferDstOptimal {
		sourceAccess = 0
		destAccess = core1_0.AccessTransferWrite
		sourceStage = core1_0.PipelineStageTopOfPipe
		destStage = core1_0.PipelineStageTransfer
	} else if oldLayout == core1_0.ImageLayoutTransferDstOptimal && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal {
		sourceAccess = core1_0.AccessTransferWrite
		destAccess = core1_0.AccessShaderRead
		sourceStage = core1_0.PipelineStageTransfer
		destStage = core1_0.PipelineStageFragmentShader
	} else {
		return errors.Newf("unexpected layout transition: %s -> %s", oldLayout, newLayout)
	}

	return r.Run(func(commands core1_0.CommandBuffer) error {
		return commands.CmdPipelineBarrier(sourceStage, destStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
			{
				OldLayout:           oldLayout,
				NewLayout:           newLayout,
				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,
				Image:               image,
				SubresourceRange: core1_0.ImageSubresourceRange{
					AspectMask:     core1_0.ImageAspectColor,
					BaseMipLevel:   0,
					LevelCount:     1,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				SrcAccessMask: sourceAccess,
				DstAccessMask: destAccess,
			},
		})
	})
}

// Destroy releases the transient command pool.
func (r *Runner) Destroy() {
	if r.pool != nil {
		r.pool.Destroy(nil)
		r.pool = nil
	}
}
