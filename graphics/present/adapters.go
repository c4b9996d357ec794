package present

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"
)

// swapchainTarget adapts a Swapchain and present queue to the Target seam.
type swapchainTarget struct {
	swapchain    *Swapchain
	presentQueue core1_0.Queue
}

func (t *swapchainTarget) Acquire(imageAvailable core1_0.Semaphore) (int, Outcome, error) {
	imageIndex, res, err := t.swapchain.Handle().AcquireNextImage(common.NoTimeout, imageAvailable, nil)

	// Out-of-date surfaces as an error code; suboptimal is a success code.
	// Both mean the swapchain should be rebuilt.
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return 0, OutOfDate, nil
	case khr_swapchain.VKSuboptimal:
		return imageIndex, Suboptimal, nil
	}
	if err != nil {
		return 0, Optimal, classifyResult(res, errors.Wrap(err, "acquiring next swapchain image"))
	}
	return imageIndex, Optimal, nil
}

func (t *swapchainTarget) Present(imageIndex int, renderFinished core1_0.Semaphore) (Outcome, error) {
	res, err := t.swapchain.extension.QueuePresent(t.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{renderFinished},
		Swapchains:     []khr_swapchain.Swapchain{t.swapchain.Handle()},
		ImageIndices:   []int{imageIndex},
	})
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return OutOfDate, nil
	case khr_swapchain.VKSuboptimal:
		return Suboptimal, nil
	}
	if err != nil {
		return Optimal, classifyResult(res, errors.Wrap(err, "presenting swapchain image"))
	}
	return Optimal, nil
}

func (t *swapchainTarget) Rebuild(extent core1_0.Extent2D) error {
	return t.swapchain.Rebuild(extent)
}

func (t *swapchainTarget) ImageCount() int {
	return t.swapchain.ImageCount()
}

// queueSubmitter adapts a graphics queue to the Submitter seam.
type queueSubmitter struct {
	queue core1_0.Queue
}

func (s *queueSubmitter) Submit(slot *Slot) error {
	fence, ok := slot.InFlight.(*deviceFence)
	if !ok {
		return errors.New("slot fence is not a device fence")
	}

	_, err := s.queue.Submit(fence.fence, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{slot.ImageAvailable},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{slot.Commands},
			SignalSemaphores: []core1_0.Semaphore{slot.RenderFinished},
		},
	})
	return err
}
