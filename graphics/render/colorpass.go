// Package render provides the render pass and framebuffer plumbing the
// example programs share: a single-subpass color pass with an optional
// depth attachment, and a multisampled variant that resolves into the
// swapchain.
package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/Creative-Coding-The-Hard-Way/vulkan-starter/graphics/buffers"
	"github.com/Creative-Coding-The-Hard-Way/vulkan-starter/graphics/present"
)

// ColorPass owns a render pass that clears and draws into the swapchain,
// plus one framebuffer per swapchain image. Refresh recreates the
// framebuffers after a swapchain rebuild; the render pass itself is stable
// because rebuilt swapchains keep their surface format, so pipelines remain
// valid across resizes.
type ColorPass struct {
	device         core1_0.Device
	physicalDevice core1_0.PhysicalDevice
	swapchain      *present.Swapchain
	depthEnabled   bool

	renderPass   core1_0.RenderPass
	framebuffers []core1_0.Framebuffer
	depth        *buffers.Image
	depthFormat  core1_0.Format

	// generation tracks which swapchain build the framebuffers belong to.
	generation uint64
}

// NewColorPass builds the render pass and the framebuffers for the
// swapchain's current images.
func NewColorPass(
	device core1_0.Device,
	physicalDevice core1_0.PhysicalDevice,
	swapchain *present.Swapchain,
	depthEnabled bool,
) (*ColorPass, error) {
	cp := &ColorPass{
		device:         device,
		physicalDevice: physicalDevice,
		swapchain:      swapchain,
		depthEnabled:   depthEnabled,
	}

	if depthEnabled {
		depthFormat, err := FindDepthFormat(physicalDevice)
		if err != nil {
			cp.Destroy()
			return nil, err
		}
		cp.depthFormat = depthFormat
	}

	if err := cp.buildRenderPass(); err != nil {
		cp.Destroy()
		return nil, err
	}
	if err := cp.buildFramebuffers(); err != nil {
		cp.Destroy()
		return nil, err
	}
	return cp, nil
}

func (cp *ColorPass) buildRenderPass() error {
	attachments := []core1_0.AttachmentDescription{
		{
			Format:         cp.swapchain.Format(),
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
		},
	}

	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		ColorAttachments: []core1_0.AttachmentReference{
			{
				Attachment: 0,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
	}

	dependency := core1_0.SubpassDependency{
		SrcSubpass: core1_0.SubpassExternal,
		DstSubpass: 0,

		SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
		SrcAccessMask: 0,

		DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
		DstAccessMask: core1_0.AccessColorAttachmentWrite,
	}

	if cp.depthEnabled {
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         cp.depthFormat,
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpDontCare,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
		dependency.SrcStageMask |= core1_0.PipelineStageEarlyFragmentTests
		dependency.DstStageMask |= core1_0.PipelineStageEarlyFragmentTests
		dependency.DstAccessMask |= core1_0.AccessDepthStencilAttachmentWrite
	}

	renderPass, _, err := cp.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments:         attachments,
		Subpasses:           []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{dependency},
	})
	if err != nil {
		return errors.Wrap(err, "creating render pass")
	}
	cp.renderPass = renderPass
	return nil
}

func (cp *ColorPass) buildFramebuffers() error {
	extent := cp.swapchain.Extent()

	if cp.depthEnabled {
		depth, err := buffers.NewImage(cp.device, cp.physicalDevice, buffers.ImageConfig{
			Width:  extent.Width,
			Height: extent.Height,
			Format: cp.depthFormat,
			Usage:  core1_0.ImageUsageDepthStencilAttachment,
			Aspect: core1_0.ImageAspectDepth,
		})
		if err != nil {
			return err
		}
		cp.depth = depth
	}

	for _, imageView := range cp.swapchain.Views() {
		attachments := []core1_0.ImageView{imageView}
		if cp.depthEnabled {
			attachments = append(attachments, cp.depth.View)
		}

		framebuffer, _, err := cp.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  cp.renderPass,
			Layers:      1,
			Attachments: attachments,
			Width:       extent.Width,
			Height:      extent.Height,
		})
		if err != nil {
			return errors.Wrap(err, "creating swapchain framebuffer")
		}
		cp.framebuffers = append(cp.framebuffers, framebuffer)
	}

	cp.generation = cp.swapchain.Generation()
	return nil
}

// Refresh recreates the framebuffers if the swapchain was rebuilt since the
// last call. Call it every frame before Begin; it is a no-op when nothing
// changed. The device must be idle when a rebuild actually happens, which
// the frame lifecycle guarantees.
func (cp *ColorPass) Refresh() error {
	if cp.generation == cp.swapchain.Generation() {
		return nil
	}

	cp.destroyFramebuffers()
	return cp.buildFramebuffers()
}

// Begin starts the render pass on the framebuffer for imageIndex, clearing
// the color attachment to clearColor and the depth attachment, when
// present, to 1.0.
func (cp *ColorPass) Begin(commands core1_0.CommandBuffer, imageIndex int, clearColor core1_0.ClearValueFloat) error {
	clearValues := []core1_0.ClearValue{clearColor}
	if cp.depthEnabled {
		clearValues = append(clearValues, core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0})
	}

	return commands.CmdBeginRenderPass(core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  cp.renderPass,
			Framebuffer: cp.framebuffers[imageIndex],
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: cp.swapchain.Extent(),
			},
			ClearValues: clearValues,
		})
}

// End closes the render pass.
func (cp *ColorPass) End(commands core1_0.CommandBuffer) {
	commands.CmdEndRenderPass()
}

// RenderPass is the pass pipelines are created against.
func (cp *ColorPass) RenderPass() core1_0.RenderPass { return cp.renderPass }

// Extent is the current framebuffer extent.
func (cp *ColorPass) Extent() core1_0.Extent2D { return cp.swapchain.Extent() }

// DepthFormat is the depth attachment format, or zero when depth is off.
func (cp *ColorPass) DepthFormat() core1_0.Format { return cp.depthFormat }

func (cp *ColorPass) destroyFramebuffers() {
	for _, framebuffer := range cp.framebuffers {
		framebuffer.Destroy(nil)
	}
	cp.framebuffers = nil

	if cp.depth != nil {
		cp.depth.Destroy()
		cp.depth = nil
	}
}

// Destroy releases the framebuffers, depth resources, and render pass. The
// device must be idle.
func (cp *ColorPass) Destroy() {
	cp.destroyFramebuffers()
	if cp.renderPass != nil {
		cp.renderPass.Destroy(nil)
		cp.renderPass = nil
	}
}

// FindDepthFormat picks the first depth format the device supports as an
// optimal-tiling depth attachment.
func FindDepthFormat(physicalDevice core1_0.PhysicalDevice) (core1_0.Format, error) {
	return findSupportedFormat(physicalDevice,
		[]core1_0.Format{
			core1_0.FormatD32SignedFloat,
			core1_0.FormatD32SignedFloatS8UnsignedInt,
			core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
		},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
}

func findSupportedFormat(physicalDevice core1_0.PhysicalDevice, formats []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range formats {
		props := physicalDevice.FormatProperties(format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format, nil
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format, nil
		}
	}

	return 0, errors.Newf("no supported format for tiling %s, featureset %s", tiling, features)
}
