package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/Creative-Coding-The-Hard-Way/vulkan-starter/graphics/buffers"
	"github.com/Creative-Coding-The-Hard-Way/vulkan-starter/graphics/present"
)

// MultisampleDisplay renders into a multisampled color target and resolves
// it into the swapchain image at the end of the pass. Like ColorPass it
// keeps one framebuffer per swapchain image and recreates them on Refresh
// after a swapchain rebuild.
type MultisampleDisplay struct {
	device         core1_0.Device
	physicalDevice core1_0.PhysicalDevice
	swapchain      *present.Swapchain
	samples        core1_0.SampleCountFlags

	renderPass   core1_0.RenderPass
	colorTarget  *buffers.Image
	framebuffers []core1_0.Framebuffer
	generation   uint64
}

// NewMultisampleDisplay builds the resolve render pass and framebuffers.
// samples must be a single supported bit; use MaxSampleCount to pick one.
func NewMultisampleDisplay(
	device core1_0.Device,
	physicalDevice core1_0.PhysicalDevice,
	swapchain *present.Swapchain,
	samples core1_0.SampleCountFlags,
) (*MultisampleDisplay, error) {
	m := &MultisampleDisplay{
		device:         device,
		physicalDevice: physicalDevice,
		swapchain:      swapchain,
		samples:        samples,
	}

	if err := m.buildRenderPass(); err != nil {
		m.Destroy()
		return nil, err
	}
	if err := m.buildFramebuffers(); err != nil {
		m.Destroy()
		return nil, err
	}
	return m, nil
}

func (m *MultisampleDisplay) buildRenderPass() error {
	renderPass, _, err := m.device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         m.swapchain.Format(),
				Samples:        m.samples,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
			},
			{
				Format:         m.swapchain.Format(),
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpDontCare,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				ResolveAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 1,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating multisample render pass")
	}
	m.renderPass = renderPass
	return nil
}

func (m *MultisampleDisplay) buildFramebuffers() error {
	extent := m.swapchain.Extent()

	colorTarget, err := buffers.NewImage(m.device, m.physicalDevice, buffers.ImageConfig{
		Width:   extent.Width,
		Height:  extent.Height,
		Format:  m.swapchain.Format(),
		Usage:   core1_0.ImageUsageTransientAttachment | core1_0.ImageUsageColorAttachment,
		Aspect:  core1_0.ImageAspectColor,
		Samples: m.samples,
	})
	if err != nil {
		return err
	}
	m.colorTarget = colorTarget

	for _, imageView := range m.swapchain.Views() {
		framebuffer, _, err := m.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass: m.renderPass,
			Layers:     1,
			Attachments: []core1_0.ImageView{
				m.colorTarget.View,
				imageView,
			},
			Width:  extent.Width,
			Height: extent.Height,
		})
		if err != nil {
			return errors.Wrap(err, "creating multisample framebuffer")
		}
		m.framebuffers = append(m.framebuffers, framebuffer)
	}

	m.generation = m.swapchain.Generation()
	return nil
}

// Refresh recreates the color target and framebuffers if the swapchain was
// rebuilt since the last call.
func (m *MultisampleDisplay) Refresh() error {
	if m.generation == m.swapchain.Generation() {
		return nil
	}

	m.destroyFramebuffers()
	return m.buildFramebuffers()
}

// Begin starts the resolve pass on the framebuffer for imageIndex.
func (m *MultisampleDisplay) Begin(commands core1_0.CommandBuffer, imageIndex int, clearColor core1_0.ClearValueFloat) error {
	return commands.CmdBeginRenderPass(core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  m.renderPass,
			Framebuffer: m.framebuffers[imageIndex],
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: m.swapchain.Extent(),
			},
			ClearValues: []core1_0.ClearValue{clearColor},
		})
}

// End closes the resolve pass.
func (m *MultisampleDisplay) End(commands core1_0.CommandBuffer) {
	commands.CmdEndRenderPass()
}

// RenderPass is the pass pipelines are created against.
func (m *MultisampleDisplay) RenderPass() core1_0.RenderPass { return m.renderPass }

// Samples is the sample count pipelines must use for rasterization.
func (m *MultisampleDisplay) Samples() core1_0.SampleCountFlags { return m.samples }

// Extent is the current framebuffer extent.
func (m *MultisampleDisplay) Extent() core1_0.Extent2D { return m.swapchain.Extent() }

func (m *MultisampleDisplay) destroyFramebuffers() {
	for _, framebuffer := range m.framebuffers {
		framebuffer.Destroy(nil)
	}
	m.framebuffers = nil

	if m.colorTarget != nil {
		m.colorTarget.Destroy()
		m.colorTarget = nil
	}
}

// Destroy releases everything. The device must be idle.
func (m *MultisampleDisplay) Destroy() {
	m.destroyFramebuffers()
	if m.renderPass != nil {
		m.renderPass.Destroy(nil)
		m.renderPass = nil
	}
}

// MaxSampleCount picks the highest sample count the device supports for
// both color and depth framebuffer attachments.
func MaxSampleCount(physicalDevice core1_0.PhysicalDevice) (core1_0.SampleCountFlags, error) {
	properties, err := physicalDevice.Properties()
	if err != nil {
		return core1_0.Samples1, errors.Wrap(err, "querying device properties")
	}

	counts := properties.Limits.FramebufferColorSampleCounts & properties.Limits.FramebufferDepthSampleCounts
	return highestSampleBit(counts), nil
}

func highestSampleBit(counts core1_0.SampleCountFlags) core1_0.SampleCountFlags {
	ordered := []core1_0.SampleCountFlags{
		core1_0.Samples64,
		core1_0.Samples32,
		core1_0.Samples16,
		core1_0.Samples8,
		core1_0.Samples4,
		core1_0.Samples2,
	}
	for _, count := range ordered {
		if counts&count != 0 {
			return count
		}
	}
	return core1_0.Samples1
}
