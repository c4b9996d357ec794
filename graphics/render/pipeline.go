package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// Pipeline bundles a pipeline with the layout it was created against.
type Pipeline struct {
	Handle core1_0.Pipeline
	Layout core1_0.PipelineLayout
}

// GraphicsPipelineConfig describes a single-subpass graphics pipeline.
// Viewport and scissor are dynamic state, so pipelines survive swapchain
// rebuilds; set them per frame with BindAndSetViewport.
type GraphicsPipelineConfig struct {
	VertexShader   []byte
	FragmentShader []byte

	VertexBindings   []core1_0.VertexInputBindingDescription
	VertexAttributes []core1_0.VertexInputAttributeDescription
	Topology         core1_0.PrimitiveTopology

	SetLayouts         []core1_0.DescriptorSetLayout
	PushConstantRanges []core1_0.PushConstantRange

	RenderPass core1_0.RenderPass
	DepthTest  bool
	CullMode   core1_0.CullModeFlags

	// Samples must match the render pass color attachment; zero means 1.
	Samples core1_0.SampleCountFlags
}

// NewGraphicsPipeline compiles the shaders into a pipeline. The shader
// modules are destroyed before returning.
func NewGraphicsPipeline(device core1_0.Device, config GraphicsPipelineConfig) (*Pipeline, error) {
	vertShader, err := LoadShaderModule(device, config.VertexShader)
	if err != nil {
		return nil, errors.Wrap(err, "loading vertex shader")
	}
	defer vertShader.Destroy(nil)

	fragShader, err := LoadShaderModule(device, config.FragmentShader)
	if err != nil {
		return nil, errors.Wrap(err, "loading fragment shader")
	}
	defer fragShader.Destroy(nil)

	samples := config.Samples
	if samples == 0 {
		samples = core1_0.Samples1
	}

	layout, _, err := device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts:         config.SetLayouts,
		PushConstantRanges: config.PushConstantRanges,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating pipeline layout")
	}

	var depthStencil *core1_0.PipelineDepthStencilStateCreateInfo
	if config.DepthTest {
		depthStencil = &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  true,
			DepthWriteEnable: true,
			DepthCompareOp:   core1_0.CompareOpLess,
		}
	}

	pipelines, _, err := device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: vertShader,
					Name:   "main",
				},
				{
					Stage:  core1_0.StageFragment,
					Module: fragShader,
					Name:   "main",
				},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   config.VertexBindings,
				VertexAttributeDescriptions: config.VertexAttributes,
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               config.Topology,
				PrimitiveRestartEnable: false,
			},
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: make([]core1_0.Viewport, 1),
				Scissors:  make([]core1_0.Rect2D, 1),
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				DepthClampEnable:        false,
				RasterizerDiscardEnable: false,

				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    config.CullMode,
				FrontFace:   core1_0.FrontFaceCounterClockwise,

				DepthBiasEnable: false,

				LineWidth: 1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				SampleShadingEnable:  false,
				RasterizationSamples: samples,
				MinSampleShading:     1.0,
			},
			DepthStencilState: depthStencil,
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOpEnabled: false,
				LogicOp:        core1_0.LogicOpCopy,

				BlendConstants: [4]float32{0, 0, 0, 0},
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						BlendEnabled:   false,
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: []core1_0.DynamicState{
					core1_0.DynamicStateViewport,
					core1_0.DynamicStateScissor,
				},
			},
			Layout:            layout,
			RenderPass:        config.RenderPass,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		layout.Destroy(nil)
		return nil, errors.Wrap(err, "creating graphics pipeline")
	}

	return &Pipeline{Handle: pipelines[0], Layout: layout}, nil
}

// NewComputePipeline compiles a compute shader into a pipeline.
func NewComputePipeline(device core1_0.Device, shader []byte, setLayouts []core1_0.DescriptorSetLayout) (*Pipeline, error) {
	module, err := LoadShaderModule(device, shader)
	if err != nil {
		return nil, errors.Wrap(err, "loading compute shader")
	}
	defer module.Destroy(nil)

	layout, _, err := device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: setLayouts,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating compute pipeline layout")
	}

	pipelines, _, err := device.CreateComputePipelines(nil, nil, []core1_0.ComputePipelineCreateInfo{
		{
			Stage: core1_0.PipelineShaderStageCreateInfo{
				Stage:  core1_0.StageCompute,
				Module: module,
				Name:   "main",
			},
			Layout:            layout,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		layout.Destroy(nil)
		return nil, errors.Wrap(err, "creating compute pipeline")
	}

	return &Pipeline{Handle: pipelines[0], Layout: layout}, nil
}

// BindAndSetViewport binds the pipeline for graphics and sets the dynamic
// viewport and scissor to cover the full extent.
func (p *Pipeline) BindAndSetViewport(commands core1_0.CommandBuffer, extent core1_0.Extent2D) {
	commands.CmdBindPipeline(core1_0.PipelineBindPointGraphics, p.Handle)
	commands.CmdSetViewport([]core1_0.Viewport{
		{
			X:        0,
			Y:        0,
			Width:    float32(extent.Width),
			Height:   float32(extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		},
	})
	commands.CmdSetScissor([]core1_0.Rect2D{
		{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
	})
}

// Destroy releases the pipeline and its layout.
func (p *Pipeline) Destroy() {
	if p.Handle != nil {
		p.Handle.Destroy(nil)
		p.Handle = nil
	}
	if p.Layout != nil {
		p.Layout.Destroy(nil)
		p.Layout = nil
	}
}
