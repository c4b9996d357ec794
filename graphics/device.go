// Package graphics owns the Vulkan device context shared by everything that
// renders: the instance, the window surface, the logical device, and the
// graphics and present queues.
package graphics

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/khr_portability_subset"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// DeviceConfig controls instance and device creation.
type DeviceConfig struct {
	// AppName is reported to the driver through VkApplicationInfo.
	AppName string

	// EnableValidation turns on the Khronos validation layer and a debug
	// messenger that forwards driver messages to the standard logger.
	// Creation fails if the layer is not installed.
	EnableValidation bool
}

// RenderDevice bundles the per-application Vulkan objects: one instance, one
// surface, one logical device, and the queues rendering and presentation
// run on. It is created once at startup and destroyed once at shutdown.
type RenderDevice struct {
	loader         core.Loader
	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surface        khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device

	graphicsQueue  core1_0.Queue
	presentQueue   core1_0.Queue
	graphicsFamily int
	presentFamily  int

	// teardown records destruction steps in construction order; Destroy
	// runs them in reverse.
	teardown []func()
}

// NewRenderDevice builds the full device context for a window created with
// sdl.WINDOW_VULKAN. On any failure everything constructed so far is torn
// back down.
func NewRenderDevice(window *sdl.Window, config DeviceConfig) (*RenderDevice, error) {
	r := &RenderDevice{}

	err := r.createInstance(window, config)
	if err == nil {
		err = r.createSurface(window)
	}
	if err == nil {
		err = r.createDevice()
	}
	if err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *RenderDevice) createInstance(window *sdl.Window, config DeviceConfig) error {
	loader, err := core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "loading vulkan entry points")
	}
	r.loader = loader

	appName := config.AppName
	if appName == "" {
		appName = "vulkan-starter"
	}

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    appName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "vulkan-starter",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := window.VulkanGetInstanceExtensions()
	extensions, _, err := loader.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerating instance extensions")
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("the window system requires instance extension %s, which is unavailable", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if config.EnableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	// Needed to run on top of MoltenVK and other portability drivers.
	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if config.EnableValidation {
		layers, _, err := loader.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerating instance layers")
		}
		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("validation layer %s is not installed", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Covers messages emitted during instance creation itself.
		instanceOptions.Next = debugMessengerOptions()
	}

	r.instance, _, err = loader.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "creating vulkan instance")
	}
	instance := r.instance
	r.teardown = append(r.teardown, func() { instance.Destroy(nil) })

	if config.EnableValidation {
		debugLoader := ext_debug_utils.CreateExtensionFromInstance(r.instance)
		r.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(r.instance, nil, debugMessengerOptions())
		if err != nil {
			return errors.Wrap(err, "creating debug messenger")
		}
		messenger := r.debugMessenger
		r.teardown = append(r.teardown, func() { messenger.Destroy(nil) })
	}

	return nil
}

func debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDriverMessage,
	}
}

func logDriverMessage(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	log.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

func (r *RenderDevice) createSurface(window *sdl.Window) error {
	surfaceLoader := khr_surface.CreateExtensionFromInstance(r.instance)

	surface, err := vkng_sdl2.CreateSurface(r.instance, surfaceLoader, window)
	if err != nil {
		return errors.Wrap(err, "creating window surface")
	}
	r.surface = surface
	r.teardown = append(r.teardown, func() { surface.Destroy(nil) })
	return nil
}

func (r *RenderDevice) createDevice() error {
	physicalDevices, _, err := r.instance.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerating physical devices")
	}

	for _, candidate := range physicalDevices {
		if r.isDeviceSuitable(candidate) {
			r.physicalDevice = candidate
			break
		}
	}
	if r.physicalDevice == nil {
		return errors.New("no gpu supports rendering and presentation on this surface")
	}

	graphicsFamily, presentFamily, err := r.findQueueFamilies(r.physicalDevice)
	if err != nil {
		return err
	}
	r.graphicsFamily = graphicsFamily
	r.presentFamily = presentFamily

	uniqueQueueFamilies := []int{graphicsFamily}
	if presentFamily != graphicsFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, presentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{1.0},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Required by portability drivers whenever the device advertises it.
	extensions, _, err := r.physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return errors.Wrap(err, "enumerating device extensions")
	}
	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	r.device, _, err = r.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "creating logical device")
	}
	device := r.device
	r.teardown = append(r.teardown, func() { device.Destroy(nil) })

	r.graphicsQueue = r.device.GetQueue(graphicsFamily, 0)
	r.presentQueue = r.device.GetQueue(presentFamily, 0)
	return nil
}

func (r *RenderDevice) isDeviceSuitable(device core1_0.PhysicalDevice) bool {
	if _, _, err := r.findQueueFamilies(device); err != nil {
		return false
	}

	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return false
	}
	for _, extension := range deviceExtensions {
		if _, hasExtension := extensions[extension]; !hasExtension {
			return false
		}
	}

	formats, _, err := r.surface.PhysicalDeviceSurfaceFormats(device)
	if err != nil || len(formats) == 0 {
		return false
	}
	presentModes, _, err := r.surface.PhysicalDeviceSurfacePresentModes(device)
	if err != nil || len(presentModes) == 0 {
		return false
	}

	return device.Features().SamplerAnisotropy
}

func (r *RenderDevice) findQueueFamilies(device core1_0.PhysicalDevice) (graphics, present int, err error) {
	queueFamilies := device.QueueFamilyProperties()

	flags := make([]core1_0.QueueFlags, len(queueFamilies))
	presentable := make([]bool, len(queueFamilies))
	for i, family := range queueFamilies {
		flags[i] = family.QueueFlags

		supported, _, err := r.surface.PhysicalDeviceSurfaceSupport(device, i)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "querying surface support for queue family %d", i)
		}
		presentable[i] = supported
	}

	graphics, present, ok := pickQueueFamilies(flags, presentable)
	if !ok {
		return 0, 0, errors.New("device has no graphics queue that can present to this surface")
	}
	return graphics, present, nil
}

// pickQueueFamilies selects a graphics family and a present family from the
// device's queue family table, preferring a single family that can do both
// so the swapchain can use exclusive sharing.
func pickQueueFamilies(flags []core1_0.QueueFlags, presentable []bool) (graphics, present int, ok bool) {
	graphics, present = -1, -1

	for i, familyFlags := range flags {
		isGraphics := familyFlags&core1_0.QueueGraphics != 0
		if isGraphics && presentable[i] {
			return i, i, true
		}
		if isGraphics && graphics < 0 {
			graphics = i
		}
		if presentable[i] && present < 0 {
			present = i
		}
	}

	return graphics, present, graphics >= 0 && present >= 0
}

// Device is the logical device all resources are created on.
func (r *RenderDevice) Device() core1_0.Device { return r.device }

// PhysicalDevice is the adapter the logical device was created from.
func (r *RenderDevice) PhysicalDevice() core1_0.PhysicalDevice { return r.physicalDevice }

// Surface is the window surface the swapchain presents to.
func (r *RenderDevice) Surface() khr_surface.Surface { return r.surface }

// GraphicsQueue accepts rendering command buffer submissions.
func (r *RenderDevice) GraphicsQueue() core1_0.Queue { return r.graphicsQueue }

// PresentQueue accepts swapchain present requests.
func (r *RenderDevice) PresentQueue() core1_0.Queue { return r.presentQueue }

// GraphicsFamily is the queue family index of the graphics queue.
func (r *RenderDevice) GraphicsFamily() int { return r.graphicsFamily }

// PresentFamily is the queue family index of the present queue.
func (r *RenderDevice) PresentFamily() int { return r.presentFamily }

// WaitIdle blocks until every queue on the device has drained. Safe to call
// any number of times, including on a device with no work queued.
func (r *RenderDevice) WaitIdle() error {
	if r.device == nil {
		return nil
	}
	if _, err := r.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for device idle")
	}
	return nil
}

// Destroy waits for the device to go idle and releases every owned object
// in reverse construction order.
func (r *RenderDevice) Destroy() {
	_ = r.WaitIdle()
	for i := len(r.teardown) - 1; i >= 0; i-- {
		r.teardown[i]()
	}
	r.teardown = nil
}
