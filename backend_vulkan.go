package vkframe

import (
	"fmt"
	"log"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// VulkanBackend implements Backend against a real Vulkan device, grounded
// on the teacher's platform/instance/swapchain/managers lineage
// (platform.go's NewPlatform, instance.go's CoreRenderInstance.Update,
// managers.go's CommandBufferManager). Binary vk.Semaphore objects are
// not host-waitable, so every SemaphoreHandle this backend creates is
// backed by a semaphore (for GPU-side submit ordering) paired with a
// fence (for WaitSemaphore's host-side wait), the same pairing the
// teacher uses between sem_swapchain_image_acquired and fence_swapchain.
type VulkanBackend struct {
	log *log.Logger

	instance vk.Instance
	gpu      vk.PhysicalDevice
	device   vk.Device
	surface  vk.Surface

	families []QueueFamilyInfo
	queues   [][]vk.Queue // per family, per queue index

	pools   map[uint64]vk.CommandPool
	buffers map[uint64]bufferEntry
	sems    map[uint64]semEntry
	nextID  uint64

	swapchain   vk.Swapchain
	images      []vk.Image
	imageViews  []vk.ImageView
	imageExtent vk.Extent2D
	format      vk.Format

	mu sync.Mutex
}

type bufferEntry struct {
	pool uint64
	cb   vk.CommandBuffer
}

type semEntry struct {
	sem   vk.Semaphore
	fence vk.Fence
}

// VulkanConfig configures NewVulkanBackend. Window is used only for
// NEW_WINDOW/EXISTING_WINDOW presentation, to create the vk.Surface.
type VulkanConfig struct {
	AppName           string
	EnableValidation  bool
	PresentationWidth int
	PresentationHeight int
	Window            *glfwWindow
}

// NewVulkanBackend creates an instance, selects a physical device, opens
// a logical device exposing every queue family the hardware reports, and
// (if cfg.Window is set) creates a swap chain bound to that window's
// surface.
func NewVulkanBackend(cfg VulkanConfig, logger *log.Logger) (*VulkanBackend, error) {
	if logger == nil {
		logger = log.Default()
	}
	b := &VulkanBackend{
		log:     logger,
		pools:   make(map[uint64]vk.CommandPool),
		buffers: make(map[uint64]bufferEntry),
		sems:    make(map[uint64]semEntry),
	}

	appName := cfg.AppName
	if appName == "" {
		appName = "vkframe"
	}

	instanceExtensions, err := requiredInstanceExtensions()
	if err != nil {
		return nil, &BackendError{Op: "InstanceExtensions", Err: err}
	}
	var layers []string
	if cfg.EnableValidation {
		layers = []string{"VK_LAYER_KHRONOS_validation"}
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeCString(appName),
			PEngineName:        safeCString("vkframe"),
		},
		EnabledExtensionCount:   uint32(len(instanceExtensions)),
		PpEnabledExtensionNames: instanceExtensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &instance)
	if isVkError(ret) {
		return nil, &BackendError{Op: "CreateInstance", Err: vkError(ret)}
	}
	b.instance = instance
	vk.InitInstance(instance)

	if cfg.Window != nil {
		surface, err := cfg.Window.CreateSurface(instance)
		if err != nil {
			return nil, err
		}
		b.surface = vk.SurfaceFromPointer(surface)
	}

	if err := b.selectPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := b.enumerateQueueFamilies(); err != nil {
		return nil, err
	}
	if err := b.createLogicalDevice(); err != nil {
		return nil, err
	}
	if b.surface != vk.NullSurface {
		if err := b.createSwapchain(cfg.PresentationWidth, cfg.PresentationHeight); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *VulkanBackend) selectPhysicalDevice() error {
	var count uint32
	ret := vk.EnumeratePhysicalDevices(b.instance, &count, nil)
	if isVkError(ret) || count == 0 {
		return &ConfigurationError{Reason: "no Vulkan-capable GPU found"}
	}
	gpus := make([]vk.PhysicalDevice, count)
	ret = vk.EnumeratePhysicalDevices(b.instance, &count, gpus)
	if isVkError(ret) {
		return &BackendError{Op: "EnumeratePhysicalDevices", Err: vkError(ret)}
	}
	b.gpu = gpus[0]
	return nil
}

func (b *VulkanBackend) enumerateQueueFamilies() error {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(b.gpu, &count, nil)
	if count == 0 {
		return &ConfigurationError{Reason: "GPU exposes no queue families"}
	}
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(b.gpu, &count, props)

	b.families = make([]QueueFamilyInfo, count)
	for i := range props {
		props[i].Deref()
		flags := props[i].QueueFlags
		var caps EngineType
		if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 {
			caps |= EngineTransfer
		}
		if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			caps |= EngineCompute
		}
		if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			caps |= EngineGraphics
		}
		presentCapable := false
		if b.surface != vk.NullSurface {
			var supportsPresent vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(b.gpu, uint32(i), b.surface, &supportsPresent)
			presentCapable = supportsPresent.B()
		}

		b.families[i] = QueueFamilyInfo{
			Index:          i,
			Capabilities:   caps,
			QueueCount:     int(props[i].QueueCount),
			PresentCapable: presentCapable,
		}
	}
	return nil
}

func (b *VulkanBackend) createLogicalDevice() error {
	priorities := []float32{1.0}
	infos := make([]vk.DeviceQueueCreateInfo, len(b.families))
	for i, fam := range b.families {
		n := fam.QueueCount
		if n < 1 {
			n = 1
		}
		p := priorities
		for len(p) < n {
			p = append(p, 1.0)
		}
		infos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(i),
			QueueCount:       uint32(n),
			PQueuePriorities: p,
		}
	}

	var deviceExtensions []string
	if b.surface != vk.NullSurface {
		deviceExtensions = []string{"VK_KHR_swapchain"}
	}

	var device vk.Device
	ret := vk.CreateDevice(b.gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(infos)),
		PQueueCreateInfos:       infos,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
	}, nil, &device)
	if isVkError(ret) {
		return &BackendError{Op: "CreateDevice", Err: vkError(ret)}
	}
	b.device = device

	b.queues = make([][]vk.Queue, len(b.families))
	for i, fam := range b.families {
		n := fam.QueueCount
		if n < 1 {
			n = 1
		}
		b.queues[i] = make([]vk.Queue, n)
		for q := 0; q < n; q++ {
			var queue vk.Queue
			vk.GetDeviceQueue(b.device, uint32(i), uint32(q), &queue)
			b.queues[i][q] = queue
		}
	}
	return nil
}

func (b *VulkanBackend) createSwapchain(width, height int) error {
	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(b.gpu, b.surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(b.gpu, b.surface, &formatCount, formats)
	format := vk.FormatB8g8r8a8Unorm
	colorSpace := vk.ColorSpaceSrgbNonlinear
	if formatCount > 0 {
		formats[0].Deref()
		format = formats[0].Format
		colorSpace = formats[0].ColorSpace
	}
	b.format = format
	b.imageExtent = vk.Extent2D{Width: uint32(width), Height: uint32(height)}

	var swapchain vk.Swapchain
	ret := vk.CreateSwapchain(b.device, &vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         b.surface,
		MinImageCount:   2,
		ImageFormat:     format,
		ImageColorSpace: colorSpace,
		ImageExtent:     b.imageExtent,
		ImageArrayLayers: 1,
		ImageUsage:      vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:    vk.SurfaceTransformIdentityBit,
		CompositeAlpha:  vk.CompositeAlphaOpaqueBit,
		PresentMode:     vk.PresentModeFifo,
		Clipped:         vk.True,
	}, nil, &swapchain)
	if isVkError(ret) {
		return &BackendError{Op: "CreateSwapchain", Err: vkError(ret)}
	}
	b.swapchain = swapchain

	var imageCount uint32
	vk.GetSwapchainImages(b.device, b.swapchain, &imageCount, nil)
	b.images = make([]vk.Image, imageCount)
	vk.GetSwapchainImages(b.device, b.swapchain, &imageCount, b.images)

	b.imageViews = make([]vk.ImageView, imageCount)
	for i, img := range b.images {
		var view vk.ImageView
		ret := vk.CreateImageView(b.device, &vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}, nil, &view)
		if isVkError(ret) {
			return &BackendError{Op: "CreateImageView", Err: vkError(ret)}
		}
		b.imageViews[i] = view
	}
	return nil
}

// --- Backend interface ---

func (b *VulkanBackend) QueueFamilies() []QueueFamilyInfo { return b.families }

func (b *VulkanBackend) Queue(familyIndex, queueIndex int) QueueHandle {
	n := len(b.queues[familyIndex])
	return QueueHandle{id: encodeQueue(familyIndex, queueIndex%n)}
}

func (b *VulkanBackend) nativeQueue(h QueueHandle) vk.Queue {
	fam, idx := decodeQueue(h.id)
	return b.queues[fam][idx]
}

func (b *VulkanBackend) CreateCommandPool(familyIndex int) (PoolHandle, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(b.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(familyIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)
	if isVkError(ret) {
		return PoolHandle{}, vkError(ret)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.pools[id] = pool
	return PoolHandle{id: id}, nil
}

func (b *VulkanBackend) DestroyCommandPool(pool PoolHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if native, ok := b.pools[pool.id]; ok {
		vk.DestroyCommandPool(b.device, native, nil)
		delete(b.pools, pool.id)
	}
}

func (b *VulkanBackend) AllocateCommandBuffer(pool PoolHandle) (CommandBufferHandle, error) {
	b.mu.Lock()
	native, ok := b.pools[pool.id]
	b.mu.Unlock()
	if !ok {
		return CommandBufferHandle{}, fmt.Errorf("unknown command pool %d", pool.id)
	}
	buffers := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(b.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        native,
		Level:               vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, buffers)
	if isVkError(ret) {
		return CommandBufferHandle{}, vkError(ret)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.buffers[id] = bufferEntry{pool: pool.id, cb: buffers[0]}
	return CommandBufferHandle{id: id}, nil
}

func (b *VulkanBackend) native(cb CommandBufferHandle) vk.CommandBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffers[cb.id].cb
}

func (b *VulkanBackend) BeginCommandBuffer(cb CommandBufferHandle) error {
	ret := vk.BeginCommandBuffer(b.native(cb), &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	})
	if isVkError(ret) {
		return vkError(ret)
	}
	return nil
}

func (b *VulkanBackend) EndCommandBuffer(cb CommandBufferHandle) error {
	ret := vk.EndCommandBuffer(b.native(cb))
	if isVkError(ret) {
		return vkError(ret)
	}
	return nil
}

func (b *VulkanBackend) ResetCommandBuffer(cb CommandBufferHandle) error {
	ret := vk.ResetCommandBuffer(b.native(cb), vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit))
	if isVkError(ret) {
		return vkError(ret)
	}
	return nil
}

func (b *VulkanBackend) ClearColor(cb CommandBufferHandle, target RenderTargetHandle, rgba [4]float32) error {
	b.mu.Lock()
	img := b.images[target.Index]
	b.mu.Unlock()

	vk.CmdClearColorImage(b.native(cb), img, vk.ImageLayoutGeneral,
		&vk.ClearColorValue{Float32: rgba},
		1, []vk.ImageSubresourceRange{{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		}})
	return nil
}

func (b *VulkanBackend) CreateSemaphore() (SemaphoreHandle, error) {
	var sem vk.Semaphore
	ret := vk.CreateSemaphore(b.device, &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}, nil, &sem)
	if isVkError(ret) {
		return SemaphoreHandle{}, vkError(ret)
	}
	var fence vk.Fence
	ret = vk.CreateFence(b.device, &vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}, nil, &fence)
	if isVkError(ret) {
		return SemaphoreHandle{}, vkError(ret)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.sems[id] = semEntry{sem: sem, fence: fence}
	return SemaphoreHandle{id: id}, nil
}

func (b *VulkanBackend) DestroySemaphore(h SemaphoreHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.sems[h.id]; ok {
		vk.DestroySemaphore(b.device, e.sem, nil)
		vk.DestroyFence(b.device, e.fence, nil)
		delete(b.sems, h.id)
	}
}

func (b *VulkanBackend) WaitSemaphore(h SemaphoreHandle) error {
	b.mu.Lock()
	e, ok := b.sems[h.id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown semaphore %d", h.id)
	}
	ret := vk.WaitForFences(b.device, 1, []vk.Fence{e.fence}, vk.True, vk.MaxUint64)
	if isVkError(ret) {
		return vkError(ret)
	}
	return nil
}

func (b *VulkanBackend) Submit(queue QueueHandle, cbs []CommandBufferHandle, waits []SemaphoreHandle, signal *SemaphoreHandle) error {
	nativeCBs := make([]vk.CommandBuffer, len(cbs))
	for i, cb := range cbs {
		nativeCBs[i] = b.native(cb)
	}

	b.mu.Lock()
	waitSems := make([]vk.Semaphore, len(waits))
	waitStages := make([]vk.PipelineStageFlags, len(waits))
	for i, w := range waits {
		waitSems[i] = b.sems[w.id].sem
		waitStages[i] = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	var signalSems []vk.Semaphore
	var fence vk.Fence
	if signal != nil {
		e := b.sems[signal.id]
		signalSems = []vk.Semaphore{e.sem}
		fence = e.fence
		ret := vk.ResetFences(b.device, 1, []vk.Fence{fence})
		if isVkError(ret) {
			b.mu.Unlock()
			return vkError(ret)
		}
	}
	b.mu.Unlock()

	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSems)),
		PWaitSemaphores:      waitSems,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(nativeCBs)),
		PCommandBuffers:      nativeCBs,
		SignalSemaphoreCount: uint32(len(signalSems)),
		PSignalSemaphores:    signalSems,
	}
	ret := vk.QueueSubmit(b.nativeQueue(queue), 1, []vk.SubmitInfo{info}, fence)
	if isVkError(ret) {
		return vkError(ret)
	}
	return nil
}

func (b *VulkanBackend) AcquireNextImage(renderReady SemaphoreHandle) (RenderTargetHandle, error) {
	b.mu.Lock()
	sem := b.sems[renderReady.id].sem
	b.mu.Unlock()

	var index uint32
	ret := vk.AcquireNextImage(b.device, b.swapchain, vk.MaxUint64, sem, vk.NullFence, &index)
	if isVkError(ret) {
		return RenderTargetHandle{}, vkError(ret)
	}
	return RenderTargetHandle{id: uint64(index) + 1, Index: int(index)}, nil
}

func (b *VulkanBackend) Present(queue QueueHandle, wait SemaphoreHandle, image RenderTargetHandle) error {
	b.mu.Lock()
	sem := b.sems[wait.id].sem
	b.mu.Unlock()

	index := uint32(image.Index)
	ret := vk.QueuePresent(b.nativeQueue(queue), &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{b.swapchain},
		PImageIndices:      []uint32{index},
	})
	if isVkError(ret) {
		return vkError(ret)
	}
	return nil
}

func (b *VulkanBackend) RenderTargetSize() (int, int) {
	return int(b.imageExtent.Width), int(b.imageExtent.Height)
}

func (b *VulkanBackend) Close() error {
	vk.DeviceWaitIdle(b.device)
	for _, v := range b.imageViews {
		vk.DestroyImageView(b.device, v, nil)
	}
	if b.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(b.device, b.swapchain, nil)
	}
	for _, e := range b.sems {
		vk.DestroySemaphore(b.device, e.sem, nil)
		vk.DestroyFence(b.device, e.fence, nil)
	}
	for _, p := range b.pools {
		vk.DestroyCommandPool(b.device, p, nil)
	}
	if b.surface != vk.NullSurface {
		vk.DestroySurface(b.instance, b.surface, nil)
	}
	vk.DestroyDevice(b.device, nil)
	vk.DestroyInstance(b.instance, nil)
	return nil
}

// requiredInstanceExtensions mirrors util.go's InstanceExtensions: it
// returns the name of every instance extension the loader reports, so
// NewVulkanBackend enables all available instance extensions. The list
// is not narrowed to the surface extensions this backend uses.
func requiredInstanceExtensions() ([]string, error) {
	var count uint32
	ret := vk.EnumerateInstanceExtensionProperties("", &count, nil)
	if isVkError(ret) {
		return nil, vkError(ret)
	}
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateInstanceExtensionProperties("", &count, list)
	if isVkError(ret) {
		return nil, vkError(ret)
	}
	var names []string
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

func safeCString(s string) string {
	return s + "\x00"
}

func isVkError(ret vk.Result) bool { return ret != vk.Success }

func vkError(ret vk.Result) error { return fmt.Errorf("vulkan: result %d", int32(ret)) }

func encodeQueue(family, index int) uint64 { return uint64(family)<<32 | uint64(uint32(index)) }
func decodeQueue(id uint64) (int, int)     { return int(id >> 32), int(uint32(id)) }
