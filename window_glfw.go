package vkframe

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow backs NEW_WINDOW mode, grounded on the teacher's
// CoreDisplay (display.go): a thin wrapper around a *glfw.Window that
// also knows how to hand back a native surface handle for the backend
// to bind to its swap chain.
type glfwWindow struct {
	win   *glfw.Window
	start float64
}

// newGLFWWindow creates a window of the given title and resolution.
// Must be called from the main thread, per glfw's own threading rules.
func newGLFWWindow(title string, width, height int) (*glfwWindow, error) {
	if err := glfw.Init(); err != nil {
		return nil, &ConfigurationError{Reason: "glfw init failed: " + err.Error()}
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, &ConfigurationError{Reason: "glfw window creation failed: " + err.Error()}
	}
	return &glfwWindow{win: win, start: glfw.GetTime()}, nil
}

func (w *glfwWindow) IsClosed() bool { return w.win.ShouldClose() }
func (w *glfwWindow) PollEvents()    { glfw.PollEvents() }
func (w *glfwWindow) Time() float64  { return glfw.GetTime() - w.start }

// Size reports the window's framebuffer size, used to configure the
// swap chain's resolution when mode is NEW_WINDOW.
func (w *glfwWindow) Size() (int, int) { return w.win.GetSize() }

// CreateSurface hands back the native surface handle the backend needs
// to bind a swap chain to this window, mirroring CoreDisplay's
// GetVulkanSurface. vulkanInstance is the *vk.Instance from
// backend_vulkan.go, passed through as interface{} so this file stays
// the only one that needs to know glfw's surface-creation signature.
func (w *glfwWindow) CreateSurface(vulkanInstance interface{}) (uintptr, error) {
	surface, err := w.win.CreateWindowSurface(vulkanInstance, nil)
	if err != nil {
		return 0, &ConfigurationError{Reason: "surface creation failed: " + err.Error()}
	}
	return surface, nil
}

// Close destroys the underlying glfw window.
func (w *glfwWindow) Close() { w.win.Destroy() }
