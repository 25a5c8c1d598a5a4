package render

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/nearcast/nearcast/internal/errs"
)

var glfwInitOnce sync.Once
var glfwInitErr error

func init() {
	// glfw.Init and all window/event calls are only valid on the thread
	// that called it; package init runs on the goroutine that first
	// imports this package, which for a GUI binary is main().
	runtime.LockOSThread()
}

func ensureGLFW() error {
	glfwInitOnce.Do(func() {
		glfwInitErr = glfw.Init()
	})
	return glfwInitErr
}

// Window is the C5 contract: create/render_frame/set_title/close/
// is_open/try_recv_event, backed by a glfw window and a detached GL
// context owned by a dedicated render goroutine.
type Window struct {
	win *glfw.Window

	isOpen atomic.Bool

	eventCh chan Event
	frameCh chan *DecodedFrame // capacity 1: holds at most one pending frame

	titleMu  sync.Mutex
	newTitle string
	hasTitle atomic.Bool

	pipeline *pipeline
	overlay  *overlayState

	closeOnce sync.Once
	renderDone chan struct{}
}

// New creates a window of the given size and starts its render thread.
// Must be called from the platform's main/UI thread.
func New(title string, width, height int) (*Window, error) {
	if err := ensureGLFW(); err != nil {
		return nil, errs.Render(fmt.Sprintf("render: glfw init: %v", err))
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, errs.Render(fmt.Sprintf("render: create window: %v", err))
	}

	w := &Window{
		win:        win,
		eventCh:    make(chan Event, 256),
		frameCh:    make(chan *DecodedFrame, 1),
		renderDone: make(chan struct{}),
		overlay:    newOverlayState(),
	}
	w.isOpen.Store(true)
	w.installCallbacks()

	// Detach the context here; the render goroutine attaches it on its
	// own locked OS thread and owns every GL call from then on.
	win.MakeContextCurrent()
	glfw.DetachCurrentContext()

	go w.renderLoop()

	return w, nil
}

func (w *Window) installCallbacks() {
	w.win.SetCloseCallback(func(_ *glfw.Window) {
		w.pushEvent(Event{Kind: EventCloseRequested})
	})
	w.win.SetSizeCallback(func(_ *glfw.Window, width, height int) {
		w.pushEvent(Event{Kind: EventResized, Width: width, Height: height})
	})
	w.win.SetFocusCallback(func(_ *glfw.Window, focused bool) {
		w.pushEvent(Event{Kind: EventFocused, Focused: focused})
	})
	w.win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		w.pushEvent(Event{Kind: EventKeyPressed, Scancode: scancode})
	})
	w.win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		w.overlay.touch(x, y, nowMs())
		w.pushEvent(Event{Kind: EventMouseMoved, X: x, Y: y})
	})
	w.win.SetCursorEnterCallback(func(_ *glfw.Window, entered bool) {
		if !entered {
			w.overlay.leave()
		}
	})
	w.win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		pressed := action == glfw.Press
		w.pushEvent(Event{Kind: EventMouseButton, Button: int(button), Pressed: pressed})
		if !pressed {
			return
		}
		if opt, ok := w.overlay.hitTest(); ok {
			w.pushEvent(Event{
				Kind:         EventResolutionRequested,
				TargetWidth:  opt.width,
				TargetHeight: opt.height,
				BitrateBps:   opt.bitrateBps,
			})
		}
	})
	w.win.SetScrollCallback(func(_ *glfw.Window, dx, dy float64) {
		w.pushEvent(Event{Kind: EventMouseWheel, X: dx, Y: dy})
	})
}

func (w *Window) pushEvent(e Event) {
	select {
	case w.eventCh <- e:
	default:
		log.Warn("event channel full, dropping", "kind", e.Kind)
	}
}

// PumpEvents polls the OS event queue and runs queued callbacks. Must be
// called periodically from the thread that created the window.
func (w *Window) PumpEvents() {
	if !w.isOpen.Load() {
		return
	}
	glfw.PollEvents()
	if w.win.ShouldClose() {
		w.pushEvent(Event{Kind: EventCloseRequested})
	}
	if w.hasTitle.CompareAndSwap(true, false) {
		w.titleMu.Lock()
		title := w.newTitle
		w.titleMu.Unlock()
		w.win.SetTitle(title)
	}
}

// TryRecvEvent is the non-blocking event reader.
func (w *Window) TryRecvEvent() (Event, bool) {
	select {
	case e := <-w.eventCh:
		return e, true
	default:
		return Event{}, false
	}
}

// SetTitle queues a title change applied on the next PumpEvents call.
func (w *Window) SetTitle(title string) {
	w.titleMu.Lock()
	w.newTitle = title
	w.titleMu.Unlock()
	w.hasTitle.Store(true)
}

// RenderFrame admits frame into the bounded queue, dropping any unsent
// prior frame first (§4.5 frame admission). Fails fast if the window is
// gone.
func (w *Window) RenderFrame(frame *DecodedFrame) error {
	if !w.isOpen.Load() {
		return errs.Render("render: window is closed")
	}
	for {
		select {
		case w.frameCh <- frame:
			return nil
		default:
			select {
			case <-w.frameCh:
			default:
			}
		}
	}
}

// IsOpen reports whether the window is still live.
func (w *Window) IsOpen() bool {
	return w.isOpen.Load()
}

// Close tears down the render thread and destroys the window. Must be
// called from the thread that created the window.
func (w *Window) Close() error {
	w.closeOnce.Do(func() {
		w.isOpen.Store(false)
		close(w.frameCh)
		<-w.renderDone
		w.win.Destroy()
	})
	return nil
}

func (w *Window) renderLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.renderDone)

	w.win.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		log.Error("gl init failed", "error", err)
		return
	}

	p, err := newPipeline()
	if err != nil {
		log.Error("pipeline init failed", "error", err)
		return
	}
	defer p.close()
	w.pipeline = p

	ticker := time.NewTicker(4 * time.Millisecond)
	defer ticker.Stop()

	var latest *DecodedFrame
	for {
		select {
		case f, ok := <-w.frameCh:
			if !ok {
				return
			}
			latest = f
		case <-ticker.C:
		}
		if latest == nil {
			continue
		}
		fbW, fbH := w.win.GetFramebufferSize()
		p.draw(latest, fbW, fbH, w.overlay.snapshot(nowMs()))
		w.win.SwapBuffers()
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
