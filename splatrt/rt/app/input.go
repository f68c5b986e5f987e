package app

import (
	"path/filepath"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
)

// scrollLine is how many pixels one wheel notch counts for.
const scrollLine = 10

type dragMode int

const (
	dragNone dragMode = iota
	dragOrbit
	dragPan
)

type input struct {
	drag           dragMode
	startX, startY float64
}

// keyStateFrom maps held keys to navigation intents.
func keyStateFrom(pressed func(glfw.Key) bool) core.KeyState {
	return core.KeyState{
		Forward:    pressed(glfw.KeyUp),
		Back:       pressed(glfw.KeyDown),
		Left:       pressed(glfw.KeyLeft),
		Right:      pressed(glfw.KeyRight),
		Shift:      pressed(glfw.KeyLeftShift) || pressed(glfw.KeyRightShift),
		YawLeft:    pressed(glfw.KeyA),
		YawRight:   pressed(glfw.KeyD),
		RollLeft:   pressed(glfw.KeyQ),
		RollRight:  pressed(glfw.KeyE),
		PitchUp:    pressed(glfw.KeyW),
		PitchDown:  pressed(glfw.KeyS),
		OrbitLeft:  pressed(glfw.KeyJ),
		OrbitRight: pressed(glfw.KeyL),
		OrbitUp:    pressed(glfw.KeyI),
		OrbitDown:  pressed(glfw.KeyK),
		Jump:       pressed(glfw.KeySpace),
	}
}

func (a *App) keyState() core.KeyState {
	if a.Window.GetAttrib(glfw.Focused) == 0 {
		return core.KeyState{}
	}
	return keyStateFrom(func(k glfw.Key) bool {
		return a.Window.GetKey(k) == glfw.Press
	})
}

// digitKey returns the preset index for a number key, or -1.
func digitKey(key glfw.Key) int {
	switch {
	case key >= glfw.Key0 && key <= glfw.Key9:
		return int(key - glfw.Key0)
	case key >= glfw.KeyKP0 && key <= glfw.KeyKP9:
		return int(key - glfw.KeyKP0)
	}
	return -1
}

func (a *App) installCallbacks() {
	s := a.Session

	a.Window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		a.Resize(width, height)
	})

	a.Window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		s.Controls.StopCarousel()
		if i := digitKey(key); i >= 0 {
			if !s.SelectCamera(i) {
				a.Logger.Warnf("app: no camera preset %d", i)
			}
		}
		switch key {
		case glfw.KeyV:
			a.Logger.Infof("view: %s", s.ShareView())
		case glfw.KeyP:
			s.Controls.RestartCarousel(time.Now(), 0)
		case glfw.KeyF1:
			a.Logger.Infof("\n%s", s.Profiler)
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		}
	})

	a.Window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if action == glfw.Release {
			a.input.drag = dragNone
			return
		}
		s.Controls.StopCarousel()
		a.input.startX, a.input.startY = w.GetCursorPos()
		switch {
		case button == glfw.MouseButtonRight:
			a.input.drag = dragPan
		case mods&(glfw.ModControl|glfw.ModSuper) != 0:
			a.input.drag = dragPan
		default:
			a.input.drag = dragOrbit
		}
	})

	a.Window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if a.input.drag == dragNone {
			return
		}
		width, height := w.GetSize()
		dx := float32((xpos - a.input.startX) / float64(width))
		dy := float32((ypos - a.input.startY) / float64(height))
		if a.input.drag == dragOrbit {
			s.Controls.Orbit(dx, dy)
		} else {
			s.Controls.Pan(dx, dy)
		}
		a.input.startX, a.input.startY = xpos, ypos
	})

	a.Window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		width, height := w.GetSize()
		shift := w.GetKey(glfw.KeyLeftShift) == glfw.Press || w.GetKey(glfw.KeyRightShift) == glfw.Press
		ctrl := w.GetKey(glfw.KeyLeftControl) == glfw.Press || w.GetKey(glfw.KeyRightControl) == glfw.Press
		// Wheel up scrolls by a negative amount.
		dx := float32(-xoff * scrollLine / float64(width))
		dy := float32(-yoff * scrollLine / float64(height))
		s.Controls.Scroll(dx, dy, shift, ctrl)
	})

	a.Window.SetDropCallback(func(w *glfw.Window, names []string) {
		for _, name := range names {
			if err := s.LoadFile(name); err != nil {
				a.Logger.Errorf("app: open %s: %v", filepath.Base(name), err)
			}
		}
	})
}
