package core

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// orbitDistance is how far in front of the camera orbit moves pivot.
const orbitDistance = 4

// KeyState is the set of held navigation keys for one frame.
type KeyState struct {
	Forward, Back, Left, Right bool
	Shift                      bool
	YawLeft, YawRight          bool // a, d
	RollLeft, RollRight        bool // q, e
	PitchUp, PitchDown         bool // w, s
	OrbitLeft, OrbitRight      bool // j, l
	OrbitUp, OrbitDown         bool // i, k
	Jump                       bool // space
}

// Controls integrates user input into a view matrix. All moves are applied to
// the camera-to-world inverse, then inverted back.
type Controls struct {
	View        mgl32.Mat4
	DefaultView mgl32.Mat4
	Carousel    bool

	carouselStart time.Time
	jump          float32
}

func NewControls(defaultView mgl32.Mat4, carousel bool) *Controls {
	return &Controls{
		View:          defaultView,
		DefaultView:   defaultView,
		Carousel:      carousel,
		carouselStart: time.Now(),
	}
}

// StopCarousel is called on any user input.
func (c *Controls) StopCarousel() {
	c.Carousel = false
}

// RestartCarousel resumes the idle animation, delayed by d.
func (c *Controls) RestartCarousel(now time.Time, d time.Duration) {
	c.Carousel = true
	c.carouselStart = now.Add(d)
}

func (c *Controls) SetView(view mgl32.Mat4) {
	c.View = view
	c.StopCarousel()
}

func (c *Controls) SelectCamera(cam GSCamera) {
	c.SetView(cam.ViewMatrix())
}

// Orbit rotates about a point in front of the camera. dx and dy are drag
// distances as fractions of the window size.
func (c *Controls) Orbit(dx, dy float32) {
	c.StopCarousel()
	inv := c.View.Inv()
	inv = orbit(inv, 5*dx, -5*dy)
	c.View = inv.Inv()
}

// Pan moves the camera in its own XZ plane, keeping its height.
func (c *Controls) Pan(dx, dy float32) {
	c.StopCarousel()
	inv := c.View.Inv()
	preY := inv[13]
	inv = inv.Mul4(mgl32.Translate3D(-10*dx, 0, 10*dy))
	inv[13] = preY
	c.View = inv.Inv()
}

// Scroll applies a wheel delta, as fractions of the window size. With shift
// it pans, with ctrl it dollies, otherwise it orbits.
func (c *Controls) Scroll(dx, dy float32, shift, ctrl bool) {
	c.StopCarousel()
	inv := c.View.Inv()
	switch {
	case shift:
		inv = inv.Mul4(mgl32.Translate3D(dx, dy, 0))
	case ctrl:
		preY := inv[13]
		inv = inv.Mul4(mgl32.Translate3D(0, 0, -10*dy))
		inv[13] = preY
	default:
		inv = orbit(inv, -dx, dy)
	}
	c.View = inv.Inv()
}

// Step advances keyboard movement, the jump and the carousel by one frame
// and returns the view matrix to render with.
func (c *Controls) Step(k KeyState, now time.Time) mgl32.Mat4 {
	inv := c.View.Inv()

	if k.Forward {
		if k.Shift {
			inv = inv.Mul4(mgl32.Translate3D(0, -0.03, 0))
		} else {
			preY := inv[13]
			inv = inv.Mul4(mgl32.Translate3D(0, 0, 0.1))
			inv[13] = preY
		}
	}
	if k.Back {
		if k.Shift {
			inv = inv.Mul4(mgl32.Translate3D(0, 0.03, 0))
		} else {
			preY := inv[13]
			inv = inv.Mul4(mgl32.Translate3D(0, 0, -0.1))
			inv[13] = preY
		}
	}
	if k.Left {
		inv = inv.Mul4(mgl32.Translate3D(-0.03, 0, 0))
	}
	if k.Right {
		inv = inv.Mul4(mgl32.Translate3D(0.03, 0, 0))
	}
	if k.YawLeft {
		inv = rotate(inv, -0.01, mgl32.Vec3{0, 1, 0})
	}
	if k.YawRight {
		inv = rotate(inv, 0.01, mgl32.Vec3{0, 1, 0})
	}
	if k.RollLeft {
		inv = rotate(inv, 0.01, mgl32.Vec3{0, 0, 1})
	}
	if k.RollRight {
		inv = rotate(inv, -0.01, mgl32.Vec3{0, 0, 1})
	}
	if k.PitchUp {
		inv = rotate(inv, 0.005, mgl32.Vec3{1, 0, 0})
	}
	if k.PitchDown {
		inv = rotate(inv, -0.005, mgl32.Vec3{1, 0, 0})
	}
	if k.OrbitLeft || k.OrbitRight || k.OrbitUp || k.OrbitDown {
		var yaw, pitch float32
		switch {
		case k.OrbitLeft:
			yaw = -0.05
		case k.OrbitRight:
			yaw = 0.05
		}
		switch {
		case k.OrbitUp:
			pitch = 0.05
		case k.OrbitDown:
			pitch = -0.05
		}
		inv = orbit(inv, yaw, pitch)
	}
	c.View = inv.Inv()

	if c.Carousel {
		t := float32(math.Sin(float64(now.Sub(c.carouselStart).Milliseconds()) / 5000))
		inv := c.DefaultView.Inv()
		inv = inv.Mul4(mgl32.Translate3D(2.5*t, 0, 6*(1-float32(math.Cos(float64(t))))))
		inv = rotate(inv, -0.6*t, mgl32.Vec3{0, 1, 0})
		c.View = inv.Inv()
	}

	if k.Jump {
		c.jump = min(1, c.jump+0.05)
	} else {
		c.jump = max(0, c.jump-0.05)
	}

	inv2 := c.View.Inv()
	inv2[13] -= c.jump
	inv2 = rotate(inv2, -0.1*c.jump, mgl32.Vec3{1, 0, 0})
	return inv2.Inv()
}

func orbit(inv mgl32.Mat4, yaw, pitch float32) mgl32.Mat4 {
	inv = inv.Mul4(mgl32.Translate3D(0, 0, orbitDistance))
	inv = rotate(inv, yaw, mgl32.Vec3{0, 1, 0})
	inv = rotate(inv, pitch, mgl32.Vec3{1, 0, 0})
	return inv.Mul4(mgl32.Translate3D(0, 0, -orbitDistance))
}

func rotate(m mgl32.Mat4, angle float32, axis mgl32.Vec3) mgl32.Mat4 {
	if angle == 0 {
		return m
	}
	return m.Mul4(mgl32.HomogRotate3D(angle, axis))
}
