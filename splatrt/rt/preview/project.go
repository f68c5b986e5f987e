package preview

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Splat2D is one splat projected to the screen.
type Splat2D struct {
	// Center in normalized device coordinates.
	Center mgl32.Vec2
	// Major and Minor are the ellipse half-axes in pixels; they are
	// perpendicular.
	Major, Minor mgl32.Vec2
	// Color is RGBA, faded toward zero behind the near plane.
	Color mgl32.Vec4
}

// Covariance3D returns the upper triangle (xx, xy, xz, yy, yz, zz) of the
// world-space covariance of a splat, scaled by 4 like the renderer expects.
// quat is (w, x, y, z).
func Covariance3D(scale mgl32.Vec3, quat mgl32.Vec4) [6]float32 {
	r, x, y, z := quat[0], quat[1], quat[2], quat[3]
	R := [9]float32{
		1 - 2*(y*y+z*z), 2 * (x*y + r*z), 2 * (x*z - r*y),
		2 * (x*y - r*z), 1 - 2*(x*x+z*z), 2 * (y*z + r*x),
		2 * (x*z + r*y), 2 * (y*z - r*x), 1 - 2*(x*x+y*y),
	}
	var M [9]float32
	for i := 0; i < 9; i++ {
		M[i] = scale[i/3] * R[i]
	}
	return [6]float32{
		4 * (M[0]*M[0] + M[3]*M[3] + M[6]*M[6]),
		4 * (M[0]*M[1] + M[3]*M[4] + M[6]*M[7]),
		4 * (M[0]*M[2] + M[3]*M[5] + M[6]*M[8]),
		4 * (M[1]*M[1] + M[4]*M[4] + M[7]*M[7]),
		4 * (M[1]*M[2] + M[4]*M[5] + M[7]*M[8]),
		4 * (M[2]*M[2] + M[5]*M[5] + M[8]*M[8]),
	}
}

// Project mirrors the vertex stage of the splat shader. ok is false when the
// splat is culled or degenerate.
func Project(center, scale mgl32.Vec3, quat, color mgl32.Vec4, view, proj mgl32.Mat4, focal mgl32.Vec2) (Splat2D, bool) {
	cam := view.Mul4x1(center.Vec4(1))
	pos2d := proj.Mul4x1(cam)
	clip := 1.2 * pos2d.W()
	if pos2d.Z() < -clip || pos2d.X() < -clip || pos2d.X() > clip || pos2d.Y() < -clip || pos2d.Y() > clip {
		return Splat2D{}, false
	}

	c := Covariance3D(scale, quat)
	vrk := mgl32.Mat3{
		c[0], c[1], c[2],
		c[1], c[3], c[4],
		c[2], c[4], c[5],
	}

	cz := cam.Z()
	J := mgl32.Mat3{
		focal.X() / cz, 0, -(focal.X() * cam.X()) / (cz * cz),
		0, -focal.Y() / cz, (focal.Y() * cam.Y()) / (cz * cz),
		0, 0, 0,
	}
	T := view.Mat3().Transpose().Mul3(J)
	cov2d := T.Transpose().Mul3(vrk).Mul3(T)

	a := cov2d[0] + 0.3
	b := cov2d[1]
	d := cov2d[4] + 0.3

	mid := (a + d) / 2
	radius := float32(math.Hypot(float64((a-d)/2), float64(b)))
	lambda1 := mid + radius
	lambda2 := mid - radius
	if lambda2 < 0 {
		return Splat2D{}, false
	}

	diag := mgl32.Vec2{b, lambda1 - a}
	if diag.Len() == 0 {
		// Axis-aligned: the major axis is x when a >= d.
		diag = mgl32.Vec2{1, 0}
		if d > a {
			diag = mgl32.Vec2{0, 1}
		}
	} else {
		diag = diag.Normalize()
	}
	major := diag.Mul(min(float32(math.Sqrt(float64(2*lambda1))), 1024))
	minor := mgl32.Vec2{diag.Y(), -diag.X()}.Mul(min(float32(math.Sqrt(float64(2*lambda2))), 1024))

	fade := clampf(pos2d.Z()/pos2d.W()+1, 0, 1)
	return Splat2D{
		Center: mgl32.Vec2{pos2d.X() / pos2d.W(), pos2d.Y() / pos2d.W()},
		Major:  major,
		Minor:  minor,
		Color:  color.Mul(fade),
	}, true
}

func clampf(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}
