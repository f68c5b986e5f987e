// Package preview rasterizes a sorted splat snapshot on the CPU. It is slow
// but needs no GPU, which makes it usable from the command line and tests.
package preview

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/sorter"
)

// opaque is the accumulated alpha past which a pixel stops taking splats.
const opaque = 0.999

type Options struct {
	Width, Height int
	Fx, Fy        float32
	Background    color.RGBA
	// Caption is drawn in the bottom-left corner when not empty.
	Caption string
}

func DefaultOptions() Options {
	return Options{
		Width:      640,
		Height:     360,
		Fx:         core.DefaultCamera.Fx / 2,
		Fy:         core.DefaultCamera.Fy / 2,
		Background: color.RGBA{0, 0, 0, 255},
	}
}

// Render composites res, which must be sorted front to back, as seen through
// view. The projection is rebuilt from the focal lengths and image size.
func Render(res *sorter.Result, view mgl32.Mat4, opts Options) *image.RGBA {
	w, h := opts.Width, opts.Height
	proj := core.ProjectionMatrix(opts.Fx, opts.Fy, w, h)
	focal := mgl32.Vec2{opts.Fx, opts.Fy}
	viewport := mgl32.Vec2{float32(w), float32(h)}

	acc := make([]mgl32.Vec4, w*h)

	for j := 0; j < res.Len(); j++ {
		center := mgl32.Vec3{res.Center[3*j], res.Center[3*j+1], res.Center[3*j+2]}
		scale := mgl32.Vec3{res.Scale[3*j], res.Scale[3*j+1], res.Scale[3*j+2]}
		quat := mgl32.Vec4{res.Quat[4*j], res.Quat[4*j+1], res.Quat[4*j+2], res.Quat[4*j+3]}
		col := mgl32.Vec4{res.Color[4*j], res.Color[4*j+1], res.Color[4*j+2], res.Color[4*j+3]}

		s, ok := Project(center, scale, quat, col, view, proj, focal)
		if !ok {
			continue
		}
		splat(acc, w, h, viewport, s)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bg := mgl32.Vec4{
		float32(opts.Background.R) / 255,
		float32(opts.Background.G) / 255,
		float32(opts.Background.B) / 255,
		1,
	}
	for i, a := range acc {
		// Background goes under everything that was drawn.
		c := a.Add(bg.Mul(1 - a[3]))
		img.Pix[4*i+0] = toByte(c[0])
		img.Pix[4*i+1] = toByte(c[1])
		img.Pix[4*i+2] = toByte(c[2])
		img.Pix[4*i+3] = 255
	}

	if opts.Caption != "" {
		drawCaption(img, opts.Caption)
	}
	return img
}

// splat blends one projected splat into acc with the under operator, the
// CPU form of a ONE_MINUS_DST_ALPHA / ONE blend.
func splat(acc []mgl32.Vec4, w, h int, viewport mgl32.Vec2, s Splat2D) {
	majLen2 := s.Major.Dot(s.Major)
	minLen2 := s.Minor.Dot(s.Minor)
	if majLen2 == 0 || minLen2 == 0 {
		return
	}
	extent := s.Major.Len() + s.Minor.Len()

	cx := (s.Center.X() + 1) / 2 * float32(w)
	cy := (1 - s.Center.Y()) / 2 * float32(h)
	x0 := max(0, int(math.Floor(float64(cx-extent))))
	x1 := min(w-1, int(math.Ceil(float64(cx+extent))))
	y0 := max(0, int(math.Floor(float64(cy-extent))))
	y1 := min(h-1, int(math.Ceil(float64(cy+extent))))

	for py := y0; py <= y1; py++ {
		ny := 1 - (float32(py)+0.5)/float32(h)*2
		for px := x0; px <= x1; px++ {
			i := py*w + px
			if acc[i][3] > opaque {
				continue
			}
			nx := (float32(px)+0.5)/float32(w)*2 - 1
			q := mgl32.Vec2{(nx - s.Center.X()) * viewport.X(), (ny - s.Center.Y()) * viewport.Y()}
			a := q.Dot(s.Major) / majLen2
			b := q.Dot(s.Minor) / minLen2

			A := -(a*a + b*b)
			if A < -4 {
				continue
			}
			B := float32(math.Exp(float64(A))) * s.Color[3]
			src := mgl32.Vec4{B * s.Color[0], B * s.Color[1], B * s.Color[2], B}
			acc[i] = acc[i].Add(src.Mul(1 - acc[i][3]))
		}
	}
}

func drawCaption(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 255}),
		Face: face,
		Dot:  fixed.P(6, img.Bounds().Dy()-6),
	}
	d.DrawString(text)
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

func toByte(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
