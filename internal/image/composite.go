package image

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

// BlendMode specifies how a layer combines with what is already drawn.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendDifference
	BlendScreen
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendDifference:
		return "Difference"
	case BlendScreen:
		return "Screen"
	default:
		return "Unknown"
	}
}

// CompositeLayer is an image placed on the canvas.
type CompositeLayer struct {
	Image     image.Image
	BlendMode BlendMode
	Opacity   float64
	OffsetX   int
	OffsetY   int
}

// Composite lays out several images on one canvas, e.g. a rectified pair side by side
// or the left view differenced against the right.
type Composite struct {
	Width     int
	Height    int
	Layers    []*CompositeLayer
	BackColor color.RGBA
}

// NewComposite creates an empty canvas with a black background.
func NewComposite(width, height int) *Composite {
	return &Composite{
		Width:     width,
		Height:    height,
		BackColor: color.RGBA{A: 255},
	}
}

// AddLayer places img at the given offset.
func (c *Composite) AddLayer(img image.Image, mode BlendMode, offsetX, offsetY int) {
	c.Layers = append(c.Layers, &CompositeLayer{
		Image:     img,
		BlendMode: mode,
		Opacity:   1,
		OffsetX:   offsetX,
		OffsetY:   offsetY,
	})
}

// SideBySide returns a composite holding left and right next to each other.
func SideBySide(left, right image.Image) *Composite {
	lb, rb := left.Bounds(), right.Bounds()
	c := NewComposite(lb.Dx()+rb.Dx(), max(lb.Dy(), rb.Dy()))
	c.AddLayer(left, BlendNormal, 0, 0)
	c.AddLayer(right, BlendNormal, lb.Dx(), 0)
	return c
}

// Render produces the final composited image.
func (c *Composite) Render() *image.RGBA {
	result := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	xdraw.Draw(result, result.Bounds(), &image.Uniform{C: c.BackColor}, image.Point{}, xdraw.Src)

	for _, cl := range c.Layers {
		if cl == nil || cl.Image == nil {
			continue
		}
		if cl.BlendMode == BlendNormal && cl.Opacity >= 1 {
			b := cl.Image.Bounds()
			r := image.Rect(cl.OffsetX, cl.OffsetY, cl.OffsetX+b.Dx(), cl.OffsetY+b.Dy())
			xdraw.Draw(result, r, cl.Image, b.Min, xdraw.Src)
			continue
		}
		c.compositeLayer(result, cl)
	}
	return result
}

func (c *Composite) compositeLayer(dst *image.RGBA, cl *CompositeLayer) {
	b := cl.Image.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		dy := y - b.Min.Y + cl.OffsetY
		if dy < 0 || dy >= c.Height {
			continue
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			dx := x - b.Min.X + cl.OffsetX
			if dx < 0 || dx >= c.Width {
				continue
			}
			dst.SetRGBA(dx, dy, blend(dst.RGBAAt(dx, dy), cl.Image.At(x, y), cl.BlendMode, cl.Opacity))
		}
	}
}

func blend(dst color.RGBA, src color.Color, mode BlendMode, opacity float64) color.RGBA {
	sr, sg, sb, sa := src.RGBA()
	sf := [4]float64{float64(sr) / 65535, float64(sg) / 65535, float64(sb) / 65535, float64(sa) / 65535}
	df := [3]float64{float64(dst.R) / 255, float64(dst.G) / 255, float64(dst.B) / 255}

	var rf [3]float64
	for i := 0; i < 3; i++ {
		switch mode {
		case BlendDifference:
			rf[i] = math.Abs(sf[i] - df[i])
		case BlendScreen:
			rf[i] = 1 - (1-sf[i])*(1-df[i])
		default:
			rf[i] = sf[i]
		}
	}

	alpha := sf[3] * opacity
	out := color.RGBA{A: dst.A}
	out.R = uint8(clamp(rf[0]*alpha+df[0]*(1-alpha), 0, 1)*255 + 0.5)
	out.G = uint8(clamp(rf[1]*alpha+df[1]*(1-alpha), 0, 1)*255 + 0.5)
	out.B = uint8(clamp(rf[2]*alpha+df[2]*(1-alpha), 0, 1)*255 + 0.5)
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
