package canvas

import (
	"image"
	"image/color"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checker(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/10+y/10)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestFitToWindow(t *testing.T) {
	test.NewApp()
	v := NewImageView()
	v.SetImage(checker(100, 50))
	v.Resize(fyne.NewSize(200, 150))

	assert.True(t, v.FitsToWindow())
	assert.InDelta(t, 2.0, v.Zoom(), 1e-6)
	assert.Equal(t, fyne.NewSize(200, 100), v.content.MinSize())
}

func TestZoomLeavesFitMode(t *testing.T) {
	test.NewApp()
	v := NewImageView()
	v.SetImage(checker(100, 50))
	v.Resize(fyne.NewSize(200, 150))

	var zooms []float64
	v.OnZoomChange(func(z float64) { zooms = append(zooms, z) })

	v.ActualSize()
	assert.False(t, v.FitsToWindow())
	assert.Equal(t, 1.0, v.Zoom())

	v.ZoomIn()
	assert.InDelta(t, 1.25, v.Zoom(), 1e-9)
	v.ZoomOut()
	v.ZoomOut()
	assert.InDelta(t, 0.8, v.Zoom(), 1e-9)
	assert.Len(t, zooms, 4)

	v.SetZoom(100)
	assert.Equal(t, maxZoom, v.Zoom())
	v.SetZoom(0)
	assert.Equal(t, minZoom, v.Zoom())

	v.SetFitToWindow(true)
	assert.InDelta(t, 2.0, v.Zoom(), 1e-6)
}

func TestHoverReportsImageCoordinates(t *testing.T) {
	test.NewApp()
	v := NewImageView()
	v.SetImage(checker(100, 50))
	v.Resize(fyne.NewSize(200, 100))

	var gotX, gotY int
	left := false
	v.OnHover(func(x, y int) { gotX, gotY = x, y })
	v.OnLeave(func() { left = true })

	v.content.MouseMoved(&desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(21, 11)}})
	assert.Equal(t, 10, gotX)
	assert.Equal(t, 5, gotY)
	assert.False(t, left)

	v.content.MouseMoved(&desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(500, 11)}})
	assert.True(t, left)
}

func TestDrawScalesImage(t *testing.T) {
	test.NewApp()
	v := NewImageView()

	empty := v.draw(8, 4).(*image.RGBA)
	assert.Equal(t, background, empty.RGBAAt(3, 2))

	src := checker(20, 20)
	v.SetImage(src)
	out := v.draw(40, 40).(*image.RGBA)
	require.Equal(t, image.Rect(0, 0, 40, 40), out.Bounds())
	assert.Equal(t, uint8(255), out.RGBAAt(1, 1).R)
	assert.Equal(t, uint8(0), out.RGBAAt(21, 1).R)
	assert.Equal(t, uint8(255), out.RGBAAt(21, 1).A)
}

func TestSetImageNilClears(t *testing.T) {
	test.NewApp()
	v := NewImageView()
	v.SetImage(checker(10, 10))
	v.SetImage(nil)
	assert.Nil(t, v.Image())
	_, _, ok := v.ViewToImage(fyne.NewPos(1, 1))
	assert.False(t, ok)
}
