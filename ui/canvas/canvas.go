// Package canvas provides a zoomable image view for the tuner window.
package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	xdraw "golang.org/x/image/draw"
)

const (
	minZoom  = 0.1
	maxZoom  = 8.0
	zoomStep = 1.25
)

var background = color.RGBA{A: 255}

// ImageView displays a single image with zoom, fit-to-window and pointer tracking.
type ImageView struct {
	widget.BaseWidget

	mu  sync.RWMutex
	img image.Image

	// Display state
	raster *fynecanvas.Raster
	zoom   float64

	// Container
	scroll  *zoomScroll
	content *viewContent
	imgSize fyne.Size // Current image display size

	// Fit to window
	fitToWindow    bool
	lastScrollSize fyne.Size

	// Callbacks
	onZoomChange func(zoom float64)
	onHover      func(x, y int) // Pointer position in image coordinates
	onLeave      func()
}

// zoomScroll is a widget that wraps a scroll container but intercepts wheel for zoom.
type zoomScroll struct {
	widget.BaseWidget
	scroll *container.Scroll
	view   *ImageView
}

func newZoomScroll(content fyne.CanvasObject, view *ImageView) *zoomScroll {
	scroll := container.NewScroll(content)
	scroll.Direction = container.ScrollBoth
	zs := &zoomScroll{scroll: scroll, view: view}
	zs.ExtendBaseWidget(zs)
	return zs
}

func (zs *zoomScroll) Scrolled(ev *fyne.ScrollEvent) {
	// Use wheel for zoom, not scroll
	if ev.Scrolled.DY > 0 {
		zs.view.ZoomIn()
	} else if ev.Scrolled.DY < 0 {
		zs.view.ZoomOut()
	}
}

func (zs *zoomScroll) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(zs.scroll)
}

// Resize sets the size of the scroll container.
func (zs *zoomScroll) Resize(size fyne.Size) {
	zs.scroll.Resize(size)
	zs.BaseWidget.Resize(size)
}

// viewContent hosts the raster and reports pointer motion.
type viewContent struct {
	widget.BaseWidget
	view *ImageView
}

var _ desktop.Hoverable = (*viewContent)(nil)

func newViewContent(view *ImageView) *viewContent {
	vc := &viewContent{view: view}
	vc.ExtendBaseWidget(vc)
	return vc
}

func (vc *viewContent) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(vc.view.raster)
}

func (vc *viewContent) MinSize() fyne.Size {
	return vc.view.imgSize
}

func (vc *viewContent) MouseIn(ev *desktop.MouseEvent) {
	vc.MouseMoved(ev)
}

func (vc *viewContent) MouseMoved(ev *desktop.MouseEvent) {
	x, y, ok := vc.view.ViewToImage(ev.Position)
	if !ok {
		vc.MouseOut()
		return
	}
	if vc.view.onHover != nil {
		vc.view.onHover(x, y)
	}
}

func (vc *viewContent) MouseOut() {
	if vc.view.onLeave != nil {
		vc.view.onLeave()
	}
}

// NewImageView creates an empty view that fits its image to the available space.
func NewImageView() *ImageView {
	v := &ImageView{
		zoom:        1.0,
		fitToWindow: true,
	}
	v.raster = fynecanvas.NewRaster(v.draw)
	v.raster.ScaleMode = fynecanvas.ImageScalePixels
	v.content = newViewContent(v)
	v.scroll = newZoomScroll(v.content, v)
	v.updateContentSize()
	v.ExtendBaseWidget(v)
	return v
}

// SetImage replaces the displayed image. A nil image clears the view.
func (v *ImageView) SetImage(img image.Image) {
	v.mu.Lock()
	v.img = img
	v.mu.Unlock()

	if v.fitToWindow {
		v.FitToWindow()
		return
	}
	v.updateContentSize()
}

// Image returns the displayed image.
func (v *ImageView) Image() image.Image {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.img
}

func (v *ImageView) imageBounds() image.Rectangle {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.img == nil {
		return image.Rectangle{}
	}
	return v.img.Bounds()
}

// SetZoom sets the zoom level.
func (v *ImageView) SetZoom(zoom float64) {
	if zoom < minZoom {
		zoom = minZoom
	}
	if zoom > maxZoom {
		zoom = maxZoom
	}
	v.zoom = zoom
	v.updateContentSize()

	if v.onZoomChange != nil {
		v.onZoomChange(zoom)
	}
}

// Zoom returns the current zoom level.
func (v *ImageView) Zoom() float64 {
	return v.zoom
}

// ZoomIn increases the zoom level and leaves fit-to-window mode.
func (v *ImageView) ZoomIn() {
	v.fitToWindow = false
	v.SetZoom(v.zoom * zoomStep)
}

// ZoomOut decreases the zoom level and leaves fit-to-window mode.
func (v *ImageView) ZoomOut() {
	v.fitToWindow = false
	v.SetZoom(v.zoom / zoomStep)
}

// ActualSize shows the image at 1:1.
func (v *ImageView) ActualSize() {
	v.fitToWindow = false
	v.SetZoom(1)
}

// FitToWindow adjusts zoom to fit the image in the visible area.
func (v *ImageView) FitToWindow() {
	bounds := v.imageBounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		v.updateContentSize()
		return
	}

	viewSize := v.scroll.Size()
	if viewSize.Width <= 0 || viewSize.Height <= 0 {
		v.updateContentSize()
		return
	}

	zoomX := float64(viewSize.Width) / float64(bounds.Dx())
	zoomY := float64(viewSize.Height) / float64(bounds.Dy())
	zoom := zoomX
	if zoomY < zoomX {
		zoom = zoomY
	}
	v.SetZoom(zoom)
}

// SetFitToWindow enables or disables auto-fit on resize.
func (v *ImageView) SetFitToWindow(fit bool) {
	v.fitToWindow = fit
	if fit {
		v.FitToWindow()
	}
}

// FitsToWindow returns the current fit-to-window state.
func (v *ImageView) FitsToWindow() bool {
	return v.fitToWindow
}

// CheckResize auto-fits when the viewport changed size and fit-to-window is enabled.
func (v *ImageView) CheckResize(size fyne.Size) {
	if !v.fitToWindow {
		return
	}
	if size.Width > 0 && size.Height > 0 && size != v.lastScrollSize {
		v.lastScrollSize = size
		v.FitToWindow()
	}
}

// OnZoomChange sets the callback invoked after every zoom change.
func (v *ImageView) OnZoomChange(callback func(zoom float64)) {
	v.onZoomChange = callback
}

// OnHover sets the callback invoked with the image pixel under the pointer.
func (v *ImageView) OnHover(callback func(x, y int)) {
	v.onHover = callback
}

// OnLeave sets the callback invoked when the pointer leaves the image.
func (v *ImageView) OnLeave(callback func()) {
	v.onLeave = callback
}

// ViewToImage converts a position in the content to image pixel coordinates.
func (v *ImageView) ViewToImage(pos fyne.Position) (int, int, bool) {
	bounds := v.imageBounds()
	if bounds.Empty() || v.zoom <= 0 {
		return 0, 0, false
	}
	x := int(float64(pos.X) / v.zoom)
	y := int(float64(pos.Y) / v.zoom)
	if x < 0 || y < 0 || x >= bounds.Dx() || y >= bounds.Dy() {
		return 0, 0, false
	}
	return x, y, true
}

// updateContentSize updates the content size based on image and zoom.
func (v *ImageView) updateContentSize() {
	bounds := v.imageBounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		v.imgSize = fyne.NewSize(320, 120)
	} else {
		v.imgSize = fyne.NewSize(float32(float64(bounds.Dx())*v.zoom), float32(float64(bounds.Dy())*v.zoom))
	}

	v.raster.SetMinSize(v.imgSize)
	v.raster.Resize(v.imgSize)
	v.content.Resize(v.imgSize)
	v.content.Refresh()
	v.raster.Refresh()
	if v.scroll != nil {
		v.scroll.scroll.Refresh()
	}
}

// draw renders the image scaled to the raster's pixel size.
func (v *ImageView) draw(w, h int) image.Image {
	output := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(output, output.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	v.mu.RLock()
	img := v.img
	v.mu.RUnlock()
	if img == nil || w == 0 || h == 0 {
		return output
	}
	xdraw.NearestNeighbor.Scale(output, output.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return output
}

// Refresh redraws the image.
func (v *ImageView) Refresh() {
	v.raster.Refresh()
}

// CreateRenderer implements fyne.Widget.
func (v *ImageView) CreateRenderer() fyne.WidgetRenderer {
	return &imageViewRenderer{view: v}
}

type imageViewRenderer struct {
	view *ImageView
}

func (r *imageViewRenderer) Layout(size fyne.Size) {
	r.view.scroll.Resize(size)
	r.view.CheckResize(size)
}

func (r *imageViewRenderer) MinSize() fyne.Size {
	return fyne.NewSize(100, 100)
}

func (r *imageViewRenderer) Refresh() {
	r.view.raster.Refresh()
}

func (r *imageViewRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.view.scroll}
}

func (r *imageViewRenderer) Destroy() {}
