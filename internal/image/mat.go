package image

import (
	"fmt"
	"image"
	"runtime"

	"gocv.io/x/gocv"
)

// GrayToMat copies a grayscale image into a CV_8UC1 Mat. The caller must close it.
func GrayToMat(img *image.Gray) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	buf := img.Pix
	if img.Stride != w || b.Min != (image.Point{}) {
		buf = make([]byte, w*h)
		for y := 0; y < h; y++ {
			off := img.PixOffset(b.Min.X, b.Min.Y+y)
			copy(buf[y*w:(y+1)*w], img.Pix[off:off+w])
		}
	}
	// The Mat borrows buf, so clone it before buf can be collected.
	view, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, buf)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create mat: %w", err)
	}
	defer view.Close()
	mat := view.Clone()
	runtime.KeepAlive(buf)
	return mat, nil
}

// MatToGray copies a CV_8UC1 Mat into a new grayscale image.
func MatToGray(m gocv.Mat) (*image.Gray, error) {
	if m.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	if m.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("unexpected mat type %v", m.Type())
	}
	w, h := m.Cols(), m.Rows()
	data := m.ToBytes()
	if len(data) < w*h {
		return nil, fmt.Errorf("short mat buffer: %d bytes for %dx%d", len(data), w, h)
	}
	gray := image.NewGray(image.Rect(0, 0, w, h))
	copy(gray.Pix, data[:w*h])
	return gray, nil
}
