// Package preview renders images for checking calibration and tuning results by eye.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"fisheye-stereo/internal/disparity"
	"fisheye-stereo/internal/fsutil"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/remap"
	"fisheye-stereo/internal/stereo"
	"fisheye-stereo/pkg/colorutil"

	xdraw "golang.org/x/image/draw"
)

// DefaultLineSpacing is the row distance between epipolar guide lines.
const DefaultLineSpacing = 24

// Undistortion resamples a raw pair through each camera's own undistortion map and lays
// the results side by side.
func Undistortion(left, right *image.Gray, leftMap, rightMap *remap.Map) (*image.RGBA, error) {
	l, err := leftMap.ApplyGray(left)
	if err != nil {
		return nil, fmt.Errorf("failed to undistort left image: %w", err)
	}
	r, err := rightMap.ApplyGray(right)
	if err != nil {
		return nil, fmt.Errorf("failed to undistort right image: %w", err)
	}
	return pairimage.SideBySide(l, r).Render(), nil
}

// Rectification rectifies a raw pair and lays it side by side with horizontal guide
// lines; matching features should sit on the same line in both halves.
func Rectification(left, right *image.Gray, maps stereo.Maps, spacing int) (*image.RGBA, error) {
	l, r, err := maps.Apply(left, right)
	if err != nil {
		return nil, err
	}
	out := pairimage.SideBySide(l, r).Render()
	DrawGuideLines(out, spacing, colorutil.Green)
	return out, nil
}

// Difference blends the right view over the left with difference blending. Aligned
// content cancels to black.
func Difference(left, right *image.Gray) *image.RGBA {
	b := left.Bounds()
	c := pairimage.NewComposite(b.Dx(), b.Dy())
	c.AddLayer(left, pairimage.BlendNormal, 0, 0)
	c.AddLayer(right, pairimage.BlendDifference, 0, 0)
	return c.Render()
}

// Disparity shows the reference image next to the jet-colored disparity visualization.
func Disparity(reference, visual *image.Gray) *image.RGBA {
	return pairimage.SideBySide(reference, disparity.Colorize(visual)).Render()
}

// DrawGuideLines draws a horizontal line every spacing rows.
func DrawGuideLines(img *image.RGBA, spacing int, c color.RGBA) {
	if spacing <= 0 {
		spacing = DefaultLineSpacing
	}
	b := img.Bounds()
	for y := b.Min.Y + spacing/2; y < b.Max.Y; y += spacing {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// Scale resizes img to the given width, keeping the aspect ratio.
func Scale(img image.Image, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || width == b.Dx() {
		return img
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Write encodes img as PNG, or as JPEG for .jpg/.jpeg paths, and stores it at path.
func Write(fsys fsutil.FileSystem, path string, img image.Image) error {
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	case ".png":
		err = png.Encode(&buf, img)
	default:
		return fmt.Errorf("unsupported preview format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return fsutil.WriteFileAtomic(fsys, path, buf.Bytes(), 0o644)
}
