// Package image provides stereo frame loading, gocv conversions and compositing.
package image

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fisheye-stereo/pkg/geometry"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Side indicates which camera of the rig captured a frame.
type Side int

const (
	SideUnknown Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "unknown"
	}
}

// Frame is a single grayscale capture.
type Frame struct {
	Path  string
	Image *image.Gray
	Side  Side
}

// Load decodes the image at path and converts it to grayscale.
func Load(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()
	return decode(path, file)
}

// Decode is Load for an image already read into memory.
func Decode(path string, data []byte) (*Frame, error) {
	return decode(path, bytes.NewReader(data))
}

func decode(path string, r io.Reader) (*Frame, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	return &Frame{
		Path:  path,
		Image: ToGray(img),
		Side:  SideFromFilename(path),
	}, nil
}

// ToGray returns img as *image.Gray with a zero origin, converting if necessary.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Size returns the frame dimensions.
func (f *Frame) Size() geometry.Size {
	if f == nil || f.Image == nil {
		return geometry.Size{}
	}
	b := f.Image.Bounds()
	return geometry.NewSize(b.Dx(), b.Dy())
}

// SideFromFilename guesses the camera from names like left_01.png or 01R.png.
func SideFromFilename(path string) Side {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	switch {
	case strings.Contains(name, "left"), strings.HasSuffix(name, "l"):
		return SideLeft
	case strings.Contains(name, "right"), strings.HasSuffix(name, "r"):
		return SideRight
	default:
		return SideUnknown
	}
}

// SupportedFormats returns the file extensions Load can decode.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp"}
}

// IsSupportedFormat reports whether path has a decodable extension.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range SupportedFormats() {
		if ext == f {
			return true
		}
	}
	return false
}
