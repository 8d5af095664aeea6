// Package disparity computes block-matching disparity maps from rectified grayscale pairs.
package disparity

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is returned for parameter sets the matcher cannot run with.
var ErrInvalidParams = errors.New("disparity: invalid parameters")

// Scale is the fixed-point factor of disparity values (4 fractional bits).
const Scale = 16

// PreFilterType selects how images are normalised before matching.
type PreFilterType int

const (
	// PreFilterNormalizedResponse subtracts the local mean over a PreFilterSize window.
	PreFilterNormalizedResponse PreFilterType = iota
	// PreFilterXSobel uses the horizontal Sobel derivative.
	PreFilterXSobel
)

// Params are the block matcher settings. JSON names match the settings file.
type Params struct {
	SADWindowSize       int `json:"SADWindowSize"`
	PreFilterSize       int `json:"preFilterSize"`
	PreFilterCap        int `json:"preFilterCap"`
	MinDisparity        int `json:"minDisparity"`
	NumberOfDisparities int `json:"numberOfDisparities"`
	TextureThreshold    int `json:"textureThreshold"`
	UniquenessRatio     int `json:"uniquenessRatio"`
	SpeckleRange        int `json:"speckleRange"`
	SpeckleWindowSize   int `json:"speckleWindowSize"`

	PreFilterType PreFilterType `json:"-"`
}

// DefaultParams returns the interactive tuner's starting values.
func DefaultParams() Params {
	return Params{
		SADWindowSize:       5,
		PreFilterSize:       5,
		PreFilterCap:        29,
		MinDisparity:        -25,
		NumberOfDisparities: 128,
		TextureThreshold:    100,
		UniquenessRatio:     10,
		SpeckleRange:        15,
		SpeckleWindowSize:   100,
		PreFilterType:       PreFilterXSobel,
	}
}

// Invalid is the fixed-point value marking pixels without a disparity.
func (p Params) Invalid() int16 {
	return int16((p.MinDisparity - 1) * Scale)
}

// Validate checks the parameters alone; image-dependent limits are checked by Compute.
func (p Params) Validate() error {
	switch {
	case p.SADWindowSize < 5 || p.SADWindowSize > 255 || p.SADWindowSize%2 == 0:
		return fmt.Errorf("%w: SADWindowSize must be odd in [5,255], got %d", ErrInvalidParams, p.SADWindowSize)
	case p.PreFilterSize < 5 || p.PreFilterSize > 255 || p.PreFilterSize%2 == 0:
		return fmt.Errorf("%w: preFilterSize must be odd in [5,255], got %d", ErrInvalidParams, p.PreFilterSize)
	case p.PreFilterCap < 1 || p.PreFilterCap > 63:
		return fmt.Errorf("%w: preFilterCap must be in [1,63], got %d", ErrInvalidParams, p.PreFilterCap)
	case p.NumberOfDisparities <= 0 || p.NumberOfDisparities%16 != 0:
		return fmt.Errorf("%w: numberOfDisparities must be a positive multiple of 16, got %d", ErrInvalidParams, p.NumberOfDisparities)
	case p.TextureThreshold < 0:
		return fmt.Errorf("%w: textureThreshold must be non-negative, got %d", ErrInvalidParams, p.TextureThreshold)
	case p.UniquenessRatio < 0:
		return fmt.Errorf("%w: uniquenessRatio must be non-negative, got %d", ErrInvalidParams, p.UniquenessRatio)
	case p.SpeckleRange < 0 || p.SpeckleWindowSize < 0:
		return fmt.Errorf("%w: speckle settings must be non-negative, got range %d window %d", ErrInvalidParams, p.SpeckleRange, p.SpeckleWindowSize)
	case p.PreFilterType != PreFilterNormalizedResponse && p.PreFilterType != PreFilterXSobel:
		return fmt.Errorf("%w: unknown pre-filter type %d", ErrInvalidParams, p.PreFilterType)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("SWS=%d PFS=%d PFC=%d MDS=%d NOD=%d TTH=%d UR=%d SR=%d SPWS=%d",
		p.SADWindowSize, p.PreFilterSize, p.PreFilterCap, p.MinDisparity, p.NumberOfDisparities,
		p.TextureThreshold, p.UniquenessRatio, p.SpeckleRange, p.SpeckleWindowSize)
}
