// Package config holds the calibration and tuning configuration shared by the binaries.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fisheye-stereo/internal/fisheye"
	"fisheye-stereo/internal/pattern"
	"fisheye-stereo/internal/stereo"
	"fisheye-stereo/internal/tuning"
	"fisheye-stereo/pkg/geometry"
)

// DefaultPath is the configuration file looked up when no -config flag is given.
const DefaultPath = "calibration.json"

const maxFileSize = 1 << 20

// ImageConfig is the resolution calibration images are processed at.
type ImageConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Size returns the configured resolution.
func (c ImageConfig) Size() geometry.Size {
	return geometry.NewSize(c.Width, c.Height)
}

// PathsConfig locates inputs and outputs.
type PathsConfig struct {
	PairsDir     string `json:"pairs_dir"`
	CacheDir     string `json:"cache_dir"`
	ScenePrefix  string `json:"scene_prefix"`
	SettingsFile string `json:"settings_file"`
	OutputDir    string `json:"output_dir"`
}

// SceneLeft is the left tuning photograph.
func (c PathsConfig) SceneLeft() string { return c.ScenePrefix + "L.png" }

// SceneRight is the right tuning photograph.
func (c PathsConfig) SceneRight() string { return c.ScenePrefix + "R.png" }

// CalibrationConfig controls the per-camera fits and the input scan.
type CalibrationConfig struct {
	MaxIter            int     `json:"max_iter"`
	Epsilon            float64 `json:"epsilon"`
	FixSkew            bool    `json:"fix_skew"`
	RecomputeExtrinsic bool    `json:"recompute_extrinsic"`
	MinFrames          int     `json:"min_frames"`
	MaxPairs           int     `json:"max_pairs"`
}

// StereoConfig controls the joint fit and rectification.
type StereoConfig struct {
	Model         stereo.Model `json:"model"`
	MaxIter       int          `json:"max_iter"`
	Epsilon       float64      `json:"epsilon"`
	Balance       float64      `json:"balance"`
	FovScale      float64      `json:"fov_scale"`
	ZeroDisparity bool         `json:"zero_disparity"`
}

// TunerConfig is the resolution of the tuning scene.
type TunerConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Config is the whole configuration document.
type Config struct {
	Pattern     pattern.Pattern       `json:"pattern"`
	Image       ImageConfig           `json:"image"`
	Paths       PathsConfig           `json:"paths"`
	SubPix      pattern.SubPixOptions `json:"subpix"`
	Calibration CalibrationConfig     `json:"calibration"`
	Stereo      StereoConfig          `json:"stereo"`
	Tuner       TunerConfig           `json:"tuner"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cal := fisheye.DefaultOptions()
	st := stereo.DefaultOptions()
	rect := stereo.DefaultRectifyOptions()
	return &Config{
		Pattern: pattern.Default(),
		Image:   ImageConfig{Width: 640, Height: 480},
		Paths: PathsConfig{
			PairsDir:     "./new_pairs",
			CacheDir:     "./calibration_data",
			ScenePrefix:  "./scenes/01",
			SettingsFile: tuning.SettingsFile,
			OutputDir:    ".",
		},
		SubPix: pattern.DefaultSubPixOptions(),
		Calibration: CalibrationConfig{
			MaxIter:            cal.MaxIter,
			Epsilon:            cal.Epsilon,
			FixSkew:            true,
			RecomputeExtrinsic: true,
			MinFrames:          fisheye.MinFrames,
			MaxPairs:           100,
		},
		Stereo: StereoConfig{
			Model:         st.Model,
			MaxIter:       st.MaxIter,
			Epsilon:       st.Epsilon,
			Balance:       rect.Balance,
			FovScale:      rect.FovScale,
			ZeroDisparity: rect.ZeroDisparity,
		},
		Tuner: TunerConfig{Width: 640, Height: 240},
	}
}

// Load overlays the JSON document at path on Default and validates the result. A missing
// file at DefaultPath yields the defaults; any other missing path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(clean)
	if errors.Is(err, os.ErrNotExist) && clean == DefaultPath {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values no stage can run with.
func (c *Config) Validate() error {
	if err := c.Pattern.Validate(); err != nil {
		return err
	}
	if c.Image.Width <= 0 || c.Image.Height <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.Image.Width, c.Image.Height)
	}
	if c.Tuner.Width <= 0 || c.Tuner.Height <= 0 {
		return fmt.Errorf("tuner size must be positive, got %dx%d", c.Tuner.Width, c.Tuner.Height)
	}
	if c.Paths.PairsDir == "" || c.Paths.CacheDir == "" {
		return errors.New("pairs_dir and cache_dir are required")
	}
	if c.SubPix.Window <= 0 || c.SubPix.MaxIter <= 0 || c.SubPix.Epsilon <= 0 {
		return fmt.Errorf("subpix window, max_iter and epsilon must be positive")
	}
	if c.Calibration.MaxIter <= 0 || c.Calibration.Epsilon <= 0 {
		return fmt.Errorf("calibration max_iter and epsilon must be positive")
	}
	if c.Calibration.MinFrames < fisheye.MinFrames {
		return fmt.Errorf("calibration min_frames must be at least %d, got %d", fisheye.MinFrames, c.Calibration.MinFrames)
	}
	if c.Calibration.MaxPairs < 1 || c.Calibration.MaxPairs > 100 {
		return fmt.Errorf("calibration max_pairs must be in [1,100], got %d", c.Calibration.MaxPairs)
	}
	if c.Stereo.MaxIter <= 0 || c.Stereo.Epsilon <= 0 {
		return fmt.Errorf("stereo max_iter and epsilon must be positive")
	}
	if c.Stereo.Balance < 0 || c.Stereo.Balance > 1 {
		return fmt.Errorf("stereo balance must be in [0,1], got %g", c.Stereo.Balance)
	}
	if c.Stereo.FovScale <= 0 {
		return fmt.Errorf("stereo fov_scale must be positive, got %g", c.Stereo.FovScale)
	}
	return nil
}

// FisheyeOptions converts the calibration section.
func (c *Config) FisheyeOptions() fisheye.Options {
	opts := fisheye.DefaultOptions()
	opts.Flags = 0
	if c.Calibration.FixSkew {
		opts.Flags |= fisheye.CalibFixSkew
	}
	if c.Calibration.RecomputeExtrinsic {
		opts.Flags |= fisheye.CalibRecomputeExtrinsic
	}
	opts.MaxIter = c.Calibration.MaxIter
	opts.Epsilon = c.Calibration.Epsilon
	opts.MinFrames = c.Calibration.MinFrames
	return opts
}

// StereoOptions converts the stereo section's fit settings.
func (c *Config) StereoOptions() stereo.Options {
	opts := stereo.DefaultOptions()
	opts.Model = c.Stereo.Model
	opts.MaxIter = c.Stereo.MaxIter
	opts.Epsilon = c.Stereo.Epsilon
	return opts
}

// RectifyOptions converts the stereo section's rectification settings.
func (c *Config) RectifyOptions() stereo.RectifyOptions {
	return stereo.RectifyOptions{
		Balance:       c.Stereo.Balance,
		FovScale:      c.Stereo.FovScale,
		ZeroDisparity: c.Stereo.ZeroDisparity,
	}
}
