package config

import (
	"os"
	"path/filepath"
	"testing"

	"fisheye-stereo/internal/fisheye"
	"fisheye-stereo/internal/stereo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Pattern.Rows)
	assert.Equal(t, 9, cfg.Pattern.Columns)
	assert.Equal(t, 640, cfg.Image.Width)
	assert.Equal(t, 480, cfg.Image.Height)
	assert.Equal(t, 240, cfg.Tuner.Height)
	assert.Equal(t, "./scenes/01L.png", cfg.Paths.SceneLeft())
	assert.Equal(t, "./scenes/01R.png", cfg.Paths.SceneRight())
	assert.Equal(t, "3dmap_set.txt", cfg.Paths.SettingsFile)
	assert.Equal(t, stereo.ModelFisheye, cfg.Stereo.Model)
	assert.Zero(t, cfg.Stereo.Balance)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, "rig.json", `{
		"image": {"width": 1280, "height": 720},
		"stereo": {"model": "pinhole", "balance": 0.5},
		"calibration": {"fix_skew": false}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Image.Width)
	assert.Equal(t, 720, cfg.Image.Height)
	assert.Equal(t, stereo.ModelPinhole, cfg.Stereo.Model)
	assert.Equal(t, 0.5, cfg.Stereo.Balance)
	assert.Equal(t, 30, cfg.Stereo.MaxIter)
	assert.Equal(t, 9, cfg.Pattern.Columns)

	opts := cfg.FisheyeOptions()
	assert.Zero(t, opts.Flags&fisheye.CalibFixSkew)
	assert.NotZero(t, opts.Flags&fisheye.CalibRecomputeExtrinsic)
	assert.Equal(t, 0.5, cfg.RectifyOptions().Balance)
	assert.Equal(t, stereo.ModelPinhole, cfg.StereoOptions().Model)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"extension", "rig.yaml", `{}`},
		{"syntax", "rig.json", `{"image":`},
		{"unknown model", "rig.json", `{"stereo": {"model": "orthographic"}}`},
		{"bad size", "rig.json", `{"image": {"width": 0}}`},
		{"bad balance", "rig.json", `{"stereo": {"balance": 2}}`},
		{"bad pattern", "rig.json", `{"pattern": {"rows": 1}}`},
		{"too few frames", "rig.json", `{"calibration": {"min_frames": 1}}`},
		{"too many pairs", "rig.json", `{"calibration": {"max_pairs": 101}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
