package app

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"log"
	"math/rand"
	"testing"

	"fisheye-stereo/internal/calibcache"
	"fisheye-stereo/internal/config"
	"fisheye-stereo/internal/disparity"
	"fisheye-stereo/internal/fsutil"
	"fisheye-stereo/internal/remap"
	"fisheye-stereo/internal/tuning"
	"fisheye-stereo/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sceneW = 200
	sceneH = 40
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Paths.CacheDir = "cache"
	cfg.Paths.SettingsFile = "3dmap_set.txt"
	cfg.Tuner = config.TunerConfig{Width: sceneW, Height: sceneH}
	return cfg
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// writeScene stores a textured pair whose right view is the left shifted by 6 pixels.
func writeScene(t *testing.T, fsys fsutil.FileSystem) {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	left := image.NewGray(image.Rect(0, 0, sceneW, sceneH))
	for i := range left.Pix {
		left.Pix[i] = uint8(rng.Intn(256))
	}
	right := image.NewGray(left.Bounds())
	for y := 0; y < sceneH; y++ {
		for x := 0; x < sceneW; x++ {
			if x+6 < sceneW {
				right.SetGray(x, y, left.GrayAt(x+6, y))
			} else {
				right.Pix[y*right.Stride+x] = uint8(rng.Intn(256))
			}
		}
	}
	require.NoError(t, fsys.WriteFile("scene/01L.png", encodePNG(t, left), 0o644))
	require.NoError(t, fsys.WriteFile("scene/01R.png", encodePNG(t, right), 0o644))
}

func writeRecord(t *testing.T, cache *calibcache.Cache, shift float64) {
	t.Helper()
	size := geometry.NewSize(sceneW, sceneH)
	left := remap.New(size)
	for y := 0; y < sceneH; y++ {
		for x := 0; x < sceneW; x++ {
			left.Set(x, y, float64(x)+shift, float64(y))
		}
	}
	rec := &calibcache.StereoRecord{
		ImageSize: size,
		Left:      left,
		Right:     remap.Identity(size),
		Rotation:  geometry.Identity3(),
	}
	rec.Rectification.Size = size
	require.NoError(t, cache.SaveStereo(rec))
}

type recorder struct {
	events map[EventType][]interface{}
}

func record(s *State) *recorder {
	r := &recorder{events: make(map[EventType][]interface{})}
	for _, ev := range []EventType{EventSceneLoaded, EventDisparityUpdated, EventSettingsSaved, EventSettingsLoaded, EventCalibrationChanged, EventError} {
		ev := ev
		s.On(ev, func(data interface{}) {
			r.events[ev] = append(r.events[ev], data)
		})
	}
	return r
}

func newTestState(t *testing.T) (*State, *fsutil.MemoryFileSystem) {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	s := NewState(testConfig(), fsys)
	s.Logger = log.New(io.Discard, "", 0)
	s.Cache.Logger = s.Logger
	writeScene(t, fsys)
	writeRecord(t, s.Cache, 0)
	return s, fsys
}

func TestLoadScene(t *testing.T) {
	s, _ := newTestState(t)
	r := record(s)

	require.NoError(t, s.LoadScene("scene/01L.png", "scene/01R.png"))

	sess := s.Session()
	require.NotNil(t, sess)
	assert.Equal(t, tuning.StateIdle, sess.State())
	require.NotNil(t, sess.Last())
	assert.Len(t, r.events[EventDisparityUpdated], 1)
	require.Len(t, r.events[EventSceneLoaded], 1)
	assert.Same(t, sess, r.events[EventSceneLoaded][0])
	assert.Empty(t, r.events[EventError])

	raw, err := s.readGray("scene/01L.png")
	require.NoError(t, err)
	assert.Equal(t, raw.Pix, sess.Left().Pix)
	assert.Equal(t, "scene/01L.png", s.LeftPath)
}

func TestLoadSceneWithoutCalibration(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeScene(t, fsys)
	s := NewState(testConfig(), fsys)

	err := s.LoadScene("scene/01L.png", "scene/01R.png")
	assert.ErrorIs(t, err, calibcache.ErrNotFound)
	assert.Nil(t, s.Session())
}

func TestLoadSceneMissingImage(t *testing.T) {
	s, _ := newTestState(t)
	assert.Error(t, s.LoadScene("scene/02L.png", "scene/02R.png"))
	assert.Nil(t, s.Session())
}

func TestOperationsWithoutScene(t *testing.T) {
	s := NewState(testConfig(), fsutil.NewMemoryFileSystem())
	assert.ErrorIs(t, s.SetValue("SADWindowSize", 9), ErrNoScene)
	assert.ErrorIs(t, s.SaveSettings(), ErrNoScene)
	assert.ErrorIs(t, s.LoadSettings(), ErrNoScene)
	assert.ErrorIs(t, s.ReloadCalibration(), ErrNoScene)
}

func TestSettingsRoundTrip(t *testing.T) {
	s, fsys := newTestState(t)
	require.NoError(t, s.LoadScene("scene/01L.png", "scene/01R.png"))
	r := record(s)

	require.NoError(t, s.SetValue("SADWindowSize", 8))
	assert.Equal(t, 9, s.Session().Params().SADWindowSize)
	assert.Len(t, r.events[EventDisparityUpdated], 1)

	require.NoError(t, s.SaveSettings())
	assert.Equal(t, []interface{}{"3dmap_set.txt"}, r.events[EventSettingsSaved])
	assert.True(t, fsys.Exists("3dmap_set.txt"))

	require.NoError(t, s.SetValue("SADWindowSize", 21))
	require.NoError(t, s.LoadSettings())
	require.Len(t, r.events[EventSettingsLoaded], 1)
	loaded := r.events[EventSettingsLoaded][0].(disparity.Params)
	assert.Equal(t, 9, loaded.SADWindowSize)
	assert.Equal(t, 9, s.Session().Params().SADWindowSize)
	assert.Len(t, r.events[EventDisparityUpdated], 3)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.LoadScene("scene/01L.png", "scene/01R.png"))
	r := record(s)
	before := s.Session().Params()

	err := s.LoadSettings()
	assert.ErrorIs(t, err, tuning.ErrNoSettings)
	require.Len(t, r.events[EventError], 1)
	assert.Equal(t, before, s.Session().Params())
}

func TestReloadCalibrationKeepsParams(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.LoadScene("scene/01L.png", "scene/01R.png"))
	require.NoError(t, s.SetValue("uniquenessRatio", 4))
	old := s.Session()
	r := record(s)

	writeRecord(t, s.Cache, 1)
	s.MarkCalibrationChanged()
	assert.True(t, s.CalibrationStale())
	assert.Equal(t, []interface{}{s.Cache.StereoPath(sceneH)}, r.events[EventCalibrationChanged])

	require.NoError(t, s.ReloadCalibration())
	assert.False(t, s.CalibrationStale())
	assert.NotSame(t, old, s.Session())
	assert.Equal(t, 4, s.Session().Params().UniquenessRatio)
	assert.NotEqual(t, old.Left().Pix, s.Session().Left().Pix)
	assert.Len(t, r.events[EventSceneLoaded], 1)
}

func TestSetRectifiedPair(t *testing.T) {
	s := NewState(testConfig(), fsutil.NewMemoryFileSystem())
	s.Logger = log.New(io.Discard, "", 0)
	r := record(s)

	small := image.NewGray(image.Rect(0, 0, 4, 4))
	require.NoError(t, s.SetRectifiedPair(small, small))
	assert.NotNil(t, s.Session())
	assert.Len(t, r.events[EventError], 1)
	assert.Len(t, r.events[EventSceneLoaded], 1)

	assert.Error(t, s.SetRectifiedPair(small, image.NewGray(image.Rect(0, 0, 5, 4))))
}
