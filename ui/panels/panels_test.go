package panels

import (
	"image"
	"io"
	"log"
	"math/rand"
	"strings"
	"testing"

	"fisheye-stereo/internal/app"
	"fisheye-stereo/internal/config"
	"fisheye-stereo/internal/fsutil"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T) (*app.State, *fsutil.MemoryFileSystem) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.SettingsFile = "3dmap_set.txt"
	fsys := fsutil.NewMemoryFileSystem()
	st := app.NewState(cfg, fsys)
	st.Logger = log.New(io.Discard, "", 0)

	rng := rand.New(rand.NewSource(11))
	left := image.NewGray(image.Rect(0, 0, 200, 40))
	for i := range left.Pix {
		left.Pix[i] = uint8(rng.Intn(256))
	}
	right := image.NewGray(left.Bounds())
	for y := 0; y < 40; y++ {
		for x := 0; x < 200; x++ {
			right.SetGray(x, y, left.GrayAt((x+4)%200, y))
		}
	}
	require.NoError(t, st.SetRectifiedPair(left, right))
	return st, fsys
}

func countEvents(st *app.State, ev app.EventType) *int {
	n := new(int)
	st.On(ev, func(interface{}) { *n++ })
	return n
}

func TestTuningPanelStartsAtSessionParams(t *testing.T) {
	test.NewApp()
	st, _ := newState(t)
	tp := NewTuningPanel(st)

	assert.Equal(t, "5", tp.Value("SADWindowSize"))
	assert.Equal(t, -25.0, tp.Slider("minDisparity").Value)
	assert.Equal(t, 128.0, tp.Slider("numberOfDisparities").Value)
	assert.Nil(t, tp.Slider("blockSize"))
	assert.Contains(t, tp.String(), "SWS=5")
}

func TestSliderChangeRecomputes(t *testing.T) {
	test.NewApp()
	st, _ := newState(t)
	tp := NewTuningPanel(st)
	updates := countEvents(st, app.EventDisparityUpdated)

	tp.Slider("SADWindowSize").OnChanged(12)
	assert.Equal(t, "13", tp.Value("SADWindowSize"))
	assert.Equal(t, 13, st.Session().Params().SADWindowSize)
	assert.Equal(t, 1, *updates)

	tp.Slider("numberOfDisparities").OnChanged(70)
	assert.Equal(t, "64", tp.Value("numberOfDisparities"))
	assert.Equal(t, 64, st.Session().Params().NumberOfDisparities)
	assert.Equal(t, 2, *updates)
}

func TestSyncDoesNotRecompute(t *testing.T) {
	test.NewApp()
	st, _ := newState(t)
	tp := NewTuningPanel(st)
	updates := countEvents(st, app.EventDisparityUpdated)

	p := st.Session().Params()
	p.SADWindowSize = 21
	tp.Sync(p)

	assert.Equal(t, 21.0, tp.Slider("SADWindowSize").Value)
	assert.Equal(t, "21", tp.Value("SADWindowSize"))
	assert.Equal(t, 5, st.Session().Params().SADWindowSize)
	assert.Equal(t, 0, *updates)
}

func TestSaveAndLoadButtons(t *testing.T) {
	test.NewApp()
	st, fsys := newState(t)
	tp := NewTuningPanel(st)

	test.Tap(tp.saveButton)
	assert.True(t, fsys.Exists("3dmap_set.txt"))

	tp.Slider("SADWindowSize").OnChanged(31)
	assert.Equal(t, "31", tp.Value("SADWindowSize"))

	updates := countEvents(st, app.EventDisparityUpdated)
	test.Tap(tp.loadButton)
	assert.Equal(t, 5.0, tp.Slider("SADWindowSize").Value)
	assert.Equal(t, "5", tp.Value("SADWindowSize"))
	assert.Equal(t, 5, st.Session().Params().SADWindowSize)
	assert.Equal(t, 1, *updates)
}

func TestLoadButtonWithoutFileReportsError(t *testing.T) {
	test.NewApp()
	st, _ := newState(t)
	tp := NewTuningPanel(st)
	errs := countEvents(st, app.EventError)

	test.Tap(tp.loadButton)
	assert.Equal(t, 1, *errs)
}

func TestInfoPanel(t *testing.T) {
	test.NewApp()
	st, _ := newState(t)
	ip := NewInfoPanel(st)

	calib, depth := ip.Text()
	assert.Equal(t, "No calibration", calib)
	assert.True(t, strings.HasPrefix(depth, "valid "), depth)
	assert.Contains(t, depth, "range")

	require.NoError(t, st.SetValue("textureThreshold", 1000))
	require.NoError(t, st.SetValue("uniquenessRatio", 20))
	_, after := ip.Text()
	assert.Contains(t, after, "computed in")
}
