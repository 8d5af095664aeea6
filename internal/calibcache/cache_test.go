package calibcache

import (
	"math/rand"
	"testing"

	"fisheye-stereo/internal/fisheye"
	"fisheye-stereo/internal/fsutil"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/remap"
	"fisheye-stereo/internal/stereo"
	"fisheye-stereo/pkg/geometry"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomMap(size geometry.Size, seed int64) *remap.Map {
	rng := rand.New(rand.NewSource(seed))
	m := remap.New(size)
	for i := range m.X {
		m.X[i] = rng.Float32()*float32(size.Width) - 0.5
		m.Y[i] = rng.Float32()*float32(size.Height) - 0.5
	}
	return m
}

func cameraRecord(side pairimage.Side) *CameraRecord {
	size := geometry.NewSize(64, 48)
	return &CameraRecord{
		Side:      side,
		ImageSize: size,
		Camera: fisheye.Camera{
			K: fisheye.Intrinsics{Fx: 231.123456789, Fy: 229.987654321, Cx: 321.5, Cy: 238.25},
			D: fisheye.Distortion{0.0123, -0.00456, 0.000789, -1.5e-5},
		},
		RMS: 0.314,
		Map:    randomMap(size, 7),
		Frames: []int{1, 3},
		ObjectPoints: [][]r3.Vector{
			{{X: 0, Y: 0}, {X: 2.5, Y: 0}, {X: 0, Y: 2.5}, {X: 2.5, Y: 2.5}},
			{{X: 0, Y: 0}, {X: 2.5, Y: 0}, {X: 0, Y: 2.5}, {X: 2.5, Y: 2.5}},
		},
		ImagePoints: [][]geometry.Point2D{
			{{X: 10.25, Y: 11.5}, {X: 30.125, Y: 12}, {X: 9.75, Y: 31.5}, {X: 29.5, Y: 30.0625}},
			{{X: 15.1, Y: 16.2}, {X: 35.3, Y: 17.4}, {X: 14.5, Y: 36.6}, {X: 34.7, Y: 35.8}},
		},
	}
}

func stereoRecord() *StereoRecord {
	size := geometry.NewSize(64, 48)
	return &StereoRecord{
		ImageSize: size,
		Left:      randomMap(size, 1),
		Right:     randomMap(size, 2),
		Rectification: stereo.Rectification{
			Size: size,
			R1:   geometry.Rodrigues(r3.Vector{X: 0.01, Y: 0.02}),
			R2:   geometry.Rodrigues(r3.Vector{X: -0.01, Y: 0.03}),
			P1:   [3][4]float64{{200, 0, 32, 0}, {0, 200, 24, 0}, {0, 0, 1, 0}},
			P2:   [3][4]float64{{200, 0, 32, -1200}, {0, 200, 24, 0}, {0, 0, 1, 0}},
			Q:    [4][4]float64{{1, 0, 0, -32}, {0, 1, 0, -24}, {0, 0, 0, 200}, {0, 0, 1.0 / 6, 0}},
		},
		Rotation:    geometry.Rodrigues(r3.Vector{Y: -0.03}),
		Translation: r3.Vector{X: -6, Y: 0.1, Z: 0.05},
		RMS:         0.42,
		Model:       stereo.ModelPinhole,
	}
}

func TestCameraRoundTripIsBitIdentical(t *testing.T) {
	cache := New(fsutil.NewMemoryFileSystem(), "/calibration_data")
	for _, side := range []pairimage.Side{pairimage.SideLeft, pairimage.SideRight} {
		rec := cameraRecord(side)
		require.NoError(t, cache.SaveCamera(rec))

		got, err := cache.LoadCamera(48, side)
		require.NoError(t, err)
		if diff := cmp.Diff(rec, got); diff != "" {
			t.Errorf("camera record mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestCameraPathLayout(t *testing.T) {
	cache := New(fsutil.NewMemoryFileSystem(), "calibration_data")
	assert.Equal(t, "calibration_data/480p/camera_calibration_left.cbor", cache.CameraPath(480, pairimage.SideLeft))
	assert.Equal(t, "calibration_data/240p/stereo_camera_calibration.cbor.zst", cache.StereoPath(240))
}

func TestSaveCameraOverwrites(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cache := New(mfs, "/c")
	rec := cameraRecord(pairimage.SideLeft)
	require.NoError(t, cache.SaveCamera(rec))

	rec.RMS = 0.1
	require.NoError(t, cache.SaveCamera(rec))

	got, err := cache.LoadCamera(48, pairimage.SideLeft)
	require.NoError(t, err)
	assert.Equal(t, 0.1, got.RMS)
	assert.Len(t, mfs.Files(), 1)
}

func TestSaveCameraRequiresSide(t *testing.T) {
	cache := New(fsutil.NewMemoryFileSystem(), "/c")
	assert.Error(t, cache.SaveCamera(cameraRecord(pairimage.SideUnknown)))
}

func TestLoadCameraMissing(t *testing.T) {
	cache := New(fsutil.NewMemoryFileSystem(), "/c")
	_, err := cache.LoadCamera(480, pairimage.SideLeft)
	assert.ErrorIs(t, err, ErrNotFound)
}

// rewrite re-encodes the record at path after edit has changed its fields.
func rewrite(t *testing.T, mfs *fsutil.MemoryFileSystem, path string, edit func(map[string]cbor.RawMessage)) {
	t.Helper()
	data, err := mfs.ReadFile(path)
	require.NoError(t, err)
	var fields map[string]cbor.RawMessage
	require.NoError(t, cbor.Unmarshal(data, &fields))
	edit(fields)
	data, err = cbor.Marshal(fields)
	require.NoError(t, err)
	require.NoError(t, mfs.WriteFile(path, data, 0o644))
}

func TestLoadCameraCorrupt(t *testing.T) {
	tests := []struct {
		name string
		edit func(map[string]cbor.RawMessage)
	}{
		{"missing map2", func(f map[string]cbor.RawMessage) { delete(f, "map2") }},
		{"missing imgpoints", func(f map[string]cbor.RawMessage) { delete(f, "imgpoints") }},
		{"missing camera_matrix", func(f map[string]cbor.RawMessage) { delete(f, "camera_matrix") }},
		{"missing frames", func(f map[string]cbor.RawMessage) { delete(f, "frames") }},
		{"frames short of views", func(f map[string]cbor.RawMessage) {
			v, _ := cbor.Marshal([]int{1})
			f["frames"] = v
		}},
		{"old version", func(f map[string]cbor.RawMessage) {
			v, _ := cbor.Marshal(0)
			f["version"] = v
		}},
		{"wrong kind", func(f map[string]cbor.RawMessage) {
			v, _ := cbor.Marshal(kindStereo)
			f["kind"] = v
		}},
		{"truncated map", func(f map[string]cbor.RawMessage) {
			v, _ := cbor.Marshal(grid{Width: 64, Height: 48, Data: []float32{1, 2, 3}})
			f["map1"] = v
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mfs := fsutil.NewMemoryFileSystem()
			cache := New(mfs, "/c")
			require.NoError(t, cache.SaveCamera(cameraRecord(pairimage.SideLeft)))
			rewrite(t, mfs, cache.CameraPath(48, pairimage.SideLeft), tt.edit)

			_, err := cache.LoadCamera(48, pairimage.SideLeft)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestCheckPair(t *testing.T) {
	left, right := cameraRecord(pairimage.SideLeft), cameraRecord(pairimage.SideRight)
	require.NoError(t, CheckPair(left, right))

	right.Frames = []int{1, 4}
	assert.ErrorIs(t, CheckPair(left, right), ErrCorrupt)

	right = cameraRecord(pairimage.SideRight)
	right.ObjectPoints[1][3] = r3.Vector{X: 3, Y: 3}
	assert.ErrorIs(t, CheckPair(left, right), ErrCorrupt)

	right = cameraRecord(pairimage.SideRight)
	right.ObjectPoints = right.ObjectPoints[:1]
	assert.ErrorIs(t, CheckPair(left, right), ErrCorrupt)
}

func TestLoadCameraGarbage(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cache := New(mfs, "/c")
	require.NoError(t, mfs.WriteFile(cache.CameraPath(48, pairimage.SideRight), []byte("not cbor"), 0o644))
	_, err := cache.LoadCamera(48, pairimage.SideRight)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStereoRoundTrip(t *testing.T) {
	cache := New(fsutil.NewMemoryFileSystem(), "/c")
	rec := stereoRecord()
	require.NoError(t, cache.SaveStereo(rec))

	got, err := cache.LoadStereo(48)
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("stereo record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, rec.Left, got.Maps().Left)
}

func TestLoadStereoMissing(t *testing.T) {
	cache := New(fsutil.NewMemoryFileSystem(), "/c")
	_, err := cache.LoadStereo(240)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadStereoCorrupt(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cache := New(mfs, "/c")
	require.NoError(t, mfs.WriteFile(cache.StereoPath(48), []byte("garbage"), 0o644))
	_, err := cache.LoadStereo(48)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoadStereoMissingField(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cache := New(mfs, "/c")
	require.NoError(t, cache.SaveStereo(stereoRecord()))

	path := cache.StereoPath(48)
	compressed, err := mfs.ReadFile(path)
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	raw, err := dec.DecodeAll(compressed, nil)
	dec.Close()
	require.NoError(t, err)

	var fields map[string]cbor.RawMessage
	require.NoError(t, cbor.Unmarshal(raw, &fields))
	delete(fields, "rightMapY")
	raw, err = cbor.Marshal(fields)
	require.NoError(t, err)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	require.NoError(t, mfs.WriteFile(path, enc.EncodeAll(raw, nil), 0o644))
	enc.Close()

	_, err = cache.LoadStereo(48)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSaveStereoFailedWriteKeepsPrevious(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cache := New(mfs, "/c")
	first := stereoRecord()
	require.NoError(t, cache.SaveStereo(first))

	mfs.FailRename = true
	second := stereoRecord()
	second.RMS = 9
	assert.Error(t, cache.SaveStereo(second))

	got, err := cache.LoadStereo(48)
	require.NoError(t, err)
	assert.Equal(t, first.RMS, got.RMS)
}
