// Package calibcache stores per-camera calibrations and the stereo rectification artifact
// on disk, keyed by vertical resolution. It is a memoization layer: a save replaces the
// previous record for the same key.
package calibcache

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"slices"

	"fisheye-stereo/internal/fsutil"
	pairimage "fisheye-stereo/internal/image"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrNotFound is returned when no record exists for the requested key.
	ErrNotFound = errors.New("calibcache: record not found")
	// ErrCorrupt is returned when a record exists but cannot be trusted.
	ErrCorrupt = errors.New("calibcache: corrupt record")
)

const stereoFile = "stereo_camera_calibration.cbor.zst"

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("calibcache: cbor encoder: %v", err))
	}
	encMode = em
}

// Cache reads and writes calibration records under Dir.
type Cache struct {
	FS     fsutil.FileSystem
	Dir    string
	Logger *log.Logger
}

// New creates a cache rooted at dir on fsys.
func New(fsys fsutil.FileSystem, dir string) *Cache {
	return &Cache{FS: fsys, Dir: dir}
}

func (c *Cache) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}

func (c *Cache) resolutionDir(height int) string {
	return filepath.Join(c.Dir, fmt.Sprintf("%dp", height))
}

// CameraPath returns the file holding one side's calibration at the given height.
func (c *Cache) CameraPath(height int, side pairimage.Side) string {
	return filepath.Join(c.resolutionDir(height), fmt.Sprintf("camera_calibration_%s.cbor", side))
}

// StereoPath returns the file holding the stereo artifact at the given height.
func (c *Cache) StereoPath(height int) string {
	return filepath.Join(c.resolutionDir(height), stereoFile)
}

// SaveCamera writes rec, replacing any previous record for its side and height.
func (c *Cache) SaveCamera(rec *CameraRecord) error {
	if rec.Side != pairimage.SideLeft && rec.Side != pairimage.SideRight {
		return fmt.Errorf("calibcache: camera record needs a side, got %s", rec.Side)
	}
	if err := rec.Map.Validate(); err != nil {
		return fmt.Errorf("calibcache: %w", err)
	}
	data, err := encMode.Marshal(rec.wire())
	if err != nil {
		return fmt.Errorf("failed to encode camera record: %w", err)
	}
	path := c.CameraPath(rec.ImageSize.Height, rec.Side)
	if err := fsutil.WriteFileAtomic(c.FS, path, data, 0o644); err != nil {
		return err
	}
	c.logf("calibcache: wrote %s (%d bytes)", path, len(data))
	return nil
}

// LoadCamera reads one side's calibration.
func (c *Cache) LoadCamera(height int, side pairimage.Side) (*CameraRecord, error) {
	path := c.CameraPath(height, side)
	data, err := c.read(path)
	if err != nil {
		return nil, err
	}

	var w cameraWire
	if err := decodeRecord(data, kindCamera, cameraFields, &w); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec := w.record()
	if !sameShape(w.Map1, w.Map2) {
		return nil, fmt.Errorf("%s: %w: map1/map2 shapes differ", path, ErrCorrupt)
	}
	if err := rec.Map.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
	}
	if len(rec.ObjectPoints) != len(rec.ImagePoints) || len(rec.Frames) != len(rec.ObjectPoints) {
		return nil, fmt.Errorf("%s: %w: %d frames, %d object and %d image views", path, ErrCorrupt,
			len(rec.Frames), len(rec.ObjectPoints), len(rec.ImagePoints))
	}
	if rec.Side != side {
		return nil, fmt.Errorf("%s: %w: record is for side %q", path, ErrCorrupt, w.Side)
	}
	return rec, nil
}

// CheckPair reports whether two camera records were fitted from the same frames with the
// same pattern, which the stereo fit relies on to pair their views. A mismatch means one
// side is stale and is reported as ErrCorrupt.
func CheckPair(left, right *CameraRecord) error {
	if !slices.Equal(left.Frames, right.Frames) {
		return fmt.Errorf("%w: left record has frames %v, right record has %v", ErrCorrupt, left.Frames, right.Frames)
	}
	if len(left.ObjectPoints) != len(right.ObjectPoints) {
		return fmt.Errorf("%w: left record has %d views, right record has %d", ErrCorrupt, len(left.ObjectPoints), len(right.ObjectPoints))
	}
	for i := range left.ObjectPoints {
		if !slices.Equal(left.ObjectPoints[i], right.ObjectPoints[i]) {
			return fmt.Errorf("%w: object points of frame %d differ between sides", ErrCorrupt, left.Frames[i])
		}
	}
	return nil
}

// SaveStereo writes the stereo artifact as a single compressed file.
func (c *Cache) SaveStereo(rec *StereoRecord) error {
	if err := rec.Left.Validate(); err != nil {
		return fmt.Errorf("calibcache: left map: %w", err)
	}
	if err := rec.Right.Validate(); err != nil {
		return fmt.Errorf("calibcache: right map: %w", err)
	}
	raw, err := encMode.Marshal(rec.wire())
	if err != nil {
		return fmt.Errorf("failed to encode stereo record: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	data := enc.EncodeAll(raw, nil)
	enc.Close()

	path := c.StereoPath(rec.ImageSize.Height)
	if err := fsutil.WriteFileAtomic(c.FS, path, data, 0o644); err != nil {
		return err
	}
	c.logf("calibcache: wrote %s (%d bytes, %d uncompressed)", path, len(data), len(raw))
	return nil
}

// LoadStereo reads the stereo artifact for the given height.
func (c *Cache) LoadStereo(height int) (*StereoRecord, error) {
	path := c.StereoPath(height)
	data, err := c.read(path)
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
	}

	var w stereoWire
	if err := decodeRecord(raw, kindStereo, stereoFields, &w); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !sameShape(w.LeftMapX, w.LeftMapY) || !sameShape(w.RightMapX, w.RightMapY) || !sameShape(w.LeftMapX, w.RightMapX) {
		return nil, fmt.Errorf("%s: %w: map shapes differ", path, ErrCorrupt)
	}
	rec, err := w.record()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
	}
	for _, m := range []struct {
		name string
		err  error
	}{{"left", rec.Left.Validate()}, {"right", rec.Right.Validate()}} {
		if m.err != nil {
			return nil, fmt.Errorf("%s: %w: %s map: %v", path, ErrCorrupt, m.name, m.err)
		}
	}
	if rec.Left.Size() != rec.ImageSize {
		return nil, fmt.Errorf("%s: %w: maps are %s, artifact declares %s", path, ErrCorrupt, rec.Left.Size(), rec.ImageSize)
	}
	return rec, nil
}

func (c *Cache) read(path string) ([]byte, error) {
	data, err := c.FS.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// decodeRecord checks that every required field is present and the header matches
// before decoding into v.
func decodeRecord(data []byte, kind string, required []string, v interface{}) error {
	var fields map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("%w: missing field %q", ErrCorrupt, name)
		}
	}

	var h header
	if err := cbor.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if h.Version != FormatVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrCorrupt, h.Version, FormatVersion)
	}
	if h.Kind != kind {
		return fmt.Errorf("%w: kind %q, want %q", ErrCorrupt, h.Kind, kind)
	}

	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}
