package calibcache

import (
	"fisheye-stereo/internal/fisheye"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/remap"
	"fisheye-stereo/internal/stereo"
	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
)

// FormatVersion is bumped whenever a record layout changes; older files read as corrupt.
const FormatVersion = 2

const (
	kindCamera = "camera"
	kindStereo = "stereo"
)

// CameraRecord is one side's calibration together with the correspondences it was fitted
// from, so the stereo stage can reuse them. Frames holds the pair index of every view.
type CameraRecord struct {
	Side         pairimage.Side
	ImageSize    geometry.Size
	Camera       fisheye.Camera
	RMS          float64
	Map          *remap.Map
	Frames       []int
	ObjectPoints [][]r3.Vector
	ImagePoints  [][]geometry.Point2D
}

// StereoRecord is the rectification artifact the tuner consumes.
type StereoRecord struct {
	ImageSize     geometry.Size
	Left          *remap.Map
	Right         *remap.Map
	Rectification stereo.Rectification
	Rotation      geometry.Mat3
	Translation   r3.Vector
	RMS           float64
	Model         stereo.Model
}

// Maps returns the lookup tables as a stereo.Maps pair.
func (r *StereoRecord) Maps() stereo.Maps {
	return stereo.Maps{Left: r.Left, Right: r.Right}
}

// header is decoded on its own to check a record before trusting the rest of it.
type header struct {
	Version int    `cbor:"version"`
	Kind    string `cbor:"kind"`
}

type grid struct {
	Width  int       `cbor:"width"`
	Height int       `cbor:"height"`
	Data   []float32 `cbor:"data"`
}

type cameraWire struct {
	Version         int            `cbor:"version"`
	Kind            string         `cbor:"kind"`
	Side            string         `cbor:"side"`
	ImageSize       geometry.Size  `cbor:"image_size"`
	Map1            grid           `cbor:"map1"`
	Map2            grid           `cbor:"map2"`
	Frames          []int          `cbor:"frames"`
	ObjPoints       [][][3]float64 `cbor:"objpoints"`
	ImgPoints       [][][2]float64 `cbor:"imgpoints"`
	CameraMatrix    [9]float64     `cbor:"camera_matrix"`
	DistortionCoeff [4]float64     `cbor:"distortion_coeff"`
	RMS             float64        `cbor:"rms"`
}

var cameraFields = []string{"version", "kind", "side", "image_size", "map1", "map2", "frames", "objpoints", "imgpoints", "camera_matrix", "distortion_coeff"}

type stereoWire struct {
	Version             int           `cbor:"version"`
	Kind                string        `cbor:"kind"`
	ImageSize           geometry.Size `cbor:"imageSize"`
	LeftMapX            grid          `cbor:"leftMapX"`
	LeftMapY            grid          `cbor:"leftMapY"`
	RightMapX           grid          `cbor:"rightMapX"`
	RightMapY           grid          `cbor:"rightMapY"`
	DisparityToDepthMap [4][4]float64 `cbor:"disparityToDepthMap"`
	R1                  [9]float64    `cbor:"R1"`
	R2                  [9]float64    `cbor:"R2"`
	P1                  [3][4]float64 `cbor:"P1"`
	P2                  [3][4]float64 `cbor:"P2"`
	Rotation            [9]float64    `cbor:"rotation"`
	Translation         [3]float64    `cbor:"translation"`
	RMS                 float64       `cbor:"rms"`
	Model               string        `cbor:"model"`
}

var stereoFields = []string{"version", "kind", "imageSize", "leftMapX", "leftMapY", "rightMapX", "rightMapY", "disparityToDepthMap"}

func splitMap(m *remap.Map) (grid, grid) {
	return grid{Width: m.Width, Height: m.Height, Data: m.X}, grid{Width: m.Width, Height: m.Height, Data: m.Y}
}

func joinMap(x, y grid) *remap.Map {
	return &remap.Map{Width: x.Width, Height: x.Height, X: x.Data, Y: y.Data}
}

func sameShape(x, y grid) bool {
	return x.Width == y.Width && x.Height == y.Height
}

func flat3(m geometry.Mat3) [9]float64 {
	var out [9]float64
	copy(out[:], m.Flat())
	return out
}

func (r *CameraRecord) wire() cameraWire {
	w := cameraWire{
		Version:         FormatVersion,
		Kind:            kindCamera,
		Side:            r.Side.String(),
		ImageSize:       r.ImageSize,
		CameraMatrix:    flat3(r.Camera.K.Matrix()),
		DistortionCoeff: r.Camera.D,
		RMS:             r.RMS,
		Frames:          r.Frames,
	}
	w.Map1, w.Map2 = splitMap(r.Map)
	for _, view := range r.ObjectPoints {
		pts := make([][3]float64, len(view))
		for i, p := range view {
			pts[i] = [3]float64{p.X, p.Y, p.Z}
		}
		w.ObjPoints = append(w.ObjPoints, pts)
	}
	for _, view := range r.ImagePoints {
		pts := make([][2]float64, len(view))
		for i, p := range view {
			pts[i] = [2]float64{p.X, p.Y}
		}
		w.ImgPoints = append(w.ImgPoints, pts)
	}
	return w
}

func (w *cameraWire) record() *CameraRecord {
	r := &CameraRecord{
		ImageSize: w.ImageSize,
		Camera: fisheye.Camera{
			K: fisheye.IntrinsicsFromMatrix(geometry.Mat3FromFlat(w.CameraMatrix[:])),
			D: w.DistortionCoeff,
		},
		RMS:    w.RMS,
		Map:    joinMap(w.Map1, w.Map2),
		Frames: w.Frames,
	}
	switch w.Side {
	case pairimage.SideLeft.String():
		r.Side = pairimage.SideLeft
	case pairimage.SideRight.String():
		r.Side = pairimage.SideRight
	}
	for _, view := range w.ObjPoints {
		pts := make([]r3.Vector, len(view))
		for i, p := range view {
			pts[i] = r3.Vector{X: p[0], Y: p[1], Z: p[2]}
		}
		r.ObjectPoints = append(r.ObjectPoints, pts)
	}
	for _, view := range w.ImgPoints {
		pts := make([]geometry.Point2D, len(view))
		for i, p := range view {
			pts[i] = geometry.Point2D{X: p[0], Y: p[1]}
		}
		r.ImagePoints = append(r.ImagePoints, pts)
	}
	return r
}

func (r *StereoRecord) wire() stereoWire {
	w := stereoWire{
		Version:             FormatVersion,
		Kind:                kindStereo,
		ImageSize:           r.ImageSize,
		DisparityToDepthMap: r.Rectification.Q,
		R1:                  flat3(r.Rectification.R1),
		R2:                  flat3(r.Rectification.R2),
		P1:                  r.Rectification.P1,
		P2:                  r.Rectification.P2,
		Rotation:            flat3(r.Rotation),
		Translation:         [3]float64{r.Translation.X, r.Translation.Y, r.Translation.Z},
		RMS:                 r.RMS,
		Model:               r.Model.String(),
	}
	w.LeftMapX, w.LeftMapY = splitMap(r.Left)
	w.RightMapX, w.RightMapY = splitMap(r.Right)
	return w
}

func (w *stereoWire) record() (*StereoRecord, error) {
	model, err := stereo.ParseModel(w.Model)
	if err != nil {
		return nil, err
	}
	return &StereoRecord{
		ImageSize: w.ImageSize,
		Left:      joinMap(w.LeftMapX, w.LeftMapY),
		Right:     joinMap(w.RightMapX, w.RightMapY),
		Rectification: stereo.Rectification{
			Size: w.ImageSize,
			R1:   geometry.Mat3FromFlat(w.R1[:]),
			R2:   geometry.Mat3FromFlat(w.R2[:]),
			P1:   w.P1,
			P2:   w.P2,
			Q:    w.DisparityToDepthMap,
		},
		Rotation:    geometry.Mat3FromFlat(w.Rotation[:]),
		Translation: r3.Vector{X: w.Translation[0], Y: w.Translation[1], Z: w.Translation[2]},
		RMS:         w.RMS,
		Model:       model,
	}, nil
}
