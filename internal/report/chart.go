// Package report renders calibration quality charts.
package report

import (
	"bytes"
	"fmt"
	"image/color"
	"strconv"

	"fisheye-stereo/internal/fsutil"
	"fisheye-stereo/internal/pipeline"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	leftColor   = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	rightColor  = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
	stereoColor = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

const barWidth = vg.Length(8)

// ErrorChart plots the per-frame reprojection error of both cameras and of the stereo
// fit as grouped bars, one group per retained pair.
func ErrorChart(r *pipeline.Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Reprojection error (%s, %d frames)", r.ImageSize, r.FramesUsed)
	p.Y.Label.Text = "RMS (px)"
	p.X.Label.Text = "pair"
	p.Legend.Top = true

	series := []struct {
		name   string
		values []float64
		color  color.Color
	}{
		{fmt.Sprintf("left %.3f", r.LeftRMS), r.LeftPerFrame, leftColor},
		{fmt.Sprintf("right %.3f", r.RightRMS), r.RightPerFrame, rightColor},
		{fmt.Sprintf("stereo %.3f", r.StereoRMS), r.StereoPerFrame, stereoColor},
	}
	for i, s := range series {
		if len(s.values) == 0 {
			continue
		}
		bars, err := plotter.NewBarChart(plotter.Values(s.values), barWidth)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s bars: %w", s.name, err)
		}
		bars.Color = s.color
		bars.LineStyle.Width = 0
		bars.Offset = vg.Length(i-1) * barWidth
		p.Add(bars)
		p.Legend.Add(s.name, bars)
	}

	names := make([]string, r.FramesUsed)
	for i := range names {
		if i < len(r.Indices) {
			names[i] = fmt.Sprintf("%02d", r.Indices[i])
		} else {
			names[i] = strconv.Itoa(i + 1)
		}
	}
	p.NominalX(names...)
	return p, nil
}

// WriteErrorChart renders ErrorChart as a PNG at path.
func WriteErrorChart(fsys fsutil.FileSystem, path string, r *pipeline.Report) error {
	p, err := ErrorChart(r)
	if err != nil {
		return err
	}
	width := 4*vg.Inch + vg.Length(r.FramesUsed)*4*barWidth
	wt, err := p.WriterTo(width, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return fsutil.WriteFileAtomic(fsys, path, buf.Bytes(), 0o644)
}
