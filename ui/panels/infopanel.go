package panels

import (
	"fmt"
	"time"

	"fisheye-stereo/internal/app"
	"fisheye-stereo/internal/tuning"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// InfoPanel summarizes the calibration in use and the latest depth map.
type InfoPanel struct {
	state       *app.State
	calibration *widget.Label
	depth       *widget.Label
	container   fyne.CanvasObject
}

// NewInfoPanel creates the panel and subscribes it to scene and depth map events.
func NewInfoPanel(state *app.State) *InfoPanel {
	ip := &InfoPanel{
		state:       state,
		calibration: widget.NewLabel("No calibration"),
		depth:       widget.NewLabel("No depth map"),
	}
	ip.calibration.Wrapping = fyne.TextWrapWord
	ip.depth.Wrapping = fyne.TextWrapWord

	ip.container = container.NewVBox(
		widget.NewCard("Calibration", "", ip.calibration),
		widget.NewCard("Depth map", "", ip.depth),
	)

	state.On(app.EventSceneLoaded, func(data interface{}) {
		ip.UpdateCalibration()
	})
	state.On(app.EventDisparityUpdated, func(data interface{}) {
		if res, ok := data.(*tuning.Result); ok {
			ip.SetResult(res)
		}
	})

	ip.UpdateCalibration()
	if sess := state.Session(); sess != nil && sess.Last() != nil {
		ip.SetResult(sess.Last())
	}
	return ip
}

// Container returns the panel's root object.
func (ip *InfoPanel) Container() fyne.CanvasObject {
	return ip.container
}

// UpdateCalibration shows the stereo record held by the state.
func (ip *InfoPanel) UpdateCalibration() {
	rec := ip.state.Record
	if rec == nil {
		ip.calibration.SetText("No calibration")
		return
	}
	ip.calibration.SetText(fmt.Sprintf("%s, %s model\nrms %.4f px\nbaseline %.3f\nfocal %.1f px",
		rec.ImageSize, rec.Model, rec.RMS, rec.Translation.Norm(), rec.Rectification.P1[0][0]))
}

// SetResult shows the statistics of a recomputed depth map.
func (ip *InfoPanel) SetResult(res *tuning.Result) {
	m := res.Map
	total := m.Width * m.Height
	valid := m.ValidCount()
	pct := 0.0
	if total > 0 {
		pct = 100 * float64(valid) / float64(total)
	}
	text := fmt.Sprintf("valid %.1f%%", pct)
	if lo, hi, ok := m.Range(); ok {
		text += fmt.Sprintf("\nrange %.1f .. %.1f px", lo, hi)
	}
	text += fmt.Sprintf("\ncomputed in %v", res.Elapsed.Round(time.Millisecond))
	ip.depth.SetText(text)
}

// Text returns the two summaries, for tests and logging.
func (ip *InfoPanel) Text() (string, string) {
	return ip.calibration.Text, ip.depth.Text
}
