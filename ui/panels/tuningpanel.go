// Package panels provides the side panels of the tuner window.
package panels

import (
	"fmt"
	"strconv"

	"fisheye-stereo/internal/app"
	"fisheye-stereo/internal/disparity"
	"fisheye-stereo/internal/tuning"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// TuningPanel shows one slider per block matcher parameter plus the Save/Load buttons.
type TuningPanel struct {
	state *app.State

	sliders map[string]*widget.Slider
	values  map[string]*widget.Label
	syncing bool

	saveButton *widget.Button
	loadButton *widget.Button
	container  fyne.CanvasObject
}

// NewTuningPanel creates the panel. Slider changes go to the state's session.
func NewTuningPanel(state *app.State) *TuningPanel {
	tp := &TuningPanel{
		state:   state,
		sliders: make(map[string]*widget.Slider),
		values:  make(map[string]*widget.Label),
	}

	form := container.New(newSliderLayout())
	for _, c := range tuning.Controls {
		c := c
		slider := widget.NewSlider(float64(c.Min), float64(c.Max))
		slider.Step = 1
		slider.Value = float64(c.Default)
		value := widget.NewLabel(strconv.Itoa(c.Default))

		slider.OnChanged = func(v float64) {
			value.SetText(strconv.Itoa(c.Normalize(v)))
			if tp.syncing {
				return
			}
			_ = tp.state.SetValue(c.Name, v)
		}

		tp.sliders[c.Name] = slider
		tp.values[c.Name] = value
		form.Add(widget.NewLabel(c.Label))
		form.Add(slider)
		form.Add(value)
	}

	tp.saveButton = widget.NewButton("Save settings", func() {
		_ = tp.state.SaveSettings()
	})
	tp.loadButton = widget.NewButton("Load settings", func() {
		_ = tp.state.LoadSettings()
	})

	tp.container = container.NewVBox(
		widget.NewCard("Block matcher", "", form),
		container.NewGridWithColumns(2, tp.saveButton, tp.loadButton),
	)

	state.On(app.EventSettingsLoaded, func(data interface{}) {
		if p, ok := data.(disparity.Params); ok {
			tp.Sync(p)
		}
	})
	state.On(app.EventSceneLoaded, func(data interface{}) {
		if sess, ok := data.(*tuning.Session); ok {
			tp.Sync(sess.Params())
		}
	})

	if sess := state.Session(); sess != nil {
		tp.Sync(sess.Params())
	}
	return tp
}

// Container returns the panel's root object.
func (tp *TuningPanel) Container() fyne.CanvasObject {
	return tp.container
}

// Slider returns the slider bound to the named control, or nil.
func (tp *TuningPanel) Slider(name string) *widget.Slider {
	return tp.sliders[name]
}

// Value returns the text shown next to the named slider.
func (tp *TuningPanel) Value(name string) string {
	if l, ok := tp.values[name]; ok {
		return l.Text
	}
	return ""
}

// Sync moves every slider to p without sending the changes back to the session.
func (tp *TuningPanel) Sync(p disparity.Params) {
	tp.syncing = true
	defer func() { tp.syncing = false }()

	for _, c := range tuning.Controls {
		v, err := tuning.Get(p, c.Name)
		if err != nil {
			continue
		}
		tp.sliders[c.Name].SetValue(float64(v))
		tp.values[c.Name].SetText(strconv.Itoa(v))
	}
}

// sliderLayout arranges label | slider | value rows with fixed outer columns.
type sliderLayout struct {
	labelWidth float32
	valueWidth float32
}

func newSliderLayout() *sliderLayout {
	return &sliderLayout{labelWidth: 96, valueWidth: 44}
}

func (l *sliderLayout) rowHeight(objects []fyne.CanvasObject, i int) float32 {
	h := float32(0)
	for j := i; j < i+3 && j < len(objects); j++ {
		if mh := objects[j].MinSize().Height; mh > h {
			h = mh
		}
	}
	return h
}

func (l *sliderLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	y := float32(0)
	sliderWidth := size.Width - l.labelWidth - l.valueWidth
	if sliderWidth < 0 {
		sliderWidth = 0
	}
	for i := 0; i+2 < len(objects); i += 3 {
		h := l.rowHeight(objects, i)
		objects[i].Move(fyne.NewPos(0, y))
		objects[i].Resize(fyne.NewSize(l.labelWidth, h))
		objects[i+1].Move(fyne.NewPos(l.labelWidth, y))
		objects[i+1].Resize(fyne.NewSize(sliderWidth, h))
		objects[i+2].Move(fyne.NewPos(l.labelWidth+sliderWidth, y))
		objects[i+2].Resize(fyne.NewSize(l.valueWidth, h))
		y += h
	}
}

func (l *sliderLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	h := float32(0)
	for i := 0; i+2 < len(objects); i += 3 {
		h += l.rowHeight(objects, i)
	}
	return fyne.NewSize(l.labelWidth+l.valueWidth+160, h)
}

// String lists the current slider positions, for logging.
func (tp *TuningPanel) String() string {
	s := ""
	for i, c := range tuning.Controls {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%s", c.Label, tp.Value(c.Name))
	}
	return s
}
