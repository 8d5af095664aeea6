// Package mainwindow provides the disparity tuner window.
package mainwindow

import (
	"fmt"
	"image"
	"image/draw"
	"log"
	"path/filepath"
	"strings"
	"time"

	"fisheye-stereo/internal/app"
	"fisheye-stereo/internal/disparity"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/preview"
	"fisheye-stereo/internal/tuning"
	"fisheye-stereo/internal/version"
	"fisheye-stereo/pkg/colorutil"
	"fisheye-stereo/ui/canvas"
	"fisheye-stereo/ui/panels"
	"fisheye-stereo/ui/prefs"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

const windowTitle = "Disparity Tuner"

// MainWindow shows the rectified left image, the colorized depth map and the tuning
// controls.
type MainWindow struct {
	fyne.Window
	app   fyne.App
	state *app.State
	prefs *prefs.Prefs

	leftView    *canvas.ImageView
	depthView   *canvas.ImageView
	tuningPanel *panels.TuningPanel
	infoPanel   *panels.InfoPanel
	statusBar   *widget.Label

	guideLines bool

	// Menu items that need state tracking
	fitToWindowItem *fyne.MenuItem
	guideLinesItem  *fyne.MenuItem
}

// New creates the tuner window for state. appPrefs may be nil.
func New(fyneApp fyne.App, state *app.State, appPrefs *prefs.Prefs) *MainWindow {
	win := fyneApp.NewWindow(windowTitle)

	mw := &MainWindow{
		Window:     win,
		app:        fyneApp,
		state:      state,
		prefs:      appPrefs,
		guideLines: true,
	}
	if appPrefs != nil {
		mw.guideLines = appPrefs.Bool(prefs.KeyGuideLines, true)
		w := appPrefs.Float(prefs.KeyWindowWidth, 1280)
		h := appPrefs.Float(prefs.KeyWindowHeight, 640)
		win.Resize(fyne.NewSize(float32(w), float32(h)))
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()

	if sess := state.Session(); sess != nil {
		mw.showSession(sess)
	}
	return mw
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	mw.leftView = canvas.NewImageView()
	mw.depthView = canvas.NewImageView()
	mw.tuningPanel = panels.NewTuningPanel(mw.state)
	mw.infoPanel = panels.NewInfoPanel(mw.state)
	mw.statusBar = widget.NewLabel("Ready")

	mw.depthView.OnHover(mw.onDepthHover)
	mw.depthView.OnLeave(func() { mw.updateStatus("") })

	views := container.NewGridWithColumns(2,
		container.NewBorder(widget.NewLabel("Rectified left"), nil, nil, nil, mw.leftView),
		container.NewBorder(widget.NewLabel("Depth map"), nil, nil, nil, mw.depthView),
	)

	side := container.NewVScroll(container.NewVBox(
		mw.tuningPanel.Container(),
		mw.infoPanel.Container(),
	))

	split := container.NewHSplit(views, side)
	split.SetOffset(0.72)

	content := container.NewBorder(
		nil,                               // top
		container.NewPadded(mw.statusBar), // bottom
		nil,                               // left
		nil,                               // right
		split,                             // center
	)

	mw.SetContent(content)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Scene...", mw.onOpenScene),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Save Settings", mw.onSaveSettings),
		fyne.NewMenuItem("Load Settings", mw.onLoadSettings),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Reload Calibration", mw.onReloadCalibration),
		fyne.NewMenuItem("Export Depth Map...", mw.onExportDepthMap),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() { mw.app.Quit() }),
	)

	mw.fitToWindowItem = fyne.NewMenuItem("✓ Fit to Window", mw.onToggleFitToWindow)
	mw.guideLinesItem = fyne.NewMenuItem(checkLabel(mw.guideLines, "Epipolar Guide Lines"), mw.onToggleGuideLines)

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.onZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.onZoomOut),
		mw.fitToWindowItem,
		fyne.NewMenuItem("Actual Size", mw.onActualSize),
		fyne.NewMenuItemSeparator(),
		mw.guideLinesItem,
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, viewMenu, helpMenu))
}

func checkLabel(on bool, label string) string {
	if on {
		return "✓ " + label
	}
	return "  " + label
}

func (mw *MainWindow) setupEventHandlers() {
	mw.state.On(app.EventSceneLoaded, func(data interface{}) {
		if sess, ok := data.(*tuning.Session); ok {
			mw.showSession(sess)
		}
	})

	mw.state.On(app.EventDisparityUpdated, func(data interface{}) {
		if res, ok := data.(*tuning.Result); ok {
			mw.showResult(res)
		}
	})

	mw.state.On(app.EventSettingsSaved, func(data interface{}) {
		log.Printf("tuner: settings saved to %v (%s)", data, mw.tuningPanel)
		mw.updateStatus(fmt.Sprintf("Settings saved to %v", data))
	})

	mw.state.On(app.EventSettingsLoaded, func(data interface{}) {
		mw.updateStatus("Settings loaded")
	})

	mw.state.On(app.EventCalibrationChanged, func(data interface{}) {
		mw.updateStatus(fmt.Sprintf("Calibration %v changed on disk - File > Reload Calibration to apply", data))
	})

	mw.state.On(app.EventError, func(data interface{}) {
		if err, ok := data.(error); ok {
			mw.updateStatus("Error: " + err.Error())
		}
	})
}

func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

// Status returns the status bar text.
func (mw *MainWindow) Status() string {
	return mw.statusBar.Text
}

func (mw *MainWindow) showSession(sess *tuning.Session) {
	if mw.state.LeftPath != "" {
		mw.SetTitle(windowTitle + " - " + filepath.Base(mw.state.LeftPath))
	}
	mw.leftView.SetImage(mw.leftImage(sess))
	if res := sess.Last(); res != nil {
		mw.showResult(res)
	}
}

// leftImage returns the rectified left image, with guide lines when enabled.
func (mw *MainWindow) leftImage(sess *tuning.Session) image.Image {
	left := sess.Left()
	if !mw.guideLines {
		return left
	}
	rgba := image.NewRGBA(left.Bounds())
	draw.Draw(rgba, rgba.Bounds(), left, left.Bounds().Min, draw.Src)
	preview.DrawGuideLines(rgba, preview.DefaultLineSpacing, colorutil.Green)
	return rgba
}

func (mw *MainWindow) showResult(res *tuning.Result) {
	mw.depthView.SetImage(disparity.Colorize(res.Visual))
	mw.updateStatus(fmt.Sprintf("Depth map rebuilt in %v (%s)", res.Elapsed.Round(time.Millisecond), res.Params))
}

// onDepthHover reports the disparity and, with a calibration, the depth under the pointer.
func (mw *MainWindow) onDepthHover(x, y int) {
	sess := mw.state.Session()
	if sess == nil || sess.Last() == nil {
		return
	}
	d, ok := sess.Last().Map.Disparity(x, y)
	if !ok {
		mw.updateStatus(fmt.Sprintf("(%d, %d) no disparity", x, y))
		return
	}
	text := fmt.Sprintf("(%d, %d) disparity %.2f px", x, y, d)
	if rec := mw.state.Record; rec != nil {
		if p, ok := rec.Rectification.Reproject(float64(x), float64(y), d); ok {
			text += fmt.Sprintf(", depth %.2f", p.Z)
		}
	}
	mw.updateStatus(text)
}

// pairedPath returns the right image that goes with a left scene image: 01L.png -> 01R.png,
// left_01.png -> right_01.png.
func pairedPath(left string) (string, bool) {
	dir, base := filepath.Split(left)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	switch {
	case strings.HasSuffix(stem, "L"):
		return dir + strings.TrimSuffix(stem, "L") + "R" + ext, true
	case strings.HasPrefix(stem, "left"):
		return dir + "right" + strings.TrimPrefix(stem, "left") + ext, true
	default:
		return "", false
	}
}

// OpenScene loads a scene pair and remembers it for the next start.
func (mw *MainWindow) OpenScene(leftPath, rightPath string) error {
	if err := mw.state.LoadScene(leftPath, rightPath); err != nil {
		return err
	}
	if mw.prefs != nil {
		mw.prefs.SetString(prefs.KeySceneLeft, leftPath)
		mw.prefs.SetString(prefs.KeySceneRight, rightPath)
	}
	mw.updateStatus("Scene loaded: " + filepath.Base(leftPath))
	return nil
}

func (mw *MainWindow) onOpenScene() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		left := reader.URI().Path()
		right, ok := pairedPath(left)
		if !ok {
			dialog.ShowError(fmt.Errorf("cannot find the right image for %s", filepath.Base(left)), mw.Window)
			return
		}
		if err := mw.OpenScene(left, right); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter(pairimage.SupportedFormats()))
	fd.Show()
}

func (mw *MainWindow) onSaveSettings() {
	_ = mw.state.SaveSettings()
}

func (mw *MainWindow) onLoadSettings() {
	_ = mw.state.LoadSettings()
}

func (mw *MainWindow) onReloadCalibration() {
	if err := mw.state.ReloadCalibration(); err != nil {
		dialog.ShowError(err, mw.Window)
		return
	}
	mw.updateStatus("Calibration reloaded")
}

// ExportDepthMap writes the rectified left image and the colorized depth map side by side.
func (mw *MainWindow) ExportDepthMap(path string) error {
	sess := mw.state.Session()
	if sess == nil || sess.Last() == nil {
		return app.ErrNoScene
	}
	img := preview.Disparity(sess.Left(), sess.Last().Visual)
	if err := preview.Write(mw.state.FS, path, img); err != nil {
		return err
	}
	mw.updateStatus("Depth map exported to " + path)
	return nil
}

func (mw *MainWindow) onExportDepthMap() {
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if ext := strings.ToLower(filepath.Ext(path)); ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
			path += ".png"
		}
		if err := mw.ExportDepthMap(path); err != nil {
			dialog.ShowError(err, mw.Window)
		}
	}, mw.Window)
	fd.SetFileName("depth_map.png")
	fd.Show()
}

func (mw *MainWindow) views() []*canvas.ImageView {
	return []*canvas.ImageView{mw.leftView, mw.depthView}
}

func (mw *MainWindow) onZoomIn() {
	mw.disableFitToWindow()
	for _, v := range mw.views() {
		v.ZoomIn()
	}
}

func (mw *MainWindow) onZoomOut() {
	mw.disableFitToWindow()
	for _, v := range mw.views() {
		v.ZoomOut()
	}
}

func (mw *MainWindow) onToggleFitToWindow() {
	enabled := !mw.leftView.FitsToWindow()
	for _, v := range mw.views() {
		v.SetFitToWindow(enabled)
	}
	mw.fitToWindowItem.Label = checkLabel(enabled, "Fit to Window")
}

func (mw *MainWindow) onActualSize() {
	mw.disableFitToWindow()
	for _, v := range mw.views() {
		v.ActualSize()
	}
}

func (mw *MainWindow) disableFitToWindow() {
	mw.fitToWindowItem.Label = checkLabel(false, "Fit to Window")
}

func (mw *MainWindow) onToggleGuideLines() {
	mw.guideLines = !mw.guideLines
	mw.guideLinesItem.Label = checkLabel(mw.guideLines, "Epipolar Guide Lines")
	if mw.prefs != nil {
		mw.prefs.SetBool(prefs.KeyGuideLines, mw.guideLines)
	}
	if sess := mw.state.Session(); sess != nil {
		mw.leftView.SetImage(mw.leftImage(sess))
	}
}

// SavePreferences stores the window size and writes the preferences file if anything
// changed.
func (mw *MainWindow) SavePreferences() {
	if mw.prefs == nil {
		return
	}
	size := mw.Canvas().Size()
	if size.Width > 0 && size.Height > 0 {
		mw.prefs.SetFloat(prefs.KeyWindowWidth, float64(size.Width))
		mw.prefs.SetFloat(prefs.KeyWindowHeight, float64(size.Height))
	}
	if !mw.prefs.Changed() {
		return
	}
	if err := mw.prefs.Save(); err != nil {
		mw.updateStatus("Failed to save preferences: " + err.Error())
	}
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About "+windowTitle,
		fmt.Sprintf("%s %s\n\n"+
			"Interactive block matcher tuning for a rectified fisheye stereo pair.",
			windowTitle, version.String()),
		mw.Window)
}
