// Package main provides the entry point for the disparity tuner.
package main

import (
	"flag"
	"log"
	"time"

	"fisheye-stereo/internal/app"
	"fisheye-stereo/internal/config"
	"fisheye-stereo/internal/fsutil"
	"fisheye-stereo/internal/version"
	"fisheye-stereo/ui/mainwindow"
	"fisheye-stereo/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"
)

const (
	appID    = "io.github.fisheye-stereo.tuner"
	appTitle = "Disparity Tuner"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting %s %s", appTitle, version.String())

	configPath := flag.String("config", config.DefaultPath, "Path to calibration.json")
	leftPath := flag.String("left", "", "Scene left image (default: last scene, then config)")
	rightPath := flag.String("right", "", "Scene right image (default: last scene, then config)")
	settingsPath := flag.String("settings", "", "Block matcher settings file (overrides config)")
	watch := flag.Bool("watch", true, "Watch the stereo calibration and offer to reload it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *settingsPath != "" {
		cfg.Paths.SettingsFile = *settingsPath
	}

	appPrefs := prefs.Load()
	left, right := *leftPath, *rightPath
	if left == "" && right == "" {
		left, right = appPrefs.String(prefs.KeySceneLeft), appPrefs.String(prefs.KeySceneRight)
	}
	if left == "" {
		left = cfg.Paths.SceneLeft()
	}
	if right == "" {
		right = cfg.Paths.SceneRight()
	}

	state := app.NewState(cfg, fsutil.OSFileSystem{})
	if err := state.LoadScene(left, right); err != nil {
		log.Fatalf("Failed to load scene %s/%s: %v", left, right, err)
	}
	log.Printf("Scene %s rectified with %s", left, state.Cache.StereoPath(cfg.Tuner.Height))

	fyneApp := fyneapp.NewWithID(appID)
	fyneApp.Settings().SetTheme(&app.TunerTheme{})

	win := mainwindow.New(fyneApp, state, appPrefs)
	appPrefs.SetString(prefs.KeySceneLeft, left)
	appPrefs.SetString(prefs.KeySceneRight, right)

	if *watch {
		setupCalibrationWatch(state)
	}
	setupHotReload(win)

	win.ShowAndRun()
	win.SavePreferences()
}

// setupCalibrationWatch flags the session when the stereo artifact is rewritten by a new
// calibration run.
func setupCalibrationWatch(state *app.State) {
	path := state.Cache.StereoPath(state.Config.Tuner.Height)
	watcher := app.NewFileWatcher(state.FS, path, 2*time.Second)
	watcher.OnChange(func() {
		log.Printf("Calibration watch: %s changed", path)
		state.MarkCalibrationChanged()
	})
	watcher.Start()
}

// setupHotReload configures automatic restart detection when the binary is recompiled.
func setupHotReload(win *mainwindow.MainWindow) {
	reloader := app.NewBinaryWatcher(2 * time.Second)
	if reloader == nil {
		log.Println("Hot reload: unable to determine executable path")
		return
	}

	log.Printf("Hot reload: watching %s (modified %s)",
		reloader.Path(), reloader.ModTime().Format("15:04:05"))

	reloader.OnChange(func() {
		log.Println("Hot reload: newer binary detected")
		dialog.ShowConfirm("New Version Available",
			"The application binary has been updated.\nRestart now?",
			func(restart bool) {
				if !restart {
					return
				}
				log.Println("Hot reload: saving preferences before restart...")
				win.SavePreferences()
				log.Println("Hot reload: restarting...")
				if err := app.RestartProcess(reloader.Path()); err != nil {
					log.Printf("Hot reload: restart failed: %v", err)
				}
			}, win)
	})
	reloader.Start()
}
