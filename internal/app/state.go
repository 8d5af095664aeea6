// Package app holds the tuner's application state and event bus.
package app

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"fisheye-stereo/internal/calibcache"
	"fisheye-stereo/internal/config"
	"fisheye-stereo/internal/disparity"
	"fisheye-stereo/internal/fsutil"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/tuning"
)

// ErrNoScene is returned by operations that need a loaded scene.
var ErrNoScene = errors.New("app: no scene loaded")

// State holds the calibration, the scene pair and the tuning session.
type State struct {
	mu sync.RWMutex

	Config *config.Config
	FS     fsutil.FileSystem
	Cache  *calibcache.Cache
	Logger *log.Logger

	// Calibration used to rectify the scene
	Record *calibcache.StereoRecord

	// Scene paths and raw images
	LeftPath  string
	RightPath string
	rawLeft   *image.Gray
	rawRight  *image.Gray

	session          *tuning.Session
	calibrationStale bool

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different application events.
type EventType int

const (
	EventSceneLoaded EventType = iota
	EventDisparityUpdated
	EventSettingsSaved
	EventSettingsLoaded
	EventCalibrationChanged
	EventError
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates a state that reads calibrations and scenes through fsys.
func NewState(cfg *config.Config, fsys fsutil.FileSystem) *State {
	return &State{
		Config:    cfg,
		FS:        fsys,
		Cache:     calibcache.New(fsys, cfg.Paths.CacheDir),
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

func (s *State) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Session returns the active tuning session, or nil before a scene is loaded.
func (s *State) Session() *tuning.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// LoadScene loads the stereo calibration for the tuner height, reads and rectifies the
// scene pair and starts a session on it with the default parameters. The first depth map
// is computed before EventSceneLoaded fires.
func (s *State) LoadScene(leftPath, rightPath string) error {
	rec, err := s.Cache.LoadStereo(s.Config.Tuner.Height)
	if err != nil {
		return fmt.Errorf("failed to load stereo calibration: %w", err)
	}
	left, err := s.readGray(leftPath)
	if err != nil {
		return err
	}
	right, err := s.readGray(rightPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.Record = rec
	s.LeftPath, s.RightPath = leftPath, rightPath
	s.rawLeft, s.rawRight = left, right
	s.calibrationStale = false
	s.mu.Unlock()

	return s.rebuild(nil)
}

func (s *State) readGray(path string) (*image.Gray, error) {
	data, err := s.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene image: %w", err)
	}
	f, err := pairimage.Decode(path, data)
	if err != nil {
		return nil, err
	}
	return f.Image, nil
}

// SetRectifiedPair starts a session on an already rectified pair.
func (s *State) SetRectifiedPair(left, right *image.Gray) error {
	return s.startSession(left, right, nil)
}

// rebuild rectifies the raw pair with the current record and restarts the session,
// keeping params when non-nil.
func (s *State) rebuild(params *disparity.Params) error {
	s.mu.RLock()
	rec, left, right := s.Record, s.rawLeft, s.rawRight
	s.mu.RUnlock()
	if rec == nil || left == nil {
		return ErrNoScene
	}

	rl, rr, err := rec.Maps().Apply(left, right)
	if err != nil {
		return err
	}
	return s.startSession(rl, rr, params)
}

func (s *State) startSession(left, right *image.Gray, params *disparity.Params) error {
	sess, err := tuning.NewSession(left, right, tuning.Options{
		FS:     s.FS,
		Path:   s.Config.Paths.SettingsFile,
		Params: params,
		Logger: s.Logger,
	})
	if err != nil {
		return err
	}
	sess.OnRecompute(func(res *tuning.Result) {
		s.Emit(EventDisparityUpdated, res)
	})
	sess.OnLoaded(func(p disparity.Params) {
		s.Emit(EventSettingsLoaded, p)
	})

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	if _, err := sess.Recompute(); err != nil {
		s.logger().Printf("tuner: initial depth map failed: %v", err)
		s.Emit(EventError, err)
	}
	s.Emit(EventSceneLoaded, sess)
	return nil
}

// SetValue forwards a control change to the session. Failures are reported through
// EventError as well as returned.
func (s *State) SetValue(name string, v float64) error {
	sess := s.Session()
	if sess == nil {
		return ErrNoScene
	}
	if _, err := sess.SetValue(name, v); err != nil {
		s.Emit(EventError, err)
		return err
	}
	return nil
}

// SaveSettings writes the current parameters to the settings file.
func (s *State) SaveSettings() error {
	sess := s.Session()
	if sess == nil {
		return ErrNoScene
	}
	if err := sess.Save(); err != nil {
		s.Emit(EventError, err)
		return err
	}
	s.Emit(EventSettingsSaved, sess.Path())
	return nil
}

// LoadSettings replaces the parameters from the settings file.
func (s *State) LoadSettings() error {
	sess := s.Session()
	if sess == nil {
		return ErrNoScene
	}
	if _, err := sess.Load(); err != nil {
		s.Emit(EventError, err)
		return err
	}
	return nil
}

// MarkCalibrationChanged records that the stereo artifact on disk is newer than the one
// in use. It is safe to call from any goroutine.
func (s *State) MarkCalibrationChanged() {
	s.mu.Lock()
	s.calibrationStale = true
	s.mu.Unlock()
	s.Emit(EventCalibrationChanged, s.Cache.StereoPath(s.Config.Tuner.Height))
}

// CalibrationStale reports whether MarkCalibrationChanged was called since the last load.
func (s *State) CalibrationStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calibrationStale
}

// ReloadCalibration reads the stereo artifact again and rebuilds the session on the newly
// rectified scene, keeping the current parameters.
func (s *State) ReloadCalibration() error {
	sess := s.Session()
	if sess == nil {
		return ErrNoScene
	}
	rec, err := s.Cache.LoadStereo(s.Config.Tuner.Height)
	if err != nil {
		s.Emit(EventError, err)
		return fmt.Errorf("failed to reload stereo calibration: %w", err)
	}

	s.mu.Lock()
	s.Record = rec
	s.calibrationStale = false
	s.mu.Unlock()

	s.logger().Printf("tuner: calibration reloaded (%s)", rec.ImageSize)
	params := sess.Params()
	return s.rebuild(&params)
}
