package tuning

import (
	"fmt"
	"image"
	"log"
	"time"

	"fisheye-stereo/internal/disparity"
	"fisheye-stereo/internal/fsutil"
)

// State is the session's position in the edit/recompute cycle.
type State int

const (
	StateIdle State = iota
	StateEditing
	StateRecomputing
	StateLoading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateRecomputing:
		return "recomputing"
	case StateLoading:
		return "loading"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is one completed recomputation.
type Result struct {
	Params  disparity.Params
	Map     *disparity.Map
	Visual  *image.Gray
	Elapsed time.Duration
}

// Options configures a Session. Zero values select the defaults.
type Options struct {
	FS     fsutil.FileSystem
	Path   string
	Params *disparity.Params
	Logger *log.Logger
}

// Session owns the current parameter set and the most recent disparity map for one
// rectified pair. Every edit runs synchronously on the caller's goroutine; a Session is
// not safe for concurrent use.
type Session struct {
	left, right *image.Gray

	fs     fsutil.FileSystem
	path   string
	logger *log.Logger

	params disparity.Params
	last   *Result
	state  State

	onRecompute []func(*Result)
	onLoaded    []func(disparity.Params)
}

// NewSession prepares a session for a rectified pair. No map is computed until the first
// edit or an explicit Recompute.
func NewSession(left, right *image.Gray, opts Options) (*Session, error) {
	if left == nil || right == nil {
		return nil, fmt.Errorf("tuning: rectified pair is incomplete")
	}
	if left.Bounds().Size() != right.Bounds().Size() {
		return nil, fmt.Errorf("tuning: left is %v, right is %v", left.Bounds().Size(), right.Bounds().Size())
	}
	s := &Session{
		left:   left,
		right:  right,
		fs:     opts.FS,
		path:   opts.Path,
		logger: opts.Logger,
		params: DefaultParams(),
	}
	if s.fs == nil {
		s.fs = fsutil.OSFileSystem{}
	}
	if s.path == "" {
		s.path = SettingsFile
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if opts.Params != nil {
		s.params = *opts.Params
	}
	return s, nil
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Params returns the current parameter set.
func (s *Session) Params() disparity.Params { return s.params }

// Last returns the most recent successful recomputation, or nil.
func (s *Session) Last() *Result { return s.last }

// Left returns the rectified reference image.
func (s *Session) Left() *image.Gray { return s.left }

// Path returns the settings file location.
func (s *Session) Path() string { return s.path }

// OnRecompute registers fn to run after every successful recomputation.
func (s *Session) OnRecompute(fn func(*Result)) {
	s.onRecompute = append(s.onRecompute, fn)
}

// OnLoaded registers fn to run with the loaded parameters while the session is still in
// StateLoading, so controls can be synced without triggering recomputation.
func (s *Session) OnLoaded(fn func(disparity.Params)) {
	s.onLoaded = append(s.onLoaded, fn)
}

// SetValue applies one control change. The raw value is normalized and the map is then
// recomputed. In StateLoading the call is ignored: the loaded parameters stand even when a
// synced control could not represent them. A failed recomputation keeps the new parameters
// and the previous map.
func (s *Session) SetValue(name string, raw float64) (*Result, error) {
	c, ok := ControlByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownControl, name)
	}
	if s.state == StateLoading {
		return nil, nil
	}

	s.state = StateEditing
	if err := set(&s.params, name, c.Normalize(raw)); err != nil {
		s.state = StateIdle
		return nil, err
	}
	return s.Recompute()
}

// Recompute runs the disparity engine on the current parameters.
func (s *Session) Recompute() (*Result, error) {
	s.state = StateRecomputing
	defer func() { s.state = StateIdle }()

	s.logger.Printf("tuner: rebuilding depth map %s", s.params)
	start := time.Now()
	m, err := (&disparity.Engine{Params: s.params}).Compute(s.left, s.right)
	if err != nil {
		return nil, fmt.Errorf("tuner: recompute failed: %w", err)
	}
	res := &Result{
		Params:  s.params,
		Map:     m,
		Visual:  disparity.Normalize(m),
		Elapsed: time.Since(start),
	}
	s.last = res
	s.logger.Printf("tuner: depth map ready valid=%d in %v", m.ValidCount(), res.Elapsed.Round(time.Millisecond))
	for _, fn := range s.onRecompute {
		fn(res)
	}
	return res, nil
}

// Save writes the current parameters to the settings file, replacing it.
func (s *Session) Save() error {
	if err := WriteSettings(s.fs, s.path, s.params); err != nil {
		return err
	}
	s.logger.Printf("tuner: settings saved to %s", s.path)
	return nil
}

// Load reads the settings file and applies every parameter in StateLoading, then
// recomputes once. On a read or validation error the session is left untouched.
func (s *Session) Load() (*Result, error) {
	p, err := ReadSettings(s.fs, s.path, s.params)
	if err != nil {
		return nil, err
	}

	s.state = StateLoading
	s.params = p
	for _, fn := range s.onLoaded {
		fn(s.params)
	}
	s.logger.Printf("tuner: parameters loaded from %s", s.path)
	return s.Recompute()
}
