// Package prefs keeps the tuner's window and scene preferences in a JSON file.
package prefs

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"fisheye-stereo/internal/fsutil"
)

const prefsFile = "tuner.json"

// Preference keys.
const (
	KeyWindowWidth  = "windowWidth"
	KeyWindowHeight = "windowHeight"
	KeySceneLeft    = "sceneLeft"
	KeySceneRight   = "sceneRight"
	KeyGuideLines   = "guideLines"
)

// Prefs stores preferences as a key-value map.
type Prefs struct {
	mu      sync.RWMutex
	fs      fsutil.FileSystem
	path    string
	values  map[string]interface{}
	changed bool
}

// DefaultPath returns ~/.config/fisheye-stereo/tuner.json.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "fisheye-stereo", prefsFile)
}

// Load reads preferences from DefaultPath on disk.
func Load() *Prefs {
	return LoadFrom(fsutil.OSFileSystem{}, DefaultPath())
}

// LoadFrom reads preferences from path. A missing or unreadable file yields empty
// preferences.
func LoadFrom(fsys fsutil.FileSystem, path string) *Prefs {
	p := &Prefs{
		fs:     fsys,
		path:   path,
		values: make(map[string]interface{}),
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(data, &p.values)
	return p
}

// Path returns the file the preferences are saved to.
func (p *Prefs) Path() string { return p.path }

// Changed reports whether a value was set since the last Save.
func (p *Prefs) Changed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.changed
}

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	if err != nil {
		return err
	}

	if err := p.fs.MkdirAll(filepath.Dir(p.path), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	if err := fsutil.WriteFileAtomic(p.fs, p.path, data, 0o644); err != nil {
		return err
	}
	p.changed = false
	return nil
}

func (p *Prefs) set(key string, val interface{}) {
	p.mu.Lock()
	if old, ok := p.values[key]; !ok || old != val {
		p.values[key] = val
		p.changed = true
	}
	p.mu.Unlock()
}

// Float returns a float64 preference, or fallback if not set.
func (p *Prefs) Float(key string, fallback float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		}
	}
	return fallback
}

// SetFloat stores a float64 preference.
func (p *Prefs) SetFloat(key string, val float64) {
	p.set(key, val)
}

// String returns a string preference, or "" if not set.
func (p *Prefs) String(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetString stores a string preference.
func (p *Prefs) SetString(key string, val string) {
	p.set(key, val)
}

// Bool returns a bool preference, or fallback if not set.
func (p *Prefs) Bool(key string, fallback bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if b, ok := p.values[key].(bool); ok {
		return b
	}
	return fallback
}

// SetBool stores a bool preference.
func (p *Prefs) SetBool(key string, val bool) {
	p.set(key, val)
}
