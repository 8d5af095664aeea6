package tuning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"fisheye-stereo/internal/disparity"
	"fisheye-stereo/internal/fsutil"
)

// SettingsFile is the default settings file name.
const SettingsFile = "3dmap_set.txt"

var (
	// ErrNoSettings is returned when the settings file does not exist.
	ErrNoSettings = errors.New("tuning: settings file not found")
	// ErrMissingField is returned when the settings file lacks a parameter.
	ErrMissingField = errors.New("tuning: settings file is missing a field")
	// ErrUnknownControl is returned for names outside the control table.
	ErrUnknownControl = errors.New("tuning: unknown control")
)

// EncodeSettings renders p as a JSON object with sorted keys, 4-space indentation and
// no space after the colon.
func EncodeSettings(p disparity.Params) ([]byte, error) {
	values := make(map[string]int, len(Controls))
	for _, c := range Controls {
		v, err := Get(p, c.Name)
		if err != nil {
			return nil, err
		}
		values[c.Name] = v
	}
	data, err := json.MarshalIndent(values, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return bytes.ReplaceAll(data, []byte(`": `), []byte(`":`)), nil
}

// DecodeSettings parses a settings document. Every control must be present. Values go
// through each control's rule but keep their magnitude, so a file saved from any valid
// parameter set loads back unchanged even outside the slider ranges. Values the block
// matcher cannot run with are rejected with disparity.ErrInvalidParams. Unknown keys
// are ignored.
func DecodeSettings(data []byte, base disparity.Params) (disparity.Params, error) {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return base, fmt.Errorf("failed to parse settings: %w", err)
	}

	var missing []string
	p := base
	for _, c := range Controls {
		v, ok := raw[c.Name]
		if !ok {
			missing = append(missing, c.Name)
			continue
		}
		if err := set(&p, c.Name, c.Round(v)); err != nil {
			return base, err
		}
	}
	if len(missing) > 0 {
		return base, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	if err := p.Validate(); err != nil {
		return base, err
	}
	return p, nil
}

// ReadSettings loads a settings file, keeping base's values for fields the file does not
// carry (the pre-filter type).
func ReadSettings(fsys fsutil.FileSystem, path string, base disparity.Params) (disparity.Params, error) {
	data, err := fsys.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return base, fmt.Errorf("%w: %s", ErrNoSettings, path)
	}
	if err != nil {
		return base, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	p, err := DecodeSettings(data, base)
	if err != nil {
		return base, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// WriteSettings replaces path with the encoded parameters.
func WriteSettings(fsys fsutil.FileSystem, path string, p disparity.Params) error {
	data, err := EncodeSettings(p)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", path, err)
	}
	return nil
}
