// Package config loads and saves the user settings file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Settings file formats, tried in this order.
const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Format is the encoding of a settings file.
type Format string

// Handle records where settings were read from so a save writes back to
// the same file.
type Handle struct {
	Path   string
	Format Format
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration %q is negative", text)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Settings struct {
	HTTP      HTTPSettings      `json:"http" toml:"http"`
	Response  ResponseSettings  `json:"response" toml:"response"`
	GRPC      GRPCSettings      `json:"grpc" toml:"grpc"`
	History   HistorySettings   `json:"history" toml:"history"`
	Telemetry TelemetrySettings `json:"telemetry" toml:"telemetry"`
}

type HTTPSettings struct {
	Timeout         Duration `json:"timeout" toml:"timeout"`
	FollowRedirects bool     `json:"follow_redirects" toml:"follow_redirects"`
	Insecure        bool     `json:"insecure" toml:"insecure"`
	Proxy           string   `json:"proxy,omitempty" toml:"proxy,omitempty"`
}

type ResponseSettings struct {
	PreviewLimit int `json:"preview_limit" toml:"preview_limit"`
}

type GRPCSettings struct {
	Plaintext   bool     `json:"plaintext" toml:"plaintext"`
	SkipVerify  bool     `json:"skip_verify" toml:"skip_verify"`
	DialTimeout Duration `json:"dial_timeout" toml:"dial_timeout"`
	KeepAlive   Duration `json:"keepalive" toml:"keepalive"`
}

type HistorySettings struct {
	MaxEntries int `json:"max_entries" toml:"max_entries"`
}

type TelemetrySettings struct {
	Endpoint string `json:"endpoint,omitempty" toml:"endpoint,omitempty"`
	Insecure bool   `json:"insecure" toml:"insecure"`
	Service  string `json:"service,omitempty" toml:"service,omitempty"`
}

// Defaults returns the settings used when no file exists. Keys missing
// from a file keep these values.
func Defaults() Settings {
	return Settings{
		HTTP: HTTPSettings{
			Timeout:         Duration(30 * time.Second),
			FollowRedirects: true,
		},
		Response: ResponseSettings{PreviewLimit: 2000},
		GRPC: GRPCSettings{
			Plaintext:   true,
			DialTimeout: Duration(10 * time.Second),
		},
		History: HistorySettings{MaxEntries: 100},
	}
}

// Validate reports the first out-of-range value.
func (s Settings) Validate() error {
	switch {
	case s.Response.PreviewLimit < 1:
		return fmt.Errorf("response.preview_limit must be positive, got %d", s.Response.PreviewLimit)
	case s.History.MaxEntries < 1:
		return fmt.Errorf("history.max_entries must be positive, got %d", s.History.MaxEntries)
	}
	return nil
}

// Load reads settings.toml, then settings.json, from dir. A missing file
// is skipped; a malformed one fails. With neither present the defaults
// are returned with a handle for settings.toml.
func Load(dir string) (Settings, Handle, error) {
	candidates := []Handle{
		{Path: filepath.Join(dir, "settings.toml"), Format: FormatTOML},
		{Path: filepath.Join(dir, "settings.json"), Format: FormatJSON},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(accumulated, fmt.Errorf("read settings %q: %w", candidate.Path, err))
			continue
		}

		settings, err := decode(data, candidate.Format)
		if err != nil {
			return Settings{}, Handle{}, fmt.Errorf("parse settings %q: %w", candidate.Path, err)
		}
		if err := settings.Validate(); err != nil {
			return Settings{}, Handle{}, fmt.Errorf("settings %q: %w", candidate.Path, err)
		}
		return settings, candidate, nil
	}

	if accumulated != nil {
		return Settings{}, Handle{}, accumulated
	}
	return Defaults(), candidates[0], nil
}

func decode(data []byte, format Format) (Settings, error) {
	settings := Defaults()
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&settings); err != nil {
			return Settings{}, err
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&settings); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", format)
	}
	return settings, nil
}

// Save writes settings to the file named by handle.
func Save(settings Settings, handle Handle) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if handle.Path == "" {
		return errors.New("settings path is empty")
	}
	format := handle.Format
	if format == "" {
		format = FormatTOML
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatTOML:
		data, err = toml.Marshal(settings)
	case FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err = enc.Encode(settings); err == nil {
			data = buf.Bytes()
		}
	default:
		return fmt.Errorf("unsupported settings format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(handle.Path), 0o755); err != nil {
		return fmt.Errorf("ensure settings directory: %w", err)
	}
	if err := writeFileAtomic(handle.Path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %q: %w", handle.Path, err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it over path.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".wirebench-settings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Chmod(perm); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
