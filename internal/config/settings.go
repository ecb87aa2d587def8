// Package config holds the persisted connection settings and the runtime
// configuration read from the environment.
package config

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/use-go/ptzctl/ptz"
)

// FileName is the settings file in the user's home directory
const FileName = ".ptzctl.yaml"

// Settings keys
const (
	KeyHost         = "host"
	KeyPort         = "port"
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyStreamURL    = "stream_url"
	KeyPanTiltSpeed = "pan_tilt_speed"
	KeyZoomSpeed    = "zoom_speed"
)

// Settings is the last connection the user made
type Settings struct {
	Host         string  `json:"host"`
	Port         int     `json:"port"`
	Username     string  `json:"username"`
	Password     string  `json:"-"`
	StreamURL    string  `json:"stream_url"`
	PanTiltSpeed float64 `json:"pan_tilt_speed"`
	ZoomSpeed    float64 `json:"zoom_speed"`
}

// DefaultSettings is what Load returns when there is no file
func DefaultSettings() Settings {
	return Settings{Port: 80, Username: "admin", PanTiltSpeed: 0.5, ZoomSpeed: 0.5}
}

// Store reads and writes Settings as YAML
type Store struct {
	v    *viper.Viper
	path string
}

// DefaultPath is $HOME/.ptzctl.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Annotate(err, "find home directory")
	}
	return filepath.Join(home, FileName), nil
}

// NewStore returns a store for path, or for DefaultPath when path is empty
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetConfigPermissions(0o600)

	d := DefaultSettings()
	v.SetDefault(KeyPort, d.Port)
	v.SetDefault(KeyUsername, d.Username)
	v.SetDefault(KeyPanTiltSpeed, d.PanTiltSpeed)
	v.SetDefault(KeyZoomSpeed, d.ZoomSpeed)

	return &Store{v: v, path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the file. A missing file is not an error: the defaults are
// returned. Out-of-range speeds are clamped into [0,1].
func (s *Store) Load() (Settings, error) {
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !os.IsNotExist(err) && !errors.As(err, &notFound) {
			return Settings{}, errors.Annotatef(err, "read %s", s.path)
		}
	}

	st := Settings{
		Host:         s.v.GetString(KeyHost),
		Port:         s.v.GetInt(KeyPort),
		Username:     s.v.GetString(KeyUsername),
		Password:     s.v.GetString(KeyPassword),
		StreamURL:    s.v.GetString(KeyStreamURL),
		PanTiltSpeed: clampUnit(s.v.GetFloat64(KeyPanTiltSpeed)),
		ZoomSpeed:    clampUnit(s.v.GetFloat64(KeyZoomSpeed)),
	}
	if st.Port < 0 || st.Port > 65535 {
		return Settings{}, ptz.Invalidf("%s: port %d out of range", s.path, st.Port)
	}
	return st, nil
}

// Save writes every field, creating the file if needed
func (s *Store) Save(st Settings) error {
	if st.Port < 0 || st.Port > 65535 {
		return ptz.Invalidf("port %d out of range", st.Port)
	}
	s.v.Set(KeyHost, st.Host)
	s.v.Set(KeyPort, st.Port)
	s.v.Set(KeyUsername, st.Username)
	s.v.Set(KeyPassword, st.Password)
	s.v.Set(KeyStreamURL, st.StreamURL)
	s.v.Set(KeyPanTiltSpeed, clampUnit(st.PanTiltSpeed))
	s.v.Set(KeyZoomSpeed, clampUnit(st.ZoomSpeed))

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Annotatef(err, "create %s", filepath.Dir(s.path))
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return errors.Annotatef(err, "write %s", s.path)
	}
	return nil
}

func clampUnit(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
