// conf/config.go settings structure and loading
package conf

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiopool/internal/errors"
)

const (
	// DefaultAllowedDevices is the number of devices created before new
	// requests start sharing the main device.
	DefaultAllowedDevices = 2
	// MaxAllowedDevices is the hard ceiling of concurrently live devices.
	MaxAllowedDevices = 8
	// DefaultMinFreeIndices is how many freed slot indices are retained
	// before any of them is reused.
	DefaultMinFreeIndices = 32

	configName = "audiopool"
	envPrefix  = "AUDIOPOOL"
)

// Settings contains all configuration options for the audio device pool.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"` // true to enable debug logging

	Log LogConfig `yaml:"log" mapstructure:"log"`

	Pool PoolSettings `yaml:"pool" mapstructure:"pool"`

	Quality QualitySettings `yaml:"quality" mapstructure:"quality"`

	AudioThread AudioThreadSettings `yaml:"audiothread" mapstructure:"audiothread"`

	Render RenderSettings `yaml:"render" mapstructure:"render"`

	Resources ResourceSettings `yaml:"resources" mapstructure:"resources"`

	Telemetry TelemetrySettings `yaml:"telemetry" mapstructure:"telemetry"`

	// ConfigFile is the file the settings were read from, empty when only
	// defaults and environment were used.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

// LogConfig controls the process loggers.
type LogConfig struct {
	Level string          `yaml:"level" mapstructure:"level"` // trace, debug, info, warn, error
	File  LogFileSettings `yaml:"file" mapstructure:"file"`
}

// LogFileSettings describes a rotated JSON log file.
type LogFileSettings struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxSize    int    `yaml:"maxsize" mapstructure:"maxsize"`       // megabytes before rotation
	MaxBackups int    `yaml:"maxbackups" mapstructure:"maxbackups"` // rotated files to keep
	MaxAge     int    `yaml:"maxage" mapstructure:"maxage"`         // days to keep rotated files
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// PoolSettings controls device creation policy.
type PoolSettings struct {
	// AllowMultipleDevices false selects single-instance mode: once one device
	// is live every further request shares it.
	AllowMultipleDevices bool `yaml:"allowmultipledevices" mapstructure:"allowmultipledevices"`
	DefaultDevices       int  `yaml:"defaultdevices" mapstructure:"defaultdevices"`
	MaxDevices           int  `yaml:"maxdevices" mapstructure:"maxdevices"`
	MinFreeIndices       int  `yaml:"minfreeindices" mapstructure:"minfreeindices"`
}

// QualityLevel is one named audio quality preset.
type QualityLevel struct {
	Name        string `yaml:"name" mapstructure:"name"`
	MaxChannels int    `yaml:"maxchannels" mapstructure:"maxchannels"`
}

// QualitySettings lists the quality presets and the selected one.
type QualitySettings struct {
	Levels  []QualityLevel `yaml:"levels" mapstructure:"levels"`
	Current int            `yaml:"current" mapstructure:"current"` // index into Levels
}

// HighestMaxChannels returns the largest channel budget across all levels.
func (q QualitySettings) HighestMaxChannels() int {
	highest := 0
	for _, level := range q.Levels {
		highest = max(highest, level.MaxChannels)
	}
	return highest
}

// CurrentMaxChannels returns the channel budget of the selected level.
// An out of range selection falls back to the highest budget.
func (q QualitySettings) CurrentMaxChannels() int {
	if q.Current < 0 || q.Current >= len(q.Levels) {
		return q.HighestMaxChannels()
	}
	return q.Levels[q.Current].MaxChannels
}

// AudioThreadSettings controls the dedicated rendering thread.
type AudioThreadSettings struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`     // false runs every command inline
	Interval  time.Duration `yaml:"interval" mapstructure:"interval"`   // time between update passes
	QueueSize int           `yaml:"queuesize" mapstructure:"queuesize"` // command queue capacity hint
	Priority  int           `yaml:"priority" mapstructure:"priority"`   // nice value on unix, ignored when zero
}

// RenderSettings configures the software device and its output.
type RenderSettings struct {
	SampleRate      int           `yaml:"samplerate" mapstructure:"samplerate"`
	Channels        int           `yaml:"channels" mapstructure:"channels"`
	FramesPerBuffer int           `yaml:"framesperbuffer" mapstructure:"framesperbuffer"`
	Output          string        `yaml:"output" mapstructure:"output"` // "null" or "malgo"
	FadeIn          time.Duration `yaml:"fadein" mapstructure:"fadein"`
	RingFrames      int           `yaml:"ringframes" mapstructure:"ringframes"` // output ring buffer size in frames
}

// ResourceSettings configures the buffer resource tracker.
type ResourceSettings struct {
	// FreedRetention is how long a freed buffer id is remembered for diagnostics.
	FreedRetention time.Duration `yaml:"freedretention" mapstructure:"freedretention"`
}

// TelemetrySettings controls metrics exposure and error reporting.
type TelemetrySettings struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen    string `yaml:"listen" mapstructure:"listen"`
	SentryDSN string `yaml:"sentrydsn" mapstructure:"sentrydsn"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// An empty path searches the default config locations; a missing file there
// is not an error and leaves the defaults in place.
func Load(path string) (*Settings, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	settings, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// Defaults returns settings built from defaults only, without reading files or environment.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings, err := unmarshal(v)
	if err != nil {
		// defaults are static and always decode
		panic(fmt.Sprintf("conf: default settings do not decode: %v", err))
	}
	return settings
}

// GetSettings returns the settings from the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// newViper builds a viper instance with defaults, env overrides and the config file.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaultConfig(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(err).
				Component("configuration").
				Category(errors.CategoryConfiguration).
				FileContext(path, 0).
				Context("operation", "read_config").
				Build()
		}
		return v, nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, err
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, errors.New(err).
				Component("configuration").
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config").
				Build()
		}
	}

	return v, nil
}

func unmarshal(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	settings.ConfigFile = v.ConfigFileUsed()
	return settings, nil
}

// YAML renders the effective settings with the sentry DSN hidden.
func (s *Settings) YAML() ([]byte, error) {
	redacted := *s
	if redacted.Telemetry.SentryDSN != "" {
		redacted.Telemetry.SentryDSN = "[REDACTED]"
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return nil, fmt.Errorf("error encoding settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("error encoding settings: %w", err)
	}
	return buf.Bytes(), nil
}
