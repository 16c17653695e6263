// Package conf loads, validates and writes the application settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// ComponentConf tags errors raised by this package.
const ComponentConf = "conf"

// EnvPrefix is prepended to environment overrides, e.g. ADB_AUDIO_SAMPLERATE.
const EnvPrefix = "ADB"

// Settings is the complete application configuration.
type Settings struct {
	Device    DeviceSettings       `mapstructure:"device" yaml:"device"`
	Audio     AudioSettings        `mapstructure:"audio" yaml:"audio"`
	Stats     StatsSettings        `mapstructure:"stats" yaml:"stats"`
	Transport TransportSettings    `mapstructure:"transport" yaml:"transport"`
	Log       logger.LoggingConfig `mapstructure:"log" yaml:"log"`
	HTTP      HTTPSettings         `mapstructure:"http" yaml:"http"`
	MQTT      MQTTSettings         `mapstructure:"mqtt" yaml:"mqtt"`
	Sentry    SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
}

// DeviceSettings selects the audio device.
type DeviceSettings struct {
	Mode         string `mapstructure:"mode" yaml:"mode" validate:"oneof=duplex capture playback"`
	Capture      string `mapstructure:"capture" yaml:"capture"`   // name, ID or "default"
	Playback     string `mapstructure:"playback" yaml:"playback"` // name, ID or "default"
	PeriodMillis int    `mapstructure:"periodmillis" yaml:"periodmillis" validate:"gte=1,lte=1000"`
}

// AudioSettings describes the PCM format exchanged with the device.
type AudioSettings struct {
	SampleRate      int `mapstructure:"samplerate" yaml:"samplerate" validate:"gte=8000,lte=192000"`
	RecordChannels  int `mapstructure:"recordchannels" yaml:"recordchannels" validate:"gte=1,lte=2"`
	PlayoutChannels int `mapstructure:"playoutchannels" yaml:"playoutchannels" validate:"gte=1,lte=2"`
}

// StatsSettings tunes the device buffer statistics.
type StatsSettings struct {
	ReportInterval         time.Duration `mapstructure:"reportinterval" yaml:"reportinterval" validate:"gt=0"`
	MinValidCallDuration   time.Duration `mapstructure:"minvalidcallduration" yaml:"minvalidcallduration" validate:"gte=0"`
	SamplingDivisor        int           `mapstructure:"samplingdivisor" yaml:"samplingdivisor" validate:"gte=1"`
	WorkerQueueSize        int           `mapstructure:"workerqueuesize" yaml:"workerqueuesize" validate:"gte=1"`
	PanicOnThreadViolation bool          `mapstructure:"paniconthreadviolation" yaml:"paniconthreadviolation"`
}

// TransportSettings selects the audio transport attached to the buffer.
type TransportSettings struct {
	Type           string `mapstructure:"type" yaml:"type" validate:"oneof=loopback wav none"`
	LoopbackMillis int    `mapstructure:"loopbackmillis" yaml:"loopbackmillis" validate:"gte=10,lte=10000"`
	WAVInput       string `mapstructure:"wavinput" yaml:"wavinput"`   // played out
	WAVOutput      string `mapstructure:"wavoutput" yaml:"wavoutput"` // receives recorded audio
	Loop           bool   `mapstructure:"loop" yaml:"loop"`
}

// HTTPSettings configures the status API.
type HTTPSettings struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Listen          string        `mapstructure:"listen" yaml:"listen" validate:"required_if=Enabled true"`
	ReportRetention time.Duration `mapstructure:"reportretention" yaml:"reportretention" validate:"gte=0"`
}

// MQTTSettings configures report publishing.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker" validate:"required_if=Enabled true,omitempty,url"`
	ClientID string `mapstructure:"clientid" yaml:"clientid"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Topic    string `mapstructure:"topic" yaml:"topic" validate:"required_if=Enabled true"`
	QoS      int    `mapstructure:"qos" yaml:"qos" validate:"gte=0,lte=2"`
	Retain   bool   `mapstructure:"retain" yaml:"retain"`
}

// SentrySettings configures opt-in error reporting.
type SentrySettings struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	DSN         string  `mapstructure:"dsn" yaml:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
	SampleRate  float64 `mapstructure:"samplerate" yaml:"samplerate" validate:"gte=0,lte=1"`
	Debug       bool    `mapstructure:"debug" yaml:"debug"`
}

// Load reads the configuration into a Settings value. configFile may be empty,
// in which case config.yaml is searched in the default paths and its absence is
// not an error. Environment variables prefixed with ADB_ override file values.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaultConfig(v)
	configureEnvironment(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.New(fmt.Errorf("error reading config file: %w", err)).
				Component(ComponentConf).
				Category(errors.CategoryConfiguration).
				Context("config_file", configFile).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component(ComponentConf).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Default returns the built-in defaults.
func Default() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		panic(fmt.Sprintf("default settings do not decode: %v", err))
	}
	return settings
}

// DefaultConfigPaths returns the directories searched for config.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "audiodevicebuffer"))
	}
	return append(paths, "/etc/audiodevicebuffer")
}

// AudioCoreConfig maps the statistics settings onto a device buffer config.
func (s *Settings) AudioCoreConfig() audiocore.Config {
	cfg := audiocore.DefaultConfig()
	cfg.ReportInterval = s.Stats.ReportInterval
	cfg.MinValidCallDuration = s.Stats.MinValidCallDuration
	cfg.StatsSamplingDivisor = s.Stats.SamplingDivisor
	cfg.WorkerQueueSize = s.Stats.WorkerQueueSize
	cfg.PanicOnThreadViolation = s.Stats.PanicOnThreadViolation
	return cfg
}
