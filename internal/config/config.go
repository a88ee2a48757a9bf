package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for the roused daemon.
type Config struct {
	// ListenAddress is the HTTP API listen address (e.g. ":8533").
	ListenAddress string `yaml:"listen_addr"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// StatePath is the sqlite database file holding schedules, status and revision.
	StatePath string `yaml:"state_path"`
	// DeviceIDPath is the file holding the persistent device UUID.
	// Defaults to a sibling of StatePath.
	DeviceIDPath string `yaml:"device_id_path"`
	// TickInterval is how often the engine re-evaluates schedules.
	TickInterval time.Duration `yaml:"tick_interval"`
	// LeadTime is how long before the trigger time the engine pre-arms.
	LeadTime time.Duration `yaml:"lead_time"`
	// EarlyWake fires an armed schedule early when significant movement is
	// detected inside the lead window, waking the user during light sleep.
	EarlyWake bool `yaml:"early_wake"`

	// Sync configures the remote counterpart exchange.
	Sync SyncConfig `yaml:"sync"`
	// Motion configures the accelerometer sampling and gesture detection.
	Motion MotionConfig `yaml:"motion"`
	// Audio configures playback, ringtones and volume ramps.
	Audio AudioConfig `yaml:"audio"`
	// MQTT configures the optional status announcer.
	MQTT MQTTConfig `yaml:"mqtt"`
}

// SyncConfig holds remote sync settings.
type SyncConfig struct {
	// Endpoint is the remote counterpart's base URL. Empty disables sync.
	Endpoint string `yaml:"endpoint"`
	// Interval is the periodic sync cadence.
	Interval time.Duration `yaml:"interval"`
	// RetryAttempts caps transport retries within one sync cycle.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryBaseWait is the initial backoff between retries; it doubles per
	// attempt up to RetryMaxWait.
	RetryBaseWait time.Duration `yaml:"retry_base_wait"`
	// RetryMaxWait bounds the exponential backoff.
	RetryMaxWait time.Duration `yaml:"retry_max_wait"`
	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout"`
	// Token authenticates against the remote endpoint.
	// Populated from the environment, never persisted to YAML.
	Token string `yaml:"-"`
}

// MotionConfig holds accelerometer and gesture detector settings.
type MotionConfig struct {
	// DevicePath is the sensor magnitude source read on every poll.
	// Empty disables the sampler; the alarm is then dismissable only by command.
	DevicePath string `yaml:"device_path"`
	// SampleInterval is the sensor polling period.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// WindowSpan bounds the rolling sample window by age.
	WindowSpan time.Duration `yaml:"window_span"`
	// SnoozeThreshold is the window energy above which a snooze gesture fires.
	SnoozeThreshold float64 `yaml:"snooze_threshold"`
	// DismissThreshold is the window energy above which a dismiss gesture
	// fires once sustained for DismissHold.
	DismissThreshold float64 `yaml:"dismiss_threshold"`
	// DismissHold is how long the energy must stay above DismissThreshold.
	DismissHold time.Duration `yaml:"dismiss_hold"`
	// Cooldown suspends the detector after a recognized gesture.
	Cooldown time.Duration `yaml:"cooldown"`
	// StallTimeout marks the sensor stream stalled when no sample arrives in time.
	StallTimeout time.Duration `yaml:"stall_timeout"`
	// PresenceThreshold is the per-sample delta above which a sample counts
	// towards "user is in bed".
	PresenceThreshold float64 `yaml:"presence_threshold"`
	// MovementThreshold is the per-sample delta above which a sample counts
	// towards "significant movement" (early wake).
	MovementThreshold float64 `yaml:"movement_threshold"`
}

// AudioConfig holds playback settings.
type AudioConfig struct {
	// SoundsDir holds the ringtone files; one is picked at random per ring.
	SoundsDir string `yaml:"sounds_dir"`
	// CuesDir holds night cue files. Empty disables night cues.
	CuesDir string `yaml:"cues_dir"`
	// PlayerCommand launches playback; the file path is appended.
	PlayerCommand []string `yaml:"player_command"`
	// VolumeCommand sets the output gain; the percentage (0-100) is appended.
	// Empty disables gain control and ramps become no-ops.
	VolumeCommand []string `yaml:"volume_command"`
	// MaxRing bounds an undismissed ring.
	MaxRing time.Duration `yaml:"max_ring"`
	// FadeOut is the smoothstep fade applied on every stop.
	FadeOut time.Duration `yaml:"fade_out"`
	// ReRingInterval re-fires a ring that ended without an explicit dismiss
	// while presence persists. Zero disables re-ringing.
	ReRingInterval time.Duration `yaml:"re_ring_interval"`
	// MinSleep is how long low-motion presence must last before night cues play.
	MinSleep time.Duration `yaml:"min_sleep"`
	// CueVolume is the night cue gain (0.0-1.0).
	CueVolume float64 `yaml:"cue_volume"`
	// Ramps maps profile names to volume ramp shapes.
	Ramps map[string]RampConfig `yaml:"ramps"`
}

// RampConfig describes a volume ramp: gain(t) = min(1, Slope*t + max(0, t-Knee)*KneeSlope),
// with t in seconds since the ring started.
type RampConfig struct {
	// Slope is the initial gain increase per second.
	Slope float64 `yaml:"slope"`
	// Knee is when the second, steeper segment kicks in.
	Knee time.Duration `yaml:"knee"`
	// KneeSlope is the additional gain increase per second past the knee.
	KneeSlope float64 `yaml:"knee_slope"`
}

// MQTTConfig holds the optional status announcer settings.
type MQTTConfig struct {
	// Broker is the MQTT broker URL (e.g. "tcp://broker:1883"). Empty disables MQTT.
	Broker string `yaml:"broker"`
	// Username authenticates against the broker.
	Username string `yaml:"username"`
	// Password authenticates against the broker.
	// Populated from the environment, never persisted to YAML.
	Password string `yaml:"-"`
}

const (
	// DefaultConfigFilename is the default daemon settings file.
	DefaultConfigFilename = "roused.yaml"
	// DefaultListenAddress is the default HTTP API listen address.
	DefaultListenAddress = ":8533"
	// DefaultStateFilename is the default sqlite state database.
	DefaultStateFilename = "roused.db"
	// DefaultTickInterval matches the original device's evaluation cadence.
	DefaultTickInterval = 500 * time.Millisecond
	// DefaultLeadTime is the default pre-arm window before the trigger.
	DefaultLeadTime = 30 * time.Minute
	// DefaultSyncInterval is the periodic sync cadence.
	DefaultSyncInterval = 5 * time.Second
	// DefaultSyncRetryAttempts caps retries within one sync cycle.
	DefaultSyncRetryAttempts = 3
	// DefaultSyncRetryBaseWait seeds the exponential backoff.
	DefaultSyncRetryBaseWait = 500 * time.Millisecond
	// DefaultSyncRetryMaxWait bounds the exponential backoff.
	DefaultSyncRetryMaxWait = 10 * time.Second
	// DefaultSyncTimeout bounds each sync HTTP request.
	DefaultSyncTimeout = 5 * time.Second
	// DefaultSampleInterval is the sensor polling period.
	DefaultSampleInterval = 100 * time.Millisecond
	// DefaultWindowSpan is the rolling motion window length.
	DefaultWindowSpan = 10 * time.Second
	// DefaultMaxRing bounds an undismissed ring.
	DefaultMaxRing = 5 * time.Minute
	// DefaultFadeOut is the stop fade duration.
	DefaultFadeOut = 5 * time.Second
	// DefaultReRingInterval re-fires while the user stays in bed.
	DefaultReRingInterval = 15 * time.Minute
	// DefaultMinSleep gates night cues on time already spent asleep.
	DefaultMinSleep = 90 * time.Minute
	// DefaultFilePermissions restricts settings and state files to the owner.
	DefaultFilePermissions = 0o600

	// EnvSyncToken is the environment variable carrying the sync token.
	EnvSyncToken = "ROUSE_SYNC_TOKEN"
	// EnvMQTTPassword is the environment variable carrying the MQTT password.
	EnvMQTTPassword = "ROUSE_MQTT_PASSWORD"

	// defaultSnoozeEnergy and defaultDismissEnergy are the gesture thresholds
	// in summed delta-magnitude units over the window.
	defaultSnoozeEnergy  = 0.05
	defaultDismissEnergy = 0.2
	// defaultPresenceDelta and defaultMovementDelta are per-sample delta
	// thresholds carried over from the original sensor calibration.
	defaultPresenceDelta = 0.015
	defaultMovementDelta = 0.02
	// defaultCueVolume keeps night cues quiet enough not to wake the user.
	defaultCueVolume = 0.12
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errThresholdOrder is returned when the snooze threshold is not below the dismiss threshold.
	errThresholdOrder = errors.New("snooze threshold must be below dismiss threshold")
)

// Default returns a configuration with every field at its default value.
func Default() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		LogLevel:      "info",
		StatePath:     DefaultStateFilename,
		TickInterval:  DefaultTickInterval,
		LeadTime:      DefaultLeadTime,
		Sync: SyncConfig{
			Interval:      DefaultSyncInterval,
			RetryAttempts: DefaultSyncRetryAttempts,
			RetryBaseWait: DefaultSyncRetryBaseWait,
			RetryMaxWait:  DefaultSyncRetryMaxWait,
			Timeout:       DefaultSyncTimeout,
		},
		Motion: MotionConfig{
			SampleInterval:    DefaultSampleInterval,
			WindowSpan:        DefaultWindowSpan,
			SnoozeThreshold:   defaultSnoozeEnergy,
			DismissThreshold:  defaultDismissEnergy,
			DismissHold:       2 * time.Second,
			Cooldown:          3 * time.Second,
			StallTimeout:      2 * time.Second,
			PresenceThreshold: defaultPresenceDelta,
			MovementThreshold: defaultMovementDelta,
		},
		Audio: AudioConfig{
			SoundsDir:      "sounds",
			PlayerCommand:  []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
			VolumeCommand:  []string{"amixer", "-q", "sset", "Master"},
			MaxRing:        DefaultMaxRing,
			FadeOut:        DefaultFadeOut,
			ReRingInterval: DefaultReRingInterval,
			MinSleep:       DefaultMinSleep,
			CueVolume:      defaultCueVolume,
			Ramps: map[string]RampConfig{
				// The default ramp reaches full volume in roughly a minute.
				"default": {Slope: 0.007, Knee: 5 * time.Second, KneeSlope: 0.013},
			},
		},
	}
}

// Load reads configuration from the provided path, fills defaults,
// validates essential fields and pulls secrets from the environment.
// A missing file yields the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults are a complete working configuration.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	loadSecrets(cfg)

	return cfg, nil
}

// Save writes the configuration to the provided path with restricted permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// filling defaults for zero-valued durations.
//
//nolint:cyclop // Plain field-by-field validation.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStateFilename
	}

	if cfg.DeviceIDPath == "" {
		cfg.DeviceIDPath = filepath.Join(filepath.Dir(cfg.StatePath), "device-id")
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	if cfg.LeadTime <= 0 {
		cfg.LeadTime = DefaultLeadTime
	}

	if cfg.Sync.Endpoint != "" {
		if _, err := url.ParseRequestURI(cfg.Sync.Endpoint); err != nil {
			return fmt.Errorf("invalid sync endpoint: %w", err)
		}
	}

	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = DefaultSyncInterval
	}

	if cfg.Sync.Timeout <= 0 {
		cfg.Sync.Timeout = DefaultSyncTimeout
	}

	if cfg.Motion.SnoozeThreshold >= cfg.Motion.DismissThreshold {
		return errThresholdOrder
	}

	if cfg.Audio.MaxRing <= 0 {
		cfg.Audio.MaxRing = DefaultMaxRing
	}

	if _, ok := cfg.Audio.Ramps["default"]; !ok {
		if cfg.Audio.Ramps == nil {
			cfg.Audio.Ramps = make(map[string]RampConfig, 1)
		}

		cfg.Audio.Ramps["default"] = Default().Audio.Ramps["default"]
	}

	return nil
}

// LoadDotenv seeds the process environment from an optional .env file.
// A missing file is not an error.
func LoadDotenv(path string) error {
	if path == "" {
		path = ".env"
	}

	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load dotenv: %w", err)
	}

	return nil
}

// loadSecrets pulls values we refuse to keep in the YAML file from the environment.
func loadSecrets(cfg *Config) {
	if token := os.Getenv(EnvSyncToken); token != "" {
		cfg.Sync.Token = token
	}

	if password := os.Getenv(EnvMQTTPassword); password != "" {
		cfg.MQTT.Password = password
	}
}
