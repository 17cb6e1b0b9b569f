// Package config builds the node's typed configuration from viper.
// Precedence: command-line flags, then FIELDCAM_* environment variables,
// then the config file, then the defaults below.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/franz/fieldcam/internal/util"
)

// Config is the full runtime configuration of a node.
type Config struct {
	StorageRoot string
	APIBase     string
	DeviceToken string

	PhotoCommand  string
	PhotoInterval time.Duration
	PhotoTimeout  time.Duration

	AudioEnabled    bool
	AudioBackend    string // "malgo" or "pipe"
	RecorderCommand string
	SampleRate      int
	FrameMs         int
	PrerollMs       int
	ForcedPostMs    int
	MaxClipSec      int
	MinClipMs       int
	StartMult       float64
	StopMult        float64
	StartFrames     int
	StopFrames      int
	NoiseAlpha      float64
	SpikeMult       float64
	FloorMin        float64

	HeartbeatInterval time.Duration

	UploadInterval time.Duration
	UploadBatch    int
	MaxAttempts    int

	RetentionInterval time.Duration
	MinFreePct        float64
	EmergencyFreePct  float64

	TelemetryInterval time.Duration

	TimeServer   string
	SyncInterval time.Duration

	ProbeInterval time.Duration
}

// SetDefaults registers every configuration default with viper. Called
// once from the CLI before any command runs.
func SetDefaults() {
	viper.SetDefault("storage.root", "/var/lib/fieldcam")

	viper.SetDefault("photo.command", "")
	viper.SetDefault("photo.interval_sec", 300)
	viper.SetDefault("photo.timeout_sec", 15)

	viper.SetDefault("audio.enabled", true)
	viper.SetDefault("audio.backend", "malgo")
	viper.SetDefault("audio.recorder_command", "arecord -q -f S16_LE -r 16000 -c 1 -t raw")
	viper.SetDefault("audio.sample_rate", 16000)
	viper.SetDefault("audio.frame_ms", 20)
	viper.SetDefault("audio.preroll_ms", 2000)
	viper.SetDefault("audio.forced_post_ms", 8000)
	viper.SetDefault("audio.max_clip_sec", 60)
	viper.SetDefault("audio.min_clip_ms", 1000)
	viper.SetDefault("audio.start_mult", 3.0)
	viper.SetDefault("audio.stop_mult", 1.5)
	viper.SetDefault("audio.start_frames", 5)
	viper.SetDefault("audio.stop_frames", 50)
	viper.SetDefault("audio.noise_alpha", 0.05)
	viper.SetDefault("audio.spike_mult", 2.0)
	viper.SetDefault("audio.floor_min", 12.0)

	viper.SetDefault("heartbeat.interval_sec", 3600)

	viper.SetDefault("upload.interval_sec", 30)
	viper.SetDefault("upload.batch", 3)
	viper.SetDefault("upload.max_attempts", 3)

	viper.SetDefault("retention.interval_sec", 300)
	viper.SetDefault("retention.min_free_pct", 15.0)
	viper.SetDefault("retention.emergency_free_pct", 5.0)

	viper.SetDefault("telemetry.interval_sec", 900)

	viper.SetDefault("time.server", "pool.ntp.org")
	viper.SetDefault("time.sync_interval_sec", 3600)

	viper.SetDefault("link.probe_interval_sec", 60)
}

func seconds(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * time.Second
}

// Load reads the configuration out of viper and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		StorageRoot: viper.GetString("storage.root"),
		APIBase:     viper.GetString("api.base"),
		DeviceToken: viper.GetString("api.token"),

		PhotoCommand:  viper.GetString("photo.command"),
		PhotoInterval: seconds("photo.interval_sec"),
		PhotoTimeout:  seconds("photo.timeout_sec"),

		AudioEnabled:    viper.GetBool("audio.enabled"),
		AudioBackend:    viper.GetString("audio.backend"),
		RecorderCommand: viper.GetString("audio.recorder_command"),
		SampleRate:      viper.GetInt("audio.sample_rate"),
		FrameMs:         viper.GetInt("audio.frame_ms"),
		PrerollMs:       viper.GetInt("audio.preroll_ms"),
		ForcedPostMs:    viper.GetInt("audio.forced_post_ms"),
		MaxClipSec:      viper.GetInt("audio.max_clip_sec"),
		MinClipMs:       viper.GetInt("audio.min_clip_ms"),
		StartMult:       viper.GetFloat64("audio.start_mult"),
		StopMult:        viper.GetFloat64("audio.stop_mult"),
		StartFrames:     viper.GetInt("audio.start_frames"),
		StopFrames:      viper.GetInt("audio.stop_frames"),
		NoiseAlpha:      viper.GetFloat64("audio.noise_alpha"),
		SpikeMult:       viper.GetFloat64("audio.spike_mult"),
		FloorMin:        viper.GetFloat64("audio.floor_min"),

		HeartbeatInterval: seconds("heartbeat.interval_sec"),

		UploadInterval: seconds("upload.interval_sec"),
		UploadBatch:    viper.GetInt("upload.batch"),
		MaxAttempts:    viper.GetInt("upload.max_attempts"),

		RetentionInterval: seconds("retention.interval_sec"),
		MinFreePct:        viper.GetFloat64("retention.min_free_pct"),
		EmergencyFreePct:  viper.GetFloat64("retention.emergency_free_pct"),

		TelemetryInterval: seconds("telemetry.interval_sec"),

		TimeServer:   viper.GetString("time.server"),
		SyncInterval: seconds("time.sync_interval_sec"),

		ProbeInterval: seconds("link.probe_interval_sec"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("%w: storage.root is required", util.ErrInvalidConfig)
	}
	if c.SampleRate <= 0 || c.FrameMs <= 0 {
		return fmt.Errorf("%w: audio.sample_rate and audio.frame_ms must be positive", util.ErrInvalidConfig)
	}
	if c.AudioEnabled && c.AudioBackend != "malgo" && c.AudioBackend != "pipe" {
		return fmt.Errorf("%w: audio.backend must be \"malgo\" or \"pipe\", got %q", util.ErrInvalidConfig, c.AudioBackend)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: upload.max_attempts must be at least 1", util.ErrInvalidConfig)
	}
	if c.EmergencyFreePct > c.MinFreePct {
		return fmt.Errorf("%w: retention.emergency_free_pct cannot exceed retention.min_free_pct", util.ErrInvalidConfig)
	}
	if c.StartMult <= c.StopMult {
		return fmt.Errorf("%w: audio.start_mult must exceed audio.stop_mult", util.ErrInvalidConfig)
	}
	return nil
}

// FrameSamples returns the number of samples in one audio frame.
func (c *Config) FrameSamples() int {
	return c.SampleRate * c.FrameMs / 1000
}

// samplesFromMs converts a millisecond setting to a sample count.
func (c *Config) samplesFromMs(ms int) int {
	return c.SampleRate * ms / 1000
}

// PrerollSamples returns the preroll ring capacity in samples.
func (c *Config) PrerollSamples() int { return c.samplesFromMs(c.PrerollMs) }

// ForcedPostSamples returns the forced-recording post budget in samples.
func (c *Config) ForcedPostSamples() int { return c.samplesFromMs(c.ForcedPostMs) }

// MaxClipSamples returns the hard clip length cap in samples.
func (c *Config) MaxClipSamples() int { return c.SampleRate * c.MaxClipSec }

// MinClipSamples returns the discard threshold in samples.
func (c *Config) MinClipSamples() int { return c.samplesFromMs(c.MinClipMs) }
