package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AvatarConfig struct {
	Reference  string `yaml:"reference"`
	Audio      string `yaml:"audio"`
	Socket     string `yaml:"socket"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FPS        int    `yaml:"fps"`
	BatchSize  int    `yaml:"batch_size"`
	SampleRate int    `yaml:"sample_rate"`
}

type EngineConfig struct {
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
	Device  string `yaml:"device"`
	Float16 bool   `yaml:"float16"`
}

type AudioConfig struct {
	Mode    string `yaml:"mode"` // wav, exec
	Command string `yaml:"command"`
}

type FeaturesConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	WindowRows int    `yaml:"window_rows"`
	WindowCols int    `yaml:"window_cols"`
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type SessionLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Config struct {
	Avatar     AvatarConfig     `yaml:"avatar"`
	Engine     EngineConfig     `yaml:"engine"`
	Audio      AudioConfig      `yaml:"audio"`
	Features   FeaturesConfig   `yaml:"features"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Bus        BusConfig        `yaml:"bus"`
	SessionLog SessionLogConfig `yaml:"session_log"`
}

func Default() Config {
	return Config{
		Avatar: AvatarConfig{
			Socket:     "/tmp/rsfx-avatar.sock",
			Width:      120,
			Height:     80,
			FPS:        25,
			BatchSize:  8,
			SampleRate: 16000,
		},
		Engine: EngineConfig{
			Mode:    "mock",
			Float16: true,
		},
		Audio: AudioConfig{
			Mode: "wav",
		},
		Features: FeaturesConfig{
			Mode:       "mock",
			WindowRows: 50,
			WindowCols: 384,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		SessionLog: SessionLogConfig{
			Enabled: false,
			Path:    "./data/rsfx-sessions.db",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Avatar.Reference, "RSFX_AVATAR_REFERENCE")
	overrideString(&cfg.Avatar.Audio, "RSFX_AVATAR_AUDIO")
	overrideString(&cfg.Avatar.Socket, "RSFX_AVATAR_SOCKET")
	overrideInt(&cfg.Avatar.Width, "RSFX_AVATAR_WIDTH")
	overrideInt(&cfg.Avatar.Height, "RSFX_AVATAR_HEIGHT")
	overrideInt(&cfg.Avatar.FPS, "RSFX_AVATAR_FPS")
	overrideInt(&cfg.Avatar.BatchSize, "RSFX_AVATAR_BATCH_SIZE")
	overrideInt(&cfg.Avatar.SampleRate, "RSFX_AVATAR_SAMPLE_RATE")
	overrideString(&cfg.Engine.Mode, "RSFX_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "RSFX_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Device, "RSFX_ENGINE_DEVICE")
	overrideBool(&cfg.Engine.Float16, "RSFX_ENGINE_FLOAT16")
	overrideString(&cfg.Audio.Mode, "RSFX_AUDIO_MODE")
	overrideString(&cfg.Audio.Command, "RSFX_AUDIO_COMMAND")
	overrideString(&cfg.Features.Mode, "RSFX_FEATURES_MODE")
	overrideString(&cfg.Features.Command, "RSFX_FEATURES_COMMAND")
	overrideInt(&cfg.Features.WindowRows, "RSFX_FEATURES_WINDOW_ROWS")
	overrideInt(&cfg.Features.WindowCols, "RSFX_FEATURES_WINDOW_COLS")
	overrideString(&cfg.Telemetry.LogLevel, "RSFX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "RSFX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "RSFX_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "RSFX_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "RSFX_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "RSFX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "RSFX_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "RSFX_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "RSFX_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "RSFX_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "RSFX_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "RSFX_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "RSFX_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.SessionLog.Enabled, "RSFX_SESSION_LOG_ENABLED")
	overrideString(&cfg.SessionLog.Path, "RSFX_SESSION_LOG_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Validate checks cross-field constraints. Called after flag overrides as
// well, so the CLI cannot smuggle in invalid geometry.
func Validate(cfg Config) error {
	if cfg.Avatar.Socket == "" {
		return errors.New("avatar.socket must not be empty")
	}
	if cfg.Avatar.Width <= 0 || cfg.Avatar.Width > 65535 {
		return errors.New("avatar.width must be between 1 and 65535")
	}
	if cfg.Avatar.Height <= 0 || cfg.Avatar.Height > 65535 {
		return errors.New("avatar.height must be between 1 and 65535")
	}
	if cfg.Avatar.Height%2 != 0 {
		return errors.New("avatar.height must be even")
	}
	if cfg.Avatar.FPS <= 0 {
		return errors.New("avatar.fps must be positive")
	}
	if cfg.Avatar.BatchSize <= 0 {
		return errors.New("avatar.batch_size must be positive")
	}
	if cfg.Avatar.SampleRate <= 0 {
		return errors.New("avatar.sample_rate must be positive")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	switch cfg.Audio.Mode {
	case "wav", "exec":
	default:
		return errors.New("audio.mode must be one of wav|exec")
	}
	if cfg.Audio.Mode == "exec" && cfg.Audio.Command == "" {
		return errors.New("audio.command must be set when mode=exec")
	}
	switch cfg.Features.Mode {
	case "mock", "exec":
	default:
		return errors.New("features.mode must be one of mock|exec")
	}
	if cfg.Features.Mode == "exec" && cfg.Features.Command == "" {
		return errors.New("features.command must be set when mode=exec")
	}
	if cfg.Features.WindowRows <= 0 || cfg.Features.WindowCols <= 0 {
		return errors.New("features window shape must be positive")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.SessionLog.Enabled && cfg.SessionLog.Path == "" {
		return errors.New("session_log.path must not be empty when enabled")
	}
	return nil
}
