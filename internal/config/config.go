// Package config loads the rewind simulator configuration: built-in defaults,
// then an optional YAML file, then REWIND_* environment variables.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/entities"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/observability"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/sim"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

var (
	ErrInvalidRecordTime = errors.New("config: max_record_time must be positive")
	ErrInvalidAutoRewind = errors.New("config: auto_rewind_time must not be negative")
	ErrInvalidTickRate   = errors.New("config: tick_rate must be positive")
	ErrInvalidCapacity   = errors.New("config: command_capacity must be positive")
	ErrInvalidTimeScale  = errors.New("config: time_scale out of range")
	ErrInvalidLogFormat  = errors.New("config: log.format must be text or json")
	ErrInvalidCount      = errors.New("config: counts must not be negative")
)

// LogConfig selects operator log output.
type LogConfig struct {
	Level    string `yaml:"level" json:"level" env:"REWIND_LOG_LEVEL"`
	Format   string `yaml:"format" json:"format" env:"REWIND_LOG_FORMAT"`
	JSONPath string `yaml:"json_path" json:"json_path" env:"REWIND_LOG_JSON_PATH"`
	Color    bool   `yaml:"color" json:"color" env:"REWIND_LOG_COLOR"`
}

// Config is the full process configuration.
type Config struct {
	MaxRecordTime  time.Duration `yaml:"max_record_time" json:"max_record_time" env:"REWIND_MAX_RECORD_TIME"`
	AutoRewindTime time.Duration `yaml:"auto_rewind_time" json:"auto_rewind_time" env:"REWIND_AUTO_REWIND_TIME"`
	MaxEntries     int           `yaml:"max_entries" json:"max_entries" env:"REWIND_MAX_ENTRIES"`
	CaptureWorkers int           `yaml:"capture_workers" json:"capture_workers" env:"REWIND_CAPTURE_WORKERS"`

	TickRate        int     `yaml:"tick_rate" json:"tick_rate" env:"REWIND_TICK_RATE"`
	CatchupMaxTicks int     `yaml:"catchup_max_ticks" json:"catchup_max_ticks" env:"REWIND_CATCHUP_MAX_TICKS"`
	CommandCapacity int     `yaml:"command_capacity" json:"command_capacity" env:"REWIND_COMMAND_CAPACITY"`
	WarningStep     int     `yaml:"warning_step" json:"warning_step" env:"REWIND_WARNING_STEP"`
	ScrubRate       float64 `yaml:"scrub_rate" json:"scrub_rate" env:"REWIND_SCRUB_RATE"`
	TimeScale       float64 `yaml:"time_scale" json:"time_scale" env:"REWIND_TIME_SCALE"`

	ListenAddr    string `yaml:"listen_addr" json:"listen_addr" env:"REWIND_LISTEN_ADDR"`
	TraceEndpoint string `yaml:"trace_endpoint" json:"trace_endpoint" env:"REWIND_TRACE_ENDPOINT"`

	Log           LogConfig            `yaml:"log" json:"log"`
	Observability observability.Config `yaml:"observability" json:"observability"`
	Scenario      entities.Scenario    `yaml:"scenario" json:"scenario"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	loop := sim.DefaultLoopConfig()
	return Config{
		MaxRecordTime:   rewind.DefaultMaxRecordTime,
		AutoRewindTime:  rewind.DefaultAutoRewindTime,
		TickRate:        loop.TickRate,
		CatchupMaxTicks: loop.CatchupMaxTicks,
		CommandCapacity: loop.CommandCapacity,
		WarningStep:     loop.WarningStep,
		ScrubRate:       loop.ScrubRate,
		TimeScale:       1,
		ListenAddr:      ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scenario: entities.DefaultScenario(),
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.MaxRecordTime <= 0 {
		return ErrInvalidRecordTime
	}
	if c.AutoRewindTime < 0 {
		return ErrInvalidAutoRewind
	}
	if c.TickRate <= 0 {
		return ErrInvalidTickRate
	}
	if c.CommandCapacity <= 0 {
		return ErrInvalidCapacity
	}
	if c.TimeScale < 0 || c.TimeScale > sim.MaxTimeScale || c.ScrubRate < 0 {
		return ErrInvalidTimeScale
	}
	if c.MaxEntries < 0 || c.CaptureWorkers < 0 || c.CatchupMaxTicks < 0 || c.WarningStep < 0 {
		return ErrInvalidCount
	}
	if c.Scenario.Spawners < 0 || c.Scenario.Enemies < 0 {
		return ErrInvalidCount
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	if _, err := logging.ParseSeverity(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// EngineOptions converts the engine settings into rewind options.
func (c Config) EngineOptions() []rewind.EngineOption {
	return []rewind.EngineOption{
		rewind.WithMaxRecordTime(c.MaxRecordTime),
		rewind.WithAutoRewindTime(c.AutoRewindTime),
		rewind.WithMaxEntries(c.MaxEntries),
		rewind.WithCaptureWorkers(c.CaptureWorkers),
	}
}

// LoopConfig converts the loop settings.
func (c Config) LoopConfig() sim.LoopConfig {
	return sim.LoopConfig{
		TickRate:        c.TickRate,
		CatchupMaxTicks: c.CatchupMaxTicks,
		CommandCapacity: c.CommandCapacity,
		WarningStep:     c.WarningStep,
		ScrubRate:       c.ScrubRate,
	}
}

// LoggingConfig derives the event router configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity, _ = logging.ParseSeverity(c.Log.Level)
	cfg.Console = logging.ConsoleConfig{UseColor: c.Log.Color, Format: strings.ToLower(c.Log.Format)}
	if c.Log.JSONPath != "" {
		cfg.EnabledSinks = append(cfg.EnabledSinks, "json")
		cfg.JSON.FilePath = c.Log.JSONPath
	}
	return cfg
}

// Schema returns the JSON schema of the YAML file format.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&Config{})
	schema.Title = "Rewind simulator configuration"
	schema.Description = "Durations are Go duration strings such as 5s or 1500ms."
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("config: marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}
