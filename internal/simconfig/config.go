// Package simconfig loads SimulationEngine tuning parameters from file and
// environment, grounded on the betrace repo's internal/config/config.go
// (viper.New, setDefaults, env-prefix override), narrowed from that
// repo's HTTP/gRPC/storage surface down to the engine's own knobs:
// check_interval, quiescence backoff bounds, and trace buffer cap.
package simconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig holds tunables for engine.SimulationEngine and
// vclock.VirtualClock that a deployment may want to override without a
// code change.
type EngineConfig struct {
	Engine     EngineSection     `mapstructure:"engine"`
	Quiescence QuiescenceSection `mapstructure:"quiescence"`
	Trace      TraceSection      `mapstructure:"trace"`
}

// EngineSection configures engine.SimulationEngine's run protocol.
type EngineSection struct {
	CheckIntervalMs int64 `mapstructure:"check_interval_ms"` // default 100, spec.md §4.5.1
	MaxDurationMs   int64 `mapstructure:"max_duration_ms"`   // default 0 (caller must supply one)
}

// QuiescenceSection configures vclock.VirtualClock's backoff-based
// quiescence patience window.
type QuiescenceSection struct {
	MinIntervalMicros int64 `mapstructure:"min_interval_micros"` // default 1 (1us)
	MaxIntervalMillis int64 `mapstructure:"max_interval_millis"` // default 20
}

// MinInterval returns the configured backoff initial interval as a
// time.Duration, for engine.WithQuiescenceMinInterval.
func (q QuiescenceSection) MinInterval() time.Duration {
	return time.Duration(q.MinIntervalMicros) * time.Microsecond
}

// MaxInterval returns the configured backoff ceiling as a time.Duration,
// for a flat (non-magnitude-scaled) engine.WithQuiescencePatience override.
func (q QuiescenceSection) MaxInterval() time.Duration {
	return time.Duration(q.MaxIntervalMillis) * time.Millisecond
}

// TraceSection bounds engine.SimulationEngine's trace growth.
type TraceSection struct {
	Enabled bool `mapstructure:"enabled"` // default false
	Cap     int  `mapstructure:"cap"`     // default 0 (unbounded)
}

// Load reads configuration from configPath (if non-empty) and environment
// variables prefixed VTSIM_, with env taking priority over file taking
// priority over defaults.
func Load(configPath string) (*EngineConfig, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("simconfig: read config file: %w", err)
		}
	}

	v.SetEnvPrefix("VTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("simconfig: unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.check_interval_ms", 100)
	v.SetDefault("engine.max_duration_ms", 0)

	v.SetDefault("quiescence.min_interval_micros", 1)
	v.SetDefault("quiescence.max_interval_millis", 20)

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.cap", 0)
}
