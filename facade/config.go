// File: facade/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime configuration: defaults, YAML/TOML files and MPIR_CVAR_*
// environment overrides. Values are published into the control store and
// read back by name on every call.

package facade

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-coll/api"
	"github.com/momentics/hioload-coll/control"
	"github.com/momentics/hioload-coll/internal/selector"
)

// AllgatherConfig tunes allgather selection.
type AllgatherConfig struct {
	ShortMsgSize   int64         `yaml:"short_msg_size" toml:"short_msg_size"`
	LongMsgSize    int64         `yaml:"long_msg_size" toml:"long_msg_size"`
	AlgorithmIntra api.Algorithm `yaml:"algorithm_intra" toml:"algorithm_intra"`
	AlgorithmInter api.Algorithm `yaml:"algorithm_inter" toml:"algorithm_inter"`
}

// AllreduceConfig tunes allreduce selection.
type AllreduceConfig struct {
	AlgorithmIntra api.Algorithm `yaml:"algorithm_intra" toml:"algorithm_intra"`
}

// Config holds parameters of one runtime. The collective tuning knobs can be
// changed later through the Control interface; the rest is fixed per run.
type Config struct {
	Allgather AllgatherConfig `yaml:"allgather" toml:"allgather"`
	Allreduce AllreduceConfig `yaml:"allreduce" toml:"allreduce"`

	BackgroundProgress bool   `yaml:"background_progress" toml:"background_progress"` // run the progress loop in its own goroutine
	UseScratchPool     bool   `yaml:"use_scratch_pool" toml:"use_scratch_pool"`       // pool schedule temporaries
	EnableMetrics      bool   `yaml:"enable_metrics" toml:"enable_metrics"`
	EnableDebug        bool   `yaml:"enable_debug" toml:"enable_debug"`
	LogLevel           string `yaml:"log_level" toml:"log_level"`

	// Logger overrides the logger built from LogLevel.
	Logger *slog.Logger `yaml:"-" toml:"-"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		Allgather: AllgatherConfig{
			ShortMsgSize: selector.DefaultShort, // 80 KiB
			LongMsgSize:  selector.DefaultLong,  // 512 KiB
		},
		BackgroundProgress: true,
		UseScratchPool:     true,
		EnableMetrics:      true,
		EnableDebug:        true,
		LogLevel:           "info",
	}
}

// LoadConfig reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, api.Errorf(api.ErrCodeNotSupported, "config format of %q", path)
	}
	if err != nil {
		return nil, api.WrapError(api.ErrCodeInvalidArgument, err, "decode "+path)
	}
	return cfg, cfg.Validate()
}

// Environment variable names, following the MPIR_CVAR tuning convention.
const (
	EnvAllgatherShort = "MPIR_CVAR_ALLGATHER_SHORT_MSG_SIZE"
	EnvAllgatherLong  = "MPIR_CVAR_ALLGATHER_LONG_MSG_SIZE"
	EnvAllgatherIntra = "MPIR_CVAR_ALLGATHER_ALGORITHM_INTRA"
	EnvAllgatherInter = "MPIR_CVAR_ALLGATHER_ALGORITHM_INTER"
	EnvAllreduceIntra = "MPIR_CVAR_ALLREDUCE_ALGORITHM_INTRA"
)

// ApplyEnv overrides fields from the environment; lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		name string
		dst  *int64
	}{
		{EnvAllgatherShort, &c.Allgather.ShortMsgSize},
		{EnvAllgatherLong, &c.Allgather.LongMsgSize},
	}
	for _, v := range ints {
		if s, ok := lookup(v.name); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return api.WrapError(api.ErrCodeInvalidArgument, err, v.name)
			}
			*v.dst = n
		}
	}
	algs := []struct {
		name string
		dst  *api.Algorithm
	}{
		{EnvAllgatherIntra, &c.Allgather.AlgorithmIntra},
		{EnvAllgatherInter, &c.Allgather.AlgorithmInter},
		{EnvAllreduceIntra, &c.Allreduce.AlgorithmIntra},
	}
	for _, v := range algs {
		if s, ok := lookup(v.name); ok {
			a, err := api.ParseAlgorithm(s)
			if err != nil {
				return api.WrapError(api.ErrCodeInvalidArgument, err, v.name)
			}
			*v.dst = a
		}
	}
	return c.Validate()
}

// Policy converts the tuning knobs into a selector policy.
func (c *Config) Policy() selector.Policy {
	return selector.Policy{
		Short:     c.Allgather.ShortMsgSize,
		Long:      c.Allgather.LongMsgSize,
		Intra:     c.Allgather.AlgorithmIntra,
		Inter:     c.Allgather.AlgorithmInter,
		Allreduce: c.Allreduce.AlgorithmIntra,
	}
}

// Validate checks thresholds, overrides and the log level.
func (c *Config) Validate() error {
	if err := c.Policy().Validate(); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return lvl, api.WrapError(api.ErrCodeInvalidArgument, err, "log level")
	}
	return lvl, nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	lvl, _ := c.level()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// controlValues is the flat view published into the control store.
func (c *Config) controlValues() map[string]any {
	return map[string]any{
		control.KeyAllgatherShort: c.Allgather.ShortMsgSize,
		control.KeyAllgatherLong:  c.Allgather.LongMsgSize,
		control.KeyAllgatherIntra: c.Allgather.AlgorithmIntra.String(),
		control.KeyAllgatherInter: c.Allgather.AlgorithmInter.String(),
		control.KeyAllreduceIntra: c.Allreduce.AlgorithmIntra.String(),
	}
}

// policyFrom reads the current policy back from the control store so hot
// reloads take effect on the next call.
func policyFrom(cs *control.ConfigStore, def selector.Policy) (selector.Policy, error) {
	p := def
	var err error
	if p.Short, err = cs.GetInt64(control.KeyAllgatherShort, def.Short); err != nil {
		return def, api.WrapError(api.ErrCodeInvalidArgument, err, "config")
	}
	if p.Long, err = cs.GetInt64(control.KeyAllgatherLong, def.Long); err != nil {
		return def, api.WrapError(api.ErrCodeInvalidArgument, err, "config")
	}
	algs := []struct {
		key string
		dst *api.Algorithm
	}{
		{control.KeyAllgatherIntra, &p.Intra},
		{control.KeyAllgatherInter, &p.Inter},
		{control.KeyAllreduceIntra, &p.Allreduce},
	}
	for _, a := range algs {
		v, perr := api.ParseAlgorithm(cs.GetString(a.key, a.dst.String()))
		if perr != nil {
			return def, perr
		}
		*a.dst = v
	}
	return p, p.Validate()
}
