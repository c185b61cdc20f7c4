// Package config loads the thalamusd server's bootstrap configuration,
// following pkg/config/config.go's viper-based Load/LoadFromEnv pattern:
// a named config file merged with an optional environment overlay and
// environment-variable overrides, unmarshaled into a typed struct.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cajigaslab/thalamus/internal/state"
)

// Config is thalamusd's bootstrap configuration (spec §0's --port,
// --state-url, --trace, --config flags, plus the logging/storage knobs
// every ambient component needs).
type Config struct {
	Port      int    `mapstructure:"port" json:"port"`
	StateURL  string `mapstructure:"state_url" json:"state_url"`
	Trace     bool   `mapstructure:"trace" json:"trace"`
	LogLevel  string `mapstructure:"log_level" json:"log_level"`
	LogFile   string `mapstructure:"log_file" json:"log_file"`
	MetricsAddr string `mapstructure:"metrics_addr" json:"metrics_addr"`

	Storage struct {
		OutputBase string `mapstructure:"output_base" json:"output_base"`
		Compress   bool   `mapstructure:"compress" json:"compress"`
	} `mapstructure:"storage" json:"storage"`

	Bootstrap string `mapstructure:"bootstrap" json:"bootstrap"`
}

// Default returns the zero-value configuration's defaults, mirroring the
// teacher's pattern of seeding viper before ReadInConfig so a missing
// config file is never fatal.
func Default() *Config {
	return &Config{
		Port:        50050,
		StateURL:    "ws://localhost:50050/rpc/observable_bridge_v2",
		LogLevel:    "info",
		MetricsAddr: ":9090",
		Bootstrap:   "",
	}
}

// Load reads the named config file from ./config, ./cmd/config or the
// working directory (following pkg/config/config.go's AddConfigPath
// calls, searched in that order), merges an optional
// THALAMUS_ENV-named overlay, applies environment-variable overrides, and
// unmarshals into a Config seeded with Default()'s values. name defaults to
// "default" when empty.
func Load(name string) (*Config, error) {
	if name == "" {
		name = "default"
	}
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("./cmd/config")
	v.AddConfigPath(".")

	cfg := Default()
	v.SetDefault("port", cfg.Port)
	v.SetDefault("state_url", cfg.StateURL)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read %s: %w", name, err)
		}
	}
	if env := os.Getenv("THALAMUS_ENV"); env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: merge %s: %w", env, err)
			}
		}
	}
	v.SetEnvPrefix("THALAMUS")
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// BindFlags registers thalamusd's cobra flags and binds them through v,
// following cmd/synnergy/main.go's Flags().String/Int pattern. Call before
// Load so flag values win over file/env defaults once v.Unmarshal runs
// against the same viper instance used here.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().Int("port", 50050, "RPC listen port")
	cmd.Flags().String("state-url", "", "remote state bridge URL for mirroring")
	cmd.Flags().Bool("trace", false, "enable trace-level logging")
	cmd.Flags().String("config", "", "path to a bootstrap config file (JSON or YAML)")

	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("state_url", cmd.Flags().Lookup("state-url"))
	_ = v.BindPFlag("trace", cmd.Flags().Lookup("trace"))
	_ = v.BindPFlag("bootstrap", cmd.Flags().Lookup("config"))
}

// LoadBootstrapTree reads path (YAML or JSON, selected by extension) and
// decodes it into a detached state.Value the way spec §6.1 describes for
// the on-disk bootstrap tree, using yaml.v3's native conversion to
// map[string]any so it flows through the same state.FromJSON decoder path
// as a JSON bootstrap file.
func LoadBootstrapTree(path string) (state.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return state.Nil, fmt.Errorf("config: read bootstrap %s: %w", path, err)
	}
	if isYAML(path) {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return state.Nil, fmt.Errorf("config: parse bootstrap yaml %s: %w", path, err)
		}
		return state.FromJSON(normalizeYAML(raw))
	}
	return state.FromJSONBytes(data)
}

func isYAML(path string) bool {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			ext := path[i+1:]
			return ext == "yaml" || ext == "yml"
		}
		if path[i] == '/' {
			break
		}
	}
	return false
}

// normalizeYAML rebuilds the map[string]any and []any containers of a
// yaml.v3-decoded value recursively, returning scalars unchanged.
// state.FromJSON accepts the scalar kinds yaml.v3 produces (including
// int and int64) as they are.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
