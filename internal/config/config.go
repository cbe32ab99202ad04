// Package config loads the handsign configuration from defaults, an optional
// YAML file and HANDSIGN_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/extract"
	"github.com/ayusman/handsign/internal/landmark"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HANDSIGN_"

// FileName is the config file looked up in the working directory and the
// data directory when no path is given.
const FileName = "handsign.yaml"

// ServerConfig configures the recognition server.
type ServerConfig struct {
	Addr       string `yaml:"addr" env:"ADDR"`
	StaticDir  string `yaml:"static_dir" env:"STATIC_DIR"`
	BundlePath string `yaml:"bundle_path" env:"BUNDLE_PATH"`
	PluginDir  string `yaml:"plugin_dir" env:"PLUGIN_DIR"`
	Tray       bool   `yaml:"tray" env:"TRAY"`
}

// ExtractConfig configures landmark dataset extraction.
type ExtractConfig struct {
	Fields          []string `yaml:"fields" env:"FIELDS" envSeparator:","`
	Sampling        string   `yaml:"sampling" env:"SAMPLING"`
	FramePolicy     string   `yaml:"frame_policy" env:"FRAME_POLICY"`
	SamplesPerLabel int      `yaml:"samples_per_label" env:"SAMPLES_PER_LABEL"`
	Seed            uint64   `yaml:"seed" env:"SEED"`
	Normalize       bool     `yaml:"normalize" env:"NORMALIZE"`
	Progress        bool     `yaml:"progress" env:"PROGRESS"`
}

// TrimConfig configures image dataset trimming.
type TrimConfig struct {
	PerClass int    `yaml:"per_class" env:"PER_CLASS"`
	Seed     uint64 `yaml:"seed" env:"SEED"`
}

// Config is the root configuration.
type Config struct {
	LogLevel string          `yaml:"log_level" env:"LOG_LEVEL"`
	DataDir  string          `yaml:"data_dir" env:"DATA_DIR"`
	DBPath   string          `yaml:"db_path" env:"DB_PATH"`
	Server   ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Detector detector.Config `yaml:"detector" envPrefix:"DETECTOR_"`
	Extract  ExtractConfig   `yaml:"extract" envPrefix:"EXTRACT_"`
	Trim     TrimConfig      `yaml:"trim" envPrefix:"TRIM_"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := extract.DefaultOptions()
	fields := make([]string, len(opts.Fields))
	for i, f := range opts.Fields {
		fields[i] = string(f)
	}

	dataDir := ".handsign"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".handsign")
	}

	return &Config{
		LogLevel: "info",
		DataDir:  dataDir,
		Server: ServerConfig{
			Addr: ":8080",
		},
		Detector: detector.DefaultConfig(),
		Extract: ExtractConfig{
			Fields:          fields,
			Sampling:        string(opts.Sampling),
			FramePolicy:     string(opts.FramePolicy),
			SamplesPerLabel: opts.SamplesPerLabel,
			Seed:            opts.Seed,
			Normalize:       opts.Normalize,
			Progress:        true,
		},
		Trim: TrimConfig{
			PerClass: 150,
			Seed:     42,
		},
	}
}

// Load builds the configuration. An empty path looks for handsign.yaml in
// the working directory, then in the default data directory; neither being
// present is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findFile(FileName, filepath.Join(cfg.DataDir, FileName))
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("environment config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// applyDefaults fills paths derived from the data directory.
func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "handsign.db")
	}
	if c.Server.PluginDir == "" {
		c.Server.PluginDir = filepath.Join(c.DataDir, "plugins")
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.ExtractOptions(); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if c.Trim.PerClass <= 0 {
		return fmt.Errorf("trim: per_class must be positive, got %d", c.Trim.PerClass)
	}
	if c.Detector.MaxHands <= 0 {
		return fmt.Errorf("detector: max_hands must be positive, got %d", c.Detector.MaxHands)
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return fmt.Errorf("detector: min_confidence must be within [0, 1], got %g", c.Detector.MinConfidence)
	}
	if c.Server.Addr == "" {
		return errors.New("server: addr is required")
	}
	return nil
}

// ExtractOptions converts the extract section into validated extractor options.
func (c *Config) ExtractOptions() (extract.Options, error) {
	fields := make([]landmark.Field, 0, len(c.Extract.Fields))
	for _, s := range c.Extract.Fields {
		f, err := landmark.ParseField(s)
		if err != nil {
			return extract.Options{}, err
		}
		fields = append(fields, f)
	}

	opts := extract.Options{
		Fields:          fields,
		Sampling:        extract.Sampling(c.Extract.Sampling),
		FramePolicy:     extract.FramePolicy(c.Extract.FramePolicy),
		SamplesPerLabel: c.Extract.SamplesPerLabel,
		Seed:            c.Extract.Seed,
		Normalize:       c.Extract.Normalize,
		Progress:        c.Extract.Progress,
	}
	return opts, opts.Validate()
}

func findFile(paths ...string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
