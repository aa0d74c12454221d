package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/xrsl/tailor/pkg/pipeline"
)

type Config struct {
	Agent                string        `mapstructure:"agent" yaml:"agent,omitempty"`
	DataDir              string        `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	Schema               string        `mapstructure:"schema" yaml:"schema,omitempty"`
	MaxIterations        int           `mapstructure:"max_iterations" yaml:"max_iterations,omitempty"`
	QualityThreshold     float64       `mapstructure:"quality_threshold" yaml:"quality_threshold,omitempty"`
	AIDetectionThreshold float64       `mapstructure:"ai_detection_threshold" yaml:"ai_detection_threshold,omitempty"`
	PoolSize             int           `mapstructure:"pool_size" yaml:"pool_size,omitempty"`
	UnitTimeout          time.Duration `mapstructure:"unit_timeout" yaml:"unit_timeout,omitempty"`
	TopN                 int           `mapstructure:"top_n" yaml:"top_n,omitempty"`
	ResumeTarget         int           `mapstructure:"resume_target" yaml:"resume_target,omitempty"`
	CoverLetterTarget    int           `mapstructure:"cover_letter_target" yaml:"cover_letter_target,omitempty"`
	Cache                bool          `mapstructure:"cache" yaml:"cache"`
}

// Run returns the pipeline configuration for a new run.
func (c *Config) Run() pipeline.Config {
	return pipeline.Config{
		MaxIterations:        c.MaxIterations,
		QualityThreshold:     c.QualityThreshold,
		AIDetectionThreshold: c.AIDetectionThreshold,
		PoolSize:             c.PoolSize,
		UnitTimeout:          c.UnitTimeout,
		TopN:                 c.TopN,
		ResumeTarget:         c.ResumeTarget,
		CoverLetterTarget:    c.CoverLetterTarget,
		Agent:                c.Agent,
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	for name, val := range map[string]float64{
		"quality_threshold":      c.QualityThreshold,
		"ai_detection_threshold": c.AIDetectionThreshold,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %g", name, val)
		}
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.TopN < 1 {
		return fmt.Errorf("top_n must be at least 1, got %d", c.TopN)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size must not be negative, got %d", c.PoolSize)
	}
	if c.ResumeTarget <= 0 || c.CoverLetterTarget <= 0 {
		return fmt.Errorf("resume_target and cover_letter_target must be positive")
	}
	return nil
}

// AgentCLI returns the CLI agent name derived from the agent setting
func (c *Config) AgentCLI() string {
	if strings.HasPrefix(c.Agent, "gemini") {
		return "gemini"
	}
	return "claude"
}

var (
	configFile = ".tailor.yaml"
	v          *viper.Viper
)

// Keys lists every user-settable key in display order.
var Keys = []string{
	"agent",
	"data_dir",
	"schema",
	"max_iterations",
	"quality_threshold",
	"ai_detection_threshold",
	"pool_size",
	"unit_timeout",
	"top_n",
	"resume_target",
	"cover_letter_target",
	"cache",
}

func init() {
	v = newViper()
	// Try to read config file (ignore if not exists)
	_ = v.ReadInConfig()
}

func newViper() *viper.Viper {
	nv := viper.New()
	nv.SetConfigFile(configFile)
	setDefaults(nv)

	nv.SetEnvPrefix("TAILOR")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()
	return nv
}

func setDefaults(nv *viper.Viper) {
	nv.SetDefault("agent", "claude-code")
	nv.SetDefault("data_dir", ".tailor/runs")
	nv.SetDefault("max_iterations", 10)
	nv.SetDefault("quality_threshold", 0.8)
	nv.SetDefault("ai_detection_threshold", 0.999)
	nv.SetDefault("pool_size", 0)
	nv.SetDefault("unit_timeout", 10*time.Minute)
	nv.SetDefault("top_n", 3)
	nv.SetDefault("resume_target", 4000)
	nv.SetDefault("cover_letter_target", 2400)
	nv.SetDefault("cache", true)
}

func Path() string {
	return configFile
}

func Load() (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func Get(key string) (string, error) {
	if !slices.Contains(Keys, key) {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	return v.GetString(key), nil
}

// Set validates value for key, updates the in-memory config and writes
// the config file.
func Set(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("unknown config key: %s (valid: %s)", key, strings.Join(Keys, ", "))
	}
	parsed, err := parse(key, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	prev := v.Get(key)
	v.Set(key, parsed)
	cfg, err := Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		v.Set(key, prev)
		return err
	}
	return writeConfig(cfg)
}

func parse(key, value string) (any, error) {
	switch key {
	case "max_iterations", "pool_size", "top_n", "resume_target", "cover_letter_target":
		return strconv.Atoi(value)
	case "quality_threshold", "ai_detection_threshold":
		return strconv.ParseFloat(value, 64)
	case "unit_timeout":
		return time.ParseDuration(value)
	case "cache":
		return strconv.ParseBool(value)
	default:
		return value, nil
	}
}

func writeConfig(cfg *Config) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(configFile, buf.Bytes(), 0644)
}

func All() (map[string]string, error) {
	out := make(map[string]string, len(Keys))
	for _, k := range Keys {
		out[k] = v.GetString(k)
	}
	return out, nil
}

// Save saves the full config
func Save(c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return writeConfig(c)
}

// ResetForTest resets viper for testing (only use in tests)
func ResetForTest(testPath string) {
	configFile = testPath + "/.tailor.yaml"
	v = newViper()
	_ = v.ReadInConfig()
}
