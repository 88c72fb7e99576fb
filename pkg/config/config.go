package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kacperjurak/gooptcore"
	"github.com/kacperjurak/gooptcore/pkg/lut"
)

// FloatList collects repeated float flags, e.g. --wavelength 450 --wavelength 550.
type FloatList []float64

func (a *FloatList) String() string {
	parts := make([]string, len(*a))
	for i, v := range *a {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (a *FloatList) Set(value string) error {
	for _, s := range strings.Split(value, ",") {
		val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*a = append(*a, val)
	}
	return nil
}

// Type is the flag type name shown in help output.
func (a *FloatList) Type() string { return "floats" }

// Config holds engine settings shared by the CLI and the server
type Config struct {
	Epsilon       float64     `json:"epsilon"`
	Workers       int         `json:"workers"`
	LayeredPolicy string      `json:"layered_policy"`
	FresnelLUT    bool        `json:"fresnel_lut"`
	ExactMie      bool        `json:"exact_mie"`
	LUT           lut.Options `json:"lut"`
	Quiet         bool        `json:"quiet"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            string  `json:"port"`
	WorkerCount     int     `json:"worker_count"`
	WebhookURL      string  `json:"webhook_url"`
	EnableMetrics   bool    `json:"enable_metrics"`
	EnableProfiling bool    `json:"enable_profiling"`
	ProfilingPort   string  `json:"profiling_port"`
	RateLimit       float64 `json:"rate_limit"`
	RateBurst       int     `json:"rate_burst"`
	// TimingFile, when set, receives one CSV row per finished batch.
	TimingFile string `json:"timing_file"`
}

// File is the on-disk layout read by Load.
type File struct {
	Engine *Config       `json:"engine"`
	Server *ServerConfig `json:"server"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Epsilon:       gooptcore.DefaultEpsilon,
		Workers:       4,
		LayeredPolicy: gooptcore.LayeredPolicySingleBounce.String(),
		LUT:           lut.DefaultOptions(),
	}
}

// DefaultServerConfig returns server configuration with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            "8080",
		WorkerCount:     5,
		WebhookURL:      "",
		EnableMetrics:   true,
		EnableProfiling: false,
		ProfilingPort:   "6060",
		RateLimit:       200,
		RateBurst:       50,
	}
}

// Load reads a JSON file and overlays it on the defaults. Keys missing from
// the file keep their default values. An empty path returns the defaults.
func Load(path string) (*Config, *ServerConfig, error) {
	f := File{Engine: DefaultConfig(), Server: DefaultServerConfig()}
	if path == "" {
		return f.Engine, f.Server, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("while reading config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("while parsing config %s: %w", path, err)
	}
	if err := f.Engine.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config %s: %w", path, err)
	}
	return f.Engine, f.Server, nil
}

// Validate checks the engine settings.
func (c *Config) Validate() error {
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %g: %w", c.Epsilon, gooptcore.ErrParameterOutOfRange)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d: %w", c.Workers, gooptcore.ErrParameterOutOfRange)
	}
	_, err := gooptcore.ParseLayeredPolicy(c.LayeredPolicy)
	return err
}

// Evaluator builds an evaluator with a private LUT cache sized by c.LUT.
func (c *Config) Evaluator() (*gooptcore.Evaluator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	policy, _ := gooptcore.ParseLayeredPolicy(c.LayeredPolicy)
	return gooptcore.NewEvaluator(
		gooptcore.WithCache(lut.New(c.LUT)),
		gooptcore.WithEpsilon(c.Epsilon),
		gooptcore.WithLayeredPolicy(policy),
		gooptcore.WithFresnelLUT(c.FresnelLUT),
		gooptcore.WithExactMie(c.ExactMie),
		gooptcore.WithWorkers(c.Workers),
	), nil
}
