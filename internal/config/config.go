// Package config provides the immutable startup configuration.
// Precedence: CLI flags > environment variables > config file > defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// DefaultModelName is the placeholder model identifier echoed in responses
// until a real model is configured.
const DefaultModelName = "gpt-oss-20b"

// Config holds every startup-time setting. It is built once in main and
// passed into constructors; nothing mutates it afterwards.
type Config struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	EngineDir string `yaml:"engine-dir"`
	ModelDir  string `yaml:"model-dir"`
	ModelName string `yaml:"model-name"`
	UsageDB   string `yaml:"usage-db"`
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Host:      "0.0.0.0",
		Port:      8000,
		ModelName: DefaultModelName,
	}
}

// Load builds a Config by merging CLI flags, environment variables, and an
// optional llmserve.yml in the working directory.
func Load(args []string) (*Config, error) {
	cfg := Default()

	_ = cfg.loadYAML("llmserve.yml")

	// .env files feed the same environment lookup as real env vars.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name must not be empty")
	}

	return cfg, nil
}

// Addr returns the host:port bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LLMSERVE_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("LLMSERVE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("LLMSERVE_ENGINE_DIR"); v != "" {
		c.EngineDir = v
	}
	if v := os.Getenv("LLMSERVE_MODEL_DIR"); v != "" {
		c.ModelDir = v
	}
	if v := os.Getenv("LLMSERVE_MODEL_NAME"); v != "" {
		c.ModelName = v
	}
	if v := os.Getenv("LLMSERVE_USAGE_DB"); v != "" {
		c.UsageDB = v
	}
}

func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("llmserve", flag.ContinueOnError)
	fs.StringVar(&c.Host, "host", c.Host, "Host to bind to")
	fs.IntVar(&c.Port, "port", c.Port, "Port to bind to")
	fs.StringVar(&c.EngineDir, "engine-dir", c.EngineDir, "Directory containing a compiled inference engine")
	fs.StringVar(&c.ModelDir, "model-dir", c.ModelDir, "Directory containing model files")
	fs.StringVar(&c.ModelName, "model-name", c.ModelName, "Model name reported by the API")
	fs.StringVar(&c.UsageDB, "usage-db", c.UsageDB, "Path to the SQLite usage log (empty disables usage logging)")
	return fs.Parse(args)
}
