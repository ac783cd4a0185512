package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one event source.
type SourceConfig struct {
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Kind is "json", "ics" or "html".
	Kind string `yaml:"kind" json:"kind"`
	URL  string `yaml:"url" json:"url"`
	// Render loads the page in headless Chrome before extracting JSON-LD.
	Render bool `yaml:"render,omitempty" json:"render,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	// File, when set, also writes a size-rotated log file.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// ShuttleConfig locates the shuttle build inputs and the generated output.
type ShuttleConfig struct {
	CSV    string `yaml:"csv" json:"csv"`
	Stops  string `yaml:"stops" json:"stops"`
	Output string `yaml:"output" json:"output"`
}

// LLMConfig configures the event assistant. An empty APIKey disables it.
type LLMConfig struct {
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	APIKey            string  `yaml:"api_key" json:"-"`
	Model             string  `yaml:"model" json:"model"`
	MaxTokens         int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature       float32 `yaml:"temperature" json:"temperature"`
	MaxContextTokens  int     `yaml:"max_context_tokens" json:"max_context_tokens"`
	OutputReserve     int     `yaml:"output_reserve" json:"output_reserve"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA reference zone for civil dates.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DataDir holds the fetch cache and the snapshot database.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Log LogConfig `yaml:"log" json:"log"`

	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// HorizonDays bounds recurrence expansion of ICS sources.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// Buildings is the path to the building directory (YAML or JSON).
	Buildings string `yaml:"buildings" json:"buildings"`

	Shuttle ShuttleConfig `yaml:"shuttle" json:"shuttle"`

	LLM LLMConfig `yaml:"llm" json:"llm"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "America/Chicago"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/30 * * * *"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{"*"}
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Kind == "" {
			s.Kind = "json"
		}
		if s.ID == "" {
			if s.Name != "" {
				s.ID = s.Name
			} else {
				s.ID = s.URL
			}
		}
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 60
	}
	if c.Buildings == "" {
		c.Buildings = filepath.Join(c.DataDir, "buildings.yaml")
	}
	if c.Shuttle.CSV == "" {
		c.Shuttle.CSV = filepath.Join(c.DataDir, "shuttle-stops.csv")
	}
	if c.Shuttle.Stops == "" {
		c.Shuttle.Stops = filepath.Join(c.DataDir, "stop-lookup.json")
	}
	if c.Shuttle.Output == "" {
		c.Shuttle.Output = filepath.Join(c.DataDir, "shuttle-routes.json")
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 600
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.4
	}
	if c.LLM.MaxContextTokens <= 0 {
		c.LLM.MaxContextTokens = 16000
	}
	if c.LLM.OutputReserve <= 0 {
		c.LLM.OutputReserve = 1000
	}
	if c.LLM.RequestsPerSecond <= 0 {
		c.LLM.RequestsPerSecond = 1
	}
}

// ApplyEnv overrides file values with the environment. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := getenv("CAMPUSMAP_TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

// DatabasePath is the snapshot database inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "campusmap.db")
}

// CacheDir is the fetch cache inside DataDir.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "feed-cache")
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and defaults are filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".campusmap-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
