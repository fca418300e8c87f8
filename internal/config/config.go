// Package config loads the broker's single config.yaml and expands
// ${VAR}-style references against the process environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved configuration for one broker process.
type Config struct {
	App   AppConfig   `yaml:"app"`
	DB    DBConfig    `yaml:"db"`
	Etran EtranConfig `yaml:"etran"`
}

// AppConfig holds the pipeline's own tuning knobs.
type AppConfig struct {
	QueueMaxSize        int           `yaml:"queue_maxsize"`
	WorkersCount        int           `yaml:"workers_count"`
	SleepOnDisconnect   time.Duration `yaml:"sleep_on_disconnect"`
	SleepOnDos          time.Duration `yaml:"sleep_on_dos"`
	SleepOnDosMax       time.Duration `yaml:"sleep_on_dos_max"`
	DBPollingInterval   time.Duration `yaml:"db_polling_interval"`
	DBQueryingInterval  time.Duration `yaml:"db_querying_interval"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	HeartbeatPath       string        `yaml:"heartbeat_path"`
	HTTPEndpointPort    int           `yaml:"http_endpoint_port"`
	Debug               bool          `yaml:"debug"`
}

// DBConfig holds the SQL Server connection settings.
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Server   string `yaml:"server"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// EtranConfig holds the upstream SOAP gateway settings.
type EtranConfig struct {
	Login    string            `yaml:"login"`
	Password string            `yaml:"password"`
	URL      string            `yaml:"url"`
	Gzip     bool              `yaml:"gzip"`
	Headers  map[string]string `yaml:"headers"`
}

// envRef matches ${VAR}-style placeholders anywhere in the raw YAML text.
var envRef = regexp.MustCompile(`\$\{(\w+)\}`)

// Load reads and parses path, expanding ${VAR} references against the
// process environment before unmarshaling, then validates required fields.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := envRef.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envRef.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.QueueMaxSize == 0 {
		c.App.QueueMaxSize = 500
	}
	if c.App.WorkersCount == 0 {
		c.App.WorkersCount = 8
	}
	if c.App.SleepOnDisconnect == 0 {
		c.App.SleepOnDisconnect = 5 * time.Second
	}
	if c.App.SleepOnDos == 0 {
		c.App.SleepOnDos = 2 * time.Second
	}
	if c.App.SleepOnDosMax == 0 {
		c.App.SleepOnDosMax = 60 * time.Second
	}
	if c.App.DBPollingInterval == 0 {
		c.App.DBPollingInterval = 10 * time.Second
	}
	if c.App.DBQueryingInterval == 0 {
		c.App.DBQueryingInterval = time.Second
	}
	if c.App.RequestTimeout == 0 {
		c.App.RequestTimeout = 30 * time.Second
	}
	if c.App.HeartbeatInterval == 0 {
		c.App.HeartbeatInterval = 30 * time.Second
	}
	if c.App.HTTPEndpointPort == 0 {
		c.App.HTTPEndpointPort = 8090
	}
}

// Validate rejects configurations the pipeline cannot run with: no amount of
// defaulting can supply a DB server or an upstream URL/credentials.
func (c *Config) Validate() error {
	if c.DB.Server == "" {
		return fmt.Errorf("config: db.server is required")
	}
	if c.DB.Database == "" {
		return fmt.Errorf("config: db.database is required")
	}
	if c.Etran.URL == "" {
		return fmt.Errorf("config: etran.url is required")
	}
	if c.Etran.Login == "" || c.Etran.Password == "" {
		return fmt.Errorf("config: etran.login and etran.password are required")
	}
	if c.App.HeartbeatPath == "" {
		return fmt.Errorf("config: app.heartbeat_path is required")
	}
	return nil
}
