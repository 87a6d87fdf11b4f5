package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env         string      `yaml:"env" env-default:"local" env:"ENV"`
	QBittorrent QBittorrent `yaml:"qbittorrent"`
	Ledger      Ledger      `yaml:"ledger"`
	Repair      Repair      `yaml:"repair"`
	Watch       Watch       `yaml:"watch"`
	Tracing     Tracing     `yaml:"tracing"`
}

type QBittorrent struct {
	URL      string        `yaml:"url" env:"QBIT_URL" env-default:"http://localhost:8080"`
	Username string        `yaml:"username" env:"QBIT_USERNAME" env-default:"admin"`
	Password string        `yaml:"password" env:"QBIT_PASSWORD"`
	Timeout  time.Duration `yaml:"timeout" env:"QBIT_TIMEOUT" env-default:"30s"`
}

type Ledger struct {
	Path string `yaml:"path" env:"LEDGER_PATH" env-default:"qbmerge.db"`
}

type Repair struct {
	Recheck bool `yaml:"recheck" env:"REPAIR_RECHECK" env-default:"false"`
	DryRun  bool `yaml:"dry_run" env:"REPAIR_DRY_RUN" env-default:"false"`
}

type Watch struct {
	Debounce       time.Duration `yaml:"debounce" env:"WATCH_DEBOUNCE" env-default:"5s"`
	IgnorePatterns []string      `yaml:"ignore_patterns" env:"WATCH_IGNORE" env-default:".!qB,.parts,~"`
}

type Tracing struct {
	Enabled     bool   `yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	Endpoint    string `yaml:"endpoint" env:"TRACING_ENDPOINT" env-default:"localhost:4318"`
	ServiceName string `yaml:"service_name" env:"TRACING_SERVICE_NAME" env-default:"qbmerge"`
}

// Load reads the config file at path, or only the environment when path is
// empty. Environment values override the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from env: %w", err)
		}
		return &cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Path returns the flag value when set, CONFIG_PATH otherwise.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}
