package config

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"os"
	"roadgrid/index"
)

const (
	RestrictionMatchLoose  = "loose"
	RestrictionMatchStrict = "strict"
)

type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Storage StorageConfig `yaml:"storage"`
	Query   QueryConfig   `yaml:"query"`
	Server  ServerConfig  `yaml:"server"`
}

// IndexConfig defines the cell levels. Data is stored at MaxLevel, MinLevel only bounds the cells of region coverings.
type IndexConfig struct {
	MinLevel         int `yaml:"min_level"`
	MaxLevel         int `yaml:"max_level"`
	MaxCoveringCells int `yaml:"max_covering_cells"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type QueryConfig struct {
	RestrictionMatch  string `yaml:"restriction_match"`
	CoveringCacheSize int    `yaml:"covering_cache_size"`
}

type ServerConfig struct {
	Port                int `yaml:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
}

// Load reads the YAML configuration file. The default configuration is returned when the path is empty or the file
// does not exist. Missing values are filled with their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		sigolo.Debugf("Config file %s does not exist, use default config", path)
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read config file %s", path)
	}

	cfg := &Config{}
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to parse config file %s", path)
	}

	applyDefaults(cfg)

	err = cfg.Validate()
	if err != nil {
		return nil, errors.Wrapf(err, "Invalid config file %s", path)
	}

	sigolo.Debugf("Loaded config from %s: %+v", path, *cfg)
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			MinLevel:         index.DefaultMinLevel,
			MaxLevel:         index.DefaultLevel,
			MaxCoveringCells: index.DefaultMaxCoveringCells,
		},
		Storage: StorageConfig{
			Dir: "./data",
		},
		Query: QueryConfig{
			RestrictionMatch:  RestrictionMatchLoose,
			CoveringCacheSize: 1024,
		},
		Server: ServerConfig{
			Port:                8080,
			ReadTimeoutSeconds:  10,
			WriteTimeoutSeconds: 30,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Index.MaxLevel == 0 {
		cfg.Index.MaxLevel = defaults.Index.MaxLevel
	}
	if cfg.Index.MaxCoveringCells == 0 {
		cfg.Index.MaxCoveringCells = defaults.Index.MaxCoveringCells
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = defaults.Storage.Dir
	}
	if cfg.Query.RestrictionMatch == "" {
		cfg.Query.RestrictionMatch = defaults.Query.RestrictionMatch
	}
	if cfg.Query.CoveringCacheSize == 0 {
		cfg.Query.CoveringCacheSize = defaults.Query.CoveringCacheSize
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = defaults.Server.ReadTimeoutSeconds
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = defaults.Server.WriteTimeoutSeconds
	}
}

func (c *Config) Validate() error {
	if c.Index.MinLevel < index.MinCellLevel || c.Index.MaxLevel > index.MaxCellLevel || c.Index.MinLevel > c.Index.MaxLevel {
		return errors.Wrapf(index.ErrInvalidLevel, "Levels must be within %d..%d with min_level <= max_level but are %d..%d", index.MinCellLevel, index.MaxCellLevel, c.Index.MinLevel, c.Index.MaxLevel)
	}
	if c.Index.MaxCoveringCells < 1 {
		return errors.Errorf("max_covering_cells must be at least 1 but is %d", c.Index.MaxCoveringCells)
	}
	if c.Query.RestrictionMatch != RestrictionMatchLoose && c.Query.RestrictionMatch != RestrictionMatchStrict {
		return errors.Errorf("restriction_match must be '%s' or '%s' but is '%s'", RestrictionMatchLoose, RestrictionMatchStrict, c.Query.RestrictionMatch)
	}
	if c.Query.CoveringCacheSize < 1 {
		return errors.Errorf("covering_cache_size must be at least 1 but is %d", c.Query.CoveringCacheSize)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.Errorf("Invalid server port %d", c.Server.Port)
	}
	return nil
}
