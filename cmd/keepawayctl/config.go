package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"keepaway/internal/logging"
	"keepaway/internal/sim"
	"keepaway/internal/storage"
	"keepaway/pkg/keepaway"
)

const defaultDBPath = "keepaway.db"

type config struct {
	LogLevel string         `yaml:"log_level"`
	Store    string         `yaml:"store"`
	DBPath   string         `yaml:"db_path"`
	Policies policiesConfig `yaml:"policies"`
}

type policiesConfig struct {
	DivideFloor divideFloorConfig `yaml:"divide_floor"`
	ModulusOnly modulusOnlyConfig `yaml:"modulus_only"`
}

type divideFloorConfig struct {
	Rounds  int    `yaml:"rounds"`
	Divisor uint64 `yaml:"divisor"`
}

type modulusOnlyConfig struct {
	Rounds int `yaml:"rounds"`
}

func defaultConfig() config {
	return config{
		LogLevel: logging.DefaultLevel,
		Store:    storage.DefaultStoreKind(),
		DBPath:   defaultDBPath,
		Policies: policiesConfig{
			DivideFloor: divideFloorConfig{
				Rounds:  sim.DivideFloor3.Rounds,
				Divisor: sim.DivideFloor3.Divisor,
			},
			ModulusOnly: modulusOnlyConfig{
				Rounds: sim.ModulusOnly.Rounds,
			},
		},
	}
}

// loadConfig reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Store)) {
	case storage.KindMemory:
	case storage.KindSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.New("db_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unsupported store %q (want %s)", c.Store, strings.Join(storage.Kinds(), "|"))
	}
	if c.Policies.DivideFloor.Rounds <= 0 {
		return fmt.Errorf("policies.divide_floor.rounds must be > 0, got %d", c.Policies.DivideFloor.Rounds)
	}
	if c.Policies.DivideFloor.Divisor == 0 {
		return errors.New("policies.divide_floor.divisor must be > 0")
	}
	if c.Policies.ModulusOnly.Rounds <= 0 {
		return fmt.Errorf("policies.modulus_only.rounds must be > 0, got %d", c.Policies.ModulusOnly.Rounds)
	}
	return nil
}

func (c config) divideFloorPolicy() sim.Policy {
	p := sim.DivideFloor3
	p.Rounds = c.Policies.DivideFloor.Rounds
	p.Divisor = c.Policies.DivideFloor.Divisor
	return p
}

func (c config) modulusOnlyPolicy() sim.Policy {
	p := sim.ModulusOnly
	p.Rounds = c.Policies.ModulusOnly.Rounds
	return p
}

// policyFor returns the configured policy with the same relief as p.
func (c config) policyFor(p sim.Policy) sim.Policy {
	if p.Relief == sim.ReliefModulusOnly {
		return c.modulusOnlyPolicy()
	}
	return c.divideFloorPolicy()
}

// commonFlags are registered on every subcommand. Values given on the
// command line override the config file.
type commonFlags struct {
	configPath string
	store      string
	dbPath     string
	logLevel   string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", "", "optional YAML config file")
	fs.StringVar(&c.store, "store", storage.DefaultStoreKind(), "run record store: "+strings.Join(storage.Kinds(), "|"))
	fs.StringVar(&c.dbPath, "db-path", defaultDBPath, "sqlite database path")
	fs.StringVar(&c.logLevel, "log-level", logging.DefaultLevel, "log level: debug|info|warn|error")
	return c
}

func (c *commonFlags) resolve(fs *flag.FlagSet) (config, error) {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "store":
			cfg.Store = c.store
		case "db-path":
			cfg.DBPath = c.dbPath
		case "log-level":
			cfg.LogLevel = c.logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

type session struct {
	cfg    config
	logger *zap.Logger
	client *keepaway.Client
}

func (c *commonFlags) open(fs *flag.FlagSet) (*session, error) {
	cfg, err := c.resolve(fs)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	client, err := keepaway.New(keepaway.Options{
		StoreKind: strings.ToLower(strings.TrimSpace(cfg.Store)),
		DBPath:    cfg.DBPath,
		Logger:    logger,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, client: client}, nil
}

func (s *session) close() {
	_ = s.client.Close()
	_ = s.logger.Sync()
}
