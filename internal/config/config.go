// Package config loads service configuration from defaults, a YAML file,
// EXAMPREP_* environment variables and command-line flags, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	envPrefix         = "EXAMPREP_"
	DefaultConfigFile = "examprep.yaml"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Marathon MarathonConfig `koanf:"marathon"`
	Importer ImporterConfig `koanf:"importer"`
}

type ServerConfig struct {
	Addr        string   `koanf:"addr" validate:"required"`
	Mode        string   `koanf:"mode" validate:"oneof=debug release test"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type LogConfig struct {
	Mode string `koanf:"mode" validate:"oneof=dev prod"`
}

// MarathonConfig tunes the adaptive queue.
type MarathonConfig struct {
	TopK              int           `koanf:"top_k" validate:"gte=1"`
	RetryDelay        time.Duration `koanf:"retry_delay" validate:"gte=0"`
	WrongPenalty      int           `koanf:"wrong_penalty" validate:"gte=0"`
	MaxUpdateAttempts int           `koanf:"max_update_attempts" validate:"gte=1"`
}

type ImporterConfig struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
			Mode: "release",
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
			},
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "examprep.db"},
		Log:      LogConfig{Mode: "dev"},
		Marathon: MarathonConfig{
			TopK:              10,
			RetryDelay:        45 * time.Second,
			WrongPenalty:      5,
			MaxUpdateAttempts: 3,
		},
		Importer: ImporterConfig{ReposDir: "repos"},
	}
}

// flagKeys maps CLI flag names onto configuration keys.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"db-driver": "database.driver",
	"db":        "database.dsn",
	"log-mode":  "log.mode",
	"repos-dir": "importer.repos_dir",
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", DefaultConfigFile, "Path to the YAML configuration file")
	fs.String("addr", "", "HTTP listen address")
	fs.String("db-driver", "", "Database driver (sqlite or postgres)")
	fs.String("db", "", "Database DSN (SQLite file path or Postgres URL)")
	fs.String("log-mode", "", "Log encoder (dev or prod)")
	fs.String("repos-dir", "", "Directory git sources are cloned into")
}

// Load resolves the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	path := DefaultConfigFile
	explicit := false
	if flags != nil {
		if f := flags.Lookup("config"); f != nil {
			path = f.Value.String()
			explicit = f.Changed
		}
	}
	// The default file is optional; one named on the command line is not.
	if explicit || Exists(path) {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey turns EXAMPREP_DATABASE__DSN into database.dsn.
func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
