package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "examprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 10, cfg.Marathon.TopK)
	assert.Equal(t, 45*time.Second, cfg.Marathon.RetryDelay)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
database:
  dsn: from-file.db
marathon:
  retry_delay: 30s
  top_k: 4
`)
	t.Setenv("EXAMPREP_DATABASE__DSN", "from-env.db")
	t.Setenv("EXAMPREP_LOG__MODE", "prod")

	cfg, err := Load(newFlags(t, "--config", path, "--addr", ":7000"))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr, "flag beats file")
	assert.Equal(t, "from-env.db", cfg.Database.DSN, "env beats file")
	assert.Equal(t, "prod", cfg.Log.Mode)
	assert.Equal(t, 30*time.Second, cfg.Marathon.RetryDelay)
	assert.Equal(t, 4, cfg.Marathon.TopK)
	assert.Equal(t, 5, cfg.Marathon.WrongPenalty, "unset keys keep defaults")
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_UnchangedFlagsDoNotOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9000\"\n")

	cfg, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"zero top k", func(c *Config) { c.Marathon.TopK = 0 }},
		{"bad log mode", func(c *Config) { c.Log.Mode = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
