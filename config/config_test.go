package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  addr: \":8080\"\n"))
	require.NoError(t, err)

	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, "./data", cfg.Store.DataDir)
	assert.Equal(t, "test-data.json", cfg.Store.Filename)
	assert.Equal(t, "classroom-service", cfg.Logging.Service)
	assert.Equal(t, "std", cfg.Logging.Backend)
	assert.Equal(t, 24*time.Hour, cfg.GraceWindow())
	assert.Equal(t, 10*time.Minute, cfg.CleanupInterval())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"no http addr":      "grpc:\n  addr: \":9090\"\n",
		"unknown backend":   "http:\n  addr: \":1\"\nstore:\n  backend: mongo\n",
		"postgres w/o dsn":  "http:\n  addr: \":1\"\nstore:\n  backend: postgres\n",
		"bad grace window":  "http:\n  addr: \":1\"\nrooms:\n  graceWindow: soon\n",
		"negative capacity": "http:\n  addr: \":1\"\nrooms:\n  defaultCapacity: -1\n",
		"not yaml":          "http: [",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_FromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":8080"
store:
  backend: postgres
  postgres:
    dsn: postgres://localhost/classroom
rooms:
  defaultCapacity: 12
  graceWindow: 2h
`), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/classroom", cfg.Store.Postgres.DSN)
	assert.Equal(t, 12, cfg.Rooms.DefaultCapacity)
	assert.Equal(t, 2*time.Hour, cfg.GraceWindow())
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "config.yaml")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, ":9090", cfg.GRPC.Addr)
	assert.Equal(t, 30, cfg.Rooms.DefaultCapacity)
}
