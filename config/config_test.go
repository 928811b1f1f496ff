package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "data/zako.db", cfg.Store.DSN)
	assert.Equal(t, 3*time.Second, cfg.Geo.Timeout)
	assert.Equal(t, "zako_uuid", cfg.Session.ClientCookieName)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ZAKO_STORE_DRIVER", "postgres")
	t.Setenv("ZAKO_STORE_DSN", "postgres://zako@localhost/zako?sslmode=disable")
	t.Setenv("ZAKO_GEO_TIMEOUT", "750ms")
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 750*time.Millisecond, cfg.Geo.Timeout)
}

func TestPortFallback(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	t.Setenv("ZAKO_SERVER_ADDR", ":7070")
	cfg, err = Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zako.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: dynamodb
  dynamodb:
    region: ap-east-1
    table_prefix: dev_
log:
  level: debug
`), 0o600))
	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, DriverDynamoDB, cfg.Store.Driver)
	assert.Equal(t, "dev_", cfg.Store.DynamoDB.TablePrefix)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	t.Setenv("ZAKO_STORE_DRIVER", "mysql")
	_, err := Load(viper.New(), "")
	assert.ErrorContains(t, err, "unknown store.driver")

	t.Setenv("ZAKO_STORE_DRIVER", "sqlite")
	t.Setenv("ZAKO_GEO_TIMEOUT", "0s")
	_, err = Load(viper.New(), "")
	assert.ErrorContains(t, err, "geo.timeout must be positive")
}
