package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	path := writeConfig(t, `
opcua:
  endpoint: opc.tcp://plc.local:4840
store:
  driver: sqlite
  dir: /tmp/snap
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "opc.tcp://plc.local:4840", cfg.OPCUA.Endpoint)
	assert.Equal(t, "None", cfg.OPCUA.SecurityPolicy)
	assert.Equal(t, 15*time.Second, cfg.OPCUA.OperationTimeout)
	assert.Equal(t, 60*time.Second, cfg.OPCUA.SessionTimeout)
	assert.False(t, cfg.OPCUA.VerifyServerCert)
	assert.Equal(t, uint32(4194304), cfg.OPCUA.MaxMessageSize)
	assert.Equal(t, uint32(0), cfg.OPCUA.MaxReferencesPerNode)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "OpcUaDb", cfg.Store.Database)
	assert.Equal(t, "opc_live_data", cfg.Store.Table)

	assert.Equal(t, DefaultDiscovery(), cfg.Discovery)
	assert.Equal(t, 10, cfg.Report.Limit)
	assert.Empty(t, cfg.Health.Address)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("OPCUA_ENDPOINT", "opc.tcp://10.0.0.5:4840")
	t.Setenv("STORE_PASSWORD", "secret")
	t.Setenv("DISCOVERY_MAX_CANDIDATES", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "opc.tcp://10.0.0.5:4840", cfg.OPCUA.Endpoint)
	assert.Equal(t, "secret", cfg.Store.Password)
	assert.Equal(t, 3, cfg.Discovery.MaxCandidates)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestMustLoad_PanicsOnMissingFile(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			OPCUA: OPCUAConfig{
				Endpoint:       "opc.tcp://x:4840",
				SecurityPolicy: "None",
				MaxBufferSize:  65536,
				MaxMessageSize: 4194304,
				MaxChunkCount:  4096,
			},
			Store:     StoreConfig{Driver: DriverPostgres, Database: "db", Table: "t"},
			Discovery: DefaultDiscovery(),
			Report:    ReportConfig{Limit: 10},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "unknown store driver"},
		{"empty table", func(c *Config) { c.Store.Table = "" }, "table name is empty"},
		{"bad policy", func(c *Config) { c.OPCUA.SecurityPolicy = "Basic512" }, "unknown security policy"},
		{"cert without key", func(c *Config) { c.OPCUA.CertFile = "c.pem" }, "must be set together"},
		{"zero cap", func(c *Config) { c.Discovery.MaxCandidates = 0 }, "must be positive"},
		{"empty root", func(c *Config) { c.Discovery.RootNode = "" }, "root node is empty"},
		{"zero report", func(c *Config) { c.Report.Limit = 0 }, "report limit"},
		{"zero message size", func(c *Config) { c.OPCUA.MaxMessageSize = 0 }, "transport limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
