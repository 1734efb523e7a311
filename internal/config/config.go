package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"prod"`
	OPCUA     OPCUAConfig     `yaml:"opcua"`
	Store     StoreConfig     `yaml:"store"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Report    ReportConfig    `yaml:"report"`
	Health    HealthConfig    `yaml:"health"`
	Log       LogConfig       `yaml:"log"`
}

type OPCUAConfig struct {
	Endpoint         string        `yaml:"endpoint" env:"OPCUA_ENDPOINT" env-required:"true"`
	ApplicationName  string        `yaml:"application_name" env:"OPCUA_APPLICATION_NAME" env-default:"opcsnapshot"`
	SessionName      string        `yaml:"session_name" env:"OPCUA_SESSION_NAME" env-default:"opcsnapshot"`
	SecurityPolicy   string        `yaml:"security_policy" env:"OPCUA_SECURITY_POLICY" env-default:"None"`
	Username         string        `yaml:"username" env:"OPCUA_USERNAME"`
	Password         string        `yaml:"password" env:"OPCUA_PASSWORD"`
	CertFile         string        `yaml:"cert_file" env:"OPCUA_CERT_FILE"`
	KeyFile          string        `yaml:"key_file" env:"OPCUA_KEY_FILE"`
	TrustedCertsFile string        `yaml:"trusted_certs_file" env:"OPCUA_TRUSTED_CERTS_FILE"`
	VerifyServerCert bool          `yaml:"verify_server_cert" env:"OPCUA_VERIFY_SERVER_CERT"`
	OperationTimeout time.Duration `yaml:"operation_timeout" env:"OPCUA_OPERATION_TIMEOUT" env-default:"15s"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" env:"OPCUA_CONNECT_TIMEOUT" env-default:"15s"`
	SessionTimeout   time.Duration `yaml:"session_timeout" env:"OPCUA_SESSION_TIMEOUT" env-default:"60s"`
	Trace            bool          `yaml:"trace" env:"OPCUA_TRACE"`

	// Transport limits negotiated in the Hello message. Zero references per
	// node lets the server choose its page size.
	MaxBufferSize        uint32 `yaml:"max_buffer_size" env:"OPCUA_MAX_BUFFER_SIZE" env-default:"65536"`
	MaxMessageSize       uint32 `yaml:"max_message_size" env:"OPCUA_MAX_MESSAGE_SIZE" env-default:"4194304"`
	MaxChunkCount        uint32 `yaml:"max_chunk_count" env:"OPCUA_MAX_CHUNK_COUNT" env-default:"4096"`
	MaxReferencesPerNode uint32 `yaml:"max_references_per_node" env:"OPCUA_MAX_REFERENCES_PER_NODE" env-default:"0"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver" env:"STORE_DRIVER" env-default:"postgres"`
	Host          string `yaml:"host" env:"STORE_HOST" env-default:"localhost"`
	Port          int    `yaml:"port" env:"STORE_PORT" env-default:"5432"`
	User          string `yaml:"user" env:"STORE_USER" env-default:"postgres"`
	Password      string `yaml:"password" env:"STORE_PASSWORD"`
	Database      string `yaml:"database" env:"STORE_DATABASE" env-default:"OpcUaDb"`
	AdminDatabase string `yaml:"admin_database" env:"STORE_ADMIN_DATABASE" env-default:"postgres"`
	SSLMode       string `yaml:"sslmode" env:"STORE_SSLMODE" env-default:"disable"`
	Table         string `yaml:"table" env:"STORE_TABLE" env-default:"opc_live_data"`
	Dir           string `yaml:"dir" env:"STORE_DIR" env-default:"/var/lib/opcsnapshot"`
}

type HealthConfig struct {
	Address string `yaml:"address" env:"HEALTH_ADDRESS"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Load reads the config file at configPath, falling back to CONFIG_PATH.
// With neither set the config comes from the environment alone.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from env: %w", err)
		}
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Store.Database == "" {
		return fmt.Errorf("store database name is empty")
	}
	if c.Store.Table == "" {
		return fmt.Errorf("store table name is empty")
	}

	if _, ok := securityPolicies[c.OPCUA.SecurityPolicy]; !ok {
		return fmt.Errorf("unknown security policy %q", c.OPCUA.SecurityPolicy)
	}

	if (c.OPCUA.CertFile == "") != (c.OPCUA.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}

	if c.OPCUA.MaxBufferSize == 0 || c.OPCUA.MaxMessageSize == 0 || c.OPCUA.MaxChunkCount == 0 {
		return fmt.Errorf("opcua transport limits must be positive: buffer=%d message=%d chunks=%d",
			c.OPCUA.MaxBufferSize, c.OPCUA.MaxMessageSize, c.OPCUA.MaxChunkCount)
	}

	if c.Report.Limit <= 0 {
		return fmt.Errorf("report limit must be positive: %d", c.Report.Limit)
	}

	return c.Discovery.validate()
}

var securityPolicies = map[string]struct{}{
	"":                    {},
	"None":                {},
	"Basic128Rsa15":       {},
	"Basic256":            {},
	"Basic256Sha256":      {},
	"Aes128Sha256RsaOaep": {},
	"Aes256Sha256RsaPss":  {},
}
