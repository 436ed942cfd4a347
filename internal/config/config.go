package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Fees       FeesConfig       `yaml:"fees"`
	Admin      AdminConfig      `yaml:"admin"`
	CORS       CORSConfig       `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig NATS message server configuration. Empty URL disables eventing.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// BlockchainConfig chain and collaborator contract configuration
type BlockchainConfig struct {
	RPCURL  string `yaml:"rpcUrl"`
	ChainID int64  `yaml:"chainId"`

	// RouterAddress is the engine's identity: the verifying contract of
	// the signing domain and the custody account funds pass through.
	RouterAddress string `yaml:"routerAddress"`
	OwnerAddress  string `yaml:"ownerAddress"`
	AssetContract string `yaml:"assetContract"`
	VaultContract string `yaml:"vaultContract"`

	// PrivateKey signs ledger/vault transactions (hex, without 0x prefix).
	PrivateKey string `yaml:"privateKey"`

	// Mock runs with the in-memory ledger and vault instead of JSON-RPC.
	Mock bool `yaml:"mock"`
}

// FeesConfig fee parameters. Enabled and treasury are owner-mutable at
// runtime through the admin API; the rates are fixed per deployment.
type FeesConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Treasury         string `yaml:"treasury"`
	FeeBps           uint64 `yaml:"feeBps"`
	ReferrerShareBps uint64 `yaml:"referrerShareBps"`
	ProtocolShareBps uint64 `yaml:"protocolShareBps"`
}

// AdminConfig admin API access configuration
type AdminConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	// PasswordHash is the bcrypt hash of the admin password.
	PasswordHash string `yaml:"passwordHash"`
	TOTPSecret   string `yaml:"totpSecret"`
	// Address is the owner identity admin JWTs act as.
	Address string `yaml:"address"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

var AppConfig *Config

// LoadConfig loads the yaml configuration file and applies environment
// overrides. An empty path falls back to config.yaml, preferring
// config.local.yaml when present.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)

	if err := validate(&config); err != nil {
		return err
	}

	AppConfig = &config
	return nil
}

// overrideFromEnv lets deployment environments override file values.
func overrideFromEnv(config *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.Database.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		config.NATS.URL = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		config.Blockchain.RPCURL = v
	}
	if v := os.Getenv("ROUTER_PRIVATE_KEY"); v != "" {
		config.Blockchain.PrivateKey = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		config.Admin.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_PASSWORD_HASH"); v != "" {
		config.Admin.PasswordHash = v
	}
	if v := os.Getenv("ADMIN_TOTP_SECRET"); v != "" {
		config.Admin.TOTPSecret = v
	}
}

func validate(config *Config) error {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Fees.ReferrerShareBps+config.Fees.ProtocolShareBps != 100 {
		return fmt.Errorf("fee shares must sum to 100, got %d + %d",
			config.Fees.ReferrerShareBps, config.Fees.ProtocolShareBps)
	}
	if config.Fees.Enabled && config.Fees.Treasury == "" {
		return fmt.Errorf("fees enabled but no treasury configured")
	}
	if config.Blockchain.OwnerAddress == "" {
		return fmt.Errorf("owner address is required")
	}
	return nil
}
