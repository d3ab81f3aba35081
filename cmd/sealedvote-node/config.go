package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sealedvote/sealedvote-node/config"
	"github.com/sealedvote/sealedvote-node/db"
	"github.com/sealedvote/sealedvote-node/internal"
)

const (
	defaultNetwork         = "local"
	defaultAPIHost         = "0.0.0.0"
	defaultAPIPort         = 9090
	defaultDBType          = db.TypePebble
	defaultLogLevel        = "info"
	defaultLogOutput       = "stdout"
	defaultDatadir         = ".sealedvote" // Will be prefixed with user's home directory
	defaultMonitorInterval = 10 * time.Second
)

// Version is the build version, set at build time with -ldflags
var Version = internal.Version

// Config holds the application configuration
type Config struct {
	API       APIConfig
	Log       LogConfig
	DB        DBConfig
	Network   string
	Authority AuthorityConfig
	Finalizer FinalizerConfig
	Archiver  ArchiverConfig
	Datadir   string
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// DBConfig holds the key-value store configuration
type DBConfig struct {
	Type string `mapstructure:"type"`
}

// AuthorityConfig holds the decryption authority configuration
type AuthorityConfig struct {
	PrivKey string `mapstructure:"privkey"`
}

// FinalizerConfig holds the finalizer monitor configuration
type FinalizerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ArchiverConfig holds the S3 results export configuration
type ArchiverConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	AccessKey string `mapstructure:"accesskey"`
	SecretKey string `mapstructure:"secretkey"`
	Space     string `mapstructure:"space"`
	Bucket    string `mapstructure:"bucket"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	// Set up default values
	// Get user's home directory for default datadir
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("network", defaultNetwork)
	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("db.type", defaultDBType)
	v.SetDefault("authority.privkey", "")
	v.SetDefault("finalizer.interval", defaultMonitorInterval)
	v.SetDefault("archiver.enabled", false)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)

	// Configure flags
	flag.StringP("network", "n", defaultNetwork, fmt.Sprintf("network profile to use %v", config.AvailableNetworks))
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.String("db.type", defaultDBType, "key-value store backend (pebble, leveldb, mongodb or inmemory)")
	flag.StringP("authority.privkey", "k", "", "private key of the decryption authority (required outside the local profile)")
	flag.Duration("finalizer.interval", defaultMonitorInterval, "how often closed polls are scanned for publication (0 disables the monitor)")
	flag.Bool("archiver.enabled", false, "export published results to an S3 compatible bucket")
	flag.String("archiver.host", "", "S3 endpoint host (i.e ams3.digitaloceanspaces.com)")
	flag.String("archiver.accesskey", "", "S3 access key")
	flag.String("archiver.secretkey", "", "S3 secret key")
	flag.String("archiver.space", "", "S3 space (top-level bucket)")
	flag.String("archiver.bucket", "", "S3 folder for result documents")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for database and storage files")

	// Configure usage information
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sealedvote-node v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: sealedvote-node [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, SEALEDVOTE_AUTHORITY_PRIVKEY or SEALEDVOTE_API_HOST\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Start a local node with default settings\n")
		fmt.Fprintf(os.Stderr, "  sealedvote-node\n\n")
		fmt.Fprintf(os.Stderr, "  # Start a dev node with a fixed authority key\n")
		fmt.Fprintf(os.Stderr, "  sealedvote-node --network=dev --authority.privkey=0x123...\n\n")
		fmt.Fprintf(os.Stderr, "  # Export published results to an S3 bucket\n")
		fmt.Fprintf(os.Stderr, "  sealedvote-node --archiver.enabled --archiver.host=ams3.digitaloceanspaces.com --archiver.accesskey=... --archiver.secretkey=...\n")
	}

	// Parse flags
	flag.CommandLine.SortFlags = false
	flag.Parse()

	// Configure Viper to use environment variables
	v.SetEnvPrefix("SEALEDVOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind flags to Viper
	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	// Create config struct
	cfg := &Config{}

	// Unmarshal configuration into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	// Validate network profile
	profile, ok := config.DefaultProfiles[cfg.Network]
	if !ok {
		return fmt.Errorf("invalid network %s, available networks: %v", cfg.Network, config.AvailableNetworks)
	}

	// Outside the local profile publications require verifiable attestations,
	// so the authority address must be stable across restarts
	if profile.StrictProofs && cfg.Authority.PrivKey == "" {
		return fmt.Errorf("authority private key is required on the %s network (use --authority.privkey flag or SEALEDVOTE_AUTHORITY_PRIVKEY environment variable)", cfg.Network)
	}

	if cfg.Archiver.Enabled {
		if cfg.Archiver.AccessKey == "" || cfg.Archiver.SecretKey == "" {
			return fmt.Errorf("archiver credentials are required when the archiver is enabled")
		}
	}

	return nil
}
