package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment override, e.g. BUDGETIMPORT_DATABASE_PATH
const EnvPrefix = "BUDGETIMPORT"

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Import    ImportConfig
	Rules     RulesConfig
	Log       LogConfig
	Firestore FirestoreConfig
	Server    ServerConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ImportConfig holds import engine settings.
type ImportConfig struct {
	PreviewLimit int    `mapstructure:"preview_limit"`
	SourceType   string `mapstructure:"source_type"`
}

// RulesConfig points at an optional OFX categorization rules file.
type RulesConfig struct {
	File string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// FirestoreConfig enables the import audit mirror when ProjectID is set.
type FirestoreConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr          string
	AllowedOrigin string `mapstructure:"allowed_origin"`
	RequireAuth   bool   `mapstructure:"require_auth"`
	MaxUploadMB   int    `mapstructure:"max_upload_mb"`
	StaticDir     string `mapstructure:"static_dir"`
}

// flagKeys maps command-line flag names onto config keys
var flagKeys = map[string]string{
	"db":            "database.path",
	"preview-limit": "import.preview_limit",
	"source-type":   "import.source_type",
	"rules":         "rules.file",
	"log-level":     "log.level",
	"addr":          "server.addr",
}

// DefaultDatabasePath is where the database lives when nothing overrides it.
func DefaultDatabasePath() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "budgetimport", "budget.db")
}

// Load reads configuration from defaults, a YAML file, .env, the environment and
// flags, in increasing order of precedence. Env var overrides use prefix BUDGETIMPORT_.
// cfgFile must exist when given; the default config file is optional.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()

	// default values
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("import.preview_limit", 20)
	v.SetDefault("import.source_type", "income")
	v.SetDefault("rules.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("firestore.project_id", "")
	v.SetDefault("firestore.credentials_file", "")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.allowed_origin", "")
	v.SetDefault("server.require_auth", false)
	v.SetDefault("server.max_upload_mb", 100)
	v.SetDefault("server.static_dir", "")

	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "budgetimport"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the importer cannot run with.
func (c Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if c.Import.PreviewLimit <= 0 {
		return fmt.Errorf("import.preview_limit must be positive, got %d", c.Import.PreviewLimit)
	}
	switch c.Import.SourceType {
	case "income", "sign":
	default:
		return fmt.Errorf("import.source_type must be income or sign, got %q", c.Import.SourceType)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Server.RequireAuth && c.Firestore.ProjectID == "" {
		return fmt.Errorf("server.require_auth needs firestore.project_id for token verification")
	}
	return nil
}

// loadDotEnv exports variables from a .env file without overriding the environment
func loadDotEnv(path string) error {
	err := gotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}
