package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"bibkeys/internal/keys"
)

const EnvPrefix = "BIBKEYS"

type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Keys     keys.Options   `mapstructure:"keys" yaml:"keys"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Path     string `mapstructure:"path" yaml:"path"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Name     string `mapstructure:"name" yaml:"name"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	JWTSecret      string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// StorageConfig locates attached paper files. An empty Dir disables attaching.
type StorageConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

func NewConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    "bibkeys.db",
			Port:    "5432",
			SSLMode: "disable",
		},
		Server: ServerConfig{
			Port:           "3000",
			AllowedOrigins: []string{"http://localhost:5173"},
			MaxUploadBytes: 10 << 20,
		},
		Keys: keys.DefaultOptions(),
		Storage: StorageConfig{
			Dir: "files",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers defaults and env bindings on v. The unprefixed
// DB_*, PORT and ALLOWED_ORIGINS variables are honoured as fallbacks.
func SetDefaults(v *viper.Viper) {
	d := NewConfig()

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("keys.separator", d.Keys.Separator)
	v.SetDefault("keys.style", string(d.Keys.Style))
	v.SetDefault("keys.case_insensitive", d.Keys.CaseInsensitive)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database.host", EnvPrefix+"_DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", EnvPrefix+"_DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.user", EnvPrefix+"_DATABASE_USER", "DB_USER")
	_ = v.BindEnv("database.password", EnvPrefix+"_DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("database.name", EnvPrefix+"_DATABASE_NAME", "DB_NAME")
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.allowed_origins", EnvPrefix+"_SERVER_ALLOWED_ORIGINS", "ALLOWED_ORIGINS")
	_ = v.BindEnv("server.jwt_secret", EnvPrefix+"_SERVER_JWT_SECRET", "JWT_SECRET")
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := NewConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if err := c.Keys.Validate(); err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	return nil
}
