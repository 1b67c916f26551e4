package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const devJWTSecret = "default_super_secret_key"

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	LogMode     string   `mapstructure:"LOG_MODE"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBHost      string   `mapstructure:"DB_HOST"`
	DBPort      string   `mapstructure:"DB_PORT"`
	DBUser      string   `mapstructure:"DB_USER"`
	DBPassword  string   `mapstructure:"DB_PASSWORD"`
	DBName      string   `mapstructure:"DB_NAME"`
	DBSSLMode   string   `mapstructure:"DB_SSLMODE"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// optional first admin account, created at startup when missing
	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
}

// Load reads configs/.env (if present) into the environment and then
// resolves every setting from the environment with defaults.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{"configs/.env"}
	}
	// a missing file is fine, the environment may already be populated
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "carepackage")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")

	for _, key := range []string{
		"PORT", "ENV", "LOG_MODE", "DATABASE_URL",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"JWT_SECRET", "CORS_ORIGINS", "ADMIN_EMAIL", "ADMIN_PASSWORD",
	} {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// viper leaves comma separated env values as a single element
	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DSN returns DATABASE_URL, or a postgres URL built from the DB_* settings.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
