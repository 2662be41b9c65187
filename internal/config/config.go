package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`
	Engine struct {
		DefaultMode         string `mapstructure:"default_mode"`
		MaxRecoveryAttempts int    `mapstructure:"max_recovery_attempts"`
		ProjectRoot         string `mapstructure:"project_root"`
		GitTimeoutSeconds   int    `mapstructure:"git_timeout_seconds"`
		QueryMaxParams      int    `mapstructure:"query_max_params"`
		QueryMaxRows        int    `mapstructure:"query_max_rows"`
	} `mapstructure:"engine"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("engine.default_mode", "GUIDED")
	viper.SetDefault("engine.max_recovery_attempts", 3)
	viper.SetDefault("engine.project_root", ".")
	viper.SetDefault("engine.git_timeout_seconds", 10)
	viper.SetDefault("engine.query_max_params", 10)
	viper.SetDefault("engine.query_max_rows", 100)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DatabaseURL assembles the pgx connection string from the DB section.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}
