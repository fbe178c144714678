package logger

import (
	"io"

	"github.com/spf13/viper"
)

// EnvConfig is the logger configuration read from the process environment.
type EnvConfig struct {
	Level       string    // LOG_LEVEL: debug, info, warn, error
	Format      string    // LOG_FORMAT: json, text
	Output      io.Writer // overrides the stdout/file selection when set
	ServiceName string    // SERVICE_NAME

	// APP_ENV; "local" always logs to stdout and never to a file
	Environment string

	LogFile     string // LOG_FILE
	LogFileOnly bool   // LOG_FILE_ONLY: skip stdout outside local

	// lumberjack rotation
	MaxSize    int  // LOG_MAX_SIZE, MB
	MaxBackups int  // LOG_MAX_BACKUPS
	MaxAge     int  // LOG_MAX_AGE, days
	Compress   bool // LOG_COMPRESS
}

// LoadFromEnv reads EnvConfig, applying defaults for unset variables.
func LoadFromEnv() *EnvConfig {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SERVICE_NAME", "sheetload")
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("LOG_FILE", "/var/log/sheetload/app.log")
	v.SetDefault("LOG_FILE_ONLY", false)
	v.SetDefault("LOG_MAX_SIZE", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 7)
	v.SetDefault("LOG_MAX_AGE", 30)
	v.SetDefault("LOG_COMPRESS", true)

	return &EnvConfig{
		Level:       v.GetString("LOG_LEVEL"),
		Format:      v.GetString("LOG_FORMAT"),
		ServiceName: v.GetString("SERVICE_NAME"),
		Environment: v.GetString("APP_ENV"),
		LogFile:     v.GetString("LOG_FILE"),
		LogFileOnly: v.GetBool("LOG_FILE_ONLY"),
		MaxSize:     v.GetInt("LOG_MAX_SIZE"),
		MaxBackups:  v.GetInt("LOG_MAX_BACKUPS"),
		MaxAge:      v.GetInt("LOG_MAX_AGE"),
		Compress:    v.GetBool("LOG_COMPRESS"),
	}
}
