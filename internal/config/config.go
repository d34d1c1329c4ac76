// Package config loads netty-analyst settings from defaults, an optional
// config file, NETTY_ANALYST_* environment variables and command-line
// overrides, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/netty/analyst/internal/api"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "NETTY_ANALYST"
	fileName  = "netty-analyst"

	KeyServiceURL     = "service.url"
	KeyServiceTimeout = "service.timeout"
	KeyUploadMaxBytes = "upload.max_bytes"
	KeyExportDir      = "export.dir"
	KeyLogFile        = "log.file"
	KeyLogLevel       = "log.level"
)

const (
	DefaultServiceURL = api.DefaultBaseURL
	DefaultTimeout    = api.DefaultTimeout
	DefaultMaxUpload  = api.DefaultMaxUpload
	DefaultLogLevel   = "info"
)

type Config struct {
	ServiceURL     string
	Timeout        time.Duration
	MaxUploadBytes int64
	ExportDir      string
	LogFile        string
	LogLevel       string
	// File is the config file that was read, empty when none was found
	File string
}

// Load reads the configuration. path names an explicit config file; when it
// is empty the usual locations are searched and a missing file is not an
// error. overrides are applied last, keyed like the config file.
func Load(path string, overrides map[string]interface{}) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", fileName))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	cfg := &Config{
		ServiceURL:     strings.TrimSpace(v.GetString(KeyServiceURL)),
		Timeout:        v.GetDuration(KeyServiceTimeout),
		MaxUploadBytes: v.GetInt64(KeyUploadMaxBytes),
		ExportDir:      v.GetString(KeyExportDir),
		LogFile:        v.GetString(KeyLogFile),
		LogLevel:       strings.ToLower(v.GetString(KeyLogLevel)),
		File:           v.ConfigFileUsed(),
	}
	if cfg.ServiceURL == "" {
		cfg.ServiceURL = DefaultServiceURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUpload
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyServiceURL, DefaultServiceURL)
	v.SetDefault(KeyServiceTimeout, DefaultTimeout)
	v.SetDefault(KeyUploadMaxBytes, DefaultMaxUpload)
	v.SetDefault(KeyExportDir, ".")
	v.SetDefault(KeyLogFile, filepath.Join(os.TempDir(), "netty-analyst.log"))
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
}
