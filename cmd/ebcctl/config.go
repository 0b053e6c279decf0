package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the ebcctl configuration, loaded from YAML with environment
// overrides (EBCCTL_SERIAL_PORT, EBCCTL_LOG_LEVEL, ...).
type Config struct {
	Serial SerialConfig `mapstructure:"serial"`
	Log    LogConfig    `mapstructure:"log"`
}

// SerialConfig holds the link parameters passed to the serialport and
// device packages.
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	Output string        `mapstructure:"output"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig controls file output and rotation.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.read_timeout", "1s")
	v.SetDefault("serial.timeout", "3s")
	v.SetDefault("serial.retries", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "ebcctl.log")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", false)
}

// loadConfig reads the YAML config at path, or searches ./ and
// ./config when path is empty. A missing file is not an error; the
// defaults above apply.
func loadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ebcctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("EBCCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			// An explicitly named file must exist and parse.
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
