package config

import (
	"errors"
	"fmt"
	"strings"

	"ioptimizer-go/internal/logger"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	SupportedExtensions []string          `mapstructure:"supported_extensions"`
	Compression         CompressionConfig `mapstructure:"compression"`
	Processing          ProcessingConfig  `mapstructure:"processing"`
	Logging             LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains codec tuning passed to the compressor
type CompressionConfig struct {
	LossyQuality    int    `mapstructure:"lossy_quality"`    // JPEG quality in lossy mode
	LosslessQuality int    `mapstructure:"lossless_quality"` // JPEG quality in lossless mode
	PNGCompression  string `mapstructure:"png_compression"`  // default, fast, best
	MaxDimension    int    `mapstructure:"max_dimension"`    // lossy mode only, 0 keeps size
}

// ProcessingConfig contains replace-in-place settings
type ProcessingConfig struct {
	BackupSuffix     string `mapstructure:"backup_suffix"`
	TempSuffix       string `mapstructure:"temp_suffix"`
	OverwriteBackups bool   `mapstructure:"overwrite_backups"`
	SkipOptimized    bool   `mapstructure:"skip_optimized"`
	MarkOptimized    bool   `mapstructure:"mark_optimized"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		SupportedExtensions: []string{".jpg", ".jpeg", ".png"},
		Compression: CompressionConfig{
			LossyQuality:    75,
			LosslessQuality: 95,
			PNGCompression:  "best",
			MaxDimension:    0,
		},
		Processing: ProcessingConfig{
			BackupSuffix:     ".bkp",
			TempSuffix:       ".ioptimizer.tmp",
			OverwriteBackups: false,
			SkipOptimized:    true,
			MarkOptimized:    true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   logger.DefaultFilePath(),
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file is fine; defaults apply.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ioptimizer")
		v.AddConfigPath("/etc/ioptimizer")
	}

	v.SetEnvPrefix("IOPTIMIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// AutomaticEnv only resolves keys viper already knows about, so register them.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"supported_extensions",
		"compression.lossy_quality",
		"compression.lossless_quality",
		"compression.png_compression",
		"compression.max_dimension",
		"processing.backup_suffix",
		"processing.temp_suffix",
		"processing.overwrite_backups",
		"processing.skip_optimized",
		"processing.mark_optimized",
		"logging.level",
		"logging.file_path",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)
	if len(c.SupportedExtensions) == 0 {
		return fmt.Errorf("supported_extensions must not be empty")
	}

	if c.Compression.LossyQuality < 1 || c.Compression.LossyQuality > 100 {
		return fmt.Errorf("invalid lossy_quality: %d (valid: 1-100)", c.Compression.LossyQuality)
	}
	if c.Compression.LosslessQuality < 1 || c.Compression.LosslessQuality > 100 {
		return fmt.Errorf("invalid lossless_quality: %d (valid: 1-100)", c.Compression.LosslessQuality)
	}
	if c.Compression.MaxDimension < 0 {
		return fmt.Errorf("invalid max_dimension: %d", c.Compression.MaxDimension)
	}

	c.Compression.PNGCompression = strings.ToLower(c.Compression.PNGCompression)
	if c.Compression.PNGCompression == "" {
		c.Compression.PNGCompression = "best"
	}
	validPNG := map[string]bool{
		"default": true,
		"fast":    true,
		"best":    true,
	}
	if !validPNG[c.Compression.PNGCompression] {
		return fmt.Errorf("invalid png_compression: %s (valid: default, fast, best)", c.Compression.PNGCompression)
	}

	if c.Processing.BackupSuffix == "" {
		c.Processing.BackupSuffix = ".bkp"
	}
	if c.Processing.TempSuffix == "" {
		c.Processing.TempSuffix = ".ioptimizer.tmp"
	}
	if c.Processing.BackupSuffix == c.Processing.TempSuffix {
		return fmt.Errorf("backup_suffix and temp_suffix must differ")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// IsSupportedExtension checks if the extension is one the compressor accepts
func (c *Config) IsSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.SupportedExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
