package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the server needs at startup. Values come from
// defaults, an optional gallery.yaml next to the binary, and GALLERY_*
// environment variables, in increasing precedence.
type Config struct {
	Addr          string
	DatabaseURL   string
	UploadsDir    string
	ThumbnailsDir string
	MaxUploadSize int64
	MaxWidth      int
	MaxHeight     int
	JPEGQuality   int
	ThumbSize     int
	Workers       int
	LogLevel      string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("uploads_dir", "./static/uploads")
	v.SetDefault("thumbnails_dir", "./static/thumbnails")
	v.SetDefault("max_upload_size", 15*1024*1024)
	v.SetDefault("max_width", 1920)
	v.SetDefault("max_height", 1080)
	v.SetDefault("jpeg_quality", 85)
	v.SetDefault("thumb_size", 400)
	v.SetDefault("workers", 3)
	v.SetDefault("log_level", "info")

	v.SetConfigName("gallery")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("GALLERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Addr:          v.GetString("addr"),
		DatabaseURL:   v.GetString("database_url"),
		UploadsDir:    v.GetString("uploads_dir"),
		ThumbnailsDir: v.GetString("thumbnails_dir"),
		MaxUploadSize: v.GetInt64("max_upload_size"),
		MaxWidth:      v.GetInt("max_width"),
		MaxHeight:     v.GetInt("max_height"),
		JPEGQuality:   v.GetInt("jpeg_quality"),
		ThumbSize:     v.GetInt("thumb_size"),
		Workers:       v.GetInt("workers"),
		LogLevel:      v.GetString("log_level"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// InitStorage creates the upload and thumbnail directories. It is called
// once at process startup; a failure here is fatal rather than a silent
// side effect of loading configuration.
func InitStorage(cfg *Config) error {
	for _, dir := range []string{cfg.UploadsDir, cfg.ThumbnailsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
