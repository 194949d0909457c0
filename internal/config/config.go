package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

var Version = "dev"

// Config holds all bot configuration.
type Config struct {
	Env      string         `yaml:"env" envconfig:"ENV" validate:"oneof=development production"`
	LogLevel string         `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Discord  DiscordConfig  `yaml:"discord"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Download DownloadConfig `yaml:"download"`
	Cobalt   CobaltConfig   `yaml:"cobalt"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Music    MusicConfig    `yaml:"musicbrainz"`
	Ytdlp    YtdlpConfig    `yaml:"ytdlp"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

type DiscordConfig struct {
	Token   string `yaml:"token" envconfig:"DISCORD_TOKEN" validate:"required"`
	AppID   string `yaml:"app_id" envconfig:"DISCORD_APP_ID" validate:"required"`
	GuildID string `yaml:"guild_id" envconfig:"DISCORD_GUILD_ID"`
}

type ServerConfig struct {
	Port        int      `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	UploadURL   string   `yaml:"upload_url" envconfig:"UPLOADURL" validate:"required,url"`
	CORSOrigins []string `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
}

// StorageConfig describes the scratch directory and how long files live in it.
type StorageConfig struct {
	TempDir       string        `yaml:"temp_dir" envconfig:"TEMP_DIR" validate:"required"`
	DeleteTimeout time.Duration `yaml:"delete_timeout" envconfig:"FILE_DELETE_TIMEOUT" validate:"gt=0"`
}

type DownloadConfig struct {
	PlaylistConcurrency int           `yaml:"playlist_concurrency" envconfig:"PLAYLIST_CONCURRENCY" validate:"min=1,max=32"`
	MaxPlaylistItems    int           `yaml:"max_playlist_items" envconfig:"MAX_PLAYLIST_ITEMS" validate:"min=1"`
	HTTPTimeout         time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT" validate:"gt=0"`
}

type CobaltConfig struct {
	Instances []string `yaml:"instances" envconfig:"COBALT_API_URLS" validate:"min=1,dive,url"`
	APIKey    string   `yaml:"api_key" envconfig:"COBALT_API_KEY"`
}

type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" envconfig:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" envconfig:"SPOTIFY_CLIENT_SECRET"`
}

type MusicConfig struct {
	UserAgent string `yaml:"user_agent" envconfig:"MUSICBRAINZ_USER_AGENT" validate:"required"`
}

type YtdlpConfig struct {
	CookiesFile string `yaml:"cookies_file" envconfig:"YTDLP_COOKIES"`
	Proxy       string `yaml:"proxy" envconfig:"YTDLP_PROXY" validate:"omitempty,url"`
}

type AlertsConfig struct {
	WebhookURL string `yaml:"webhook_url" envconfig:"DISCORD_WEBHOOK_URL" validate:"omitempty,url"`
	PingUserID string `yaml:"ping_user_id" envconfig:"DISCORD_PING_USER_ID"`
}

var CobaltAPIs = []string{
	"https://nuko-c.meowing.de",
	"https://subito-c.meowing.de",
	"https://cessi-c.meowing.de",
}

// JobLimits caps how many jobs of each type run at once.
var JobLimits = map[string]int{
	"download": 6,
	"playlist": 2,
	"convert":  2,
}

// MIMETypes covers what the bot produces; anything else falls back to the
// system table.
var MIMETypes = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"opus": "audio/opus",
	"ogg":  "audio/ogg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"gif":  "image/gif",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"zip":  "application/zip",
}

const (
	RateLimitWindow = 60 * time.Second
	RateLimitMax    = 60
)

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Env:      "production",
		LogLevel: "info",
		Server: ServerConfig{
			Port:      3000,
			UploadURL: "http://localhost:3000",
		},
		Storage: StorageConfig{
			TempDir:       "temp",
			DeleteTimeout: 5 * time.Minute,
		},
		Download: DownloadConfig{
			PlaylistConcurrency: 6,
			MaxPlaylistItems:    100,
			HTTPTimeout:         30 * time.Second,
		},
		Cobalt: CobaltConfig{
			Instances: append([]string(nil), CobaltAPIs...),
		},
		Music: MusicConfig{
			UserAgent: "chocbot/1.0 ( https://github.com/coah80/chocbot )",
		},
	}
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables override file values, which override defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required values are set and in range.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// SpotifyEnabled reports whether Spotify credentials were supplied.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

func (c *Config) Development() bool {
	return c.Env == "development"
}
