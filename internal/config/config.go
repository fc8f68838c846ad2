package config

import (
	"fmt"
	"os"
	"strings"

	"media-proxy/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// Defaults applied to any field the config file leaves empty.
const (
	DefaultListenAddr        = ":3000"
	DefaultWorkspacePrefix   = "yt-dlp-"
	DefaultToolLogPath       = "tools.log"
	DefaultListingFormat     = "text"
	DefaultMergeOutputFormat = "mp4"
	DefaultAudioFormat       = "mp3"
	DefaultAudioQuality      = "5"
	DefaultConnections       = 16
	DefaultSplit             = 16
	DefaultChunkSize         = "1M"
)

// DefaultSiteRules reproduces the two hard-wired platform heuristics: TikTok
// streams are pre-muxed, YouTube always pairs the video with audio track 140.
func DefaultSiteRules() []models.SiteRule {
	return []models.SiteRule{
		{Name: "tiktok", HostContains: "tiktok", Mode: models.ComposeVideoOnly},
		{Name: "youtube", HostContains: "youtu", Mode: models.ComposeFixedAudio, FixedAudio: "140"},
	}
}

// LoadConfig reads the configuration from the specified path (defaulting to "config.toml"),
// fills defaults and validates it.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}
	var cfg models.Config
	if _, err := toml.DecodeFile(configFilePath, &cfg); err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return models.Config{}, fmt.Errorf("invalid config file %s: %w", configFilePath, err)
	}

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *models.Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.WorkspacePrefix == "" {
		cfg.WorkspacePrefix = DefaultWorkspacePrefix
	}
	if cfg.ToolLogPath == "" {
		cfg.ToolLogPath = DefaultToolLogPath
	}
	cfg.ListingFormat = strings.ToLower(strings.TrimSpace(cfg.ListingFormat))
	if cfg.ListingFormat == "" {
		cfg.ListingFormat = DefaultListingFormat
	}
	if cfg.MaxConcurrentTools < 0 {
		log.Warnf("MaxConcurrentTools %d is negative, treating as unbounded", cfg.MaxConcurrentTools)
		cfg.MaxConcurrentTools = 0
	}
	if cfg.ToolTimeoutSec < 0 {
		cfg.ToolTimeoutSec = 0
	}

	d := &cfg.Downloader
	if d.MergeOutputFormat == "" {
		d.MergeOutputFormat = DefaultMergeOutputFormat
	}
	if d.AudioFormat == "" {
		d.AudioFormat = DefaultAudioFormat
	}
	if d.AudioQuality == "" {
		d.AudioQuality = DefaultAudioQuality
	}
	if d.AcceleratorConnections <= 0 {
		d.AcceleratorConnections = DefaultConnections
	}
	if d.AcceleratorSplit <= 0 {
		d.AcceleratorSplit = DefaultSplit
	}
	if d.AcceleratorChunkSize == "" {
		d.AcceleratorChunkSize = DefaultChunkSize
	}

	if len(cfg.SiteRules) == 0 {
		cfg.SiteRules = DefaultSiteRules()
	}
}

// Validate rejects configurations the services cannot run with.
func Validate(cfg models.Config) error {
	switch cfg.ListingFormat {
	case "text", "json":
	default:
		return fmt.Errorf("ListingFormat must be \"text\" or \"json\", got %q", cfg.ListingFormat)
	}
	for i, rule := range cfg.SiteRules {
		if rule.HostContains == "" {
			return fmt.Errorf("SiteRules[%d] (%s): HostContains is required", i, rule.Name)
		}
		switch rule.Mode {
		case models.ComposeVideoOnly, models.ComposeBoth:
		case models.ComposeFixedAudio:
			if rule.FixedAudio == "" {
				return fmt.Errorf("SiteRules[%d] (%s): mode %q requires FixedAudio", i, rule.Name, rule.Mode)
			}
		default:
			return fmt.Errorf("SiteRules[%d] (%s): unknown mode %q", i, rule.Name, rule.Mode)
		}
	}
	if cookie := cfg.Downloader.CookieFile; cookie != "" {
		if _, err := os.Stat(cookie); err != nil {
			// yt-dlp will fail loudly on its own; don't refuse to start over it
			log.WithError(err).Warnf("Cookie file %s is not readable", cookie)
		}
	}
	return nil
}
