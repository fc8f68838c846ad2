package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"media-proxy/internal/config"
	"media-proxy/internal/downloader"
	"media-proxy/internal/formats"
	"media-proxy/internal/gateway"
	"media-proxy/internal/metadata"
	"media-proxy/internal/models"
)

// envPrefix namespaces the environment overrides (MEDIAPROXY_LISTEN, ...).
const envPrefix = "MEDIAPROXY"

// cfgFile holds the path to the config file specified by the user
var cfgFile string

var (
	logLevel  string
	logFormat string
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "media-proxy",
	Short: "Local HTTP front for yt-dlp, ffmpeg and aria2c",
	Long: `media-proxy lists the downloadable formats of a media page and streams
the requested formats back as a single file, delegating extraction to yt-dlp,
muxing to ffmpeg and optional parallel downloading to aria2c.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	flags.StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
	flags.String("listen", "", "Address the HTTP server listens on (overrides config)")
	flags.String("temp-dir", "", "Parent directory of per-job workspaces (overrides config)")
	flags.Int("max-concurrent", -1, "Maximum simultaneous tool processes, 0 for unbounded (overrides config)")
	flags.Int("tool-timeout", -1, "Seconds before a tool process is killed, 0 for none (overrides config)")
	flags.Bool("log-tools", false, "Append every tool invocation to the tool log (overrides config)")
	flags.String("listing-format", "", "Format listing source: text (-F) or json (-J) (overrides config)")

	for key, flag := range map[string]string{
		"listen":         "listen",
		"temp_dir":       "temp-dir",
		"max_concurrent": "max-concurrent",
		"tool_timeout":   "tool-timeout",
		"log_tools":      "log-tools",
		"listing_format": "listing-format",
		"log_level":      "log-level",
		"log_format":     "log-format",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			log.WithError(err).Fatalf("Binding flag --%s", flag)
		}
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadGlobalConfig loads the config file, then applies environment and flag
// overrides on top of it.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	initLogging(viper.GetString("log_level"), viper.GetString("log_format"))

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// every setting has a usable default, so a missing file is not fatal
		log.WithError(err).Warnf("Failed to load configuration from %s, using defaults", cfgFile)
		globalConfig = models.Config{}
		config.ApplyDefaults(&globalConfig)
	}

	applyOverrides(&globalConfig, viper.GetViper())

	if err := config.Validate(globalConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyOverrides copies every explicitly set flag or environment value into cfg.
func applyOverrides(cfg *models.Config, v *viper.Viper) {
	if v.IsSet("listen") {
		if listen := v.GetString("listen"); listen != "" {
			cfg.ListenAddr = listen
			log.Debugf("Overriding ListenAddr: %s", listen)
		}
	}
	if v.IsSet("temp_dir") {
		cfg.TempDir = v.GetString("temp_dir")
		log.Debugf("Overriding TempDir: %s", cfg.TempDir)
	}
	if v.IsSet("max_concurrent") {
		if n := v.GetInt("max_concurrent"); n >= 0 {
			cfg.MaxConcurrentTools = n
			log.Debugf("Overriding MaxConcurrentTools: %d", n)
		} else {
			log.Warnf("Ignoring negative max-concurrent %d, using %d", n, cfg.MaxConcurrentTools)
		}
	}
	if v.IsSet("tool_timeout") {
		if n := v.GetInt("tool_timeout"); n >= 0 {
			cfg.ToolTimeoutSec = n
			log.Debugf("Overriding ToolTimeoutSec: %d", n)
		} else {
			log.Warnf("Ignoring negative tool-timeout %d, using %d", n, cfg.ToolTimeoutSec)
		}
	}
	if v.IsSet("log_tools") {
		cfg.LogToolCalls = v.GetBool("log_tools")
		log.Debugf("Overriding LogToolCalls: %t", cfg.LogToolCalls)
	}
	if v.IsSet("listing_format") {
		if format := strings.ToLower(strings.TrimSpace(v.GetString("listing_format"))); format != "" {
			cfg.ListingFormat = format
			log.Debugf("Overriding ListingFormat: %s", format)
		}
	}
}

// initLogging configures logrus from the --log-level and --log-format values.
func initLogging(level, format string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", level)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)

	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", format)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.Debugf("Logging configured: Level=%s, Format=%s", log.GetLevel(), format)
}

// services wires the components every command shares.
type services struct {
	paths     gateway.Paths
	runner    gateway.Runner
	toolLog   *gateway.LoggingRunner
	resolver  *metadata.Resolver
	formats   *formats.Service
	downloads *downloader.Orchestrator
}

func buildServices(cfg models.Config) (*services, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	paths := gateway.ResolvePaths(cfg.Tools, workDir)

	s := &services{paths: paths}
	s.runner = gateway.NewExecRunner(paths, cfg.MaxConcurrentTools, cfg.ToolTimeout())
	if cfg.LogToolCalls {
		lr, err := gateway.NewLoggingRunner(s.runner, cfg.ToolLogPath)
		if err != nil {
			log.WithError(err).Error("Failed to open tool log, tool logging disabled")
		} else {
			log.Infof("Logging tool calls to %s", cfg.ToolLogPath)
			s.toolLog = lr
			s.runner = lr
		}
	}

	s.resolver = metadata.NewResolver(s.runner)
	s.formats = formats.NewService(s.runner, s.resolver, formats.New(cfg.ListingFormat))
	s.downloads = downloader.New(s.runner, s.resolver, paths, cfg)
	return s, nil
}

// Close releases the tool log, if one was opened.
func (s *services) Close() {
	if s.toolLog == nil {
		return
	}
	if err := s.toolLog.Close(); err != nil {
		log.WithError(err).Error("Error closing tool log file")
	}
}
