package models

import (
	"net/url"
	"strings"
	"time"
)

type (
	Config struct {
		// Server
		ListenAddr string `toml:"ListenAddr"`

		// Workspaces
		TempDir         string `toml:"TempDir"`         // Parent of per-job workspaces, os.TempDir() when empty
		WorkspacePrefix string `toml:"WorkspacePrefix"` // Name prefix used for every job workspace

		// Tool invocation
		MaxConcurrentTools int    `toml:"MaxConcurrentTools"` // 0 = unbounded
		ToolTimeoutSec     int    `toml:"ToolTimeoutSec"`     // 0 = no timeout
		LogToolCalls       bool   `toml:"LogToolCalls"`
		ToolLogPath        string `toml:"ToolLogPath"`
		ListingFormat      string `toml:"ListingFormat"` // "text" (-F) or "json" (-J)

		Tools      ToolPaths        `toml:"Tools"`
		Downloader DownloaderConfig `toml:"Downloader"`
		SiteRules  []SiteRule       `toml:"SiteRules"`
	}

	// ToolPaths overrides the platform-resolved executable locations.
	ToolPaths struct {
		YtDlpPath  string `toml:"YtDlpPath"`
		FfmpegPath string `toml:"FfmpegPath"`
		Aria2cPath string `toml:"Aria2cPath"`
	}

	// DownloaderConfig is the single configuration axis separating the plain
	// and the cookie-authenticated/accelerated service variants.
	DownloaderConfig struct {
		CookieFile string   `toml:"CookieFile"`
		ForceIPv4  bool     `toml:"ForceIPv4"`
		ExtraArgs  []string `toml:"ExtraArgs"`

		// aria2c delegation
		Accelerate             bool   `toml:"Accelerate"`
		AcceleratorConnections int    `toml:"AcceleratorConnections"` // -x
		AcceleratorSplit       int    `toml:"AcceleratorSplit"`       // -s
		AcceleratorChunkSize   string `toml:"AcceleratorChunkSize"`   // -k

		// Output shaping
		MergeOutputFormat string `toml:"MergeOutputFormat"`
		AudioFormat       string `toml:"AudioFormat"`
		AudioQuality      string `toml:"AudioQuality"`
	}

	// SiteRule decides how a (video, audio) selection is composed for hosts
	// whose name contains HostContains.
	SiteRule struct {
		Name         string      `toml:"Name"`
		HostContains string      `toml:"HostContains"`
		Mode         ComposeMode `toml:"Mode"`
		FixedAudio   string      `toml:"FixedAudio"` // Used by ComposeFixedAudio
	}

	// FormatRecord is one retained row of a capability listing.
	FormatRecord struct {
		Code       string    `json:"code"`
		Extension  string    `json:"extension"`
		Resolution string    `json:"resolution"`
		Size       *SizeInfo `json:"size"`
		Bitrate    *string   `json:"bitrate"`
		Codecs     *string   `json:"codecs"`
		RawNote    string    `json:"rawNote"`
	}

	// SizeInfo holds human-readable renderings of a single byte count.
	SizeInfo struct {
		Byte string `json:"byte"`
		KB   string `json:"kb"`
		MB   string `json:"mb"`
		GB   string `json:"gb"`
	}

	MediaMetadata struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Thumbnail   string `json:"thumbnail"`
	}

	DownloadRequest struct {
		URL   string `json:"url" form:"url"`
		Video string `json:"video,omitempty" form:"video"`
		Audio string `json:"audio,omitempty" form:"audio"`
	}

	// DownloadJob is created once a request is accepted. The workspace is owned
	// by the job alone and is removed when the job ends.
	DownloadJob struct {
		ID               string
		WorkspaceDir     string
		FormatExpression string
		QualityLabel     string
		ExtraArgs        []string // Mode-specific flags (audio extraction, merge container)
	}

	FormatsRequest struct {
		URL string `json:"url" form:"url"`
	}

	FormatsResponse struct {
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Thumbnail   string         `json:"thumbnail"`
		VideoURL    string         `json:"videoUrl"`
		Formats     []FormatRecord `json:"formats"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
	}
)

// ComposeMode names a format composition rule.
type ComposeMode string

const (
	ComposeVideoOnly  ComposeMode = "video"       // Streams are pre-muxed; video selector alone
	ComposeFixedAudio ComposeMode = "video+fixed" // <video>+<FixedAudio>, merged
	ComposeBoth       ComposeMode = "video+audio" // <video>+<audio>, merged
)

// ToolTimeout is ToolTimeoutSec as a duration; zero means no timeout.
func (c Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// Matches reports whether the rule applies to the given request URL.
func (r SiteRule) Matches(rawURL string) bool {
	if r.HostContains == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Host), strings.ToLower(r.HostContains))
}

// HasVideo reports whether a video selector was supplied.
func (r DownloadRequest) HasVideo() bool {
	return strings.TrimSpace(r.Video) != ""
}

// HasAudio reports whether an audio selector was supplied.
func (r DownloadRequest) HasAudio() bool {
	return strings.TrimSpace(r.Audio) != ""
}
