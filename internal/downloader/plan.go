package downloader

import (
	"fmt"
	"strings"

	"media-proxy/internal/models"
)

// bestAudio is yt-dlp's selector for the highest quality audio-only stream.
const bestAudio = "bestaudio"

// FormatPlan is what yt-dlp is asked to fetch for one request.
type FormatPlan struct {
	Expression   string   // value passed to -f
	QualityLabel string   // suffix used in the delivered file name
	Args         []string // mode-specific flags
}

// Plan derives the format expression and quality label for a request. The
// first site rule whose host pattern matches decides how a video selector is
// combined with an audio selector; without a match both are merged as given.
func Plan(req models.DownloadRequest, rules []models.SiteRule, cfg models.DownloaderConfig) (FormatPlan, error) {
	video := strings.TrimSpace(req.Video)
	audio := strings.TrimSpace(req.Audio)

	switch {
	case audio != "" && video == "":
		return FormatPlan{
			Expression:   bestAudio,
			QualityLabel: "audio",
			Args:         []string{"--extract-audio", "--audio-format", cfg.AudioFormat, "--audio-quality", cfg.AudioQuality},
		}, nil

	case video != "" && audio != "":
		plan := FormatPlan{QualityLabel: video + "_" + audio}
		mode, fixedAudio := models.ComposeBoth, ""
		for _, rule := range rules {
			if rule.Matches(req.URL) {
				mode, fixedAudio = rule.Mode, rule.FixedAudio
				break
			}
		}
		switch mode {
		case models.ComposeVideoOnly:
			plan.Expression = video
		case models.ComposeFixedAudio:
			plan.Expression = video + "+" + fixedAudio
			plan.Args = mergeArgs(cfg)
		case models.ComposeBoth:
			plan.Expression = video + "+" + audio
			plan.Args = mergeArgs(cfg)
		default:
			return FormatPlan{}, fmt.Errorf("%w: unknown composition mode %q", models.ErrInternal, mode)
		}
		return plan, nil

	case video != "":
		return FormatPlan{
			Expression:   video,
			QualityLabel: video + "_video_only",
		}, nil

	default:
		return FormatPlan{}, fmt.Errorf("%w: request has neither a video nor an audio selector", models.ErrInternal)
	}
}

func mergeArgs(cfg models.DownloaderConfig) []string {
	return []string{"--merge-output-format", cfg.MergeOutputFormat}
}
