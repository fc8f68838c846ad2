// Package metadata fetches the title, description and thumbnail of a media
// page. Nothing is cached; every call asks yt-dlp again.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"media-proxy/internal/gateway"
	"media-proxy/internal/models"

	log "github.com/sirupsen/logrus"
)

// printTemplate asks yt-dlp for the three fields on separate lines.
const printTemplate = "%(title)s\n%(description)s\n%(thumbnail)s"

// Resolver obtains MediaMetadata through a gateway.Runner.
type Resolver struct {
	runner gateway.Runner
}

// NewResolver creates a Resolver.
func NewResolver(runner gateway.Runner) *Resolver {
	return &Resolver{runner: runner}
}

// Resolve tries the cheap --print query first and falls back to a full JSON
// dump when its output does not look like title/description/thumbnail.
// Failures are returned wrapped in models.ErrMetadata; a fallback document
// that is not JSON additionally wraps models.ErrParse.
func (r *Resolver) Resolve(ctx context.Context, url string) (models.MediaMetadata, error) {
	res, err := r.runner.Run(ctx, gateway.YtDlp, []string{"--no-playlist", "--print", printTemplate, url})
	if err != nil {
		// could not run yt-dlp at all; the fallback would fail the same way
		return models.MediaMetadata{}, fmt.Errorf("%w: %w", models.ErrMetadata, err)
	}
	if meta, ok := fromPrintOutput(res); ok {
		log.WithField("url", url).Debug("Metadata resolved from --print output")
		return meta, nil
	}

	log.WithFields(log.Fields{
		"url":    url,
		"status": res.ExitStatus,
	}).Debug("--print output unusable, falling back to JSON dump")
	return r.resolveJSON(ctx, url)
}

// fromPrintOutput accepts the fast path only when yt-dlp succeeded and the
// third line is a URL. Multi-line descriptions push the thumbnail further
// down and are rejected here.
func fromPrintOutput(res gateway.Result) (models.MediaMetadata, bool) {
	if !res.OK() {
		return models.MediaMetadata{}, false
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) < 3 || !strings.HasPrefix(lines[2], "http") {
		return models.MediaMetadata{}, false
	}
	return models.MediaMetadata{
		Title:       strings.TrimSpace(lines[0]),
		Description: strings.TrimSpace(lines[1]),
		Thumbnail:   strings.TrimSpace(lines[2]),
	}, true
}

func (r *Resolver) resolveJSON(ctx context.Context, url string) (models.MediaMetadata, error) {
	res, err := r.runner.Run(ctx, gateway.YtDlp, []string{"-j", url})
	if err != nil {
		return models.MediaMetadata{}, fmt.Errorf("%w: %w", models.ErrMetadata, err)
	}
	if !res.OK() {
		return models.MediaMetadata{}, fmt.Errorf("%w: yt-dlp -j exited with status %d: %s",
			models.ErrMetadata, res.ExitStatus, strings.TrimSpace(res.Stderr))
	}

	var meta models.MediaMetadata
	if err := json.Unmarshal([]byte(res.Stdout), &meta); err != nil {
		return models.MediaMetadata{}, fmt.Errorf("%w: %w: %v", models.ErrMetadata, models.ErrParse, err)
	}
	return meta, nil
}
