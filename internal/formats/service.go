package formats

import (
	"context"
	"fmt"
	"strings"

	"media-proxy/internal/gateway"
	"media-proxy/internal/models"

	log "github.com/sirupsen/logrus"
)

// MetadataResolver supplies the title, description and thumbnail shown next to the listing.
type MetadataResolver interface {
	Resolve(ctx context.Context, url string) (models.MediaMetadata, error)
}

// Service answers "which formats can I download" for a page URL.
type Service struct {
	runner   gateway.Runner
	resolver MetadataResolver
	parser   ListingParser
}

// NewService creates a Service using the given listing parser.
func NewService(runner gateway.Runner, resolver MetadataResolver, parser ListingParser) *Service {
	return &Service{runner: runner, resolver: resolver, parser: parser}
}

// List resolves the page metadata, then fetches and parses the capability listing.
func (s *Service) List(ctx context.Context, url string) (models.FormatsResponse, error) {
	if strings.TrimSpace(url) == "" {
		return models.FormatsResponse{}, fmt.Errorf("%w: missing video URL", models.ErrClientInput)
	}

	meta, err := s.resolver.Resolve(ctx, url)
	if err != nil {
		return models.FormatsResponse{}, err
	}

	res, err := s.runner.Run(ctx, gateway.YtDlp, s.parser.Args(url))
	if err != nil {
		return models.FormatsResponse{}, fmt.Errorf("%w: %w", models.ErrToolExecution, err)
	}
	if !res.OK() {
		return models.FormatsResponse{}, fmt.Errorf("%w: %s", models.ErrToolExecution, toolMessage(res))
	}

	records, err := s.parser.Parse(res.Stdout)
	if err != nil {
		return models.FormatsResponse{}, err
	}
	if records == nil {
		// serialise as [] rather than null
		records = []models.FormatRecord{}
	}
	log.WithFields(log.Fields{"url": url, "formats": len(records)}).Debug("Listed formats")

	return models.FormatsResponse{
		Title:       meta.Title,
		Description: meta.Description,
		Thumbnail:   meta.Thumbnail,
		VideoURL:    url,
		Formats:     records,
	}, nil
}

// toolMessage prefers what yt-dlp printed on stderr over the bare status.
func toolMessage(res gateway.Result) string {
	if msg := strings.TrimSpace(res.Stderr); msg != "" {
		return msg
	}
	return fmt.Sprintf("yt-dlp exited with status %d", res.ExitStatus)
}
