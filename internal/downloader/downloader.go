package downloader

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"media-proxy/internal/gateway"
	"media-proxy/internal/helpers"
	"media-proxy/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// defaultTitle names the artifact when the page has no title.
const defaultTitle = "video"

// partialSuffixes are left behind by yt-dlp and aria2c while a download is in flight.
var partialSuffixes = []string{".part", ".ytdl", ".aria2", ".temp"}

// MetadataResolver supplies the title used to name the delivered file.
type MetadataResolver interface {
	Resolve(ctx context.Context, url string) (models.MediaMetadata, error)
}

// Artifact is the downloaded file, valid only for the duration of a DeliverFunc call.
type Artifact struct {
	Path     string // location inside the job workspace
	Filename string // name suggested to the client
	Size     int64
	Job      models.DownloadJob
	Metadata models.MediaMetadata
}

// DeliverFunc hands the artifact to the caller. The workspace is removed as
// soon as it returns, so the file must be fully consumed inside the call.
type DeliverFunc func(a *Artifact) error

// Orchestrator runs download jobs, one exclusive workspace per job.
type Orchestrator struct {
	runner   gateway.Runner
	resolver MetadataResolver
	paths    gateway.Paths
	cfg      models.DownloaderConfig
	rules    []models.SiteRule
	tempDir  string
	prefix   string
	newID    func() string
}

// New creates an Orchestrator. The download options, site rules and the
// workspace location are taken from cfg.
func New(runner gateway.Runner, resolver MetadataResolver, paths gateway.Paths, cfg models.Config) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		resolver: resolver,
		paths:    paths,
		cfg:      cfg.Downloader,
		rules:    cfg.SiteRules,
		tempDir:  cfg.TempDir,
		prefix:   cfg.WorkspacePrefix,
		newID:    uuid.NewString,
	}
}

// Validate checks a request before any tool runs or any workspace exists.
func Validate(req models.DownloadRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("%w: missing required parameter url", models.ErrClientInput)
	}
	if !req.HasVideo() && !req.HasAudio() {
		return fmt.Errorf("%w: missing required parameters: video/audio", models.ErrClientInput)
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL format", models.ErrClientInput)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: invalid URL protocol %q", models.ErrClientInput, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: URL has no host", models.ErrClientInput)
	}
	return nil
}

// Download fetches the requested formats into a fresh workspace and passes the
// result to deliver. The workspace is removed exactly once on every path,
// after deliver returns when it is called at all.
func (o *Orchestrator) Download(ctx context.Context, req models.DownloadRequest, deliver DeliverFunc) error {
	if err := Validate(req); err != nil {
		return err
	}

	meta, err := o.resolver.Resolve(ctx, req.URL)
	if err != nil {
		return err
	}

	plan, err := Plan(req, o.rules, o.cfg)
	if err != nil {
		return err
	}

	job := models.DownloadJob{
		ID:               o.newID(),
		FormatExpression: plan.Expression,
		QualityLabel:     plan.QualityLabel,
		ExtraArgs:        plan.Args,
	}
	jobLog := log.WithFields(log.Fields{"job": job.ID, "url": req.URL, "format": job.FormatExpression})

	job.WorkspaceDir, err = os.MkdirTemp(o.tempDir, o.prefix)
	if err != nil {
		return fmt.Errorf("%w: creating workspace: %v", models.ErrInternal, err)
	}
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			jobLog.Debugf("Removing workspace %s", job.WorkspaceDir)
			if removeErr := os.RemoveAll(job.WorkspaceDir); removeErr != nil {
				jobLog.WithError(removeErr).Warnf("Failed to remove workspace %s", job.WorkspaceDir)
			}
		})
	}
	defer cleanup()

	jobLog.Info("Starting download")
	res, err := o.runner.Run(ctx, gateway.YtDlp, o.buildArgs(job, req.URL))
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrToolExecution, err)
	}
	if !res.OK() {
		jobLog.WithField("status", res.ExitStatus).Errorf("yt-dlp failed: %s", strings.TrimSpace(res.Stderr))
		return fmt.Errorf("%w: yt-dlp exited with status %d: %s",
			models.ErrToolExecution, res.ExitStatus, strings.TrimSpace(res.Stderr))
	}

	artifactPath, err := findArtifact(job.WorkspaceDir, job.ID)
	if err != nil {
		return err
	}
	info, err := os.Stat(artifactPath)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrArtifactMissing, err)
	}

	artifact := &Artifact{
		Path:     artifactPath,
		Filename: FinalName(meta.Title, job.QualityLabel, artifactPath),
		Size:     info.Size(),
		Job:      job,
		Metadata: meta,
	}
	jobLog.WithField("size", helpers.BytesToSize(uint64(artifact.Size))).Infof("Delivering %s", artifact.Filename)

	if err := deliver(artifact); err != nil {
		jobLog.WithError(err).Warn("Delivery failed")
		return err
	}
	return nil
}

// buildArgs assembles the yt-dlp command line for a job.
func (o *Orchestrator) buildArgs(job models.DownloadJob, rawURL string) []string {
	args := []string{
		"-o", filepath.Join(job.WorkspaceDir, job.ID+".%(ext)s"),
		"--no-playlist",
		"--restrict-filenames",
		"--quiet",
		"--ffmpeg-location", o.paths.Ffmpeg,
	}
	if o.cfg.CookieFile != "" {
		args = append(args, "--cookies", o.cfg.CookieFile)
	}
	if o.cfg.ForceIPv4 {
		args = append(args, "--force-ipv4")
	}
	if o.cfg.Accelerate {
		args = append(args,
			"--downloader", o.paths.Aria2c,
			"--downloader-args", fmt.Sprintf("aria2c:-x %d -s %d -k %s",
				o.cfg.AcceleratorConnections, o.cfg.AcceleratorSplit, o.cfg.AcceleratorChunkSize),
		)
	}
	args = append(args, o.cfg.ExtraArgs...)
	args = append(args, job.ExtraArgs...)
	return append(args, "-f", job.FormatExpression, rawURL)
}

// findArtifact returns the first finished file in dir named after the job.
func findArtifact(dir, jobID string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: reading workspace: %v", models.ErrArtifactMissing, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, jobID) || isPartial(name) {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("%w: no file for job %s", models.ErrArtifactMissing, jobID)
}

func isPartial(name string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// FinalName composes "<sanitized title>_<sanitized quality label>.<ext>" using
// the extension of the file yt-dlp actually produced. Selectors such as
// "bv*/b" end up in the label, so it is sanitized like the title.
func FinalName(title, qualityLabel, artifactPath string) string {
	if title == "" {
		title = defaultTitle
	}
	name := helpers.SanitizeTitle(title) + "_" + helpers.SanitizeTitle(qualityLabel)
	if ext := strings.TrimPrefix(filepath.Ext(artifactPath), "."); ext != "" {
		name += "." + ext
	}
	return name
}
