package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"media-proxy/internal/downloader"
	"media-proxy/internal/helpers"
	"media-proxy/internal/models"
)

const progressInterval = time.Second

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringP("video", "v", "", "Video format code")
	fetchCmd.Flags().StringP("audio", "a", "", "Audio format code")
	fetchCmd.Flags().StringP("out", "o", ".", "Directory the finished file is written to")
	fetchCmd.Flags().Bool("no-digest", false, "Skip the BLAKE3 digest of the saved file")
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download formats of a media page to a local directory",
	Long: `Runs the same download pipeline as GET /download and saves the resulting
file into --out under the name the server would have suggested.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	video, _ := cmd.Flags().GetString("video")
	audio, _ := cmd.Flags().GetString("audio")
	outDir, _ := cmd.Flags().GetString("out")
	noDigest, _ := cmd.Flags().GetBool("no-digest")

	if !helpers.CheckAndMakeDir(outDir) {
		return fmt.Errorf("cannot create output directory %s", outDir)
	}

	svc, err := buildServices(globalConfig)
	if err != nil {
		return err
	}
	defer svc.Close()

	writer := uilive.New()
	writer.Start()
	stopProgress := showElapsed(writer, "Downloading")

	var savedPath string
	var written uint64
	req := models.DownloadRequest{URL: args[0], Video: video, Audio: audio}
	err = svc.downloads.Download(cmd.Context(), req, func(a *downloader.Artifact) error {
		stopProgress()
		fmt.Fprintf(writer, "Saving %s (%s)...\n", a.Filename, helpers.BytesToSize(uint64(a.Size)))
		savedPath = filepath.Join(outDir, a.Filename)
		var copyErr error
		written, copyErr = copyFile(a.Path, savedPath)
		return copyErr
	})
	stopProgress()
	if err != nil {
		fmt.Fprintf(writer, "Failed: %v\n", err)
		writer.Stop()
		return err
	}
	fmt.Fprintf(writer, "Saved %s (%s)\n", savedPath, helpers.BytesToSize(written))
	writer.Stop()

	if !noDigest {
		digest, err := helpers.FileBlake3(savedPath)
		if err != nil {
			log.WithError(err).Warnf("Could not hash %s", savedPath)
			return nil
		}
		fmt.Printf("BLAKE3 %s  %s\n", digest, filepath.Base(savedPath))
	}
	return nil
}

// showElapsed rewrites a single status line every second until the returned
// func is called. Calling the func more than once is fine.
func showElapsed(w *uilive.Writer, label string) func() {
	start := time.Now()
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		fmt.Fprintf(w, "%s...\n", label)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Fprintf(w, "%s... %s\n", label, time.Since(start).Round(time.Second))
			}
		}
	}()

	closed := false
	return func() {
		if closed {
			return
		}
		closed = true
		close(done)
		<-stopped
	}
}

// copyFile writes src to a temp file next to dst and renames it into place.
func copyFile(src, dst string) (uint64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, err
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tmp.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tmp.Name())
			}
		}
	}()

	counter := &helpers.CounterWriter{Writer: tmp}
	if _, err := io.Copy(counter, in); err != nil {
		tmp.Close()
		return counter.Total, err
	}
	if err := tmp.Close(); err != nil {
		return counter.Total, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return counter.Total, err
	}
	shouldCleanupTemp = false
	return counter.Total, nil
}
