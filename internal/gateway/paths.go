package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"media-proxy/internal/models"

	log "github.com/sirupsen/logrus"
)

// Paths holds the executable location of every external tool. It is resolved
// once at startup and never modified afterwards.
type Paths struct {
	YtDlp  string `json:"yt-dlp"`
	Ffmpeg string `json:"ffmpeg"`
	Aria2c string `json:"aria2c"`
}

// Lookup returns the executable for a tool.
func (p Paths) Lookup(tool Tool) (string, error) {
	var exe string
	switch tool {
	case YtDlp:
		exe = p.YtDlp
	case Ffmpeg:
		exe = p.Ffmpeg
	case Aria2c:
		exe = p.Aria2c
	default:
		return "", fmt.Errorf("unknown tool %q", tool)
	}
	if exe == "" {
		return "", fmt.Errorf("no executable configured for %s", tool)
	}
	return exe, nil
}

// ytDlpBinaries maps GOOS/GOARCH to the file name the provisioner stores the
// yt-dlp release under.
var ytDlpBinaries = map[string]map[string]string{
	"windows": {"amd64": "yt-dlp.exe", "386": "yt-dlp_x86.exe"},
	"linux":   {"amd64": "yt-dlp_linux", "arm": "yt-dlp_linux_armv7l", "arm64": "yt-dlp_linux_aarch64"},
	"darwin":  {"amd64": "yt-dlp_macos_legacy", "arm64": "yt-dlp_macos"},
}

// ResolvePaths picks the executable for each tool for the running platform.
// Explicit overrides win; otherwise a provisioned binary in workDir is used when
// present, and the bare tool name (looked up on PATH at run time) otherwise.
func ResolvePaths(overrides models.ToolPaths, workDir string) Paths {
	return resolvePaths(runtime.GOOS, runtime.GOARCH, overrides, workDir)
}

func resolvePaths(goos, goarch string, overrides models.ToolPaths, workDir string) Paths {
	exeSuffix := ""
	if goos == "windows" {
		exeSuffix = ".exe"
	}

	ytDlpName := ytDlpBinaries[goos][goarch]
	if ytDlpName == "" {
		log.Warnf("No provisioned yt-dlp build known for %s/%s, relying on PATH", goos, goarch)
	}

	p := Paths{
		YtDlp:  pick(overrides.YtDlpPath, workDir, ytDlpName, "yt-dlp"+exeSuffix),
		Ffmpeg: pick(overrides.FfmpegPath, workDir, "ffmpeg"+exeSuffix, "ffmpeg"+exeSuffix),
		Aria2c: pick(overrides.Aria2cPath, workDir, "aria2c"+exeSuffix, "aria2c"+exeSuffix),
	}
	log.WithFields(log.Fields{
		"yt-dlp": p.YtDlp,
		"ffmpeg": p.Ffmpeg,
		"aria2c": p.Aria2c,
	}).Debug("Resolved tool paths")
	return p
}

func pick(override, workDir, provisionedName, fallback string) string {
	if override != "" {
		return override
	}
	if provisionedName != "" && workDir != "" {
		candidate := filepath.Join(workDir, provisionedName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return fallback
}
