package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().Duration("older-than", time.Hour, "Only remove workspaces last modified longer ago than this")
	cleanCmd.Flags().Bool("dry-run", false, "List what would be removed without removing anything")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove job workspaces left behind by a crashed or killed server",
	Long: `Scans the configured TempDir (the system temp directory when unset) for
directories carrying the workspace prefix and removes those that have not been
modified for --older-than. Running jobs always use fresh workspaces, so a
generous age keeps them safe.`,
	RunE: runClean,
}

type cleanStats struct {
	removed int
	skipped int
	failed  int
}

func runClean(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	dir := globalConfig.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	log.Infof("Scanning %s for %s* workspaces older than %s...", dir, globalConfig.WorkspacePrefix, olderThan)

	stats, err := cleanWorkspaces(dir, globalConfig.WorkspacePrefix, olderThan, dryRun, time.Now())
	if err != nil {
		return err
	}

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	summary := fmt.Sprintf("Clean complete. %s %d workspace(s), kept %d recent one(s)", verb, stats.removed, stats.skipped)
	if stats.failed > 0 {
		summary += fmt.Sprintf(". Failed to remove %d workspace(s)", stats.failed)
	}
	log.Info(summary)

	if stats.failed > 0 {
		return fmt.Errorf("%d workspace(s) could not be removed", stats.failed)
	}
	return nil
}

// cleanWorkspaces removes the prefix-named directories directly inside dir
// whose modification time is older than olderThan relative to now.
func cleanWorkspaces(dir, prefix string, olderThan time.Duration, dryRun bool, now time.Time) (cleanStats, error) {
	var stats cleanStats
	if prefix == "" {
		return stats, fmt.Errorf("refusing to clean %s without a workspace prefix", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats, fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			log.Warnf("Error accessing %q during scan: %v", path, err)
			continue
		}
		if now.Sub(info.ModTime()) < olderThan {
			log.Debugf("Keeping recent workspace %s", path)
			stats.skipped++
			continue
		}

		if dryRun {
			log.Infof("Would remove workspace: %s", path)
			stats.removed++
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			log.Errorf("Failed to remove workspace %q: %v", path, err)
			stats.failed++
			continue
		}
		log.Infof("Removed workspace: %s", path)
		stats.removed++
	}
	return stats, nil
}
