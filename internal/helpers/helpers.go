package helpers

import (
	"fmt"
	"io"
	"math"
	"os"
	"regexp"

	"media-proxy/internal/models"

	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// Binary multipliers used by the capability listing's size annotations.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

var unsafeTitleChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)

// SanitizeTitle replaces every run of characters outside letters, digits,
// underscore and hyphen with a single underscore. Applying it twice yields the
// same string as applying it once.
func SanitizeTitle(title string) string {
	return unsafeTitleChars.ReplaceAllString(title, "_")
}

// SizeFromBytes renders one canonical byte count the way format listings report it:
// whole bytes, KB and MB to one decimal, GB to four. Ties round up.
func SizeFromBytes(bytes float64) models.SizeInfo {
	return models.SizeInfo{
		Byte: fmt.Sprintf("%d B", int64(math.Round(bytes))),
		KB:   fmt.Sprintf("%.1f KB", roundHalfUp(bytes/KiB, 1)),
		MB:   fmt.Sprintf("%.1f MB", roundHalfUp(bytes/MiB, 1)),
		GB:   fmt.Sprintf("%.4f GB", roundHalfUp(bytes/GiB, 4)),
	}
}

// roundHalfUp rounds v to the given number of decimals. fmt alone would round
// an exact tie such as 1.25 to even.
func roundHalfUp(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Floor(v*scale+0.5) / scale
}

// FileBlake3 returns the upper-case hex BLAKE3-256 digest of a file.
func FileBlake3(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := blake3.New(32, nil)
	if _, err := io.Copy(hasher, f); err != nil {
		log.WithError(err).Warnf("Error hashing %s", path)
		return "", err
	}
	return fmt.Sprintf("%X", hasher.Sum(nil)), nil
}

// CounterWriter tracks the number of bytes written to the underlying writer.
type CounterWriter struct {
	Total  uint64
	Writer io.Writer
}

// Write implements the io.Writer interface for CounterWriter.
func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
// Uses standard directory permissions (0700).
func CheckAndMakeDir(dir string) bool {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}
