// Package formats turns a media tool's capability listing into the filtered,
// de-duplicated list of FormatRecords shown to clients.
package formats

import (
	"regexp"
	"strconv"
	"strings"

	"media-proxy/internal/helpers"
	"media-proxy/internal/models"
)

// ListingParser hides the listing's wire format from callers. Args returns the
// yt-dlp arguments that produce the listing Parse understands.
type ListingParser interface {
	Args(url string) []string
	Parse(raw string) ([]models.FormatRecord, error)
}

// New returns the parser for a configured listing format ("text" or "json").
// Anything else yields the text parser.
func New(listingFormat string) ListingParser {
	if strings.EqualFold(listingFormat, "json") {
		return JSONParser{}
	}
	return TextParser{}
}

var (
	rowPattern     = regexp.MustCompile(`^\S+\s+\S+\s+\S+`)
	sizePattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)(KiB|MiB|GiB)`)
	bitratePattern = regexp.MustCompile(`(\d+k)`)
	// Codec identifiers start with a letter, so sizes such as "1.47MiB" never
	// match, wherever they sit in the note.
	codecPattern = regexp.MustCompile(`(?i)([a-z][a-z0-9]*(?:\.[a-z0-9]+)+(?:, [a-z][a-z0-9]*(?:\.[a-z0-9]+)+)*)`)
)

var sizeMultipliers = map[string]float64{
	"KiB": helpers.KiB,
	"MiB": helpers.MiB,
	"GiB": helpers.GiB,
}

// allowedExtensions are the containers clients can play without remuxing.
var allowedExtensions = map[string]bool{
	"mp4": true,
	"mp3": true,
	"m4a": true,
}

var standardHeights = []string{
	"144", "240", "270", "288", "320", "360", "384", "480", "512", "540",
	"576", "640", "720", "800", "900", "960", "1024", "1080", "1200", "1280",
	"1440", "1600", "1800", "1920", "2048", "2160", "2400", "2560", "2880", "3200",
	"3840", "4096", "4320", "5120", "7680",
}

var dimensionsPattern = regexp.MustCompile(`\d+x\d+`)

// TextParser reads the human-readable table printed by `yt-dlp -F`.
type TextParser struct{}

// Args implements ListingParser.
func (TextParser) Args(url string) []string {
	return []string{"-F", url}
}

// Parse implements ListingParser. Rows that do not look like a format entry
// (headers, separators, informational lines) are skipped; it never fails.
func (TextParser) Parse(raw string) ([]models.FormatRecord, error) {
	var records []models.FormatRecord
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !rowPattern.MatchString(line) {
			continue
		}
		if rec, ok := parseRow(line); ok {
			records = append(records, rec)
		}
	}
	return Retain(records), nil
}

func parseRow(line string) (models.FormatRecord, bool) {
	fields := strings.Fields(line)
	code, ext, resolution := fields[0], fields[1], fields[2]
	rawNote := strings.Join(fields[3:], " ")

	if strings.Contains(rawNote, "m3u8") {
		return models.FormatRecord{}, false
	}
	if strings.Contains(strings.ToLower(rawNote), "watermarked") {
		return models.FormatRecord{}, false
	}

	bytes := parseSize(rawNote)
	if bytes <= 0 {
		return models.FormatRecord{}, false
	}
	if !allowedExtensions[ext] {
		return models.FormatRecord{}, false
	}

	size := helpers.SizeFromBytes(bytes)
	rec := models.FormatRecord{
		Code:       code,
		Extension:  ext,
		Resolution: resolution,
		Size:       &size,
		RawNote:    rawNote,
	}
	if m := bitratePattern.FindStringSubmatch(rawNote); m != nil {
		rec.Bitrate = &m[1]
	}
	if m := codecPattern.FindStringSubmatch(rawNote); m != nil {
		rec.Codecs = &m[1]
	}
	return rec, true
}

// parseSize returns the byte count of the first size annotation, or 0.
func parseSize(note string) float64 {
	m := sizePattern.FindStringSubmatch(note)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return value * sizeMultipliers[m[2]]
}

// Retain keeps audio-only and standard-resolution records, then collapses
// records sharing a resolution string to the last one seen. Surviving records
// keep their original relative order.
func Retain(records []models.FormatRecord) []models.FormatRecord {
	filtered := make([]models.FormatRecord, 0, len(records))
	for _, rec := range records {
		if isAudio(rec) || isStandardResolution(strings.ToLower(rec.Resolution)) {
			filtered = append(filtered, rec)
		}
	}

	lastIndex := make(map[string]int, len(filtered))
	for i, rec := range filtered {
		lastIndex[rec.Resolution] = i
	}
	unique := make([]models.FormatRecord, 0, len(lastIndex))
	for i, rec := range filtered {
		if lastIndex[rec.Resolution] == i {
			unique = append(unique, rec)
		}
	}
	return unique
}

func isAudio(rec models.FormatRecord) bool {
	return strings.ToLower(rec.Resolution) == "audio" || strings.Contains(rec.RawNote, "audio only")
}

func isStandardResolution(res string) bool {
	for _, h := range standardHeights {
		if strings.Contains(res, h+"p") {
			return true
		}
	}
	return dimensionsPattern.MatchString(res)
}
