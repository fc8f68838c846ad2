package formats

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"media-proxy/internal/helpers"
	"media-proxy/internal/models"
)

// JSONParser reads the structured info document printed by `yt-dlp -J` and
// applies the same retention policy as TextParser.
type JSONParser struct{}

type infoDocument struct {
	Formats []jsonFormat `json:"formats"`
}

type jsonFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Resolution     string  `json:"resolution"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	Filesize       float64 `json:"filesize"`
	FilesizeApprox float64 `json:"filesize_approx"`
	TBR            float64 `json:"tbr"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Protocol       string  `json:"protocol"`
	FormatNote     string  `json:"format_note"`
}

// Args implements ListingParser.
func (JSONParser) Args(url string) []string {
	return []string{"--no-playlist", "-J", url}
}

// Parse implements ListingParser. Unlike the text listing, a document that is
// not valid JSON is reported as models.ErrParse.
func (JSONParser) Parse(raw string) ([]models.FormatRecord, error) {
	var doc infoDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: format listing: %v", models.ErrParse, err)
	}

	var records []models.FormatRecord
	for _, f := range doc.Formats {
		if rec, ok := fromJSON(f); ok {
			records = append(records, rec)
		}
	}
	return Retain(records), nil
}

func fromJSON(f jsonFormat) (models.FormatRecord, bool) {
	if f.FormatID == "" {
		return models.FormatRecord{}, false
	}
	if strings.Contains(f.Protocol, "m3u8") {
		return models.FormatRecord{}, false
	}
	if strings.Contains(strings.ToLower(f.FormatNote), "watermarked") {
		return models.FormatRecord{}, false
	}

	bytes := f.Filesize
	if bytes <= 0 {
		bytes = f.FilesizeApprox
	}
	if bytes <= 0 {
		return models.FormatRecord{}, false
	}
	if !allowedExtensions[f.Ext] {
		return models.FormatRecord{}, false
	}

	audioOnly := f.VCodec == "none" && f.ACodec != "none" && f.ACodec != ""
	resolution := f.Resolution
	switch {
	case audioOnly || resolution == "audio only":
		// the text table shows this column as "audio"
		resolution = "audio"
	case resolution == "" && f.Width > 0 && f.Height > 0:
		resolution = fmt.Sprintf("%dx%d", f.Width, f.Height)
	case resolution == "":
		return models.FormatRecord{}, false
	}

	var codecs []string
	for _, c := range []string{f.VCodec, f.ACodec} {
		if c != "" && c != "none" {
			codecs = append(codecs, c)
		}
	}

	size := helpers.SizeFromBytes(bytes)
	rec := models.FormatRecord{
		Code:       f.FormatID,
		Extension:  f.Ext,
		Resolution: resolution,
		Size:       &size,
		RawNote:    jsonNote(f, audioOnly, codecs),
	}
	if f.TBR > 0 {
		bitrate := fmt.Sprintf("%dk", int(math.Round(f.TBR)))
		rec.Bitrate = &bitrate
	}
	if len(codecs) > 0 {
		joined := strings.Join(codecs, ", ")
		rec.Codecs = &joined
	}
	return rec, true
}

// jsonNote rebuilds a free-text note comparable to the text listing's trailing columns.
func jsonNote(f jsonFormat, audioOnly bool, codecs []string) string {
	var parts []string
	if f.FPS > 0 {
		parts = append(parts, fmt.Sprintf("%gfps", f.FPS))
	}
	parts = append(parts, codecs...)
	if audioOnly {
		parts = append(parts, "audio only")
	}
	if f.FormatNote != "" {
		parts = append(parts, f.FormatNote)
	}
	return strings.Join(parts, ", ")
}
