package downloader

import (
	"errors"
	"testing"

	"media-proxy/internal/config"
	"media-proxy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultDownloaderConfig() models.DownloaderConfig {
	cfg := models.Config{}
	config.ApplyDefaults(&cfg)
	return cfg.Downloader
}

func TestPlan(t *testing.T) {
	rules := config.DefaultSiteRules()
	cfg := defaultDownloaderConfig()

	tests := []struct {
		name    string
		req     models.DownloadRequest
		want    FormatPlan
		wantErr error
	}{
		{
			name: "TikTok video only",
			req:  models.DownloadRequest{URL: "https://tiktok.com/@user/video/1", Video: "download_addr-0"},
			want: FormatPlan{Expression: "download_addr-0", QualityLabel: "download_addr-0_video_only"},
		},
		{
			name: "TikTok video and audio is not composed",
			req:  models.DownloadRequest{URL: "https://www.tiktok.com/@user/video/1", Video: "download_addr-0", Audio: "x"},
			want: FormatPlan{Expression: "download_addr-0", QualityLabel: "download_addr-0_x"},
		},
		{
			name: "YouTube short link pins audio 140",
			req:  models.DownloadRequest{URL: "https://youtu.be/abc", Video: "137", Audio: "140"},
			want: FormatPlan{
				Expression:   "137+140",
				QualityLabel: "137_140",
				Args:         []string{"--merge-output-format", "mp4"},
			},
		},
		{
			name: "YouTube ignores the supplied audio code",
			req:  models.DownloadRequest{URL: "https://www.youtube.com/watch?v=abc", Video: "137", Audio: "251"},
			want: FormatPlan{
				Expression:   "137+140",
				QualityLabel: "137_251",
				Args:         []string{"--merge-output-format", "mp4"},
			},
		},
		{
			name: "Other hosts compose both selectors",
			req:  models.DownloadRequest{URL: "https://vimeo.com/123", Video: "hls-720", Audio: "audio-high"},
			want: FormatPlan{
				Expression:   "hls-720+audio-high",
				QualityLabel: "hls-720_audio-high",
				Args:         []string{"--merge-output-format", "mp4"},
			},
		},
		{
			name: "Audio only extracts mp3",
			req:  models.DownloadRequest{URL: "https://youtu.be/abc", Audio: "140"},
			want: FormatPlan{
				Expression:   "bestaudio",
				QualityLabel: "audio",
				Args:         []string{"--extract-audio", "--audio-format", "mp3", "--audio-quality", "5"},
			},
		},
		{
			name: "Video only on YouTube is not composed",
			req:  models.DownloadRequest{URL: "https://youtu.be/abc", Video: "18"},
			want: FormatPlan{Expression: "18", QualityLabel: "18_video_only"},
		},
		{
			name: "Host pattern is only matched against the host",
			req:  models.DownloadRequest{URL: "https://example.com/watch?ref=youtube", Video: "1", Audio: "2"},
			want: FormatPlan{
				Expression:   "1+2",
				QualityLabel: "1_2",
				Args:         []string{"--merge-output-format", "mp4"},
			},
		},
		{
			name:    "Neither selector",
			req:     models.DownloadRequest{URL: "https://youtu.be/abc"},
			wantErr: models.ErrInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(tt.req, rules, cfg)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanCustomRules(t *testing.T) {
	cfg := defaultDownloaderConfig()
	cfg.MergeOutputFormat = "mkv"
	rules := []models.SiteRule{
		{Name: "bili", HostContains: "bilibili", Mode: models.ComposeFixedAudio, FixedAudio: "30280"},
		{Name: "catch-all bili", HostContains: "bili", Mode: models.ComposeVideoOnly},
	}

	got, err := Plan(models.DownloadRequest{URL: "https://www.bilibili.com/video/BV1", Video: "30080", Audio: "30216"}, rules, cfg)
	require.NoError(t, err)
	assert.Equal(t, "30080+30280", got.Expression, "the first matching rule wins")
	assert.Equal(t, []string{"--merge-output-format", "mkv"}, got.Args)

	_, err = Plan(models.DownloadRequest{URL: "https://bilibili.com/x", Video: "1", Audio: "2"},
		[]models.SiteRule{{HostContains: "bili", Mode: "sideways"}}, cfg)
	assert.True(t, errors.Is(err, models.ErrInternal))
}
