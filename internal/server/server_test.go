package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-proxy/internal/downloader"
	"media-proxy/internal/gateway"
	"media-proxy/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDownloader struct {
	artifactPath string
	filename     string
	err          error
	got          models.DownloadRequest
}

func (f *fakeDownloader) Download(_ context.Context, req models.DownloadRequest, deliver downloader.DeliverFunc) error {
	f.got = req
	if err := downloader.Validate(req); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	return deliver(&downloader.Artifact{Path: f.artifactPath, Filename: f.filename})
}

type fakeLister struct {
	resp   models.FormatsResponse
	err    error
	gotURL string
}

func (f *fakeLister) List(_ context.Context, url string) (models.FormatsResponse, error) {
	f.gotURL = url
	if url == "" {
		return models.FormatsResponse{}, fmt.Errorf("%w: missing video URL", models.ErrClientInput)
	}
	return f.resp, f.err
}

func newTestServer(d Downloader, l FormatLister) http.Handler {
	return New(":0", d, l, gateway.Paths{YtDlp: "yt-dlp", Ffmpeg: "ffmpeg", Aria2c: "aria2c"}).Handler()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestDownloadStreamsAttachment(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "job.mp4")
	require.NoError(t, os.WriteFile(artifact, []byte("fake mp4 payload"), 0644))

	d := &fakeDownloader{artifactPath: artifact, filename: "My_Video_137_140.mp4"}
	h := newTestServer(d, &fakeLister{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download?url=https%3A%2F%2Fyoutu.be%2Fabc&video=137&audio=140", nil)
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="My_Video_137_140.mp4"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "fake mp4 payload", rec.Body.String())
	assert.Equal(t, models.DownloadRequest{URL: "https://youtu.be/abc", Video: "137", Audio: "140"}, d.got)
}

func TestDownloadErrors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
		wantError  string
	}{
		{"Neither selector", "/download?url=https://youtu.be/abc", nil, http.StatusBadRequest, "video/audio"},
		{"Missing URL", "/download?video=137", nil, http.StatusBadRequest, "url"},
		{"Bad scheme", "/download?url=file:///etc/passwd&video=1", nil, http.StatusBadRequest, "protocol"},
		{"Metadata failure", "/download?url=https://youtu.be/abc&video=1", models.ErrMetadata, http.StatusInternalServerError, "metadata"},
		{"Tool failure", "/download?url=https://youtu.be/abc&video=1", fmt.Errorf("%w: HTTP Error 403", models.ErrToolExecution), http.StatusInternalServerError, "403"},
		{"No artifact", "/download?url=https://youtu.be/abc&video=1", models.ErrArtifactMissing, http.StatusInternalServerError, "no artifact"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeDownloader{err: tt.err}, &fakeLister{})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, decodeError(t, rec), tt.wantError)
		})
	}
}

func TestFormatsGetAndPost(t *testing.T) {
	size := models.SizeInfo{Byte: "1541407 B", KB: "1505.3 KB", MB: "1.5 MB", GB: "0.0014 GB"}
	codecs := "avc1.4d401e"
	resp := models.FormatsResponse{
		Title:       "Title",
		Description: "Desc",
		Thumbnail:   "https://t/x.jpg",
		VideoURL:    "https://youtu.be/abc",
		Formats: []models.FormatRecord{
			{Code: "243", Extension: "mp4", Resolution: "426x240", Size: &size, Codecs: &codecs, RawNote: "426x240 60fps"},
		},
	}

	t.Run("GET with query", func(t *testing.T) {
		l := &fakeLister{resp: resp}
		rec := httptest.NewRecorder()
		newTestServer(&fakeDownloader{}, l).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formats?url=https://youtu.be/abc", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://youtu.be/abc", l.gotURL)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "https://youtu.be/abc", body["videoUrl"])
		formats := body["formats"].([]any)
		require.Len(t, formats, 1)
		first := formats[0].(map[string]any)
		assert.Equal(t, "243", first["code"])
		assert.Nil(t, first["bitrate"], "absent bitrate is null")
		assert.Equal(t, "1.5 MB", first["size"].(map[string]any)["mb"])
	})

	t.Run("POST with JSON body", func(t *testing.T) {
		l := &fakeLister{resp: resp}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/formats", bytes.NewBufferString(`{"url":"https://youtu.be/abc"}`))
		req.Header.Set("Content-Type", "application/json")
		newTestServer(&fakeDownloader{}, l).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://youtu.be/abc", l.gotURL)
	})
}

func TestFormatsErrors(t *testing.T) {
	t.Run("Missing URL", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestServer(&fakeDownloader{}, &fakeLister{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formats", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec), "missing video URL")
	})

	t.Run("Malformed JSON body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/formats", bytes.NewBufferString(`{"url":`))
		req.Header.Set("Content-Type", "application/json")
		newTestServer(&fakeDownloader{}, &fakeLister{}).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Parse failure", func(t *testing.T) {
		l := &fakeLister{err: fmt.Errorf("%w: format listing", models.ErrParse)}
		rec := httptest.NewRecorder()
		newTestServer(&fakeDownloader{}, l).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formats?url=https://x.test/v", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, decodeError(t, rec), "unexpected tool output")
	})
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeDownloader{}, &fakeLister{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string        `json:"status"`
		Tools  gateway.Paths `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "yt-dlp", body.Tools.YtDlp)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("wrapped: %w", models.ErrClientInput)))
	for _, err := range []error{models.ErrMetadata, models.ErrToolExecution, models.ErrArtifactMissing, models.ErrParse, models.ErrInternal, errors.New("other")} {
		assert.Equal(t, http.StatusInternalServerError, statusFor(err), err.Error())
	}
}

func waitForStart(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start kept serving after Stop returned")
		return nil
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestStopRacingStart(t *testing.T) {
	for i := 0; i < 3; i++ {
		s := New("127.0.0.1:0", &fakeDownloader{}, &fakeLister{}, gateway.Paths{})
		errCh := make(chan error, 1)
		go func() { errCh <- s.Start() }()

		require.NoError(t, s.Stop(context.Background()))
		assert.NoError(t, waitForStart(t, errCh))
	}
}

func TestStopBeforeStart(t *testing.T) {
	s := New("127.0.0.1:0", &fakeDownloader{}, &fakeLister{}, gateway.Paths{})
	require.NoError(t, s.Stop(context.Background()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	assert.NoError(t, waitForStart(t, errCh))
}

func TestStopWhileServing(t *testing.T) {
	addr := freeAddr(t)
	s := New(addr, &fakeDownloader{}, &fakeLister{}, gateway.Paths{YtDlp: "yt-dlp"})
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.NoError(t, waitForStart(t, errCh))
}
