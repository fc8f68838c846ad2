package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"media-proxy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Empty string", "", ""},
		{"Already safe", "already_safe-1", "already_safe-1"},
		{"Spaces", "Simple Test", "Simple_Test"},
		{"Run of punctuation collapses", "Hello, World!!!", "Hello_World_"},
		{"Multiple spaces", "a    b", "a_b"},
		{"Non-ASCII letters", "Über-Cool Video", "_ber-Cool_Video"},
		{"Only non-ASCII", "日本語", "_"},
		{"Dots are replaced", "v1.5 final", "v1_5_final"},
		{"Leading and trailing junk kept as underscore", "  padded  ", "_padded_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeTitle(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeTitleIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"Rick Astley - Never Gonna Give You Up (Official Music Video)",
		"__already__sanitized__",
		"💥 boom 💥",
		"tab\tseparated\nlines",
		"-_-_-",
	}
	for _, in := range inputs {
		once := SanitizeTitle(in)
		assert.Equal(t, once, SanitizeTitle(once), "sanitizing %q twice changed the result", in)
		assert.Regexp(t, `^[A-Za-z0-9_\-]*$`, once)
	}
}

func TestSizeFromBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes float64
		want  models.SizeInfo
	}{
		{
			name:  "Listing sample 1.47MiB",
			bytes: 1.47 * MiB,
			want:  models.SizeInfo{Byte: "1541407 B", KB: "1505.3 KB", MB: "1.5 MB", GB: "0.0014 GB"},
		},
		{
			name:  "Exactly one KiB",
			bytes: KiB,
			want:  models.SizeInfo{Byte: "1024 B", KB: "1.0 KB", MB: "0.0 MB", GB: "0.0000 GB"},
		},
		{
			name:  "Exactly one GiB",
			bytes: GiB,
			want:  models.SizeInfo{Byte: "1073741824 B", KB: "1048576.0 KB", MB: "1024.0 MB", GB: "1.0000 GB"},
		},
		{
			name:  "Tie in MiB rounds up",
			bytes: 1.25 * MiB,
			want:  models.SizeInfo{Byte: "1310720 B", KB: "1280.0 KB", MB: "1.3 MB", GB: "0.0012 GB"},
		},
		{
			name:  "Tie in KiB rounds up",
			bytes: 1.25 * KiB,
			want:  models.SizeInfo{Byte: "1280 B", KB: "1.3 KB", MB: "0.0 MB", GB: "0.0000 GB"},
		},
		{
			name:  "Fractional byte rounds to nearest",
			bytes: 1.5 * KiB,
			want:  models.SizeInfo{Byte: "1536 B", KB: "1.5 KB", MB: "0.0 MB", GB: "0.0000 GB"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SizeFromBytes(tt.bytes))
		})
	}
}

func TestSizeFromBytesMatchesDivision(t *testing.T) {
	for _, b := range []float64{1, 999, 123456, 7.3 * MiB, 3.3 * GiB} {
		got := SizeFromBytes(b)
		assert.Equal(t, fmt.Sprintf("%.1f KB", b/1024), got.KB)
		assert.Equal(t, fmt.Sprintf("%.1f MB", b/(1024*1024)), got.MB)
		assert.Equal(t, fmt.Sprintf("%.4f GB", b/(1024*1024*1024)), got.GB)
	}
}

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  string
	}{
		{"Zero bytes", 0, "0B"},
		{"Bytes", 500, "500.00B"},
		{"Kilobytes", 1024, "1.00KB"},
		{"Kilobytes fractional", 1536, "1.50KB"},
		{"Megabytes", 1024 * 1024, "1.00MB"},
		{"Gigabytes", 1024 * 1024 * 1024, "1.00GB"},
		{"Terabytes", 1024 * 1024 * 1024 * 1024, "1.00TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.want {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFileBlake3(t *testing.T) {
	tempDir := t.TempDir()
	content := []byte("this is test content for hashing")
	path := filepath.Join(tempDir, "artifact.mp4")
	require.NoError(t, os.WriteFile(path, content, 0644))

	sum := blake3.Sum256(content)
	got, err := FileBlake3(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%X", sum[:]), got)

	_, err = FileBlake3(filepath.Join(tempDir, "missing.mp4"))
	assert.Error(t, err)
}

func TestCounterWriter(t *testing.T) {
	var sink []byte
	w := &CounterWriter{Writer: writerFunc(func(p []byte) (int, error) {
		sink = append(sink, p...)
		return len(p), nil
	})}
	_, _ = w.Write([]byte("abc"))
	_, _ = w.Write([]byte("defgh"))
	assert.Equal(t, uint64(8), w.Total)
	assert.Equal(t, "abcdefgh", string(sink))
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestCheckAndMakeDir(t *testing.T) {
	baseTempDir := t.TempDir()

	preExistingFile := filepath.Join(baseTempDir, "existing_file.txt")
	require.NoError(t, os.WriteFile(preExistingFile, nil, 0644))

	tests := []struct {
		name       string
		dirToMake  string
		wantResult bool
	}{
		{"Create simple directory", "new_dir", true},
		{"Create nested directory", filepath.Join("nested", "dir", "to", "create"), true},
		{"Path is a file", "existing_file.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full := filepath.Join(baseTempDir, tt.dirToMake)
			assert.Equal(t, tt.wantResult, CheckAndMakeDir(full))
			if tt.wantResult {
				info, err := os.Stat(full)
				require.NoError(t, err)
				assert.True(t, info.IsDir())
			}
		})
	}
}
