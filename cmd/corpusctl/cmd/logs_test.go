package cmd

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-01-02T10:00:00Z","level":"DEBUG","msg":"poll","indexer":"hr-indexer"}
{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"resource_created","name":"hr-index"}
{"time":"2026-01-02T10:00:02Z","level":"WARN","msg":"indexer_slow","indexer":"hr-indexer"}

{"time":"2026-01-02T10:00:03Z","level":"ERROR","msg":"provision_failed","prefix":"fin"}
`

func TestTailEntries(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		level   string
		pattern string
		want    []string
	}{
		{name: "last two", n: 2, want: []string{"indexer_slow", "provision_failed"}},
		{name: "level filter", n: 10, level: "warn", want: []string{"indexer_slow", "provision_failed"}},
		{name: "pattern filter", n: 10, pattern: "hr-indexer", want: []string{"poll", "indexer_slow"}},
		{name: "zero lines", n: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var re *regexp.Regexp
			if tt.pattern != "" {
				re = regexp.MustCompile(tt.pattern)
			}

			got, err := tailEntries(strings.NewReader(sampleLog), tt.n, tt.level, re)

			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, msg := range tt.want {
				assert.Contains(t, got[i], `"msg":"`+msg+`"`)
			}
		})
	}
}

func TestTailEntries_PlainLinesPassLevelFilter(t *testing.T) {
	got, err := tailEntries(strings.NewReader("plain text\n"), 5, "error", nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"plain text"}, got)
}

func TestLogs_ExplicitFile(t *testing.T) {
	// Given: a log file on disk
	h := newHarness(t, projectConfig)
	path := filepath.Join(t.TempDir(), "corpusctl.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o600))

	// When: showing errors only
	out, err := h.run("logs", "--file", path, "--level", "error")

	// Then: only the error line is printed
	require.NoError(t, err)
	assert.Contains(t, out, "provision_failed")
	assert.NotContains(t, out, "resource_created")
}

func TestLogs_MissingFile(t *testing.T) {
	h := newHarness(t, projectConfig)

	_, err := h.run("logs", "--file", filepath.Join(t.TempDir(), "absent.log"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file not found")
}

func TestLogs_InvalidPattern(t *testing.T) {
	h := newHarness(t, projectConfig)
	path := filepath.Join(t.TempDir(), "corpusctl.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o600))

	_, err := h.run("logs", "--file", path, "--filter", "[")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestLogs_AllReadsRotatedGenerationsInOrder(t *testing.T) {
	// Given: a live log and two rotated generations
	h := newHarness(t, projectConfig)
	path := filepath.Join(t.TempDir(), "corpusctl.log")
	require.NoError(t, os.WriteFile(path+".2", []byte(`{"level":"INFO","msg":"oldest"}`+"\n"), 0o600))
	require.NoError(t, os.WriteFile(path+".1", []byte(`{"level":"INFO","msg":"middle"}`+"\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(`{"level":"INFO","msg":"newest"}`+"\n"), 0o600))

	// When: showing everything
	out, err := h.run("logs", "--file", path, "--all")

	// Then: entries come out oldest first across files
	require.NoError(t, err)
	oldest, middle, newest := strings.Index(out, "oldest"), strings.Index(out, "middle"), strings.Index(out, "newest")
	require.True(t, oldest >= 0 && middle >= 0 && newest >= 0, out)
	assert.Less(t, oldest, middle)
	assert.Less(t, middle, newest)
}

func TestLogs_WithoutAllReadsLiveFileOnly(t *testing.T) {
	h := newHarness(t, projectConfig)
	path := filepath.Join(t.TempDir(), "corpusctl.log")
	require.NoError(t, os.WriteFile(path+".1", []byte(`{"level":"INFO","msg":"rotated"}`+"\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(`{"level":"INFO","msg":"live"}`+"\n"), 0o600))

	out, err := h.run("logs", "--file", path)

	require.NoError(t, err)
	assert.Contains(t, out, "live")
	assert.NotContains(t, out, "rotated")
}
