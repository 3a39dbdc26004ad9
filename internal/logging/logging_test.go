package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New("production", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = New("development", "chatty")
	assert.Error(t, err)
}

func TestRequestLogRecord(t *testing.T) {
	var buf bytes.Buffer
	l := NewRequestLog(zapcore.AddSync(&buf))

	l.Record("summarize", "Success", "line one\nline two", 42)

	line := buf.String()
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] `, line)
	assert.Contains(t, line, "Action: summarize | Status: Success | Input: line one line two... | Result Length: 42")
}

func TestRequestLogTruncatesInput(t *testing.T) {
	var buf bytes.Buffer
	l := NewRequestLog(zapcore.AddSync(&buf))

	l.Record("generic_chat", "API Error 500", strings.Repeat("é", 80), 0)

	assert.Contains(t, buf.String(), "Input: "+strings.Repeat("é", 50)+"... |")
}

func TestOpenRequestLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.log")

	l, err := OpenRequestLog(path)
	require.NoError(t, err)
	l.Record("draft_reply", "Network Error", "hi", 0)
	l.Close()

	l, err = OpenRequestLog(path)
	require.NoError(t, err)
	l.Record("draft_reply", "Success", "hi again", 7)
	l.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestDisabledAndNilRequestLog(t *testing.T) {
	l, err := OpenRequestLog("")
	require.NoError(t, err)

	var nilLog *RequestLog
	assert.NotPanics(t, func() {
		l.Record("a", "b", "c", 1)
		l.Close()
		nilLog.Record("a", "b", "c", 1)
		nilLog.Close()
	})
}
