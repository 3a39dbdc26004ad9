package logging

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// inputPreview is how much of the user's text a request log line keeps.
const inputPreview = 50

// RequestLog appends one plain-text line per chat proxy call:
//
//	[2006-01-02 15:04:05] Action: summarize | Status: Success | Input: some text... | Result Length: 42
//
// A nil or disabled RequestLog drops every record.
type RequestLog struct {
	logger *zap.Logger
	close  func()
}

// OpenRequestLog opens (appending) the log at path. An empty path returns a
// disabled log.
func OpenRequestLog(path string) (*RequestLog, error) {
	if path == "" {
		return &RequestLog{logger: zap.NewNop(), close: func() {}}, nil
	}

	sink, closeSink, err := zap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening request log: %w", err)
	}
	return &RequestLog{logger: newLineLogger(sink), close: closeSink}, nil
}

// NewRequestLog writes to an arbitrary sink. Used by tests.
func NewRequestLog(sink zapcore.WriteSyncer) *RequestLog {
	return &RequestLog{logger: newLineLogger(sink), close: func() {}}
}

func newLineLogger(sink zapcore.WriteSyncer) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("[2006-01-02 15:04:05]"),
		ConsoleSeparator: " ",
	})
	return zap.New(zapcore.NewCore(enc, sink, zapcore.InfoLevel))
}

// Record logs one call. Write failures are swallowed by zap so a broken
// log file never affects the response.
func (l *RequestLog) Record(action, status, input string, resultLen int) {
	if l == nil {
		return
	}
	l.logger.Info(fmt.Sprintf("Action: %s | Status: %s | Input: %s... | Result Length: %d",
		action, status, preview(input), resultLen))
}

// Close flushes and closes the underlying file.
func (l *RequestLog) Close() {
	if l == nil {
		return
	}
	_ = l.logger.Sync()
	l.close()
}

// preview flattens newlines and keeps the first inputPreview runes.
func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) <= inputPreview {
		return s
	}
	return string([]rune(s)[:inputPreview])
}
