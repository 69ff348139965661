package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/sandraschi/fastsearch-mcp/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	textInfoString  = `time=.* severity=INFO message="TestLogs: www.infoExample.com"`
	jsonInfoString  = `"severity":"INFO","message":"TestLogs: www.infoExample.com"`
	textErrorString = `time=.* severity=ERROR message="TestLogs: www.errorExample.com"`
)

func redirectLogsToGivenBuffer(buf *bytes.Buffer, level cfg.Severity, format string) {
	defaultLoggerFactory.format = format
	programLevel := toLevelVar(severityToLevel(level))
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, programLevel, "TestLogs: "))
}

func TestTextFormatSeverityFiltering(t *testing.T) {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, cfg.SeverityError, "text")

	Infof("www.infoExample.com")
	assert.Empty(t, buf.String())

	Errorf("www.errorExample.com")
	assert.Regexp(t, regexp.MustCompile(textErrorString), buf.String())
}

func TestJSONFormatIncludesSeverityAndMessage(t *testing.T) {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, cfg.SeverityInfo, "json")

	Infof("www.infoExample.com")
	assert.Regexp(t, regexp.MustCompile(jsonInfoString), buf.String())
}

func TestOffSeverityLogsNothing(t *testing.T) {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, cfg.SeverityOff, "text")

	Errorf("should not appear")
	Infof("should not appear either")
	assert.Empty(t, buf.String())
}

func TestSetLoggingLevel(t *testing.T) {
	tests := []struct {
		severity cfg.Severity
		want     slog.Level
	}{
		{cfg.SeverityTrace, LevelTrace},
		{cfg.SeverityDebug, LevelDebug},
		{cfg.SeverityInfo, LevelInfo},
		{cfg.SeverityWarning, LevelWarn},
		{cfg.SeverityError, LevelError},
		{cfg.SeverityOff, LevelOff},
	}
	for _, tt := range tests {
		lv := new(slog.LevelVar)
		setLoggingLevel(tt.severity, lv)
		assert.Equal(t, tt.want, lv.Level())
	}
}

func TestSetLogFormat(t *testing.T) {
	SetLogFormat("text")
	assert.Equal(t, "text", defaultLoggerFactory.format)
	SetLogFormat("bogus")
	assert.Equal(t, "json", defaultLoggerFactory.format)
}

func TestInitLogFileOpensConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/log.txt"
	err := InitLogFile(cfg.LoggingConfig{
		FilePath: path,
		Severity: cfg.SeverityDebug,
		Format:   "text",
	})
	require.NoError(t, err)
	assert.Equal(t, path, defaultLoggerFactory.file.Name())
	assert.Equal(t, "text", defaultLoggerFactory.format)
	assert.Equal(t, cfg.SeverityDebug, defaultLoggerFactory.level)
}
