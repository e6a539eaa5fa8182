package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(format string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(&Config{Level: "debug", Format: format, Output: buf, ServiceName: "outreach-test"}), buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &out))
	return out
}

func TestContextFieldsReachEveryLine(t *testing.T) {
	l, buf := newBufferLogger("json")
	ctx := l.WithContext(context.Background())
	ctx = SetRequestID(ctx, "req-1")
	ctx = SetRunID(ctx, "run-1")
	ctx = WithFields(ctx, Fields{FieldCampaignID: "camp-1", FieldStage: "sending"})

	CtxInfo(ctx, "processed %d contacts", 3)
	line := lastLine(t, buf)
	assert.Equal(t, "processed 3 contacts", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "outreach-test", line["service"])
	assert.Equal(t, "req-1", line[FieldRequestID])
	assert.Equal(t, "run-1", line[FieldRunID])
	assert.Equal(t, "camp-1", line[FieldCampaignID])
	assert.NotEmpty(t, line["file"])
	assert.Equal(t, "req-1", GetFieldString(ctx, FieldRequestID))
}

func TestEntryAddsMetricFieldsToOneLine(t *testing.T) {
	l, buf := newBufferLogger("json")
	ctx := SetUserID(l.WithContext(context.Background()), "u1")

	With(Fields{FieldCount: 5}).With(Fields{FieldDurationMs: int64(12)}).Warn(ctx, "stage finished")
	line := lastLine(t, buf)
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, float64(5), line[FieldCount])
	assert.Equal(t, float64(12), line[FieldDurationMs])
	assert.Equal(t, "u1", line[FieldUserID])

	CtxDebug(ctx, "next")
	assert.NotContains(t, lastLine(t, buf), FieldCount)
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	l, buf := newBufferLogger("text")
	prev := GetDefault()
	SetDefaultLogger(l)
	defer SetDefaultLogger(prev)

	SetDefaultLogger(nil)
	assert.Same(t, l, FromContext(context.Background()))

	Info("hello %s", "world")
	assert.Contains(t, buf.String(), "hello world")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_FILE_ONLY", "true")
	t.Setenv("LOG_MAX_SIZE", "not-a-number")

	cfg := ConfigFromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "prod", cfg.Environment)
	assert.True(t, cfg.File.Only)
	assert.Equal(t, 100, cfg.File.MaxSizeMB)
	assert.Equal(t, "outreach", cfg.ServiceName)
}

func TestRotatedFileOutput(t *testing.T) {
	path := t.TempDir() + "/app.log"
	l := New(&Config{Level: "info", Environment: "prod", ServiceName: "outreach", File: FileConfig{Path: path, Only: true, MaxSizeMB: 1}})
	l.Info("to file")
	require.NoError(t, Sync())
}
