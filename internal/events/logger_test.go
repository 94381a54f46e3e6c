package events_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/possync/internal/events"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.WarnLevel, "text", &buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown warn")
	logger.Error("shown error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown warn")
	assert.Contains(t, out, "shown error")
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "text", &buf)

	logger.WithField("component", "reconciler").
		WithFields(map[string]interface{}{"item_id": "q-1", "retries": 2}).
		Info("draining")

	out := buf.String()
	assert.Contains(t, out, "component=reconciler")
	assert.Contains(t, out, "item_id=q-1")
	assert.Contains(t, out, "retries=2")
}

func TestLoggerFieldsDoNotLeakBack(t *testing.T) {
	var buf bytes.Buffer
	base := events.NewTestLogger(events.DebugLevel, "text", &buf)

	derived := base.WithField("component", "store")
	base.Info("plain")

	assert.NotContains(t, buf.String(), "component=store")
	derived.Info("tagged")
	assert.Contains(t, buf.String(), "component=store")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	logger.WithField("collection", "products").Info("cache warmed")

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "{"))
	assert.True(t, strings.HasSuffix(line, "}"))
	assert.Contains(t, line, `"msg":"cache warmed"`)
	assert.Contains(t, line, `"collection":"products"`)
	assert.Contains(t, line, `"level":"info"`)
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	logger.WithError(assert.AnError).Warn("remote call failed")
	assert.Contains(t, buf.String(), assert.AnError.Error())
}
