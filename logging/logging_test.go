package logging_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/RyanBlaney/sonido-sync/logging"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logging.DebugLevel, logging.ParseLevel("debug"))
	assert.Equal(t, logging.WarnLevel, logging.ParseLevel(" WARNING "))
	assert.Equal(t, logging.ErrorLevel, logging.ParseLevel("error"))
	assert.Equal(t, logging.InfoLevel, logging.ParseLevel("nonsense"))
}

func TestDefaultLogger_LevelsAndFields(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := logging.NewDefaultLoggerWithWriters(&stdout, &stderr, false)

	logger.Debug("hidden")
	assert.Empty(t, stdout.String(), "debug is below the default info level")

	logger.WithFields(logging.Fields{"component": "dtw", "frames": 12}).Info("aligned")
	assert.Contains(t, stdout.String(), "[INFO] aligned component=dtw frames=12")

	logger.Error(errors.New("boom"), "stage failed")
	assert.Contains(t, stderr.String(), "[ERROR] stage failed: boom")

	logger.SetLevel(logging.DebugLevel)
	logger.Debug("visible")
	assert.Contains(t, stdout.String(), "[DEBUG] visible")
}

func TestDefaultLogger_WithContext(t *testing.T) {
	var stdout bytes.Buffer
	logger := logging.NewDefaultLoggerWithWriters(&stdout, &stdout, false)

	ctx := logging.ContextWithFields(context.Background(), logging.Fields{"run_id": "abc"})
	ctx = logging.ContextWithFields(ctx, logging.Fields{"stage": "align"})

	logger.WithContext(ctx).Info("checkpoint")
	assert.Contains(t, stdout.String(), "run_id=abc stage=align")
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewConsoleLogger(&buf, logging.InfoLevel)

	logger.Debug("dropped")
	logger.WithFields(logging.Fields{"component": "warp"}).Warn("clamped", logging.Fields{"samples": 3})

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "clamped")
	assert.Contains(t, out, "component=warp")
	assert.Contains(t, out, "samples=3")
}

func TestNoOpLoggerAsGlobal(t *testing.T) {
	previous := logging.GetGlobalLogger()
	defer logging.SetGlobalLogger(previous)

	logging.SetGlobalLogger(nil)
	_, ok := logging.GetGlobalLogger().(*logging.NoOpLogger)
	assert.True(t, ok, "nil installs the no-op logger")
	logging.Info("nothing happens")
}
