package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fmp4hlsd/internal/logger"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLoggerTo(&buf, "info")

	log.Debugf("hidden %d", 1)
	assert.Zero(t, buf.Len(), "debug suppressed at info level")

	log.Infof("stream %s ready", "cam")
	require.NotZero(t, buf.Len())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "stream cam ready", entry["msg"])
}

func TestLoggerDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLoggerTo(&buf, "debug")

	log.Debugf("visible")
	assert.NotZero(t, buf.Len())
}
