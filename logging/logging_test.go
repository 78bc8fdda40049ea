package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_FormatsEntry(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf)

	e := &log.Entry{
		Level:     log.WarnLevel,
		Message:   "upstream call rejected",
		Timestamp: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		Fields: log.Fields{
			"status": 502,
			"method": "GET",
		},
	}
	require.NoError(t, h.HandleLog(e))
	assert.Equal(t, "2024-03-01 09:30:00 W upstream call rejected method=GET status=502\n", buf.String())
}

func TestHandler_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := &log.Logger{Handler: NewHandler(&buf), Level: log.DebugLevel}

	logger.WithError(errors.New("refused")).Error("CRM login failed")
	assert.Contains(t, buf.String(), " E CRM login failed error=refused\n")

	buf.Reset()
	logger.Debug("joined in-flight login")
	assert.Contains(t, buf.String(), " D joined in-flight login\n")
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	Init("chatty")
	l, ok := log.Log.(*log.Logger)
	require.True(t, ok)
	assert.Equal(t, log.InfoLevel, l.Level)

	Init("DEBUG")
	assert.Equal(t, log.DebugLevel, l.Level)
}
