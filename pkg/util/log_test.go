package util

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveLoggerState saves the current logger state for restoration
func saveLoggerState() (io.Writer, logrus.Level, logrus.Formatter) {
	return Logger.Out, Logger.Level, Logger.Formatter
}

// restoreLoggerState restores the logger to its previous state
func restoreLoggerState(out io.Writer, level logrus.Level, formatter logrus.Formatter) {
	Logger.SetOutput(out)
	Logger.SetLevel(level)
	Logger.SetFormatter(formatter)
}

func TestSetLogLevel(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"trace", false},
		{"invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := SetLogLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerbosityLevel(t *testing.T) {
	tests := []struct {
		v    int
		want logrus.Level
	}{
		{-3, logrus.WarnLevel},
		{0, logrus.WarnLevel},
		{1, logrus.InfoLevel},
		{2, logrus.DebugLevel},
		{3, logrus.DebugLevel},
		{4, logrus.TraceLevel},
		{9, logrus.TraceLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityLevel(tt.v), "verbosity %d", tt.v)
	}
}

func TestSetVerbosity(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	SetVerbosity(2)
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
}

func TestSetJSONFormat(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetJSONFormat()

	Infof("test json")

	require.NotEmpty(t, buf.String())
	assert.Equal(t, byte('{'), buf.Bytes()[0])
}

func TestSetNestedFormat(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetNestedFormat()

	WithVF("0000:07:00.0", 3).Info("nested")

	assert.Contains(t, buf.String(), "0000:07:00.0")
}

func TestSetLogFile(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	dir := t.TempDir()
	closer, err := SetLogFile(dir, "vfd.log", FileRotation{MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)
	Warnf("to the file")
	closer.Close()

	data, err := os.ReadFile(filepath.Join(dir, "vfd.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to the file")
}

func TestContextLoggers(t *testing.T) {
	assert.Equal(t, "0000:07:00.0", WithPort("0000:07:00.0").Data["port"])

	e := WithVF("0000:07:00.1", 7)
	assert.Equal(t, "0000:07:00.1", e.Data["port"])
	assert.Equal(t, 7, e.Data["vf"])

	assert.Equal(t, "arbiter", WithComponent("arbiter").Data["component"])
}

func TestLevelFiltering(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetVerbosity(0)

	Infof("hidden %d", 1)
	assert.Zero(t, buf.Len(), "info is filtered at verbosity 0")
	Warnf("shown %d", 2)
	assert.NotZero(t, buf.Len(), "warn passes at verbosity 0")
}
