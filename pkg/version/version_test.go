package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.True(t, strings.HasPrefix(Info(), "dev ("), Info())
}

func TestFromBuildInfo(t *testing.T) {
	tests := []struct {
		name     string
		settings []debug.BuildSetting
		commit   string
		date     string
	}{
		{"no vcs stamp", nil, "unknown", "unknown"},
		{"clean", []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
			{Key: "vcs.modified", Value: "false"},
		}, "0123456", "2026-03-01T10:00:00Z"},
		{"dirty", []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc"},
			{Key: "vcs.modified", Value: "true"},
		}, "abc-dirty", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, d := fromBuildInfo(&debug.BuildInfo{Settings: tt.settings}, "unknown", "unknown")
			assert.Equal(t, tt.commit, c)
			assert.Equal(t, tt.date, d)
		})
	}
}
