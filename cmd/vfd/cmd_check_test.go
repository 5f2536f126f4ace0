package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	good := writeDoc(t, dir, "vm1.json", `{"name": "vm1", "pciid": "0000:07:00.0", "vfid": 3, "vlans": [10]}`)
	noVF := writeDoc(t, dir, "vm2.json", `{"name": "vm2", "pciid": "0000:07:00.0"}`)
	broken := writeDoc(t, dir, "vm3.json", `{"name": `)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"valid document", []string{good}, ""},
		{"missing vfid", []string{good, noVF}, "1 of 2 documents have problems"},
		{"unparseable", []string{broken}, "1 of 1 documents have problems"},
		{"missing file", []string{filepath.Join(dir, "nope.json"), noVF}, "2 of 2 documents have problems"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkConfigCmd.RunE(checkConfigCmd, tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestDaemonHealth(t *testing.T) {
	d := &daemon{}
	assert.Error(t, d.health(), "not serving yet")
	d.serving.Store(true)
	assert.NoError(t, d.health())
}
