package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasStatementSeparator(t *testing.T) {
	tests := []struct {
		cmd  string
		want bool
	}{
		{"/usr/local/bin/vf-up --port 0", false},
		{"", false},
		{"/bin/true; rm -rf /", true},
		{";", true},
		{"logger 'a && b'", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasStatementSeparator(tt.cmd), tt.cmd)
	}
}
