package logger

import (
	"testing"

	"github.com/dalnet/wikibot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.Log
		debug bool
	}{
		{"default", config.Log{}, false},
		{"debug console", config.Log{Level: "debug", Format: "console"}, true},
		{"warn json", config.Log{Level: "warn", Format: "json"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, l)
			assert.Equal(t, tt.debug, l.Core().Enabled(zap.DebugLevel))
		})
	}
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(config.Log{Level: "loud"})
	assert.Error(t, err)
}
