package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		debug      bool
		want       zerolog.Level
	}{
		{"default", "", false, zerolog.InfoLevel},
		{"configured warn", "warn", false, zerolog.WarnLevel},
		{"configured error", "error", false, zerolog.ErrorLevel},
		{"debug flag wins", "warn", true, zerolog.DebugLevel},
		{"unparseable falls back", "loud", false, zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.configured, tt.debug))
		})
	}
}
