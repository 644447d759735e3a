package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		name        string
		args        []string
		start       Config
		expected    Config
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"server",
				"-a", ":8080", "-g", ":9090", "-d", "db", "-s", "secret",
				"-t", "5", "-r", "60", "-u", "https://client", "-l", "debug",
			},
			expected: Config{
				EndpointAddrHTTP:             ":8080",
				EndpointAddrGRPC:             ":9090",
				DatabaseDSN:                  "db",
				SecretKey:                    "secret",
				AccessTokenValidityDuration:  5 * time.Minute,
				RefreshTokenValidityDuration: time.Hour,
				ClientURL:                    "https://client",
				LogLevel:                     "debug",
			},
		},
		{
			name:     "durations untouched when not given",
			args:     []string{"server", "-s", "x"},
			start:    Config{AccessTokenValidityDuration: 30 * time.Second},
			expected: Config{AccessTokenValidityDuration: 30 * time.Second, SecretKey: "x"},
		},
		{
			name:     "foreign flags ignored",
			args:     []string{"server", "-c", "cfg.json", "-env", ".env"},
			expected: Config{},
		},
		{
			name:        "bad int panics",
			args:        []string{"server", "-t", "abc"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			cfg := tt.start

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(&cfg) })
				return
			}
			require.NotPanics(t, func() { parseFlags(&cfg) })
			assert.Empty(t, cmp.Diff(tt.expected, cfg))
		})
	}
}
