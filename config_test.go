/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Seednode/mathlobby/coordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		bind:           "127.0.0.1",
		port:           8080,
		historySize:    coordinator.DefaultHistorySize,
		sendBuffer:     coordinator.DefaultSendBuffer,
		maxMessageSize: 4096,
		rateLimit:      5,
		rateBurst:      10,
		pingInterval:   30 * time.Second,
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "port too low", mutate: func(c *Config) { c.port = 0 }, wantErr: true},
		{name: "port too high", mutate: func(c *Config) { c.port = 65536 }, wantErr: true},
		{name: "cert without key", mutate: func(c *Config) { c.tlsCert = "cert.pem" }, wantErr: true},
		{name: "cert and key", mutate: func(c *Config) { c.tlsCert, c.tlsKey = "cert.pem", "key.pem" }},
		{name: "empty history", mutate: func(c *Config) { c.historySize = 0 }, wantErr: true},
		{name: "empty send buffer", mutate: func(c *Config) { c.sendBuffer = 0 }, wantErr: true},
		{name: "empty message size", mutate: func(c *Config) { c.maxMessageSize = 0 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.rateLimit = -1 }, wantErr: true},
		{name: "rate without burst", mutate: func(c *Config) { c.rateBurst = 0 }, wantErr: true},
		{name: "limiting disabled", mutate: func(c *Config) { c.rateLimit, c.rateBurst = 0, 0 }},
		{name: "negative ping", mutate: func(c *Config) { c.pingInterval = -time.Second }, wantErr: true},
		{name: "origin", mutate: func(c *Config) { c.origins = []string{"https://lobby.example"} }},
		{name: "origin without scheme", mutate: func(c *Config) { c.origins = []string{"lobby.example"} }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Scheme(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestConfig_OriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{name: "no list allows anything", origin: "https://anywhere.example", want: true},
		{name: "listed", origins: []string{"https://lobby.example/"}, origin: "https://lobby.example", want: true},
		{name: "case insensitive", origins: []string{"https://Lobby.example"}, origin: "https://lobby.example", want: true},
		{name: "unlisted", origins: []string{"https://lobby.example"}, origin: "https://evil.example"},
		{name: "no origin header", origins: []string{"https://lobby.example"}, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.origins = tt.origins

			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, cfg.originAllowed(r))
		})
	}
}

func TestNewCmd_ReadsEnvironment(t *testing.T) {
	t.Setenv("MATHLOBBY_PORT", "9090")
	t.Setenv("MATHLOBBY_HISTORY_SIZE", "25")
	t.Setenv("MATHLOBBY_VERBOSE", "true")

	cfg := &Config{}
	cmd := newCmd(cfg)
	require.NotNil(t, cmd)

	assert.Equal(t, 9090, cfg.port)
	assert.Equal(t, 25, cfg.historySize)
	assert.True(t, cfg.verbose)
	assert.Equal(t, coordinator.DefaultSendBuffer, cfg.sendBuffer)
}

func TestHumanReadableSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "999 B", humanReadableSize(999))
	assert.Equal(t, "1.5 kB", humanReadableSize(1500))
	assert.Equal(t, "2.0 MB", humanReadableSize(2_000_000))
}
