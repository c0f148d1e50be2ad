// Package config holds library-wide, initialization-time settings:
// base URLs and the default logging level, layered env-over-default
// since this SDK persists nothing to disk.
package config

import (
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the production sensor-cloud API endpoint.
	DefaultBaseURL = "https://api.sensorcloud.example.com/v1"

	// DefaultAuthURL is the production token endpoint for the OAuth2
	// JWT-bearer flow.
	DefaultAuthURL = "https://api.sensorcloud.example.com/v1/auth/token"

	// RequestTimeout bounds a single pipeline request end to end.
	RequestTimeout = 20 * time.Second

	// StreamTimeout bounds an event stream session end to end, from
	// connecting through reading the body; the stream may sit silent
	// for long stretches between events, and a session still ends once
	// this much time has passed, whether or not events are arriving.
	StreamTimeout = 3600 * time.Second
)

// Config collects the settings a Client needs at construction time.
type Config struct {
	BaseURL  string
	AuthURL  string
	LogLevel zerolog.Level
}

// Default returns a Config pointed at the production endpoints with
// info-level logging.
func Default() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		AuthURL:  DefaultAuthURL,
		LogLevel: zerolog.InfoLevel,
	}
}

// FromEnv layers SENSORCLOUD_BASE_URL, SENSORCLOUD_AUTH_URL, and
// SENSORCLOUD_LOG_LEVEL over Default(). There is no on-disk config
// file to layer beneath them: this module persists nothing locally.
func FromEnv() Config {
	cfg := Default()
	if v := os.Getenv("SENSORCLOUD_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("SENSORCLOUD_AUTH_URL"); v != "" {
		cfg.AuthURL = v
	}
	if v := os.Getenv("SENSORCLOUD_LOG_LEVEL"); v != "" {
		if lvl, err := zerolog.ParseLevel(v); err == nil {
			cfg.LogLevel = lvl
		}
	}
	return cfg
}

var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	MaxConnsPerHost:     10,
	IdleConnTimeout:     90 * time.Second,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// NewHTTPClient builds an *http.Client over the shared, connection-pooled
// transport with the given end-to-end timeout. The pipeline and each
// event stream each get their own client (different timeouts) but share
// the transport, so TCP/TLS connections are reused across both.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}
