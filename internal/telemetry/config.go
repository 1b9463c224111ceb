// Package telemetry wires OpenTelemetry tracing, metrics and logs for newsrag.
package telemetry

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/newsrag/internal/config"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled         bool
	Endpoint        string
	Protocol        string // grpc | http/protobuf
	Insecure        bool
	ServiceName     string
	ServiceVersion  string
	SampleRate      float64
	MetricsInterval time.Duration
	ShutdownTimeout time.Duration
}

// FromConfig maps the application observability section.
func FromConfig(obs config.ObservabilityConfig, version string) *Config {
	return &Config{
		Enabled:         obs.Telemetry.Enabled,
		Endpoint:        obs.Telemetry.Endpoint,
		Protocol:        obs.Telemetry.Protocol,
		Insecure:        obs.Telemetry.Insecure,
		ServiceName:     obs.ServiceName,
		ServiceVersion:  version,
		SampleRate:      obs.Telemetry.SampleRate,
		MetricsInterval: 15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required when telemetry is enabled")
	}
	switch c.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("protocol must be grpc or http/protobuf, got %q", c.Protocol)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be within [0,1], got %v", c.SampleRate)
	}
	return nil
}
