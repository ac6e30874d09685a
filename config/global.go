package config

import (
	"tokenlending/crypto"
	"tokenlending/native/lending/oracle"
	"tokenlending/observability/otel"
)

// IsPaused implements the pause view consulted by native modules.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case "lending":
		return p.Lending
	}
	return false
}

// OracleConfig converts the configured identities and thresholds into the
// oracle reader's configuration.
func (c *Config) OracleConfig() oracle.Config {
	return oracle.Config{
		PythProgramID:         c.Programs.Pyth,
		SwitchboardProgramIDs: append([]crypto.Pubkey(nil), c.Programs.Switchboard...),
		NullOracle:            c.Programs.NullOracle,
		StaleAfterSlots:       c.Oracle.StaleAfterSlots,
		ConfidenceRatio:       c.Oracle.ConfidenceRatio,
	}
}

// TelemetryConfig returns the exporter configuration for service.
func (c *Config) TelemetryConfig(service string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: c.Environment,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(c.Telemetry.Headers),
		Metrics:     c.Telemetry.Metrics,
		Traces:      c.Telemetry.Traces,
	}
}
