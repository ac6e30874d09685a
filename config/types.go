package config

import "tokenlending/crypto"

// Programs names the program ids the lending program is wired to.
type Programs struct {
	Token   crypto.Pubkey `toml:"Token"`
	Lending crypto.Pubkey `toml:"Lending"`
	Pyth    crypto.Pubkey `toml:"Pyth"`
	// Switchboard lists every accepted secondary oracle program.
	Switchboard []crypto.Pubkey `toml:"Switchboard"`
	// NullOracle marks an absent feed on a reserve.
	NullOracle crypto.Pubkey `toml:"NullOracle"`
}

// Oracle bounds the prices a reserve refresh accepts.
type Oracle struct {
	StaleAfterSlots uint64 `toml:"StaleAfterSlots"`
	// ConfidenceRatio is the minimum price/confidence ratio of a primary feed.
	ConfidenceRatio uint64 `toml:"ConfidenceRatio"`
}

type Pauses struct {
	Lending bool `toml:"Lending"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
	// Headers is a comma separated list of key=value pairs.
	Headers string `toml:"Headers"`
}
