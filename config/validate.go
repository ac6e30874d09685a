package config

import (
	"fmt"

	"tokenlending/observability/logging"
)

var (
	MinStaleAfterSlots = uint64(1)
	MaxStaleAfterSlots = uint64(10_000)
)

func ValidateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if c.Programs.Token.IsZero() {
		return fmt.Errorf("programs: token program id required")
	}
	if c.Programs.Lending.IsZero() {
		return fmt.Errorf("programs: lending program id required")
	}
	if c.Programs.Pyth.IsZero() {
		return fmt.Errorf("programs: pyth program id required")
	}
	if c.Programs.NullOracle.IsZero() {
		return fmt.Errorf("programs: null oracle id required")
	}
	seen := map[string]bool{
		c.Programs.Token.String():   true,
		c.Programs.Lending.String(): true,
	}
	if seen[c.Programs.Pyth.String()] {
		return fmt.Errorf("programs: pyth program id collides with another program")
	}
	for _, id := range c.Programs.Switchboard {
		if id.IsZero() || id == c.Programs.NullOracle {
			return fmt.Errorf("programs: invalid switchboard program id %s", id)
		}
		if seen[id.String()] || id == c.Programs.Pyth {
			return fmt.Errorf("programs: switchboard program id %s collides with another program", id)
		}
	}
	if c.Oracle.StaleAfterSlots < MinStaleAfterSlots || c.Oracle.StaleAfterSlots > MaxStaleAfterSlots {
		return fmt.Errorf("oracle: stale_after_slots must be in [%d, %d]", MinStaleAfterSlots, MaxStaleAfterSlots)
	}
	if c.Oracle.ConfidenceRatio == 0 {
		return fmt.Errorf("oracle: confidence_ratio must be positive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
