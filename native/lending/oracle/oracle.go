package oracle

import (
	"errors"
	"fmt"

	"tokenlending/core/events"
	"tokenlending/crypto"
	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
	"tokenlending/observability"
)

const (
	DefaultStaleAfterSlots uint64 = 240
	DefaultConfidenceRatio uint64 = 10
)

// Source identifies which feed produced an observation.
type Source uint8

const (
	SourcePyth Source = iota + 1
	SourceSwitchboard
)

func (s Source) String() string {
	switch s {
	case SourcePyth:
		return "pyth"
	case SourceSwitchboard:
		return "switchboard"
	}
	return "unknown"
}

// Config carries the oracle program identities and acceptance thresholds.
type Config struct {
	PythProgramID         crypto.Pubkey
	SwitchboardProgramIDs []crypto.Pubkey
	// NullOracle marks an unconfigured feed slot on a reserve.
	NullOracle      crypto.Pubkey
	StaleAfterSlots uint64
	ConfidenceRatio uint64
}

func (c Config) isSwitchboardProgram(owner crypto.Pubkey) bool {
	for _, id := range c.SwitchboardProgramIDs {
		if id == owner {
			return true
		}
	}
	return false
}

// IsNull reports whether key marks an absent feed.
func (c Config) IsNull(key crypto.Pubkey) bool {
	return key == c.NullOracle
}

// Feed is the raw record of a price account.
type Feed struct {
	Key   crypto.Pubkey
	Owner crypto.Pubkey
	Data  []byte
}

// Observation is a validated price. It is derived per instruction and never
// persisted.
type Observation struct {
	Price       decimal.Decimal
	RawPrice    int64
	Confidence  uint64
	PublishSlot uint64
	Source      Source
	Oracle      crypto.Pubkey
}

// Reader turns feed records into validated prices and reports every outcome
// as a lending event.
type Reader struct {
	cfg     Config
	emitter events.Emitter
}

func NewReader(cfg Config, emitter events.Emitter) *Reader {
	if cfg.StaleAfterSlots == 0 {
		cfg.StaleAfterSlots = DefaultStaleAfterSlots
	}
	if cfg.ConfidenceRatio == 0 {
		cfg.ConfidenceRatio = DefaultConfidenceRatio
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Reader{cfg: cfg, emitter: emitter}
}

func (r *Reader) Config() Config { return r.cfg }

// ReadPyth validates a primary feed at slot.
func (r *Reader) ReadPyth(feed Feed, slot uint64) (Observation, error) {
	obs, err := r.readPyth(feed, slot)
	observability.Lending().RecordOracleRead(SourcePyth.String(), err == nil)
	if err != nil {
		r.emitter.Emit(events.PythError{Oracle: feed.Key, ErrorMessage: err.Error()})
		return Observation{}, err
	}
	r.emitter.Emit(events.PythOraclePriceUpdate{
		Oracle:        feed.Key,
		Price:         obs.RawPrice,
		Confidence:    obs.Confidence,
		PublishedSlot: obs.PublishSlot,
	})
	return obs, nil
}

// ReadSwitchboard validates a secondary feed at slot.
func (r *Reader) ReadSwitchboard(feed Feed, slot uint64) (Observation, error) {
	obs, err := r.readSwitchboard(feed, slot)
	observability.Lending().RecordOracleRead(SourceSwitchboard.String(), err == nil)
	if err != nil {
		r.emitter.Emit(events.SwitchboardError{Oracle: feed.Key, ErrorMessage: err.Error()})
		return Observation{}, err
	}
	r.emitter.Emit(events.SwitchboardOraclePriceUpdate{
		Oracle:        feed.Key,
		Price:         obs.Price.String(),
		PublishedSlot: obs.PublishSlot,
	})
	return obs, nil
}

// Price prefers the primary feed and falls back to the secondary one only
// when the primary is absent or rejected. A nil feed or one keyed by the null
// oracle counts as absent. With a single configured feed its own error is
// returned; when both are configured and both fail the result is
// errs.ErrInvalidOracleConfig.
func (r *Reader) Price(primary, secondary *Feed, slot uint64) (Observation, error) {
	hasPrimary := primary != nil && !r.cfg.IsNull(primary.Key)
	hasSecondary := secondary != nil && !r.cfg.IsNull(secondary.Key)

	switch {
	case !hasPrimary && !hasSecondary:
		return Observation{}, fmt.Errorf("%w: no oracle configured", errs.ErrInvalidOracleConfig)
	case !hasSecondary:
		return r.ReadPyth(*primary, slot)
	case !hasPrimary:
		return r.ReadSwitchboard(*secondary, slot)
	}

	obs, primaryErr := r.ReadPyth(*primary, slot)
	if primaryErr == nil {
		return obs, nil
	}
	obs, secondaryErr := r.ReadSwitchboard(*secondary, slot)
	if secondaryErr == nil {
		observability.Lending().RecordOracleFallback()
		return obs, nil
	}
	return Observation{}, fmt.Errorf("%w: %w", errs.ErrInvalidOracleConfig, errors.Join(primaryErr, secondaryErr))
}

// ValidatePythFeed checks that feed is a well-formed price account owned by
// the configured primary oracle program.
func (r *Reader) ValidatePythFeed(feed Feed) error {
	if feed.Owner != r.cfg.PythProgramID {
		return fmt.Errorf("%w: pyth feed owner %s", errs.ErrInvalidOracleConfig, feed.Owner)
	}
	_, err := ParsePythPrice(feed.Data)
	return err
}

// ValidateSwitchboardFeed checks that feed is an aggregator owned by an
// allowed secondary oracle program.
func (r *Reader) ValidateSwitchboardFeed(feed Feed) error {
	if !r.cfg.isSwitchboardProgram(feed.Owner) {
		return fmt.Errorf("%w: switchboard feed owner %s", errs.ErrInvalidOracleConfig, feed.Owner)
	}
	_, err := ParseSwitchboardRound(feed.Data)
	return err
}
