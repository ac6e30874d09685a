package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/near/borsh-go"

	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
)

// SwitchboardRoundLen is the size of an aggregator round record.
const SwitchboardRoundLen = 36

// maxSwitchboardScale bounds the decimal scale of a round result.
const maxSwitchboardScale = 28

// SwitchboardDiscriminator prefixes every aggregator account.
var SwitchboardDiscriminator = accountDiscriminator("AggregatorAccountData")

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// SwitchboardRound is the latest confirmed round of an aggregator: the slot
// the round opened and a signed 128-bit mantissa scaled by 10^-Scale.
type SwitchboardRound struct {
	Discriminator [8]byte
	RoundOpenSlot uint64
	Mantissa      [16]byte
	Scale         uint32
}

// NewSwitchboardRound builds a round with a non-negative mantissa.
func NewSwitchboardRound(mantissa uint64, scale uint32, slot uint64) *SwitchboardRound {
	r := &SwitchboardRound{Discriminator: SwitchboardDiscriminator, RoundOpenSlot: slot, Scale: scale}
	binary.LittleEndian.PutUint64(r.Mantissa[:8], mantissa)
	return r
}

// Negative reports whether the two's complement mantissa is below zero.
func (r *SwitchboardRound) Negative() bool { return r.Mantissa[15]&0x80 != 0 }

func (r *SwitchboardRound) mantissa() *uint256.Int {
	var v uint256.Int
	v[0] = binary.LittleEndian.Uint64(r.Mantissa[:8])
	v[1] = binary.LittleEndian.Uint64(r.Mantissa[8:])
	return &v
}

// ParseSwitchboardRound decodes an aggregator round record.
func ParseSwitchboardRound(data []byte) (*SwitchboardRound, error) {
	if len(data) < SwitchboardRoundLen {
		return nil, fmt.Errorf("%w: switchboard account too short (%d bytes)", errs.ErrInvalidOracleConfig, len(data))
	}
	var round SwitchboardRound
	if err := borsh.Deserialize(&round, data[:SwitchboardRoundLen]); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidOracleConfig, err)
	}
	if round.Discriminator != SwitchboardDiscriminator {
		return nil, fmt.Errorf("%w: switchboard discriminator mismatch", errs.ErrInvalidOracleConfig)
	}
	return &round, nil
}

// EncodeSwitchboardRound renders r as an account record.
func EncodeSwitchboardRound(r *SwitchboardRound) ([]byte, error) {
	encoded, err := borsh.Serialize(*r)
	if err != nil {
		return nil, err
	}
	if len(encoded) != SwitchboardRoundLen {
		return nil, fmt.Errorf("oracle: switchboard round encoded to %d bytes", len(encoded))
	}
	return encoded, nil
}

func (r *Reader) readSwitchboard(feed Feed, slot uint64) (Observation, error) {
	if !r.cfg.isSwitchboardProgram(feed.Owner) {
		return Observation{}, fmt.Errorf("%w: switchboard feed owner %s", errs.ErrInvalidOracleConfig, feed.Owner)
	}
	round, err := ParseSwitchboardRound(feed.Data)
	if err != nil {
		return Observation{}, err
	}
	if slot < round.RoundOpenSlot {
		return Observation{}, fmt.Errorf("%w: switchboard slot %d ahead of clock %d", errs.ErrArithmetic, round.RoundOpenSlot, slot)
	}
	if slot-round.RoundOpenSlot >= r.cfg.StaleAfterSlots {
		return Observation{}, fmt.Errorf("%w: switchboard round opened at slot %d", errs.ErrStaleOracle, round.RoundOpenSlot)
	}
	if round.Negative() {
		return Observation{}, fmt.Errorf("%w: negative switchboard price", errs.ErrInvalidOracleConfig)
	}
	if round.Scale > maxSwitchboardScale {
		return Observation{}, fmt.Errorf("%w: switchboard scale %d", errs.ErrInvalidOracleConfig, round.Scale)
	}

	divisor := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(round.Scale)))
	var scaled uint256.Int
	if _, overflow := scaled.MulDivOverflow(round.mantissa(), uint256.NewInt(decimal.WAD), divisor); overflow {
		return Observation{}, errs.ErrArithmetic
	}
	price := decimal.FromUint256(&scaled)

	return Observation{
		Price:       price,
		PublishSlot: round.RoundOpenSlot,
		Source:      SourceSwitchboard,
		Oracle:      feed.Key,
	}, nil
}
