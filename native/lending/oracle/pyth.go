package oracle

import (
	"fmt"

	"github.com/near/borsh-go"

	"tokenlending/crypto"
	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
)

// Pyth v2 price account constants.
const (
	PythMagic       uint32 = 0xa1b2c3d4
	PythVersion2    uint32 = 2
	PythAccountType uint32 = 3 // price account
	PythPriceType   uint32 = 1 // price, as opposed to unknown
	PythStatusTrade uint32 = 1

	// PythHeaderLen covers the header and aggregate price; component prices
	// that follow are not read.
	PythHeaderLen = 240
)

type pythEma struct {
	Val   int64
	Numer int64
	Denom int64
}

type pythPriceInfo struct {
	Price   int64
	Conf    uint64
	Status  uint32
	CorpAct uint32
	PubSlot uint64
}

// PythPrice mirrors the leading PythHeaderLen bytes of a Pyth v2 price
// account.
type PythPrice struct {
	Magic     uint32
	Version   uint32
	Type      uint32
	Size      uint32
	PriceType uint32
	Expo      int32
	Num       uint32
	NumQt     uint32
	LastSlot  uint64
	ValidSlot uint64
	Twap      pythEma
	Twac      pythEma
	Drv1      int64
	Drv2      int64
	Product   crypto.Pubkey
	Next      crypto.Pubkey
	PrevSlot  uint64
	PrevPrice int64
	PrevConf  uint64
	Drv3      int64
	Agg       pythPriceInfo
}

// ParsePythPrice decodes and validates the identity fields of a price account.
func ParsePythPrice(data []byte) (*PythPrice, error) {
	if len(data) < PythHeaderLen {
		return nil, fmt.Errorf("%w: pyth account too short (%d bytes)", errs.ErrInvalidOracleConfig, len(data))
	}
	var price PythPrice
	if err := borsh.Deserialize(&price, data[:PythHeaderLen]); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidOracleConfig, err)
	}
	switch {
	case price.Magic != PythMagic:
		return nil, fmt.Errorf("%w: pyth magic mismatch", errs.ErrInvalidOracleConfig)
	case price.Version != PythVersion2:
		return nil, fmt.Errorf("%w: pyth version %d", errs.ErrInvalidOracleConfig, price.Version)
	case price.Type != PythAccountType:
		return nil, fmt.Errorf("%w: pyth account type %d", errs.ErrInvalidOracleConfig, price.Type)
	case price.PriceType != PythPriceType:
		return nil, fmt.Errorf("%w: pyth price type %d", errs.ErrInvalidOracleConfig, price.PriceType)
	}
	return &price, nil
}

// EncodePythPrice renders p as a full-size price account. It is used to seed
// feeds in simulations and tests.
func EncodePythPrice(p *PythPrice, size int) ([]byte, error) {
	if size < PythHeaderLen {
		size = PythHeaderLen
	}
	encoded, err := borsh.Serialize(*p)
	if err != nil {
		return nil, err
	}
	if len(encoded) != PythHeaderLen {
		return nil, fmt.Errorf("oracle: pyth header encoded to %d bytes", len(encoded))
	}
	out := make([]byte, size)
	copy(out, encoded)
	return out, nil
}

// NewPythPrice returns a trading price account header.
func NewPythPrice(price int64, expo int32, conf uint64, slot uint64) *PythPrice {
	return &PythPrice{
		Magic:     PythMagic,
		Version:   PythVersion2,
		Type:      PythAccountType,
		Size:      PythHeaderLen,
		PriceType: PythPriceType,
		Expo:      expo,
		LastSlot:  slot,
		ValidSlot: slot,
		Agg: pythPriceInfo{
			Price:   price,
			Conf:    conf,
			Status:  PythStatusTrade,
			PubSlot: slot,
		},
	}
}

// SetStatus overrides the aggregate trading status.
func (p *PythPrice) SetStatus(status uint32) { p.Agg.Status = status }

func (r *Reader) readPyth(feed Feed, slot uint64) (Observation, error) {
	if feed.Owner != r.cfg.PythProgramID {
		return Observation{}, fmt.Errorf("%w: pyth feed owner %s", errs.ErrInvalidOracleConfig, feed.Owner)
	}
	p, err := ParsePythPrice(feed.Data)
	if err != nil {
		return Observation{}, err
	}
	if p.Agg.Status != PythStatusTrade {
		return Observation{}, fmt.Errorf("%w: pyth status %d", errs.ErrStaleOracle, p.Agg.Status)
	}
	if slot < p.ValidSlot {
		return Observation{}, fmt.Errorf("%w: pyth slot %d ahead of clock %d", errs.ErrArithmetic, p.ValidSlot, slot)
	}
	if slot-p.ValidSlot >= r.cfg.StaleAfterSlots {
		return Observation{}, fmt.Errorf("%w: pyth price published at slot %d", errs.ErrStaleOracle, p.ValidSlot)
	}
	if p.Agg.Price < 0 {
		return Observation{}, fmt.Errorf("%w: negative pyth price", errs.ErrInvalidOracleConfig)
	}
	raw := uint64(p.Agg.Price)
	if p.Agg.Conf > 0 && raw/p.Agg.Conf < r.cfg.ConfidenceRatio {
		return Observation{}, fmt.Errorf("%w: pyth confidence %d too wide for price %d",
			errs.ErrInvalidOracleConfig, p.Agg.Conf, raw)
	}

	var price decimal.Decimal
	if p.Expo >= 0 {
		scale, err := pow10(uint32(p.Expo))
		if err != nil {
			return Observation{}, err
		}
		if price, err = decimal.FromUint64(raw).MulUint64(scale); err != nil {
			return Observation{}, err
		}
	} else {
		scale, err := pow10(uint32(-p.Expo))
		if err != nil {
			return Observation{}, err
		}
		if price, err = decimal.FromUint64(raw).DivUint64(scale); err != nil {
			return Observation{}, err
		}
	}

	return Observation{
		Price:       price,
		RawPrice:    p.Agg.Price,
		Confidence:  p.Agg.Conf,
		PublishSlot: p.ValidSlot,
		Source:      SourcePyth,
		Oracle:      feed.Key,
	}, nil
}

func pow10(exp uint32) (uint64, error) {
	if exp > 19 {
		return 0, fmt.Errorf("%w: exponent %d", errs.ErrArithmetic, exp)
	}
	out := uint64(1)
	for i := uint32(0); i < exp; i++ {
		out *= 10
	}
	return out, nil
}
