package state

import (
	"fmt"

	"tokenlending/native/lending/errs"
)

// StaleAfterSlotsElapsed is the number of slots after which a refreshed
// record must be refreshed again before it can be used.
const StaleAfterSlotsElapsed uint64 = 1

// LastUpdate tracks the slot a record was last refreshed at.
type LastUpdate struct {
	Slot  uint64
	Stale bool
}

func NewLastUpdate(slot uint64) LastUpdate {
	return LastUpdate{Slot: slot, Stale: true}
}

// SlotsElapsed returns the number of slots since the last refresh.
func (l LastUpdate) SlotsElapsed(slot uint64) (uint64, error) {
	if slot < l.Slot {
		return 0, fmt.Errorf("%w: slot %d before last update %d", errs.ErrArithmetic, slot, l.Slot)
	}
	return slot - l.Slot, nil
}

// UpdateSlot records a refresh at slot.
func (l *LastUpdate) UpdateSlot(slot uint64) {
	l.Slot = slot
	l.Stale = false
}

// MarkStale forces a refresh before the next use.
func (l *LastUpdate) MarkStale() { l.Stale = true }

// IsStale reports whether the record needs a refresh at slot.
func (l LastUpdate) IsStale(slot uint64) (bool, error) {
	elapsed, err := l.SlotsElapsed(slot)
	if err != nil {
		return false, err
	}
	return l.Stale || elapsed >= StaleAfterSlotsElapsed, nil
}
