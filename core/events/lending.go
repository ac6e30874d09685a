package events

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"tokenlending/core/types"
	"tokenlending/crypto"
)

const (
	// TypePythOraclePriceUpdate is emitted when a primary feed yields a usable price.
	TypePythOraclePriceUpdate = "PythOraclePriceUpdate"
	// TypePythError is emitted when a primary feed is rejected.
	TypePythError = "PythError"
	// TypeSwitchboardOraclePriceUpdate is emitted when a secondary feed yields a usable price.
	TypeSwitchboardOraclePriceUpdate = "SwitchboardOraclePriceUpdate"
	// TypeSwitchboardError is emitted when a secondary feed is rejected.
	TypeSwitchboardError = "SwitchboardError"

	// LendingLogTag prefixes every lending event log line.
	LendingLogTag = "lending-event-log"
)

// LendingEvent is the closed set of events emitted by the lending program.
type LendingEvent interface {
	Event
	Event() *types.Event
	lendingEvent()
}

type PythOraclePriceUpdate struct {
	Oracle        crypto.Pubkey `json:"oracle_pubkey"`
	Price         int64         `json:"price"`
	Confidence    uint64        `json:"confidence"`
	PublishedSlot uint64        `json:"published_slot"`
}

type PythError struct {
	Oracle       crypto.Pubkey `json:"oracle_pubkey"`
	ErrorMessage string        `json:"error_message"`
}

type SwitchboardOraclePriceUpdate struct {
	Oracle        crypto.Pubkey `json:"oracle_pubkey"`
	Price         string        `json:"price"`
	PublishedSlot uint64        `json:"published_slot"`
}

type SwitchboardError struct {
	Oracle       crypto.Pubkey `json:"oracle_pubkey"`
	ErrorMessage string        `json:"error_message"`
}

func (PythOraclePriceUpdate) EventType() string        { return TypePythOraclePriceUpdate }
func (PythError) EventType() string                    { return TypePythError }
func (SwitchboardOraclePriceUpdate) EventType() string { return TypeSwitchboardOraclePriceUpdate }
func (SwitchboardError) EventType() string             { return TypeSwitchboardError }

func (PythOraclePriceUpdate) lendingEvent()        {}
func (PythError) lendingEvent()                    {}
func (SwitchboardOraclePriceUpdate) lendingEvent() {}
func (SwitchboardError) lendingEvent()             {}

func (e PythOraclePriceUpdate) Event() *types.Event {
	return &types.Event{
		Type: TypePythOraclePriceUpdate,
		Attributes: map[string]string{
			"oracle":        e.Oracle.String(),
			"price":         strconv.FormatInt(e.Price, 10),
			"confidence":    strconv.FormatUint(e.Confidence, 10),
			"publishedSlot": strconv.FormatUint(e.PublishedSlot, 10),
		},
	}
}

func (e PythError) Event() *types.Event {
	return &types.Event{
		Type: TypePythError,
		Attributes: map[string]string{
			"oracle": e.Oracle.String(),
			"error":  e.ErrorMessage,
		},
	}
}

func (e SwitchboardOraclePriceUpdate) Event() *types.Event {
	return &types.Event{
		Type: TypeSwitchboardOraclePriceUpdate,
		Attributes: map[string]string{
			"oracle":        e.Oracle.String(),
			"price":         e.Price,
			"publishedSlot": strconv.FormatUint(e.PublishedSlot, 10),
		},
	}
}

func (e SwitchboardError) Event() *types.Event {
	return &types.Event{
		Type: TypeSwitchboardError,
		Attributes: map[string]string{
			"oracle": e.Oracle.String(),
			"error":  e.ErrorMessage,
		},
	}
}

// EncodeLendingEvent renders e as a JSON object tagged with its event_type.
func EncodeLendingEvent(e LendingEvent) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(e.EventType())
	if err != nil {
		return nil, err
	}
	fields["event_type"] = tag
	return json.Marshal(fields)
}

// LogEmitter writes lending events to a structured logger. Other events are
// logged by type only.
type LogEmitter struct {
	Logger *slog.Logger
}

func (l LogEmitter) Emit(e Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	le, ok := e.(LendingEvent)
	if !ok {
		logger.Info("event", slog.String("event_type", e.EventType()))
		return
	}
	payload, err := EncodeLendingEvent(le)
	if err != nil {
		logger.Warn("encode lending event", slog.String("event_type", e.EventType()), slog.String("error", err.Error()))
		return
	}
	logger.Info(LendingLogTag, slog.String("event_type", e.EventType()), slog.String("payload", string(payload)))
}

// MultiEmitter fans every event out to each wrapped emitter.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(e Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(e)
		}
	}
}
