package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"tokenlending/crypto"
)

func TestEncodeLendingEventTagsType(t *testing.T) {
	oracle := crypto.Pubkey{1, 2, 3}
	payload, err := EncodeLendingEvent(PythOraclePriceUpdate{Oracle: oracle, Price: 100, Confidence: 2, PublishedSlot: 7})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["event_type"] != TypePythOraclePriceUpdate {
		t.Fatalf("event_type = %v", decoded["event_type"])
	}
	if decoded["oracle_pubkey"] != oracle.String() {
		t.Fatalf("oracle_pubkey = %v", decoded["oracle_pubkey"])
	}
	if decoded["published_slot"].(float64) != 7 {
		t.Fatalf("published_slot = %v", decoded["published_slot"])
	}
}

func TestLogEmitterWritesLendingEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	var seen []string
	record := EmitterFunc(func(e Event) { seen = append(seen, e.EventType()) })
	MultiEmitter{LogEmitter{Logger: logger}, NoopEmitter{}, record}.Emit(SwitchboardError{ErrorMessage: "stale"})
	if len(seen) != 1 || seen[0] != TypeSwitchboardError {
		t.Fatalf("recorded events = %v", seen)
	}
	out := buf.String()
	if !strings.Contains(out, LendingLogTag) || !strings.Contains(out, TypeSwitchboardError) {
		t.Fatalf("unexpected log output: %s", out)
	}
	evt := SwitchboardError{ErrorMessage: "stale"}.Event()
	if evt.Attributes["error"] != "stale" {
		t.Fatalf("attributes = %v", evt.Attributes)
	}
}
