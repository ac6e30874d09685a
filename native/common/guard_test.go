package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("nil view paused: %v", err)
	}
	pauses := NewPauseSet("lending")
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module paused: %v", err)
	}
	err := Guard(pauses, "lending")
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err.Error() != "module paused: lending" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	pauses.Set("lending", false)
	pauses.Set("oracle", true)
	if err := Guard(pauses, "lending"); err != nil {
		t.Fatalf("lending still paused: %v", err)
	}
	if got := pauses.Paused(); len(got) != 1 || got[0] != "oracle" {
		t.Fatalf("paused = %v", got)
	}

	var unset *PauseSet
	if unset.IsPaused("lending") {
		t.Fatalf("nil set reported a pause")
	}
}
