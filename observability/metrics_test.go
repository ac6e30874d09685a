package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLendingMetrics(t *testing.T) {
	m := Lending()
	before := testutil.ToFloat64(m.errors.WithLabelValues("Borrow", "ErrBorrowTooLarge"))
	m.RecordInstruction("Borrow", "ErrBorrowTooLarge")
	m.RecordInstruction("Borrow", "")
	if got := testutil.ToFloat64(m.errors.WithLabelValues("Borrow", "ErrBorrowTooLarge")); got != before+1 {
		t.Fatalf("errors counter = %v", got)
	}

	fees := testutil.ToFloat64(m.flashFees)
	m.RecordFlashRepay(3_000_000)
	if got := testutil.ToFloat64(m.flashFees); got != fees+3_000_000 {
		t.Fatalf("flash fees = %v", got)
	}

	var nilMetrics *lendingMetrics
	nilMetrics.RecordOracleFallback()
}

func TestRuntimeMetrics(t *testing.T) {
	m := Runtime()
	before := testutil.ToFloat64(m.transactions.WithLabelValues("aborted"))
	m.Observe(errors.New("boom"), time.Millisecond)
	if got := testutil.ToFloat64(m.transactions.WithLabelValues("aborted")); got != before+1 {
		t.Fatalf("aborted = %v", got)
	}
}
