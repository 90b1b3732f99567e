package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelMatchesByCode(t *testing.T) {
	err := fmt.Errorf("debit: %w", InsufficientCredits(10, 60))
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	if errors.Is(err, ErrDuplicateInquiry) {
		t.Fatalf("different codes must not match")
	}
	if KindOf(err) != KindResource {
		t.Fatalf("expected resource kind, got %s", KindOf(err))
	}
}

func TestWithDoesNotMutateSentinel(t *testing.T) {
	e := BelowMinimum(10)
	if e.Details["minQuantity"] != 10 {
		t.Fatalf("expected minQuantity detail, got %v", e.Details)
	}
	if ErrBelowMinimumQuantity.Details != nil {
		t.Fatalf("sentinel details mutated: %v", ErrBelowMinimumQuantity.Details)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrStoreUnavailable.Wrap(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected sentinel match")
	}
	if KindOf(errors.New("plain")) != KindDownstream {
		t.Fatalf("untyped errors are downstream")
	}
}
