package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"not found with id", NotFoundError{Resource: "seat", ID: "abc"}, "seat abc not found"},
		{"not found bare", NotFoundError{}, "not found"},
		{"validation field", ValidationError{Field: "count", Msg: "must be positive"}, "count: must be positive"},
		{"validation field only", ValidationError{Field: "seat_id"}, "invalid seat_id"},
		{"conflict reason", ConflictError{Resource: "seat", Reason: ReasonOnHold}, "seat conflict: ON_HOLD"},
		{"conflict msg", ConflictError{Resource: "seat", Msg: "already booked"}, "seat conflict: already booked"},
		{"internal wrapped", InternalError{Msg: "missing response", Err: errors.New("nil data")}, "missing response: nil data"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestKindHelpersSeeThroughWrapping(t *testing.T) {
	base := errors.New("boom")
	conflict := fmt.Errorf("reserve: %w", ConflictError{Reason: ReasonVersionMismatch, Err: base})

	if !IsConflict(conflict) {
		t.Fatal("expected conflict")
	}
	if !HasReason(conflict, ReasonVersionMismatch) {
		t.Fatal("expected version mismatch reason")
	}
	if HasReason(conflict, ReasonOnHold) {
		t.Fatal("unexpected reason match")
	}
	if !errors.Is(conflict, base) {
		t.Fatal("expected unwrap to reach base error")
	}
	if IsNotFound(conflict) || IsValidation(conflict) || IsInternal(conflict) {
		t.Fatal("conflict misclassified")
	}
	if _, ok := ConflictReason(base); ok {
		t.Fatal("plain error has no conflict reason")
	}
}
