package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		ErrNotFound, ErrAlreadyExists, ErrUnauthorized, ErrTypeMismatch,
		ErrInvalidState, ErrNoCapacity, ErrObligationUnresolved, ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Fatalf("expected %q to be known", code)
		}
	}
	if !IsKnownCode("") {
		t.Fatalf("empty code should be accepted")
	}
	if IsKnownCode("E_NOPE") {
		t.Fatalf("unknown code should be rejected")
	}
}
