package grid

import (
	"testing"

	"fluxgrid.ai/internal/protocol"
)

func TestDeriveHandleDeterministic(t *testing.T) {
	h1 := DeriveHandle("world1", "totem_12")
	h2 := DeriveHandle("world1", "totem_12")
	if h1 != h2 {
		t.Fatalf("same inputs produced %s and %s", h1, h2)
	}
	if DeriveHandle("world1", "totem_13") == h1 {
		t.Fatalf("different keys collided")
	}
	// Separator keeps boundary shifts apart.
	if DeriveHandle("ab", "c") == DeriveHandle("a", "bc") {
		t.Fatalf("boundary shift collided")
	}
}

func TestRegistryClaim(t *testing.T) {
	r := NewRegistry()

	h1, err := r.Claim("ns", "key")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if h1 != DeriveHandle("ns", "key") {
		t.Fatalf("claim returned %s, precomputed %s", h1, DeriveHandle("ns", "key"))
	}
	if !r.Exists("ns", "key") {
		t.Fatalf("claimed key not found")
	}

	if _, err := r.Claim("ns", "key"); !IsCode(err, protocol.ErrAlreadyExists) {
		t.Fatalf("second claim: got %v, want %s", err, protocol.ErrAlreadyExists)
	}

	h2, err := r.Claim("ns", "key2")
	if err != nil {
		t.Fatalf("claim distinct key: %v", err)
	}
	if h2 == h1 {
		t.Fatalf("distinct keys yielded the same handle")
	}

	r.release(h1)
	if r.Exists("ns", "key") {
		t.Fatalf("released claim still present")
	}
	if _, err := r.Claim("ns", "key"); err != nil {
		t.Fatalf("reclaim after release: %v", err)
	}
}

func TestRegistryRejectsEmptyInputs(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Claim("", "key"); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("empty namespace: got %v", err)
	}
	if _, err := r.Claim("ns", ""); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("empty key: got %v", err)
	}
}
