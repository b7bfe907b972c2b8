package grid

import (
	"testing"

	"fluxgrid.ai/internal/protocol"
)

func checkEnergyInvariant(t *testing.T, s *EnergySource) {
	t.Helper()
	if s.ReservedTotal() < 0 || s.ReservedTotal() > s.CurrentProduction() {
		t.Fatalf("invariant broken: reserved=%d current=%d", s.ReservedTotal(), s.CurrentProduction())
	}
}

func TestReserveAgainstCapacity(t *testing.T) {
	s := NewEnergySource(100)
	src := DeriveHandle("ns", "reactor")
	x := DeriveHandle("ns", "x")
	y := DeriveHandle("ns", "y")

	// Reserving before production is active is rejected.
	if _, err := s.Reserve(src, x, 40); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("reserve while idle: got %v, want %s", err, protocol.ErrInvalidState)
	}

	if err := s.StartProduction(); err != nil {
		t.Fatalf("start: %v", err)
	}
	checkEnergyInvariant(t, s)

	rx, err := s.Reserve(src, x, 40)
	if err != nil {
		t.Fatalf("reserve 40: %v", err)
	}
	checkEnergyInvariant(t, s)
	if s.Available() != 60 {
		t.Fatalf("available = %d, want 60", s.Available())
	}

	if _, err := s.Reserve(src, y, 70); !IsCode(err, protocol.ErrNoCapacity) {
		t.Fatalf("reserve 70 of 60: got %v, want %s", err, protocol.ErrNoCapacity)
	}
	checkEnergyInvariant(t, s)

	if err := s.Release(rx); err != nil {
		t.Fatalf("release: %v", err)
	}
	checkEnergyInvariant(t, s)
	if s.Available() != 100 {
		t.Fatalf("available after release = %d, want 100", s.Available())
	}
}

func TestReceiptReleasesExactlyOnce(t *testing.T) {
	s := NewEnergySource(100)
	if err := s.StartProduction(); err != nil {
		t.Fatalf("start: %v", err)
	}
	r, err := s.Reserve("src", "a", 30)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if r.Amount() != 30 {
		t.Fatalf("receipt amount = %d, want 30", r.Amount())
	}
	if err := s.Release(r); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := s.Release(r); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("double release: got %v, want %s", err, protocol.ErrInvalidState)
	}
	if s.ReservedTotal() != 0 {
		t.Fatalf("reserved total = %d, want 0", s.ReservedTotal())
	}
}

func TestStartProductionRejectsStaleReservations(t *testing.T) {
	s := NewEnergySource(100)
	if err := s.StartProduction(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.StartProduction(); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("double start: got %v", err)
	}
	r, _ := s.Reserve("src", "a", 10)

	// Stop under live reservations is the cascade-only fatal misuse.
	if err := s.StopProduction(); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("stop with reservations: got %v, want %s", err, protocol.ErrInvalidState)
	}
	if err := s.Release(r); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := s.StopProduction(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Producing() {
		t.Fatalf("still producing after stop")
	}
	if err := s.StartProduction(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s.CurrentProduction() != 100 {
		t.Fatalf("current = %d, want 100", s.CurrentProduction())
	}
}

func TestRequirementTable(t *testing.T) {
	rt := NewRequirementTable(map[string]int64{"TURRET": 40})

	u, err := rt.Lookup("TURRET")
	if err != nil || u != 40 {
		t.Fatalf("lookup = %d, %v", u, err)
	}
	if _, err := rt.Lookup("UNSET"); !IsCode(err, protocol.ErrNotFound) {
		t.Fatalf("unset lookup: got %v, want %s", err, protocol.ErrNotFound)
	}
	if err := rt.Set("TURRET", 55); err != nil {
		t.Fatalf("set: %v", err)
	}
	if u, _ := rt.Lookup("TURRET"); u != 55 {
		t.Fatalf("lookup after set = %d, want 55", u)
	}
	if err := rt.Remove("TURRET"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := rt.Remove("TURRET"); !IsCode(err, protocol.ErrNotFound) {
		t.Fatalf("second remove: got %v", err)
	}
	if err := rt.Set("TURRET", -1); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("negative units: got %v", err)
	}
}
