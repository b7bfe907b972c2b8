package grid

import "github.com/google/uuid"

// EnergySource is the instantaneous capacity/reservation ledger of one
// orchestrator. Production is all-or-nothing: currentProduction is either
// 0 or maxProduction. Invariant after every operation:
//
//	0 <= reservedTotal <= currentProduction
type EnergySource struct {
	maxProduction     int64
	currentProduction int64
	reservedTotal     int64
}

func NewEnergySource(maxProduction int64) *EnergySource {
	return &EnergySource{maxProduction: maxProduction}
}

func (s *EnergySource) MaxProduction() int64     { return s.maxProduction }
func (s *EnergySource) CurrentProduction() int64 { return s.currentProduction }
func (s *EnergySource) ReservedTotal() int64     { return s.reservedTotal }
func (s *EnergySource) Producing() bool          { return s.currentProduction > 0 }

// Available is the headroom a new reservation may claim.
func (s *EnergySource) Available() int64 {
	return s.currentProduction - s.reservedTotal
}

// StartProduction raises output to max. Reservations from a previous
// production run must already be gone; production cannot start under
// stale reservations.
func (s *EnergySource) StartProduction() error {
	const op = "energy.start_production"
	if s.currentProduction != 0 {
		return errInvalidState(op, "already producing")
	}
	if s.reservedTotal != 0 {
		return errInvalidState(op, "stale reservations: %d units still reserved", s.reservedTotal)
	}
	s.currentProduction = s.maxProduction
	return nil
}

// StopProduction zeroes output and the reservation total. This is a
// destructive accounting reset: it may only run inside a cascade that has
// already released every dependent reservation. A nonzero reservedTotal
// here is a caller bug, not a recoverable condition.
func (s *EnergySource) StopProduction() error {
	const op = "energy.stop_production"
	if s.reservedTotal != 0 {
		return errInvalidState(op, "stop with %d units still reserved", s.reservedTotal)
	}
	s.currentProduction = 0
	return nil
}

// Reservation is the receipt returned by Reserve. Release subtracts
// exactly the recorded amount, never a caller-supplied one, and a receipt
// spends at most once.
type Reservation struct {
	id       string
	source   Handle
	consumer Handle
	amount   int64
	released bool
}

func (r *Reservation) ID() string       { return r.id }
func (r *Reservation) Source() Handle   { return r.source }
func (r *Reservation) Consumer() Handle { return r.consumer }
func (r *Reservation) Amount() int64    { return r.amount }
func (r *Reservation) Released() bool   { return r.released }

// Reserve claims required units for consumer. Fails E_INVALID_STATE when
// not producing and E_NO_CAPACITY when the headroom is too small.
func (s *EnergySource) Reserve(source, consumer Handle, required int64) (*Reservation, error) {
	const op = "energy.reserve"
	if !s.Producing() {
		return nil, errInvalidState(op, "source %s is not producing", source)
	}
	if required < 0 {
		return nil, errInvalidState(op, "negative requirement %d", required)
	}
	if required > s.Available() {
		return nil, errNoCapacity(op, "need %d units, %d available", required, s.Available())
	}
	s.reservedTotal += required
	return &Reservation{
		id:       uuid.NewString(),
		source:   source,
		consumer: consumer,
		amount:   required,
	}, nil
}

// Release returns a reservation's units to the pool. Double release of
// the same receipt fails E_INVALID_STATE.
func (s *EnergySource) Release(r *Reservation) error {
	const op = "energy.release"
	if r == nil {
		return errInvalidState(op, "nil receipt")
	}
	if r.released {
		return errInvalidState(op, "receipt %s already released", r.id)
	}
	if r.amount > s.reservedTotal {
		return errInvalidState(op, "receipt %s exceeds reserved total", r.id)
	}
	s.reservedTotal -= r.amount
	r.released = true
	return nil
}
