package grid

// FuelTank is a single-slot, typed fuel store with pull-based depletion.
// No background timer exists: Update(nowMs) must run before any
// freshness-sensitive read. Invariants: 0 <= quantity <= maxCapacity and
// leftoverMs < effective interval at all times.
type FuelTank struct {
	maxCapacity    int64
	fuelType       string
	quantity       int64
	burnRateBaseMs int64
	efficiency     int64 // percent, [10,100]; 100 when the type is unconfigured
	burning        bool
	burnStartMs    int64
	leftoverMs     int64
	lastUpdatedMs  int64
}

func NewFuelTank(maxCapacity, burnRateBaseMs int64) *FuelTank {
	return &FuelTank{
		maxCapacity:    maxCapacity,
		burnRateBaseMs: burnRateBaseMs,
		efficiency:     100,
	}
}

func (f *FuelTank) MaxCapacity() int64 { return f.maxCapacity }
func (f *FuelTank) FuelType() string   { return f.fuelType }
func (f *FuelTank) Quantity() int64    { return f.quantity }
func (f *FuelTank) Burning() bool      { return f.burning }
func (f *FuelTank) LeftoverMs() int64  { return f.leftoverMs }
func (f *FuelTank) BurnStartMs() int64 { return f.burnStartMs }
func (f *FuelTank) Efficiency() int64  { return f.efficiency }
func (f *FuelTank) LastUpdated() int64 { return f.lastUpdatedMs }

// EffectiveIntervalMs is the real period one fuel unit lasts after
// applying the efficiency multiplier to the base burn rate. Floors at
// 1ms: the depletion clock in Update divides by it.
func (f *FuelTank) EffectiveIntervalMs() int64 {
	ms := f.burnRateBaseMs * f.efficiency / 100
	if ms < 1 {
		ms = 1
	}
	return ms
}

// Deposit adds fuel. An empty tank adopts the deposited type (and its
// efficiency); an occupied tank rejects a different type. Overshooting
// capacity rejects the whole deposit.
func (f *FuelTank) Deposit(fuelType string, amount, efficiencyPercent int64) error {
	const op = "fuel.deposit"
	if fuelType == "" || amount <= 0 {
		return errInvalidState(op, "bad deposit %q x%d", fuelType, amount)
	}
	if f.fuelType != "" && f.fuelType != fuelType {
		return errTypeMismatch(op, "tank holds %s, got %s", f.fuelType, fuelType)
	}
	if f.quantity+amount > f.maxCapacity {
		return errNoCapacity(op, "%d + %d exceeds capacity %d", f.quantity, amount, f.maxCapacity)
	}
	if f.fuelType == "" {
		if efficiencyPercent == 0 {
			efficiencyPercent = 100
		}
		if efficiencyPercent < 10 || efficiencyPercent > 100 {
			return errInvalidState(op, "efficiency %d out of [10,100]", efficiencyPercent)
		}
		f.fuelType = fuelType
		f.efficiency = efficiencyPercent
	}
	f.quantity += amount
	return nil
}

// Withdraw removes fuel. Draining to zero while not burning returns the
// slot to empty (the stored type clears).
func (f *FuelTank) Withdraw(amount int64) error {
	const op = "fuel.withdraw"
	if amount <= 0 {
		return errInvalidState(op, "bad amount %d", amount)
	}
	if amount > f.quantity {
		return errNoCapacity(op, "withdraw %d from %d", amount, f.quantity)
	}
	f.quantity -= amount
	if f.quantity == 0 && !f.burning {
		f.fuelType = ""
		f.efficiency = 100
	}
	return nil
}

// StartBurning ignites the tank. One unit is consumed immediately as the
// deterministic activation cost.
func (f *FuelTank) StartBurning(nowMs int64) error {
	const op = "fuel.start_burning"
	if f.burning {
		return errInvalidState(op, "already burning")
	}
	if f.quantity < 1 {
		return errInvalidState(op, "tank is empty")
	}
	f.quantity--
	f.burning = true
	f.burnStartMs = nowMs
	f.leftoverMs = 0
	f.lastUpdatedMs = nowMs
	if f.quantity == 0 {
		// The activation unit was the last one; nothing left to burn.
		f.burning = false
		f.burnStartMs = 0
		f.fuelType = ""
		f.efficiency = 100
	}
	return nil
}

// Update advances the depletion clock to nowMs. Calling it twice with
// the same now is a no-op on the second call.
func (f *FuelTank) Update(nowMs int64) {
	if nowMs == f.lastUpdatedMs {
		return
	}
	if !f.burning {
		f.lastUpdatedMs = nowMs
		return
	}
	if nowMs < f.lastUpdatedMs {
		// Clock went backwards; hold state and wait for it to catch up.
		return
	}
	interval := f.EffectiveIntervalMs()
	elapsed := (nowMs - f.lastUpdatedMs) + f.leftoverMs
	consumed := elapsed / interval
	f.leftoverMs = elapsed % interval
	if consumed >= f.quantity {
		f.quantity = 0
		f.burning = false
		f.leftoverMs = 0
		f.burnStartMs = 0
		f.fuelType = ""
		f.efficiency = 100
	} else {
		f.quantity -= consumed
	}
	f.lastUpdatedMs = nowMs
}

// StopBurning extinguishes the tank. Partial progress toward the next
// unit is discarded.
func (f *FuelTank) StopBurning() error {
	const op = "fuel.stop_burning"
	if !f.burning {
		return errInvalidState(op, "not burning")
	}
	f.burning = false
	f.burnStartMs = 0
	f.leftoverMs = 0
	return nil
}
