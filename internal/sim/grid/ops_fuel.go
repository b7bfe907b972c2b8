package grid

// Fuel operations act on the tank of one orchestrator. Depletion is
// pull-based: FuelUpdate(now) must run before a freshness-sensitive
// read; no background timer exists in the core.

// FuelDeposit adds fuel to the source's tank. The fuel type's efficiency
// comes from the catalog, defaulting to 100 when unconfigured.
// Owner-gated.
func (g *Grid) FuelDeposit(tok *OwnershipToken, source Handle, fuelType string, amount int64) error {
	const op = "grid.fuel_deposit"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	s, err := g.sourceByHandle(op, source)
	if err != nil {
		return err
	}
	if err := g.authority.Authorize(tok, source, KindSource); err != nil {
		return err
	}
	var efficiency int64 = 100
	if def, ok := g.cats.Fuels.Defs[fuelType]; ok && def.EfficiencyPercent != 0 {
		efficiency = def.EfficiencyPercent
	}
	if err := s.fuel.Deposit(fuelType, amount, efficiency); err != nil {
		return err
	}
	g.appendEvent(evFuelDeposited(source, fuelType, amount, s.fuel.Quantity()))
	return nil
}

// FuelWithdraw removes fuel. Draining the tank while not burning clears
// the stored type. Owner-gated.
func (g *Grid) FuelWithdraw(tok *OwnershipToken, source Handle, amount int64) error {
	const op = "grid.fuel_withdraw"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	s, err := g.sourceByHandle(op, source)
	if err != nil {
		return err
	}
	if err := g.authority.Authorize(tok, source, KindSource); err != nil {
		return err
	}
	if err := s.fuel.Withdraw(amount); err != nil {
		return err
	}
	g.appendEvent(evFuelWithdrawn(source, amount, s.fuel.Quantity()))
	return nil
}

// StartBurning ignites the tank at nowMs, consuming one unit as the
// activation cost. Owner-gated.
func (g *Grid) StartBurning(tok *OwnershipToken, source Handle, nowMs int64) error {
	const op = "grid.start_burning"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	s, err := g.sourceByHandle(op, source)
	if err != nil {
		return err
	}
	if err := g.authority.Authorize(tok, source, KindSource); err != nil {
		return err
	}
	if err := s.fuel.StartBurning(nowMs); err != nil {
		return err
	}
	g.appendEvent(evBurningStarted(source, s.fuel))
	return nil
}

// StopBurning extinguishes the tank, discarding partial progress toward
// the next unit. Owner-gated.
func (g *Grid) StopBurning(tok *OwnershipToken, source Handle) error {
	const op = "grid.stop_burning"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	s, err := g.sourceByHandle(op, source)
	if err != nil {
		return err
	}
	if err := g.authority.Authorize(tok, source, KindSource); err != nil {
		return err
	}
	if err := s.fuel.StopBurning(); err != nil {
		return err
	}
	g.appendEvent(evBurningStopped(source, s.fuel))
	return nil
}

// FuelUpdate advances the tank's depletion clock. Public and unauthed:
// any caller may refresh accounting before reading.
func (g *Grid) FuelUpdate(source Handle, nowMs int64) error {
	const op = "grid.fuel_update"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	s, err := g.sourceByHandle(op, source)
	if err != nil {
		return err
	}
	before := s.fuel.Quantity()
	if nowMs == s.fuel.LastUpdated() {
		return nil
	}
	s.fuel.Update(nowMs)
	g.appendEvent(evFuelUpdated(source, s.fuel, before-s.fuel.Quantity()))
	return nil
}

// FuelState is a read-model snapshot of one tank.
type FuelState struct {
	FuelType            string `json:"fuel_type"`
	Quantity            int64  `json:"quantity"`
	MaxCapacity         int64  `json:"max_capacity"`
	Burning             bool   `json:"burning"`
	BurnStartMs         int64  `json:"burn_start_ms,omitempty"`
	LeftoverMs          int64  `json:"leftover_ms"`
	EffectiveIntervalMs int64  `json:"effective_interval_ms"`
}

func (g *Grid) FuelSnapshot(source Handle) (FuelState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.sourceByHandle("grid.fuel_snapshot", source)
	if err != nil {
		return FuelState{}, err
	}
	return FuelState{
		FuelType:            s.fuel.FuelType(),
		Quantity:            s.fuel.Quantity(),
		MaxCapacity:         s.fuel.MaxCapacity(),
		Burning:             s.fuel.Burning(),
		BurnStartMs:         s.fuel.BurnStartMs(),
		LeftoverMs:          s.fuel.LeftoverMs(),
		EffectiveIntervalMs: s.fuel.EffectiveIntervalMs(),
	}, nil
}
