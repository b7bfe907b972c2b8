package grid

// Orchestrator (energy source) lifecycle:
// ANCHORED (= offline at creation) -> ONLINE -> OFFLINE -> DESTROYED.

// AnchorSource claims a handle, mints the SOURCE ownership token and
// creates the orchestrator with ledgers sized from the source class
// catalog. Sponsor-gated.
func (g *Grid) AnchorSource(caller Principal, namespace, itemKey, class string) (Handle, *OwnershipToken, error) {
	const op = "grid.anchor_source"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return "", nil, err
	}
	if err := g.authority.VerifySponsor(caller); err != nil {
		return "", nil, err
	}
	def, ok := g.cats.Sources.Defs[class]
	if !ok {
		return "", nil, errNotFound(op, "unknown source class %q", class)
	}
	h, err := g.registry.Claim(namespace, itemKey)
	if err != nil {
		return "", nil, err
	}
	tok, err := g.authority.MintOwnership(caller, KindSource, h)
	if err != nil {
		// Unreachable while handles and tokens are created in lockstep;
		// unwind the claim so the operation has no effect.
		g.registry.release(h)
		return "", nil, err
	}
	g.sources[h] = &Source{
		handle:    h,
		class:     class,
		status:    StatusAnchored,
		energy:    NewEnergySource(def.MaxProduction),
		fuel:      NewFuelTank(def.FuelCapacity, g.cfg.BurnRateBaseMs),
		connected: map[Handle]bool{},
	}
	g.audit(caller, "ANCHOR_SOURCE", h, "", map[string]any{"class": class})
	g.appendEvent(evStatusChanged("", StatusAnchored, h))
	return h, tok, nil
}

// StartProduction raises the source's output to max. Owner-gated.
func (g *Grid) StartProduction(tok *OwnershipToken, source Handle) error {
	const op = "grid.start_production"
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
	if err := s.energy.StartProduction(); err != nil {
		return err
	}
	g.appendEvent(evSourceStarted(s))
	return nil
}

// SourceOnline transitions the orchestrator to ONLINE. It is a pure hub
// transition: production must already be active with headroom left, and
// no reservation is taken here.
func (g *Grid) SourceOnline(tok *OwnershipToken, source Handle) error {
	const op = "grid.source_online"
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
	if !offlineLike(s.status) {
		return errInvalidState(op, "source %s is %s", source, s.status)
	}
	if !s.energy.Producing() || s.energy.Available() <= 0 {
		return errInvalidState(op, "source %s has no available production", source)
	}
	from := s.status
	s.status = StatusOnline
	g.appendEvent(evStatusChanged(from, StatusOnline, source))
	return nil
}

// BeginConnect adds consumers to the orchestrator's connected set. The
// returned obligation's worklist is exactly the newly added handles;
// nothing is written until every entry is resolved and the obligation
// finalized. Sponsor-gated.
func (g *Grid) BeginConnect(caller Principal, source Handle, consumers ...Handle) (*UpdateObligation, error) {
	const op = "grid.connect"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.authority.VerifySponsor(caller); err != nil {
		return nil, err
	}
	s, err := g.sourceByHandle(op, source)
	if err != nil {
		return nil, err
	}
	if s.status == StatusDestroyed {
		return nil, errInvalidState(op, "source %s is destroyed", source)
	}
	if len(consumers) == 0 {
		return nil, errInvalidState(op, "no consumers given")
	}
	seen := map[Handle]bool{}
	for _, h := range consumers {
		if seen[h] {
			return nil, errInvalidState(op, "duplicate consumer %s", h)
		}
		seen[h] = true
		a, err := g.assemblyByHandle(op, h)
		if err != nil {
			return nil, err
		}
		if s.connected[h] {
			return nil, errAlreadyExists(op, "%s is already connected to %s", h, source)
		}
		if a.source != "" {
			return nil, errInvalidState(op, "%s is already powered by %s", h, a.source)
		}
	}
	w, err := g.openObligation(op, obligationUpdate, source, consumers)
	if err != nil {
		return nil, err
	}
	return &UpdateObligation{w: w}, nil
}

// Connect is the single-operation form: it drains the update obligation
// itself and commits.
func (g *Grid) Connect(caller Principal, source Handle, consumers ...Handle) error {
	ob, err := g.BeginConnect(caller, source, consumers...)
	if err != nil {
		return err
	}
	for _, h := range ob.Pending() {
		if err := ob.Resolve(h, source); err != nil {
			_ = ob.Abort()
			return err
		}
	}
	return ob.Finalize()
}

// BeginOffline starts the disconnect cascade. The worklist snapshots the
// full connected set: every consumer must be forced through its offline
// path before the transition may finalize. Owner-gated.
func (g *Grid) BeginOffline(tok *OwnershipToken, source Handle) (*DisconnectObligation, error) {
	const op = "grid.source_offline"
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.sourceByHandle(op, source)
	if err != nil {
		return nil, err
	}
	if err := g.authority.Authorize(tok, source, KindSource); err != nil {
		return nil, err
	}
	if s.status != StatusOnline {
		return nil, errInvalidState(op, "source %s is %s", source, s.status)
	}
	w, err := g.openObligation(op, obligationDisconnect, source, s.Connected())
	if err != nil {
		return nil, err
	}
	w.onCommit = func() error {
		if err := s.energy.StopProduction(); err != nil {
			return err
		}
		g.appendEvent(evSourceStopped(s))
		s.status = StatusOffline
		g.appendEvent(evStatusChanged(StatusOnline, StatusOffline, source))
		return nil
	}
	return &DisconnectObligation{w: w}, nil
}

// SourceOffline is the single-operation form of the disconnect cascade.
func (g *Grid) SourceOffline(tok *OwnershipToken, source Handle) error {
	ob, err := g.BeginOffline(tok, source)
	if err != nil {
		return err
	}
	for _, h := range ob.Pending() {
		if err := ob.Resolve(h); err != nil {
			_ = ob.Abort()
			return err
		}
	}
	return ob.Finalize()
}

// BeginUnanchorSource starts destroying an offline orchestrator. With
// connected consumers remaining it returns an orphan obligation: each
// consumer must be explicitly orphaned before the source may be
// destroyed. With none, the source is destroyed outright and the
// returned obligation is nil. Sponsor-gated.
func (g *Grid) BeginUnanchorSource(caller Principal, source Handle) (*OrphanObligation, error) {
	const op = "grid.unanchor_source"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.authority.VerifySponsor(caller); err != nil {
		return nil, err
	}
	s, err := g.sourceByHandle(op, source)
	if err != nil {
		return nil, err
	}
	if !offlineLike(s.status) {
		return nil, errInvalidState(op, "source %s is %s", source, s.status)
	}
	if len(s.connected) == 0 {
		if err := g.guardCascade(op); err != nil {
			return nil, err
		}
		g.destroySource(caller, s)
		return nil, nil
	}
	w, err := g.openObligation(op, obligationOrphan, source, s.Connected())
	if err != nil {
		return nil, err
	}
	w.onCommit = func() error {
		g.destroySource(caller, s)
		return nil
	}
	return &OrphanObligation{w: w}, nil
}

// UnanchorSource is the single-operation form: orphan every remaining
// consumer, then destroy the orchestrator.
func (g *Grid) UnanchorSource(caller Principal, source Handle) error {
	ob, err := g.BeginUnanchorSource(caller, source)
	if err != nil {
		return err
	}
	if ob == nil {
		return nil
	}
	for _, h := range ob.Pending() {
		if err := ob.Resolve(h); err != nil {
			_ = ob.Abort()
			return err
		}
	}
	return ob.Finalize()
}

// destroySource removes the orchestrator and everything bound to it:
// registration, ownership token, ledger state. Callers hold g.mu and
// have already orphaned or never had consumers.
func (g *Grid) destroySource(caller Principal, s *Source) {
	from := s.status
	s.status = StatusDestroyed
	g.registry.release(s.handle)
	g.authority.revoke(s.handle)
	delete(g.sources, s.handle)
	g.audit(caller, "UNANCHOR_SOURCE", s.handle, "", nil)
	g.appendEvent(evStatusChanged(from, StatusDestroyed, s.handle))
}

// SourceStatus reads the orchestrator lifecycle state.
func (g *Grid) SourceStatus(source Handle) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.sourceByHandle("grid.source_status", source)
	if err != nil {
		return "", err
	}
	return s.status, nil
}
