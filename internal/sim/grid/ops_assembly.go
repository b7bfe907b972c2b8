package grid

// Assembly (consumer) lifecycle, shared by every consumer kind:
// ANCHORED -> ONLINE -> OFFLINE -> DESTROYED.

// AnchorAssembly claims a handle, mints the kind-tagged ownership token
// and creates the consumer entity offline. The consumer type must exist
// in the catalog and carry the declared kind. Sponsor-gated.
func (g *Grid) AnchorAssembly(caller Principal, namespace, itemKey string, kind Kind, consumerType string) (Handle, *OwnershipToken, error) {
	const op = "grid.anchor_assembly"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return "", nil, err
	}
	if err := g.authority.VerifySponsor(caller); err != nil {
		return "", nil, err
	}
	if kind == KindSource || !validKind(kind) {
		return "", nil, errTypeMismatch(op, "kind %q is not a consumer kind", kind)
	}
	def, ok := g.cats.Consumers.Defs[consumerType]
	if !ok {
		return "", nil, errNotFound(op, "unknown consumer type %q", consumerType)
	}
	if Kind(def.Kind) != kind {
		return "", nil, errTypeMismatch(op, "consumer type %q is %s, not %s", consumerType, def.Kind, kind)
	}
	h, err := g.registry.Claim(namespace, itemKey)
	if err != nil {
		return "", nil, err
	}
	tok, err := g.authority.MintOwnership(caller, kind, h)
	if err != nil {
		g.registry.release(h)
		return "", nil, err
	}
	g.assemblies[h] = &Assembly{
		handle:       h,
		kind:         kind,
		consumerType: consumerType,
		status:       StatusAnchored,
	}
	g.audit(caller, "ANCHOR_ASSEMBLY", h, "", map[string]any{
		"kind":          string(kind),
		"consumer_type": consumerType,
	})
	g.appendEvent(evStatusChanged("", StatusAnchored, h))
	return h, tok, nil
}

// AssemblyOnline powers the consumer up: its orchestrator must be ONLINE
// with headroom for the consumer type's requirement, and the proof hook
// (when wired) must clear it. Reserves against the source. Owner-gated.
func (g *Grid) AssemblyOnline(tok *OwnershipToken, assembly Handle) error {
	const op = "grid.assembly_online"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	a, err := g.assemblyByHandle(op, assembly)
	if err != nil {
		return err
	}
	if err := g.authority.Authorize(tok, assembly, a.kind); err != nil {
		return err
	}
	if !offlineLike(a.status) {
		return errInvalidState(op, "assembly %s is %s", assembly, a.status)
	}
	if a.source == "" {
		return errInvalidState(op, "assembly %s is not connected to a source", assembly)
	}
	s, err := g.sourceByHandle(op, a.source)
	if err != nil {
		return err
	}
	if s.status != StatusOnline {
		return errInvalidState(op, "source %s is %s", s.handle, s.status)
	}
	if g.proximity != nil && !g.proximity.Authorized(assembly) {
		return errUnauthorized(op, "proximity proof rejected for %s", assembly)
	}
	required, err := g.requirements.Lookup(a.consumerType)
	if err != nil {
		return err
	}
	receipt, err := s.energy.Reserve(s.handle, assembly, required)
	if err != nil {
		return err
	}
	a.receipt = receipt
	from := a.status
	a.status = StatusOnline
	g.appendEvent(evReserved(s, a, receipt.Amount()))
	g.appendEvent(evStatusChanged(from, StatusOnline, assembly))
	return nil
}

// AssemblyOffline powers the consumer down, releasing its reservation by
// the stored receipt. Owner-gated.
func (g *Grid) AssemblyOffline(tok *OwnershipToken, assembly Handle) error {
	const op = "grid.assembly_offline"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	a, err := g.assemblyByHandle(op, assembly)
	if err != nil {
		return err
	}
	if err := g.authority.Authorize(tok, assembly, a.kind); err != nil {
		return err
	}
	if a.status != StatusOnline {
		return errInvalidState(op, "assembly %s is %s", assembly, a.status)
	}
	s, err := g.sourceByHandle(op, a.source)
	if err != nil {
		return err
	}
	if err := s.energy.Release(a.receipt); err != nil {
		return err
	}
	amount := a.receipt.Amount()
	a.receipt = nil
	a.status = StatusOffline
	g.appendEvent(evReleased(s, a, amount))
	g.appendEvent(evStatusChanged(StatusOnline, StatusOffline, assembly))
	return nil
}

// UnanchorAssembly destroys an offline consumer: any residual hold is
// released, the connection severed, and the handle and token freed.
// Sponsor-gated.
func (g *Grid) UnanchorAssembly(caller Principal, assembly Handle) error {
	const op = "grid.unanchor_assembly"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	if err := g.authority.VerifySponsor(caller); err != nil {
		return err
	}
	a, err := g.assemblyByHandle(op, assembly)
	if err != nil {
		return err
	}
	if !offlineLike(a.status) {
		return errInvalidState(op, "assembly %s is %s", assembly, a.status)
	}
	if a.source != "" {
		if s, ok := g.sources[a.source]; ok {
			if a.receipt != nil && !a.receipt.Released() {
				// Residual hold from a crashed-over state; release it so
				// the source's accounting stays balanced.
				_ = s.energy.Release(a.receipt)
				g.appendEvent(evReleased(s, a, a.receipt.Amount()))
			}
			delete(s.connected, a.handle)
			g.appendEvent(evConsumerDisconnected(s.handle, a.handle))
		}
		a.source = ""
	}
	a.receipt = nil
	from := a.status
	a.status = StatusDestroyed
	g.registry.release(a.handle)
	g.authority.revoke(a.handle)
	delete(g.assemblies, a.handle)
	g.audit(caller, "UNANCHOR_ASSEMBLY", a.handle, "", nil)
	g.appendEvent(evStatusChanged(from, StatusDestroyed, a.handle))
	return nil
}

// AssemblyStatus reads the consumer lifecycle state.
func (g *Grid) AssemblyStatus(assembly Handle) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, err := g.assemblyByHandle("grid.assembly_status", assembly)
	if err != nil {
		return "", err
	}
	return a.status, nil
}

// AssemblySourceRef reads the consumer's powering orchestrator ("" when
// disconnected or orphaned).
func (g *Grid) AssemblySourceRef(assembly Handle) (Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, err := g.assemblyByHandle("grid.assembly_source_ref", assembly)
	if err != nil {
		return "", err
	}
	return a.source, nil
}
