package grid

import "sort"

// Obligations keep a multi-object cascade inside one operation. A state
// transition that affects dependent consumers hands back a worklist; the
// operation may only commit after every entry is explicitly resolved and
// the obligation finalized. Resolutions are staged, not applied: grid
// state is untouched until Finalize succeeds, so a failed or abandoned
// cascade has no effect.
//
// Obligations cannot be persisted or carried into a later operation: a
// grid admits one open obligation at a time and every other mutating
// entry point rejects while one is open.

type obligationKind int

const (
	obligationUpdate obligationKind = iota + 1
	obligationDisconnect
	obligationOrphan
)

func (k obligationKind) String() string {
	switch k {
	case obligationUpdate:
		return "update"
	case obligationDisconnect:
		return "disconnect"
	case obligationOrphan:
		return "orphan"
	}
	return "unknown"
}

// worklist is the shared obligation core. Staged effects accumulate per
// resolution and run, in order, only at commit; onCommit runs last (the
// producing transition itself, e.g. stopping production).
type worklist struct {
	g        *Grid
	kind     obligationKind
	source   Handle
	pending  map[Handle]bool
	staged   []func()
	onCommit func() error
	closed   bool
}

// UpdateObligation is produced by Connect: every newly connected
// consumer must have its energy source reference set before the connect
// operation may finalize.
type UpdateObligation struct{ w *worklist }

// DisconnectObligation is produced by taking an orchestrator offline:
// every connected consumer must be forced through its offline path
// (releasing its reservation) before the transition may finalize.
type DisconnectObligation struct{ w *worklist }

// OrphanObligation is produced by unanchoring an orchestrator that still
// has connected consumers: each must be explicitly orphaned (source
// reference cleared, status forced offline) before the orchestrator may
// be destroyed.
type OrphanObligation struct{ w *worklist }

func (w *worklist) pendingSorted() []Handle {
	out := make([]Handle, 0, len(w.pending))
	for h := range w.pending {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w *worklist) resolveLocked(op string, consumer Handle, effect func()) error {
	if w.closed {
		return errInvalidState(op, "obligation already closed")
	}
	if !w.pending[consumer] {
		return errNotFound(op, "%s is not pending in this obligation", consumer)
	}
	delete(w.pending, consumer)
	w.staged = append(w.staged, effect)
	return nil
}

// finalizeLocked is the mandatory commit boundary. With pending entries
// it fails E_OBLIGATION_UNRESOLVED and commits nothing: the obligation
// stays open, so the caller either resolves the rest and finalizes again
// or aborts; either way no partial effect is ever visible. With an
// empty worklist the staged effects commit in resolution order, then
// onCommit.
func (w *worklist) finalizeLocked(op string) error {
	if w.closed {
		return errInvalidState(op, "obligation already closed")
	}
	if len(w.pending) > 0 {
		return errObligationUnresolved(op, "%d unresolved %s entries", len(w.pending), w.kind)
	}
	w.closed = true
	w.g.cascade = nil
	for _, effect := range w.staged {
		effect()
	}
	w.staged = nil
	if w.onCommit != nil {
		return w.onCommit()
	}
	return nil
}

// abortLocked discards the obligation and every staged effect. The
// enclosing operation ends with no effect; there is no silent drop path
// past this.
func (w *worklist) abortLocked(op string) error {
	if w.closed {
		return errInvalidState(op, "obligation already closed")
	}
	w.closed = true
	w.g.cascade = nil
	w.staged = nil
	w.pending = nil
	return nil
}

// Pending lists the unresolved worklist entries, sorted for determinism.
func (ob *UpdateObligation) Pending() []Handle {
	ob.w.g.mu.Lock()
	defer ob.w.g.mu.Unlock()
	return ob.w.pendingSorted()
}

// Resolve sets the consumer's energy source reference to source (staged
// until Finalize). Each worklist entry must be resolved exactly once.
func (ob *UpdateObligation) Resolve(consumer, source Handle) error {
	const op = "obligation.resolve_update"
	g := ob.w.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if source != ob.w.source {
		return errInvalidState(op, "obligation binds source %s, not %s", ob.w.source, source)
	}
	a, err := g.assemblyByHandle(op, consumer)
	if err != nil {
		return err
	}
	s, err := g.sourceByHandle(op, source)
	if err != nil {
		return err
	}
	return ob.w.resolveLocked(op, consumer, func() {
		a.source = s.handle
		s.connected[a.handle] = true
		g.appendEvent(evConsumerConnected(s.handle, a.handle))
	})
}

func (ob *UpdateObligation) Finalize() error {
	ob.w.g.mu.Lock()
	defer ob.w.g.mu.Unlock()
	return ob.w.finalizeLocked("obligation.finalize_update")
}

func (ob *UpdateObligation) Abort() error {
	ob.w.g.mu.Lock()
	defer ob.w.g.mu.Unlock()
	return ob.w.abortLocked("obligation.abort_update")
}

func (ob *DisconnectObligation) Pending() []Handle {
	ob.w.g.mu.Lock()
	defer ob.w.g.mu.Unlock()
	return ob.w.pendingSorted()
}

// Resolve forces the consumer through its offline path (staged): its
// reservation is released by receipt and its status forced OFFLINE. This
// is a system-initiated cascade, so the owner-token check is bypassed.
func (ob *DisconnectObligation) Resolve(consumer Handle) error {
	const op = "obligation.resolve_disconnect"
	g := ob.w.g
	g.mu.Lock()
	defer g.mu.Unlock()
	a, err := g.assemblyByHandle(op, consumer)
	if err != nil {
		return err
	}
	s, err := g.sourceByHandle(op, ob.w.source)
	if err != nil {
		return err
	}
	if a.receipt != nil && a.receipt.Released() {
		return errInvalidState(op, "receipt for %s already spent", consumer)
	}
	return ob.w.resolveLocked(op, consumer, func() {
		g.forceAssemblyOffline(a, s)
		g.appendEvent(evConsumerDisconnected(s.handle, a.handle))
	})
}

func (ob *DisconnectObligation) Finalize() error {
	ob.w.g.mu.Lock()
	defer ob.w.g.mu.Unlock()
	return ob.w.finalizeLocked("obligation.finalize_disconnect")
}

func (ob *DisconnectObligation) Abort() error {
	ob.w.g.mu.Lock()
	defer ob.w.g.mu.Unlock()
	return ob.w.abortLocked("obligation.abort_disconnect")
}

func (ob *OrphanObligation) Pending() []Handle {
	ob.w.g.mu.Lock()
	defer ob.w.g.mu.Unlock()
	return ob.w.pendingSorted()
}

// Resolve orphans the consumer (staged): its source reference is cleared
// rather than left dangling, its status forced OFFLINE, and its
// membership in the dying orchestrator dropped.
func (ob *OrphanObligation) Resolve(consumer Handle) error {
	const op = "obligation.resolve_orphan"
	g := ob.w.g
	g.mu.Lock()
	defer g.mu.Unlock()
	a, err := g.assemblyByHandle(op, consumer)
	if err != nil {
		return err
	}
	s, err := g.sourceByHandle(op, ob.w.source)
	if err != nil {
		return err
	}
	return ob.w.resolveLocked(op, consumer, func() {
		g.forceAssemblyOffline(a, s)
		a.source = ""
		delete(s.connected, a.handle)
		g.appendEvent(evOrphaned(s.handle, a.handle))
	})
}

func (ob *OrphanObligation) Finalize() error {
	ob.w.g.mu.Lock()
	defer ob.w.g.mu.Unlock()
	return ob.w.finalizeLocked("obligation.finalize_orphan")
}

func (ob *OrphanObligation) Abort() error {
	ob.w.g.mu.Lock()
	defer ob.w.g.mu.Unlock()
	return ob.w.abortLocked("obligation.abort_orphan")
}

func (g *Grid) openObligation(op string, kind obligationKind, source Handle, entries []Handle) (*worklist, error) {
	if g.cascade != nil {
		return nil, errInvalidState(op, "another obligation is open")
	}
	w := &worklist{
		g:       g,
		kind:    kind,
		source:  source,
		pending: make(map[Handle]bool, len(entries)),
	}
	for _, h := range entries {
		w.pending[h] = true
	}
	g.cascade = w
	return w, nil
}

// guardCascade rejects mutating entry points while an obligation is open.
func (g *Grid) guardCascade(op string) error {
	if g.cascade != nil {
		return errInvalidState(op, "a %s obligation is open; finalize it first", g.cascade.kind)
	}
	return nil
}

// forceAssemblyOffline is the shared forced-transition path used by the
// disconnect and orphan cascades. Runs under g.mu at commit time.
func (g *Grid) forceAssemblyOffline(a *Assembly, s *Source) {
	if a.receipt != nil {
		// Receipts are single-use and were checked unspent at resolve
		// time, so this release cannot fail.
		_ = s.energy.Release(a.receipt)
		g.appendEvent(evReleased(s, a, a.receipt.Amount()))
		a.receipt = nil
	}
	if a.status == StatusOnline {
		a.status = StatusOffline
		g.appendEvent(evStatusChanged(StatusOnline, StatusOffline, a.handle))
	}
}
