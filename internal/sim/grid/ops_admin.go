package grid

// Administrative entry points. Every one of these re-checks the caller
// against the authority before touching state and leaves an audit entry.

func (g *Grid) AddSponsor(caller, p Principal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade("grid.add_sponsor"); err != nil {
		return err
	}
	if err := g.authority.AddSponsor(caller, p); err != nil {
		return err
	}
	g.audit(caller, "ADD_SPONSOR", "", "", map[string]any{"principal": string(p)})
	return nil
}

func (g *Grid) RemoveSponsor(caller, p Principal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade("grid.remove_sponsor"); err != nil {
		return err
	}
	if err := g.authority.RemoveSponsor(caller, p); err != nil {
		return err
	}
	g.audit(caller, "REMOVE_SPONSOR", "", "", map[string]any{"principal": string(p)})
	return nil
}

func (g *Grid) AddTrustedSigner(caller Principal, signer string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.authority.AddTrustedSigner(caller, signer); err != nil {
		return err
	}
	g.audit(caller, "ADD_TRUSTED_SIGNER", "", "", map[string]any{"signer": signer})
	return nil
}

func (g *Grid) RemoveTrustedSigner(caller Principal, signer string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.authority.RemoveTrustedSigner(caller, signer); err != nil {
		return err
	}
	g.audit(caller, "REMOVE_TRUSTED_SIGNER", "", "", map[string]any{"signer": signer})
	return nil
}

// SetRequirement overrides the catalog-seeded energy demand of a
// consumer type. Sponsor-gated; applies to future reservations only.
func (g *Grid) SetRequirement(caller Principal, consumerType string, units int64) error {
	const op = "grid.set_requirement"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	if err := g.authority.VerifySponsor(caller); err != nil {
		return err
	}
	if err := g.requirements.Set(consumerType, units); err != nil {
		return err
	}
	g.audit(caller, "SET_REQUIREMENT", "", "", map[string]any{
		"consumer_type": consumerType,
		"units":         units,
	})
	return nil
}

func (g *Grid) RemoveRequirement(caller Principal, consumerType string) error {
	const op = "grid.remove_requirement"
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardCascade(op); err != nil {
		return err
	}
	if err := g.authority.VerifySponsor(caller); err != nil {
		return err
	}
	if err := g.requirements.Remove(consumerType); err != nil {
		return err
	}
	g.audit(caller, "REMOVE_REQUIREMENT", "", "", map[string]any{"consumer_type": consumerType})
	return nil
}

// Requirement looks up the configured demand for a consumer type.
func (g *Grid) Requirement(consumerType string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requirements.Lookup(consumerType)
}
