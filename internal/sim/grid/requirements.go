package grid

// RequirementTable maps consumer type -> energy units demanded while
// online. Seeded from the consumer catalog, mutated by sponsors at
// runtime, independent of any single entity's lifecycle.
type RequirementTable struct {
	units map[string]int64
}

func NewRequirementTable(seed map[string]int64) *RequirementTable {
	t := &RequirementTable{units: map[string]int64{}}
	for typ, u := range seed {
		t.units[typ] = u
	}
	return t
}

func (t *RequirementTable) Set(consumerType string, units int64) error {
	const op = "requirements.set"
	if consumerType == "" {
		return errInvalidState(op, "empty consumer type")
	}
	if units < 0 {
		return errInvalidState(op, "negative units %d", units)
	}
	t.units[consumerType] = units
	return nil
}

func (t *RequirementTable) Remove(consumerType string) error {
	const op = "requirements.remove"
	if _, ok := t.units[consumerType]; !ok {
		return errNotFound(op, "no requirement for %q", consumerType)
	}
	delete(t.units, consumerType)
	return nil
}

func (t *RequirementTable) Lookup(consumerType string) (int64, error) {
	u, ok := t.units[consumerType]
	if !ok {
		return 0, errNotFound("requirements.lookup", "no requirement for %q", consumerType)
	}
	return u, nil
}
