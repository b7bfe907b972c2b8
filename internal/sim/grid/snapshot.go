package grid

import "sort"

// Read models for the admin surface and the sqlite index. All snapshots
// are value copies; mutating them never touches grid state.

type SourceState struct {
	Handle            string    `json:"handle"`
	Class             string    `json:"class"`
	Status            string    `json:"status"`
	MaxProduction     int64     `json:"max_production"`
	CurrentProduction int64     `json:"current_production"`
	ReservedTotal     int64     `json:"reserved_total"`
	Connected         []string  `json:"connected,omitempty"`
	Fuel              FuelState `json:"fuel"`
}

type AssemblyState struct {
	Handle         string `json:"handle"`
	Kind           string `json:"kind"`
	ConsumerType   string `json:"consumer_type"`
	Status         string `json:"status"`
	SourceRef      string `json:"source_ref,omitempty"`
	ReservedAmount int64  `json:"reserved_amount,omitempty"`
}

type GridState struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Sources    []SourceState   `json:"sources"`
	Assemblies []AssemblyState `json:"assemblies"`
}

func (g *Grid) sourceStateLocked(s *Source) SourceState {
	connected := make([]string, 0, len(s.connected))
	for h := range s.connected {
		connected = append(connected, string(h))
	}
	sort.Strings(connected)
	return SourceState{
		Handle:            string(s.handle),
		Class:             s.class,
		Status:            string(s.status),
		MaxProduction:     s.energy.MaxProduction(),
		CurrentProduction: s.energy.CurrentProduction(),
		ReservedTotal:     s.energy.ReservedTotal(),
		Connected:         connected,
		Fuel: FuelState{
			FuelType:            s.fuel.FuelType(),
			Quantity:            s.fuel.Quantity(),
			MaxCapacity:         s.fuel.MaxCapacity(),
			Burning:             s.fuel.Burning(),
			BurnStartMs:         s.fuel.BurnStartMs(),
			LeftoverMs:          s.fuel.LeftoverMs(),
			EffectiveIntervalMs: s.fuel.EffectiveIntervalMs(),
		},
	}
}

func (g *Grid) assemblyStateLocked(a *Assembly) AssemblyState {
	st := AssemblyState{
		Handle:       string(a.handle),
		Kind:         string(a.kind),
		ConsumerType: a.consumerType,
		Status:       string(a.status),
		SourceRef:    string(a.source),
	}
	if a.receipt != nil && !a.receipt.Released() {
		st.ReservedAmount = a.receipt.Amount()
	}
	return st
}

func (g *Grid) SourceSnapshot(source Handle) (SourceState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.sourceByHandle("grid.source_snapshot", source)
	if err != nil {
		return SourceState{}, err
	}
	return g.sourceStateLocked(s), nil
}

func (g *Grid) AssemblySnapshot(assembly Handle) (AssemblyState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, err := g.assemblyByHandle("grid.assembly_snapshot", assembly)
	if err != nil {
		return AssemblyState{}, err
	}
	return g.assemblyStateLocked(a), nil
}

// Snapshot captures the whole grid, deterministically ordered.
func (g *Grid) Snapshot() GridState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := GridState{ID: g.cfg.ID, Seq: g.seq}
	for _, s := range g.sources {
		st.Sources = append(st.Sources, g.sourceStateLocked(s))
	}
	sort.Slice(st.Sources, func(i, j int) bool { return st.Sources[i].Handle < st.Sources[j].Handle })
	for _, a := range g.assemblies {
		st.Assemblies = append(st.Assemblies, g.assemblyStateLocked(a))
	}
	sort.Slice(st.Assemblies, func(i, j int) bool { return st.Assemblies[i].Handle < st.Assemblies[j].Handle })
	return st
}
