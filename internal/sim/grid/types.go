package grid

// Status is the shared lifecycle of orchestrators and assemblies.
// Anchored behaves as offline; it only exists so a freshly created
// entity is distinguishable from one that has been online before.
type Status string

const (
	StatusAnchored  Status = "ANCHORED"
	StatusOnline    Status = "ONLINE"
	StatusOffline   Status = "OFFLINE"
	StatusDestroyed Status = "DESTROYED"
)

func offlineLike(s Status) bool {
	return s == StatusAnchored || s == StatusOffline
}

// Source is a connection orchestrator: it owns the energy/fuel ledgers
// of one power hub and the set of consumers drawing from it.
type Source struct {
	handle    Handle
	class     string
	status    Status
	energy    *EnergySource
	fuel      *FuelTank
	connected map[Handle]bool
}

func (s *Source) Handle() Handle        { return s.handle }
func (s *Source) Class() string         { return s.class }
func (s *Source) Status() Status        { return s.status }
func (s *Source) Energy() *EnergySource { return s.energy }
func (s *Source) Fuel() *FuelTank       { return s.fuel }

// Connected lists the connected consumer handles (unordered).
func (s *Source) Connected() []Handle {
	out := make([]Handle, 0, len(s.connected))
	for h := range s.connected {
		out = append(out, h)
	}
	return out
}

// Assembly is a dependent consumer entity: storage-like, transit-like or
// defense-like. While online it holds a reservation against its source.
type Assembly struct {
	handle       Handle
	kind         Kind
	consumerType string
	status       Status
	source       Handle // "" when not connected to any orchestrator
	receipt      *Reservation
}

func (a *Assembly) Handle() Handle       { return a.handle }
func (a *Assembly) Kind() Kind           { return a.kind }
func (a *Assembly) ConsumerType() string { return a.consumerType }
func (a *Assembly) Status() Status       { return a.status }

// SourceRef is the orchestrator currently powering this assembly, or ""
// when disconnected/orphaned.
func (a *Assembly) SourceRef() Handle { return a.source }
