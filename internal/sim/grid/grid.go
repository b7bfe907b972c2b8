package grid

import (
	"sync"
	"time"

	"fluxgrid.ai/internal/protocol"
	"fluxgrid.ai/internal/sim/catalogs"
)

type Config struct {
	ID             string
	JournalCap     int
	BurnRateBaseMs int64
}

// ProximityAuthorizer is the hook the external proof subsystem plugs in.
// The grid consults it before a consumer goes online; nil means allow.
type ProximityAuthorizer interface {
	Authorized(consumer Handle) bool
}

// EventSink receives every journal event (e.g. the JSONL writer and the
// sqlite index). May be nil.
type EventSink interface {
	WriteEvent(e protocol.Event) error
}

// AuditSink receives administrative audit entries. May be nil.
type AuditSink interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	Ms      int64          `json:"ms"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	Target  string         `json:"target,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Grid is one serialization domain: an orchestrator set, its consumers,
// and the capability/ledger state they share. Every public operation is
// atomic under g.mu; unrelated grids share nothing and run in parallel.
type Grid struct {
	mu sync.Mutex

	cfg  Config
	cats *catalogs.Catalogs

	authority    *Authority
	registry     *Registry
	requirements *RequirementTable

	sources    map[Handle]*Source
	assemblies map[Handle]*Assembly

	// Open cascade, nil when none. See obligation.go.
	cascade *worklist

	seq      uint64
	journal  []protocol.Event
	firstSeq uint64

	eventSink EventSink
	auditSink AuditSink
	proximity ProximityAuthorizer

	subscribers map[uint64]chan protocol.Event
	nextSubID   uint64

	nowMs func() int64
}

func New(cfg Config, cats *catalogs.Catalogs, authority *Authority) *Grid {
	if cfg.JournalCap <= 0 {
		cfg.JournalCap = 4096
	}
	if cfg.BurnRateBaseMs <= 0 {
		cfg.BurnRateBaseMs = 1000
	}
	seed := map[string]int64{}
	if cats != nil {
		for id, def := range cats.Consumers.Defs {
			seed[id] = def.RequiredUnits
		}
	}
	return &Grid{
		cfg:          cfg,
		cats:         cats,
		authority:    authority,
		registry:     NewRegistry(),
		requirements: NewRequirementTable(seed),
		sources:      map[Handle]*Source{},
		assemblies:   map[Handle]*Assembly{},
		firstSeq:     1,
		subscribers:  map[uint64]chan protocol.Event{},
		nowMs:        func() int64 { return time.Now().UnixMilli() },
	}
}

func (g *Grid) ID() string            { return g.cfg.ID }
func (g *Grid) Authority() *Authority { return g.authority }

// SetEventSink, SetAuditSink and SetProximityAuthorizer wire optional
// collaborators. Call before the grid starts taking operations.
func (g *Grid) SetEventSink(s EventSink)                     { g.eventSink = s }
func (g *Grid) SetAuditSink(s AuditSink)                     { g.auditSink = s }
func (g *Grid) SetProximityAuthorizer(p ProximityAuthorizer) { g.proximity = p }

// SetClock overrides the journal timestamp source. Tests only.
func (g *Grid) SetClock(nowMs func() int64) { g.nowMs = nowMs }

// Exists reports whether (namespace, itemKey) is claimed. Pure, public,
// no authorization.
func (g *Grid) Exists(namespace, itemKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.Exists(namespace, itemKey)
}

// CurrentSeq is the sequence number of the newest journal event.
func (g *Grid) CurrentSeq() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// EventsSince returns up to limit journal events with seq > cursor, plus
// the cursor to resume from. Events evicted from the in-memory journal
// are only available from the durable sinks.
func (g *Grid) EventsSince(cursor uint64, limit int) ([]protocol.EventBatchItem, uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursor + 1
	if start < g.firstSeq {
		start = g.firstSeq
	}
	out := []protocol.EventBatchItem{}
	next := cursor
	for seq := start; seq <= g.seq && len(out) < limit; seq++ {
		e := g.journal[seq-g.firstSeq]
		out = append(out, protocol.EventBatchItem{Cursor: seq, Event: e})
		next = seq
	}
	if next < cursor {
		next = cursor
	}
	return out, next
}

// Subscribe registers a live event channel for the observer feed. Slow
// subscribers drop events rather than stalling operations.
func (g *Grid) Subscribe(buffer int) (<-chan protocol.Event, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if buffer <= 0 {
		buffer = 64
	}
	id := g.nextSubID
	g.nextSubID++
	ch := make(chan protocol.Event, buffer)
	g.subscribers[id] = ch
	cancel := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if c, ok := g.subscribers[id]; ok {
			delete(g.subscribers, id)
			close(c)
		}
	}
	return ch, cancel
}

// appendEvent journals one event. Callers hold g.mu.
func (g *Grid) appendEvent(typ string, fields map[string]any) {
	g.seq++
	e := protocol.Event{
		"seq":  g.seq,
		"ms":   g.nowMs(),
		"type": typ,
	}
	for k, v := range fields {
		e[k] = v
	}
	g.journal = append(g.journal, e)
	for len(g.journal) > g.cfg.JournalCap {
		g.journal = g.journal[1:]
		g.firstSeq++
	}
	if g.eventSink != nil {
		_ = g.eventSink.WriteEvent(e)
	}
	for _, ch := range g.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

func (g *Grid) audit(actor Principal, action string, target Handle, reason string, details map[string]any) {
	if g.auditSink == nil {
		return
	}
	_ = g.auditSink.WriteAudit(AuditEntry{
		Ms:      g.nowMs(),
		Actor:   string(actor),
		Action:  action,
		Target:  string(target),
		Reason:  reason,
		Details: details,
	})
}

func (g *Grid) sourceByHandle(op string, h Handle) (*Source, error) {
	s, ok := g.sources[h]
	if !ok {
		return nil, errNotFound(op, "unknown source %s", h)
	}
	return s, nil
}

func (g *Grid) assemblyByHandle(op string, h Handle) (*Assembly, error) {
	a, ok := g.assemblies[h]
	if !ok {
		return nil, errNotFound(op, "unknown assembly %s", h)
	}
	return a, nil
}
