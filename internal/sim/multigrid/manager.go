package multigrid

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"fluxgrid.ai/internal/persistence/indexdb"
	persistlog "fluxgrid.ai/internal/persistence/log"
	"fluxgrid.ai/internal/protocol"
	"fluxgrid.ai/internal/sim/catalogs"
	"fluxgrid.ai/internal/sim/grid"
	"fluxgrid.ai/internal/sim/tuning"
)

// Options carries the process-wide pieces shared by every hosted grid.
// Catalogs and tuning are load-time immutable; grids never share state.
type Options struct {
	DataDir   string
	ConfigDir string
	Root      grid.Principal
	DisableDB bool
}

// Instance bundles one grid with its persistence attachments.
type Instance struct {
	Grid  *grid.Grid
	Index *indexdb.SQLiteIndex // nil when the sqlite index is disabled

	eventLog *persistlog.EventLogger
	auditLog *persistlog.AuditLogger
}

func (in *Instance) Close() {
	if in.eventLog != nil {
		_ = in.eventLog.Close()
	}
	if in.auditLog != nil {
		_ = in.auditLog.Close()
	}
	if in.Index != nil {
		_ = in.Index.Close()
	}
}

// Manager hosts one or more isolated grids behind a single process.
type Manager struct {
	defaultID string
	instances map[string]*Instance
}

func NewManager(cfg Config, cats *catalogs.Catalogs, tune tuning.Tuning, opts Options) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		defaultID: cfg.DefaultGridID,
		instances: make(map[string]*Instance, len(cfg.Grids)),
	}
	for _, spec := range cfg.Grids {
		in, err := newInstance(spec, cats, tune, opts)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("grid %q: %w", spec.ID, err)
		}
		m.instances[spec.ID] = in
	}
	return m, nil
}

func newInstance(spec GridSpec, cats *catalogs.Catalogs, tune tuning.Tuning, opts Options) (*Instance, error) {
	gridDir := filepath.Join(opts.DataDir, "grids", spec.ID)
	if err := os.MkdirAll(gridDir, 0o755); err != nil {
		return nil, err
	}

	in := &Instance{}
	if !opts.DisableDB && !spec.DisableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(gridDir, "index", "grid.sqlite"))
		if err != nil {
			return nil, err
		}
		in.Index = idx
		if err := idx.UpsertCatalogs(opts.ConfigDir, cats, tune); err != nil {
			idx.Close()
			return nil, err
		}
	}
	in.eventLog = persistlog.NewEventLogger(gridDir)
	in.auditLog = persistlog.NewAuditLogger(gridDir)

	journalCap := spec.JournalCap
	if journalCap == 0 {
		journalCap = tune.JournalCap
	}
	in.Grid = grid.New(grid.Config{
		ID:             spec.ID,
		JournalCap:     journalCap,
		BurnRateBaseMs: tune.BurnRateBaseMs,
	}, cats, grid.NewAuthority(opts.Root))
	in.Grid.SetEventSink(fanoutEventSink{log: in.eventLog, idx: in.Index})
	in.Grid.SetAuditSink(fanoutAuditSink{log: in.auditLog, idx: in.Index})
	return in, nil
}

func (m *Manager) DefaultID() string { return m.defaultID }

func (m *Manager) GridIDs() []string {
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Instance resolves a grid id; an empty id selects the default grid.
func (m *Manager) Instance(id string) *Instance {
	if id == "" {
		id = m.defaultID
	}
	return m.instances[id]
}

func (m *Manager) Close() {
	for _, in := range m.instances {
		in.Close()
	}
}

// fanoutEventSink fans events out to the JSONL log and the sqlite index.
// The JSONL log stays the source of truth; the index may drop under load.
type fanoutEventSink struct {
	log *persistlog.EventLogger
	idx *indexdb.SQLiteIndex
}

func (s fanoutEventSink) WriteEvent(e protocol.Event) error {
	if s.log != nil {
		_ = s.log.WriteEvent(e)
	}
	if s.idx != nil {
		_ = s.idx.WriteEvent(e)
	}
	return nil
}

type fanoutAuditSink struct {
	log *persistlog.AuditLogger
	idx *indexdb.SQLiteIndex
}

func (s fanoutAuditSink) WriteAudit(entry grid.AuditEntry) error {
	if s.log != nil {
		_ = s.log.WriteAudit(entry)
	}
	if s.idx != nil {
		_ = s.idx.WriteAudit(entry)
	}
	return nil
}
