package multigrid

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathYieldsSingleGrid(t *testing.T) {
	cfg, err := Load("", "alpha")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultGridID != "alpha" {
		t.Fatalf("default = %q, want alpha", cfg.DefaultGridID)
	}
	if len(cfg.Grids) != 1 || cfg.Grids[0].ID != "alpha" {
		t.Fatalf("grids = %+v", cfg.Grids)
	}
}

func TestLoadParsesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grids.yaml")
	body := `default_grid_id: g2
grids:
  - id: g2
  - id: g1
    journal_cap: 128
    disable_db: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, "ignored")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultGridID != "g2" {
		t.Fatalf("default = %q", cfg.DefaultGridID)
	}
	// Normalize sorts by id.
	if cfg.Grids[0].ID != "g1" || cfg.Grids[1].ID != "g2" {
		t.Fatalf("grids = %+v", cfg.Grids)
	}
	if cfg.Grids[0].JournalCap != 128 || !cfg.Grids[0].DisableDB {
		t.Fatalf("g1 spec = %+v", cfg.Grids[0])
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no grids", Config{DefaultGridID: "g"}},
		{"empty id", Config{DefaultGridID: "g", Grids: []GridSpec{{ID: ""}}}},
		{"slash in id", Config{DefaultGridID: "a/b", Grids: []GridSpec{{ID: "a/b"}}}},
		{"duplicate id", Config{DefaultGridID: "g", Grids: []GridSpec{{ID: "g"}, {ID: "g"}}}},
		{"negative cap", Config{DefaultGridID: "g", Grids: []GridSpec{{ID: "g", JournalCap: -1}}}},
		{"unknown default", Config{DefaultGridID: "x", Grids: []GridSpec{{ID: "g"}}}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
