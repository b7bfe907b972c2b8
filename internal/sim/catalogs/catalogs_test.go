package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadShippedCatalogs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	src, ok := c.Sources.Defs["MICRO_REACTOR"]
	if !ok {
		t.Fatalf("MICRO_REACTOR missing from source catalog")
	}
	if src.MaxProduction != 100 || src.FuelCapacity != 100 {
		t.Fatalf("MICRO_REACTOR = %+v", src)
	}

	con, ok := c.Consumers.Defs["TURRET"]
	if !ok {
		t.Fatalf("TURRET missing from consumer catalog")
	}
	if con.Kind != "DEFENSE" || con.RequiredUnits != 40 {
		t.Fatalf("TURRET = %+v", con)
	}

	fuel, ok := c.Fuels.Defs["CRUDE_OIL"]
	if !ok {
		t.Fatalf("CRUDE_OIL missing from fuel catalog")
	}
	if fuel.EfficiencyPercent != 50 {
		t.Fatalf("CRUDE_OIL efficiency = %d", fuel.EfficiencyPercent)
	}
	// REFINED_OIL carries no override; runtime treats that as 100.
	if c.Fuels.Defs["REFINED_OIL"].EfficiencyPercent != 0 {
		t.Fatalf("REFINED_OIL should carry no override")
	}

	if len(c.CombinedDigest()) != 64 {
		t.Fatalf("combined digest = %q", c.CombinedDigest())
	}
	c2, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("Load again: %v", err)
	}
	if c.CombinedDigest() != c2.CombinedDigest() {
		t.Fatalf("digest not stable across loads")
	}
}

func TestSortedConsumerIDs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ids := c.Consumers.SortedConsumerIDs()
	if len(ids) == 0 {
		t.Fatalf("no consumer ids")
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("ids not sorted: %v", ids)
		}
	}
}

// writeCatalogRoot lays out <root>/configs and <root>/schemas with
// accept-all schemas so def-level validation is what gets exercised.
func writeCatalogRoot(t *testing.T, consumers, fuels, sources string) string {
	t.Helper()
	root := t.TempDir()
	configDir := filepath.Join(root, "configs")
	schemaDir := filepath.Join(root, "schemas")
	for _, d := range []string{configDir, schemaDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	files := map[string]string{
		filepath.Join(configDir, "consumers.json"):        consumers,
		filepath.Join(configDir, "fuels.json"):            fuels,
		filepath.Join(configDir, "sources.json"):          sources,
		filepath.Join(schemaDir, "consumers.schema.json"): "{}",
		filepath.Join(schemaDir, "fuels.schema.json"):     "{}",
		filepath.Join(schemaDir, "sources.schema.json"):   "{}",
	}
	for path, body := range files {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return configDir
}

const (
	okConsumers = `[{"id":"X","kind":"STORAGE","required_units":1}]`
	okFuels     = `[{"id":"F"}]`
	okSources   = `[{"id":"S","max_production":10,"fuel_capacity":0}]`
)

func TestLoadRejectsBadDefs(t *testing.T) {
	cases := []struct {
		name                      string
		consumers, fuels, sources string
	}{
		{"unknown kind", `[{"id":"X","kind":"LASER","required_units":1}]`, okFuels, okSources},
		{"negative units", `[{"id":"X","kind":"STORAGE","required_units":-1}]`, okFuels, okSources},
		{"empty consumer id", `[{"id":"","kind":"STORAGE","required_units":1}]`, okFuels, okSources},
		{"efficiency below floor", okConsumers, `[{"id":"F","efficiency_percent":5}]`, okSources},
		{"zero production", okConsumers, okFuels, `[{"id":"S","max_production":0,"fuel_capacity":0}]`},
		{"negative capacity", okConsumers, okFuels, `[{"id":"S","max_production":10,"fuel_capacity":-1}]`},
	}
	for _, tc := range cases {
		configDir := writeCatalogRoot(t, tc.consumers, tc.fuels, tc.sources)
		if _, err := Load(configDir); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
