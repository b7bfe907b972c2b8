package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Catalogs struct {
	Consumers ConsumerCatalog
	Fuels     FuelCatalog
	Sources   SourceCatalog
}

// ConsumerCatalog seeds the energy requirement table: how many production
// units each consumer type demands while online. Sponsors may override
// entries at runtime; the catalog is the admin-managed baseline.
type ConsumerCatalog struct {
	Defs   map[string]ConsumerDef
	Digest string
}

type ConsumerDef struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"` // "STORAGE","TRANSIT","DEFENSE"
	RequiredUnits int64  `json:"required_units"`
}

type FuelCatalog struct {
	Defs   map[string]FuelDef
	Digest string
}

type FuelDef struct {
	ID                string `json:"id"`
	EfficiencyPercent int64  `json:"efficiency_percent,omitempty"` // 0 => default 100
}

type SourceCatalog struct {
	Defs   map[string]SourceDef
	Digest string
}

type SourceDef struct {
	ID            string `json:"id"`
	MaxProduction int64  `json:"max_production"`
	FuelCapacity  int64  `json:"fuel_capacity"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	schemaDir := filepath.Join(configDir, "..", "schemas")

	if err := loadConsumers(filepath.Join(configDir, "consumers.json"), schemaDir, &c.Consumers); err != nil {
		return nil, err
	}
	if err := loadFuels(filepath.Join(configDir, "fuels.json"), schemaDir, &c.Fuels); err != nil {
		return nil, err
	}
	if err := loadSources(filepath.Join(configDir, "sources.json"), schemaDir, &c.Sources); err != nil {
		return nil, err
	}

	return &c, nil
}

// CombinedDigest identifies the full catalog set for feed bootstraps.
func (c *Catalogs) CombinedDigest() string {
	joined, _ := json.Marshal([]string{c.Consumers.Digest, c.Fuels.Digest, c.Sources.Digest})
	return sha256Hex(joined)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func validate(raw []byte, schemaDir, schemaName string) error {
	schema, err := jsonschema.Compile(filepath.Join(schemaDir, schemaName))
	if err != nil {
		return fmt.Errorf("%s: %w", schemaName, err)
	}
	var doc any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", schemaName, err)
	}
	return nil
}

func loadConsumers(path, schemaDir string, out *ConsumerCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate(raw, schemaDir, "consumers.schema.json"); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ConsumerDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("consumers.json: %w", err)
	}
	out.Defs = map[string]ConsumerDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("consumers.json: empty id")
		}
		if d.RequiredUnits < 0 {
			return fmt.Errorf("consumers.json: %s: negative required_units", d.ID)
		}
		switch d.Kind {
		case "STORAGE", "TRANSIT", "DEFENSE":
		default:
			return fmt.Errorf("consumers.json: %s: unknown kind %q", d.ID, d.Kind)
		}
		out.Defs[d.ID] = d
	}
	return nil
}

func loadFuels(path, schemaDir string, out *FuelCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate(raw, schemaDir, "fuels.schema.json"); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []FuelDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("fuels.json: %w", err)
	}
	out.Defs = map[string]FuelDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("fuels.json: empty id")
		}
		if d.EfficiencyPercent != 0 && (d.EfficiencyPercent < 10 || d.EfficiencyPercent > 100) {
			return fmt.Errorf("fuels.json: %s: efficiency_percent out of [10,100]", d.ID)
		}
		out.Defs[d.ID] = d
	}
	return nil
}

func loadSources(path, schemaDir string, out *SourceCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate(raw, schemaDir, "sources.schema.json"); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []SourceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("sources.json: %w", err)
	}
	out.Defs = map[string]SourceDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("sources.json: empty id")
		}
		if d.MaxProduction <= 0 {
			return fmt.Errorf("sources.json: %s: max_production must be positive", d.ID)
		}
		if d.FuelCapacity < 0 {
			return fmt.Errorf("sources.json: %s: negative fuel_capacity", d.ID)
		}
		out.Defs[d.ID] = d
	}
	return nil
}

// SortedConsumerIDs is used by deterministic dumps and tests.
func (c *ConsumerCatalog) SortedConsumerIDs() []string {
	ids := make([]string, 0, len(c.Defs))
	for id := range c.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
