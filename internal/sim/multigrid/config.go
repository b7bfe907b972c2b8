package multigrid

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config declares the set of grids one server process hosts. Each grid is an
// isolated serialization domain with its own journal, logs, and index.
type Config struct {
	DefaultGridID string     `yaml:"default_grid_id"`
	Grids         []GridSpec `yaml:"grids"`
}

type GridSpec struct {
	ID         string `yaml:"id"`
	JournalCap int    `yaml:"journal_cap,omitempty"`
	DisableDB  bool   `yaml:"disable_db,omitempty"`
}

// Load reads a grids.yaml. An empty path yields the single-grid default.
func Load(path, fallbackGridID string) (Config, error) {
	cfg := defaults(fallbackGridID)
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("grids.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("grids.yaml: %w", err)
	}
	return cfg, nil
}

func defaults(gridID string) Config {
	if strings.TrimSpace(gridID) == "" {
		gridID = "grid-1"
	}
	return Config{
		DefaultGridID: gridID,
		Grids:         []GridSpec{{ID: gridID}},
	}
}

func (c *Config) Normalize() {
	for i := range c.Grids {
		c.Grids[i].ID = strings.TrimSpace(c.Grids[i].ID)
	}
	sort.Slice(c.Grids, func(i, j int) bool { return c.Grids[i].ID < c.Grids[j].ID })
	c.DefaultGridID = strings.TrimSpace(c.DefaultGridID)
	if c.DefaultGridID == "" && len(c.Grids) > 0 {
		c.DefaultGridID = c.Grids[0].ID
	}
}

func (c Config) Validate() error {
	if len(c.Grids) == 0 {
		return fmt.Errorf("no grids configured")
	}
	seen := make(map[string]bool, len(c.Grids))
	for _, g := range c.Grids {
		if g.ID == "" {
			return fmt.Errorf("grid with empty id")
		}
		if strings.ContainsAny(g.ID, "/\\ ") {
			return fmt.Errorf("grid id %q: must not contain slashes or spaces", g.ID)
		}
		if seen[g.ID] {
			return fmt.Errorf("duplicate grid id %q", g.ID)
		}
		seen[g.ID] = true
		if g.JournalCap < 0 {
			return fmt.Errorf("grid %q: journal_cap must be >= 0", g.ID)
		}
	}
	if !seen[c.DefaultGridID] {
		return fmt.Errorf("default_grid_id %q is not a configured grid", c.DefaultGridID)
	}
	return nil
}
