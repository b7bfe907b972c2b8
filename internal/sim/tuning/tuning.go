package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// Fuel accounting defaults. Per-fuel efficiency comes from the
	// fuel catalog; these bound what the catalog may configure.
	BurnRateBaseMs       int64 `yaml:"burn_rate_base_ms"`
	EfficiencyPercentMin int64 `yaml:"efficiency_percent_min"`
	EfficiencyPercentMax int64 `yaml:"efficiency_percent_max"`

	// In-memory journal cap; older events are still durable in the
	// JSONL log and the sqlite index.
	JournalCap int `yaml:"journal_cap"`

	Feed FeedLimits `yaml:"feed"`
}

type FeedLimits struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
	BatchMax         int `yaml:"batch_max"`
	WriteTimeoutMs   int `yaml:"write_timeout_ms"`
}

func Default() Tuning {
	return Tuning{
		ProtocolVersion:      "0.3",
		BurnRateBaseMs:       1000,
		EfficiencyPercentMin: 10,
		EfficiencyPercentMax: 100,
		JournalCap:           4096,
		Feed: FeedLimits{
			SubscriberBuffer: 256,
			BatchMax:         500,
			WriteTimeoutMs:   5000,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.EfficiencyPercentMin < 1 || t.EfficiencyPercentMax > 100 ||
		t.EfficiencyPercentMin > t.EfficiencyPercentMax {
		return t, fmt.Errorf("tuning.yaml: bad efficiency bounds [%d,%d]",
			t.EfficiencyPercentMin, t.EfficiencyPercentMax)
	}
	if t.BurnRateBaseMs <= 0 {
		return t, fmt.Errorf("tuning.yaml: burn_rate_base_ms must be positive")
	}
	// The least-efficient fuel must still yield a whole-millisecond
	// burn interval.
	if t.BurnRateBaseMs*t.EfficiencyPercentMin/100 < 1 {
		return t, fmt.Errorf("tuning.yaml: burn_rate_base_ms %d too small for efficiency_percent_min %d",
			t.BurnRateBaseMs, t.EfficiencyPercentMin)
	}
	return t, nil
}
