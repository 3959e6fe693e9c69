// Package config loads the deployment-wide constants a grainstore
// process is started with: the fixed pushback record width (KEY_LEN,
// VAL_LEN, spec §4.K), tenant registry shard count, per-tick cycle
// budget, and listen address. Grounded on the teacher's YAML resource
// documents (cmd/warren's `apply.go` reads `apiVersion`/`kind`/`spec`
// via gopkg.in/yaml.v3); grainstore's config file is a single flat
// document instead of a resource envelope, since there is only one kind
// of thing to configure.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of deployment constants (spec §5).
type Config struct {
	// Listen is the UDP address the server binds for RPC traffic.
	Listen string `yaml:"listen"`

	// AdminListen is the address the admin API listens on.
	AdminListen string `yaml:"adminListen"`

	// MetricsListen serves /metrics and the liveness/readiness endpoints.
	MetricsListen string `yaml:"metricsListen"`

	// DataDir holds the extension-load cache (pkg/extcache).
	DataDir string `yaml:"dataDir"`

	// KeyLen and ValLen are the fixed widths every pushback record is
	// padded or truncated to (spec §4.K, Open Question ii: "fixed per
	// deployment; self-describing records are a forward-compatibility
	// extension" — not implemented here).
	KeyLen int `yaml:"keyLen"`
	ValLen int `yaml:"valLen"`

	// ShardCount is the tenant registry's shard count; must be a power
	// of two (pkg/tenant.NewRegistry).
	ShardCount int `yaml:"shardCount"`

	// TickInterval is the wall-clock period between scheduler ticks.
	TickInterval time.Duration `yaml:"tickInterval"`

	// TickBudget is the cycle budget for one tick's execute phase
	// (spec §4.J step 2).
	TickBudget uint64 `yaml:"tickBudget"`

	// TaskCyclesBudget is a task's whole-lifetime cycle budget, beyond
	// which a container task becomes pushback-ready (spec §4.H).
	TaskCyclesBudget uint64 `yaml:"taskCyclesBudget"`

	// ReceiveBatch bounds how many packets one tick's receive phase
	// drains (spec §4.J step 1).
	ReceiveBatch int `yaml:"receiveBatch"`

	// MaxResponsePayload bounds an invoke response body
	// (reqcontext.Context.Resp).
	MaxResponsePayload int `yaml:"maxResponsePayload"`
}

// Default returns the configuration grainstore-server runs with when no
// file is given.
func Default() Config {
	return Config{
		Listen:             "0.0.0.0:7070",
		AdminListen:        "127.0.0.1:7071",
		MetricsListen:      "127.0.0.1:7072",
		DataDir:            "./data",
		KeyLen:             64,
		ValLen:             1024,
		ShardCount:         32,
		TickInterval:       time.Millisecond,
		TickBudget:         100_000,
		TaskCyclesBudget:   10_000,
		ReceiveBatch:       256,
		MaxResponsePayload: 1 << 20,
	}
}

// Load reads and parses a YAML config file, starting from Default and
// overlaying whatever fields the file sets.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the system assumes.
func (c Config) Validate() error {
	if c.KeyLen <= 0 || c.ValLen <= 0 {
		return fmt.Errorf("config: keyLen and valLen must be positive")
	}
	if c.ShardCount <= 0 || c.ShardCount&(c.ShardCount-1) != 0 {
		return fmt.Errorf("config: shardCount must be a power of two, got %d", c.ShardCount)
	}
	if c.TickBudget == 0 {
		return fmt.Errorf("config: tickBudget must be positive")
	}
	return nil
}
