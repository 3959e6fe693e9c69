package metrics

import "time"

// Snapshot is the set of gauge-worthy counts the collector samples each
// tick. The caller (cmd/grainstore-server) is responsible for assembling
// one from the live tenant registry, heap allocator, and extension
// manager — this package has no dependency on those types, to keep
// pkg/metrics importable from every layer without a cycle.
type Snapshot struct {
	Tenants          int
	Tables           int
	Objects          int
	ExtensionsLoaded int
	TasksByState     map[string]int
	ReadyQueueDepth  int
	WaitingSetDepth  int
}

// Sampler produces the current Snapshot. Implemented by whatever owns the
// registry/allocator/scheduler in the running process.
type Sampler interface {
	Sample() Snapshot
}

// Collector periodically samples a Sampler and updates the package-level
// gauges.
type Collector struct {
	sampler Sampler
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(sampler Sampler) *Collector {
	return &Collector{
		sampler: sampler,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics every 5 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	snap := c.sampler.Sample()

	TenantsTotal.Set(float64(snap.Tenants))
	TablesTotal.Set(float64(snap.Tables))
	ObjectsTotal.Set(float64(snap.Objects))
	ExtensionsLoaded.Set(float64(snap.ExtensionsLoaded))
	TickReadyQueueDepth.Set(float64(snap.ReadyQueueDepth))
	TickWaitingSetDepth.Set(float64(snap.WaitingSetDepth))

	for _, state := range []string{"initialized", "runnable", "yielded", "waiting", "completed"} {
		TasksTotal.WithLabelValues(state).Set(float64(snap.TasksByState[state]))
	}
}
