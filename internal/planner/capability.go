package planner

import "sync"

// CapabilityIndex is an optional upgrade path layered on top of Matcher's
// bare keyword-overlap scoring (spec §4.8 remains the default algorithm;
// this is additive, grounded on the teacher's capability-router health/load
// tracking). Consumers may use it to break ties between equally-scored
// presets competing for the same wave by preferring the healthiest,
// least-loaded one.
type CapabilityIndex struct {
	mu      sync.Mutex
	healthy map[string]bool
	load    map[string]int
}

// NewCapabilityIndex builds an index where every preset starts healthy and
// unloaded.
func NewCapabilityIndex() *CapabilityIndex {
	return &CapabilityIndex{healthy: make(map[string]bool), load: make(map[string]int)}
}

// MarkUnhealthy records that presetName should be avoided until
// MarkHealthy is called again.
func (c *CapabilityIndex) MarkUnhealthy(presetName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy[presetName] = false
}

// MarkHealthy clears any unhealthy marking for presetName.
func (c *CapabilityIndex) MarkHealthy(presetName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy[presetName] = true
}

// IsHealthy reports whether presetName has not been marked unhealthy. A
// preset never marked either way is considered healthy.
func (c *CapabilityIndex) IsHealthy(presetName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	healthy, known := c.healthy[presetName]
	return !known || healthy
}

// Acquire increments presetName's active-load counter and returns a
// release function the caller must call when the unit of work completes.
func (c *CapabilityIndex) Acquire(presetName string) func() {
	c.mu.Lock()
	c.load[presetName]++
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		if c.load[presetName] > 0 {
			c.load[presetName]--
		}
		c.mu.Unlock()
	}
}

// Load returns presetName's current active-load count.
func (c *CapabilityIndex) Load(presetName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load[presetName]
}

// Preferred picks the healthiest, least-loaded name among candidates,
// breaking remaining ties by candidate order. Returns "" for an empty
// input.
func (c *CapabilityIndex) Preferred(candidates []string) string {
	best := ""
	bestLoad := -1
	for _, name := range candidates {
		if !c.IsHealthy(name) {
			continue
		}
		load := c.Load(name)
		if bestLoad == -1 || load < bestLoad {
			best = name
			bestLoad = load
		}
	}
	if best == "" && len(candidates) > 0 {
		return candidates[0]
	}
	return best
}
