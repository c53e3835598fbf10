package graphrag

import "sync"

// Capability is a hyperedge over the tool graph: a named grouping of
// child tools and/or child capabilities (spec §3 Hypergraph).
type Capability struct {
	ID             string
	ChildTools     []string
	ChildCapabilities []string
	HierarchyLevel int
	SuccessRate    float64
}

// Hypergraph tracks capabilities and their direct-membership incidence
// relation (no transitive closure, per spec §3).
type Hypergraph struct {
	mu           sync.RWMutex
	capabilities map[string]*Capability
	dirty        bool
}

// NewHypergraph returns an empty capability hypergraph.
func NewHypergraph() *Hypergraph {
	return &Hypergraph{capabilities: make(map[string]*Capability)}
}

// Upsert adds or replaces a capability's membership, marking the
// hierarchy dirty so it is recomputed lazily on next use (spec §4.5.3
// "recomputed lazily when the graph is marked dirty").
func (h *Hypergraph) Upsert(cap Capability) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := cap
	h.capabilities[cap.ID] = &c
	h.dirty = true
}

// RecordOutcome updates a capability's rolling success rate with one new
// outcome, using a simple exponential moving average.
func (h *Hypergraph) RecordOutcome(id string, success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.capabilities[id]
	if !ok {
		return
	}
	const alpha = 0.2
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	c.SuccessRate = (1-alpha)*c.SuccessRate + alpha*outcome
}

// Get returns a snapshot copy of one capability.
func (h *Hypergraph) Get(id string) (Capability, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.capabilities[id]
	if !ok {
		return Capability{}, false
	}
	return *c, true
}

// All returns a snapshot of every capability.
func (h *Hypergraph) All() []Capability {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Capability, 0, len(h.capabilities))
	for _, c := range h.capabilities {
		out = append(out, *c)
	}
	return out
}

// Dirty reports whether capability membership changed since the last
// ComputeHierarchy call.
func (h *Hypergraph) Dirty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dirty
}

// ComputeHierarchy assigns HierarchyLevel to every capability: level-0
// capabilities contain only tools; level-k contains at least one
// level-(k-1) child capability; mixed children take max(child level)+1
// (spec §4.5.3 "Hierarchy").
func (h *Hypergraph) ComputeHierarchy() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	levels := make(map[string]int, len(h.capabilities))
	var resolve func(id string, visiting map[string]bool) int
	resolve = func(id string, visiting map[string]bool) int {
		if lvl, ok := levels[id]; ok {
			return lvl
		}
		c, ok := h.capabilities[id]
		if !ok {
			return 0
		}
		if visiting[id] {
			// Cyclic capability membership: treat as level 0 to avoid
			// infinite recursion; malformed input, not a normal case.
			return 0
		}
		visiting[id] = true

		if len(c.ChildCapabilities) == 0 {
			levels[id] = 0
			return 0
		}
		maxChild := -1
		for _, childID := range c.ChildCapabilities {
			lvl := resolve(childID, visiting)
			if lvl > maxChild {
				maxChild = lvl
			}
		}
		lvl := maxChild + 1
		levels[id] = lvl
		return lvl
	}

	for id := range h.capabilities {
		resolve(id, map[string]bool{})
	}
	for id, lvl := range levels {
		h.capabilities[id].HierarchyLevel = lvl
	}
	h.dirty = false
	return levels
}

// MaxLevel returns the highest hierarchy level currently assigned.
func (h *Hypergraph) MaxLevel() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	max := 0
	for _, c := range h.capabilities {
		if c.HierarchyLevel > max {
			max = c.HierarchyLevel
		}
	}
	return max
}

// AtLevel returns every capability whose HierarchyLevel equals
// level, together with their tool and capability members — the message
// passing input set for one upward/downward SHGAT pass.
func (h *Hypergraph) AtLevel(level int) []Capability {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Capability
	for _, c := range h.capabilities {
		if c.HierarchyLevel == level {
			out = append(out, *c)
		}
	}
	return out
}
