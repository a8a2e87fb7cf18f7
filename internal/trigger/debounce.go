package trigger

import "sync"

// DebounceStore tracks, per rule and node, how many consecutive passes matched.
// It is owned by the orchestrator; the evaluation core stays stateless.
type DebounceStore interface {
	// Observe records one pass: counters of matched nodes are incremented,
	// counters of skipped nodes are kept as they were, and counters of every
	// other node of the rule are cleared.
	Observe(ruleID string, matched, skipped []string) []Match
	// Reset clears every counter of a rule.
	Reset(ruleID string)
	// Prune drops state for rules not in active.
	Prune(active []string)
}

// MemoryDebounce is an in-process DebounceStore. It is safe for concurrent use.
type MemoryDebounce struct {
	mu     sync.Mutex
	counts map[string]map[string]int // rule id → certname → consecutive passes
}

// NewMemoryDebounce creates an empty store.
func NewMemoryDebounce() *MemoryDebounce {
	return &MemoryDebounce{counts: make(map[string]map[string]int)}
}

func (d *MemoryDebounce) Observe(ruleID string, matched, skipped []string) []Match {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.counts[ruleID]
	next := make(map[string]int, len(matched)+len(skipped))
	for _, certname := range skipped {
		if n, ok := prev[certname]; ok {
			next[certname] = n
		}
	}
	out := make([]Match, 0, len(matched))
	seen := make(map[string]struct{}, len(matched))
	for _, certname := range matched {
		if _, dup := seen[certname]; dup {
			continue
		}
		seen[certname] = struct{}{}
		n := prev[certname] + 1
		next[certname] = n
		out = append(out, Match{Certname: certname, Count: n})
	}
	d.counts[ruleID] = next
	return out
}

func (d *MemoryDebounce) Reset(ruleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.counts, ruleID)
}

func (d *MemoryDebounce) Prune(active []string) {
	keep := make(map[string]struct{}, len(active))
	for _, id := range active {
		keep[id] = struct{}{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.counts {
		if _, ok := keep[id]; !ok {
			delete(d.counts, id)
		}
	}
}

// Count returns the current counter of one node, for diagnostics.
func (d *MemoryDebounce) Count(ruleID, certname string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[ruleID][certname]
}
