package relay

import "sync"

// processedCodeSet remembers authorization codes that were exchanged successfully.
// Advisory only: the provider rejects code reuse on its own, this exists so replays
// show up in logs and metrics. Insertion order is kept so pruning drops the oldest
// entries first.
type processedCodeSet struct {
	mutex    sync.Mutex
	members  map[string]struct{}
	ordered  []string
	capacity int
}

func newProcessedCodeSet(capacity int) *processedCodeSet {
	return &processedCodeSet{
		members:  make(map[string]struct{}),
		capacity: capacity,
	}
}

// Add records a code, pruning the oldest half once the capacity is exceeded.
func (set *processedCodeSet) Add(code string) {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	if _, exists := set.members[code]; exists {
		return
	}
	set.members[code] = struct{}{}
	set.ordered = append(set.ordered, code)
	if len(set.ordered) <= set.capacity {
		return
	}
	keepFrom := len(set.ordered) / 2
	for _, oldCode := range set.ordered[:keepFrom] {
		delete(set.members, oldCode)
	}
	set.ordered = append([]string(nil), set.ordered[keepFrom:]...)
}

// Contains reports whether a code was already exchanged.
func (set *processedCodeSet) Contains(code string) bool {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	_, exists := set.members[code]
	return exists
}

// Len returns the current number of remembered codes.
func (set *processedCodeSet) Len() int {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	return len(set.ordered)
}
