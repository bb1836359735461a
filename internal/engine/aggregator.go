package engine

import (
	"sort"
	"sync"
)

// Candidate is a single move notification streamed by the search backend
// during one analysis call. Two candidates are the same move when their Move
// strings are equal; Score and Depth are metadata, not identity.
type Candidate struct {
	// Move in long algebraic (UCI) notation, e.g. "e2e4".
	Move string
	// Depth is the search iteration that produced this candidate.
	Depth int
	// SelDepth is the selective depth reached for this line.
	SelDepth int
	// Score is the backend evaluation, larger is better for the side to move.
	Score float64
}

// aggregator collects candidates for a single in-flight search. Each search
// gets its own instance. Entries are kept sorted ascending by score, with
// ties inserted after existing equal scores, so the container behaves like a
// score-keyed multimap.
//
// The backend delivers candidates from its own goroutine, so every method is
// safe for concurrent use.
type aggregator struct {
	mu      sync.Mutex
	entries []Candidate
}

func newAggregator() *aggregator {
	return &aggregator{}
}

// onCandidate records one streamed candidate.
//
// Before inserting, the depth of the current highest-scoring entry is compared
// against the new candidate's depth; a deeper candidate invalidates the whole
// set, because a new iteration supersedes everything collected at a shallower
// one. The comparison is deliberately against the best-scoring entry, not the
// most recently inserted one; callers depend on that exact rule.
func (a *aggregator) onCandidate(c Candidate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.entries) > 0 {
		priorDepth := a.entries[len(a.entries)-1].Depth
		if c.Depth > priorDepth {
			a.entries = a.entries[:0]
		}
	}

	i := sort.Search(len(a.entries), func(i int) bool {
		return a.entries[i].Score > c.Score
	})
	a.entries = append(a.entries, Candidate{})
	copy(a.entries[i+1:], a.entries[i:])
	a.entries[i] = c
}

// drainRanked produces the final ordered move list for the search and empties
// the set. The walk is ascending by score, keeping the first-encountered
// instance of each repeated move (keepFirstAscending: a repeated move keeps
// its lowest-scoring entry), and the result is then reversed so index 0 holds
// the highest-scoring candidate.
func (a *aggregator) drainRanked() []Candidate {
	a.mu.Lock()
	defer a.mu.Unlock()

	ranked := make([]Candidate, 0, len(a.entries))
	for _, c := range a.entries {
		if containsMove(ranked, c.Move) {
			continue
		}
		ranked = append(ranked, c)
	}
	a.entries = a.entries[:0]

	for i, j := 0, len(ranked)-1; i < j; i, j = i+1, j-1 {
		ranked[i], ranked[j] = ranked[j], ranked[i]
	}
	return ranked
}

// size reports the number of collected entries, duplicates included.
func (a *aggregator) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func containsMove(cs []Candidate, move string) bool {
	for _, c := range cs {
		if c.Move == move {
			return true
		}
	}
	return false
}
