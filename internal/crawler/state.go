package crawler

import (
	"context"
	"sync"

	"sitecrawl/internal/models"
)

type admission int

const (
	admitted admission = iota
	skipStopped
	skipSeen
	skipBudget
)

// state is the single piece of shared mutable data of a crawl run. Every
// read that drives a decision and every write happens under mu.
type state struct {
	mu        sync.Mutex
	slotFreed *sync.Cond // broadcast when a slot is released or the run ends
	maxPages  int
	remaining int // budget slots not yet reserved by an admitted unit
	seen      map[string]struct{}
	visited   map[string]models.PageRecord
	stopped   bool
	halted    bool // run context done, budget or caller
	cancel    context.CancelFunc

	failed  int
	skipped int
}

func newState(maxPages int, cancel context.CancelFunc) *state {
	s := &state{
		maxPages:  maxPages,
		remaining: maxPages,
		seen:      make(map[string]struct{}),
		visited:   make(map[string]models.PageRecord),
		cancel:    cancel,
	}
	s.slotFreed = sync.NewCond(&s.mu)
	return s
}

// admit is the check-and-reserve step: on success key is marked seen and
// one budget slot is held until record or release. When every free slot
// is held by a unit still in flight, admit waits for one of them to record
// or give its slot back.
func (s *state) admit(key string) admission {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.stopped || s.halted {
			s.skipped++
			return skipStopped
		}
		if _, ok := s.seen[key]; ok {
			s.skipped++
			return skipSeen
		}
		if len(s.visited) >= s.maxPages {
			s.stopLocked()
			s.skipped++
			return skipBudget
		}
		if s.remaining > 0 {
			break
		}
		s.slotFreed.Wait()
	}
	s.seen[key] = struct{}{}
	s.remaining--
	return admitted
}

// release hands back the slot of a unit that produced no record.
func (s *state) release(failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining++
	if failed {
		s.failed++
	}
	s.slotFreed.Broadcast()
}

// record stores rec under key and reports whether the crawl may continue.
func (s *state) record(key string, rec models.PageRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited[key] = rec
	if len(s.visited) >= s.maxPages {
		s.stopLocked()
	}
	return !s.stopped
}

func (s *state) stopLocked() {
	if !s.stopped {
		s.stopped = true
		s.cancel()
		s.slotFreed.Broadcast()
	}
}

// halt wakes every waiting unit once the run context is done.
func (s *state) halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
	s.slotFreed.Broadcast()
}

type stats struct {
	recorded int
	failed   int
	skipped  int
	stopped  bool
}

func (s *state) snapshot() stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stats{recorded: len(s.visited), failed: s.failed, skipped: s.skipped, stopped: s.stopped}
}
