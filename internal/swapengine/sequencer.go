package swapengine

import (
	"sync"
	"time"
)

// Sequencer hands out increasing tickets so that only the most recently
// issued request of a session may publish its result.
type Sequencer struct {
	mu       sync.Mutex
	latest   uint64
	lastUsed time.Time
}

// Next issues a new ticket, superseding every earlier one
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	s.lastUsed = time.Now()
	return s.latest
}

// IsLatest reports whether ticket is still the newest issued
func (s *Sequencer) IsLatest(ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ticket == s.latest
}

func (s *Sequencer) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Sessions keeps one Sequencer per client session. Idle sessions are swept
// once the table grows past maxSessions.
type Sessions struct {
	mu          sync.Mutex
	seqs        map[string]*Sequencer
	idleTTL     time.Duration
	maxSessions int
}

func NewSessions(idleTTL time.Duration, maxSessions int) *Sessions {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	if maxSessions <= 0 {
		maxSessions = 10000
	}
	return &Sessions{
		seqs:        make(map[string]*Sequencer),
		idleTTL:     idleTTL,
		maxSessions: maxSessions,
	}
}

// For returns the sequencer of session, creating it on first use
func (s *Sessions) For(session string) *Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq, ok := s.seqs[session]; ok {
		return seq
	}
	if len(s.seqs) >= s.maxSessions {
		s.sweepLocked()
	}
	seq := &Sequencer{lastUsed: time.Now()}
	s.seqs[session] = seq
	return seq
}

// Len returns the number of tracked sessions
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seqs)
}

func (s *Sessions) sweepLocked() {
	cutoff := time.Now().Add(-s.idleTTL)
	for id, seq := range s.seqs {
		if seq.idleSince().Before(cutoff) {
			delete(s.seqs, id)
		}
	}
}
