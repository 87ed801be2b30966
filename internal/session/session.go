package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clinsim/clinsim/internal/casefile"
)

var (
	// ErrSessionNotFound is returned for unknown or ended session ids.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrAlreadyRevealed is returned when a block was revealed earlier in
	// the session. Reveals are monotonic and happen at most once.
	ErrAlreadyRevealed = errors.New("session: block already revealed")
	// ErrPrerequisites is returned when a block's prerequisites are not all
	// revealed yet.
	ErrPrerequisites = errors.New("session: prerequisites not satisfied")
	// ErrEnded is returned when mutating a session that was already closed.
	ErrEnded = errors.New("session: session has ended")
)

// Outcome labels what a single trainee turn produced.
type Outcome string

const (
	OutcomeRevealed     Outcome = "revealed"
	OutcomeNoMatch      Outcome = "no_match"
	OutcomeUnrecognized Outcome = "unrecognized"
)

// Interaction is one entry of the append-only turn log. The bias detector
// reads this log; it is never rewritten.
type Interaction struct {
	Query          string
	Context        casefile.Context
	IntentID       string
	IntentCategory string
	Confidence     float64
	Outcome        Outcome
	BlockIDs       []string
	Timestamp      time.Time
}

// Discovery records one revealed block with the query that earned it.
type Discovery struct {
	BlockID    string
	Query      string
	RevealedAt time.Time
}

// Session holds all mutable state of one interview. The case definition
// itself stays immutable and shared.
type Session struct {
	ID        string
	CaseID    string
	CreatedAt time.Time

	// turnMu serializes whole query turns so that classify, resolve and
	// reveal observe a stable snapshot. State reads take mu only.
	turnMu sync.Mutex
	mu     sync.RWMutex

	revealed       map[string]Discovery
	interactions   []Interaction
	hypotheses     []string
	finalDiagnosis string
	reportedBiases map[string]struct{}
	ended          bool
	endedAt        time.Time
}

func newSession(id, caseID string) *Session {
	return &Session{
		ID:             id,
		CaseID:         caseID,
		CreatedAt:      time.Now().UTC(),
		revealed:       make(map[string]Discovery),
		reportedBiases: make(map[string]struct{}),
	}
}

// LockTurn serializes query processing for this session.
func (s *Session) LockTurn() { s.turnMu.Lock() }

// UnlockTurn releases the turn lock.
func (s *Session) UnlockTurn() { s.turnMu.Unlock() }

// IsRevealed reports whether a block was revealed in this session.
func (s *Session) IsRevealed(blockID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revealed[blockID]
	return ok
}

// Revealable checks whether the block could be revealed right now without
// mutating anything.
func (s *Session) Revealable(b casefile.Block) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revealableLocked(b)
}

func (s *Session) revealableLocked(b casefile.Block) error {
	if s.ended {
		return ErrEnded
	}
	if _, ok := s.revealed[b.ID]; ok {
		return ErrAlreadyRevealed
	}
	for _, req := range b.Prerequisites {
		if _, ok := s.revealed[req]; !ok {
			return fmt.Errorf("%w: %s requires %s", ErrPrerequisites, b.ID, req)
		}
	}
	return nil
}

// Reveal marks a block as revealed, recording the query that triggered it.
// Reveals are permanent for the life of the session.
func (s *Session) Reveal(b casefile.Block, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.revealableLocked(b); err != nil {
		return err
	}
	s.revealed[b.ID] = Discovery{
		BlockID:    b.ID,
		Query:      query,
		RevealedAt: time.Now().UTC(),
	}
	return nil
}

// Discoveries returns all reveals ordered by reveal time.
func (s *Session) Discoveries() []Discovery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Discovery, 0, len(s.revealed))
	for _, d := range s.revealed {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevealedAt.Before(out[j].RevealedAt) })
	return out
}

// RevealedCount returns the number of revealed blocks.
func (s *Session) RevealedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revealed)
}

// AppendInteraction appends one turn to the log.
func (s *Session) AppendInteraction(it Interaction) {
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, it)
}

// Interactions returns a copy of the turn log.
func (s *Session) Interactions() []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Interaction, len(s.interactions))
	copy(out, s.interactions)
	return out
}

// InteractionCount returns the number of logged turns.
func (s *Session) InteractionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.interactions)
}

// SubmitHypothesis records a working diagnosis without ending the session.
func (s *Session) SubmitHypothesis(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrEnded
	}
	s.hypotheses = append(s.hypotheses, text)
	return nil
}

// Hypotheses returns the submitted working diagnoses in order.
func (s *Session) Hypotheses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.hypotheses))
	copy(out, s.hypotheses)
	return out
}

// End closes the session with a final diagnosis. Ending twice is an error.
func (s *Session) End(finalDiagnosis string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrEnded
	}
	s.ended = true
	s.endedAt = time.Now().UTC()
	s.finalDiagnosis = finalDiagnosis
	return nil
}

// Ended reports whether the session was closed.
func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// EndedAt returns when the session was closed, zero if still open.
func (s *Session) EndedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt
}

// FinalDiagnosis returns the diagnosis given at session end, if any.
func (s *Session) FinalDiagnosis() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalDiagnosis
}

// ReportedBiases returns the warning types surfaced so far, sorted.
func (s *Session) ReportedBiases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.reportedBiases))
	for t := range s.reportedBiases {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// MarkBiasReported records that a warning of the given type was surfaced.
// It returns false if the type was already reported, so each bias type is
// warned about at most once per session.
func (s *Session) MarkBiasReported(biasType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reportedBiases[biasType]; ok {
		return false
	}
	s.reportedBiases[biasType] = struct{}{}
	return true
}
