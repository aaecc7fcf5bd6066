package orchestrator

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/gquiz/internal/balance"
	"github.com/abhisek/gquiz/internal/bank"
	"github.com/abhisek/gquiz/internal/selection"
)

// Corpus is the read side of the bank a session samples from.
type Corpus interface {
	ByChapter(chapter string) []bank.Record
	ChapterCounts() map[string]int
}

// Mode selects where a session's questions come from.
type Mode string

const (
	// ModeAuto generates while the quota gate is open and falls back to the
	// bank otherwise.
	ModeAuto Mode = "auto"

	// ModeOnline is ModeAuto for a caller that requires a generator to be
	// configured. Failures and a closed gate still fall back.
	ModeOnline Mode = "online"

	// ModeOffline serves from the bank only.
	ModeOffline Mode = "offline"
)

// ParseMode parses a mode name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeOnline, ModeOffline:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want auto, online or offline)", s)
	}
}

// Score is a session's answer tally.
type Score struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
}

// Session is one learner's run of questions. It owns the exclusion set of
// questions already served and a balancer whose counters start at zero.
type Session struct {
	ID        string
	CreatedAt time.Time
	Mode      Mode

	balancer *balance.Balancer
	engine   *selection.Engine

	mu      sync.Mutex
	served  map[string]struct{}
	pending map[string]Served
	count   int
	score   Score
}

// NewSession creates a session over corpus. A nil rng seeds from the clock.
func NewSession(corpus Corpus, rng *rand.Rand) *Session {
	bal := balance.New(corpus)
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		balancer:  bal,
		Mode:      ModeAuto,
		engine:    selection.New(corpus, bal, rng),
		served:    make(map[string]struct{}),
		pending:   make(map[string]Served),
	}
}

// MarkServed adds r to the exclusion set and counts its chapter.
func (s *Session) MarkServed(r bank.Record) {
	s.mu.Lock()
	s.served[r.ID] = struct{}{}
	s.count++
	s.mu.Unlock()

	s.balancer.RecordServed(r.ChapterTag)
}

// HasServed reports whether the question id was served in this session.
func (s *Session) HasServed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.served[id]
	return ok
}

// ServedCount is the number of questions served, repeats included.
func (s *Session) ServedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Score returns the answers given so far.
func (s *Session) Score() Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// await holds served until it is answered.
func (s *Session) await(served Served) {
	s.mu.Lock()
	s.pending[served.Record.ID] = served
	s.mu.Unlock()
}

func (s *Session) awaiting(id string) (Served, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	served, ok := s.pending[id]
	return served, ok
}

// answer releases a pending question and counts the answer. It reports
// false when the question was answered concurrently.
func (s *Session) answer(id string, correct bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	s.score.Answered++
	if correct {
		s.score.Correct++
	}
	return true
}

// Chapters returns the session's chapter weights, highest first.
func (s *Session) Chapters() []balance.ChapterStat {
	return s.balancer.Ranked()
}

// topicHint is the chapter to ask the generator for: the top-ranked chapter,
// or the least represented syllabus chapter when the bank is empty.
func (s *Session) topicHint(syllabus []string) string {
	if top := s.balancer.Top(); top != "" {
		return top
	}
	return s.balancer.LeastRepresented(syllabus)
}

func (s *Session) exclusion() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.served)
}
