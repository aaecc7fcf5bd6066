// Package selection picks the next offline question from the bank.
package selection

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/abhisek/gquiz/internal/balance"
	"github.com/abhisek/gquiz/internal/bank"
)

// ErrBankExhausted is returned when every question in the bank is excluded.
var ErrBankExhausted = errors.New("question bank exhausted")

// Bank is the part of the question bank the engine reads.
type Bank interface {
	ByChapter(chapter string) []bank.Record
}

// Engine samples a chapter in proportion to its balancer weight, then a
// question uniformly among that chapter's non-excluded records.
type Engine struct {
	bank     Bank
	balancer *balance.Balancer

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Engine. A nil rng is replaced by a time-seeded source.
func New(b Bank, balancer *balance.Balancer, rng *rand.Rand) *Engine {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Engine{bank: b, balancer: balancer, rng: rng}
}

// Next returns a question whose ID is not in exclude. A chapter whose
// questions are all excluded is dropped and another chapter is sampled.
func (e *Engine) Next(exclude map[string]struct{}) (bank.Record, error) {
	candidates := e.balancer.Ranked()

	e.mu.Lock()
	defer e.mu.Unlock()

	for len(candidates) > 0 {
		i := e.pickChapter(candidates)

		eligible := eligibleRecords(e.bank.ByChapter(candidates[i].Chapter), exclude)
		if len(eligible) == 0 {
			candidates = append(candidates[:i], candidates[i+1:]...)
			continue
		}
		return eligible[e.rng.IntN(len(eligible))], nil
	}
	return bank.Record{}, ErrBankExhausted
}

// pickChapter samples an index of stats proportional to weight.
func (e *Engine) pickChapter(stats []balance.ChapterStat) int {
	total := 0.0
	for _, s := range stats {
		total += s.Weight
	}
	r := e.rng.Float64() * total
	for i, s := range stats {
		r -= s.Weight
		if r < 0 {
			return i
		}
	}
	return len(stats) - 1
}

func eligibleRecords(records []bank.Record, exclude map[string]struct{}) []bank.Record {
	out := records[:0:0]
	for _, r := range records {
		if _, skip := exclude[r.ID]; !skip {
			out = append(out, r)
		}
	}
	return out
}
