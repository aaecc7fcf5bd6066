// Package refill appends generated questions to the bank without letting a
// single chapter crowd out the rest.
package refill

import (
	"errors"
	"fmt"

	"github.com/abhisek/gquiz/internal/balance"
	"github.com/abhisek/gquiz/internal/bank"
)

// DefaultMaxShare is the chapter share above which a candidate for another
// chapter is considered saturated.
const DefaultMaxShare = 0.25

// ErrChapterSaturated is returned when the candidate's chapter already holds
// more than its share of the bank while a less represented chapter was
// requested. It is advisory: nothing was appended.
var ErrChapterSaturated = errors.New("chapter saturated")

// Bank is the part of the question bank the guard uses.
type Bank interface {
	balance.Corpus
	Has(promptText string) bool
	Add(r bank.Record) (bank.Record, error)
	Len() int
}

// Guard checks refill candidates for duplicates and chapter balance before
// appending them with origin refill.
type Guard struct {
	bank     Bank
	balancer *balance.Balancer
	maxShare float64
}

// NewGuard creates a Guard. A maxShare outside (0,1] uses DefaultMaxShare.
func NewGuard(b Bank, maxShare float64) *Guard {
	if maxShare <= 0 || maxShare > 1 {
		maxShare = DefaultMaxShare
	}
	return &Guard{bank: b, balancer: balance.New(b), maxShare: maxShare}
}

// Check runs the duplicate and saturation checks without appending.
func (g *Guard) Check(candidate bank.Record, target string) error {
	if g.bank.Has(candidate.PromptText) {
		return fmt.Errorf("%w: %s", bank.ErrDuplicateQuestion, bank.KeyOf(candidate.PromptText))
	}
	if target == "" || target == candidate.ChapterTag {
		return nil
	}
	share := g.balancer.Share(candidate.ChapterTag)
	if share > g.maxShare && g.balancer.Share(target) < share {
		return fmt.Errorf("%w: %q holds %.0f%% of the bank, %q was requested",
			ErrChapterSaturated, candidate.ChapterTag, share*100, target)
	}
	return nil
}

// TryAppend appends candidate unless it duplicates a banked question or its
// chapter is saturated relative to target. An empty target skips the
// balance check.
func (g *Guard) TryAppend(candidate bank.Record, target string) (bank.Record, error) {
	if err := g.Check(candidate, target); err != nil {
		return bank.Record{}, err
	}
	return g.ForceAppend(candidate)
}

// ForceAppend appends candidate without the balance check. Duplicates are
// still rejected by the bank.
func (g *Guard) ForceAppend(candidate bank.Record) (bank.Record, error) {
	candidate.Origin = bank.OriginRefill
	return g.bank.Add(candidate)
}
