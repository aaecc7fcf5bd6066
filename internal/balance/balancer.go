// Package balance computes per-chapter sampling weights that counteract
// topical skew in the bank and in the current session's serving history.
package balance

import (
	"math"
	"sort"
	"sync"
)

// Corpus is the read-only view of the bank the balancer needs.
type Corpus interface {
	ChapterCounts() map[string]int
}

// ChapterStat is the balancer's view of a single chapter.
type ChapterStat struct {
	Chapter     string  `json:"chapter"`
	ServedCount int     `json:"servedCount"`
	BankCount   int     `json:"bankCount"`
	Weight      float64 `json:"weight"`
}

// Balancer derives chapter weights from the bank contents and its own
// session-scoped serving counters. Counters live in memory only and start
// at zero with every Balancer.
type Balancer struct {
	corpus Corpus

	mu     sync.Mutex
	served map[string]int
}

// New creates a Balancer over corpus.
func New(corpus Corpus) *Balancer {
	return &Balancer{
		corpus: corpus,
		served: make(map[string]int),
	}
}

// Weight is the selection weight for a chapter:
//
//	1/(1+served) * 1/(1+ln(1+bankCount))
//
// The first factor discourages chapters served repeatedly this session;
// the second mildly damps chapters that dominate the corpus.
func Weight(served, bankCount int) float64 {
	return 1 / float64(1+served) * 1 / (1 + math.Log1p(float64(bankCount)))
}

// RecordServed counts one serving of chapter in this session.
func (b *Balancer) RecordServed(chapter string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.served[chapter]++
}

// Served returns how many times chapter was served this session.
func (b *Balancer) Served(chapter string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.served[chapter]
}

// Weights returns the weight of every chapter present in the bank.
func (b *Balancer) Weights() map[string]float64 {
	stats := b.Ranked()
	out := make(map[string]float64, len(stats))
	for _, s := range stats {
		out[s.Chapter] = s.Weight
	}
	return out
}

// Ranked returns every chapter present in the bank ordered by descending
// weight. Equal weights prefer the chapter with fewer bank questions, then
// the lexically smaller tag.
func (b *Balancer) Ranked() []ChapterStat {
	counts := b.corpus.ChapterCounts()

	b.mu.Lock()
	stats := make([]ChapterStat, 0, len(counts))
	for chapter, n := range counts {
		if n == 0 {
			continue
		}
		served := b.served[chapter]
		stats = append(stats, ChapterStat{
			Chapter:     chapter,
			ServedCount: served,
			BankCount:   n,
			Weight:      Weight(served, n),
		})
	}
	b.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Weight != stats[j].Weight {
			return stats[i].Weight > stats[j].Weight
		}
		if stats[i].BankCount != stats[j].BankCount {
			return stats[i].BankCount < stats[j].BankCount
		}
		return stats[i].Chapter < stats[j].Chapter
	})
	return stats
}

// Top returns the highest-weighted chapter, or "" for an empty bank.
func (b *Balancer) Top() string {
	ranked := b.Ranked()
	if len(ranked) == 0 {
		return ""
	}
	return ranked[0].Chapter
}

// LeastRepresented returns the chapter with the fewest bank questions among
// syllabus and the chapters already in the bank. Syllabus chapters with no
// questions count as zero. Ties go to the lexically smaller tag. It returns
// "" when there are no chapters at all.
func (b *Balancer) LeastRepresented(syllabus []string) string {
	counts := make(map[string]int)
	for c, n := range b.corpus.ChapterCounts() {
		counts[c] = n
	}
	for _, c := range syllabus {
		if _, ok := counts[c]; !ok && c != "" {
			counts[c] = 0
		}
	}

	best, bestN := "", 0
	for c, n := range counts {
		if best == "" || n < bestN || (n == bestN && c < best) {
			best, bestN = c, n
		}
	}
	return best
}

// Share returns the fraction of the bank tagged with chapter.
func (b *Balancer) Share(chapter string) float64 {
	counts := b.corpus.ChapterCounts()
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(counts[chapter]) / float64(total)
}
