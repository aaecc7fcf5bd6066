package questiongen

import (
	"context"
	"sync"

	"github.com/abhisek/gquiz/internal/llm"
	"github.com/abhisek/gquiz/internal/quota"
)

// CallLog collects the outcome of every remote call made while generating
// one question. Retries and failover make one Generate several calls.
type CallLog struct {
	mu   sync.Mutex
	errs []error
}

// Observe returns ctx with the log attached as the provider call observer.
func (c *CallLog) Observe(ctx context.Context) context.Context {
	return llm.WithCallObserver(ctx, func(err error) {
		c.mu.Lock()
		c.errs = append(c.errs, err)
		c.mu.Unlock()
	})
}

// Len is the number of remote calls observed.
func (c *CallLog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// Attempts returns one quota attempt per observed call. A generator whose
// calls were not observed counts as one attempt with the result genErr.
func (c *CallLog) Attempts(genErr error) []quota.Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.errs) == 0 {
		return []quota.Attempt{AttemptOf(genErr)}
	}
	out := make([]quota.Attempt, len(c.errs))
	for i, err := range c.errs {
		out[i] = AttemptOf(err)
	}
	return out
}
