package refill

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/gquiz/internal/balance"
	"github.com/abhisek/gquiz/internal/bank"
	"github.com/abhisek/gquiz/internal/llm"
	"github.com/abhisek/gquiz/internal/metrics"
	"github.com/abhisek/gquiz/internal/questiongen"
	"github.com/abhisek/gquiz/internal/quota"
)

// Reasons a run stopped before Count candidates.
const (
	StopQuotaClosed = "quota_closed"
	StopRateLimited = "rate_limited"
	StopCanceled    = "canceled"
)

// Quota is the gate consulted before every generation.
type Quota interface {
	Reserve() (*quota.Reservation, bool)
}

// Report summarizes a refill run.
type Report struct {
	Generated  int    `json:"generated"`
	Appended   int    `json:"appended"`
	Duplicates int    `json:"duplicates"`
	Saturated  int    `json:"saturated"`
	Failures   int    `json:"failures"`
	Stopped    string `json:"stopped,omitempty"`
}

// RunOptions controls one refill run.
type RunOptions struct {
	// Count is the number of generation attempts.
	Count int

	// DryRun checks candidates and writes them to Out as JSON lines
	// without appending.
	DryRun bool

	// Force appends saturated candidates anyway.
	Force bool

	// Out receives dry-run candidates. Defaults to io.Discard.
	Out io.Writer
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Syllabus lists chapter tags that should receive questions even
	// before the bank has any.
	Syllabus []string

	// GenerateTimeout bounds one generation call. Defaults to 20s.
	GenerateTimeout time.Duration

	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
}

// Runner generates questions for the least represented chapters and passes
// them through the guard.
type Runner struct {
	guard    *Guard
	bank     Bank
	gen      questiongen.Generator
	quota    Quota
	syllabus []string
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(g *Guard, gen questiongen.Generator, q Quota, opts RunnerOptions) *Runner {
	r := &Runner{
		guard:    g,
		bank:     g.bank,
		gen:      gen,
		quota:    q,
		syllabus: opts.Syllabus,
		timeout:  opts.GenerateTimeout,
		metrics:  opts.Metrics,
		logger:   zerolog.Nop(),
	}
	if r.timeout <= 0 {
		r.timeout = 20 * time.Second
	}
	if opts.Logger != nil {
		r.logger = opts.Logger.With().Str("component", "refill").Logger()
	}
	return r
}

// Run makes up to opts.Count generation attempts. It stops early when the
// quota gate closes, on a rate limit, or when ctx ends.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (Report, error) {
	var rep Report
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	// Dry runs append nothing, so planned candidates are counted here to
	// keep target selection moving across chapters.
	planned := &plannedCorpus{bank: r.bank, extra: make(map[string]int)}
	pending := make(map[string]bool)
	bal := balance.New(planned)
	enc := json.NewEncoder(out)

	for i := range opts.Count {
		if ctx.Err() != nil {
			rep.Stopped = StopCanceled
			return rep, ctx.Err()
		}
		res, ok := r.quota.Reserve()
		if !ok {
			rep.Stopped = StopQuotaClosed
			r.logger.Info().Int("done", i).Int("requested", opts.Count).Msg("quota gate closed, stopping refill")
			break
		}

		target := bal.LeastRepresented(r.syllabus)
		rec, err := r.generate(ctx, res, target)
		if err != nil {
			rep.Failures++
			r.metrics.Refill("failed")
			if ctx.Err() != nil {
				rep.Stopped = StopCanceled
				return rep, ctx.Err()
			}
			if questiongen.KindOf(err) == questiongen.KindRateLimited {
				rep.Stopped = StopRateLimited
				r.logger.Warn().Err(err).Msg("rate limited, stopping refill")
				break
			}
			r.logger.Warn().Err(err).Str("chapter", target).Msg("generation failed")
			continue
		}
		rep.Generated++

		if opts.DryRun {
			if pending[rec.ID] {
				rep.Duplicates++
				continue
			}
			if err := r.check(&rep, *rec, target, opts.Force); err != nil {
				continue
			}
			pending[rec.ID] = true
			planned.extra[rec.ChapterTag]++
			rec.Origin = bank.OriginRefill
			if err := enc.Encode(rec); err != nil {
				return rep, fmt.Errorf("write dry-run candidate: %w", err)
			}
			continue
		}

		r.append(&rep, *rec, target, opts.Force)
	}

	r.logger.Info().
		Int("generated", rep.Generated).
		Int("appended", rep.Appended).
		Int("duplicates", rep.Duplicates).
		Int("saturated", rep.Saturated).
		Int("failures", rep.Failures).
		Str("stopped", rep.Stopped).
		Msg("refill finished")
	return rep, nil
}

// Import passes externally produced candidates, one JSON record per line,
// through the guard. Each candidate is checked against the least
// represented chapter at the time it is read.
func (r *Runner) Import(ctx context.Context, src io.Reader, opts RunOptions) (Report, error) {
	var rep Report
	bal := balance.New(r.bank)

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if ctx.Err() != nil {
			rep.Stopped = StopCanceled
			return rep, ctx.Err()
		}
		if len(sc.Bytes()) == 0 {
			continue
		}

		var rec bank.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			rep.Failures++
			r.logger.Warn().Err(err).Int("line", line).Msg("skipping malformed candidate")
			continue
		}
		rep.Generated++

		rec.Origin = bank.OriginRefill
		if verr := bank.Validate(rec); verr != nil {
			rep.Failures++
			r.logger.Warn().Err(verr).Int("line", line).Msg("skipping invalid candidate")
			continue
		}

		target := bal.LeastRepresented(r.syllabus)
		if opts.DryRun {
			_ = r.check(&rep, rec, target, opts.Force)
			continue
		}
		r.append(&rep, rec, target, opts.Force)
	}
	if err := sc.Err(); err != nil {
		return rep, fmt.Errorf("read candidates: %w", err)
	}
	return rep, nil
}

// generate makes one generation attempt under res and settles it with
// every remote call the attempt made.
func (r *Runner) generate(ctx context.Context, res *quota.Reservation, target string) (*bank.Record, error) {
	var calls questiongen.CallLog
	genCtx, cancel := context.WithTimeout(calls.Observe(llm.WithPurpose(ctx, llm.PurposeRefill)), r.timeout)
	defer cancel()

	start := time.Now()
	rec, err := r.gen.Generate(genCtx, target)
	if err == nil && rec == nil {
		err = &questiongen.Error{Kind: questiongen.KindMalformed, Err: errors.New("generator returned no question")}
	}

	attempts := calls.Attempts(err)
	status := res.Settle(attempts...)
	for _, a := range attempts {
		r.metrics.Attempt(string(a.Outcome))
	}
	r.metrics.Generation(time.Since(start).Seconds())
	r.metrics.Quota(status.RemainingMinute, status.RemainingDay)
	return rec, err
}

// check counts a guard rejection in rep. With force, saturation is not a
// rejection.
func (r *Runner) check(rep *Report, rec bank.Record, target string, force bool) error {
	err := r.guard.Check(rec, target)
	if errors.Is(err, ErrChapterSaturated) && force {
		return nil
	}
	r.countRejection(rep, rec, err)
	return err
}

func (r *Runner) append(rep *Report, rec bank.Record, target string, force bool) {
	_, err := r.guard.TryAppend(rec, target)
	if errors.Is(err, ErrChapterSaturated) && force {
		r.logger.Info().Str("chapter", rec.ChapterTag).Str("target", target).Msg("chapter saturated, appending anyway")
		_, err = r.guard.ForceAppend(rec)
	}
	if err == nil {
		rep.Appended++
		r.metrics.Refill("appended")
		r.metrics.BankSize(r.bank.Len())
		return
	}
	r.countRejection(rep, rec, err)
}

func (r *Runner) countRejection(rep *Report, rec bank.Record, err error) {
	switch {
	case err == nil:
	case errors.Is(err, bank.ErrDuplicateQuestion):
		rep.Duplicates++
		r.metrics.Refill("duplicate")
		r.logger.Debug().Str("chapter", rec.ChapterTag).Msg("duplicate candidate skipped")
	case errors.Is(err, ErrChapterSaturated):
		rep.Saturated++
		r.metrics.Refill("saturated")
		r.logger.Info().Err(err).Msg("saturated candidate skipped")
	default:
		rep.Failures++
		r.metrics.Refill("failed")
		r.logger.Warn().Err(err).Str("chapter", rec.ChapterTag).Msg("candidate rejected")
	}
}

// plannedCorpus adds dry-run candidates to the bank's chapter counts.
type plannedCorpus struct {
	bank  balance.Corpus
	extra map[string]int
}

func (p *plannedCorpus) ChapterCounts() map[string]int {
	counts := p.bank.ChapterCounts()
	for c, n := range p.extra {
		counts[c] += n
	}
	return counts
}
