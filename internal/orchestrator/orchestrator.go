// Package orchestrator serves questions: online generation while the quota
// gate is open, the offline bank otherwise.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/gquiz/internal/bank"
	"github.com/abhisek/gquiz/internal/metrics"
	"github.com/abhisek/gquiz/internal/questiongen"
	"github.com/abhisek/gquiz/internal/quota"
	"github.com/abhisek/gquiz/internal/selection"
	"github.com/abhisek/gquiz/internal/store"
)

// Fallback reasons. Generation failures use the questiongen.Kind value.
const (
	ReasonOfflineMode = "offline_mode"
	ReasonNoGenerator = "no_generator"
	ReasonQuotaClosed = "quota_closed"
	ReasonDuplicate   = "duplicate_generation"
	ReasonRateLimited = string(questiongen.KindRateLimited)
	ReasonMalformed   = string(questiongen.KindMalformed)
	ReasonTransport   = string(questiongen.KindTransport)
	ReasonTimeout     = string(questiongen.KindTimeout)
)

const defaultGenerateTimeout = 20 * time.Second

// Bank is the question bank as seen by the orchestrator.
type Bank interface {
	Corpus
	Add(r bank.Record) (bank.Record, error)
	Len() int
}

// Quota is the gate consulted before every online attempt.
type Quota interface {
	Reserve() (*quota.Reservation, bool)
	Status() quota.Status
}

var (
	// ErrOnlineUnavailable is returned for an online session when no
	// generator is configured.
	ErrOnlineUnavailable = errors.New("online mode needs a question generator")

	// ErrNotServed is returned when answering a question the session has
	// not served or has already answered.
	ErrNotServed = errors.New("question is not awaiting an answer in this session")

	// ErrInvalidChoice is returned for a choice outside the question's
	// choices.
	ErrInvalidChoice = errors.New("choice out of range")
)

// Served is one question handed to the learner.
type Served struct {
	Record bank.Record `json:"record"`

	// Origin is online for a freshly generated question and the stored
	// origin for a question taken from the bank.
	Origin bank.Origin `json:"origin"`

	// Persisted is false when a generated question could not be appended
	// to the bank (duplicate or write failure). It is still served.
	Persisted bool `json:"persisted"`

	// FallbackReason says why the bank was used. Empty for online.
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// Options configures an Orchestrator.
type Options struct {
	// Generator is the remote question source. Nil serves offline only.
	Generator questiongen.Generator

	// GenerateTimeout bounds one generation call. Defaults to 20s.
	GenerateTimeout time.Duration

	// Syllabus lists chapter tags used for topic hints when the bank has
	// none.
	Syllabus []string

	// Events receives an audit record per served question. Optional.
	Events store.EventRepo

	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
}

// Orchestrator decides, per request, between online generation and the
// offline bank. It never returns an error to the learner while the bank
// holds a question, except when the caller's context ends.
type Orchestrator struct {
	bank     Bank
	quota    Quota
	gen      questiongen.Generator
	timeout  time.Duration
	syllabus []string
	events   store.EventRepo
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates an Orchestrator.
func New(b Bank, q Quota, opts Options) *Orchestrator {
	o := &Orchestrator{
		bank:     b,
		quota:    q,
		gen:      opts.Generator,
		timeout:  opts.GenerateTimeout,
		syllabus: opts.Syllabus,
		events:   opts.Events,
		metrics:  opts.Metrics,
		logger:   zerolog.Nop(),
	}
	if o.timeout <= 0 {
		o.timeout = defaultGenerateTimeout
	}
	if opts.Logger != nil {
		o.logger = opts.Logger.With().Str("component", "orchestrator").Logger()
	}
	o.metrics.BankSize(b.Len())
	return o
}

// NewSession starts a session over the orchestrator's bank. An online
// session fails with ErrOnlineUnavailable when there is no generator.
func (o *Orchestrator) NewSession(rng *rand.Rand, mode Mode) (*Session, error) {
	if mode == "" {
		mode = ModeAuto
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == ModeOnline && o.gen == nil {
		return nil, ErrOnlineUnavailable
	}
	s := NewSession(o.bank, rng)
	s.Mode = mode
	return s, nil
}

// Quota returns the current estimate for display. It changes nothing.
func (o *Orchestrator) Quota() quota.Status {
	return o.quota.Status()
}

// Next serves the next question for s. The only errors are the caller's
// context error, returned after any dispatched attempt has been recorded,
// and selection.ErrBankExhausted for a bank with no questions at all.
func (o *Orchestrator) Next(ctx context.Context, s *Session) (Served, error) {
	if err := ctx.Err(); err != nil {
		return Served{}, err
	}
	logger := o.logger.With().Str("session", s.ID).Logger()

	var reason string
	switch {
	case s.Mode == ModeOffline:
		reason = ReasonOfflineMode
	case o.gen == nil:
		reason = ReasonNoGenerator
	default:
		served, why, err := o.online(ctx, s, logger)
		if err != nil {
			return Served{}, err
		}
		if why == "" {
			o.finish(ctx, s, served, logger)
			return served, nil
		}
		reason = why
	}

	return o.offline(ctx, s, reason, logger)
}

// online makes one generation attempt when the quota gate admits it. It
// returns a fallback reason on failure and an error only when the caller's
// context has ended.
func (o *Orchestrator) online(ctx context.Context, s *Session, logger zerolog.Logger) (Served, string, error) {
	res, ok := o.quota.Reserve()
	if !ok {
		return Served{}, ReasonQuotaClosed, nil
	}
	topic := s.topicHint(o.syllabus)

	var calls questiongen.CallLog
	genCtx, cancel := context.WithTimeout(calls.Observe(ctx), o.timeout)
	defer cancel()

	start := time.Now()
	var genErr error
	defer func() {
		o.settle(res, calls.Attempts(genErr), time.Since(start), logger)
	}()

	rec, genErr := o.gen.Generate(genCtx, topic)
	if genErr == nil && rec == nil {
		genErr = &questiongen.Error{Kind: questiongen.KindMalformed, Err: errors.New("generator returned no question")}
	}

	if genErr != nil {
		if ctx.Err() != nil {
			return Served{}, "", ctx.Err()
		}
		logger.Info().Err(genErr).Str("topic", topic).Msg("online generation failed, falling back")
		return Served{}, string(questiongen.KindOf(genErr)), nil
	}

	if s.HasServed(rec.ID) {
		logger.Info().Str("id", rec.ID).Msg("generator repeated a question from this session, falling back")
		return Served{}, ReasonDuplicate, nil
	}

	persisted := o.persist(rec, logger)
	if ctx.Err() != nil {
		return Served{}, "", ctx.Err()
	}
	return Served{Record: *rec, Origin: bank.OriginOnline, Persisted: persisted}, "", nil
}

// persist appends a generated question. Failures are tolerated.
func (o *Orchestrator) persist(rec *bank.Record, logger zerolog.Logger) bool {
	added, err := o.bank.Add(*rec)
	switch {
	case errors.Is(err, bank.ErrDuplicateQuestion):
		logger.Debug().Str("id", rec.ID).Msg("generated question already in bank")
		return false
	case err != nil:
		logger.Warn().Err(err).Str("id", rec.ID).Msg("could not persist generated question")
		return false
	}
	*rec = added
	o.metrics.BankSize(o.bank.Len())
	return true
}

// settle records one quota event per remote call and releases the
// reservation.
func (o *Orchestrator) settle(res *quota.Reservation, attempts []quota.Attempt, took time.Duration, logger zerolog.Logger) {
	status := res.Settle(attempts...)
	o.metrics.Generation(took.Seconds())
	o.metrics.Quota(status.RemainingMinute, status.RemainingDay)
	for _, a := range attempts {
		o.metrics.Attempt(string(a.Outcome))
		if a.Outcome == quota.OutcomeRateLimited {
			logger.Warn().
				Str("scope", string(a.Scope)).
				Float64("minute_ceiling", status.EstimatedMinuteCeiling).
				Float64("day_ceiling", status.EstimatedDayCeiling).
				Msg("rate limited, quota estimate lowered")
		}
	}
}

func (o *Orchestrator) offline(ctx context.Context, s *Session, reason string, logger zerolog.Logger) (Served, error) {
	rec, err := s.engine.Next(s.exclusion())
	if errors.Is(err, selection.ErrBankExhausted) {
		logger.Info().Int("served", s.ServedCount()).Msg("session has seen every question, repeating")
		rec, err = s.engine.Next(nil)
	}
	if err != nil {
		return Served{}, fmt.Errorf("select offline question: %w", err)
	}

	o.metrics.Fallback(reason)
	served := Served{Record: rec, Origin: rec.Origin, Persisted: true, FallbackReason: reason}
	o.finish(ctx, s, served, logger)
	return served, nil
}

// finish records a served question in the session, metrics and audit log.
func (o *Orchestrator) finish(ctx context.Context, s *Session, served Served, logger zerolog.Logger) {
	s.MarkServed(served.Record)
	s.await(served)
	o.metrics.Served(string(served.Origin))

	if o.events == nil {
		return
	}
	err := o.events.AppendServed(context.WithoutCancel(ctx), store.ServedEventData{
		SessionID:      s.ID,
		QuestionID:     served.Record.ID,
		Chapter:        served.Record.ChapterTag,
		Origin:         string(served.Origin),
		FallbackReason: served.FallbackReason,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to log served question")
	}
}

// Graded is the result of answering a served question.
type Graded struct {
	QuestionID   string `json:"questionId"`
	Choice       int    `json:"choice"`
	Correct      bool   `json:"correct"`
	CorrectIndex int    `json:"correctIndex"`
	Explanation  string `json:"explanation,omitempty"`
}

// Answer grades choice, a 0-based index, for a question s served and has
// not yet answered, and records the result in the session and audit log.
func (o *Orchestrator) Answer(ctx context.Context, s *Session, questionID string, choice int) (Graded, error) {
	served, ok := s.awaiting(questionID)
	if !ok {
		return Graded{}, ErrNotServed
	}
	rec := served.Record
	if choice < 0 || choice >= len(rec.Choices) {
		return Graded{}, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidChoice, choice, len(rec.Choices))
	}
	if !s.answer(questionID, choice == rec.CorrectIndex) {
		return Graded{}, ErrNotServed
	}

	g := Graded{
		QuestionID:   rec.ID,
		Choice:       choice,
		Correct:      choice == rec.CorrectIndex,
		CorrectIndex: rec.CorrectIndex,
		Explanation:  rec.Explanation,
	}
	o.metrics.Answer(g.Correct)

	if o.events != nil {
		err := o.events.AppendAnswer(context.WithoutCancel(ctx), store.AnswerEventData{
			SessionID:  s.ID,
			QuestionID: rec.ID,
			Chapter:    rec.ChapterTag,
			Origin:     string(served.Origin),
			Choice:     choice,
			Correct:    g.Correct,
		})
		if err != nil {
			o.logger.Warn().Err(err).Str("session", s.ID).Msg("failed to log answer")
		}
	}
	return g, nil
}
