// Package quota estimates the remote generation service's request ceilings
// from locally observed outcomes and gates attempts before they are made.
//
// The service never reports its limits. Each window (calendar minute and
// calendar day) carries an estimated ceiling that starts at the configured
// default, ratchets down to the observed count whenever a rate limit is hit,
// and relaxes multiplicatively on every rollover of a window that saw none.
package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const stateVersion = 1

// Options configures an Estimator beyond its tuning Config.
type Options struct {
	// Logger receives persistence warnings. Defaults to a no-op logger.
	Logger *zerolog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

type window struct {
	Ceiling     float64   `json:"ceiling"`
	Start       time.Time `json:"windowStart"`
	RateLimited bool      `json:"rateLimited"`
}

type windows struct {
	Minute window `json:"minute"`
	Day    window `json:"day"`
}

// state is the persisted form of the estimator.
type state struct {
	Version           int        `json:"version"`
	Windows           windows    `json:"windows"`
	Events            []Event    `json:"events"`
	LastRateLimitedAt *time.Time `json:"lastRateLimitedAt,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
}

// Estimator tracks usage events and estimated ceilings. It is safe for
// concurrent use; Reserve and Record serialize all state changes and
// persistence.
type Estimator struct {
	mu     sync.Mutex
	cfg    Config
	loc    *time.Location
	path   string
	logger zerolog.Logger
	now    func() time.Time
	st     state

	// inFlight counts reserved attempts that have not settled. They hold
	// a slot in both windows and are never persisted.
	inFlight int
}

// Open loads estimator state from path. A missing or corrupt file starts
// from the configured defaults. An empty path keeps state in memory only.
// Open fails only when cfg is invalid.
func Open(path string, cfg Config, opts Options) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("quota timezone: %w", err)
	}

	e := &Estimator{
		cfg:    cfg,
		loc:    loc,
		path:   path,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	if opts.Logger != nil {
		e.logger = opts.Logger.With().Str("component", "quota").Logger()
	}
	if opts.Now != nil {
		e.now = opts.Now
	}

	e.st = e.defaultState()
	if path != "" {
		if err := e.load(); err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("quota state unreadable, starting from defaults")
			e.st = e.defaultState()
		}
	}
	e.prune(e.now())
	return e, nil
}

func (e *Estimator) defaultState() state {
	return state{
		Version: stateVersion,
		Windows: windows{
			Minute: window{Ceiling: e.cfg.MinuteCeiling},
			Day:    window{Ceiling: e.cfg.DayCeiling},
		},
	}
}

func (e *Estimator) load() error {
	data, err := os.ReadFile(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read quota state: %w", err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode quota state: %w", err)
	}
	st.Version = stateVersion
	st.Windows.Minute.Ceiling = clampCeiling(st.Windows.Minute.Ceiling, e.cfg.MinuteCeiling)
	st.Windows.Day.Ceiling = clampCeiling(st.Windows.Day.Ceiling, e.cfg.DayCeiling)

	events := st.Events[:0]
	for _, ev := range st.Events {
		if ev.At.IsZero() {
			continue
		}
		switch ev.Outcome {
		case OutcomeSuccess, OutcomeRateLimited, OutcomeOtherFailure:
			events = append(events, ev)
		}
	}
	st.Events = events

	e.st = st
	return nil
}

// clampCeiling repairs a loaded ceiling: out-of-range values fall back to
// def and nothing may exceed def.
func clampCeiling(c, def float64) float64 {
	if math.IsNaN(c) || math.IsInf(c, 0) || c < 1 {
		return def
	}
	return math.Min(c, def)
}

// CanAttempt reports whether a remote call may be made now. It does not
// change state.
func (e *Estimator) CanAttempt() bool {
	return e.Status().Open
}

// Status returns the derived quota state as of now, with any pending window
// rollover applied to the returned view only.
func (e *Estimator) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	minute := e.roll(e.st.Windows.Minute, ScopeMinute, now)
	day := e.roll(e.st.Windows.Day, ScopeDay, now)
	return e.status(minute, day)
}

// Reserve admits one attempt when both windows are open and holds its slot
// until the reservation is settled. The check and the hold are one step, so
// concurrent callers cannot overshoot the gate.
func (e *Estimator) Reserve() (*Reservation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	minute := e.roll(e.st.Windows.Minute, ScopeMinute, now)
	day := e.roll(e.st.Windows.Day, ScopeDay, now)
	if !e.status(minute, day).Open {
		return nil, false
	}
	e.inFlight++
	return &Reservation{e: e}, true
}

// Reservation is an admitted attempt whose remote calls have not been
// recorded yet.
type Reservation struct {
	e    *Estimator
	once sync.Once
}

// Settle records one event per remote call the attempt made and releases
// the slot. With no attempts the slot is released and nothing is counted.
// Only the first Settle has an effect.
func (r *Reservation) Settle(attempts ...Attempt) Status {
	settled := false
	var st Status
	r.once.Do(func() {
		settled = true
		st = r.e.settle(attempts)
	})
	if !settled {
		return r.e.Status()
	}
	return st
}

func (e *Estimator) settle(attempts []Attempt) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inFlight--
	if len(attempts) == 0 {
		return e.status(e.st.Windows.Minute, e.st.Windows.Day)
	}
	return e.recordLocked(attempts)
}

// Record appends one usage event, updates the ceilings and persists the
// result. Persistence failures are logged; the in-memory state stays
// authoritative for the rest of the process.
func (e *Estimator) Record(a Attempt) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recordLocked([]Attempt{a})
}

func (e *Estimator) recordLocked(attempts []Attempt) Status {
	now := e.now()
	e.st.Windows.Minute = e.roll(e.st.Windows.Minute, ScopeMinute, now)
	e.st.Windows.Day = e.roll(e.st.Windows.Day, ScopeDay, now)

	limited := false
	for _, a := range attempts {
		e.st.Events = append(e.st.Events, Event{At: now, Outcome: a.Outcome})
		if a.Outcome == OutcomeRateLimited {
			e.rateLimited(a.Scope, now)
			limited = true
		}
		if a.Outcome != OutcomeSuccess && a.Detail != "" {
			e.st.LastError = a.Detail
		}
	}
	e.prune(now)

	st := e.status(e.st.Windows.Minute, e.st.Windows.Day)
	if limited {
		e.logger.Warn().
			Int("minute_count", st.MinuteCount).
			Int("day_count", st.DayCount).
			Float64("minute_ceiling", st.EstimatedMinuteCeiling).
			Float64("day_ceiling", st.EstimatedDayCeiling).
			Msg("rate limited, ceiling lowered")
	}

	if err := e.saveLocked(); err != nil {
		e.logger.Warn().Err(err).Str("path", e.path).Msg("could not persist quota state")
	}
	return st
}

// rateLimited ratchets the window named by scope. A limit of unknown scope
// is charged to the minute window, and to the day window too when it hit
// the first call of a minute, which no per-minute limit explains.
func (e *Estimator) rateLimited(scope Scope, now time.Time) {
	minuteCount := e.count(e.st.Windows.Minute.Start)
	day := scope == ScopeDay || (scope == ScopeUnknown && minuteCount <= 1)

	if scope != ScopeDay {
		e.st.Windows.Minute = ratchet(e.st.Windows.Minute, minuteCount)
	}
	if day {
		e.st.Windows.Day = ratchet(e.st.Windows.Day, e.count(e.st.Windows.Day.Start))
	}
	at := now
	e.st.LastRateLimitedAt = &at
}

// Flush writes the current state to disk.
func (e *Estimator) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked()
}

// ratchet lowers the ceiling to the count observed at the moment of a rate
// limit. The count includes the failing attempt.
func ratchet(w window, count int) window {
	w.Ceiling = math.Max(1, math.Min(w.Ceiling, float64(count)))
	w.RateLimited = true
	return w
}

// roll advances w to the window containing now. Each elapsed window that
// saw no rate limit relaxes the ceiling by the configured factor, capped at
// the default.
func (e *Estimator) roll(w window, scope Scope, now time.Time) window {
	start := e.windowStart(scope, now)
	if w.Start.IsZero() {
		w.Start = start
		return w
	}
	if !start.After(w.Start) {
		return w
	}

	elapsed := e.windowsBetween(scope, w.Start, start)
	if w.RateLimited {
		elapsed--
	}
	w.Ceiling = relax(w.Ceiling, e.defaultCeiling(scope), e.cfg.RelaxationFactor, elapsed)
	w.Start = start
	w.RateLimited = false
	return w
}

func relax(c, def, factor float64, times int) float64 {
	if factor <= 1 {
		return math.Min(c, def)
	}
	for i := 0; i < times && c < def; i++ {
		c *= factor
	}
	return math.Min(c, def)
}

func (e *Estimator) defaultCeiling(scope Scope) float64 {
	if scope == ScopeMinute {
		return e.cfg.MinuteCeiling
	}
	return e.cfg.DayCeiling
}

func (e *Estimator) windowStart(scope Scope, t time.Time) time.Time {
	t = t.In(e.loc)
	if scope == ScopeMinute {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, e.loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// windowsBetween counts window boundaries crossed going from a to b, both
// window starts.
func (e *Estimator) windowsBetween(scope Scope, a, b time.Time) int {
	d := b.Sub(a)
	if scope == ScopeMinute {
		return int(d / time.Minute)
	}
	// Calendar days may be 23 or 25 hours across DST changes.
	return int((d + 12*time.Hour) / (24 * time.Hour))
}

// count returns the number of events at or after start.
func (e *Estimator) count(start time.Time) int {
	n := 0
	for _, ev := range e.st.Events {
		if !ev.At.Before(start) {
			n++
		}
	}
	return n
}

// prune drops events older than the day window plus grace.
func (e *Estimator) prune(now time.Time) {
	cutoff := now.Add(-24*time.Hour - e.cfg.Grace)
	kept := e.st.Events[:0]
	for _, ev := range e.st.Events {
		if !ev.At.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	e.st.Events = kept
}

func (e *Estimator) status(minute, day window) Status {
	mc := e.count(minute.Start)
	dc := e.count(day.Start)

	// In-flight attempts hold a slot in both windows.
	mUsed, dUsed := mc+e.inFlight, dc+e.inFlight
	remMin := remaining(minute.Ceiling, e.cfg.SafetyMargin, mUsed)
	remDay := remaining(day.Ceiling, e.cfg.SafetyMargin, dUsed)

	st := Status{
		MinuteCount:            mc,
		DayCount:               dc,
		EstimatedMinuteCeiling: minute.Ceiling,
		EstimatedDayCeiling:    day.Ceiling,
		InFlight:               e.inFlight,
		MinuteOpen:             float64(mUsed) < minute.Ceiling*e.cfg.SafetyMargin,
		DayOpen:                float64(dUsed) < day.Ceiling*e.cfg.SafetyMargin,
		RemainingMinute:        remMin,
		RemainingDay:           remDay,
		Remaining:              min(remMin, remDay),
		RemainingRatio:         math.Max(0, day.Ceiling-float64(dc)) / day.Ceiling,
		MinuteWindowStart:      minute.Start,
		DayWindowStart:         day.Start,
		LastError:              e.st.LastError,
	}
	st.Open = st.MinuteOpen && st.DayOpen
	if e.st.LastRateLimitedAt != nil {
		at := *e.st.LastRateLimitedAt
		st.LastRateLimitedAt = &at
	}
	return st
}

// remaining is how many more attempts keep count below ceiling*margin.
func remaining(ceiling, margin float64, count int) int {
	n := int(math.Ceil(ceiling*margin)) - count
	if n < 0 {
		return 0
	}
	return n
}

// saveLocked writes the state atomically: a temp file in the same
// directory is synced and renamed over the target. Caller holds mu.
func (e *Estimator) saveLocked() error {
	if e.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(e.st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quota state: %w", err)
	}

	dir := filepath.Dir(e.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create quota dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".quota-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp quota file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write quota state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync quota state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close quota state: %w", err)
	}
	if err := os.Rename(tmpName, e.path); err != nil {
		return fmt.Errorf("replace quota state: %w", err)
	}
	return nil
}

// Path returns the backing file path, or "" for an in-memory estimator.
func (e *Estimator) Path() string {
	return e.path
}
