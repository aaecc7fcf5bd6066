package quota

import (
	"fmt"
	"time"
)

// Outcome is the locally observed result of one remote call.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeRateLimited  Outcome = "rate_limited"
	OutcomeOtherFailure Outcome = "other_failure"
)

// Scope narrows a rate-limit signal to the window it is known to concern.
// ScopeUnknown is charged to the minute window, and to the day window only
// when it cannot be a per-minute limit.
type Scope string

const (
	ScopeUnknown Scope = ""
	ScopeMinute  Scope = "minute"
	ScopeDay     Scope = "day"
)

// Attempt describes one dispatched remote call for Record.
type Attempt struct {
	Outcome Outcome

	// Scope is only consulted for OutcomeRateLimited.
	Scope Scope

	// Detail is kept as the last error message for display. Ignored on
	// success.
	Detail string
}

// Event is one entry of the persisted usage log.
type Event struct {
	At      time.Time `json:"at"`
	Outcome Outcome   `json:"outcome"`
}

// Config tunes the estimator. None of the values are contracts with the
// remote service; they are starting guesses the estimator refines.
type Config struct {
	// MinuteCeiling and DayCeiling are the optimistic defaults the
	// estimates start from and relax back toward.
	MinuteCeiling float64 `env:"MINUTE_CEILING" envDefault:"15"`
	DayCeiling    float64 `env:"DAY_CEILING" envDefault:"1500"`

	// SafetyMargin scales the ceiling when deciding whether a window is
	// open: open while count < ceiling * SafetyMargin.
	SafetyMargin float64 `env:"SAFETY_MARGIN" envDefault:"0.9"`

	// RelaxationFactor multiplies a ceiling once per window rollover that
	// saw no rate limit, capped at the configured default.
	RelaxationFactor float64 `env:"RELAXATION" envDefault:"1.25"`

	// Grace extends event retention beyond the day window.
	Grace time.Duration `env:"GRACE" envDefault:"1h"`

	// Timezone aligns the calendar day window.
	Timezone string `env:"TIMEZONE" envDefault:"UTC"`
}

// DefaultConfig returns the estimator defaults.
func DefaultConfig() Config {
	return Config{
		MinuteCeiling:    15,
		DayCeiling:       1500,
		SafetyMargin:     0.9,
		RelaxationFactor: 1.25,
		Grace:            time.Hour,
		Timezone:         "UTC",
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.MinuteCeiling < 1 || c.DayCeiling < 1 {
		return fmt.Errorf("quota ceilings must be >= 1 (minute=%v, day=%v)", c.MinuteCeiling, c.DayCeiling)
	}
	if c.SafetyMargin <= 0 || c.SafetyMargin > 1 {
		return fmt.Errorf("quota safety margin must be in (0,1], got %v", c.SafetyMargin)
	}
	if c.RelaxationFactor < 1 {
		return fmt.Errorf("quota relaxation factor must be >= 1, got %v", c.RelaxationFactor)
	}
	if c.Grace < 0 {
		return fmt.Errorf("quota grace must not be negative, got %v", c.Grace)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("quota timezone: %w", err)
	}
	return nil
}

// Status is the derived quota state shown to the user.
type Status struct {
	MinuteCount int `json:"minuteCount"`
	DayCount    int `json:"dayCount"`

	// InFlight is the number of admitted attempts not yet recorded. They
	// count against both windows when deciding Open.
	InFlight int `json:"inFlight"`

	EstimatedMinuteCeiling float64 `json:"estimatedMinuteCeiling"`
	EstimatedDayCeiling    float64 `json:"estimatedDayCeiling"`

	MinuteOpen bool `json:"minuteOpen"`
	DayOpen    bool `json:"dayOpen"`

	// Open is the gate: both windows open.
	Open bool `json:"open"`

	// RemainingMinute and RemainingDay are how many more attempts the gate
	// admits in each window; Remaining is the smaller of the two.
	RemainingMinute int `json:"remainingMinute"`
	RemainingDay    int `json:"remainingDay"`
	Remaining       int `json:"remaining"`

	// RemainingRatio is the unused fraction of the estimated day ceiling.
	RemainingRatio float64 `json:"remainingRatio"`

	MinuteWindowStart time.Time  `json:"minuteWindowStart"`
	DayWindowStart    time.Time  `json:"dayWindowStart"`
	LastRateLimitedAt *time.Time `json:"lastRateLimitedAt,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
}
