package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit   int    // max results (0 = unlimited)
	Purpose string // exact purpose match ("" = any)
	Session string // exact session match ("" = any), served events and answers only
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEvent is a stored LLM request event.
type LLMEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// UsageStat aggregates LLM requests by purpose or model.
type UsageStat struct {
	Purpose      string
	Model        string
	Calls        int
	Failures     int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ServedEventData records one question handed to a learner.
type ServedEventData struct {
	SessionID      string
	QuestionID     string
	Chapter        string
	Origin         string
	FallbackReason string
}

// ServedEvent is a stored ServedEventData.
type ServedEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	ServedEventData
}

// OriginCount is the number of served questions per origin.
type OriginCount struct {
	Origin string
	Count  int
}

// AnswerEventData records one graded answer.
type AnswerEventData struct {
	SessionID  string
	QuestionID string
	Chapter    string
	Origin     string
	Choice     int
	Correct    bool
}

// AnswerEvent is a stored AnswerEventData.
type AnswerEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	AnswerEventData
}

// AnswerStat is the answer tally for one chapter.
type AnswerStat struct {
	Chapter  string
	Answered int
	Correct  int
}

// Accuracy is the fraction answered correctly, 0 with no answers.
func (s AnswerStat) Accuracy() float64 {
	if s.Answered == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Answered)
}

// EventRepo provides append and query access to domain events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns LLM events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error)

	// GetLLMEvent returns a single event, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error)

	// LLMUsageByPurpose aggregates token usage per purpose.
	LLMUsageByPurpose(ctx context.Context) ([]UsageStat, error)

	// LLMUsageByModel aggregates token usage per model.
	LLMUsageByModel(ctx context.Context) ([]UsageStat, error)

	// AppendServed records a served question.
	AppendServed(ctx context.Context, data ServedEventData) error

	// QueryServed returns served events newest first.
	QueryServed(ctx context.Context, opts QueryOpts) ([]ServedEvent, error)

	// ServedByOrigin counts served questions per origin.
	ServedByOrigin(ctx context.Context) ([]OriginCount, error)

	// AppendAnswer records a graded answer.
	AppendAnswer(ctx context.Context, data AnswerEventData) error

	// QueryAnswers returns answers newest first.
	QueryAnswers(ctx context.Context, opts QueryOpts) ([]AnswerEvent, error)

	// AnswersByChapter tallies answers and correct answers per chapter.
	AnswersByChapter(ctx context.Context) ([]AnswerStat, error)
}
