package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeFrame is how far in the future generated articles are set.
type TimeFrame string

const (
	TimeFrameDay   TimeFrame = "day"
	TimeFrameWeek  TimeFrame = "week"
	TimeFrameMonth TimeFrame = "month"
	TimeFrameYear  TimeFrame = "year"
)

// Offset returns the fixed-count offset for the time frame. Months are 30
// days and years are 365 days; no calendar arithmetic is applied.
func (tf TimeFrame) Offset() time.Duration {
	const day = 24 * time.Hour
	switch tf {
	case TimeFrameDay:
		return day
	case TimeFrameWeek:
		return 7 * day
	case TimeFrameMonth:
		return 30 * day
	case TimeFrameYear:
		return 365 * day
	}
	return 0
}

// Valid reports whether tf is one of the known time frames.
func (tf TimeFrame) Valid() bool { return tf.Offset() > 0 }

// Style is the tone requested for generated articles.
type Style string

const (
	StyleNeutral     Style = "neutral"
	StyleOptimistic  Style = "optimistic"
	StylePessimistic Style = "pessimistic"
	StyleSensational Style = "sensational"
	StyleAnalytical  Style = "analytical"
)

var styleTones = map[Style]string{
	StyleNeutral:     "balanced and factual",
	StyleOptimistic:  "positive and hopeful",
	StylePessimistic: "cautious and concerned",
	StyleSensational: "dramatic and attention-grabbing",
	StyleAnalytical:  "thoughtful and detailed analysis",
}

// Tone returns the short tone phrase embedded in prompts.
func (s Style) Tone() string { return styleTones[s] }

// Valid reports whether s is one of the known styles.
func (s Style) Valid() bool {
	_, ok := styleTones[s]
	return ok
}

// Context size bounds for a generation request.
const (
	MinContextSize     = 1
	MaxContextSize     = 50
	DefaultContextSize = 10
)

// GenerationRequest selects context articles and generation parameters.
type GenerationRequest struct {
	Category    string    `json:"category,omitempty"`
	Source      string    `json:"source,omitempty"`
	TimeFrame   TimeFrame `json:"time_frame,omitempty"`
	Style       Style     `json:"style,omitempty"`
	ContextSize int       `json:"context_size,omitempty"`
	Model       string    `json:"model,omitempty"`

	zeroContextSize bool // ContextSize was explicitly set to 0
}

// SetContextSize sets the context size. Unlike assigning the field, an
// explicit 0 is kept and fails Validate instead of taking the default.
func (r *GenerationRequest) SetContextSize(n int) {
	r.ContextSize = n
	r.zeroContextSize = n == 0
}

// UnmarshalJSON distinguishes an omitted context_size from an explicit 0.
func (r *GenerationRequest) UnmarshalJSON(data []byte) error {
	type plain GenerationRequest
	var aux struct {
		plain
		ContextSize *int `json:"context_size"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = GenerationRequest(aux.plain)
	if aux.ContextSize != nil {
		r.SetContextSize(*aux.ContextSize)
	}
	return nil
}

// Normalize fills unset fields with their defaults.
func (r GenerationRequest) Normalize() GenerationRequest {
	if r.TimeFrame == "" {
		r.TimeFrame = TimeFrameWeek
	}
	if r.Style == "" {
		r.Style = StyleNeutral
	}
	if r.ContextSize == 0 && !r.zeroContextSize {
		r.ContextSize = DefaultContextSize
	}
	return r
}

// Validate checks enumerations and the context size range.
func (r GenerationRequest) Validate() error {
	if !r.TimeFrame.Valid() {
		return fmt.Errorf("invalid time_frame %q (valid: day, week, month, year)", r.TimeFrame)
	}
	if !r.Style.Valid() {
		return fmt.Errorf("invalid style %q (valid: neutral, optimistic, pessimistic, sensational, analytical)", r.Style)
	}
	if r.ContextSize < MinContextSize || r.ContextSize > MaxContextSize {
		return fmt.Errorf("context_size must be between %d and %d, got %d", MinContextSize, MaxContextSize, r.ContextSize)
	}
	return nil
}

// GeneratedArticle is a synthetic future article produced by the model.
type GeneratedArticle struct {
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	PredictedDate time.Time `json:"predicted_date"`
	Source        string    `json:"source"`
	Category      string    `json:"category,omitempty"`
}

// GenerationResponse is the batch generation payload.
type GenerationResponse struct {
	GeneratedNews []GeneratedArticle `json:"generated_news"`
	ContextUsed   int                `json:"context_used"`
	TimeFrame     TimeFrame          `json:"time_frame"`
	CreatedAt     time.Time          `json:"created_at"`
}
