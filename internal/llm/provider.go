// Package llm is the transport to the local generation endpoint (Ollama):
// batch and streaming text generation plus the model registry.
package llm

import (
	"errors"
	"fmt"
)

// Common errors returned by the generation client.
var (
	ErrProviderDown = errors.New("llm: provider unavailable")
	ErrStreamIdle   = errors.New("llm: stream idle timeout")
)

// Sampling defaults used for every future-news generation call.
const (
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
)

// StatusError reports a non-success HTTP status from the generation endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: HTTP %d: %s", e.StatusCode, e.Body)
}

// Options is the sampling configuration sent with a generation request.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// DefaultOptions returns the fixed sampling configuration.
func DefaultOptions() Options {
	return Options{Temperature: DefaultTemperature, TopP: DefaultTopP}
}

// GenerateRequest is a single prompt submission.
type GenerateRequest struct {
	Model   string  // empty means the client's default model
	Prompt  string
	System  string
	Options Options
}

// Fragment is one incremental piece of streamed text. A Fragment with a
// non-nil Err is the last value sent before the channel closes.
type Fragment struct {
	Text string
	Err  error
}
