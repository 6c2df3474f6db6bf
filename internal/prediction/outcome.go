package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// OutcomeKind is the terminal state of a single model dispatch.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeProcessFailed
	OutcomeParseFailed
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeProcessFailed:
		return "process_failed"
	case OutcomeParseFailed:
		return "parse_failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Reply is the structured output the model writes to stdout.
type Reply struct {
	PredictedPW float64 `json:"predicted_pw"`
	Uncertainty float64 `json:"uncertainty"`
	Method      string  `json:"method"`
	Note        string  `json:"note,omitempty"`
}

// Outcome is exactly one of Succeeded, ProcessFailed, ParseFailed or TimedOut.
// Only the fields belonging to Kind are meaningful.
type Outcome struct {
	Kind     OutcomeKind
	Reply    Reply
	ExitCode int
	Stderr   string
	Raw      string
}

// Succeeded builds a successful outcome.
func Succeeded(r Reply) Outcome {
	return Outcome{Kind: OutcomeSucceeded, Reply: r}
}

// ProcessFailed builds an outcome for a process that could not start or exited non-zero.
func ProcessFailed(exitCode int, stderr string) Outcome {
	return Outcome{Kind: OutcomeProcessFailed, ExitCode: exitCode, Stderr: stderr}
}

// ParseFailed builds an outcome for a process whose stdout was not a valid reply.
func ParseFailed(raw string) Outcome {
	return Outcome{Kind: OutcomeParseFailed, Raw: raw}
}

// TimedOut builds an outcome for a process killed by the dispatch deadline.
func TimedOut() Outcome {
	return Outcome{Kind: OutcomeTimedOut}
}

// Reason is the short explanation placed in a fallback note.
func (o Outcome) Reason() string {
	switch o.Kind {
	case OutcomeProcessFailed:
		return fmt.Sprintf("Model process failed (exit code %d)", o.ExitCode)
	case OutcomeParseFailed:
		return "Model output could not be parsed"
	case OutcomeTimedOut:
		return "Model prediction timed out"
	default:
		return ""
	}
}

// ModelRunner executes the trained model against a JSON payload.
type ModelRunner interface {
	// Available reports whether the trained model artifact is installed.
	Available() bool

	// Run dispatches the payload and resolves to exactly one Outcome.
	// It never returns an error; every failure is an Outcome kind.
	Run(ctx context.Context, payload []byte) Outcome
}

type rawReply struct {
	PredictedPW *float64 `json:"predicted_pw"`
	Uncertainty *float64 `json:"uncertainty"`
	Method      string   `json:"method"`
	Note        string   `json:"note"`
}

// ParseReply decodes model stdout. It accepts a single JSON object with numeric
// predicted_pw and uncertainty fields.
func ParseReply(stdout []byte) (Reply, bool) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Reply{}, false
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var raw rawReply
	if err := dec.Decode(&raw); err != nil {
		return Reply{}, false
	}
	if dec.More() {
		return Reply{}, false
	}
	if raw.PredictedPW == nil || raw.Uncertainty == nil {
		return Reply{}, false
	}

	return Reply{
		PredictedPW: *raw.PredictedPW,
		Uncertainty: *raw.Uncertainty,
		Method:      raw.Method,
		Note:        raw.Note,
	}, true
}
