package resolve

import (
	"fmt"
	"time"

	"nl2sql/internal/classify"
)

type Outcome int

const (
	Accepted Outcome = iota + 1
	RejectedSyntax
	RejectedPlan
	// GenerationFailed marks an attempt where the model call itself failed
	// and no candidate was produced.
	GenerationFailed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case RejectedSyntax:
		return "rejected_syntax"
	case RejectedPlan:
		return "rejected_plan"
	case GenerationFailed:
		return "generation_failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// AttemptError is the classified failure of an attempt.
type AttemptError struct {
	Kind    classify.Kind `json:"kind"`
	Message string        `json:"message"`
}

// Attempt is one pass through the loop. Attempts are never modified after
// they are recorded.
type Attempt struct {
	Number   int           `json:"attempt_number"`
	SQL      string        `json:"sql"`
	Outcome  Outcome       `json:"outcome"`
	Err      *AttemptError `json:"error,omitempty"`
	Plan     []string      `json:"plan,omitempty"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
}

type State int

const (
	StateAccepted State = iota + 1
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is what Resolve hands back. SQL is empty unless State is
// StateAccepted; LastError is nil on acceptance.
type Result struct {
	SQL          string        `json:"sql,omitempty"`
	AttemptsMade int           `json:"attempts_made"`
	LastError    *AttemptError `json:"last_error,omitempty"`
	State        State         `json:"state"`
	Attempts     []Attempt     `json:"attempts"`
	Duration     time.Duration `json:"duration"`
}

func (r Result) Accepted() bool {
	return r.State == StateAccepted && r.SQL != ""
}

// Failure is the user-facing explanation of an exhausted run. It names the
// number of attempts, the last error kind and a sanitized excerpt of the
// last message. It is empty for accepted results.
func (r Result) Failure() string {
	if r.Accepted() {
		return ""
	}
	kind := classify.Other
	msg := ""
	if r.LastError != nil {
		kind = r.LastError.Kind
		msg = r.LastError.Message
	}
	return fmt.Sprintf("Could not produce a valid SQL query after %d %s (last error: %s).\n\n%s",
		r.AttemptsMade, plural(r.AttemptsMade, "attempt"), kind, classify.UserMessage(kind, msg))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
