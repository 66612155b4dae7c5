package domain

import "fmt"

// Status is the processing state of a VideoRecord.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTranscribing Status = "transcribing"
	StatusIndexed      Status = "indexed"
	StatusFailed       Status = "failed"
)

// Failure reasons recorded by the pipeline itself.
const (
	ReasonCancelled   = "cancelled"
	ReasonInterrupted = "interrupted"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusTranscribing},
	StatusTranscribing: {StatusIndexed, StatusFailed},
	StatusFailed:       {StatusPending},
	StatusIndexed:      {StatusPending},
}

// ParseStatus converts a stored status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown video status %q", s)
	}
	return st, nil
}

// CanTransition reports whether moving from s to next is allowed.
// failed -> pending is the explicit retry; indexed -> pending starts a
// re-processing attempt.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when s cannot move to next.
func (s Status) CheckTransition(next Status) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}
