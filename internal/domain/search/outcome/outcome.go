// Package outcome describes how a search submission ended.
package outcome

import "fmt"

// Kind is the outcome variant.
type Kind string

// Outcome kinds.
const (
	Rendered   Kind = "rendered"
	NoResults  Kind = "no_results"
	Failed     Kind = "failed"
	Superseded Kind = "superseded"
)

// Outcome is the result of one submission. Count is set for Rendered,
// Reason for Failed.
type Outcome struct {
	kind   Kind
	count  int
	reason string
	seq    uint64
}

// NewRendered reports that count survey features were handed to rendering.
func NewRendered(seq uint64, count int) Outcome {
	return Outcome{kind: Rendered, count: count, seq: seq}
}

// NewNoResults reports an empty search or an empty chain stage.
func NewNoResults(seq uint64) Outcome {
	return Outcome{kind: NoResults, seq: seq}
}

// NewFailed reports a failed submission with a human readable reason.
func NewFailed(seq uint64, reason string) Outcome {
	return Outcome{kind: Failed, reason: reason, seq: seq}
}

// NewSuperseded reports a submission discarded because a newer one started.
func NewSuperseded(seq uint64) Outcome {
	return Outcome{kind: Superseded, seq: seq}
}

// Kind returns the variant.
func (o Outcome) Kind() Kind { return o.kind }

// Count returns the number of rendered survey features.
func (o Outcome) Count() int { return o.count }

// Reason returns the failure reason.
func (o Outcome) Reason() string { return o.reason }

// Seq returns the submission sequence number.
func (o Outcome) Seq() uint64 { return o.seq }

func (o Outcome) String() string {
	switch o.kind {
	case Rendered:
		return fmt.Sprintf("rendered(%d)", o.count)
	case Failed:
		return fmt.Sprintf("failed(%s)", o.reason)
	default:
		return string(o.kind)
	}
}
