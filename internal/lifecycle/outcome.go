package lifecycle

import (
	"fmt"

	"github.com/adamancini/swapup/internal/update"
)

// OutcomeKind is the result of a lifecycle step.
type OutcomeKind int

const (
	OutcomeNoUpdate OutcomeKind = iota
	OutcomeUpdateAvailable
	OutcomeDownloaded
	OutcomeRelaunched
	OutcomeApplied
	OutcomeCancelled
	OutcomeFailed
)

var outcomeNames = [...]string{
	OutcomeNoUpdate:        "no-update",
	OutcomeUpdateAvailable: "update-available",
	OutcomeDownloaded:      "downloaded",
	OutcomeRelaunched:      "relaunched",
	OutcomeApplied:         "applied",
	OutcomeCancelled:       "cancelled",
	OutcomeFailed:          "failed",
}

func (k OutcomeKind) String() string {
	if k >= 0 && int(k) < len(outcomeNames) {
		return outcomeNames[k]
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome reports what a lifecycle operation did. Err is set only for
// OutcomeFailed.
type Outcome struct {
	Kind      OutcomeKind
	Installed string // installed version as read, empty if not installed
	Candidate *update.Candidate
	Artifact  string
	Err       error
}

// CandidateTag returns the candidate's tag or "".
func (o Outcome) CandidateTag() string {
	if o.Candidate == nil {
		return ""
	}
	return o.Candidate.Release.TagName
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeFailed:
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	case OutcomeUpdateAvailable, OutcomeApplied, OutcomeRelaunched:
		return fmt.Sprintf("%s: %s", o.Kind, o.CandidateTag())
	case OutcomeDownloaded:
		return fmt.Sprintf("%s: %s", o.Kind, o.Artifact)
	default:
		return o.Kind.String()
	}
}

func failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}
