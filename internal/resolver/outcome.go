package resolver

import (
	"fmt"
	"strings"
)

// Status is the terminal state of resolving one member.
type Status int

const (
	StatusUnchanged Status = iota
	StatusUpdated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUnchanged:
		return "unchanged"
	case StatusUpdated:
		return "updated"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Failure reasons recorded on Failed outcomes.
const (
	ReasonParse         = "parse error"
	ReasonFetchVersion  = "failed to get version"
	ReasonMetadata      = "invalid version metadata"
	ReasonFetchUpdates  = "failed to get version updates"
	ReasonNoValidUpdate = "failed to get latest valid version"
	ReasonCanceled      = "run canceled"
	ReasonUnexpected    = "unexpected error"
)

// Outcome is the result of resolving one member. Exactly one of the three
// statuses applies; Reason, Detail and Err are only set when Failed.
type Outcome struct {
	Index  int
	Member string
	Status Status

	PreviousLocator string
	Locator         string
	CurrentVersion  string
	LatestVersion   string

	Reason string
	Detail string
	Err    error
}

// Updated builds an outcome for a member moved to a new locator.
func Updated(index int, member, previous, locator string) Outcome {
	return Outcome{Index: index, Member: member, Status: StatusUpdated, PreviousLocator: previous, Locator: locator}
}

// Unchanged builds an outcome for a member already on the selected locator.
func Unchanged(index int, member, locator string) Outcome {
	return Outcome{Index: index, Member: member, Status: StatusUnchanged, PreviousLocator: locator, Locator: locator}
}

// Failed builds a failure outcome. The member's locator is left as it was.
func Failed(index int, member, locator, reason, detail string, err error) Outcome {
	return Outcome{
		Index:           index,
		Member:          member,
		Status:          StatusFailed,
		PreviousLocator: locator,
		Locator:         locator,
		Reason:          reason,
		Detail:          detail,
		Err:             err,
	}
}

// Failure renders a one-line description for the run summary.
func (o Outcome) Failure() string {
	if o.Status != StatusFailed {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", o.Member, o.Reason)
	if o.Detail != "" {
		fmt.Fprintf(&b, " for %s", o.Detail)
	}
	if o.Err != nil {
		fmt.Fprintf(&b, ": %v", o.Err)
	}
	return b.String()
}
