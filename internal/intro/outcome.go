package intro

import "fmt"

// Status is the coarse result of handling one presence transition.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusTriggered Status = "triggered"
	StatusFailed    Status = "failed"
)

// Reason names the guard that skipped a transition.
type Reason string

const (
	ReasonNotAJoin            Reason = "not_a_join"
	ReasonNoGuild             Reason = "no_guild"
	ReasonNoRule              Reason = "no_rule"
	ReasonChannelNotMonitored Reason = "channel_not_monitored"
	ReasonCooldown            Reason = "cooldown"
	ReasonBusy                Reason = "busy"
)

// Outcome is the result of [Trigger.OnTransition].
type Outcome struct {
	Status Status
	Reason Reason // set for StatusSkipped
	Err    error  // set for StatusFailed
}

// Skipped returns an outcome for a transition that did not qualify.
func Skipped(r Reason) Outcome { return Outcome{Status: StatusSkipped, Reason: r} }

// Triggered returns an outcome for a started intro.
func Triggered() Outcome { return Outcome{Status: StatusTriggered} }

// Failed returns an outcome for an intro that qualified but could not play.
func Failed(err error) Outcome { return Outcome{Status: StatusFailed, Err: err} }

func (o Outcome) String() string {
	switch o.Status {
	case StatusSkipped:
		return fmt.Sprintf("skipped (%s)", o.Reason)
	case StatusFailed:
		return fmt.Sprintf("failed: %v", o.Err)
	default:
		return string(o.Status)
	}
}

// MissingClipError reports an intro rule naming a clip that is not in the
// catalog.
type MissingClipError struct {
	UserID string
	Clip   string
}

func (e *MissingClipError) Error() string {
	return fmt.Sprintf("intro: clip %q configured for user %s not found", e.Clip, e.UserID)
}
