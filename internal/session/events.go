package session

import "github.com/stemsi/lms-exam-client/internal/model"

// EventKind tags controller notifications delivered to the UI.
type EventKind string

const (
	// EventPhaseChanged fires on every phase transition.
	EventPhaseChanged EventKind = "phase_changed"
	// EventTick fires once per countdown decrement.
	EventTick EventKind = "tick"
	// EventTimeExpired fires exactly once, when the countdown first hits 0.
	EventTimeExpired EventKind = "time_expired"
	// EventSubmitFailed fires when a submission attempt fails; the session
	// is back in the active phase and may retry.
	EventSubmitFailed EventKind = "submit_failed"
	// EventSubmitted fires once, with the graded result.
	EventSubmitted EventKind = "submitted"
	// EventAutosaveFailed fires when a background draft save fails.
	EventAutosaveFailed EventKind = "autosave_failed"
)

// Event is one tagged controller notification.
type Event struct {
	Kind             EventKind
	Phase            Phase
	RemainingSeconds int
	Err              error
	Result           *model.TestResult
}
