// Package session implements the timed test-taking flow: answer capture,
// draft autosave, tab-switch counting, countdown-driven auto-submit, and
// exactly-once submission.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/lms-exam-client/internal/draft"
	"github.com/stemsi/lms-exam-client/internal/model"
)

// Phase is the session state.
type Phase string

const (
	PhaseLoading    Phase = "LOADING"
	PhaseActive     Phase = "ACTIVE"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseSubmitted  Phase = "SUBMITTED"
	PhaseFailed     Phase = "FAILED"
)

// DefaultAutosaveInterval matches the browser client's 30-second cadence.
const DefaultAutosaveInterval = 30 * time.Second

// ErrNotActive is returned when an operation requires an active session.
var ErrNotActive = errors.New("session is not active")

// ContentService is the slice of the API client the controller depends on.
type ContentService interface {
	FetchTest(ctx context.Context, moduleID string) (*model.TestDefinition, error)
	SubmitTest(ctx context.Context, moduleID string, sub *model.TestSubmission) (*model.TestResult, error)
}

// Controller owns one exam attempt: the test definition, in-progress
// answers, the countdown, proctoring counters, and draft persistence.
//
// Every public method serializes on one mutex, so the countdown tick, the
// autosave timer, tab-switch signals, answer edits, and submit calls never
// interleave mid-mutation. The only calls made outside the lock are the two
// network round trips (fetch, submit) and draft store I/O.
type Controller struct {
	moduleID string
	svc      ContentService
	drafts   draft.Store
	log      zerolog.Logger

	autosaveEvery time.Duration
	now           func() time.Time

	mu          sync.Mutex
	phase       Phase
	beginning   bool
	def         *model.TestDefinition
	answers     model.AnswerSet
	startTime   time.Time
	remaining   *int
	tabSwitches int
	result      *model.TestResult
	lastErr     error

	// draftMu orders draft writes against the post-submit clear, so an
	// autosave in flight when a submission succeeds cannot write the
	// draft back after Clear.
	draftMu sync.Mutex

	events chan Event
}

// Option customizes a Controller.
type Option func(*Controller)

// WithAutosaveInterval overrides the draft autosave cadence.
func WithAutosaveInterval(d time.Duration) Option {
	return func(c *Controller) { c.autosaveEvery = d }
}

// WithClock injects the time source. Tests use this to freeze elapsed time.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a controller in the loading phase. Call Begin to fetch the
// test and activate the session.
func New(moduleID string, svc ContentService, drafts draft.Store, log zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		moduleID:      moduleID,
		svc:           svc,
		drafts:        drafts,
		log:           log.With().Str("component", "exam_session").Str("module_id", moduleID).Logger(),
		autosaveEvery: DefaultAutosaveInterval,
		now:           time.Now,
		phase:         PhaseLoading,
		events:        make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the notification stream. Events are dropped, not blocked
// on, when the consumer falls behind.
func (c *Controller) Events() <-chan Event { return c.events }

// emit delivers a notification without blocking. Callers hold no locks, so
// a consumer reacting to an event may safely call back into the controller.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Debug().Str("kind", string(ev.Kind)).Msg("Event dropped, consumer behind")
	}
}

// Begin fetches the test definition and activates the session: answers are
// initialized one per question, a stored draft (if any parses) replaces the
// empty values, and the countdown is armed when the test carries a time
// limit. Allowed from the loading or failed phase; a failed fetch leaves no
// partial session behind.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.beginning || (c.phase != PhaseLoading && c.phase != PhaseFailed) {
		c.mu.Unlock()
		return fmt.Errorf("begin: session already %s", c.phase)
	}
	// The fetch runs outside the lock; the flag keeps a second Begin from
	// passing the guard and double-fetching in the meantime.
	c.beginning = true
	c.mu.Unlock()

	def, err := c.svc.FetchTest(ctx, c.moduleID)
	if err != nil {
		c.mu.Lock()
		c.beginning = false
		c.phase = PhaseFailed
		c.lastErr = err
		c.mu.Unlock()
		c.emit(Event{Kind: EventPhaseChanged, Phase: PhaseFailed, Err: err})
		return fmt.Errorf("fetch test: %w", err)
	}

	answers := model.NewAnswerSet(def.Questions)
	c.restoreDraft(ctx, def, answers)

	c.mu.Lock()
	c.beginning = false
	c.def = def
	c.answers = answers
	c.startTime = c.now()
	if def.Settings.TimeLimitMinutes != nil {
		secs := *def.Settings.TimeLimitMinutes * 60
		c.remaining = &secs
	}
	c.phase = PhaseActive
	c.mu.Unlock()

	c.log.Info().
		Int("questions", len(def.Questions)).
		Bool("timed", def.Settings.TimeLimitMinutes != nil).
		Msg("Session active")
	c.emit(Event{Kind: EventPhaseChanged, Phase: PhaseActive})
	return nil
}

// restoreDraft merges a stored draft into the freshly initialized answers.
// A missing, unreadable, or corrupt draft is never fatal: the session
// proceeds with whatever could be recovered.
func (c *Controller) restoreDraft(ctx context.Context, def *model.TestDefinition, answers model.AnswerSet) {
	data, ok, err := c.drafts.Get(ctx, c.moduleID)
	if err != nil {
		c.log.Warn().Err(err).Msg("Draft read failed, starting clean")
		return
	}
	if !ok {
		return
	}

	var saved model.AnswerSet
	if err := json.Unmarshal(data, &saved); err != nil {
		c.log.Warn().Err(err).Msg("Draft corrupt, discarding")
		return
	}
	answers.MergeDraft(saved)

	// A draft written against an older revision of the test can carry the
	// wrong value shape. Reset such entries to keep the set well-formed.
	for _, q := range def.Questions {
		if answers[q.ID].IsChoice() != (q.Type == model.QuestionTypeMultipleChoice) {
			answers[q.ID] = model.EmptyAnswer(q.Type)
		}
	}
	c.log.Info().Int("restored", len(saved)).Msg("Draft restored")
}

// RecordAnswer updates the answer for a question. With multi set it toggles
// the option's membership in the selected set; otherwise it replaces the
// text value. No-op outside the active phase, for unknown question ids, and
// for option ids the question does not offer.
func (c *Controller) RecordAnswer(questionID, value string, multi bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return
	}
	current, ok := c.answers[questionID]
	if !ok {
		return
	}
	if multi {
		q := c.def.QuestionByID(questionID)
		if q == nil || !q.HasOption(value) {
			return
		}
		c.answers[questionID] = current.Toggle(value)
	} else {
		c.answers[questionID] = model.Answer{Text: value}
	}
}

// RecordTabSwitch increments the tab-switch counter. Call once per
// visibility-loss transition. The counter never decreases.
func (c *Controller) RecordTabSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive && c.phase != PhaseSubmitting {
		return
	}
	c.tabSwitches++
}

// Tick advances the countdown by one second. When the countdown first
// reaches zero it triggers exactly one auto-submit; after that the clock is
// frozen at zero and further ticks are no-ops.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	if c.phase != PhaseActive || c.remaining == nil || *c.remaining <= 0 {
		c.mu.Unlock()
		return
	}
	*c.remaining--
	expired := *c.remaining == 0
	left := *c.remaining
	c.mu.Unlock()

	c.emit(Event{Kind: EventTick, Phase: PhaseActive, RemainingSeconds: left})
	if expired {
		c.log.Info().Msg("Time limit reached, auto-submitting")
		c.emit(Event{Kind: EventTimeExpired, Phase: PhaseActive})
		if err := c.Submit(ctx); err != nil {
			c.log.Error().Err(err).Msg("Auto-submit failed")
		}
	}
}

// Submit freezes the elapsed time, builds the submission in question order,
// and sends it. Re-entrant calls while a submission is in flight, and calls
// after a successful submission, are silently ignored — the auto-submit
// firing in the same instant as a user click must collapse to one network
// call. On failure the session returns to the active phase with answers and
// clock untouched so the user can retry.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseSubmitting, PhaseSubmitted:
		c.mu.Unlock()
		return nil
	case PhaseActive:
	default:
		c.mu.Unlock()
		return ErrNotActive
	}

	var timeSpent *int
	if !c.startTime.IsZero() {
		secs := int(c.now().Sub(c.startTime) / time.Second)
		timeSpent = &secs
	}
	sub := model.BuildSubmission(c.def, c.answers.Clone(), timeSpent, c.tabSwitches)
	c.phase = PhaseSubmitting
	c.mu.Unlock()
	c.emit(Event{Kind: EventPhaseChanged, Phase: PhaseSubmitting})

	result, err := c.svc.SubmitTest(ctx, c.moduleID, sub)
	if err != nil {
		c.mu.Lock()
		c.phase = PhaseActive
		c.lastErr = err
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("Submission failed, session stays active")
		c.emit(Event{Kind: EventSubmitFailed, Phase: PhaseActive, Err: err})
		c.emit(Event{Kind: EventPhaseChanged, Phase: PhaseActive})
		return fmt.Errorf("submit test: %w", err)
	}

	c.mu.Lock()
	c.phase = PhaseSubmitted
	c.result = result
	c.mu.Unlock()

	// The attempt is recorded server-side; the draft has served its purpose.
	// draftMu makes this clear wait out any autosave write in flight.
	c.draftMu.Lock()
	clearErr := c.drafts.Clear(ctx, c.moduleID)
	c.draftMu.Unlock()
	if clearErr != nil {
		c.log.Warn().Err(clearErr).Msg("Draft clear failed")
	}

	c.log.Info().
		Float64("score", result.Score).
		Float64("max_score", result.MaxScore).
		Bool("passed", result.Passed).
		Msg("Submission graded")
	c.emit(Event{Kind: EventSubmitted, Phase: PhaseSubmitted, Result: result})
	c.emit(Event{Kind: EventPhaseChanged, Phase: PhaseSubmitted})
	return nil
}

// Autosave serializes the answer set to the draft store. A side-channel
// persistence pass, not a phase transition; failures are reported but never
// interrupt the attempt.
func (c *Controller) Autosave(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(c.answers)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	c.draftMu.Lock()
	defer c.draftMu.Unlock()
	// A submit may have completed while the payload was being encoded.
	// Writing it now would resurrect the draft that success just cleared.
	if c.Phase() != PhaseActive {
		return nil
	}
	if err := c.drafts.Set(ctx, c.moduleID, data); err != nil {
		c.emit(Event{Kind: EventAutosaveFailed, Phase: c.Phase(), Err: err})
		return fmt.Errorf("save draft: %w", err)
	}
	c.log.Debug().Msg("Draft autosaved")
	return nil
}

// Run drives the session's timers: the 1-second countdown tick and the
// periodic autosave. It blocks until ctx is cancelled; both tickers are
// released on every exit path. A submission in flight at cancellation is
// not interrupted.
func (c *Controller) Run(ctx context.Context) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	save := time.NewTicker(c.autosaveEvery)
	defer save.Stop()

	c.log.Debug().Dur("autosave_every", c.autosaveEvery).Msg("Session loop started")
	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Msg("Session loop stopped")
			return
		case <-tick.C:
			c.Tick(ctx)
		case <-save.C:
			if err := c.Autosave(ctx); err != nil {
				c.log.Warn().Err(err).Msg("Autosave failed")
			}
		}
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Definition returns the test definition once the session is active.
// The definition is read-only shared state; callers must not mutate it.
func (c *Controller) Definition() *model.TestDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.def
}

// Snapshot is a consistent copy of the mutable session state for rendering.
type Snapshot struct {
	Phase            Phase
	Answers          model.AnswerSet
	RemainingSeconds *int
	ElapsedSeconds   int
	TabSwitches      int
	Result           *model.TestResult
	Err              error
}

// Snapshot returns a copy of the session state. The answer set is deep
// copied so callers can render without racing the timers.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Phase:       c.phase,
		TabSwitches: c.tabSwitches,
		Result:      c.result,
		Err:         c.lastErr,
	}
	if c.answers != nil {
		snap.Answers = c.answers.Clone()
	}
	if c.remaining != nil {
		left := *c.remaining
		snap.RemainingSeconds = &left
	}
	if !c.startTime.IsZero() {
		snap.ElapsedSeconds = int(c.now().Sub(c.startTime) / time.Second)
	}
	return snap
}
