package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/lms-exam-client/internal/draft"
	"github.com/stemsi/lms-exam-client/internal/model"
)

// fakeService is an in-memory ContentService.
type fakeService struct {
	mu          sync.Mutex
	def         *model.TestDefinition
	fetchErr    error
	fetchDelay  time.Duration
	fetches     int
	submitErrs  []error // consumed one per call; nil entry means success
	submitDelay time.Duration
	submissions []*model.TestSubmission
}

func (f *fakeService) FetchTest(_ context.Context, _ string) (*model.TestDefinition, error) {
	if f.fetchDelay > 0 {
		time.Sleep(f.fetchDelay)
	}
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.def, nil
}

func (f *fakeService) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeService) SubmitTest(_ context.Context, _ string, sub *model.TestSubmission) (*model.TestResult, error) {
	if f.submitDelay > 0 {
		time.Sleep(f.submitDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if len(f.submitErrs) > 0 {
		err, f.submitErrs = f.submitErrs[0], f.submitErrs[1:]
	}
	if err != nil {
		return nil, err
	}
	f.submissions = append(f.submissions, sub)
	return &model.TestResult{Score: 1, MaxScore: 1, Percentage: 100, Passed: true}, nil
}

func (f *fakeService) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

// memStore is an in-memory draft.Store.
type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	clears int
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, moduleID string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[moduleID]
	return data, ok, nil
}

func (s *memStore) Set(_ context.Context, moduleID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[moduleID] = data
	return nil
}

func (s *memStore) Clear(_ context.Context, moduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, moduleID)
	s.clears++
	return nil
}

func (s *memStore) Close() error { return nil }

// blockingStore stalls its first Set until released, so tests can hold an
// autosave write open across a concurrent submission.
type blockingStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		memStore: newMemStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (s *blockingStore) Set(ctx context.Context, moduleID string, data []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.memStore.Set(ctx, moduleID, data)
}

func intPtr(v int) *int { return &v }

func twoChoiceDef(timeLimitMinutes *int) *model.TestDefinition {
	return &model.TestDefinition{
		ModuleID: "mod-1",
		Questions: []model.Question{
			{
				ID: "q1", Type: model.QuestionTypeMultipleChoice, Question: "pick",
				Options: []model.Option{{ID: "a"}, {ID: "b"}, {ID: "c"}}, Points: 1,
			},
			{
				ID: "q2", Type: model.QuestionTypeMultipleChoice, Question: "pick",
				Options: []model.Option{{ID: "a"}, {ID: "b"}}, Points: 1,
			},
		},
		Settings: model.TestSettings{PassingThreshold: 0.5, TimeLimitMinutes: timeLimitMinutes},
	}
}

func newController(t *testing.T, svc *fakeService, store draft.Store, opts ...Option) *Controller {
	t.Helper()
	return New("mod-1", svc, store, zerolog.Nop(), opts...)
}

func mustBegin(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := c.Phase(); got != PhaseActive {
		t.Fatalf("phase after Begin = %s, want %s", got, PhaseActive)
	}
}

func TestBeginInitializesAnswerPerQuestion(t *testing.T) {
	def := twoChoiceDef(nil)
	def.Questions = append(def.Questions, model.Question{
		ID: "q3", Type: model.QuestionTypeText, Question: "write", Points: 1,
	})
	c := newController(t, &fakeService{def: def}, newMemStore())
	mustBegin(t, c)

	answers := c.Snapshot().Answers
	if len(answers) != len(def.Questions) {
		t.Fatalf("answer count = %d, want %d", len(answers), len(def.Questions))
	}
	for _, q := range def.Questions {
		ans, ok := answers[q.ID]
		if !ok {
			t.Fatalf("no answer entry for %s", q.ID)
		}
		wantChoice := q.Type == model.QuestionTypeMultipleChoice
		if ans.IsChoice() != wantChoice {
			t.Errorf("answer shape for %s: IsChoice=%v, want %v", q.ID, ans.IsChoice(), wantChoice)
		}
		if len(ans.Selected) != 0 || ans.Text != "" {
			t.Errorf("answer for %s not empty: %+v", q.ID, ans)
		}
	}
}

func TestFetchFailureLeavesNoPartialSession(t *testing.T) {
	svc := &fakeService{fetchErr: errors.New("boom")}
	c := newController(t, svc, newMemStore())

	if err := c.Begin(context.Background()); err == nil {
		t.Fatal("Begin succeeded despite fetch error")
	}
	if got := c.Phase(); got != PhaseFailed {
		t.Fatalf("phase = %s, want %s", got, PhaseFailed)
	}
	if c.Snapshot().Answers != nil {
		t.Error("answers initialized despite failed fetch")
	}

	// A fresh Begin after the failure is the retry path.
	svc.fetchErr = nil
	svc.def = twoChoiceDef(nil)
	mustBegin(t, c)
}

func TestToggleIsIdempotentPair(t *testing.T) {
	c := newController(t, &fakeService{def: twoChoiceDef(nil)}, newMemStore())
	mustBegin(t, c)

	c.RecordAnswer("q1", "b", true)
	if !c.Snapshot().Answers["q1"].Has("b") {
		t.Fatal("option b not selected after first toggle")
	}
	c.RecordAnswer("q1", "b", true)
	if c.Snapshot().Answers["q1"].Has("b") {
		t.Fatal("option b still selected after second toggle")
	}
	if got := c.Snapshot().Answers["q1"].Selected; len(got) != 0 {
		t.Fatalf("selection = %v, want empty", got)
	}
}

func TestRecordAnswerIgnoresUnknownQuestion(t *testing.T) {
	c := newController(t, &fakeService{def: twoChoiceDef(nil)}, newMemStore())
	mustBegin(t, c)

	c.RecordAnswer("nope", "a", true)
	if _, ok := c.Snapshot().Answers["nope"]; ok {
		t.Fatal("answer entry created for unknown question")
	}
}

func TestRecordAnswerIgnoresUnknownOption(t *testing.T) {
	c := newController(t, &fakeService{def: twoChoiceDef(nil)}, newMemStore())
	mustBegin(t, c)

	c.RecordAnswer("q1", "zzz", true)
	if got := c.Snapshot().Answers["q1"].Selected; len(got) != 0 {
		t.Fatalf("selection = %v, want empty after toggling an option the question lacks", got)
	}
}

func TestConcurrentBeginFetchesOnce(t *testing.T) {
	svc := &fakeService{def: twoChoiceDef(nil), fetchDelay: 20 * time.Millisecond}
	c := newController(t, svc, newMemStore())

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- c.Begin(context.Background()) }()
	}

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("failed Begins = %d, want exactly 1", failures)
	}
	if got := svc.fetchCount(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
	if got := c.Phase(); got != PhaseActive {
		t.Fatalf("phase = %s, want %s", got, PhaseActive)
	}
}

func TestCountdownAutoSubmitsExactlyOnce(t *testing.T) {
	svc := &fakeService{def: twoChoiceDef(intPtr(1))}
	c := newController(t, svc, newMemStore())
	mustBegin(t, c)

	ctx := context.Background()
	for i := 0; i < 75; i++ {
		c.Tick(ctx)
	}

	if got := svc.submitCount(); got != 1 {
		t.Fatalf("submissions = %d, want exactly 1", got)
	}
	if got := c.Phase(); got != PhaseSubmitted {
		t.Fatalf("phase = %s, want %s", got, PhaseSubmitted)
	}
	snap := c.Snapshot()
	if snap.RemainingSeconds == nil || *snap.RemainingSeconds != 0 {
		t.Fatalf("remaining = %v, want frozen at 0", snap.RemainingSeconds)
	}
}

func TestCountdownNeverIncreasesOrGoesNegative(t *testing.T) {
	// A failing submit keeps the session active at zero; further ticks must
	// not push the clock below zero.
	svc := &fakeService{
		def:        twoChoiceDef(intPtr(1)),
		submitErrs: []error{errors.New("network down")},
	}
	c := newController(t, svc, newMemStore())
	mustBegin(t, c)

	ctx := context.Background()
	prev := 60
	for i := 0; i < 80; i++ {
		c.Tick(ctx)
		snap := c.Snapshot()
		if snap.RemainingSeconds == nil {
			t.Fatal("remaining vanished")
		}
		if *snap.RemainingSeconds > prev {
			t.Fatalf("remaining increased: %d -> %d", prev, *snap.RemainingSeconds)
		}
		if *snap.RemainingSeconds < 0 {
			t.Fatalf("remaining went negative: %d", *snap.RemainingSeconds)
		}
		prev = *snap.RemainingSeconds
	}
	if prev != 0 {
		t.Fatalf("remaining = %d, want 0", prev)
	}
	if got := c.Phase(); got != PhaseActive {
		t.Fatalf("phase = %s, want %s after failed auto-submit", got, PhaseActive)
	}
}

func TestConcurrentSubmitCollapsesToOneCall(t *testing.T) {
	svc := &fakeService{def: twoChoiceDef(nil), submitDelay: 20 * time.Millisecond}
	c := newController(t, svc, newMemStore())
	mustBegin(t, c)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Submit(context.Background())
		}()
	}
	wg.Wait()

	if got := svc.submitCount(); got != 1 {
		t.Fatalf("network submissions = %d, want exactly 1", got)
	}
	if got := c.Phase(); got != PhaseSubmitted {
		t.Fatalf("phase = %s, want %s", got, PhaseSubmitted)
	}
	// Submitted is terminal: further submits are silently ignored.
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("re-submit after success returned %v, want nil", err)
	}
	if got := svc.submitCount(); got != 1 {
		t.Fatalf("submissions after terminal re-submit = %d, want 1", got)
	}
}

func TestSubmissionPayload(t *testing.T) {
	// Scenario: two multiple_choice questions, no time limit. The user picks
	// a and c on q1, leaves q2 untouched, and submits.
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	now := base
	var nowMu sync.Mutex
	clock := func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return now
	}

	svc := &fakeService{def: twoChoiceDef(nil)}
	c := newController(t, svc, newMemStore(), WithClock(clock))
	mustBegin(t, c)

	c.RecordAnswer("q1", "a", true)
	c.RecordAnswer("q1", "c", true)

	nowMu.Lock()
	now = base.Add(95500 * time.Millisecond) // 95.5s elapsed, floors to 95
	nowMu.Unlock()

	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := svc.submitCount(); got != 1 {
		t.Fatalf("submissions = %d, want 1", got)
	}
	sub := svc.submissions[0]

	if len(sub.Answers) != 2 {
		t.Fatalf("answers = %d entries, want 2", len(sub.Answers))
	}
	if sub.Answers[0].QuestionID != "q1" || sub.Answers[1].QuestionID != "q2" {
		t.Fatalf("answer order = [%s %s], want definition order [q1 q2]",
			sub.Answers[0].QuestionID, sub.Answers[1].QuestionID)
	}
	q1 := sub.Answers[0].Answer.Selected
	if len(q1) != 2 || q1[0] != "a" || q1[1] != "c" {
		t.Fatalf("q1 selection = %v, want [a c]", q1)
	}
	q2 := sub.Answers[1].Answer.Selected
	if q2 == nil || len(q2) != 0 {
		t.Fatalf("q2 selection = %v, want empty set", q2)
	}
	if sub.TimeSpentSeconds == nil || *sub.TimeSpentSeconds != 95 {
		t.Fatalf("time_spent_seconds = %v, want 95", sub.TimeSpentSeconds)
	}
	if sub.SuspiciousActivity.TabSwitches != 0 {
		t.Fatalf("tab_switches = %d, want 0", sub.SuspiciousActivity.TabSwitches)
	}
}

func TestSubmitFailureReturnsToActiveAndRetries(t *testing.T) {
	// Scenario: the endpoint errors once, then succeeds on retry.
	svc := &fakeService{
		def:        twoChoiceDef(nil),
		submitErrs: []error{errors.New("503")},
	}
	store := newMemStore()
	c := newController(t, svc, store)
	mustBegin(t, c)

	c.RecordAnswer("q1", "b", true)
	if err := c.Autosave(context.Background()); err != nil {
		t.Fatalf("Autosave: %v", err)
	}

	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("first Submit succeeded, want failure")
	}
	if got := c.Phase(); got != PhaseActive {
		t.Fatalf("phase after failure = %s, want %s", got, PhaseActive)
	}
	if !c.Snapshot().Answers["q1"].Has("b") {
		t.Fatal("answers were disturbed by the failed submit")
	}
	if store.clears != 0 {
		t.Fatal("draft cleared before a successful submission")
	}

	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if got := c.Phase(); got != PhaseSubmitted {
		t.Fatalf("phase after retry = %s, want %s", got, PhaseSubmitted)
	}
	if store.clears != 1 {
		t.Fatalf("draft clears = %d, want 1 after success", store.clears)
	}
	if _, ok, _ := store.Get(context.Background(), "mod-1"); ok {
		t.Fatal("draft still present after successful submission")
	}
}

func TestAutosaveDuringSubmitDoesNotResurrectDraft(t *testing.T) {
	// An autosave already inside the store write when a submission succeeds
	// must not land its draft after the post-submit clear.
	svc := &fakeService{def: twoChoiceDef(nil)}
	store := newBlockingStore()
	c := newController(t, svc, store)
	mustBegin(t, c)
	c.RecordAnswer("q1", "a", true)

	saved := make(chan error, 1)
	go func() { saved <- c.Autosave(context.Background()) }()
	<-store.entered // autosave is now inside Set

	submitted := make(chan error, 1)
	go func() { submitted <- c.Submit(context.Background()) }()

	// The submission reaches its terminal phase while the draft write is
	// still held open.
	deadline := time.After(time.Second)
	for c.Phase() != PhaseSubmitted {
		select {
		case <-deadline:
			t.Fatal("submit did not reach the terminal phase")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(store.release)
	if err := <-saved; err != nil {
		t.Fatalf("Autosave: %v", err)
	}
	if err := <-submitted; err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, ok, _ := store.Get(context.Background(), "mod-1"); ok {
		t.Fatal("draft present after successful submission")
	}
}

func TestDraftRoundTrip(t *testing.T) {
	svc := &fakeService{def: twoChoiceDef(nil)}
	store := newMemStore()

	first := newController(t, svc, store)
	mustBegin(t, first)
	first.RecordAnswer("q1", "a", true)
	first.RecordAnswer("q1", "c", true)
	first.RecordAnswer("q2", "b", true)
	if err := first.Autosave(context.Background()); err != nil {
		t.Fatalf("Autosave: %v", err)
	}

	second := newController(t, svc, store)
	mustBegin(t, second)
	answers := second.Snapshot().Answers
	if got := answers["q1"].Selected; len(got) != 2 || !answers["q1"].Has("a") || !answers["q1"].Has("c") {
		t.Fatalf("q1 restored as %v, want {a c}", got)
	}
	if !answers["q2"].Has("b") {
		t.Fatalf("q2 restored as %v, want {b}", answers["q2"].Selected)
	}
}

func TestCorruptDraftIsDiscarded(t *testing.T) {
	store := newMemStore()
	if err := store.Set(context.Background(), "mod-1", []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	c := newController(t, &fakeService{def: twoChoiceDef(nil)}, store)
	mustBegin(t, c)

	answers := c.Snapshot().Answers
	if len(answers) != 2 {
		t.Fatalf("answer count = %d, want 2", len(answers))
	}
	for id, ans := range answers {
		if len(ans.Selected) != 0 {
			t.Fatalf("answer %s = %v, want empty after corrupt draft", id, ans.Selected)
		}
	}
}

func TestPartialAndStaleDraftMerge(t *testing.T) {
	store := newMemStore()
	saved := model.AnswerSet{
		"q1":   {Selected: []string{"b"}},
		"gone": {Selected: []string{"x"}}, // question no longer in the test
	}
	raw, err := json.Marshal(saved)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(context.Background(), "mod-1", raw); err != nil {
		t.Fatal(err)
	}

	c := newController(t, &fakeService{def: twoChoiceDef(nil)}, store)
	mustBegin(t, c)

	answers := c.Snapshot().Answers
	if !answers["q1"].Has("b") {
		t.Fatal("known draft entry was not restored")
	}
	if _, ok := answers["gone"]; ok {
		t.Fatal("stale draft entry leaked into the answer set")
	}
	if got := answers["q2"].Selected; len(got) != 0 {
		t.Fatalf("q2 = %v, want untouched empty", got)
	}
}

func TestTabSwitchCounterNeverDecreases(t *testing.T) {
	c := newController(t, &fakeService{def: twoChoiceDef(nil)}, newMemStore())
	mustBegin(t, c)

	for i := 0; i < 3; i++ {
		c.RecordTabSwitch()
	}
	if got := c.Snapshot().TabSwitches; got != 3 {
		t.Fatalf("tab switches = %d, want 3", got)
	}
}

func TestNoMutationAfterSubmitted(t *testing.T) {
	svc := &fakeService{def: twoChoiceDef(nil)}
	c := newController(t, svc, newMemStore())
	mustBegin(t, c)

	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	c.RecordAnswer("q1", "a", true)
	c.RecordTabSwitch()
	c.Tick(context.Background())

	snap := c.Snapshot()
	if len(snap.Answers["q1"].Selected) != 0 {
		t.Fatal("answer mutated in terminal phase")
	}
	if snap.TabSwitches != 0 {
		t.Fatal("tab switches mutated in terminal phase")
	}
}

func TestAutosaveSkipsWhenNotActive(t *testing.T) {
	store := newMemStore()
	c := newController(t, &fakeService{def: twoChoiceDef(nil)}, store)

	// Loading phase: nothing to save yet.
	if err := c.Autosave(context.Background()); err != nil {
		t.Fatalf("Autosave in loading phase: %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), "mod-1"); ok {
		t.Fatal("draft written before the session was active")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	svc := &fakeService{def: twoChoiceDef(intPtr(10))}
	c := newController(t, svc, newMemStore(), WithAutosaveInterval(10*time.Millisecond))
	mustBegin(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
