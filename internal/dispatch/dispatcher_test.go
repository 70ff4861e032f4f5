package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/gating"
	"github.com/shaiso/Gatekeeper/internal/runner"
	"github.com/shaiso/Gatekeeper/internal/secrets"
)

// fakeRunner — Runner для тестов. Результаты настраиваются по Ref.
type fakeRunner struct {
	mu       sync.Mutex
	invokes  []runner.InvokeRequest
	cancels  []uuid.UUID
	statuses map[string]domain.JobStatus // по Ref; по умолчанию SUCCEEDED
	rejects  map[string]bool             // Ref → invoke отклоняется
	gates    map[string]chan struct{}    // Ref → job не завершается, пока канал не закрыт
	results  map[uuid.UUID]chan runner.Result
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		statuses: make(map[string]domain.JobStatus),
		rejects:  make(map[string]bool),
		gates:    make(map[string]chan struct{}),
		results:  make(map[uuid.UUID]chan runner.Result),
	}
}

func (f *fakeRunner) Invoke(ctx context.Context, req runner.InvokeRequest) (runner.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rejects[req.Ref] {
		return runner.Handle{}, errors.New("substrate rejected invoke")
	}

	f.invokes = append(f.invokes, req)
	h := runner.Handle{JobID: req.JobID, RunID: req.RunID, Ref: req.Ref}

	ch := make(chan runner.Result, 1)
	f.results[req.JobID] = ch

	status, ok := f.statuses[req.Ref]
	if !ok {
		status = domain.JobStatusSucceeded
	}

	if gate, blocked := f.gates[req.Ref]; blocked {
		go func() {
			<-gate
			select {
			case ch <- runner.Result{Status: status}:
			default:
			}
		}()
	} else {
		ch <- runner.Result{Status: status}
	}

	return h, nil
}

func (f *fakeRunner) Status(ctx context.Context, h runner.Handle) (domain.JobStatus, error) {
	return domain.JobStatusRunning, nil
}

func (f *fakeRunner) Cancel(ctx context.Context, h runner.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, h.JobID)
	if ch, ok := f.results[h.JobID]; ok {
		select {
		case ch <- runner.Result{Status: domain.JobStatusCancelled}:
		default:
		}
	}
	return nil
}

func (f *fakeRunner) Watch(ctx context.Context, h runner.Handle) (<-chan runner.Result, error) {
	f.mu.Lock()
	ch := f.results[h.JobID]
	f.mu.Unlock()

	out := make(chan runner.Result, 1)
	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
		case res := <-ch:
			out <- res
		}
	}()
	return out, nil
}

func (f *fakeRunner) invokedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make([]string, len(f.invokes))
	for i, req := range f.invokes {
		refs[i] = req.Ref
	}
	return refs
}

const dispatchTableYAML = `
flags:
  - name: SOURCE_CHANGED
    paths: ["src/**", "go.mod"]
  - name: TESTING_CHANGED
    paths: ["tests/**"]
  - name: DOCS_CHANGED
    paths: ["docs/**"]

jobs:
  - name: dev-tests
    uses: ci/run-tests@v3
    if:
      any: [{flag: SOURCE_CHANGED}, {flag: TESTING_CHANGED}]

  - name: live-tests
    uses: ci/live-tests@v3
    if:
      flag: SOURCE_CHANGED
    secrets: [DANDI_API_KEY]

  - name: publish-preview
    uses: ci/publish@v1
    if:
      flag: SOURCE_CHANGED
    needs: [dev-tests]

  - name: check-links
    uses: ci/check-links@v1
    if:
      flag: DOCS_CHANGED
    best_effort: true
`

func mustTable(t *testing.T) *gating.Table {
	t.Helper()
	table, err := gating.Parse([]byte(dispatchTableYAML))
	if err != nil {
		t.Fatalf("parse table: %v", err)
	}
	return table
}

func testRun(flags map[string]bool) *domain.Run {
	return &domain.Run{
		ID:       uuid.New(),
		ChangeID: "pr-42",
		Status:   domain.RunStatusRunning,
		Flags:    domain.ClassificationFlags(flags),
	}
}

func dispatchAll(t *testing.T, table *gating.Table, r runner.Runner, store secrets.Store, run *domain.Run) *domain.DispatchDecision {
	t.Helper()
	d := NewDispatcher(table, r, store, nil)
	ex := d.Start(context.Background(), run)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	decision, err := ex.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return decision
}

func TestDispatch_GuardFalseNeverLaunched(t *testing.T) {
	fake := newFakeRunner()
	run := testRun(map[string]bool{"SOURCE_CHANGED": false, "TESTING_CHANGED": true, "DOCS_CHANGED": false})

	decision := dispatchAll(t, mustTable(t), fake, secrets.Static{"DANDI_API_KEY": "k"}, run)

	if got := decision.Job("dev-tests").Outcome; got != domain.OutcomeLaunched {
		t.Errorf("dev-tests: expected LAUNCHED, got %s", got)
	}
	if got := decision.Job("live-tests").Outcome; got != domain.OutcomeSkippedGuardFalse {
		t.Errorf("live-tests: expected SKIPPED_GUARD_FALSE, got %s", got)
	}
	for _, ref := range fake.invokedRefs() {
		if ref == "ci/live-tests@v3" {
			t.Error("guard-false job must never reach the runner")
		}
	}
}

func TestDispatch_DocsOnlyNothingLaunched(t *testing.T) {
	fake := newFakeRunner()
	// Только CHANGELOG-подобное изменение: ни один флаг не истинен
	run := testRun(map[string]bool{"SOURCE_CHANGED": false, "TESTING_CHANGED": false, "DOCS_CHANGED": false})

	decision := dispatchAll(t, mustTable(t), fake, secrets.Static{}, run)

	if len(fake.invokedRefs()) != 0 {
		t.Errorf("expected zero launches, got %v", fake.invokedRefs())
	}
	if len(decision.Launched()) != 0 {
		t.Error("decision should record zero launched jobs")
	}
	if !decision.Succeeded() {
		t.Error("run with zero launches succeeds vacuously")
	}
}

func TestDispatch_UpstreamFailureSkipsDependent(t *testing.T) {
	fake := newFakeRunner()
	fake.statuses["ci/run-tests@v3"] = domain.JobStatusFailed
	run := testRun(map[string]bool{"SOURCE_CHANGED": true, "TESTING_CHANGED": false, "DOCS_CHANGED": false})

	decision := dispatchAll(t, mustTable(t), fake, secrets.Static{"DANDI_API_KEY": "k"}, run)

	preview := decision.Job("publish-preview")
	if preview.Outcome != domain.OutcomeSkippedUpstreamFailed {
		t.Errorf("expected SKIPPED_UPSTREAM_FAILED, got %s", preview.Outcome)
	}
	if preview.Error == "" {
		t.Error("skip reason should name the upstream")
	}
	for _, ref := range fake.invokedRefs() {
		if ref == "ci/publish@v1" {
			t.Error("dependent of failed upstream must never launch")
		}
	}
	if decision.Succeeded() {
		t.Error("failed non-best-effort job must fail the decision")
	}
}

func TestDispatch_DependentLaunchesAfterUpstream(t *testing.T) {
	fake := newFakeRunner()
	run := testRun(map[string]bool{"SOURCE_CHANGED": true, "TESTING_CHANGED": false, "DOCS_CHANGED": false})

	decision := dispatchAll(t, mustTable(t), fake, secrets.Static{"DANDI_API_KEY": "k"}, run)

	if got := decision.Job("publish-preview").Outcome; got != domain.OutcomeLaunched {
		t.Errorf("expected LAUNCHED, got %s", got)
	}

	refs := fake.invokedRefs()
	testsIdx, publishIdx := -1, -1
	for i, ref := range refs {
		switch ref {
		case "ci/run-tests@v3":
			testsIdx = i
		case "ci/publish@v1":
			publishIdx = i
		}
	}
	if testsIdx == -1 || publishIdx == -1 || publishIdx < testsIdx {
		t.Errorf("publish must launch after its upstream, order: %v", refs)
	}
	if !decision.Succeeded() {
		t.Error("all-successful decision should succeed")
	}
}

func TestDispatch_NoSecretsDeclaredNoneForwarded(t *testing.T) {
	fake := newFakeRunner()
	run := testRun(map[string]bool{"SOURCE_CHANGED": true, "TESTING_CHANGED": false, "DOCS_CHANGED": false})

	dispatchAll(t, mustTable(t), fake, secrets.Static{"DANDI_API_KEY": "k", "EXTRA": "v"}, run)

	for _, req := range fake.invokes {
		switch req.Ref {
		case "ci/live-tests@v3":
			if len(req.Secrets) != 1 {
				t.Errorf("live-tests should get exactly its declared secret, got %d", len(req.Secrets))
			}
			if _, ok := req.Secrets["DANDI_API_KEY"]; !ok {
				t.Error("declared secret missing from invoke")
			}
		default:
			if len(req.Secrets) != 0 {
				t.Errorf("%s declared no secrets but got %d", req.Ref, len(req.Secrets))
			}
		}
	}
}

func TestDispatch_MissingSecretFailsClosed(t *testing.T) {
	fake := newFakeRunner()
	run := testRun(map[string]bool{"SOURCE_CHANGED": true, "TESTING_CHANGED": false, "DOCS_CHANGED": false})

	// DANDI_API_KEY отсутствует в хранилище
	decision := dispatchAll(t, mustTable(t), fake, secrets.Static{}, run)

	live := decision.Job("live-tests")
	if live.Outcome != domain.OutcomeFailed {
		t.Errorf("expected FAILED, got %s", live.Outcome)
	}
	for _, ref := range fake.invokedRefs() {
		if ref == "ci/live-tests@v3" {
			t.Error("job must never launch with a missing secret")
		}
	}

	// Остальные jobs обрабатываются независимо
	if got := decision.Job("dev-tests").Outcome; got != domain.OutcomeLaunched {
		t.Errorf("dev-tests should be unaffected, got %s", got)
	}
	if decision.Succeeded() {
		t.Error("secret failure on non-best-effort job must fail the decision")
	}
}

func TestDispatch_InvokeRejected(t *testing.T) {
	fake := newFakeRunner()
	fake.rejects["ci/run-tests@v3"] = true
	run := testRun(map[string]bool{"SOURCE_CHANGED": true, "TESTING_CHANGED": false, "DOCS_CHANGED": false})

	decision := dispatchAll(t, mustTable(t), fake, secrets.Static{"DANDI_API_KEY": "k"}, run)

	if got := decision.Job("dev-tests").Outcome; got != domain.OutcomeFailed {
		t.Errorf("expected FAILED, got %s", got)
	}
	if got := decision.Job("publish-preview").Outcome; got != domain.OutcomeSkippedUpstreamFailed {
		t.Errorf("dependent of rejected job: expected SKIPPED_UPSTREAM_FAILED, got %s", got)
	}
}

func TestDispatch_BestEffortFailureDoesNotFailDecision(t *testing.T) {
	fake := newFakeRunner()
	fake.statuses["ci/check-links@v1"] = domain.JobStatusFailed
	run := testRun(map[string]bool{"SOURCE_CHANGED": false, "TESTING_CHANGED": false, "DOCS_CHANGED": true})

	decision := dispatchAll(t, mustTable(t), fake, secrets.Static{}, run)

	links := decision.Job("check-links")
	if links.Outcome != domain.OutcomeLaunched || links.Status != domain.JobStatusFailed {
		t.Errorf("check-links: expected launched+failed, got %s/%s", links.Outcome, links.Status)
	}
	if !decision.Succeeded() {
		t.Error("best-effort failure must not fail the decision")
	}
}

func TestDispatch_CancelMidFlight(t *testing.T) {
	fake := newFakeRunner()
	gate := make(chan struct{})
	fake.gates["ci/run-tests@v3"] = gate
	run := testRun(map[string]bool{"SOURCE_CHANGED": true, "TESTING_CHANGED": false, "DOCS_CHANGED": false})

	d := NewDispatcher(mustTable(t), fake, secrets.Static{"DANDI_API_KEY": "k"}, nil)
	ex := d.Start(context.Background(), run)

	// Ждём, пока dev-tests реально запустится
	deadline := time.After(5 * time.Second)
	for {
		fake.mu.Lock()
		launched := len(fake.invokes) > 0
		fake.mu.Unlock()
		if launched {
			break
		}
		select {
		case <-deadline:
			t.Fatal("dev-tests never launched")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ex.Cancel(context.Background())
	ex.Cancel(context.Background()) // идемпотентно

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	decision, err := ex.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	if !ex.Cancelled() {
		t.Error("execution should report cancelled")
	}

	fake.mu.Lock()
	cancelCount := len(fake.cancels)
	fake.mu.Unlock()
	if cancelCount == 0 {
		t.Error("launched job should receive a cancel request")
	}

	preview := decision.Job("publish-preview")
	if preview.Outcome != domain.OutcomeSkippedRunCancelled && preview.Outcome != domain.OutcomeSkippedUpstreamFailed {
		t.Errorf("pending dependent should be skipped, got %s", preview.Outcome)
	}
	if preview.LaunchedAt != nil {
		t.Error("cancelled pending job must not be launched")
	}
}
