package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/mq"
	"github.com/shaiso/Gatekeeper/internal/secrets"
)

// fakePublisher записывает опубликованные payload'ы.
type fakePublisher struct {
	invokes []mq.JobInvokePayload
	cancels []uuid.UUID
	failAll bool
}

func (f *fakePublisher) PublishJobInvoke(ctx context.Context, payload mq.JobInvokePayload) error {
	if f.failAll {
		return errors.New("broker unavailable")
	}
	f.invokes = append(f.invokes, payload)
	return nil
}

func (f *fakePublisher) PublishJobCancel(ctx context.Context, jobID, runID uuid.UUID) error {
	if f.failAll {
		return errors.New("broker unavailable")
	}
	f.cancels = append(f.cancels, jobID)
	return nil
}

func newTestRunner(pub *fakePublisher) *MQRunner {
	r := NewMQRunner(nil, nil, nil)
	r.publisher = pub
	return r
}

func TestInvoke_PublishesPayload(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRunner(pub)

	req := InvokeRequest{
		JobID:  uuid.New(),
		RunID:  uuid.New(),
		Ref:    "ci/workflows/run-tests@v3",
		Params: map[string]any{"suite": "dev"},
		Secrets: map[string]secrets.Value{
			"DANDI_API_KEY": mustSecret(t, "tok"),
		},
	}

	h, err := r.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.JobID != req.JobID || h.Ref != req.Ref {
		t.Error("handle should carry job id and ref")
	}

	if len(pub.invokes) != 1 {
		t.Fatalf("expected 1 invoke, got %d", len(pub.invokes))
	}
	got := pub.invokes[0]
	if got.Secrets["DANDI_API_KEY"] != "tok" {
		t.Error("declared secret should be forwarded")
	}

	status, err := r.Status(context.Background(), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.JobStatusPending {
		t.Errorf("fresh job should be PENDING, got %s", status)
	}
}

func TestInvoke_NoSecretsDeclared(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRunner(pub)

	_, err := r.Invoke(context.Background(), InvokeRequest{
		JobID: uuid.New(),
		RunID: uuid.New(),
		Ref:   "ci/workflows/check-links@v1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.invokes[0].Secrets) != 0 {
		t.Error("job without declared secrets must receive none")
	}
}

func TestInvoke_PublishFailure(t *testing.T) {
	r := newTestRunner(&fakePublisher{failAll: true})

	jobID := uuid.New()
	_, err := r.Invoke(context.Background(), InvokeRequest{JobID: jobID, Ref: "x"})
	if err == nil {
		t.Fatal("expected error when broker rejects invoke")
	}

	// Состояние незапущенного job не должно остаться в runner'е
	if _, err := r.Status(context.Background(), Handle{JobID: jobID}); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("failed invoke should leave no job state, got %v", err)
	}
}

// completingPublisher доставляет терминальный статус синхронно внутри
// PublishJobInvoke: так ведёт себя consumer jobs.completed, когда
// субстрат завершает job быстрее, чем вернётся publish.
type completingPublisher struct {
	r      *MQRunner
	status domain.JobStatus
}

func (p *completingPublisher) PublishJobInvoke(ctx context.Context, payload mq.JobInvokePayload) error {
	p.r.Complete(payload.JobID, p.status, "")
	return nil
}

func (p *completingPublisher) PublishJobCancel(ctx context.Context, jobID, runID uuid.UUID) error {
	return nil
}

func TestInvoke_CompletionBeforePublishReturns(t *testing.T) {
	r := NewMQRunner(nil, nil, nil)
	r.publisher = &completingPublisher{r: r, status: domain.JobStatusSucceeded}

	h, err := r.Invoke(context.Background(), InvokeRequest{JobID: uuid.New(), Ref: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := r.Status(context.Background(), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.JobStatusSucceeded {
		t.Errorf("early terminal status must not be lost, got %s", status)
	}

	ch, err := r.Watch(context.Background(), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case res := <-ch:
		if res.Status != domain.JobStatusSucceeded {
			t.Errorf("expected SUCCEEDED, got %s", res.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("watch did not deliver a result for an already-terminal job")
	}
}

func TestWatch_DeliversTerminalResult(t *testing.T) {
	r := newTestRunner(&fakePublisher{})

	h, err := r.Invoke(context.Background(), InvokeRequest{JobID: uuid.New(), Ref: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch, err := r.Watch(context.Background(), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.Complete(h.JobID, domain.JobStatusSucceeded, "")

	select {
	case res := <-ch:
		if res.Status != domain.JobStatusSucceeded {
			t.Errorf("expected SUCCEEDED, got %s", res.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("watch did not deliver result")
	}
}

func TestComplete_FirstTerminalWins(t *testing.T) {
	r := newTestRunner(&fakePublisher{})

	h, _ := r.Invoke(context.Background(), InvokeRequest{JobID: uuid.New(), Ref: "x"})

	r.Complete(h.JobID, domain.JobStatusFailed, "boom")
	r.Complete(h.JobID, domain.JobStatusSucceeded, "")

	status, _ := r.Status(context.Background(), h)
	if status != domain.JobStatusFailed {
		t.Errorf("first terminal status should win, got %s", status)
	}
}

func TestComplete_UnknownJobIgnored(t *testing.T) {
	r := newTestRunner(&fakePublisher{})
	// Не должно паниковать
	r.Complete(uuid.New(), domain.JobStatusSucceeded, "")
}

func TestCancel_BestEffort(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRunner(pub)

	h, _ := r.Invoke(context.Background(), InvokeRequest{JobID: uuid.New(), Ref: "x"})

	if err := r.Cancel(context.Background(), h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.cancels) != 1 || pub.cancels[0] != h.JobID {
		t.Error("cancel should be published for the job")
	}
}

func TestWatch_ContextCancelled(t *testing.T) {
	r := newTestRunner(&fakePublisher{})
	h, _ := r.Invoke(context.Background(), InvokeRequest{JobID: uuid.New(), Ref: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := r.Watch(ctx, h)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel without result")
		}
	case <-time.After(time.Second):
		t.Fatal("watch did not terminate on ctx cancel")
	}
}

// mustSecret достаёт Value через Static store (конструктор Value не экспортируется).
func mustSecret(t *testing.T, v string) secrets.Value {
	t.Helper()
	val, err := secrets.Static{"k": v}.Get("k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return val
}
