package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/gating"
	"github.com/shaiso/Gatekeeper/internal/mq"
	"github.com/shaiso/Gatekeeper/internal/repo"
)

type fakeRunStore struct {
	runs map[uuid.UUID]*domain.Run
}

func (s *fakeRunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return run, nil
}

func (s *fakeRunStore) List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	var out []domain.Run
	for _, run := range s.runs {
		if filter.ChangeID != "" && run.ChangeID != filter.ChangeID {
			continue
		}
		out = append(out, *run)
	}
	return out, nil
}

type fakeResultStore struct {
	results map[uuid.UUID][]domain.JobResult
}

func (s *fakeResultStore) ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.JobResult, error) {
	return s.results[runID], nil
}

type fakeEventPublisher struct {
	changes []mq.ChangePushedPayload
	cancels []uuid.UUID
}

func (p *fakeEventPublisher) PublishChangePushed(ctx context.Context, payload mq.ChangePushedPayload) error {
	p.changes = append(p.changes, payload)
	return nil
}

func (p *fakeEventPublisher) PublishRunCancel(ctx context.Context, runID uuid.UUID) error {
	p.cancels = append(p.cancels, runID)
	return nil
}

const apiTableYAML = `
flags:
  - name: SOURCE_CHANGED
    paths: ["src/**"]
jobs:
  - name: tests
    uses: ci/tests@v1
    if:
      flag: SOURCE_CHANGED
`

func newTestServer(t *testing.T, runs *fakeRunStore, results *fakeResultStore, pub *fakeEventPublisher) *httptest.Server {
	t.Helper()

	table, err := gating.Parse([]byte(apiTableYAML))
	if err != nil {
		t.Fatalf("parse table: %v", err)
	}

	h := NewHandler(Config{
		Runs:      runs,
		Results:   results,
		Publisher: pub,
		Table:     table,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func activeRun() *domain.Run {
	return &domain.Run{
		ID:        uuid.New(),
		Seq:       1,
		ChangeID:  "pr-1",
		Status:    domain.RunStatusRunning,
		CreatedAt: time.Now(),
	}
}

func TestSubmitChange(t *testing.T) {
	pub := &fakeEventPublisher{}
	srv := newTestServer(t, &fakeRunStore{}, &fakeResultStore{}, pub)

	body := `{"change_id":"pr-1","base_ref":"main","head_ref":"abc"}`
	resp, err := http.Post(srv.URL+"/api/v1/changes", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if len(pub.changes) != 1 || pub.changes[0].ChangeID != "pr-1" {
		t.Errorf("change.pushed not published: %+v", pub.changes)
	}
}

func TestSubmitChange_Validation(t *testing.T) {
	pub := &fakeEventPublisher{}
	srv := newTestServer(t, &fakeRunStore{}, &fakeResultStore{}, pub)

	cases := []string{
		`{"base_ref":"main","head_ref":"abc"}`, // нет change_id
		`{"change_id":"pr-1"}`,                 // ни files, ни ревизий
		`not json`,
	}
	for _, body := range cases {
		resp, err := http.Post(srv.URL+"/api/v1/changes", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if len(pub.changes) != 0 {
		t.Error("invalid requests must not publish events")
	}
}

func TestGetRun(t *testing.T) {
	run := activeRun()
	store := &fakeRunStore{runs: map[uuid.UUID]*domain.Run{run.ID: run}}
	srv := newTestServer(t, store, &fakeResultStore{}, &fakeEventPublisher{})

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + run.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var parsed struct {
		Data RunResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if parsed.Data.ID != run.ID || parsed.Data.ChangeID != "pr-1" {
		t.Errorf("unexpected run: %+v", parsed.Data)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	srv := newTestServer(t, &fakeRunStore{}, &fakeResultStore{}, &fakeEventPublisher{})

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + uuid.New().String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCancelRun(t *testing.T) {
	run := activeRun()
	store := &fakeRunStore{runs: map[uuid.UUID]*domain.Run{run.ID: run}}
	pub := &fakeEventPublisher{}
	srv := newTestServer(t, store, &fakeResultStore{}, pub)

	resp, err := http.Post(srv.URL+"/api/v1/runs/"+run.ID.String()+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if len(pub.cancels) != 1 || pub.cancels[0] != run.ID {
		t.Error("run.cancel not published")
	}
}

func TestCancelRun_AlreadyFinished(t *testing.T) {
	run := activeRun()
	run.MarkCompleted()
	store := &fakeRunStore{runs: map[uuid.UUID]*domain.Run{run.ID: run}}
	pub := &fakeEventPublisher{}
	srv := newTestServer(t, store, &fakeResultStore{}, pub)

	resp, err := http.Post(srv.URL+"/api/v1/runs/"+run.ID.String()+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.StatusCode)
	}
	if len(pub.cancels) != 0 {
		t.Error("finished run must not produce a cancel command")
	}
}

func TestListRunJobs(t *testing.T) {
	run := activeRun()
	store := &fakeRunStore{runs: map[uuid.UUID]*domain.Run{run.ID: run}}
	results := &fakeResultStore{results: map[uuid.UUID][]domain.JobResult{
		run.ID: {
			{JobID: uuid.New(), RunID: run.ID, Name: "tests", Ref: "ci/tests@v1", Outcome: domain.OutcomeLaunched, Status: domain.JobStatusSucceeded},
		},
	}}
	srv := newTestServer(t, store, results, &fakeEventPublisher{})

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + run.ID.String() + "/jobs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Data []JobResultResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].Name != "tests" {
		t.Errorf("unexpected jobs: %+v", parsed.Data)
	}
}

func TestGetTable(t *testing.T) {
	srv := newTestServer(t, &fakeRunStore{}, &fakeResultStore{}, &fakeEventPublisher{})

	resp, err := http.Get(srv.URL + "/api/v1/table")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Data TableResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(parsed.Data.Jobs) != 1 || parsed.Data.Jobs[0].Guard != "SOURCE_CHANGED" {
		t.Errorf("unexpected table: %+v", parsed.Data)
	}
}
