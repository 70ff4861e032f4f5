package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/repo"
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?change_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{
		ChangeID: r.URL.Query().Get("change_id"),
		Status:   domain.RunStatus(r.URL.Query().Get("status")),
		Limit:    parseIntOr(r.URL.Query().Get("limit"), 50),
		Offset:   parseIntOr(r.URL.Query().Get("offset"), 0),
	}

	runs, err := h.runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// ListRunJobs возвращает результаты jobs для run.
// GET /api/v1/runs/{id}/jobs
func (h *Handler) ListRunJobs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	// Проверяем, что run существует
	if _, err := h.runs.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	results, err := h.results.ListByRunID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	out := make([]JobResultResponse, len(results))
	for i, j := range results {
		out[i] = JobResultFromDomain(j)
	}

	List(w, out, len(out))
}

// CancelRun запрашивает отмену run.
// POST /api/v1/runs/{id}/cancel
//
// Команда публикуется в очередь: состоянием run владеет orchestrator.
// Завершённый run отменить нельзя — 422.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	if run.IsFinished() {
		InvalidState(w, "run is already finished")
		return
	}

	if err := h.publisher.PublishRunCancel(r.Context(), id); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("run cancel requested", "run_id", id)

	Accepted(w, RunFromDomain(*run))
}

// parseIntOr парсит строку в int с дефолтным значением.
func parseIntOr(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
