package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/gating"
)

// SubmitChangeRequest — запрос на регистрацию события об изменении.
type SubmitChangeRequest struct {
	ChangeID string   `json:"change_id"`
	BaseRef  string   `json:"base_ref,omitempty"`
	HeadRef  string   `json:"head_ref,omitempty"`
	Files    []string `json:"files,omitempty"`
	ForceAll bool     `json:"force_all,omitempty"`
}

// SubmitChangeResponse — подтверждение приёма события.
type SubmitChangeResponse struct {
	EventID  uuid.UUID `json:"event_id"`
	ChangeID string    `json:"change_id"`
}

// RunResponse — представление run в API.
type RunResponse struct {
	ID         uuid.UUID        `json:"id"`
	Seq        int64            `json:"seq"`
	ChangeID   string           `json:"change_id"`
	Status     domain.RunStatus `json:"status"`
	Flags      map[string]bool  `json:"flags,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// RunFromDomain конвертирует доменный Run в DTO.
func RunFromDomain(run domain.Run) RunResponse {
	return RunResponse{
		ID:         run.ID,
		Seq:        run.Seq,
		ChangeID:   run.ChangeID,
		Status:     run.Status,
		Flags:      run.Flags,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		CreatedAt:  run.CreatedAt,
	}
}

// JobResultResponse — представление результата job в API.
type JobResultResponse struct {
	JobID      uuid.UUID         `json:"job_id"`
	Name       string            `json:"name"`
	Ref        string            `json:"ref"`
	Outcome    domain.JobOutcome `json:"outcome"`
	Status     domain.JobStatus  `json:"status,omitempty"`
	BestEffort bool              `json:"best_effort,omitempty"`
	Error      string            `json:"error,omitempty"`
	LaunchedAt *time.Time        `json:"launched_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// JobResultFromDomain конвертирует доменный JobResult в DTO.
func JobResultFromDomain(j domain.JobResult) JobResultResponse {
	return JobResultResponse{
		JobID:      j.JobID,
		Name:       j.Name,
		Ref:        j.Ref,
		Outcome:    j.Outcome,
		Status:     j.Status,
		BestEffort: j.BestEffort,
		Error:      j.Error,
		LaunchedAt: j.LaunchedAt,
		FinishedAt: j.FinishedAt,
	}
}

// TableResponse — сводка gating-таблицы.
type TableResponse struct {
	Version   string             `json:"version,omitempty"`
	Flags     []gating.FlagRule  `json:"flags"`
	Jobs      []TableJobResponse `json:"jobs"`
	Schedules []gating.Schedule  `json:"schedules,omitempty"`
}

// TableJobResponse — сводка одного JobSpec (guard в текстовой форме).
type TableJobResponse struct {
	Name       string   `json:"name"`
	Ref        string   `json:"ref"`
	Guard      string   `json:"guard"`
	Needs      []string `json:"needs,omitempty"`
	Secrets    []string `json:"secrets,omitempty"`
	BestEffort bool     `json:"best_effort,omitempty"`
}

// TableFromDomain конвертирует gating-таблицу в DTO.
func TableFromDomain(t *gating.Table) TableResponse {
	jobs := make([]TableJobResponse, len(t.Jobs))
	for i := range t.Jobs {
		j := &t.Jobs[i]
		jobs[i] = TableJobResponse{
			Name:       j.Name,
			Ref:        j.Ref,
			Guard:      j.GuardOrTrue().String(),
			Needs:      j.Needs,
			Secrets:    j.Secrets,
			BestEffort: j.BestEffort,
		}
	}
	return TableResponse{
		Version:   t.Version,
		Flags:     t.Flags,
		Jobs:      jobs,
		Schedules: t.Schedules,
	}
}
