package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/mq"
)

// SubmitChange принимает событие об изменении и публикует его в очередь.
// POST /api/v1/changes
//
// Ответ — 202: событие принято, обработкой владеет orchestrator.
func (h *Handler) SubmitChange(w http.ResponseWriter, r *http.Request) {
	var req SubmitChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.ChangeID == "" {
		BadRequest(w, "change_id is required")
		return
	}
	if len(req.Files) == 0 && !req.ForceAll && (req.BaseRef == "" || req.HeadRef == "") {
		BadRequest(w, "either files or base_ref+head_ref must be provided")
		return
	}

	payload := mq.ChangePushedPayload{
		EventID:  uuid.New(),
		ChangeID: req.ChangeID,
		BaseRef:  req.BaseRef,
		HeadRef:  req.HeadRef,
		Files:    req.Files,
		ForceAll: req.ForceAll,
	}

	if err := h.publisher.PublishChangePushed(r.Context(), payload); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("change event accepted",
		"event_id", payload.EventID,
		"change_id", payload.ChangeID,
		"files", len(payload.Files),
		"force_all", payload.ForceAll,
	)

	Accepted(w, SubmitChangeResponse{
		EventID:  payload.EventID,
		ChangeID: payload.ChangeID,
	})
}

// GetTable возвращает сводку gating-таблицы.
// GET /api/v1/table
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	Success(w, TableFromDomain(h.table))
}
