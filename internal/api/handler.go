package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/gating"
	"github.com/shaiso/Gatekeeper/internal/mq"
	"github.com/shaiso/Gatekeeper/internal/repo"
)

// RunStore — чтение runs. Реализуется repo.RunRepo.
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// JobResultStore — чтение результатов dispatch. Реализуется repo.DecisionRepo.
type JobResultStore interface {
	ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.JobResult, error)
}

// EventPublisher — публикация команд в очередь. Реализуется mq.Publisher.
type EventPublisher interface {
	PublishChangePushed(ctx context.Context, payload mq.ChangePushedPayload) error
	PublishRunCancel(ctx context.Context, runID uuid.UUID) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runs      RunStore
	results   JobResultStore
	publisher EventPublisher
	table     *gating.Table
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runs      RunStore
	Results   JobResultStore
	Publisher EventPublisher
	Table     *gating.Table
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runs:      cfg.Runs,
		results:   cfg.Results,
		publisher: cfg.Publisher,
		table:     cfg.Table,
		logger:    logger,
	}
}
