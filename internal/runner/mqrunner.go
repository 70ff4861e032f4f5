package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/mq"
)

// ErrUnknownJob — job с таким handle не запускался через этот Runner.
var ErrUnknownJob = errors.New("unknown job handle")

// jobPublisher — подмножество mq.Publisher, нужное Runner'у.
type jobPublisher interface {
	PublishJobInvoke(ctx context.Context, payload mq.JobInvokePayload) error
	PublishJobCancel(ctx context.Context, jobID, runID uuid.UUID) error
}

// jobState — состояние одного запущенного job.
type jobState struct {
	handle Handle

	mu     sync.Mutex
	status domain.JobStatus
	errMsg string

	// done закрывается при получении терминального статуса.
	done chan struct{}
}

// terminal возвращает Result, если статус терминальный.
func (s *jobState) terminal() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.IsTerminal() {
		return Result{}, false
	}
	return Result{Status: s.status, Error: s.errMsg}, true
}

// MQRunner — Runner поверх RabbitMQ.
//
// Invoke публикует job.invoke для внешнего субстрата; терминальные
// статусы приходят событиями job.completed в очередь jobs.completed.
// Между публикацией и первым событием job считается PENDING.
type MQRunner struct {
	publisher jobPublisher
	conn      *mq.Connection
	logger    *slog.Logger

	mu   sync.RWMutex
	jobs map[uuid.UUID]*jobState

	consumer *mq.Consumer
}

// NewMQRunner создаёт MQRunner.
// conn может быть nil, если потребление job.completed настраивается снаружи.
func NewMQRunner(publisher *mq.Publisher, conn *mq.Connection, logger *slog.Logger) *MQRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQRunner{
		publisher: publisher,
		conn:      conn,
		logger:    logger,
		jobs:      make(map[uuid.UUID]*jobState),
	}
}

// Start запускает consumer терминальных статусов. Неблокирующий.
func (r *MQRunner) Start(ctx context.Context) {
	if r.conn == nil {
		return
	}

	r.consumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueJobsCompleted),
		Handler:  r.handleJobCompleted,
		Prefetch: 10,
	})

	go func() {
		if err := r.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("job completed consumer error", "error", err)
		}
	}()
}

// Stop останавливает consumer.
func (r *MQRunner) Stop() {
	if r.consumer != nil {
		r.consumer.Stop()
	}
}

// Invoke публикует запуск job и регистрирует его состояние.
func (r *MQRunner) Invoke(ctx context.Context, req InvokeRequest) (Handle, error) {
	handle := Handle{JobID: req.JobID, RunID: req.RunID, Ref: req.Ref}

	// Секреты раскрываются только здесь, на границе вызова
	secretValues := make(map[string]string, len(req.Secrets))
	for name, v := range req.Secrets {
		secretValues[name] = v.Reveal()
	}

	payload := mq.JobInvokePayload{
		JobID:   req.JobID,
		RunID:   req.RunID,
		Ref:     req.Ref,
		Params:  req.Params,
		Secrets: secretValues,
	}

	// Состояние регистрируется до публикации: consumer jobs.completed
	// работает параллельно, и терминальный статус может прийти раньше,
	// чем Publish вернёт управление. Потерянный статус означал бы
	// вечный Watch и нефинализируемый run.
	r.mu.Lock()
	r.jobs[req.JobID] = &jobState{
		handle: handle,
		status: domain.JobStatusPending,
		done:   make(chan struct{}),
	}
	r.mu.Unlock()

	if err := r.publisher.PublishJobInvoke(ctx, payload); err != nil {
		r.mu.Lock()
		delete(r.jobs, req.JobID)
		r.mu.Unlock()
		return Handle{}, fmt.Errorf("invoke %s: %w", req.Ref, err)
	}

	r.logger.Debug("job invoked",
		"job_id", req.JobID,
		"run_id", req.RunID,
		"ref", req.Ref,
	)

	return handle, nil
}

// Status возвращает текущий известный статус job.
func (r *MQRunner) Status(ctx context.Context, h Handle) (domain.JobStatus, error) {
	state := r.get(h.JobID)
	if state == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, h.JobID)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.status, nil
}

// Cancel публикует best-effort отмену job.
func (r *MQRunner) Cancel(ctx context.Context, h Handle) error {
	if err := r.publisher.PublishJobCancel(ctx, h.JobID, h.RunID); err != nil {
		return fmt.Errorf("cancel %s: %w", h.JobID, err)
	}
	return nil
}

// Watch возвращает канал терминального результата job.
func (r *MQRunner) Watch(ctx context.Context, h Handle) (<-chan Result, error) {
	state := r.get(h.JobID)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, h.JobID)
	}

	out := make(chan Result, 1)
	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
		case <-state.done:
			if res, ok := state.terminal(); ok {
				out <- res
			}
		}
	}()
	return out, nil
}

// get возвращает состояние job по ID.
func (r *MQRunner) get(jobID uuid.UUID) *jobState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[jobID]
}

// handleJobCompleted обрабатывает событие о терминальном статусе job.
func (r *MQRunner) handleJobCompleted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.JobCompletedPayload](&delivery.Message)
	if err != nil {
		r.logger.Error("failed to parse job.completed payload", "error", err)
		return fmt.Errorf("%w: %w", mq.ErrDrop, err)
	}

	r.Complete(payload.JobID, domain.JobStatus(payload.Status), payload.Error)
	return nil
}

// Complete фиксирует терминальный статус job и будит ожидающих.
//
// Событие для неизвестного job (например, после рестарта оркестратора)
// логируется и игнорируется. Нетерминальный или повторный статус
// игнорируется: первый терминальный статус окончателен.
func (r *MQRunner) Complete(jobID uuid.UUID, status domain.JobStatus, errMsg string) {
	state := r.get(jobID)
	if state == nil {
		r.logger.Debug("job.completed for unknown job", "job_id", jobID)
		return
	}

	if !status.IsTerminal() {
		r.logger.Warn("non-terminal status in job.completed",
			"job_id", jobID,
			"status", status,
		)
		return
	}

	state.mu.Lock()
	if state.status.IsTerminal() {
		state.mu.Unlock()
		return
	}
	state.status = status
	state.errMsg = errMsg
	state.mu.Unlock()

	close(state.done)

	r.logger.Debug("job completed",
		"job_id", jobID,
		"status", status,
	)
}
