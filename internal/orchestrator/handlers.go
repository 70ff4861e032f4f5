package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/mq"
	"github.com/shaiso/Gatekeeper/internal/telemetry"
)

// handleChangePushed обрабатывает событие о новом изменении.
func (o *Orchestrator) handleChangePushed(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.ChangePushedPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse change.pushed payload", "error", err)
		return fmt.Errorf("%w: %w", mq.ErrDrop, err)
	}

	event := domain.ChangeEvent{
		ID:         payload.EventID,
		ChangeID:   payload.ChangeID,
		BaseRef:    payload.BaseRef,
		HeadRef:    payload.HeadRef,
		Files:      payload.Files,
		ForceAll:   payload.ForceAll,
		ReceivedAt: time.Now(),
	}

	if _, err := o.ProcessChange(ctx, event); err != nil {
		o.logger.Error("failed to process change",
			"change_id", event.ChangeID,
			"error", err,
		)
		return err
	}
	return nil
}

// handleRunCancel обрабатывает ручную отмену run.
func (o *Orchestrator) handleRunCancel(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.RunCancelPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse run.cancel payload", "error", err)
		return fmt.Errorf("%w: %w", mq.ErrDrop, err)
	}

	if err := o.CancelRun(ctx, payload.RunID); err != nil {
		// Отмена идемпотентна: завершённый или неизвестный run — не повод
		// возвращать сообщение в очередь
		o.logger.Debug("run cancel not applied",
			"run_id", payload.RunID,
			"reason", err,
		)
	}
	return nil
}

// ProcessChange — полный цикл обработки одного события об изменении.
//
// Возвращает зарегистрированный run. Ошибки классификации не
// возвращаются наружу: они финализируют run как FAILED до dispatch
// (событие обработано, просто неуспешно).
func (o *Orchestrator) ProcessChange(ctx context.Context, event domain.ChangeEvent) (*domain.Run, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.ChangeID == "" {
		return nil, fmt.Errorf("change event without change_id")
	}

	// 1. Регистрируем run; старые активные runs этого изменения
	// атомарно помечаются CANCELLED
	run, superseded := o.registry.Begin(ctx, event)
	telemetry.RunsStarted.Inc()

	o.logger.Info("run registered",
		"run_id", run.ID,
		"change_id", run.ChangeID,
		"seq", run.Seq,
		"superseded", len(superseded),
	)

	// 2. Доводим вытеснение до исполнения
	if len(superseded) > 0 {
		telemetry.RunsSuperseded.Add(float64(len(superseded)))
		o.superseder.CancelRuns(ctx, superseded)
		for range superseded {
			telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusCancelled)).Inc()
		}
	}

	// 3. Классификация и dispatch
	if err := o.startRun(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// CancelRun вручную отменяет активный run.
//
// Идемпотентен в смысле Cancellation Manager'а: повторная отмена или
// отмена завершённого run — ErrRunNotActive, не сбой.
func (o *Orchestrator) CancelRun(ctx context.Context, runID uuid.UUID) error {
	run := o.registry.Get(runID)
	if run == nil {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if !run.IsActive() {
		return fmt.Errorf("%w: %s is %s", ErrRunNotActive, runID, run.Status)
	}

	cancelled := o.registry.CancelActive(ctx, run.ChangeID)
	o.superseder.CancelRuns(ctx, cancelled)

	o.logger.Info("run cancelled manually",
		"run_id", runID,
		"change_id", run.ChangeID,
	)
	return nil
}

// startRun классифицирует изменение и запускает dispatch.
func (o *Orchestrator) startRun(ctx context.Context, run *domain.Run) error {
	flags, err := o.classifyEvent(ctx, run.Event)
	if err != nil {
		// Ошибка до dispatch: run финализируется FAILED, jobs не запускались
		errMsg := fmt.Sprintf("classification failed: %v", err)
		o.registry.MarkFailed(ctx, run.ID, errMsg)
		telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusFailed)).Inc()
		o.logger.Warn("run failed before dispatch",
			"run_id", run.ID,
			"change_id", run.ChangeID,
			"error", err,
		)
		return nil
	}

	o.registry.SetFlags(ctx, run.ID, flags)

	// Run мог быть вытеснен, пока считался diff
	if !o.registry.MarkRunning(ctx, run.ID) {
		o.logger.Info("run no longer pending, dispatch skipped",
			"run_id", run.ID,
			"status", o.registry.Status(run.ID),
		)
		return nil
	}

	o.logger.Info("run classified",
		"run_id", run.ID,
		"change_id", run.ChangeID,
		"flags", flags.TrueNames(),
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runDispatch(o.runCtx(), run)
	}()

	return nil
}

// classifyEvent вычисляет флаги классификации для события.
func (o *Orchestrator) classifyEvent(ctx context.Context, event domain.ChangeEvent) (domain.ClassificationFlags, error) {
	if event.ForceAll {
		return o.classifier.AllTrue(), nil
	}

	files := event.Files
	if len(files) == 0 && event.BaseRef != "" && event.HeadRef != "" {
		if o.diffs == nil {
			return nil, ErrNoFiles
		}
		var err error
		files, err = o.diffs.ModifiedFiles(ctx, event.BaseRef, event.HeadRef)
		if err != nil {
			return nil, fmt.Errorf("fetch diff %s..%s: %w", event.BaseRef, event.HeadRef, err)
		}
	}

	return o.classifier.Classify(files), nil
}

// runDispatch выполняет dispatch run и финализирует его статус.
func (o *Orchestrator) runDispatch(ctx context.Context, run *domain.Run) {
	ex := o.dispatcher.Start(ctx, run)
	o.superseder.Track(run.ID, ex)
	defer o.superseder.Forget(run.ID)

	decision, err := ex.Wait(ctx)
	if err != nil {
		o.logger.Error("dispatch wait interrupted",
			"run_id", run.ID,
			"error", err,
		)
		return
	}

	o.recordDecision(ctx, decision)

	// Вытесненный run остаётся CANCELLED независимо от исхода jobs
	if ex.Cancelled() || o.registry.Status(run.ID) == domain.RunStatusCancelled {
		o.logger.Info("run finished as cancelled",
			"run_id", run.ID,
			"change_id", run.ChangeID,
		)
		return
	}

	if decision.Succeeded() {
		o.registry.MarkCompleted(ctx, run.ID)
		telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusCompleted)).Inc()
		telemetry.RunDuration.Observe(run.Duration().Seconds())
		o.logger.Info("run completed",
			"run_id", run.ID,
			"change_id", run.ChangeID,
			"launched", len(decision.Launched()),
			"duration", run.Duration(),
		)
		return
	}

	errMsg := failureSummary(decision)
	o.registry.MarkFailed(ctx, run.ID, errMsg)
	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusFailed)).Inc()
	telemetry.RunDuration.Observe(run.Duration().Seconds())
	o.logger.Warn("run failed",
		"run_id", run.ID,
		"change_id", run.ChangeID,
		"error", errMsg,
		"duration", run.Duration(),
	)
}

// recordDecision пишет метрики jobs и персистит решение.
func (o *Orchestrator) recordDecision(ctx context.Context, decision *domain.DispatchDecision) {
	for _, j := range decision.Jobs {
		switch {
		case j.Outcome == domain.OutcomeLaunched:
			telemetry.JobsLaunched.Inc()
			if j.Status == domain.JobStatusFailed {
				telemetry.JobsFailed.Inc()
			}
		case j.Outcome.IsSkip():
			telemetry.JobsSkipped.WithLabelValues(string(j.Outcome)).Inc()
		case j.Outcome == domain.OutcomeFailed:
			telemetry.JobsFailed.Inc()
		}
	}

	if o.decisions == nil {
		return
	}
	if err := o.decisions.SaveDecision(ctx, decision); err != nil {
		o.logger.Warn("failed to persist dispatch decision",
			"run_id", decision.RunID,
			"error", err,
		)
	}
}

// failureSummary собирает текст ошибки run из неуспешных jobs.
func failureSummary(decision *domain.DispatchDecision) string {
	var failed []string
	for _, j := range decision.Jobs {
		if j.BestEffort {
			continue
		}
		if j.Outcome == domain.OutcomeFailed ||
			(j.Outcome == domain.OutcomeLaunched && j.Status != domain.JobStatusSucceeded) {
			failed = append(failed, j.Name)
		}
	}
	return fmt.Sprintf("jobs failed: %v", failed)
}
