package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Gatekeeper/internal/classify"
	"github.com/shaiso/Gatekeeper/internal/diff"
	"github.com/shaiso/Gatekeeper/internal/dispatch"
	"github.com/shaiso/Gatekeeper/internal/domain"
	"github.com/shaiso/Gatekeeper/internal/mq"
	"github.com/shaiso/Gatekeeper/internal/registry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second

	// defaultPollGrace — возраст PENDING run, после которого polling
	// считает его осиротевшим и подхватывает.
	defaultPollGrace = 30 * time.Second
)

// DecisionPersister — опциональная персистенция итоговых решений dispatch.
type DecisionPersister interface {
	SaveDecision(ctx context.Context, decision *domain.DispatchDecision) error
}

// Orchestrator управляет жизненным циклом runs.
//
// Для каждого события об изменении:
//   - регистрирует новый run в registry (старый run того же изменения
//     при этом атомарно помечается CANCELLED)
//   - доводит вытеснение до исполнения через Superseder
//   - классифицирует diff изменения в флаги
//   - запускает dispatch jobs и финализирует статус run
type Orchestrator struct {
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	classifier *classify.Classifier
	superseder *Superseder

	// diffs запрашивает список файлов, когда событие его не несёт.
	// Nil допустим: тогда событие без файлов — ошибка run.
	diffs diff.Service

	decisions DecisionPersister

	conn *mq.Connection

	changeConsumer *mq.Consumer
	cancelConsumer *mq.Consumer

	pollInterval time.Duration
	pollGrace    time.Duration

	// baseCtx — контекст горутин dispatch; живёт до Stop.
	baseCtx    context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Classifier *classify.Classifier

	// Diffs — сервис списка изменённых файлов (опционально).
	Diffs diff.Service

	// Decisions — персистенция решений dispatch (опционально).
	Decisions DecisionPersister

	// Conn — соединение с RabbitMQ. Nil допустим: события тогда
	// подаются напрямую через ProcessChange (API, тесты).
	Conn *mq.Connection

	// PollInterval — интервал polling fallback (default: 10s).
	PollInterval time.Duration

	// PollGrace — возраст PENDING run для подхвата polling'ом (default: 30s).
	PollGrace time.Duration

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	pollGrace := cfg.PollGrace
	if pollGrace <= 0 {
		pollGrace = defaultPollGrace
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		registry:     cfg.Registry,
		dispatcher:   cfg.Dispatcher,
		classifier:   cfg.Classifier,
		superseder:   NewSuperseder(logger),
		diffs:        cfg.Diffs,
		decisions:    cfg.Decisions,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		pollGrace:    pollGrace,
		logger:       logger,
	}
}

// Start запускает Orchestrator: consumers событий и polling fallback.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.baseCtx = ctx
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"event_driven", o.conn != nil,
	)

	if o.conn != nil {
		o.changeConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueChangesPushed),
			Handler:  o.handleChangePushed,
			Prefetch: 10,
		})

		o.cancelConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueRunsCancel),
			Handler:  o.handleRunCancel,
			Prefetch: 10,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.changeConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("change consumer error", "error", err)
			}
		}()

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.cancelConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("cancel consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator и дожидается завершения горутин.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	if o.changeConsumer != nil {
		o.changeConsumer.Stop()
	}
	if o.cancelConsumer != nil {
		o.cancelConsumer.Stop()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped",
		"active_dispatches", o.superseder.Active(),
	)
}

// ActiveDispatches возвращает количество идущих dispatch.
func (o *Orchestrator) ActiveDispatches() int {
	return o.superseder.Active()
}

// runCtx — контекст для горутин dispatch.
func (o *Orchestrator) runCtx() context.Context {
	if o.baseCtx != nil {
		return o.baseCtx
	}
	return context.Background()
}

// pollLoop — polling fallback для осиротевших PENDING runs.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

// poll подхватывает PENDING runs, у которых нет идущего dispatch.
func (o *Orchestrator) poll(ctx context.Context) {
	cutoff := time.Now().Add(-o.pollGrace)

	for _, run := range o.registry.List("") {
		if run.Status != domain.RunStatusPending {
			continue
		}
		if run.CreatedAt.After(cutoff) {
			continue
		}
		if o.superseder.Execution(run.ID) != nil {
			continue
		}

		o.logger.Warn("picking up orphaned pending run",
			"run_id", run.ID,
			"change_id", run.ChangeID,
			"age", time.Since(run.CreatedAt),
		)

		if err := o.startRun(ctx, run); err != nil {
			o.logger.Error("failed to start orphaned run",
				"run_id", run.ID,
				"error", err,
			)
		}
	}
}
