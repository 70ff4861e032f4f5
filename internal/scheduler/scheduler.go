package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Gatekeeper/internal/gating"
	"github.com/shaiso/Gatekeeper/internal/mq"
)

// defaultTickInterval — период проверки due schedules.
const defaultTickInterval = 30 * time.Second

// eventPublisher — подмножество mq.Publisher, нужное Scheduler'у.
type eventPublisher interface {
	PublishChangePushed(ctx context.Context, payload mq.ChangePushedPayload) error
}

// Scheduler запускает плановые полные прогоны.
//
// Расписания статичны: они объявлены в gating-таблице рядом с jobs.
// На каждое срабатывание Scheduler публикует синтетическое событие
// change.pushed с ForceAll=true: классификация не выполняется, все
// флаги истинны, запускается полный набор jobs для указанной ревизии.
type Scheduler struct {
	schedules []gating.Schedule
	publisher eventPublisher
	logger    *slog.Logger

	tickInterval time.Duration

	// nextDue — следующее срабатывание каждого расписания по имени.
	nextDue map[string]time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules []gating.Schedule
	Publisher *mq.Publisher

	// TickInterval — период проверки (default: 30s).
	TickInterval time.Duration

	Logger *slog.Logger
}

// New создаёт Scheduler и вычисляет первые срабатывания.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}

	s := &Scheduler{
		schedules:    cfg.Schedules,
		publisher:    cfg.Publisher,
		logger:       logger,
		tickInterval: tickInterval,
		nextDue:      make(map[string]time.Time, len(cfg.Schedules)),
	}

	now := time.Now()
	for _, sched := range cfg.Schedules {
		next, err := NextAfter(sched.Cron, now)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sched.Name, err)
		}
		s.nextDue[sched.Name] = next
		logger.Info("schedule registered",
			"schedule", sched.Name,
			"cron", sched.Cron,
			"ref", sched.Ref,
			"next_due", next,
		)
	}

	return s, nil
}

// Run крутит цикл тиков до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		"schedules", len(s.schedules),
		"tick_interval", s.tickInterval,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx, time.Now())
		}
	}
}

// Tick обрабатывает все due schedules на момент now.
// Ошибка одного расписания не блокирует остальные.
// Возвращает количество опубликованных событий.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	var fired int

	for _, sched := range s.schedules {
		due := s.nextDue[sched.Name]
		if due.After(now) {
			continue
		}

		if err := s.fire(ctx, sched); err != nil {
			s.logger.Error("failed to fire schedule",
				"schedule", sched.Name,
				"error", err,
			)
			// nextDue не двигаем: попробуем на следующем тике
			continue
		}
		fired++

		next, err := NextAfter(sched.Cron, now)
		if err != nil {
			// Валидация таблицы не пропустила бы некорректный cron,
			// но на всякий случай не зацикливаемся на нём
			s.logger.Error("failed to compute next due",
				"schedule", sched.Name,
				"error", err,
			)
			next = now.Add(24 * time.Hour)
		}
		s.nextDue[sched.Name] = next
	}

	return fired
}

// fire публикует синтетическое событие полного прогона.
func (s *Scheduler) fire(ctx context.Context, sched gating.Schedule) error {
	payload := mq.ChangePushedPayload{
		EventID:  uuid.New(),
		ChangeID: sched.Name,
		HeadRef:  sched.Ref,
		ForceAll: true,
	}

	if err := s.publisher.PublishChangePushed(ctx, payload); err != nil {
		return fmt.Errorf("publish change.pushed: %w", err)
	}

	s.logger.Info("scheduled full run fired",
		"schedule", sched.Name,
		"ref", sched.Ref,
		"event_id", payload.EventID,
	)
	return nil
}

// NextDue возвращает следующее срабатывание расписания.
func (s *Scheduler) NextDue(name string) (time.Time, bool) {
	t, ok := s.nextDue[name]
	return t, ok
}
