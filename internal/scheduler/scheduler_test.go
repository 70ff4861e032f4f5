package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Gatekeeper/internal/gating"
	"github.com/shaiso/Gatekeeper/internal/mq"
)

type capturePublisher struct {
	published []mq.ChangePushedPayload
	fail      bool
}

func (p *capturePublisher) PublishChangePushed(ctx context.Context, payload mq.ChangePushedPayload) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, payload)
	return nil
}

func newTestScheduler(t *testing.T, pub *capturePublisher, schedules ...gating.Schedule) *Scheduler {
	t.Helper()
	s, err := New(Config{Schedules: schedules})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.publisher = pub
	return s
}

func TestTick_FiresDueSchedule(t *testing.T) {
	pub := &capturePublisher{}
	s := newTestScheduler(t, pub, gating.Schedule{
		Name: "nightly-full",
		Cron: "0 4 * * *",
		Ref:  "main",
	})

	// Сдвигаем nextDue в прошлое
	s.nextDue["nightly-full"] = time.Now().Add(-time.Minute)

	if fired := s.Tick(context.Background(), time.Now()); fired != 1 {
		t.Fatalf("expected 1 fired schedule, got %d", fired)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.published))
	}
	event := pub.published[0]
	if !event.ForceAll {
		t.Error("scheduled event must set force_all")
	}
	if event.ChangeID != "nightly-full" || event.HeadRef != "main" {
		t.Errorf("unexpected event: %+v", event)
	}

	// nextDue должен уйти в будущее
	next, ok := s.NextDue("nightly-full")
	if !ok || !next.After(time.Now()) {
		t.Errorf("next due should move to the future, got %v", next)
	}
}

func TestTick_NotDueYet(t *testing.T) {
	pub := &capturePublisher{}
	s := newTestScheduler(t, pub, gating.Schedule{
		Name: "nightly-full",
		Cron: "0 4 * * *",
		Ref:  "main",
	})

	if fired := s.Tick(context.Background(), time.Now()); fired != 0 {
		t.Errorf("freshly created schedule should not fire, got %d", fired)
	}
	if len(pub.published) != 0 {
		t.Error("nothing should be published")
	}
}

func TestTick_PublishFailureRetriesNextTick(t *testing.T) {
	pub := &capturePublisher{fail: true}
	s := newTestScheduler(t, pub, gating.Schedule{
		Name: "nightly-full",
		Cron: "0 4 * * *",
		Ref:  "main",
	})

	due := time.Now().Add(-time.Minute)
	s.nextDue["nightly-full"] = due

	if fired := s.Tick(context.Background(), time.Now()); fired != 0 {
		t.Errorf("failed publish should not count as fired, got %d", fired)
	}

	// nextDue не сдвинулось: следующий тик попробует снова
	if next, _ := s.NextDue("nightly-full"); !next.Equal(due) {
		t.Errorf("next due should stay at %v, got %v", due, next)
	}

	pub.fail = false
	if fired := s.Tick(context.Background(), time.Now()); fired != 1 {
		t.Errorf("retry on next tick should fire, got %d", fired)
	}
}

func TestNew_InvalidCron(t *testing.T) {
	_, err := New(Config{Schedules: []gating.Schedule{
		{Name: "bad", Cron: "not a cron", Ref: "main"},
	}})
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNextAfter(t *testing.T) {
	from := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)
	next, err := NextAfter("0 4 * * *", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 8, 24, 4, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}
