package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeChanges Exchange = "gatekeeper.changes"
	ExchangeRuns    Exchange = "gatekeeper.runs"
	ExchangeJobs    Exchange = "gatekeeper.jobs"
)

// Queues — имена очередей.
const (
	QueueChangesPushed Queue = "changes.pushed"
	QueueRunsCancel    Queue = "runs.cancel"
	QueueJobsInvoke    Queue = "jobs.invoke"
	QueueJobsCancel    Queue = "jobs.cancel"
	QueueJobsCompleted Queue = "jobs.completed"
)

// Routing keys.
const (
	RoutingKeyPushed    RoutingKey = "pushed"
	RoutingKeyCancel    RoutingKey = "cancel"
	RoutingKeyInvoke    RoutingKey = "invoke"
	RoutingKeyJobCancel RoutingKey = "job-cancel"
	RoutingKeyCompleted RoutingKey = "completed"
)

// SetupTopology объявляет exchanges, очереди и привязки.
// Идемпотентен: повторное объявление существующей топологии безопасно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeChanges, "direct"},
		{ExchangeRuns, "direct"},
		{ExchangeJobs, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []Queue{
		QueueChangesPushed,
		QueueRunsCancel,
		QueueJobsInvoke,
		QueueJobsCancel,
		QueueJobsCompleted,
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q), // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueChangesPushed, RoutingKeyPushed, ExchangeChanges},
		{QueueRunsCancel, RoutingKeyCancel, ExchangeRuns},
		{QueueJobsInvoke, RoutingKeyInvoke, ExchangeJobs},
		{QueueJobsCancel, RoutingKeyJobCancel, ExchangeJobs},
		{QueueJobsCompleted, RoutingKeyCompleted, ExchangeJobs},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Gatekeeper RabbitMQ Topology:

    gatekeeper.changes (direct)
    └── changes.pushed [routing: pushed]
            Consumer: Orchestrator

    gatekeeper.runs (direct)
    └── runs.cancel [routing: cancel]
            Consumer: Orchestrator

    gatekeeper.jobs (direct)
    ├── jobs.invoke [routing: invoke]
    │       Consumer: внешний исполняющий субстрат
    ├── jobs.cancel [routing: job-cancel]
    │       Consumer: внешний исполняющий субстрат
    └── jobs.completed [routing: completed]
            Consumer: Orchestrator (Job Runner)`
}
