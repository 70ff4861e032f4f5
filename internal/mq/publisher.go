package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeChangePushed MessageType = "change.pushed"
	MessageTypeRunCancel    MessageType = "run.cancel"
	MessageTypeJobInvoke    MessageType = "job.invoke"
	MessageTypeJobCancel    MessageType = "job.cancel"
	MessageTypeJobCompleted MessageType = "job.completed"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// ChangePushedPayload — payload для события о новом изменении.
type ChangePushedPayload struct {
	EventID  uuid.UUID `json:"event_id"`
	ChangeID string    `json:"change_id"`
	BaseRef  string    `json:"base_ref"`
	HeadRef  string    `json:"head_ref"`
	Files    []string  `json:"files,omitempty"`
	ForceAll bool      `json:"force_all,omitempty"`
}

// RunCancelPayload — payload для ручной отмены run.
type RunCancelPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// JobInvokePayload — payload для запуска внешнего job.
//
// Secrets содержит только секреты, объявленные в JobSpec; job без
// объявлений получает пустую карту. Значения не логируются.
type JobInvokePayload struct {
	JobID   uuid.UUID         `json:"job_id"`
	RunID   uuid.UUID         `json:"run_id"`
	Ref     string            `json:"ref"`
	Params  map[string]any    `json:"params,omitempty"`
	Secrets map[string]string `json:"secrets,omitempty"`
}

// JobCancelPayload — payload для best-effort отмены внешнего job.
type JobCancelPayload struct {
	JobID uuid.UUID `json:"job_id"`
	RunID uuid.UUID `json:"run_id"`
}

// JobCompletedPayload — payload о терминальном статусе внешнего job.
type JobCompletedPayload struct {
	JobID  uuid.UUID `json:"job_id"`
	RunID  uuid.UUID `json:"run_id"`
	Status string    `json:"status"` // SUCCEEDED, FAILED или CANCELLED
	Error  string    `json:"error,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishChangePushed публикует событие о новом изменении.
// Потребитель: Orchestrator.
func (p *Publisher) PublishChangePushed(ctx context.Context, payload ChangePushedPayload) error {
	return p.publish(ctx, ExchangeChanges, RoutingKeyPushed, MessageTypeChangePushed, payload)
}

// PublishRunCancel публикует запрос ручной отмены run.
// Потребитель: Orchestrator.
func (p *Publisher) PublishRunCancel(ctx context.Context, runID uuid.UUID) error {
	return p.publish(ctx, ExchangeRuns, RoutingKeyCancel, MessageTypeRunCancel, RunCancelPayload{RunID: runID})
}

// PublishJobInvoke публикует запуск внешнего job.
// Потребитель: внешний исполняющий субстрат.
func (p *Publisher) PublishJobInvoke(ctx context.Context, payload JobInvokePayload) error {
	return p.publish(ctx, ExchangeJobs, RoutingKeyInvoke, MessageTypeJobInvoke, payload)
}

// PublishJobCancel публикует best-effort отмену внешнего job.
// Потребитель: внешний исполняющий субстрат.
func (p *Publisher) PublishJobCancel(ctx context.Context, jobID, runID uuid.UUID) error {
	return p.publish(ctx, ExchangeJobs, RoutingKeyJobCancel, MessageTypeJobCancel, JobCancelPayload{JobID: jobID, RunID: runID})
}

// PublishJobCompleted публикует терминальный статус job.
// Используется субстратом (и тестовыми стендами) для отчёта оркестратору.
func (p *Publisher) PublishJobCompleted(ctx context.Context, payload JobCompletedPayload) error {
	return p.publish(ctx, ExchangeJobs, RoutingKeyCompleted, MessageTypeJobCompleted, payload)
}

// publish собирает Message и публикует его.
func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, exchange, routingKey, msg)
}

// ParsePayload разбирает payload сообщения в конкретный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return out, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal payload as %T: %w", out, err)
	}
	return out, nil
}
