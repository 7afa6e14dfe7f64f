// Package messaging публикует события об отправленных на модерацию историях.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// EventStorySubmitted - тип события новой истории, ожидающей модерации.
const EventStorySubmitted = "story.submitted"

// StorySubmittedEvent - полезная нагрузка события для сервиса модерации.
type StorySubmittedEvent struct {
	Event     string    `json:"event"`
	StoryID   string    `json:"story_id"`
	ParentID  string    `json:"parent_id"`
	ChildID   string    `json:"child_id"`
	Title     string    `json:"title"`
	Pages     int       `json:"pages"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewPublisher отправляет события в очередь модерации.
type ReviewPublisher interface {
	PublishStorySubmitted(ctx context.Context, event StorySubmittedEvent) error
}

// amqpChannel - часть *amqp.Channel, используемая издателем.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// rabbitMQReviewPublisher публикует события в durable очередь RabbitMQ.
type rabbitMQReviewPublisher struct {
	mu        sync.Mutex
	channel   amqpChannel
	queueName string
	logger    *zap.Logger
}

var _ ReviewPublisher = (*rabbitMQReviewPublisher)(nil)

// NewRabbitMQReviewPublisher объявляет очередь и создает издателя.
// Канал открывается и закрывается вызывающей стороной.
func NewRabbitMQReviewPublisher(ch amqpChannel, queueName string, logger *zap.Logger) (ReviewPublisher, error) {
	_, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		amqp.Table{"x-queue-mode": "lazy"},
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось объявить очередь модерации '%s': %w", queueName, err)
	}
	logger.Info("Review queue declared", zap.String("queue", queueName))
	return &rabbitMQReviewPublisher{channel: ch, queueName: queueName, logger: logger.Named("ReviewPublisher")}, nil
}

func (p *rabbitMQReviewPublisher) PublishStorySubmitted(ctx context.Context, event StorySubmittedEvent) error {
	if event.Event == "" {
		event.Event = EventStorySubmitted
	}
	logFields := []zap.Field{zap.String("story_id", event.StoryID), zap.String("queue", p.queueName)}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события для истории %s: %w", event.StoryID, err)
	}

	// amqp.Channel не безопасен для конкурентной публикации
	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        "storybook-server",
			MessageId:    event.StoryID + "-submitted",
			Type:         event.Event,
		},
	)
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("Failed to publish story submitted event", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка публикации события для истории %s: %w", event.StoryID, err)
	}
	p.logger.Info("Story submitted event published", logFields...)
	return nil
}

// NoopReviewPublisher используется, когда RabbitMQ не настроен.
type NoopReviewPublisher struct {
	Logger *zap.Logger
}

func (p NoopReviewPublisher) PublishStorySubmitted(_ context.Context, event StorySubmittedEvent) error {
	if p.Logger != nil {
		p.Logger.Debug("Review publishing disabled, event dropped", zap.String("story_id", event.StoryID))
	}
	return nil
}
