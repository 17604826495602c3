package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/models"
)

// NotificationsDestination is the per-user queue live notifications are delivered on
const NotificationsDestination = "/user/queue/notifications"

// UserSender is the part of the frame broker the live sink needs
type UserSender interface {
	SendToUser(userID uint, destination string, body []byte) int
}

// UserQueueSink pushes the event to every connection of the user subscribed to the
// notifications queue
type UserQueueSink struct {
	Sender UserSender
}

// Name implements Sink
func (UserQueueSink) Name() string { return "user-queue" }

// Deliver implements Sink
func (s UserQueueSink) Deliver(_ context.Context, userID uint, ev models.NotificationEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	s.Sender.SendToUser(userID, NotificationsDestination, b)
	return nil
}

// InboxSink stores the event in the user's notification inbox
type InboxSink struct {
	DB databases.NotificationDatabase
}

// Name implements Sink
func (InboxSink) Name() string { return "inbox" }

// Deliver implements Sink
func (s InboxSink) Deliver(ctx context.Context, userID uint, ev models.NotificationEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return s.DB.InsertOne(ctx, models.Notification{UserID: userID, NotificationEvent: ev})
}

// MessageWriter is satisfied by *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes events to a topic keyed by recipient so one user's events stay ordered
// within a partition
type KafkaSink struct {
	Writer MessageWriter
}

// NewKafkaWriter builds the writer the kafka sink publishes through
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

// Name implements Sink
func (KafkaSink) Name() string { return "kafka" }

type kafkaEvent struct {
	RecipientID uint `json:"recipientId"`
	models.NotificationEvent
}

// Deliver implements Sink
func (s KafkaSink) Deliver(ctx context.Context, userID uint, ev models.NotificationEvent) error {
	b, err := json.Marshal(kafkaEvent{RecipientID: userID, NotificationEvent: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return s.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(userID), 10)),
		Value: b,
		Time:  time.Now(),
	})
}
