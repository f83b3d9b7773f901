package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/raindrop/identity-service/internal/repository"
	"github.com/segmentio/kafka-go"
)

// Consumer listens for user lifecycle events from the profile side. A
// deleted user must not keep usable refresh tokens, so user.deleted
// cascades into RevokeAllForUser.
type Consumer struct {
	reader      *kafka.Reader
	refreshRepo repository.RefreshTokenRepository
}

func NewConsumer(brokers []string, topic, groupID string, refreshRepo repository.RefreshTokenRepository) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		refreshRepo: refreshRepo,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key))

		var event struct {
			EventType string `json:"event_type"`
			UserID    string `json:"user_id"`
		}
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal user event", "error", err)
			continue
		}

		switch event.EventType {
		case "user.deleted":
			if event.UserID == "" {
				slog.Error("invalid user.deleted event: missing user_id")
				continue
			}
			if err := c.refreshRepo.RevokeAllForUser(ctx, event.UserID); err != nil {
				slog.Error("failed to revoke refresh tokens for deleted user", "user_id", event.UserID, "error", err)
				continue
			}
			slog.Info("refresh tokens revoked for deleted user", "user_id", event.UserID)
		default:
			// Other user events belong to the profile service.
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
