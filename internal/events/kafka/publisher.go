package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nkiryanov/walletledger/internal/events"
	"github.com/nkiryanov/walletledger/internal/models"
)

const DefaultTopic = "ledger.transactions"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Keyed by transaction id, so every event of a transaction lands in the same partition
func (p *Publisher) Publish(ctx context.Context, view models.TransactionView) error {
	data, err := json.Marshal(events.NewTransactionCompleted(view))
	if err != nil {
		return fmt.Errorf("marshal transaction event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(view.ID.String()),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("publish transaction %s: %w", view.ID, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
