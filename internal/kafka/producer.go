package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-seatledger/internal/models"
)

// TicketEvent is the message streamed for every successful ledger mutation.
type TicketEvent struct {
	Type         string   `json:"type"`
	TournamentID string   `json:"tournament_id"`
	StoreID      string   `json:"store_id,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	TicketIDs    []string `json:"ticket_ids"`
	Quantity     int      `json:"quantity"`
	ActorID      string   `json:"actor_id,omitempty"`
}

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// PublishTicketEvent streams one ledger mutation to Kafka, keyed by
// tournament so per-tournament consumers see events in order.
func (p *Producer) PublishTicketEvent(tx models.TicketTransaction) error {
	event := TicketEvent{
		Type:         tx.Type,
		TournamentID: tx.TournamentID,
		StoreID:      tx.StoreID,
		UserID:       tx.UserID,
		TicketIDs:    tx.TicketIDs,
		Quantity:     tx.Quantity,
		ActorID:      tx.ActorID,
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	fmt.Printf("Publishing to Kafka [%s]: %s\n", tx.Type, string(msgBytes))

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(tx.TournamentID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	if p.Writer != nil {
		return p.Writer.Close()
	}
	return nil
}
