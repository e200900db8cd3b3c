package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/storesphere/checkout-service/models"
)

// SettledEventPublisher publishes post-settlement events, best-effort.
type SettledEventPublisher interface {
	SendSettledEvent(ctx context.Context, evt models.SettledEvent) error
}

type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Printf("[CheckoutService][KafkaProducer] initialized topic=%s brokers=%v", topic, brokers)
	return &Producer{writer: w, topic: topic}
}

func (p *Producer) SendSettledEvent(ctx context.Context, evt models.SettledEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(evt.UserID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("[CheckoutService][KafkaProducer] failed to publish settled event user=%s topic=%s err=%v", evt.UserID, p.topic, err)
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	log.Printf("[CheckoutService][KafkaProducer] closing writer topic=%s", p.topic)
	return p.writer.Close()
}
