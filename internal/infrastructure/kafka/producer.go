// Package kafka relays coordination events between service instances. Each
// instance tags what it publishes with its own origin ID and ignores its own
// events on the way back in, so local delivery is never duplicated.
package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"messenger-ws/internal/domain"
)

const (
	TopicMessages   = "chat-messages"
	TopicStatus     = "message-status"
	TopicTyping     = "typing-indicators"
	TopicUserStatus = "user-status"
)

// Topics lists every relay topic, in the order consumers subscribe them.
var Topics = []string{TopicMessages, TopicStatus, TopicTyping, TopicUserStatus}

type MessageEnvelope struct {
	Origin  string         `json:"origin"`
	Message domain.Message `json:"message"`
}

type StatusEnvelope struct {
	Origin string               `json:"origin"`
	Status domain.MessageStatus `json:"status"`
}

type TypingEnvelope struct {
	Origin  string              `json:"origin"`
	Signal  domain.TypingSignal `json:"signal"`
	Stopped bool                `json:"stopped"`
}

type UserStatusEnvelope struct {
	Origin string            `json:"origin"`
	Status domain.UserStatus `json:"status"`
}

// Producer publishes origin-tagged coordination events. It implements the
// core's EventRelay contract.
type Producer struct {
	writer *kafka.Writer
	origin string
}

func NewProducer(broker, origin string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(broker),
		Balancer: &kafka.LeastBytes{},
		// Relay latency matters more than batching throughput here.
		BatchSize:    1,
		BatchTimeout: 0 * time.Millisecond,
		RequiredAcks: 1,
		Async:        false,
	}
	return &Producer{writer: writer, origin: origin}
}

func (p *Producer) RelayMessage(ctx context.Context, msg domain.Message) error {
	return p.publish(ctx, TopicMessages, MessageEnvelope{Origin: p.origin, Message: msg})
}

func (p *Producer) RelayStatus(ctx context.Context, st domain.MessageStatus) error {
	return p.publish(ctx, TopicStatus, StatusEnvelope{Origin: p.origin, Status: st})
}

func (p *Producer) RelayTyping(ctx context.Context, sig domain.TypingSignal, stopped bool) error {
	return p.publish(ctx, TopicTyping, TypingEnvelope{Origin: p.origin, Signal: sig, Stopped: stopped})
}

func (p *Producer) RelayUserStatus(ctx context.Context, st domain.UserStatus) error {
	return p.publish(ctx, TopicUserStatus, UserStatusEnvelope{Origin: p.origin, Status: st})
}

func (p *Producer) publish(ctx context.Context, topic string, envelope interface{}) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: data})
	if err != nil {
		log.Printf("Failed to publish to Kafka topic %s: %v", topic, err)
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
