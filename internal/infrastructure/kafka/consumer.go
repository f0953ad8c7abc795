package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"messenger-ws/internal/domain"
)

// RelayHandler receives coordination events published by other instances.
type RelayHandler interface {
	HandleRemoteMessage(msg domain.Message)
	HandleRemoteStatus(st domain.MessageStatus)
	HandleRemoteTyping(sig domain.TypingSignal, stopped bool)
	HandleRemoteUserStatus(st domain.UserStatus)
}

// Consumer reads the relay topics and forwards events from other instances
// to the handler. Events originating from this instance are skipped.
type Consumer struct {
	readers []*kafka.Reader
	handler RelayHandler
	origin  string
}

func NewConsumer(brokers []string, groupID, origin string, handler RelayHandler) *Consumer {
	var readers []*kafka.Reader
	for _, topic := range Topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 100 * time.Millisecond,
			StartOffset:    kafka.LastOffset,
			MaxWait:        100 * time.Millisecond,
		})
		readers = append(readers, reader)
	}
	return &Consumer{readers: readers, handler: handler, origin: origin}
}

// Start launches one consuming goroutine per topic. Errors never stop the
// loop; each handler invocation is individually recovered.
func (c *Consumer) Start(ctx context.Context) error {
	for i := range c.readers {
		go func(reader *kafka.Reader) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Recovered from panic in Kafka consumer goroutine: %v", r)
				}
			}()
			defer reader.Close()

			for {
				select {
				case <-ctx.Done():
					return
				default:
					m, err := reader.ReadMessage(ctx)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Printf("Error reading Kafka message: %v", err)
						continue
					}
					if c.handler != nil {
						c.handleMessage(m.Topic, m.Value)
					}
				}
			}
		}(c.readers[i])
	}
	return nil
}

func (c *Consumer) handleMessage(topic string, value []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic handling Kafka message on %s: %v", topic, r)
		}
	}()

	switch topic {
	case TopicMessages:
		var env MessageEnvelope
		if err := json.Unmarshal(value, &env); err != nil {
			log.Printf("Error unmarshaling message envelope: %v", err)
			return
		}
		if env.Origin == c.origin {
			return
		}
		c.handler.HandleRemoteMessage(env.Message)

	case TopicStatus:
		var env StatusEnvelope
		if err := json.Unmarshal(value, &env); err != nil {
			log.Printf("Error unmarshaling status envelope: %v", err)
			return
		}
		if env.Origin == c.origin {
			return
		}
		c.handler.HandleRemoteStatus(env.Status)

	case TopicTyping:
		var env TypingEnvelope
		if err := json.Unmarshal(value, &env); err != nil {
			log.Printf("Error unmarshaling typing envelope: %v", err)
			return
		}
		if env.Origin == c.origin {
			return
		}
		c.handler.HandleRemoteTyping(env.Signal, env.Stopped)

	case TopicUserStatus:
		var env UserStatusEnvelope
		if err := json.Unmarshal(value, &env); err != nil {
			log.Printf("Error unmarshaling user status envelope: %v", err)
			return
		}
		if env.Origin == c.origin {
			return
		}
		c.handler.HandleRemoteUserStatus(env.Status)

	default:
		log.Printf("Unknown relay topic: %s", topic)
	}
}

func (c *Consumer) Close() error {
	for i := range c.readers {
		if err := c.readers[i].Close(); err != nil {
			log.Printf("Error closing Kafka reader: %v", err)
		}
	}
	return nil
}
