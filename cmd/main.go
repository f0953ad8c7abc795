package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"messenger-ws/internal/config"
	"messenger-ws/internal/delivery"
	"messenger-ws/internal/infrastructure/kafka"
	"messenger-ws/internal/infrastructure/redis"
	"messenger-ws/internal/storage"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Application recovered from panic: %v", r)
			os.Exit(1)
		}
	}()

	_ = godotenv.Load()

	cfg := config.LoadConfig()

	log.Printf("Starting Messenger Coordination Server")
	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Port: %s", cfg.Port)
	log.Printf("Instance: %s", cfg.InstanceID)
	log.Printf("Database: %s", cfg.DatabasePath)
	log.Printf("Redis: %s:%s", cfg.RedisHost, cfg.RedisPort)
	log.Printf("Kafka Brokers: %v", cfg.KafkaBrokers)

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	mirror := redis.NewMirrorClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err := mirror.Ping(context.Background()); err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
	} else {
		log.Println("Redis connection successful")
	}

	kafkaBroker := strings.Join(cfg.KafkaBrokers, ",")
	producer := kafka.NewProducer(kafkaBroker, cfg.InstanceID)

	gateway := delivery.NewGateway(cfg, store, mirror, producer)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.InstanceID, gateway)

	server := delivery.NewServer(cfg, gateway, mirror)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down...")
		cancel()
		gateway.Close()
		if err := consumer.Close(); err != nil {
			log.Printf("Error closing Kafka consumer: %v", err)
		}
		if err := producer.Close(); err != nil {
			log.Printf("Error closing Kafka producer: %v", err)
		}
		if err := mirror.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Kafka consumer goroutine recovered from panic: %v", r)
			}
		}()
		if err := consumer.Start(ctx); err != nil {
			log.Printf("Kafka consumer error: %v", err)
		}
	}()

	log.Fatal(server.Start())
}
