package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/RachHavoc/stixmapper/internal/stixcore"
)

func main() {
	log.Println("Starting stixmapper bundle publisher")

	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <bundle.json> [bundle.json ...]", os.Args[0])
	}

	kafkaBroker := os.Getenv("KAFKA_BROKER")
	if kafkaBroker == "" {
		kafkaBroker = "localhost:9092"
		log.Printf("KAFKA_BROKER environment variable not set, using default: %s", kafkaBroker)
	}

	bundleTopic := os.Getenv("KAFKA_TOPIC")
	if bundleTopic == "" {
		bundleTopic = "stix-bundles"
		log.Printf("KAFKA_TOPIC environment variable not set, using default: %s", bundleTopic)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaBroker),
		Topic:        bundleTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	defer writer.Close()

	published := 0
	for _, path := range os.Args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Failed to read %s: %v", path, err)
			continue
		}
		// Only well-formed bundles go on the topic.
		if _, err := stixcore.DecodeBundle(data); err != nil {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}
		msg := kafka.Message{
			Key:   []byte(filepath.Base(path)),
			Value: data,
		}
		if err := writer.WriteMessages(context.Background(), msg); err != nil {
			log.Printf("Failed to publish %s: %v", path, err)
			continue
		}
		published++
	}

	log.Printf("Published %d bundles to topic %s", published, bundleTopic)
}
