package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/RachHavoc/stixmapper/internal/stixcore"
)

func main() {
	log.Println("Starting stixmapper bundle consumer")

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

	resultsTopic := os.Getenv("KAFKA_RESULTS_TOPIC")
	if resultsTopic == "" {
		resultsTopic = "match-reports"
		log.Printf("KAFKA_RESULTS_TOPIC environment variable not set, using default: %s", resultsTopic)
	}

	abilityFile := os.Getenv("ABILITY_FILE")
	if abilityFile == "" {
		log.Fatal("ABILITY_FILE environment variable must point to an ability file (JSON or YAML)")
	}
	abilities, err := stixcore.LoadAbilityFile(abilityFile)
	if err != nil {
		log.Fatalf("Failed to load abilities from %s: %v", abilityFile, err)
	}
	log.Printf("Loaded %d abilities from %s", len(abilities), abilityFile)

	matcher := stixcore.NewMatcher(stixcore.NewStaticStore(abilities))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{kafkaBroker},
		Topic:       bundleTopic,
		GroupID:     "stixmapper-consumer-group",
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxAttempts: 10,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})
	defer reader.Close()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaBroker),
		Topic:        resultsTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consume(ctx, reader, writer, matcher)
}

// consume reads bundles from the bundle topic, matches them against the
// ability store, and publishes one report per bundle to the results topic.
// A bad message is logged and skipped; it never stops the loop.
func consume(ctx context.Context, reader *kafka.Reader, writer *kafka.Writer, matcher *stixcore.Matcher) {
	log.Printf("Consuming bundles from topic %s", reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Consumer stopped.")
			return
		default:
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					log.Println("Consumer stopped.")
					return
				}
				log.Printf("Error reading message: %v", err)
				continue
			}

			bundle, err := stixcore.DecodeBundle(m.Value)
			if err != nil {
				log.Printf("Skipping invalid bundle at offset %d: %v", m.Offset, err)
				continue
			}

			report, err := matcher.MatchBundle(ctx, bundle, stixcore.DefaultOptions())
			if err != nil {
				log.Printf("Failed to match bundle at offset %d: %v", m.Offset, err)
				continue
			}
			report.ID = uuid.NewString()

			data, err := json.Marshal(report)
			if err != nil {
				log.Printf("Failed to marshal report %s: %v", report.ID, err)
				continue
			}
			if err := writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(report.ID),
				Value: data,
			}); err != nil {
				log.Printf("Failed to publish report %s: %v", report.ID, err)
				continue
			}
			log.Printf("Published report %s (%d attack-patterns, %d abilities)",
				report.ID, report.Stats.AttackPatterns, report.Stats.AbilitiesTotal)
		}
	}
}
