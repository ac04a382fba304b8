package logkafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	logWriter   *kafka.Writer
	eventWriter *kafka.Writer
)

// InitWriters sets up the async producers for the request-log topic and the
// order-events topic. Without InitWriters (tests, local runs with no broker)
// publishing is a no-op.
func InitWriters(brokers []string, logTopic, eventTopic string) {
	logWriter = kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    logTopic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
	})
	eventWriter = kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    eventTopic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
	})
}

// CloseWriters flushes and closes both producers.
func CloseWriters() error {
	var first error
	for _, w := range []*kafka.Writer{logWriter, eventWriter} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func writeLog(ctx context.Context, msg []byte) error {
	if logWriter == nil {
		return nil
	}
	return logWriter.WriteMessages(ctx, kafka.Message{Value: msg, Time: time.Now()})
}

func writeEvent(ctx context.Context, key string, msg []byte) error {
	if eventWriter == nil {
		return nil
	}
	return eventWriter.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: msg, Time: time.Now()})
}
