package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"time"

	"campus_delivery/goapi/middleware/logkafka"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/segmentio/kafka-go"
)

// RunOrderEventPusher consumes the order-events topic and bulk-indexes the
// lifecycle records into Elasticsearch for audit. It blocks until ctx is
// cancelled; run it in its own goroutine behind ENABLE_EVENT_PUSHER.
func RunOrderEventPusher(ctx context.Context, brokers []string, topic, index string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: "order-event-indexer",
	})
	defer reader.Close()

	es, err := elasticsearch.NewDefaultClient()
	if err != nil {
		log.Printf("order event pusher: elasticsearch client: %v", err)
		return
	}

	log.Printf("order event pusher running: %s -> %s", topic, index)

	const batchSize = 100
	const batchTimeout = 5 * time.Second

	batch := make([]logkafka.OrderEvent, 0, batchSize)
	timer := time.NewTimer(batchTimeout)
	defer timer.Stop()

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		var buf bytes.Buffer
		for _, event := range batch {
			docBytes, err := json.Marshal(event)
			if err != nil {
				log.Printf("order event pusher: marshal: %v", err)
				continue
			}
			buf.WriteString("{\"index\":{}}\n")
			buf.Write(docBytes)
			buf.WriteString("\n")
		}
		res, err := es.Bulk(bytes.NewReader(buf.Bytes()), es.Bulk.WithIndex(index))
		if err != nil {
			log.Printf("order event pusher: bulk index: %v", err)
		} else {
			res.Body.Close()
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flushBatch()
			return
		case <-timer.C:
			flushBatch()
			timer.Reset(batchTimeout)
		default:
			readCtx, cancel := context.WithTimeout(ctx, time.Second)
			m, err := reader.ReadMessage(readCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					flushBatch()
					return
				}
				continue
			}

			var event logkafka.OrderEvent
			if err := json.Unmarshal(m.Value, &event); err != nil {
				log.Printf("order event pusher: decode: %v", err)
				continue
			}
			if event.Timestamp.IsZero() {
				event.Timestamp = time.Now().UTC()
			}

			batch = append(batch, event)
			if len(batch) >= batchSize {
				flushBatch()
				timer.Reset(batchTimeout)
			}
		}
	}
}
