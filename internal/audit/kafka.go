package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink exports audit records to a Kafka topic for off-host retention.
// Writes are asynchronous so a slow broker cannot stall the router.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink producing to topic on the given brokers
// (comma-separated).
func NewKafkaSink(brokers, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

func (k *KafkaSink) Record(ctx context.Context, rec *Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s:%s", rec.UserID, rec.TraceID)),
		Value: value,
		Time:  rec.Timestamp,
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return k.writer.WriteMessages(writeCtx, msg)
}

// Close flushes and closes the underlying writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
