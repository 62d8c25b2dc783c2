package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes notifications to a broker topic, keyed by gift
// id so notices about one gift stay ordered. Delivery failures are
// logged and dropped.
type KafkaSink struct {
	writer *kafka.Writer
	log    *slog.Logger
}

func NewKafkaSink(brokers []string, topic string, log *slog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		log: log,
	}
}

func (s *KafkaSink) Publish(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("notify_marshal_failed", "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.GiftID, 10)),
		Value: data,
	})
	if err != nil {
		s.log.Warn("notify_publish_failed", "error", err, "summary", msg.Summary)
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
