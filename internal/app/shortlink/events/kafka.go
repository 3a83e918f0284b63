package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// KafkaSink 把一批事件写到同一个 topic，key 用短码，
// 同一短码的事件落在同一分区里保持顺序。
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (k *KafkaSink) Write(ctx context.Context, batch []Event) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, e := range batch {
		data, err := json.Marshal(e)
		if err != nil {
			slog.Error("kafka event marshal failed", "code", e.Code, "err", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Code),
			Value: data,
			Time:  e.At,
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
