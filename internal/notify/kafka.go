package notify

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// kafka告警渠道。告警事件写入topic，供下游的值班机器人/工单系统消费

type KafkaChannel struct {
	writer *kafka.Writer
}

func NewKafkaChannel(brokerURL, topic string) *KafkaChannel {
	return &KafkaChannel{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokerURL),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (c *KafkaChannel) Name() string {
	return "kafka"
}

func (c *KafkaChannel) Deliver(ctx context.Context, alert Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	// category作为Key，同类告警进同一个partition，下游按序消费
	return c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.Category),
		Value: value,
	})
}

func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}
