package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alexxvives/JetChance-sub001/internal/config"
)

const headerEventType = "event-type"

// Producer は予約イベントを Kafka に送信する
// 同じフライトのイベントは同じパーティションに入るようキーでハッシュ分散する
type Producer struct {
	writer *kafka.Writer
}

// NewProducer は同期送信の Producer を作成する
func NewProducer(cfg *config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: w}
}

// Publish はメッセージを1件送信する
func (p *Producer) Publish(ctx context.Context, key, eventType string, value []byte) error {
	if err := p.writer.WriteMessages(ctx, newMessage(key, eventType, value)); err != nil {
		return fmt.Errorf("Kafka への送信に失敗: %w", err)
	}
	return nil
}

// Topic は送信先トピック名を返す
func (p *Producer) Topic() string {
	return p.writer.Topic
}

// Close は未送信のメッセージを書き出して接続を閉じる
func (p *Producer) Close() error {
	return p.writer.Close()
}

func newMessage(key, eventType string, value []byte) kafka.Message {
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
		},
		Time: time.Now().UTC(),
	}
}
