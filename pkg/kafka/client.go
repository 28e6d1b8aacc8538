// Package kafka 提供了向 Kafka 发布迁移生命周期事件的功能。
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"s3shift-go/internal/config"
	"s3shift-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// 迁移生命周期事件类型。
const (
	EventRunStarted     = "run_started"
	EventBlockCommitted = "block_committed"
	EventRunCompleted   = "run_completed"
	EventRunAborted     = "run_aborted"
)

// MigrationEvent 是发布到 Kafka 的迁移事件，供外部审计消费者使用。
type MigrationEvent struct {
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Migrated  int64     `json:"migrated"`
	Failed    int64     `json:"failed"`
	Bytes     int64     `json:"bytes"`
	Timestamp time.Time `json:"timestamp"`
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。Brokers 为空时跳过，事件发布成为空操作。
func InitProducer(cfg config.KafkaConfig) {
	if cfg.Brokers == "" {
		log.Info("未配置 Kafka，迁移事件发布已禁用")
		return
	}
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceMigrationEvent 发送一条迁移事件。事件是旁路审计数据，
// 发送失败只记日志，不影响迁移本身。
func ProduceMigrationEvent(event MigrationEvent) {
	if producer == nil {
		return
	}
	event.Timestamp = time.Now()

	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Errorf("序列化迁移事件失败: %v", err)
		return
	}

	err = producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.RunID),
			Value: eventBytes,
		},
	)
	if err != nil {
		log.Errorf("发送迁移事件失败: type=%s, runId=%s, error: %v", event.Type, event.RunID, err)
	}
}
