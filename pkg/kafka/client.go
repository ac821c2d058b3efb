// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"

	"mentor-go/internal/config"
	"mentor-go/internal/model"
	"mentor-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// TraceIndexer 定义了能够持久化追踪事件的接口。
// 解耦 Kafka 消费者与具体的索引实现。
type TraceIndexer interface {
	Index(ctx context.Context, event model.TraceEvent) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceTrace 发送一个追踪事件到 Kafka。调用方自行决定是否忽略错误：
// 追踪链路绝不能阻塞聊天主流程。
func ProduceTrace(event model.TraceEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.TraceID),
			Value: eventBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者，把追踪事件写入索引。
func StartConsumer(cfg config.KafkaConfig, indexer TraceIndexer) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "mentor-go-trace-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var event model.TraceEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if err := indexer.Index(context.Background(), event); err != nil {
			// 追踪是尽力而为的：索引失败直接丢弃，不做重试
			log.Errorf("索引追踪事件失败: trace_id=%s, error: %v", event.TraceID, err)
		}
		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
