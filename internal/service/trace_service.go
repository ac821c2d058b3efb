// Package service 实现了应用的业务逻辑层。
package service

import (
	"context"
	"time"

	"mentor-go/internal/config"
	"mentor-go/internal/model"
	"mentor-go/pkg/es"
	"mentor-go/pkg/kafka"
	"mentor-go/pkg/log"
)

// TraceService 负责智能体轨迹事件的发布与查询。
// 发布走 Kafka 且完全异步，失败只记日志，绝不影响聊天主流程。
type TraceService interface {
	Record(traceID, requestID, agent, action string, details map[string]interface{})
	Recent(ctx context.Context, traceID string, limit int) ([]model.TraceEvent, error)
}

type traceService struct {
	indexName string
}

// NewTraceService 创建一个 TraceService 实例。
func NewTraceService() TraceService {
	return &traceService{indexName: config.Conf.Elasticsearch.IndexName}
}

func (s *traceService) Record(traceID, requestID, agent, action string, details map[string]interface{}) {
	event := model.TraceEvent{
		TraceID:   traceID,
		RequestID: requestID,
		Agent:     agent,
		Action:    action,
		Details:   details,
		Timestamp: time.Now(),
	}
	go func() {
		if err := kafka.ProduceTrace(event); err != nil {
			log.Warnf("发布追踪事件失败: trace_id=%s action=%s, error: %v", traceID, action, err)
		}
	}()
}

func (s *traceService) Recent(ctx context.Context, traceID string, limit int) ([]model.TraceEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return es.SearchRecent(ctx, s.indexName, traceID, limit)
}

// esTraceIndexer 把 Kafka 消费到的事件写入 Elasticsearch。
type esTraceIndexer struct {
	indexName string
}

// NewTraceIndexer 创建供 Kafka 消费者使用的索引器。
func NewTraceIndexer() kafka.TraceIndexer {
	return &esTraceIndexer{indexName: config.Conf.Elasticsearch.IndexName}
}

func (i *esTraceIndexer) Index(ctx context.Context, event model.TraceEvent) error {
	return es.IndexTrace(ctx, i.indexName, event)
}
