// Package model 包含了应用的数据模型定义。
package model

import "time"

// TraceEvent 是一条智能体轨迹事件，经 Kafka 投递后写入 Elasticsearch。
// 只追加，不修改。
type TraceEvent struct {
	TraceID   string                 `json:"trace_id"`
	RequestID string                 `json:"request_id"`
	Agent     string                 `json:"agent"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
