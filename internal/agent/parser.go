// Package agent 实现了围绕推理客户端的三个智能体：
// 规划器（引导策略）、执行器（回复与路线图生成）、评估器（交互评估与反馈分析）。
package agent

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedOutput 表示模型输出无法解析为期望的 JSON 结构。
var ErrMalformedOutput = errors.New("malformed model output")

// stripCodeFence 去掉模型输出外层的 Markdown 代码围栏。
// 模型经常把 JSON 包在 ```json ... ``` 里，这里做一次宽松清理。
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// decodeJSON 清理围栏后解析 JSON；失败时尝试截取首个 '{' 到
// 末个 '}' 之间的片段再解析一次，仍失败返回 ErrMalformedOutput。
func decodeJSON(raw string, v interface{}) error {
	s := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(s[start:end+1]), v); err == nil {
			return nil
		}
	}
	return ErrMalformedOutput
}
