package llm

import (
	"context"
	"math/rand"
	"time"

	"mentor-go/pkg/log"
)

// retryClient 是 Client 的装饰器，对限流与服务端瞬时错误做指数退避重试。
// 其他错误（客户端 4xx 等）立即失败，不重试。
type retryClient struct {
	inner     Client
	attempts  int
	baseDelay time.Duration
	sleep     func(time.Duration) // 可替换，便于测试
}

// WithRetry 使用给定的尝试上限与基础延迟包装一个 Client。
func WithRetry(inner Client, attempts int, baseDelay time.Duration) Client {
	if attempts < 1 {
		attempts = 1
	}
	return &retryClient{
		inner:     inner,
		attempts:  attempts,
		baseDelay: baseDelay,
		sleep:     time.Sleep,
	}
}

func (c *retryClient) Complete(ctx context.Context, prompt string) (string, error) {
	delay := c.baseDelay
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		text, err := c.inner.Complete(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !IsTransient(err) {
			// 永久性失败，立即交给上层的固定回退逻辑
			return "", err
		}
		if attempt == c.attempts {
			break
		}

		// 指数退避加随机抖动
		jitter := time.Duration(rand.Int63n(int64(time.Second)))
		if IsRateLimited(err) {
			log.Warnf("llm 请求被限流，%v 后重试 (attempt %d/%d)", delay, attempt, c.attempts)
		} else {
			log.Warnf("llm 瞬时错误: %v，%v 后重试 (attempt %d/%d)", err, delay, attempt, c.attempts)
		}
		c.sleep(delay + jitter)
		delay *= 2
	}

	return "", lastErr
}
