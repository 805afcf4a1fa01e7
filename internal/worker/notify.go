package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 通知中的任务类型。
const (
	NotifyKindExport  = "export"
	NotifyKindSummary = "summary"
)

// TaskNotifyMessage 是通过 Redis Pub/Sub 转发给前端的统一消息。
// 注意：这里的字段名与前端解析保持一致。
type TaskNotifyMessage struct {
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	ResumeID      uint   `json:"resume_id"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Notifier 把任务结果推送给指定用户。
type Notifier interface {
	Notify(ctx context.Context, userID uint, msg TaskNotifyMessage) error
}

// NotifyChannel 返回用户的通知频道名。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// RedisNotifier 通过 Redis 频道发布通知，由 WebSocket 连接订阅转发。
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Notify(ctx context.Context, userID uint, msg TaskNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(userID)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
