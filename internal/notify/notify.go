package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Channel 是管理端实时通知使用的 Redis Pub/Sub 频道。
const Channel = "admin_notify"

// 事件类型。
const (
	EventDocumentSaved     = "document.saved"
	EventDocumentPublished = "document.published"
	EventPublishFailed     = "document.publish_failed"

	// EventDocumentCurrent 只在 WebSocket 建立时发送一次，告知当前版本号。
	EventDocumentCurrent = "document.current"
)

// Message 是通过 WebSocket 转发给编辑器的消息。
// 字段名与前端解析保持一致。
type Message struct {
	Event         string `json:"event"`
	Revision      int64  `json:"revision"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
	URL           string `json:"url,omitempty"`
}

// Publisher 把通知发布到 Redis。
type Publisher struct {
	client  redis.Cmdable
	channel string
}

// NewPublisher 构造 Publisher。
func NewPublisher(client redis.Cmdable) *Publisher {
	return &Publisher{client: client, channel: Channel}
}

// Publish 序列化并发布一条消息。
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notify message: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish notify message: %w", err)
	}
	return nil
}

// Subscription 是解码后的通知流。
type Subscription struct {
	pubsub *redis.PubSub
	ch     chan Message
	once   sync.Once
}

// Subscribe 订阅通知频道，返回前确认订阅已生效，之后发布的消息不会丢失。
// 无法解码的消息会被跳过。
func Subscribe(ctx context.Context, client *redis.Client) (*Subscription, error) {
	pubsub := client.Subscribe(ctx, Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	s := &Subscription{pubsub: pubsub, ch: make(chan Message, 16)}
	go func() {
		defer close(s.ch)
		for raw := range pubsub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil || msg.Event == "" {
				continue
			}
			select {
			case s.ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s, nil
}

// Messages 返回消息通道，订阅关闭后通道关闭。
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Close 取消订阅，可重复调用。
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.pubsub.Close() })
	return err
}
