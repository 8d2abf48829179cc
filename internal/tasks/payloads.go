package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TypeSectionsPublish 渲染并上传首页快照。
	TypeSectionsPublish = "sections:publish"

	// QueuePublish 是发布任务使用的队列，worker 只监听这一个队列。
	QueuePublish = "publish"
)

// SectionsPublishPayload 只携带版本号；worker 从存储读取文档，保证发布的是已落盘的内容。
type SectionsPublishPayload struct {
	Revision      int64  `json:"revision"`
	CorrelationID string `json:"correlation_id"`
}

// NewSectionsPublishTask 构造发布任务。unique 大于 0 时，同一版本在窗口内重复入队会返回 asynq.ErrDuplicateTask。
func NewSectionsPublishTask(revision int64, correlationID string, unique time.Duration) (*asynq.Task, error) {
	if revision <= 0 {
		return nil, fmt.Errorf("publish task: invalid revision %d", revision)
	}
	payload, err := json.Marshal(SectionsPublishPayload{
		Revision:      revision,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(QueuePublish),
		asynq.MaxRetry(5),
		asynq.Timeout(2 * time.Minute),
	}
	if unique > 0 {
		opts = append(opts, asynq.Unique(unique))
	}
	return asynq.NewTask(TypeSectionsPublish, payload, opts...), nil
}

// ParseSectionsPublishPayload 解析任务负载。
func ParseSectionsPublishPayload(data []byte) (SectionsPublishPayload, error) {
	var payload SectionsPublishPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return SectionsPublishPayload{}, fmt.Errorf("decode publish payload: %w", err)
	}
	if payload.Revision <= 0 {
		return SectionsPublishPayload{}, errors.New("decode publish payload: missing revision")
	}
	return payload, nil
}
