package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"siteCMS/internal/errcode"
	"siteCMS/internal/metrics"
	"siteCMS/internal/notify"
	"siteCMS/internal/render"
	"siteCMS/internal/store"
	"siteCMS/internal/tasks"
)

// 发布产物在对象存储中的位置。
const (
	PublishedIndexKey   = "published/home/index.html"
	PublishedPreviewKey = "published/home/preview.png"
	publishedRevisionFn = "published/home/revisions/%d.html"
)

// PublishedRevisionKey 返回某个版本的快照对象键。
func PublishedRevisionKey(revision int64) string {
	return fmt.Sprintf(publishedRevisionFn, revision)
}

// ObjectUploader 是发布任务需要的对象存储能力。
type ObjectUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType, cacheControl string) (*minio.UploadInfo, error)
}

// Notifier 把发布结果推送给管理端。
type Notifier interface {
	Publish(ctx context.Context, msg notify.Message) error
}

// Screenshotter 把 HTML 渲染成 PNG。
type Screenshotter interface {
	Capture(ctx context.Context, html []byte) ([]byte, error)
}

// PublishTaskHandler 负责消费首页发布任务：渲染当前文档并上传快照。
type PublishTaskHandler struct {
	repo     store.Repository
	renderer *render.Renderer
	storage  ObjectUploader
	notifier Notifier
	preview  Screenshotter
	logger   *slog.Logger
}

// NewPublishTaskHandler 创建任务处理器。preview 为 nil 时不生成预览图。
func NewPublishTaskHandler(
	repo store.Repository,
	renderer *render.Renderer,
	storage ObjectUploader,
	notifier Notifier,
	preview Screenshotter,
	logger *slog.Logger,
) *PublishTaskHandler {
	return &PublishTaskHandler{
		repo:     repo,
		renderer: renderer,
		storage:  storage,
		notifier: notifier,
		preview:  preview,
		logger:   logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *PublishTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	payload, err := tasks.ParseSectionsPublishPayload(t.Payload())
	if err != nil {
		log.Error("invalid task payload", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Int64("revision", payload.Revision),
	)
	log.Info("publishing homepage snapshot")

	failCode := errcode.SystemError
	defer func() {
		if retErr == nil {
			return
		}
		metrics.ObservePublish("error")
		if !isFinalAsynqAttempt(ctx) {
			return
		}
		msg := notify.Message{
			Event:         notify.EventPublishFailed,
			Revision:      payload.Revision,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     failCode,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.notifier.Publish(ctx, msg); err != nil {
			log.Error("publish failure notification failed", slog.Any("error", err))
		}
	}()

	rec, err := h.repo.Load(ctx)
	if err != nil {
		log.Error("load section document failed", slog.Any("error", err))
		failCode = errcode.DocumentUnavailable
		return err
	}
	switch {
	case payload.Revision < rec.Revision:
		// 之后的保存会各自入队，旧版本无需再发布。
		log.Info("stale publish task, skipping", slog.Int64("current_revision", rec.Revision))
		metrics.ObservePublish("skipped")
		return nil
	case payload.Revision > rec.Revision:
		failCode = errcode.DocumentUnavailable
		return fmt.Errorf("revision %d not visible yet (stored %d)", payload.Revision, rec.Revision)
	}

	var page bytes.Buffer
	if err := h.renderer.Page(&page, rec.Document, ""); err != nil {
		log.Error("render homepage failed", slog.Any("error", err))
		failCode = errcode.RenderFailed
		return err
	}
	html := page.Bytes()

	failCode = errcode.StorageUnavailable
	if err := h.upload(ctx, PublishedRevisionKey(rec.Revision), html, "text/html; charset=utf-8", "public, max-age=31536000, immutable"); err != nil {
		return err
	}
	if err := h.upload(ctx, PublishedIndexKey, html, "text/html; charset=utf-8", "no-cache"); err != nil {
		return err
	}
	failCode = errcode.SystemError

	msg := notify.Message{
		Event:         notify.EventDocumentPublished,
		Revision:      rec.Revision,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
		URL:           PublishedIndexKey,
	}
	if h.preview != nil {
		if err := h.capturePreview(ctx, html); err != nil {
			log.Warn("capture homepage preview failed", slog.Any("error", err))
			msg.ErrorCode = errcode.PreviewUnavailable
			msg.ErrorMessage = "预览图生成失败，页面已发布"
		}
	}

	if err := h.notifier.Publish(ctx, msg); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	metrics.ObservePublish("ok")
	log.Info("homepage snapshot published", slog.Int("bytes", len(html)))
	return nil
}

func (h *PublishTaskHandler) upload(ctx context.Context, key string, data []byte, contentType, cacheControl string) error {
	if _, err := h.storage.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), contentType, cacheControl); err != nil {
		h.logger.Error("upload published object failed", slog.String("key", key), slog.Any("error", err))
		return err
	}
	return nil
}

func (h *PublishTaskHandler) capturePreview(ctx context.Context, html []byte) error {
	png, err := h.preview.Capture(ctx, html)
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	return h.upload(ctx, PublishedPreviewKey, png, "image/png", "no-cache")
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
