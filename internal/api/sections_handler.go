package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"siteCMS/internal/api/middleware"
	"siteCMS/internal/metrics"
	"siteCMS/internal/notify"
	"siteCMS/internal/render"
	"siteCMS/internal/sections"
	"siteCMS/internal/store"
	"siteCMS/internal/tasks"
	"siteCMS/internal/worker"
)

// maxDocumentBytes 限制单次保存的请求体大小。
const maxDocumentBytes = 5 << 20

const invalidPayloadMessage = "Invalid payload: expected { sections: [] }"

// TaskEnqueuer 是保存后投递发布任务所需的能力，*asynq.Client 满足该接口。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier 把保存事件推送给其他打开的编辑器。
type Notifier interface {
	Publish(ctx context.Context, msg notify.Message) error
}

// Presigner 为发布出的快照生成临时链接。
type Presigner interface {
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// SectionsHandler 处理首页区块文档的读取、保存与渲染。
type SectionsHandler struct {
	repo          store.Repository
	renderer      *render.Renderer
	enqueuer      TaskEnqueuer
	notifier      Notifier
	presigner     Presigner
	publishUnique time.Duration
	logger        *slog.Logger
}

// NewSectionsHandler 构造 SectionsHandler。enqueuer、notifier、presigner 可以为 nil，对应功能随之关闭。
func NewSectionsHandler(
	repo store.Repository,
	renderer *render.Renderer,
	enqueuer TaskEnqueuer,
	notifier Notifier,
	presigner Presigner,
	publishUnique time.Duration,
	logger *slog.Logger,
) *SectionsHandler {
	return &SectionsHandler{
		repo:          repo,
		renderer:      renderer,
		enqueuer:      enqueuer,
		notifier:      notifier,
		presigner:     presigner,
		publishUnique: publishUnique,
		logger:        logger,
	}
}

// GetSections 返回规范序列化后的文档，ETag 为当前版本号。
func (h *SectionsHandler) GetSections(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	c.Header("ETag", revisionETag(rec.Revision))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/json; charset=utf-8", rec.Raw)
}

// GetPublicSections 是首页使用的只读接口。
func (h *SectionsHandler) GetPublicSections(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	etag := revisionETag(rec.Revision)
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "application/json; charset=utf-8", rec.Raw)
}

// PutSections 整体替换文档。带 If-Match 时进行版本检查，否则最后写入为准。
func (h *SectionsHandler) PutSections(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			PayloadTooLarge(c, "Payload too large")
			return
		}
		BadRequest(c, invalidPayloadMessage)
		return
	}

	doc, err := sections.Decode(body)
	if err != nil {
		metrics.ObserveDocumentSave(metrics.SaveResultInvalid, 0)
		logger.Info("reject section document", slog.Any("error", err))
		if errors.Is(err, sections.ErrMissingSections) {
			BadRequest(c, invalidPayloadMessage)
			return
		}
		BadRequest(c, "Invalid payload: "+err.Error())
		return
	}

	expected, err := parseIfMatch(c.GetHeader("If-Match"))
	if err != nil {
		BadRequest(c, "Invalid If-Match header")
		return
	}

	rec, err := h.repo.Save(ctx, doc, expected)
	if err != nil {
		if errors.Is(err, store.ErrRevisionConflict) {
			metrics.ObserveDocumentSave(metrics.SaveResultConflict, 0)
			current, loadErr := h.repo.Load(ctx)
			if loadErr == nil {
				c.Header("ETag", revisionETag(current.Revision))
			}
			logger.Info("section document conflict", slog.Any("expected", expected))
			ErrorWith(c, http.StatusConflict, "Document was modified by another session", gin.H{
				"revision": current.Revision,
			})
			return
		}
		metrics.ObserveDocumentSave(metrics.SaveResultError, 0)
		logger.Error("save section document failed", slog.Any("error", err))
		Internal(c, "Failed to save sections")
		return
	}
	metrics.ObserveDocumentSave(metrics.SaveResultOK, rec.Revision)
	logger.Info("section document saved",
		slog.Int64("revision", rec.Revision),
		slog.Int("sections", len(rec.Document.Sections)),
	)

	correlationID := middleware.GetCorrelationID(c)
	h.enqueuePublish(ctx, logger, rec.Revision, correlationID)
	h.publishNotify(ctx, logger, notify.Message{
		Event:         notify.EventDocumentSaved,
		Revision:      rec.Revision,
		CorrelationID: correlationID,
	})

	resp := gin.H{"ok": true, "revision": rec.Revision}
	if warnings := rec.Document.Validate(); len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	c.Header("ETag", revisionETag(rec.Revision))
	c.JSON(http.StatusOK, resp)
}

// Homepage 渲染公开首页。
func (h *SectionsHandler) Homepage(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.renderer.Page(&buf, rec.Document, ""); err != nil {
		middleware.LoggerFromContext(c).Error("render homepage failed", slog.Any("error", err))
		Internal(c, "Failed to render page")
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// Preview 渲染编辑器预览片段。
func (h *SectionsHandler) Preview(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.renderer.Preview(&buf, rec.Document); err != nil {
		middleware.LoggerFromContext(c).Error("render preview failed", slog.Any("error", err))
		Internal(c, "Failed to render preview")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// GetPublished 返回最近一次发布的快照与预览图的临时链接。
func (h *SectionsHandler) GetPublished(c *gin.Context) {
	if h.presigner == nil {
		NotFound(c, "Publishing is disabled")
		return
	}
	const ttl = 15 * time.Minute
	ctx := c.Request.Context()
	pageURL, err := h.presigner.GeneratePresignedURL(ctx, worker.PublishedIndexKey, ttl)
	if err != nil {
		middleware.LoggerFromContext(c).Error("presign published page failed", slog.Any("error", err))
		Internal(c, "Failed to generate url")
		return
	}
	previewURL, err := h.presigner.GeneratePresignedURL(ctx, worker.PublishedPreviewKey, ttl)
	if err != nil {
		previewURL = ""
	}
	c.JSON(http.StatusOK, gin.H{"pageUrl": pageURL, "previewUrl": previewURL})
}

func (h *SectionsHandler) load(c *gin.Context) (store.Record, bool) {
	rec, err := h.repo.Load(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Error("load section document failed", slog.Any("error", err))
		Internal(c, "Failed to load sections")
		return store.Record{}, false
	}
	return rec, true
}

func (h *SectionsHandler) enqueuePublish(ctx context.Context, logger *slog.Logger, revision int64, correlationID string) {
	if h.enqueuer == nil {
		return
	}
	task, err := tasks.NewSectionsPublishTask(revision, correlationID, h.publishUnique)
	if err != nil {
		logger.Error("build publish task failed", slog.Any("error", err))
		return
	}
	if _, err := h.enqueuer.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return
		}
		logger.Warn("enqueue publish task failed", slog.Any("error", err))
	}
}

func (h *SectionsHandler) publishNotify(ctx context.Context, logger *slog.Logger, msg notify.Message) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Publish(ctx, msg); err != nil {
		logger.Warn("publish save notification failed", slog.Any("error", err))
	}
}

func revisionETag(revision int64) string {
	return strconv.Quote(strconv.FormatInt(revision, 10))
}

// parseIfMatch 解析 "N" 或 W/"N"；空头返回 nil。
func parseIfMatch(header string) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil, nil
	}
	header = strings.TrimPrefix(header, "W/")
	unquoted, err := strconv.Unquote(header)
	if err != nil {
		unquoted = header
	}
	rev, err := strconv.ParseInt(unquoted, 10, 64)
	if err != nil || rev < 0 {
		return nil, errors.New("invalid revision")
	}
	return &rev, nil
}
