package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"siteCMS/internal/api/middleware"
	"siteCMS/internal/storage"
)

// ErrMaliciousFile 表示病毒扫描未通过。
var ErrMaliciousFile = errors.New("malicious file detected")

// MediaStorage 是上传与媒体代理需要的对象存储能力。
type MediaStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType, cacheControl string) (*minio.UploadInfo, error)
	GetObject(ctx context.Context, objectKey string) (io.ReadCloser, storage.ObjectMeta, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// Scanner 在上传前检查文件内容。
type Scanner interface {
	Scan(r io.Reader) error
}

// ClamdScanner 通过 clamd 扫描文件。
type ClamdScanner struct {
	Addr string
}

// Scan 实现 Scanner。
func (s ClamdScanner) Scan(r io.Reader) error {
	client := clamd.NewClamd(s.Addr)
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := client.ScanStream(r, abortChan)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return fmt.Errorf("%w: %s", ErrMaliciousFile, result.Description)
		}
	}
	return nil
}

// UploadHandler 负责图片/视频元素使用的媒体上传与读取。
type UploadHandler struct {
	storage  MediaStorage
	scanner  Scanner
	maxBytes int64
	logger   *slog.Logger
}

// NewUploadHandler 返回 UploadHandler 实例。scanner 为 nil 时跳过病毒扫描。
func NewUploadHandler(storageClient MediaStorage, scanner Scanner, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		storage:  storageClient,
		scanner:  scanner,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Upload 接收 multipart 的 file 字段，嗅探类型后写入对象存储。
func (h *UploadHandler) Upload(c *gin.Context) {
	logger := middleware.LoggerFromContext(c)

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 {
		BadRequest(c, "empty file")
		return
	}
	if file.Size > h.maxBytes {
		PayloadTooLarge(c, "file too large")
		return
	}

	contentType, err := sniffContentType(file)
	if err != nil {
		logger.Error("read upload header", slog.Any("error", err))
		Internal(c, "failed to read file")
		return
	}
	ext, ok := allowedMediaTypes[contentType]
	if !ok {
		UnsupportedMedia(c, "unsupported file type")
		return
	}

	if h.scanner != nil {
		if err := h.scan(file); err != nil {
			if errors.Is(err, ErrMaliciousFile) {
				logger.Warn("upload rejected by scanner", slog.Any("error", err))
				BadRequest(c, "malicious file detected")
				return
			}
			logger.Error("scan file", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer reader.Close()

	kind := mediaKind(contentType)
	objectKey := fmt.Sprintf("%s%s/%s%s", uploadsPrefix, kind, uuid.NewString(), ext)
	if _, err := h.storage.UploadFile(c.Request.Context(), objectKey, reader, file.Size, contentType, "public, max-age=31536000, immutable"); err != nil {
		logger.Error("upload file", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	logger.Info("media uploaded", slog.String("object_key", objectKey), slog.Int64("size", file.Size))
	c.JSON(http.StatusCreated, gin.H{
		"url":         mediaURL(objectKey),
		"objectKey":   objectKey,
		"contentType": contentType,
		"size":        file.Size,
	})
}

// List 列出已上传的媒体，最新的在前。
func (h *UploadHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "60"))
	if err != nil || limit <= 0 {
		limit = 60
	}
	if limit > 200 {
		limit = 200
	}

	prefix := uploadsPrefix
	switch kind := c.Query("kind"); kind {
	case "":
	case "image", "video":
		prefix += kind + "/"
	default:
		BadRequest(c, "invalid kind")
		return
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), prefix, limit)
	if err != nil {
		middleware.LoggerFromContext(c).Error("list uploads", slog.Any("error", err))
		Internal(c, "failed to list uploads")
		return
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		items = append(items, gin.H{
			"objectKey":    obj.Key,
			"url":          mediaURL(obj.Key),
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Delete 删除一个上传的媒体对象。
func (h *UploadHandler) Delete(c *gin.Context) {
	key := c.Query("key")
	if !isValidMediaObjectKey(key) {
		BadRequest(c, "invalid key")
		return
	}
	if err := h.storage.DeleteObject(c.Request.Context(), key); err != nil {
		middleware.LoggerFromContext(c).Error("delete upload", slog.String("object_key", key), slog.Any("error", err))
		Internal(c, "failed to delete file")
		return
	}
	c.Status(http.StatusNoContent)
}

// Media 代理读取上传的媒体，供页面中的 img/video 使用。
func (h *UploadHandler) Media(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !isValidMediaObjectKey(key) {
		NotFound(c, "not found")
		return
	}

	body, meta, err := h.storage.GetObject(c.Request.Context(), key)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			NotFound(c, "not found")
			return
		}
		middleware.LoggerFromContext(c).Error("get media object", slog.String("object_key", key), slog.Any("error", err))
		Internal(c, "failed to read file")
		return
	}
	defer body.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, meta.Size, contentType, body, map[string]string{
		"Cache-Control":          "public, max-age=31536000, immutable",
		"X-Content-Type-Options": "nosniff",
	})
}

func (h *UploadHandler) scan(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer reader.Close()
	return h.scanner.Scan(reader)
}

func sniffContentType(file *multipart.FileHeader) (string, error) {
	reader, err := file.Open()
	if err != nil {
		return "", err
	}
	defer reader.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	contentType, _, _ := strings.Cut(http.DetectContentType(head[:n]), ";")
	return strings.TrimSpace(contentType), nil
}

func mediaURL(objectKey string) string {
	return "/media/" + objectKey
}
