package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"siteCMS/internal/api/middleware"
	"siteCMS/internal/auth"
	"siteCMS/internal/config"
	"siteCMS/internal/database"
	"siteCMS/internal/notify"
	"siteCMS/internal/ratelimit"
	"siteCMS/internal/render"
	"siteCMS/internal/storage"
	"siteCMS/internal/store"
)

const testPassword = "correct horse"

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *fakeNotifier) Publish(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

type storedObject struct {
	data        []byte
	contentType string
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]storedObject
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string]storedObject{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, contentType, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = storedObject{data: b, contentType: contentType}
	return &minio.UploadInfo{Key: objectName, Size: int64(len(b))}, nil
}

func (s *fakeStorage) GetObject(_ context.Context, objectKey string) (io.ReadCloser, storage.ObjectMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectKey]
	if !ok {
		return nil, storage.ObjectMeta{}, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), storage.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
	}, nil
}

func (s *fakeStorage) ListObjects(_ context.Context, prefix string, limit int) ([]storage.ObjectMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ObjectMeta
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) && len(out) < limit {
			out = append(out, storage.ObjectMeta{Key: key, Size: int64(len(obj.data)), LastModified: time.Now()})
		}
	}
	return out, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	delete(s.objects, objectKey)
	return nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

type testServer struct {
	router   *gin.Engine
	repo     store.Repository
	enqueuer *fakeEnqueuer
	notifier *fakeNotifier
	storage  *fakeStorage
	auth     *auth.AdminAuth
	redis    *miniredis.Miniredis
	rdb      *redis.Client
}

type serverOption func(*config.Config)

func withoutPassword() serverOption {
	return func(cfg *config.Config) { cfg.Admin.Password = "" }
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Admin: config.AdminConfig{
			Password:      testPassword,
			JWTSecret:     "test-secret",
			TokenTTLHours: 3,
		},
		RateLimit: config.RateLimitConfig{Window: 15 * time.Minute, MaxAttempts: 5, Block: 30 * time.Minute},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	adminAuth, err := auth.NewAdminAuth(cfg.Admin)
	if err != nil {
		t.Fatalf("new admin auth: %v", err)
	}

	ts := &testServer{
		repo:     store.NewGormStore(newTestDB(t)),
		enqueuer: &fakeEnqueuer{},
		notifier: &fakeNotifier{},
		storage:  newFakeStorage(),
		auth:     adminAuth,
		redis:    mr,
		rdb:      redisClient,
	}

	router := NewRouter(cfg, logger)
	RegisterRoutes(router, adminAuth, Handlers{
		Auth:     NewAuthHandler(adminAuth, ratelimit.New(redisClient, cfg.RateLimit), logger, false),
		Sections: NewSectionsHandler(ts.repo, render.MustNew(), ts.enqueuer, ts.notifier, ts.storage, 5*time.Second, logger),
		Uploads:  NewUploadHandler(ts.storage, nil, 1<<20, logger),
		Ws:       NewWsHandler(redisClient, ts.repo, logger, nil),
	})
	ts.router = router
	return ts
}

func (ts *testServer) token(t *testing.T) string {
	t.Helper()
	token, err := ts.auth.IssueToken()
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) adminRequest(t *testing.T, method, target string, body io.Reader) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.AddCookie(&http.Cookie{Name: middleware.AdminTokenCookie, Value: ts.token(t)})
	return req
}
