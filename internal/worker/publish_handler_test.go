package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteCMS/internal/errcode"
	"siteCMS/internal/notify"
	"siteCMS/internal/render"
	"siteCMS/internal/sections"
	"siteCMS/internal/store"
	"siteCMS/internal/tasks"
)

type fakeRepo struct {
	rec store.Record
	err error
}

func (r *fakeRepo) Load(context.Context) (store.Record, error) { return r.rec, r.err }

func (r *fakeRepo) Save(context.Context, sections.Document, *int64) (store.Record, error) {
	return store.Record{}, errors.New("not used")
}

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	headers  map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}, headers: map[string]string{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, contentType, cacheControl string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[objectName] = b
	s.headers[objectName] = contentType + "|" + cacheControl
	return &minio.UploadInfo{Key: objectName}, nil
}

type fakeNotifier struct {
	messages []notify.Message
}

func (n *fakeNotifier) Publish(_ context.Context, msg notify.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

type fakeScreenshotter struct {
	err error
}

func (s fakeScreenshotter) Capture(context.Context, []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("\x89PNG"), nil
}

func publishTask(t *testing.T, revision int64) *asynq.Task {
	t.Helper()
	task, err := tasks.NewSectionsPublishTask(revision, "cid-1", 0)
	require.NoError(t, err)
	return task
}

func storedRecord(t *testing.T, revision int64) store.Record {
	t.Helper()
	doc, err := sections.New().AddSection(sections.SectionHero).AddElement(0, sections.ElementHeading)
	require.NoError(t, err)
	raw, err := sections.Marshal(doc)
	require.NoError(t, err)
	return store.Record{Document: doc, Raw: raw, Revision: revision}
}

func newTestHandler(repo store.Repository, st *fakeStorage, n *fakeNotifier, preview Screenshotter) *PublishTaskHandler {
	return NewPublishTaskHandler(repo, render.MustNew(), st, n, preview, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishTaskHandler_PublishesCurrentRevision(t *testing.T) {
	st := newFakeStorage()
	n := &fakeNotifier{}
	h := newTestHandler(&fakeRepo{rec: storedRecord(t, 3)}, st, n, nil)

	require.NoError(t, h.ProcessTask(context.Background(), publishTask(t, 3)))

	index := string(st.uploaded[PublishedIndexKey])
	assert.Contains(t, index, "Homepage Canvas")
	assert.Contains(t, index, "Heading")
	assert.Equal(t, index, string(st.uploaded[PublishedRevisionKey(3)]))
	assert.Equal(t, "text/html; charset=utf-8|no-cache", st.headers[PublishedIndexKey])
	assert.NotContains(t, st.uploaded, PublishedPreviewKey)

	require.Len(t, n.messages, 1)
	assert.Equal(t, notify.Message{
		Event:         notify.EventDocumentPublished,
		Revision:      3,
		CorrelationID: "cid-1",
		ErrorCode:     errcode.OK,
		URL:           PublishedIndexKey,
	}, n.messages[0])
}

func TestPublishTaskHandler_SkipsStaleTask(t *testing.T) {
	st := newFakeStorage()
	n := &fakeNotifier{}
	h := newTestHandler(&fakeRepo{rec: storedRecord(t, 5)}, st, n, nil)

	require.NoError(t, h.ProcessTask(context.Background(), publishTask(t, 4)))
	assert.Empty(t, st.uploaded)
	assert.Empty(t, n.messages)
}

func TestPublishTaskHandler_RetriesWhenRevisionNotVisible(t *testing.T) {
	st := newFakeStorage()
	h := newTestHandler(&fakeRepo{rec: storedRecord(t, 1)}, st, &fakeNotifier{}, nil)

	err := h.ProcessTask(context.Background(), publishTask(t, 2))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Empty(t, st.uploaded)
}

func TestPublishTaskHandler_BadPayloadSkipsRetry(t *testing.T) {
	h := newTestHandler(&fakeRepo{}, newFakeStorage(), &fakeNotifier{}, nil)
	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeSectionsPublish, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPublishTaskHandler_Preview(t *testing.T) {
	t.Run("captured", func(t *testing.T) {
		st := newFakeStorage()
		n := &fakeNotifier{}
		h := newTestHandler(&fakeRepo{rec: storedRecord(t, 1)}, st, n, fakeScreenshotter{})

		require.NoError(t, h.ProcessTask(context.Background(), publishTask(t, 1)))
		assert.Equal(t, "\x89PNG", string(st.uploaded[PublishedPreviewKey]))
		require.Len(t, n.messages, 1)
		assert.Equal(t, errcode.OK, n.messages[0].ErrorCode)
	})

	t.Run("failure still publishes", func(t *testing.T) {
		st := newFakeStorage()
		n := &fakeNotifier{}
		h := newTestHandler(&fakeRepo{rec: storedRecord(t, 1)}, st, n, fakeScreenshotter{err: errors.New("no chromium")})

		require.NoError(t, h.ProcessTask(context.Background(), publishTask(t, 1)))
		assert.Contains(t, st.uploaded, PublishedIndexKey)
		assert.NotContains(t, st.uploaded, PublishedPreviewKey)
		require.Len(t, n.messages, 1)
		assert.Equal(t, errcode.PreviewUnavailable, n.messages[0].ErrorCode)
	})
}

func TestPublishTaskHandler_LoadError(t *testing.T) {
	h := newTestHandler(&fakeRepo{err: errors.New("db down")}, newFakeStorage(), &fakeNotifier{}, nil)
	err := h.ProcessTask(context.Background(), publishTask(t, 1))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "db down"))
}

func TestNewSectionsPublishTask_Payload(t *testing.T) {
	task := publishTask(t, 9)
	assert.Equal(t, tasks.TypeSectionsPublish, task.Type())

	var payload tasks.SectionsPublishPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, tasks.SectionsPublishPayload{Revision: 9, CorrelationID: "cid-1"}, payload)
}
