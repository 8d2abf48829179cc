package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"siteCMS/internal/sections"
)

type fakeBackend struct {
	mu    sync.Mutex
	doc   sections.Document
	saved []sections.Document
	fail  error
	calls chan sections.Document
}

func newFakeBackend(doc sections.Document) *fakeBackend {
	return &fakeBackend{doc: doc, calls: make(chan sections.Document, 16)}
}

func (b *fakeBackend) Load(context.Context) (sections.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc, nil
}

func (b *fakeBackend) Save(_ context.Context, doc sections.Document) error {
	b.mu.Lock()
	err := b.fail
	if err == nil {
		b.doc = doc
		b.saved = append(b.saved, doc)
	}
	b.mu.Unlock()
	b.calls <- doc
	return err
}

func (b *fakeBackend) setFail(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

func (b *fakeBackend) savedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saved)
}

func waitSave(t *testing.T, b *fakeBackend) sections.Document {
	t.Helper()
	select {
	case doc := <-b.calls:
		return doc
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for save")
	}
	return sections.Document{}
}

func assertNoSave(t *testing.T, b *fakeBackend, wait time.Duration) {
	t.Helper()
	select {
	case doc := <-b.calls:
		t.Fatalf("unexpected save with %d sections", len(doc.Sections))
	case <-time.After(wait):
	}
}

func TestAutosaver_SavesOnlySettledState(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := newFakeBackend(sections.New())
	a := NewAutosaver(backend, 30*time.Millisecond, nil)
	defer a.Close()

	doc := sections.New()
	for i := 0; i < 3; i++ {
		doc = doc.AddSection(sections.SectionHero)
		changed, err := a.Observe(doc)
		require.NoError(t, err)
		assert.True(t, changed)
	}
	assert.Equal(t, StatusPending, a.Status())

	saved := waitSave(t, backend)
	assert.Len(t, saved.Sections, 3)
	assertNoSave(t, backend, 100*time.Millisecond)
	assert.Equal(t, StatusSaved, a.Status())
	assert.False(t, a.Saving())
	assert.NoError(t, a.Err())
}

func TestAutosaver_IgnoresUnchangedDocument(t *testing.T) {
	backend := newFakeBackend(sections.New())
	a := NewAutosaver(backend, 20*time.Millisecond, nil)
	defer a.Close()

	doc := sections.New().AddSection(sections.SectionFeatures)
	require.NoError(t, a.Prime(doc))

	changed, err := a.Observe(doc)
	require.NoError(t, err)
	assert.False(t, changed)
	assertNoSave(t, backend, 80*time.Millisecond)
	assert.Equal(t, StatusIdle, a.Status())
}

func TestAutosaver_SurfacesFailureAndRetries(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := newFakeBackend(sections.New())
	backend.setFail(errors.New("boom"))
	failed := make(chan error, 4)

	a := NewAutosaver(backend, 20*time.Millisecond, nil)
	a.OnStatus(func(s Status, err error) {
		if s == StatusFailed {
			failed <- err
		}
	})
	defer a.Close()

	doc := sections.New().AddSection(sections.SectionCanvas)
	_, err := a.Observe(doc)
	require.NoError(t, err)
	waitSave(t, backend)

	select {
	case err := <-failed:
		assert.EqualError(t, err, "boom")
	case <-time.After(2 * time.Second):
		t.Fatalf("failure was not reported")
	}
	assert.Equal(t, StatusFailed, a.Status())
	assert.EqualError(t, a.Err(), "boom")

	backend.setFail(nil)
	require.NoError(t, a.Retry(context.Background()))
	waitSave(t, backend)
	assert.Equal(t, StatusSaved, a.Status())
	assert.NoError(t, a.Err())
	assert.Equal(t, 1, backend.savedCount())
}

func TestAutosaver_FlushSavesImmediately(t *testing.T) {
	backend := newFakeBackend(sections.New())
	a := NewAutosaver(backend, time.Hour, nil)
	defer a.Close()

	doc := sections.New().AddSection(sections.SectionCustom)
	_, err := a.Observe(doc)
	require.NoError(t, err)

	require.NoError(t, a.Flush(context.Background()))
	saved := waitSave(t, backend)
	assert.Len(t, saved.Sections, 1)

	// 没有新的修改时 Flush 不会再次保存
	require.NoError(t, a.Flush(context.Background()))
	assertNoSave(t, backend, 30*time.Millisecond)
}

func TestAutosaver_CloseDropsPendingSave(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := newFakeBackend(sections.New())
	a := NewAutosaver(backend, 40*time.Millisecond, nil)

	_, err := a.Observe(sections.New().AddSection(sections.SectionHero))
	require.NoError(t, err)
	a.Close()
	a.Close()

	assertNoSave(t, backend, 120*time.Millisecond)

	changed, err := a.Observe(sections.New().AddSection(sections.SectionCanvas))
	require.NoError(t, err)
	assert.False(t, changed)
}
