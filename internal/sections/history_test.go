package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordAll(t *testing.T, h *History, docs ...Document) {
	t.Helper()
	for _, d := range docs {
		_, err := h.Record(d)
		require.NoError(t, err)
	}
}

func TestHistory_DeduplicatesIdenticalSnapshots(t *testing.T) {
	h := NewHistory()
	doc := New().AddSection(SectionHero)

	pushed, err := h.Record(doc)
	require.NoError(t, err)
	assert.True(t, pushed)

	same, err := doc.UpdateSection(0, SectionPatch{Title: &doc.Sections[0].Title})
	require.NoError(t, err)
	pushed, err = h.Record(same)
	require.NoError(t, err)
	assert.False(t, pushed)
	assert.Equal(t, 1, h.Len())
	assert.False(t, h.CanUndo())
}

func TestHistory_UndoRedoInverse(t *testing.T) {
	h := NewHistory()
	doc := New()
	recordAll(t, h, doc)

	var err error
	states := []string{mustMarshal(t, doc)}
	for i := 0; i < 5; i++ {
		doc = doc.AddSection(SectionCustom)
		doc, err = doc.AddElement(i, ElementText)
		require.NoError(t, err)
		recordAll(t, h, doc)
		states = append(states, mustMarshal(t, doc))
	}
	final := states[len(states)-1]

	var undone Document
	for i := 0; i < 5; i++ {
		var ok bool
		undone, ok, err = h.Undo()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, states[len(states)-2-i], mustMarshal(t, undone))
		// 记录撤销得到的状态不会清空重做栈
		recordAll(t, h, undone)
	}
	_, ok, err := h.Undo()
	require.NoError(t, err)
	assert.False(t, ok)

	var redone Document
	for i := 0; i < 5; i++ {
		redone, ok, err = h.Redo()
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, final, mustMarshal(t, redone))
	assert.False(t, h.CanRedo())
}

func TestHistory_NewRecordClearsFuture(t *testing.T) {
	h := NewHistory()
	a := New()
	b := a.AddSection(SectionHero)
	c := a.AddSection(SectionCanvas)
	recordAll(t, h, a, b)

	_, ok, err := h.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, h.CanRedo())

	recordAll(t, h, c)
	assert.False(t, h.CanRedo())
}

func TestHistory_CapEvictsOldest(t *testing.T) {
	h := NewHistory()
	doc := New()
	recordAll(t, h, doc)
	for i := 0; i < 60; i++ {
		doc = doc.AddSection(SectionHero)
		recordAll(t, h, doc)
	}
	assert.Equal(t, HistoryLimit, h.Len())

	undos := 0
	var oldest Document
	for {
		prev, ok, err := h.Undo()
		require.NoError(t, err)
		if !ok {
			break
		}
		oldest = prev
		undos++
	}
	assert.Equal(t, HistoryLimit-1, undos)
	// 前 10 次变更之前的状态已被淘汰
	assert.Len(t, oldest.Sections, 11)
}
