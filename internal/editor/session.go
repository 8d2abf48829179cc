package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"siteCMS/internal/sections"
)

// Loader 读取当前持久化的文档。
type Loader interface {
	Load(ctx context.Context) (sections.Document, error)
}

// Backend 同时提供读取与保存，Client 即是一种实现。
type Backend interface {
	Loader
	Saver
}

// Options 控制编辑会话的自动保存行为。
type Options struct {
	Delay    time.Duration
	Logger   *slog.Logger
	OnStatus func(Status, error)
}

// Mutation 是作用于工作副本的一次编辑。
type Mutation func(sections.Document) (sections.Document, error)

// Session 持有一次编辑过程的全部状态：工作副本、撤销历史与自动保存器。
// 所有方法按调用顺序串行执行。
type Session struct {
	mu       sync.Mutex
	doc      sections.Document
	history  *sections.History
	autosave *Autosaver
	logger   *slog.Logger
}

// Open 加载文档并开始编辑会话。调用方负责 Close。
func Open(ctx context.Context, backend Backend, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	doc, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}

	autosave := NewAutosaver(backend, opts.Delay, logger)
	if opts.OnStatus != nil {
		autosave.OnStatus(opts.OnStatus)
	}
	if err := autosave.Prime(doc); err != nil {
		return nil, err
	}

	history := sections.NewHistory()
	if _, err := history.Record(doc); err != nil {
		return nil, err
	}

	return &Session{
		doc:      doc,
		history:  history,
		autosave: autosave,
		logger:   logger,
	}, nil
}

// Document 返回当前工作副本。
func (s *Session) Document() sections.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Apply 执行一次编辑。失败时工作副本保持不变并返回错误。
func (s *Session) Apply(fn Mutation) (sections.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.doc)
	if err != nil {
		s.logger.Debug("edit rejected", "error", err)
		return s.doc, err
	}
	err = s.commitLocked(next)
	return s.doc, err
}

func (s *Session) commitLocked(next sections.Document) error {
	s.doc = next
	if _, err := s.history.Record(next); err != nil {
		return err
	}
	_, err := s.autosave.Observe(next)
	return err
}

// Undo 回退到上一个状态；没有可回退状态时返回 false。
func (s *Session) Undo() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(s.history.Undo)
}

// Redo 重新应用最近一次撤销。
func (s *Session) Redo() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(s.history.Redo)
}

func (s *Session) restoreLocked(step func() (sections.Document, bool, error)) (bool, error) {
	doc, ok, err := step()
	if err != nil || !ok {
		return false, err
	}
	s.doc = doc
	if _, err := s.autosave.Observe(doc); err != nil {
		return true, err
	}
	return true, nil
}

// CanUndo 报告是否可以撤销。
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

// CanRedo 报告是否可以重做。
func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// Drop 解析拖拽数据并应用到放置目标。
func (s *Session) Drop(payload string, target sections.DropTarget) (sections.Document, error) {
	p, err := sections.DecodePayload(payload)
	if err != nil {
		return s.Document(), err
	}
	return s.Apply(func(d sections.Document) (sections.Document, error) {
		return d.ApplyDrop(p, target)
	})
}

// DropOnCanvas 处理画布区块上的放置，指针坐标按画布包围盒换算为百分比。
func (s *Session) DropOnCanvas(sectionIdx int, payload string, x, y float64, box sections.Rect) (sections.Document, error) {
	p, err := sections.DecodePayload(payload)
	if err != nil {
		return s.Document(), err
	}
	left, top := sections.CanvasPoint(x, y, box)
	return s.Apply(func(d sections.Document) (sections.Document, error) {
		return d.ApplyCanvasDrop(sectionIdx, p, left, top)
	})
}

// SaveStatus 返回自动保存状态与最近一次错误。
func (s *Session) SaveStatus() (Status, error) {
	return s.autosave.Status(), s.autosave.Err()
}

// Saving 报告是否有保存请求正在进行。
func (s *Session) Saving() bool {
	return s.autosave.Saving()
}

// Retry 立即重新保存当前文档。
func (s *Session) Retry(ctx context.Context) error {
	return s.autosave.Retry(ctx)
}

// Close 保存未落盘的修改并停止自动保存。
func (s *Session) Close(ctx context.Context) error {
	err := s.autosave.Flush(ctx)
	s.autosave.Close()
	return err
}
