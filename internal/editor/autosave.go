package editor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"

	"siteCMS/internal/sections"
)

// DefaultAutosaveDelay 是文档静止多久后触发自动保存。
const DefaultAutosaveDelay = 800 * time.Millisecond

const saveTimeout = 15 * time.Second

// Saver 持久化一份完整文档。
type Saver interface {
	Save(ctx context.Context, doc sections.Document) error
}

// Status 描述自动保存的当前阶段。
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusFailed  Status = "failed"
)

// Autosaver 在文档停止变化 delay 之后保存最后一次观察到的状态。
// 由编辑会话创建并负责 Close，不依赖任何全局定时器。
type Autosaver struct {
	saver     Saver
	logger    *slog.Logger
	debounced func(func())

	mu       sync.Mutex
	last     string
	lastDoc  *sections.Document
	pending  *sections.Document
	gen      uint64
	status   Status
	err      error
	closed   bool
	onStatus func(Status, error)

	saveMu   sync.Mutex
	inflight atomic.Int32
	wg       sync.WaitGroup
}

// NewAutosaver 创建自动保存器。delay <= 0 时使用 DefaultAutosaveDelay。
func NewAutosaver(saver Saver, delay time.Duration, logger *slog.Logger) *Autosaver {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Autosaver{
		saver:     saver,
		logger:    logger,
		debounced: debounce.New(delay),
		status:    StatusIdle,
	}
}

// OnStatus 注册状态变化回调。回调在锁外执行，可能来自定时器 goroutine。
func (a *Autosaver) OnStatus(fn func(Status, error)) {
	a.mu.Lock()
	a.onStatus = fn
	a.mu.Unlock()
}

// Prime 记录初始加载的文档，不触发保存。
func (a *Autosaver) Prime(doc sections.Document) error {
	data, err := sections.Marshal(doc)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.last = string(data)
	a.lastDoc = &doc
	a.mu.Unlock()
	return nil
}

// Observe 通知自动保存器文档可能发生了变化。
// 序列化结果与上次相同则忽略；否则重新开始计时，返回 true。
func (a *Autosaver) Observe(doc sections.Document) (bool, error) {
	data, err := sections.Marshal(doc)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	if a.closed || string(data) == a.last {
		a.mu.Unlock()
		return false, nil
	}
	a.last = string(data)
	a.lastDoc = &doc
	a.pending = &doc
	a.gen++
	gen := a.gen
	cb := a.setStatusLocked(StatusPending, nil)
	a.mu.Unlock()

	notify(cb, StatusPending, nil)
	a.debounced(func() { a.fire(gen) })
	return true, nil
}

func (a *Autosaver) fire(gen uint64) {
	a.mu.Lock()
	if a.closed || gen != a.gen || a.pending == nil {
		a.mu.Unlock()
		return
	}
	doc := *a.pending
	a.pending = nil
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	_ = a.save(ctx, doc)
}

// Flush 立即保存尚未落盘的变更；没有待保存内容时直接返回最近一次的错误。
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.pending == nil {
		err := a.err
		a.mu.Unlock()
		return err
	}
	doc := *a.pending
	a.pending = nil
	a.gen++
	a.mu.Unlock()
	return a.save(ctx, doc)
}

// Retry 重新保存最后一次观察到的文档，用于保存失败后的手动重试。
func (a *Autosaver) Retry(ctx context.Context) error {
	a.mu.Lock()
	if a.lastDoc == nil {
		a.mu.Unlock()
		return nil
	}
	doc := *a.lastDoc
	a.pending = nil
	a.gen++
	a.mu.Unlock()
	return a.save(ctx, doc)
}

func (a *Autosaver) save(ctx context.Context, doc sections.Document) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.inflight.Add(1)
	a.mu.Lock()
	cb := a.setStatusLocked(StatusSaving, nil)
	a.mu.Unlock()
	notify(cb, StatusSaving, nil)

	err := a.saver.Save(ctx, doc)
	a.inflight.Add(-1)

	a.mu.Lock()
	status := StatusSaved
	if err != nil {
		status = StatusFailed
	} else if a.pending != nil {
		// 保存期间又有新的修改
		status = StatusPending
	}
	cb = a.setStatusLocked(status, err)
	a.mu.Unlock()

	if err != nil {
		a.logger.Warn("autosave failed", "error", err)
	} else {
		a.logger.Debug("autosave succeeded", "sections", len(doc.Sections))
	}
	notify(cb, status, err)
	return err
}

func (a *Autosaver) setStatusLocked(s Status, err error) func(Status, error) {
	a.status = s
	if s != StatusPending && s != StatusSaving {
		a.err = err
	}
	return a.onStatus
}

func notify(cb func(Status, error), s Status, err error) {
	if cb != nil {
		cb(s, err)
	}
}

// Saving 报告是否有保存请求正在进行。
func (a *Autosaver) Saving() bool {
	return a.inflight.Load() > 0
}

// Status 返回当前阶段。
func (a *Autosaver) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Err 返回最近一次保存失败的错误，成功保存后清空。
func (a *Autosaver) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Close 取消尚未触发的保存并等待进行中的保存结束。可重复调用。
func (a *Autosaver) Close() {
	a.mu.Lock()
	a.closed = true
	a.gen++
	a.mu.Unlock()
	a.wg.Wait()
}
