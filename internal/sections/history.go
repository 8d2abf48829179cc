package sections

import "fmt"

// HistoryLimit 是撤销栈保留的最大快照数量，超出时丢弃最旧的快照。
const HistoryLimit = 50

// History 以序列化快照记录文档状态，支持撤销与重做。
// 栈顶（past 的最后一项）始终是当前状态。History 不是并发安全的。
type History struct {
	past   []string
	future []string
}

// NewHistory 返回一个空历史。
func NewHistory() *History {
	return &History{}
}

// Record 记录一个新状态。与栈顶相同时不记录；否则清空重做栈。
func (h *History) Record(doc Document) (bool, error) {
	data, err := Marshal(doc)
	if err != nil {
		return false, err
	}
	return h.RecordSnapshot(string(data)), nil
}

// RecordSnapshot 记录一个已序列化的快照。
func (h *History) RecordSnapshot(snapshot string) bool {
	if n := len(h.past); n > 0 && h.past[n-1] == snapshot {
		return false
	}
	h.past = append(h.past, snapshot)
	if over := len(h.past) - HistoryLimit; over > 0 {
		h.past = append(h.past[:0], h.past[over:]...)
	}
	h.future = h.future[:0]
	return true
}

// Undo 回退到上一个状态。只剩当前状态时返回 false。
func (h *History) Undo() (Document, bool, error) {
	if !h.CanUndo() {
		return Document{}, false, nil
	}
	n := len(h.past)
	current := h.past[n-1]
	h.past = h.past[:n-1]
	h.future = append(h.future, current)
	doc, err := decodeSnapshot(h.past[n-2])
	return doc, err == nil, err
}

// Redo 重新应用最近一次撤销的状态。
func (h *History) Redo() (Document, bool, error) {
	if !h.CanRedo() {
		return Document{}, false, nil
	}
	n := len(h.future)
	next := h.future[n-1]
	h.future = h.future[:n-1]
	h.past = append(h.past, next)
	doc, err := decodeSnapshot(next)
	return doc, err == nil, err
}

// CanUndo 报告是否存在可回退的状态。
func (h *History) CanUndo() bool { return len(h.past) >= 2 }

// CanRedo 报告重做栈是否非空。
func (h *History) CanRedo() bool { return len(h.future) > 0 }

// Len 返回撤销栈中的快照数量（含当前状态）。
func (h *History) Len() int { return len(h.past) }

func decodeSnapshot(snapshot string) (Document, error) {
	doc, err := Decode([]byte(snapshot))
	if err != nil {
		return Document{}, fmt.Errorf("restore snapshot: %w", err)
	}
	return doc, nil
}
