package sections

import (
	"errors"
	"fmt"
	"maps"
	"math"
)

var (
	// ErrIndexOutOfRange 表示调用方传入的下标已失效（通常来自旧快照）。
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrContainerNotFound 表示目标容器不存在于该区块的顶层元素中。
	ErrContainerNotFound = errors.New("container not found")
	// ErrPropsMismatch 表示 props 变体与元素类型不一致。
	ErrPropsMismatch = errors.New("props do not match element type")
	// ErrNotCanvas 表示对非画布区块执行了画布操作。
	ErrNotCanvas = errors.New("section is not a canvas")
)

// SectionPatch 描述对区块的浅合并，nil 字段保持不变。
type SectionPatch struct {
	Type   *SectionType
	Title  *string
	Layout *SectionLayout
	Styles map[string]any
}

// ElementPatch 描述对元素的浅合并，nil 字段保持不变。
type ElementPatch struct {
	Props  Props
	Layout *CanvasLayout
}

func outOfRange(what string, idx, n int) error {
	return fmt.Errorf("%s %d (len %d): %w", what, idx, n, ErrIndexOutOfRange)
}

// AddSection 追加一个新区块，总是成功。
func (d Document) AddSection(t SectionType) Document {
	next := d.clone()
	next.Sections = append(next.Sections, NewSection(t))
	return next
}

// UpdateSection 将 patch 浅合并到指定区块。
func (d Document) UpdateSection(idx int, patch SectionPatch) (Document, error) {
	if idx < 0 || idx >= len(d.Sections) {
		return d, outOfRange("section", idx, len(d.Sections))
	}
	next := d.clone()
	s := &next.Sections[idx]
	if patch.Type != nil {
		s.Type = *patch.Type
	}
	if patch.Title != nil {
		s.Title = *patch.Title
	}
	if patch.Layout != nil {
		s.Layout = *patch.Layout
		s.Layout.Extra = maps.Clone(patch.Layout.Extra)
	}
	if patch.Styles != nil {
		s.Styles = maps.Clone(patch.Styles)
	}
	return next, nil
}

// RemoveSection 删除指定区块，后续区块前移。
func (d Document) RemoveSection(idx int) (Document, error) {
	if idx < 0 || idx >= len(d.Sections) {
		return d, outOfRange("section", idx, len(d.Sections))
	}
	next := d.clone()
	next.Sections = append(next.Sections[:idx], next.Sections[idx+1:]...)
	return next, nil
}

// ReorderSections 将 from 处的区块移动到 to。
func (d Document) ReorderSections(from, to int) (Document, error) {
	n := len(d.Sections)
	if from < 0 || from >= n {
		return d, outOfRange("section", from, n)
	}
	if to < 0 || to >= n {
		return d, outOfRange("section", to, n)
	}
	if from == to {
		return d, nil
	}
	next := d.clone()
	next.Sections = moveItem(next.Sections, from, to)
	return next, nil
}

// AddElement 在区块末尾追加一个带默认值的元素。
func (d Document) AddElement(sectionIdx int, t ElementType) (Document, error) {
	if sectionIdx < 0 || sectionIdx >= len(d.Sections) {
		return d, outOfRange("section", sectionIdx, len(d.Sections))
	}
	return d.AddElementAt(sectionIdx, len(d.Sections[sectionIdx].Elements), t, "")
}

// AddElementAt 在指定位置插入新元素；containerID 非空时追加到该容器的 children。
func (d Document) AddElementAt(sectionIdx, insertIdx int, t ElementType, containerID string) (Document, error) {
	if sectionIdx < 0 || sectionIdx >= len(d.Sections) {
		return d, outOfRange("section", sectionIdx, len(d.Sections))
	}
	el := NewElement(t)

	next := d.clone()
	s := &next.Sections[sectionIdx]
	if containerID == "" {
		if s.IsCanvas() {
			layout := DefaultCanvasLayout()
			el.Layout = &layout
		}
		s.Elements = insertItem(s.Elements, clampIndex(insertIdx, len(s.Elements)), el)
		return next, nil
	}

	for i := range s.Elements {
		if s.Elements[i].ID == containerID && s.Elements[i].Type == ElementContainer {
			s.Elements[i].Children = append(s.Elements[i].Children, el)
			return next, nil
		}
	}
	return d, fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
}

// UpdateElement 将 patch 浅合并到区块顶层的指定元素。
func (d Document) UpdateElement(sectionIdx, elementIdx int, patch ElementPatch) (Document, error) {
	if _, err := d.elementAt(sectionIdx, elementIdx); err != nil {
		return d, err
	}
	next := d.clone()
	el := &next.Sections[sectionIdx].Elements[elementIdx]
	if patch.Props != nil {
		if !propsMatch(el.Type, patch.Props) {
			return d, fmt.Errorf("%w: %T for %s", ErrPropsMismatch, patch.Props, el.Type)
		}
		el.Props = cloneProps(patch.Props)
	}
	if patch.Layout != nil {
		layout := *patch.Layout
		layout.Extra = maps.Clone(patch.Layout.Extra)
		el.Layout = &layout
	}
	return next, nil
}

// RemoveElement 删除区块顶层的指定元素。
func (d Document) RemoveElement(sectionIdx, elementIdx int) (Document, error) {
	if _, err := d.elementAt(sectionIdx, elementIdx); err != nil {
		return d, err
	}
	next := d.clone()
	s := &next.Sections[sectionIdx]
	s.Elements = append(s.Elements[:elementIdx], s.Elements[elementIdx+1:]...)
	return next, nil
}

// MoveElement 在同一区块内重新排序元素。
func (d Document) MoveElement(sectionIdx, from, to int) (Document, error) {
	if _, err := d.elementAt(sectionIdx, from); err != nil {
		return d, err
	}
	n := len(d.Sections[sectionIdx].Elements)
	to = clampIndex(to, n-1)
	if from == to {
		return d, nil
	}
	next := d.clone()
	s := &next.Sections[sectionIdx]
	s.Elements = moveItem(s.Elements, from, to)
	return next, nil
}

// MoveElementAcross 将元素从一个区块移动到另一个区块的指定位置。
// 两个区块在同一份快照上同时计算，不存在中间态。
func (d Document) MoveElementAcross(fromSection, fromIdx, toSection, toIdx int) (Document, error) {
	if fromSection == toSection {
		return d.MoveElement(fromSection, fromIdx, toIdx)
	}
	if _, err := d.elementAt(fromSection, fromIdx); err != nil {
		return d, err
	}
	if toSection < 0 || toSection >= len(d.Sections) {
		return d, outOfRange("section", toSection, len(d.Sections))
	}

	next := d.clone()
	src := &next.Sections[fromSection]
	dst := &next.Sections[toSection]
	moved := src.Elements[fromIdx]
	src.Elements = append(src.Elements[:fromIdx], src.Elements[fromIdx+1:]...)
	if dst.IsCanvas() && moved.Layout == nil {
		layout := DefaultCanvasLayout()
		moved.Layout = &layout
	}
	dst.Elements = insertItem(dst.Elements, clampIndex(toIdx, len(dst.Elements)), moved)
	return next, nil
}

// MoveCanvasElement 更新画布元素的位置，坐标限制在 [0,100]。
func (d Document) MoveCanvasElement(sectionIdx, elementIdx int, left, top float64) (Document, error) {
	el, err := d.canvasElementAt(sectionIdx, elementIdx)
	if err != nil {
		return d, err
	}
	layout := currentLayout(el)
	layout.Left = clampPercent(left, 0, 100)
	layout.Top = clampPercent(top, 0, 100)
	return d.UpdateElement(sectionIdx, elementIdx, ElementPatch{Layout: &layout})
}

// ResizeCanvasElement 更新画布元素尺寸，宽高限制在 [5,100]。
func (d Document) ResizeCanvasElement(sectionIdx, elementIdx int, width, height float64) (Document, error) {
	el, err := d.canvasElementAt(sectionIdx, elementIdx)
	if err != nil {
		return d, err
	}
	layout := currentLayout(el)
	layout.Width = clampPercent(width, 5, 100)
	layout.Height = clampPercent(height, 5, 100)
	return d.UpdateElement(sectionIdx, elementIdx, ElementPatch{Layout: &layout})
}

// ElementByID 在整个文档（含一层容器）中查找元素。
func (d Document) ElementByID(id string) (Element, bool) {
	for _, s := range d.Sections {
		for _, el := range s.Elements {
			if el.ID == id {
				return el, true
			}
			for _, child := range el.Children {
				if child.ID == id {
					return child, true
				}
			}
		}
	}
	return Element{}, false
}

func (d Document) elementAt(sectionIdx, elementIdx int) (Element, error) {
	if sectionIdx < 0 || sectionIdx >= len(d.Sections) {
		return Element{}, outOfRange("section", sectionIdx, len(d.Sections))
	}
	els := d.Sections[sectionIdx].Elements
	if elementIdx < 0 || elementIdx >= len(els) {
		return Element{}, outOfRange("element", elementIdx, len(els))
	}
	return els[elementIdx], nil
}

func (d Document) canvasElementAt(sectionIdx, elementIdx int) (Element, error) {
	el, err := d.elementAt(sectionIdx, elementIdx)
	if err != nil {
		return Element{}, err
	}
	if !d.Sections[sectionIdx].IsCanvas() {
		return Element{}, ErrNotCanvas
	}
	return el, nil
}

func currentLayout(el Element) CanvasLayout {
	if el.Layout != nil {
		return *el.Layout
	}
	return DefaultCanvasLayout()
}

// clone 深拷贝文档，保证操作不修改输入。
func (d Document) clone() Document {
	next := Document{Version: d.Version, Sections: make([]Section, len(d.Sections))}
	if next.Version == 0 {
		next.Version = CurrentVersion
	}
	for i, s := range d.Sections {
		s.Styles = maps.Clone(s.Styles)
		if s.Styles == nil {
			s.Styles = map[string]any{}
		}
		s.Layout.Extra = maps.Clone(s.Layout.Extra)
		s.Elements = cloneElements(s.Elements)
		next.Sections[i] = s
	}
	return next
}

func cloneElements(els []Element) []Element {
	if els == nil {
		return []Element{}
	}
	out := make([]Element, len(els))
	for i, el := range els {
		el.Props = cloneProps(el.Props)
		if el.Layout != nil {
			layout := *el.Layout
			layout.Extra = maps.Clone(layout.Extra)
			el.Layout = &layout
		}
		if el.Children != nil {
			el.Children = cloneElements(el.Children)
		}
		out[i] = el
	}
	return out
}

func clampIndex(idx, max int) int {
	if idx < 0 {
		return 0
	}
	if idx > max {
		return max
	}
	return idx
}

func clampPercent(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func insertItem[T any](items []T, idx int, item T) []T {
	items = append(items, item)
	copy(items[idx+1:], items[idx:])
	items[idx] = item
	return items
}

func moveItem[T any](items []T, from, to int) []T {
	moved := items[from]
	items = append(items[:from], items[from+1:]...)
	return insertItem(items, to, moved)
}
