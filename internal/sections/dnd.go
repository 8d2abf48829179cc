package sections

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPayload 表示拖拽数据无法识别。
var ErrInvalidPayload = errors.New("invalid drag payload")

// DragKind 区分拖拽来源。
type DragKind string

const (
	DragPalette DragKind = "palette"
	DragElement DragKind = "element"
)

// DragPayload 是拖拽源写入 dataTransfer 的意图描述。
type DragPayload struct {
	Kind         DragKind    `json:"kind"`
	Type         ElementType `json:"type,omitempty"`
	SectionIndex int         `json:"sectionIdx,omitempty"`
	ElementIndex int         `json:"elementIdx,omitempty"`
}

// PalettePayload 构造从组件面板拖出新元素的 payload。
func PalettePayload(t ElementType) DragPayload {
	return DragPayload{Kind: DragPalette, Type: t}
}

// ElementPayload 构造拖动已有元素的 payload。
func ElementPayload(sectionIdx, elementIdx int) DragPayload {
	return DragPayload{Kind: DragElement, SectionIndex: sectionIdx, ElementIndex: elementIdx}
}

// EncodePayload 将 payload 编码为 JSON 字符串。
func EncodePayload(p DragPayload) string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// DecodePayload 解析 JSON 形式的 payload，同时兼容旧的
// "palette:<type>" 与 "element:<s>:<e>" 冒号格式。
func DecodePayload(raw string) (DragPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DragPayload{}, ErrInvalidPayload
	}

	var p DragPayload
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return DragPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	} else {
		parts := strings.Split(raw, ":")
		switch {
		case len(parts) == 2 && parts[0] == string(DragPalette):
			p = PalettePayload(ElementType(parts[1]))
		case len(parts) == 3 && parts[0] == string(DragElement):
			s, err1 := strconv.Atoi(parts[1])
			e, err2 := strconv.Atoi(parts[2])
			if err1 != nil || err2 != nil {
				return DragPayload{}, fmt.Errorf("%w: %q", ErrInvalidPayload, raw)
			}
			p = ElementPayload(s, e)
		default:
			return DragPayload{}, fmt.Errorf("%w: %q", ErrInvalidPayload, raw)
		}
	}

	switch p.Kind {
	case DragPalette:
		if p.Type == "" {
			return DragPayload{}, fmt.Errorf("%w: palette payload without type", ErrInvalidPayload)
		}
	case DragElement:
		if p.SectionIndex < 0 || p.ElementIndex < 0 {
			return DragPayload{}, fmt.Errorf("%w: negative index", ErrInvalidPayload)
		}
	default:
		return DragPayload{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, p.Kind)
	}
	return p, nil
}

// DropTarget 描述放置位置。ContainerID 非空时表示放入该容器。
type DropTarget struct {
	SectionIndex int
	InsertIndex  int
	ContainerID  string
}

// ApplyDrop 将一次放置转换为对应的文档操作，一次放置只产生一次变更。
func (d Document) ApplyDrop(p DragPayload, target DropTarget) (Document, error) {
	switch p.Kind {
	case DragPalette:
		return d.AddElementAt(target.SectionIndex, target.InsertIndex, p.Type, target.ContainerID)
	case DragElement:
		if p.SectionIndex == target.SectionIndex {
			return d.MoveElement(target.SectionIndex, p.ElementIndex, target.InsertIndex)
		}
		return d.MoveElementAcross(p.SectionIndex, p.ElementIndex, target.SectionIndex, target.InsertIndex)
	}
	return d, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, p.Kind)
}

// Rect 是画布在页面上的包围盒（像素）。
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// CanvasPoint 将指针坐标换算为相对画布的百分比，结果限制在 [0,100]。
func CanvasPoint(x, y float64, r Rect) (left, top float64) {
	if r.Width > 0 {
		left = (x - r.Left) / r.Width * 100
	}
	if r.Height > 0 {
		top = (y - r.Top) / r.Height * 100
	}
	return clampPercent(left, 0, 100), clampPercent(top, 0, 100)
}

// ApplyCanvasDrop 处理画布上的放置：面板元素在指针处新建，
// 同一画布中的元素移动到指针处，其他区块的元素移入画布末尾并定位到指针处。
func (d Document) ApplyCanvasDrop(sectionIdx int, p DragPayload, left, top float64) (Document, error) {
	if sectionIdx < 0 || sectionIdx >= len(d.Sections) {
		return d, outOfRange("section", sectionIdx, len(d.Sections))
	}
	if !d.Sections[sectionIdx].IsCanvas() {
		return d, ErrNotCanvas
	}
	left = clampPercent(left, 0, 100)
	top = clampPercent(top, 0, 100)

	switch p.Kind {
	case DragPalette:
		el := NewElement(p.Type)
		layout := DroppedCanvasLayout(left, top)
		el.Layout = &layout
		next := d.clone()
		s := &next.Sections[sectionIdx]
		s.Elements = append(s.Elements, el)
		return next, nil
	case DragElement:
		if p.SectionIndex == sectionIdx {
			return d.MoveCanvasElement(sectionIdx, p.ElementIndex, left, top)
		}
		end := len(d.Sections[sectionIdx].Elements)
		moved, err := d.MoveElementAcross(p.SectionIndex, p.ElementIndex, sectionIdx, end)
		if err != nil {
			return d, err
		}
		return moved.MoveCanvasElement(sectionIdx, end, left, top)
	}
	return d, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, p.Kind)
}
