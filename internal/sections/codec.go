package sections

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed 表示文档不是合法的 JSON 对象或字段类型不符。
	ErrMalformed = errors.New("malformed document")
	// ErrMissingSections 表示文档缺少 sections 数组。
	ErrMissingSections = errors.New("invalid payload: expected { sections: [] }")
	// ErrUnsupportedVersion 表示文档版本高于当前程序支持的版本。
	ErrUnsupportedVersion = errors.New("unsupported document version")
)

type elementWire struct {
	ID       string          `json:"id"`
	Type     ElementType     `json:"type"`
	Props    json.RawMessage `json:"props"`
	Children []Element       `json:"children,omitempty"`
	Layout   *CanvasLayout   `json:"layout,omitempty"`
}

type elementOut struct {
	ID       string        `json:"id"`
	Type     ElementType   `json:"type"`
	Props    Props         `json:"props"`
	Children *[]Element    `json:"children,omitempty"`
	Layout   *CanvasLayout `json:"layout,omitempty"`
}

// MarshalJSON 输出 {id,type,props,children?,layout?}；container 总是带 children 数组。
func (e Element) MarshalJSON() ([]byte, error) {
	out := elementOut{
		ID:     e.ID,
		Type:   e.Type,
		Props:  e.Props,
		Layout: e.Layout,
	}
	if out.Props == nil {
		// 空 props 解码成对应变体的零值，不会失败。
		out.Props, _ = decodeProps(e.Type, nil)
	}
	if raw, ok := out.Props.(RawProps); ok && raw == nil {
		out.Props = RawProps{}
	}
	if e.Type == ElementContainer || len(e.Children) > 0 {
		children := e.Children
		if children == nil {
			children = []Element{}
		}
		out.Children = &children
	}
	return json.Marshal(out)
}

// UnmarshalJSON 根据 type 将 props 解码为对应的变体。
func (e *Element) UnmarshalJSON(data []byte) error {
	var wire elementWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode element: %w", err)
	}
	props, err := decodeProps(wire.Type, wire.Props)
	if err != nil {
		return fmt.Errorf("element %q: %w", wire.ID, err)
	}
	*e = Element{
		ID:       wire.ID,
		Type:     wire.Type,
		Props:    props,
		Children: wire.Children,
		Layout:   wire.Layout,
	}
	if e.Type == ElementContainer && e.Children == nil {
		e.Children = []Element{}
	}
	return nil
}

// UnmarshalJSON 取出 background 与 canvasHeight，其余键留在 Extra。
func (l *SectionLayout) UnmarshalJSON(data []byte) error {
	fields, err := splitObject(data)
	if err != nil {
		return fmt.Errorf("decode section layout: %w", err)
	}
	*l = SectionLayout{}
	takeField(fields, "background", &l.Background)
	takeField(fields, "canvasHeight", &l.CanvasHeight)
	l.Extra = nonEmpty(fields)
	return nil
}

// MarshalJSON 把 Extra 与已知字段合并为一个对象，零值字段省略。
func (l SectionLayout) MarshalJSON() ([]byte, error) {
	known := map[string]any{}
	if l.Background != "" {
		known["background"] = l.Background
	}
	if l.CanvasHeight != 0 {
		known["canvasHeight"] = l.CanvasHeight
	}
	return mergeObject(l.Extra, known)
}

// UnmarshalJSON 解码画布位置；类型不符的已知键与未知键一起留在 Extra。
func (l *CanvasLayout) UnmarshalJSON(data []byte) error {
	fields, err := splitObject(data)
	if err != nil {
		return fmt.Errorf("decode canvas layout: %w", err)
	}
	*l = CanvasLayout{}
	takeField(fields, "top", &l.Top)
	takeField(fields, "left", &l.Left)
	takeField(fields, "width", &l.Width)
	takeField(fields, "height", &l.Height)
	takeField(fields, "z", &l.Z)
	l.Extra = nonEmpty(fields)
	return nil
}

// MarshalJSON 总是输出五个位置字段，除非 Extra 中保留了同名的原始值且字段为零。
func (l CanvasLayout) MarshalJSON() ([]byte, error) {
	known := map[string]any{}
	put := func(key string, v any, zero bool) {
		if _, kept := l.Extra[key]; kept && zero {
			return
		}
		known[key] = v
	}
	put("top", l.Top, l.Top == 0)
	put("left", l.Left, l.Left == 0)
	put("width", l.Width, l.Width == 0)
	put("height", l.Height, l.Height == 0)
	put("z", l.Z, l.Z == 0)
	return mergeObject(l.Extra, known)
}

func splitObject(data []byte) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if isNull(data) {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// takeField 在值能解码进 dst 时把键从 fields 中移走，否则保留原始值。
func takeField[T any](fields map[string]json.RawMessage, key string, dst *T) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = v
	delete(fields, key)
}

func mergeObject(extra map[string]json.RawMessage, known map[string]any) ([]byte, error) {
	out := make(map[string]any, len(extra)+len(known))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}

func nonEmpty(fields map[string]json.RawMessage) map[string]json.RawMessage {
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// MarshalJSON 保证 styles 与 elements 输出为对象/数组而不是 null。
func (s Section) MarshalJSON() ([]byte, error) {
	type wire Section
	w := wire(s)
	if w.Styles == nil {
		w.Styles = map[string]any{}
	}
	if w.Elements == nil {
		w.Elements = []Element{}
	}
	return json.Marshal(w)
}

// MarshalJSON 保证 sections 输出为数组，并补齐版本号。
func (d Document) MarshalJSON() ([]byte, error) {
	type wire Document
	w := wire(d)
	if w.Version == 0 {
		w.Version = CurrentVersion
	}
	if w.Sections == nil {
		w.Sections = []Section{}
	}
	return json.Marshal(w)
}

// Marshal 返回文档的规范序列化结果，历史快照与持久化都使用这一形式。
func Marshal(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// Decode 解析并升级文档。缺少 version 的旧文档视为版本 0。
func Decode(data []byte) (Document, error) {
	var probe struct {
		Version  *int            `json:"version"`
		Sections json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	trimmed := bytes.TrimSpace(probe.Sections)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Document{}, ErrMissingSections
	}

	version := 0
	if probe.Version != nil {
		version = *probe.Version
	}
	if version < 0 || version > CurrentVersion {
		return Document{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return upgrade(doc), nil
}

// upgrade 将旧版本文档迁移到 CurrentVersion。
// 版本 0 只是缺少 version 字段，其余结构与版本 1 相同。
func upgrade(doc Document) Document {
	doc.Version = CurrentVersion
	if doc.Sections == nil {
		doc.Sections = []Section{}
	}
	for i := range doc.Sections {
		if doc.Sections[i].Styles == nil {
			doc.Sections[i].Styles = map[string]any{}
		}
		if doc.Sections[i].Elements == nil {
			doc.Sections[i].Elements = []Element{}
		}
	}
	return doc
}

// Warning 描述不影响保存、但值得提示的文档问题。
type Warning struct {
	ElementID string `json:"element_id"`
	Message   string `json:"message"`
}

// Validate 检查 ID 重复与容器嵌套深度，仅返回警告。
func (d Document) Validate() []Warning {
	var warnings []Warning
	seen := make(map[string]struct{})
	check := func(id string) {
		if _, ok := seen[id]; ok {
			warnings = append(warnings, Warning{ElementID: id, Message: "duplicate id"})
			return
		}
		seen[id] = struct{}{}
	}
	for _, s := range d.Sections {
		check(s.ID)
		for _, el := range s.Elements {
			check(el.ID)
			for _, child := range el.Children {
				check(child.ID)
				if len(child.Children) > 0 {
					warnings = append(warnings, Warning{ElementID: child.ID, Message: "nested children are not rendered"})
				}
			}
		}
	}
	return warnings
}
