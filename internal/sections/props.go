package sections

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Props 是元素属性的标记联合：每种已知元素类型对应一个具体结构体，
// 未知类型使用 RawProps 原样保留。
type Props interface {
	isProps()
}

type HeadingProps struct {
	Text  string `json:"text"`
	Level int    `json:"level"`
}

type TextProps struct {
	Text string `json:"text"`
}

type ImageProps struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

type VideoProps struct {
	Src      string `json:"src"`
	Poster   string `json:"poster"`
	Autoplay bool   `json:"autoplay"`
	Loop     bool   `json:"loop"`
	Controls bool   `json:"controls"`
}

type ButtonProps struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

type FeatureProps struct {
	Icon  string `json:"icon"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type ContainerProps struct {
	Gap int `json:"gap"`
}

// RawProps 保存未知元素类型的属性，保证向前兼容的文档在读写后不丢数据。
type RawProps map[string]any

func (HeadingProps) isProps()   {}
func (TextProps) isProps()      {}
func (ImageProps) isProps()     {}
func (VideoProps) isProps()     {}
func (ButtonProps) isProps()    {}
func (FeatureProps) isProps()   {}
func (ContainerProps) isProps() {}
func (RawProps) isProps()       {}

// DefaultProps 返回新建元素时的默认属性。
func DefaultProps(t ElementType) Props {
	switch t {
	case ElementHeading:
		return HeadingProps{Text: "Heading", Level: 2}
	case ElementText:
		return TextProps{Text: "Lorem ipsum dolor sit amet"}
	case ElementImage:
		return ImageProps{}
	case ElementVideo:
		return VideoProps{Controls: true}
	case ElementButton:
		return ButtonProps{Text: "Click", Href: "#"}
	case ElementFeature:
		return FeatureProps{Icon: "⭐", Title: "Feature", Text: "Description"}
	case ElementContainer:
		return ContainerProps{Gap: 8}
	default:
		return RawProps{}
	}
}

// IsKnown 报告元素类型是否属于内置类型集合。
func (t ElementType) IsKnown() bool {
	switch t {
	case ElementHeading, ElementText, ElementImage, ElementVideo, ElementButton, ElementFeature, ElementContainer:
		return true
	}
	return false
}

// propsMatch 校验 props 变体与元素类型一致。
func propsMatch(t ElementType, p Props) bool {
	switch p.(type) {
	case HeadingProps:
		return t == ElementHeading
	case TextProps:
		return t == ElementText
	case ImageProps:
		return t == ElementImage
	case VideoProps:
		return t == ElementVideo
	case ButtonProps:
		return t == ElementButton
	case FeatureProps:
		return t == ElementFeature
	case ContainerProps:
		return t == ElementContainer
	case RawProps:
		return !t.IsKnown()
	}
	return false
}

// decodeProps 按元素类型解码 props。已知类型严格解码，拼错的字段会报错。
func decodeProps(t ElementType, raw json.RawMessage) (Props, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}

	var target Props
	switch t {
	case ElementHeading:
		var p HeadingProps
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case ElementText:
		var p TextProps
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case ElementImage:
		var p ImageProps
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case ElementVideo:
		var p VideoProps
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case ElementButton:
		var p ButtonProps
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case ElementFeature:
		var p FeatureProps
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case ElementContainer:
		var p ContainerProps
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	default:
		p := RawProps{}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s props: %w", t, err)
		}
		target = p
	}
	return target, nil
}

func strictUnmarshal(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode props: %w", err)
	}
	return nil
}

func cloneProps(p Props) Props {
	if raw, ok := p.(RawProps); ok {
		return RawProps(maps.Clone(raw))
	}
	return p
}
