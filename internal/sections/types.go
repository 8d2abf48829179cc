package sections

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CurrentVersion 是当前持久化文档的结构版本。
const CurrentVersion = 1

// SectionType 决定区块使用流式布局还是画布（绝对定位）布局。
type SectionType string

const (
	SectionHero     SectionType = "hero"
	SectionFeatures SectionType = "features"
	SectionCustom   SectionType = "custom"
	SectionCanvas   SectionType = "canvas"
)

// ElementType 决定元素的 props 结构与渲染方式。
type ElementType string

const (
	ElementHeading   ElementType = "heading"
	ElementText      ElementType = "text"
	ElementImage     ElementType = "image"
	ElementVideo     ElementType = "video"
	ElementButton    ElementType = "button"
	ElementFeature   ElementType = "feature"
	ElementContainer ElementType = "container"
)

// PaletteTypes 是编辑器组件面板中可拖拽的元素类型，顺序即展示顺序。
var PaletteTypes = []ElementType{
	ElementHeading,
	ElementText,
	ElementImage,
	ElementVideo,
	ElementButton,
	ElementFeature,
	ElementContainer,
}

// DefaultCanvasHeight 是画布区块未设置高度时使用的像素高度。
const DefaultCanvasHeight = 600

// Document 是首页区块文档，作为一个整体读写。
type Document struct {
	Version  int       `json:"version"`
	Sections []Section `json:"sections"`
}

// Section 表示首页上的一个顶层内容块。
type Section struct {
	ID       string         `json:"id"`
	Type     SectionType    `json:"type"`
	Title    string         `json:"title,omitempty"`
	Layout   SectionLayout  `json:"layout"`
	Styles   map[string]any `json:"styles"`
	Elements []Element      `json:"elements"`
}

// SectionLayout 描述区块级别的布局参数。
// 其余键原样保存在 Extra 中，写回时不丢失。
type SectionLayout struct {
	Background   string
	CanvasHeight float64
	Extra        map[string]json.RawMessage
}

// Element 表示区块中的单个内容单元。
// Children 仅对 container 有意义；Layout 仅在画布区块中使用。
type Element struct {
	ID       string
	Type     ElementType
	Props    Props
	Children []Element
	Layout   *CanvasLayout
}

// CanvasLayout 以百分比描述画布元素的位置与尺寸，Z 为层级。
// 未识别的键保存在 Extra 中。
type CanvasLayout struct {
	Top    float64
	Left   float64
	Width  float64
	Height float64
	Z      int
	Extra  map[string]json.RawMessage
}

// New 返回一个空文档。
func New() Document {
	return Document{Version: CurrentVersion, Sections: []Section{}}
}

// IsCanvas 报告区块是否使用绝对定位布局。
func (s Section) IsCanvas() bool {
	return s.Type == SectionCanvas
}

// CanvasHeight 返回画布高度，未设置时回落到默认值。
func (s Section) CanvasHeight() float64 {
	if s.Layout.CanvasHeight > 0 {
		return s.Layout.CanvasHeight
	}
	return DefaultCanvasHeight
}

// DefaultCanvasLayout 是向画布区块追加元素时使用的默认位置。
func DefaultCanvasLayout() CanvasLayout {
	return CanvasLayout{Top: 10, Left: 10, Width: 30, Height: 20, Z: 1}
}

// DroppedCanvasLayout 是从面板拖入画布时使用的位置，尺寸比默认值小。
func DroppedCanvasLayout(left, top float64) CanvasLayout {
	return CanvasLayout{Top: top, Left: left, Width: 20, Height: 15, Z: 1}
}

// NewElement 构造带默认 props 的元素，未知类型按原样保存并使用空 props。
func NewElement(t ElementType) Element {
	el := Element{
		ID:    NewID(string(t)),
		Type:  t,
		Props: DefaultProps(t),
	}
	if t == ElementContainer {
		el.Children = []Element{}
	}
	return el
}

// NewSection 构造一个空区块，标题取类型名首字母大写。
func NewSection(t SectionType) Section {
	return Section{
		ID:       NewID(string(t)),
		Type:     t,
		Title:    capitalize(string(t)),
		Layout:   SectionLayout{},
		Styles:   map[string]any{},
		Elements: []Element{},
	}
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID 生成 "<prefix>-<6 位 base36>" 形式的 ID，唯一性是概率性的。
func NewID(prefix string) string {
	if prefix == "" {
		prefix = "id"
	}
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	max := big.NewInt(int64(len(idAlphabet)))
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			b.WriteByte(idAlphabet[i])
			continue
		}
		b.WriteByte(idAlphabet[n.Int64()])
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
