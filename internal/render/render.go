package render

import (
	"fmt"
	"html"
	"html/template"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"siteCMS/internal/sections"
)

// DefaultPageTitle 是发布页面的默认标题。
const DefaultPageTitle = "Home"

// Renderer 把区块文档投影为 HTML，首页与编辑器预览使用同一份模板。
// Renderer 可被多个 goroutine 共享。
type Renderer struct {
	tmpl   *template.Template
	strict *bluemonday.Policy
}

// New 解析内置模板。
func New() (*Renderer, error) {
	tmpl, err := template.New("sections").Parse(blockTemplates)
	if err != nil {
		return nil, fmt.Errorf("parse section templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, strict: bluemonday.StrictPolicy()}, nil
}

// MustNew 与 New 相同，解析失败时 panic。
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

type pageView struct {
	Title    string
	Sections []sectionView
}

type sectionView struct {
	ID           string
	Type         string
	Title        string
	Background   string
	Canvas       bool
	CanvasHeight float64
	Elements     []elementView
}

type elementView struct {
	ID       string
	Type     string
	Kind     string
	Nested   bool
	Position template.CSS

	Text     string
	Level    int
	Title    string
	Icon     string
	Src      string
	Alt      string
	Poster   string
	Href     string
	Autoplay bool
	Loop     bool
	Controls bool
	Gap      int
	Children []elementView
}

// Block 输出公开首页的 "Homepage Canvas" 区域；没有区块时不输出任何内容。
func (r *Renderer) Block(w io.Writer, doc sections.Document) error {
	return r.execute(w, "block", r.view(doc, ""))
}

// Preview 输出编辑器预览，没有区块时给出提示文字。
func (r *Renderer) Preview(w io.Writer, doc sections.Document) error {
	return r.execute(w, "preview", r.view(doc, ""))
}

// Page 输出包含区块的完整 HTML 页面，用于发布与截图。
func (r *Renderer) Page(w io.Writer, doc sections.Document, title string) error {
	if strings.TrimSpace(title) == "" {
		title = DefaultPageTitle
	}
	return r.execute(w, "page", r.view(doc, title))
}

func (r *Renderer) execute(w io.Writer, name string, data pageView) error {
	if err := r.tmpl.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

func (r *Renderer) view(doc sections.Document, title string) pageView {
	out := pageView{Title: r.text(title), Sections: make([]sectionView, 0, len(doc.Sections))}
	for _, s := range doc.Sections {
		sv := sectionView{
			ID:           s.ID,
			Type:         string(s.Type),
			Title:        r.text(s.Title),
			Background:   s.Layout.Background,
			Canvas:       s.IsCanvas(),
			CanvasHeight: s.CanvasHeight(),
			Elements:     make([]elementView, 0, len(s.Elements)),
		}
		for _, el := range s.Elements {
			ev := r.element(el, false)
			if sv.Canvas {
				ev.Position = canvasPosition(el.Layout)
			}
			sv.Elements = append(sv.Elements, ev)
		}
		out.Sections = append(out.Sections, sv)
	}
	return out
}

// element 只展开一层 children，更深的嵌套不渲染。
func (r *Renderer) element(el sections.Element, nested bool) elementView {
	ev := elementView{ID: el.ID, Type: r.text(string(el.Type)), Kind: "unsupported", Nested: nested}
	props := el.Props
	if props == nil {
		props = sections.DefaultProps(el.Type)
	}
	switch p := props.(type) {
	case sections.HeadingProps:
		ev.Kind, ev.Text, ev.Level = "heading", r.text(p.Text), p.Level
	case sections.TextProps:
		ev.Kind, ev.Text = "text", r.text(p.Text)
	case sections.ImageProps:
		ev.Kind, ev.Src, ev.Alt = "image", p.Src, r.text(p.Alt)
	case sections.VideoProps:
		ev.Kind, ev.Src, ev.Poster = "video", p.Src, p.Poster
		ev.Autoplay, ev.Loop, ev.Controls = p.Autoplay, p.Loop, p.Controls
	case sections.ButtonProps:
		ev.Kind, ev.Text, ev.Href = "button", r.text(p.Text), p.Href
		if ev.Href == "" {
			ev.Href = "#"
		}
	case sections.FeatureProps:
		ev.Kind, ev.Icon, ev.Title, ev.Text = "feature", r.text(p.Icon), r.text(p.Title), r.text(p.Text)
	case sections.ContainerProps:
		if el.Type == sections.ElementContainer {
			ev.Kind, ev.Gap = "container", p.Gap
			if !nested {
				ev.Children = make([]elementView, 0, len(el.Children))
				for _, child := range el.Children {
					ev.Children = append(ev.Children, r.element(child, true))
				}
			}
		}
	}
	if ev.Kind == "container" && nested {
		// 第二层容器按占位符处理
		ev.Kind = "unsupported"
	}
	return ev
}

// text 去掉用户输入中的标签，再还原实体，最终转义交给 html/template。
func (r *Renderer) text(s string) string {
	if !strings.ContainsAny(s, "<>&") {
		return s
	}
	return html.UnescapeString(r.strict.Sanitize(s))
}

func canvasPosition(layout *sections.CanvasLayout) template.CSS {
	l := sections.DefaultCanvasLayout()
	if layout != nil {
		l = *layout
	}
	return template.CSS(fmt.Sprintf("top: %g%%; left: %g%%; width: %g%%; height: %g%%; z-index: %d",
		l.Top, l.Left, l.Width, l.Height, l.Z))
}
