package render

// blockTemplates 是首页区块的 HTML 模板。
// 页面与编辑器预览共用 "element" 与 "section"，保证两处输出一致。
const blockTemplates = `
{{define "element"}}
{{- if eq .Kind "heading"}}{{if .Nested}}<h5 class="el el-heading" data-id="{{.ID}}" data-level="{{.Level}}">{{.Text}}</h5>{{else}}<h4 class="el el-heading" data-id="{{.ID}}" data-level="{{.Level}}">{{.Text}}</h4>{{end}}
{{- else if eq .Kind "text"}}<p class="el el-text" data-id="{{.ID}}">{{.Text}}</p>
{{- else if eq .Kind "image"}}<img class="el el-image" data-id="{{.ID}}" src="{{.Src}}" alt="{{.Alt}}">
{{- else if eq .Kind "video"}}<video class="el el-video" data-id="{{.ID}}" src="{{.Src}}"{{if .Poster}} poster="{{.Poster}}"{{end}}{{if .Controls}} controls{{end}}{{if .Autoplay}} autoplay muted{{end}}{{if .Loop}} loop{{end}}></video>
{{- else if eq .Kind "button"}}<a class="el el-button" data-id="{{.ID}}" href="{{.Href}}">{{.Text}}</a>
{{- else if eq .Kind "feature"}}<div class="el el-feature" data-id="{{.ID}}"><span class="feature-icon">{{.Icon}}</span><div><div class="feature-title">{{.Title}}</div><div class="feature-text">{{.Text}}</div></div></div>
{{- else if eq .Kind "container"}}<div class="el el-container" data-id="{{.ID}}" style="gap: {{.Gap}}px">
{{- range .Children}}{{template "element" .}}{{else}}<div class="el-empty">Empty container</div>{{end -}}
</div>
{{- else}}<div class="el el-unsupported" data-id="{{.ID}}">Unsupported element: {{.Type}}</div>
{{- end}}
{{end}}

{{define "section"}}
<div class="section section-{{.Type}}" data-id="{{.ID}}"{{if .Background}} style="background: {{.Background}}"{{end}}>
{{- if .Title}}<h3 class="section-title">{{.Title}}</h3>{{end}}
{{- if .Canvas}}
<div class="canvas" style="position: relative; height: {{.CanvasHeight}}px">
{{- range .Elements}}<div class="canvas-item" style="{{.Position}}">{{template "element" .}}</div>{{end}}
</div>
{{- else}}
<div class="flow">
{{- range .Elements}}{{template "element" .}}{{end}}
</div>
{{- end}}
</div>
{{end}}

{{define "block"}}
{{- if .Sections}}
<section class="homepage-canvas" aria-labelledby="homepage-canvas">
<h2 id="homepage-canvas">Homepage Canvas</h2>
{{- range .Sections}}{{template "section" .}}{{end}}
</section>
{{- end}}
{{end}}

{{define "preview"}}
<div class="sections-preview">
{{- range .Sections}}{{template "section" .}}{{else}}<p class="preview-empty">No sections yet. Add a section to start.</p>{{end}}
</div>
{{end}}

{{define "page"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { margin: 0; font-family: system-ui, sans-serif; color: #111; }
.homepage-canvas { max-width: 80rem; margin: 0 auto; padding: 4rem 1rem; }
.homepage-canvas h2 { color: #ff914d; }
.section { padding: 1rem; margin-bottom: 2rem; border: 1px solid rgba(255,145,77,.3); border-radius: .5rem; background: #fff; }
.section-title { color: #ff914d; }
.flow > .el + .el { margin-top: .75rem; }
.canvas { border: 1px solid rgba(0,0,0,.2); }
.canvas-item { position: absolute; overflow: hidden; }
.canvas-item img, .canvas-item video { width: 100%; height: 100%; object-fit: cover; }
.el-image, .el-video { max-width: 100%; }
.el-button { display: inline-block; padding: .375rem .75rem; border-radius: .25rem; background: #000; color: #fff; text-decoration: none; }
.el-feature { display: flex; align-items: center; gap: .5rem; }
.el-container { display: flex; flex-direction: column; padding: .75rem; border: 1px solid rgba(0,0,0,.1); }
.el-unsupported, .el-empty { font-size: .75rem; color: rgba(0,0,0,.5); }
</style>
</head>
<body>
{{template "block" .}}
</body>
</html>
{{end}}
`
