package layout

import (
	"fmt"
	"html/template"
	"strings"
)

// RenderHTML turns the block sequence into the print-styled document. The
// markup carries two-column flow, page size and break rules as CSS; actual
// pagination belongs to the PDF engine.
func RenderHTML(blocks []Block, conf Conf) (string, error) {
	var out strings.Builder
	err := docTemplate.Execute(&out, struct {
		Conf   Conf
		Blocks []Block
	}{conf, blocks})
	if err != nil {
		return "", fmt.Errorf("rendering document markup: %w", err)
	}
	return out.String(), nil
}

var docTemplate = template.Must(template.New("edition").Parse(docTemplateText))

const docTemplateText = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Conf.Masthead}}</title>
<style>
@import url('https://fonts.googleapis.com/css2?family=Playfair+Display:wght@400;700;900&family=Source+Serif+4:opsz,wght@8..60,400;8..60,600&family=Inter:wght@400;500&display=swap');

@page {
    size: letter;
    margin: 0.4in 0.4in;
}

* {
    box-sizing: border-box;
}

body {
    font-family: 'Source Serif 4', Georgia, serif;
    font-size: 10pt;
    line-height: 1.5;
    color: #1a1a1a;
    margin: 0;
    padding: 0;
    column-count: {{.Conf.Columns}};
    -webkit-column-count: {{.Conf.Columns}};
    column-gap: 0.25in;
    -webkit-column-gap: 0.25in;
    column-rule: 1px solid #ddd;
    -webkit-column-rule: 1px solid #ddd;
    text-align: justify;
}

.masthead {
    column-span: all;
    -webkit-column-span: all;
    text-align: center;
    border-bottom: 2px solid #1a1a1a;
    padding-bottom: 0.08in;
    margin-bottom: 0.12in;
}

.masthead h1 {
    font-family: 'Playfair Display', serif;
    font-size: 36pt;
    font-weight: 900;
    letter-spacing: 0.02em;
    margin: 0;
    text-transform: uppercase;
}

.masthead .tagline {
    font-family: 'Inter', sans-serif;
    font-size: 6pt;
    text-transform: uppercase;
    letter-spacing: 0.25em;
    color: #555;
    margin-top: 0.04in;
}

.masthead .date {
    font-family: 'Inter', sans-serif;
    font-size: 7pt;
    margin-top: 0.04in;
    color: #333;
}

.section-header {
    border-bottom: 1px solid #1a1a1a;
    margin-top: 0.12in;
    margin-bottom: 0.1in;
    padding-bottom: 0.04in;
    break-inside: avoid;
    -webkit-column-break-inside: avoid;
}

.section-header h2 {
    font-family: 'Playfair Display', serif;
    font-size: 16pt;
    font-weight: 700;
    margin: 0;
    color: #1a1a1a;
}

.section-header.voices h2 {
    color: #5d4a00;
}

.section-header .section-desc {
    font-family: 'Inter', sans-serif;
    font-size: 7pt;
    color: #666;
    margin-top: 0.02in;
}

.post {
    margin-bottom: 0.15in;
    padding-top: 0.06in;
    padding-bottom: 0.1in;
    border-bottom: 1px solid #e0e0e0;
    break-inside: avoid;
    -webkit-column-break-inside: avoid;
}

.post.favorite-post {
    margin-left: -0.04in;
    padding-left: 0.04in;
    border-left: 2px solid #c9a227;
}

.post-header {
    margin-bottom: 0.02in;
}

.author-name {
    font-family: 'Inter', sans-serif;
    font-weight: 500;
    font-size: 8pt;
    color: #1a1a1a;
}

.author-name.favorite {
    font-weight: 600;
}

.author-handle {
    font-family: 'Inter', sans-serif;
    font-size: 6.5pt;
    color: #666;
}

.repost-indicator {
    font-family: 'Inter', sans-serif;
    font-size: 6.5pt;
    color: #2a7;
    margin-bottom: 0.02in;
}

.reply-context {
    background: #f0f0f0;
    border-left: 2px solid #999;
    padding: 0.03in 0.08in;
    margin-bottom: 0.04in;
    font-size: 8pt;
    font-style: italic;
    color: #444;
}

.post-text {
    margin: 0.02in 0;
}

.quote-post {
    background: #f8f8f8;
    border-left: 2px solid #ccc;
    padding: 0.04in 0.08in;
    margin: 0.04in 0;
    font-size: 8pt;
}

.quote-post .quote-author {
    font-family: 'Inter', sans-serif;
    font-weight: 500;
    font-size: 7pt;
    color: #444;
    margin-bottom: 0.01in;
}

.quote-post .quote-text {
    color: #333;
}

.external-link {
    background: #f5f5f5;
    padding: 0.03in 0.05in;
    margin: 0.03in 0;
    border: 1px solid #e0e0e0;
}

.external-link .link-title {
    font-family: 'Inter', sans-serif;
    font-weight: 500;
    font-size: 7.5pt;
    color: #1a5fb4;
}

.external-link .link-desc {
    font-size: 7pt;
    color: #555;
    margin-top: 0.01in;
}

.post-images {
    margin: 0.04in 0;
}

.post-images img {
    max-width: 100%;
    border: 1px solid #ddd;
    margin-bottom: 0.04in;
    background: #fafafa;
}

.image-alt {
    font-family: 'Inter', sans-serif;
    font-size: 6pt;
    color: #666;
    font-style: italic;
}

.post-stats {
    font-family: 'Inter', sans-serif;
    font-size: 6.5pt;
    color: #888;
    margin-top: 0.02in;
}

.post-stats span {
    margin-right: 0.1in;
}

.post-time {
    font-family: 'Inter', sans-serif;
    font-size: 6.5pt;
    color: #888;
    display: block;
    text-align: right;
    margin-top: 0.03in;
}

.wordcloud {
    column-span: all;
    -webkit-column-span: all;
    text-align: center;
    margin-top: 0.2in;
}

.wordcloud img {
    max-width: 100%;
}
</style>
</head>
<body>
{{- range .Blocks}}
{{- if eq .Kind "masthead"}}
<div class="masthead">
<h1>{{.Masthead}}</h1>
<div class="tagline">{{.Tagline}}</div>
<div class="date">{{.DateLine}}</div>
</div>
{{- else if eq .Kind "section-header"}}
<div class="section-header{{if .Starred}} voices{{end}}">
<h2>{{if .Starred}}&#9733; {{end}}{{.Heading}}</h2>
{{- if .Description}}
<div class="section-desc">{{.Description}}</div>
{{- end}}
</div>
{{- else if eq .Kind "post"}}
{{- template "post" .Post}}
{{- else if eq .Kind "wordcloud"}}
<div class="wordcloud">
<img src="{{.Cloud.Src}}" alt="{{.Cloud.Alt}}" width="{{.Cloud.Width}}" height="{{.Cloud.Height}}">
</div>
{{- end}}
{{- end}}
</body>
</html>
{{- define "post"}}
<div class="post{{if .Favorite}} favorite-post{{end}}">
{{- if .RepostedBy}}
<div class="repost-indicator">&#8635; {{.RepostedBy}} reposted</div>
{{- end}}
<div class="post-header">
<span class="author-name{{if .Favorite}} favorite{{end}}">{{if .Favorite}}&#9733; {{end}}{{.AuthorName}}</span>
<span class="author-handle">@{{.AuthorHandle}}</span>
</div>
{{- if .Context}}
<div class="reply-context">{{.Context}}</div>
{{- end}}
<div class="post-text">{{.Text}}</div>
{{- if .Images}}
<div class="post-images{{if .MultiImage}} multi{{end}}">
{{- range .Images}}
<img src="{{.Src}}"{{if .Width}} width="{{.Width}}"{{end}}{{if .Height}} height="{{.Height}}"{{end}} alt="{{.Alt}}">
{{- if .Alt}}
<div class="image-alt">{{.Alt}}</div>
{{- end}}
{{- end}}
</div>
{{- end}}
{{- if .Quote}}
<div class="quote-post">
<div class="quote-author">{{.Quote.AuthorName}} <span class="author-handle">@{{.Quote.AuthorHandle}}</span></div>
<div class="quote-text">{{.Quote.Text}}</div>
{{- if .Quote.Images}}
<div class="quote-images">
{{- range .Quote.Images}}
<img src="{{.Src}}"{{if .Width}} width="{{.Width}}"{{end}}{{if .Height}} height="{{.Height}}"{{end}} alt="{{.Alt}}">
{{- end}}
</div>
{{- end}}
</div>
{{- end}}
{{- if .Link}}
<div class="external-link">
<div class="link-title">{{.Link.Title}}</div>
{{- if .Link.Description}}
<div class="link-desc">{{.Link.Description}}</div>
{{- end}}
</div>
{{- end}}
{{- if .ShowStats}}
<div class="post-stats">
<span>&#9829; {{.Likes}}</span><span>&#8635; {{.Reposts}}</span><span>{{.Replies}} replies</span>
</div>
{{- end}}
{{- if .TimeLine}}
<span class="post-time">{{.TimeLine}}</span>
{{- end}}
</div>
{{- end}}
`
