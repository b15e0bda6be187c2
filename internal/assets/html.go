package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	htmltemplate "html/template"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	texttemplate "text/template"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/buildplan/internal/plan"
)

const defaultHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
</body>
</html>
`

type executor interface {
	Execute(w io.Writer, data any) error
}

// renderHTML renders the html plugin template and injects the entry scripts and
// styles produced by the last build. Templates ending in .html use html/template,
// anything else (for example index.php) uses text/template.
func (p *Pipeline) renderHTML(buildLog zerolog.Logger, opts plan.Mapping) error {
	templatePath, _ := opts.Str("template")
	filename, _ := opts.Str("filename")
	if filename == "" {
		filename = "index.html"
	}
	title, _ := opts.Str("title")
	inject := true
	if v, ok := opts.Bool("inject"); ok {
		inject = v
	}

	source := defaultHTMLTemplate
	if templatePath != "" {
		data, err := os.ReadFile(p.path(templatePath))
		if err != nil {
			return err
		}
		source = string(data)
	}

	tmpl, err := parseTemplate(filepath.Base(templatePath), source)
	if err != nil {
		return err
	}

	scripts, styles := p.entryAssets()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{
		"Title":   title,
		"Scripts": scripts,
		"Styles":  styles,
		"Mode":    p.config.Mode,
	}); err != nil {
		return err
	}

	out := buf.String()
	if inject {
		out = injectTags(out, scripts, styles, p.config.Format == api.FormatESModule)
	}

	target := filepath.Join(p.OutputDir(), filepath.FromSlash(filename))
	if filepath.IsAbs(filename) {
		target = filename
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(target, []byte(out), 0o644); err != nil { //nolint:gosec
		return err
	}

	buildLog.Debug().Str("file", target).Strs("scripts", scripts).Strs("styles", styles).Msg("Rendered html")
	return nil
}

func parseTemplate(name, source string) (executor, error) {
	if name == "" || name == "." {
		name = "index.html"
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return htmltemplate.New(name).Funcs(htmltemplate.FuncMap{
			"marshal": marshal,
			"safe": func(s string) htmltemplate.HTML {
				return htmltemplate.HTML(s) //nolint:gosec
			},
		}).Parse(source)
	default:
		return texttemplate.New(name).Funcs(texttemplate.FuncMap{
			"marshal": marshal,
			"safe":    func(s string) string { return s },
		}).Parse(source)
	}
}

// entryAssets returns script and style URLs for every entry point in the metafile.
func (p *Pipeline) entryAssets() ([]string, []string) {
	if p.metadata == nil {
		return nil, nil
	}

	var scripts, styles []string
	seen := map[string]bool{}

	for _, outputPath := range slices.Sorted(maps.Keys(p.metadata.Outputs)) {
		info := p.metadata.Outputs[outputPath]
		if info.EntryPoint == "" {
			continue
		}
		if strings.HasSuffix(outputPath, ".css") {
			if !seen[outputPath] {
				seen[outputPath] = true
				styles = append(styles, p.assetURL(outputPath))
			}
			continue
		}
		if info.CSSBundle != "" && !seen[info.CSSBundle] {
			seen[info.CSSBundle] = true
			styles = append(styles, p.assetURL(info.CSSBundle))
		}
		entryScripts, _, err := p.loadScripts(info.EntryPoint)
		if err != nil {
			continue
		}
		for _, s := range entryScripts {
			if !seen[s] {
				seen[s] = true
				scripts = append(scripts, s)
			}
		}
	}

	return scripts, styles
}

// injectTags adds link and script tags that the rendered template does not already
// reference. Styles go before </head>, scripts before </body>.
func injectTags(doc string, scripts, styles []string, module bool) string {
	var links strings.Builder
	for _, href := range styles {
		if strings.Contains(doc, href) {
			continue
		}
		links.WriteString(`<link href="` + htmltemplate.HTMLEscapeString(href) + `" rel="stylesheet">` + "\n")
	}

	attr := "defer"
	if module {
		attr = `type="module"`
	}
	var tags strings.Builder
	for _, src := range scripts {
		if strings.Contains(doc, src) {
			continue
		}
		tags.WriteString(`<script ` + attr + ` src="` + htmltemplate.HTMLEscapeString(src) + `"></script>` + "\n")
	}

	doc = insertBefore(doc, "</head>", links.String(), true)
	return insertBefore(doc, "</body>", tags.String(), false)
}

func insertBefore(doc, marker, content string, prepend bool) string {
	if content == "" {
		return doc
	}
	if idx := strings.LastIndex(strings.ToLower(doc), marker); idx != -1 {
		return doc[:idx] + content + doc[idx:]
	}
	if prepend {
		return content + doc
	}
	return doc + content
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}
