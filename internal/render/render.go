package render

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gofiber/template/html/v2"
	"github.com/valyala/bytebufferpool"
)

//go:embed templates/mail/*.html
var embedFS embed.FS

// Renderer renders HTML templates by name, e.g. "mail/password-reset-otp".
// Templates in the configured directory take precedence; a template that is
// missing or broken there falls back to the embedded copy.
type Renderer struct {
	override *html.Engine
	embedded *html.Engine
	globals  map[string]interface{}
}

func newEmbeddedEngine() (*html.Engine, error) {
	sub, err := fs.Sub(embedFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	return engine, nil
}

func New(templateDir string, globals map[string]interface{}) (*Renderer, error) {
	embedded, err := newEmbeddedEngine()
	if err != nil {
		return nil, err
	}
	r := &Renderer{embedded: embedded, globals: globals}
	if templateDir != "" {
		info, err := os.Stat(templateDir)
		if err != nil {
			return nil, fmt.Errorf("template directory does not exist: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("template path is not a directory: %s", templateDir)
		}
		r.override = html.NewFileSystem(http.Dir(templateDir), ".html")
		r.override.Reload(true)
	}
	return r, nil
}

func (r *Renderer) RenderHTML(templateName string, vars map[string]interface{}) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	mergedVars := make(map[string]interface{}, len(r.globals)+len(vars))
	for k, v := range r.globals {
		mergedVars[k] = v
	}
	for k, v := range vars {
		mergedVars[k] = v
	}
	templateName = strings.TrimSuffix(templateName, ".html")

	if r.override != nil {
		err := r.override.Render(buf, templateName, mergedVars)
		if err == nil {
			return buf.String(), nil
		}
		slog.Warn("Render template failed, falling back to embedded", "template", templateName, "error", err)
		buf.Reset()
	}

	if err := r.embedded.Render(buf, templateName, mergedVars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
