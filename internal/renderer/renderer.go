// Package renderer turns loaded module handles, loader snapshots and
// navigation failures into HTML.
//
// Pages are built from templ components. Every dynamic value goes through
// templ's escaping before it reaches the writer, so module content fetched
// from disk or a CDN is shown as text and never interpreted as markup.
package renderer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/a-h/templ"
	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/fetch"
	"github.com/conneroisu/modloader/internal/logging"
	"github.com/conneroisu/modloader/internal/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultPreviewLimit caps how much module content a page shows
const DefaultPreviewLimit = 4 * 1024

// PageRenderer renders modloader pages
type PageRenderer struct {
	title        string
	previewLimit int
	logger       logging.Logger
}

// NewPageRenderer creates a renderer. title prefixes every page title.
func NewPageRenderer(title string, logger logging.Logger) *PageRenderer {
	if title == "" {
		title = "modloader"
	}
	return &PageRenderer{
		title:        title,
		previewLimit: DefaultPreviewLimit,
		logger:       logging.OrNop(logger).WithComponent("renderer"),
	}
}

// RenderModule writes the page for a resolved route
func (r *PageRenderer) RenderModule(ctx context.Context, w io.Writer, route string, handle types.ModuleHandle, snapshot types.ModuleSnapshot) error {
	page := r.Layout(snapshot.Key, ModulePage(route, handle, snapshot, r.previewLimit))
	return r.render(ctx, w, page, "module", snapshot.Key)
}

// RenderStatus writes the module status table
func (r *PageRenderer) RenderStatus(ctx context.Context, w io.Writer, snapshots []types.ModuleSnapshot) error {
	return r.render(ctx, w, r.Layout("Modules", StatusTable(snapshots)), "status", "")
}

// RenderError writes the page for a failed navigation
func (r *PageRenderer) RenderError(ctx context.Context, w io.Writer, route string, err error) error {
	return r.render(ctx, w, r.Layout("Error", ErrorPage(route, err)), "error", route)
}

func (r *PageRenderer) render(ctx context.Context, w io.Writer, c templ.Component, page, subject string) error {
	if err := c.Render(ctx, w); err != nil {
		r.logger.Error(ctx, err, "Failed to render page",
			"page", page,
			"subject", subject)
		return err
	}
	return nil
}

// Layout wraps body in a full HTML document. The page subscribes to the
// event stream and reloads when the module it shows finishes loading.
func (r *PageRenderer) Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>%s - %s</title>
    <style>
        body { font-family: system-ui, sans-serif; background: #f9fafb; margin: 2rem; }
        .card { background: #fff; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,.1); padding: 1.5rem; margin-bottom: 1.5rem; }
        table { border-collapse: collapse; width: 100%%; }
        th, td { text-align: left; padding: .5rem; border-bottom: 1px solid #e5e7eb; }
        .state-loaded { color: #047857; }
        .state-loading { color: #b45309; }
        .state-failed { color: #b91c1c; }
        pre { background: #111827; color: #e5e7eb; padding: 1rem; overflow-x: auto; }
    </style>
</head>
<body>
<main>
`, templ.EscapeString(title), templ.EscapeString(r.title)); err != nil {
			return err
		}
		if body != nil {
			if err := body.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</main>
<script>
    // Event stream for live status
    const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
    ws.onmessage = function(event) {
        const message = JSON.parse(event.data);
        const card = document.querySelector('.card[data-module]');
        if (card && message.type === 'module_load_succeeded' && message.key === card.dataset.module) {
            window.location.reload();
        }
    };
</script>
</body>
</html>`)
		return err
	})
}

// ModulePage shows a resolved module. Handles produced by the fetch layer get
// their metadata and a content preview; any other handle is printed as is.
func ModulePage(route string, handle types.ModuleHandle, snapshot types.ModuleSnapshot, previewLimit int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		fmt.Fprintf(&b, `<div class="card" data-module="%s">`, templ.EscapeString(snapshot.Key))
		fmt.Fprintf(&b, `<h1>%s</h1>`, templ.EscapeString(snapshot.Key))
		fmt.Fprintf(&b, `<p>Route <code>%s</code> <span class="%s">%s</span></p>`,
			templ.EscapeString(route), stateClass(snapshot.State), templ.EscapeString(StateLabel(snapshot.State)))

		b.WriteString(`<dl>`)
		module, ok := handle.(*fetch.Module)
		if ok {
			writeField(&b, "Source", module.Source)
			writeField(&b, "Content type", module.ContentType)
			writeField(&b, "Size", fmt.Sprintf("%d bytes", module.Size))
			writeField(&b, "Hash", module.Hash)
			writeField(&b, "Fetched", module.FetchedAt.Format("2006-01-02 15:04:05"))
		} else {
			writeField(&b, "Handle", fmt.Sprintf("%v", handle))
		}
		if snapshot.LastDuration > 0 {
			writeField(&b, "Load time", snapshot.LastDuration.String())
		}
		b.WriteString(`</dl>`)

		if ok {
			if preview, truncated := contentPreview(module.Content, previewLimit); preview != "" {
				fmt.Fprintf(&b, `<pre class="preview">%s</pre>`, templ.EscapeString(preview))
				if truncated {
					b.WriteString(`<p class="truncated">Preview truncated</p>`)
				}
			}
		}
		b.WriteString(`</div>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

// StatusTable lists every module record
func StatusTable(snapshots []types.ModuleSnapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		b.WriteString(`<div class="card"><h1>Modules</h1>`)
		if len(snapshots) == 0 {
			b.WriteString(`<p class="empty">No modules registered</p></div>`)
			_, err := io.WriteString(w, b.String())
			return err
		}

		b.WriteString(`<table><thead><tr><th>Module</th><th>State</th><th>Attempts</th><th>Error</th></tr></thead><tbody>`)
		for _, s := range snapshots {
			fmt.Fprintf(&b, `<tr data-module="%s"><td><a href="/navigate/%s">%s</a></td><td class="%s">%s</td><td>%d</td><td>%s</td></tr>`,
				templ.EscapeString(s.Key),
				templ.EscapeString(s.Key),
				templ.EscapeString(s.Key),
				stateClass(s.State),
				templ.EscapeString(StateLabel(s.State)),
				s.Attempts,
				templ.EscapeString(s.ErrorMessage()))
		}
		b.WriteString(`</tbody></table></div>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ErrorPage describes a failed navigation
func ErrorPage(route string, err error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		status := StatusCode(err)

		var b strings.Builder
		fmt.Fprintf(&b, `<div class="card error" data-status="%d">`, status)
		fmt.Fprintf(&b, `<h1>%d %s</h1>`, status, templ.EscapeString(http.StatusText(status)))
		fmt.Fprintf(&b, `<p>Route <code>%s</code> could not be loaded.</p>`, templ.EscapeString(route))
		if err != nil {
			fmt.Fprintf(&b, `<pre class="message">%s</pre>`, templ.EscapeString(err.Error()))
		}
		if code := errors.GetErrorCode(err); code != "" {
			fmt.Fprintf(&b, `<p class="code">%s</p>`, templ.EscapeString(code))
		}
		if errors.IsRecoverable(err) {
			b.WriteString(`<p><a href="">Retry</a></p>`)
		}
		b.WriteString(`</div>`)

		_, werr := io.WriteString(w, b.String())
		return werr
	})
}

// StatusCode maps a navigation error to an HTTP status
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.IsRouteMisconfigured(err), errors.IsUnknownModule(err):
		return http.StatusNotFound
	case errors.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.IsCanceled(err):
		return http.StatusServiceUnavailable
	case errors.IsLoadError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var titleCaser = cases.Title(language.English)

// StateLabel returns a human readable label such as "Not Loaded"
func StateLabel(state types.ModuleState) string {
	return titleCaser.String(strings.ReplaceAll(string(state), "_", " "))
}

func stateClass(state types.ModuleState) string {
	return "state-" + strings.ReplaceAll(string(state), "_", "-")
}

func writeField(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, `<dt>%s</dt><dd>%s</dd>`, templ.EscapeString(name), templ.EscapeString(value))
}

// contentPreview returns at most limit bytes of text content, cut on a rune
// boundary. Binary content yields an empty preview.
func contentPreview(content []byte, limit int) (string, bool) {
	if len(content) == 0 || !utf8.Valid(content) {
		return "", false
	}
	if limit <= 0 || len(content) <= limit {
		return string(content), false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return string(content[:cut]), true
}
