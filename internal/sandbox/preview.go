package sandbox

import (
	"fmt"
	"html"
	"net/http"
	"sync"
)

// SandboxPolicy isolates the preview document: scripts may run, but the
// document gets an opaque origin and cannot submit forms, open popups or
// navigate the top window.
const SandboxPolicy = "sandbox allow-scripts"

// Preview is the isolated render surface. Every Render replaces the whole
// document; there is no diffing.
type Preview struct {
	mu       sync.RWMutex
	source   string
	revision uint64
}

// Render writes doc wholesale into the preview.
func (p *Preview) Render(doc string) {
	p.mu.Lock()
	p.source = doc
	p.revision++
	p.mu.Unlock()
}

// Source returns the document currently rendered.
func (p *Preview) Source() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// Revision increases on every render.
func (p *Preview) Revision() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.revision
}

// ServeHTTP serves the rendered document under the sandbox policy.
func (p *Preview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	src, rev := p.source, p.revision
	p.mu.RUnlock()

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", SandboxPolicy)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Preview-Revision", fmt.Sprint(rev))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(src))
}

// Frame returns the iframe markup embedding the preview served at src.
func Frame(src string, revision uint64) string {
	return fmt.Sprintf(`<iframe class="sandbox-preview" title="Preview" sandbox="allow-scripts" referrerpolicy="no-referrer" src="%s?rev=%d"></iframe>`,
		html.EscapeString(src), revision)
}
