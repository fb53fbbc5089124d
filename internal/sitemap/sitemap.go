// Package sitemap turns the route manifest into sitemap.xml.
package sitemap

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
)

const xmlns = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Route is one manifest entry.
type Route struct {
	Path       string   `json:"path"`
	ChangeFreq string   `json:"changefreq,omitempty"`
	Priority   *float64 `json:"priority,omitempty"`
	NoIndex    bool     `json:"noindex,omitempty"`
	Private    bool     `json:"private,omitempty"`
	LastMod    string   `json:"lastmod,omitempty"`
}

// Manifest lists the public routes of the site.
type Manifest struct {
	BaseURL string  `json:"baseUrl"`
	Routes  []Route `json:"routes"`
}

// URL is a <url> element.
type URL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// URLSet is the document root.
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// ReadManifest decodes a manifest and checks its base URL.
func ReadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	u, err := url.Parse(m.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Manifest{}, fmt.Errorf("manifest baseUrl %q is not an absolute URL", m.BaseURL)
	}
	return m, nil
}

// Indexable reports whether the route belongs in the sitemap.
func Indexable(r Route) bool {
	if r.NoIndex || r.Private {
		return false
	}
	p := strings.TrimSpace(r.Path)
	if p == "" {
		return false
	}
	return !strings.Contains(p, ":") && !strings.Contains(p, "*")
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// Build filters the manifest and returns entries sorted by path. The first
// entry for a duplicated path wins.
func Build(m Manifest) URLSet {
	base := strings.TrimRight(strings.TrimSpace(m.BaseURL), "/")
	byPath := make(map[string]Route)
	for _, r := range m.Routes {
		if !Indexable(r) {
			continue
		}
		p := normalizePath(r.Path)
		if _, ok := byPath[p]; ok {
			continue
		}
		byPath[p] = r
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	set := URLSet{Xmlns: xmlns, URLs: make([]URL, 0, len(paths))}
	for _, p := range paths {
		r := byPath[p]
		u := URL{Loc: base + p, LastMod: r.LastMod, ChangeFreq: r.ChangeFreq}
		if r.Priority != nil {
			u.Priority = fmt.Sprintf("%.1f", *r.Priority)
		}
		set.URLs = append(set.URLs, u)
	}
	return set
}

// Write renders the sitemap document.
func Write(w io.Writer, set URLSet) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return fmt.Errorf("encode sitemap: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
