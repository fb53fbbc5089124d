package apiclient

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// recordingJar is a cookie jar that also remembers every cookie with its
// attributes. cookiejar.Jar.Cookies only hands back name and value, which
// is not enough to restore a visitor session later.
type recordingJar struct {
	jar *cookiejar.Jar
	now func() time.Time

	mu   sync.Mutex
	full map[string]*http.Cookie
}

func newRecordingJar() (*recordingJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &recordingJar{jar: jar, now: time.Now, full: make(map[string]*http.Cookie)}, nil
}

func cookieKey(c *http.Cookie) string {
	return c.Domain + "|" + c.Path + "|" + c.Name
}

// defaultPath is the RFC 6265 default cookie path of a request path.
func defaultPath(p string) string {
	i := strings.LastIndex(p, "/")
	if p == "" || p[0] != '/' || i <= 0 {
		return "/"
	}
	return p[:i]
}

func (j *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		cp := *c
		if cp.Path == "" {
			cp.Path = defaultPath(u.Path)
		}
		key := cookieKey(&cp)
		if c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(now)) {
			delete(j.full, key)
			continue
		}
		if cp.MaxAge > 0 {
			cp.Expires = now.Add(time.Duration(cp.MaxAge) * time.Second)
			cp.MaxAge = 0
		}
		cp.Raw, cp.RawExpires, cp.Unparsed = "", "", nil
		j.full[key] = &cp
	}
}

func (j *recordingJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Snapshot returns copies of the live cookies, ordered by path then name.
func (j *recordingJar) Snapshot() []*http.Cookie {
	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*http.Cookie, 0, len(j.full))
	for key, c := range j.full {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			delete(j.full, key)
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Path != out[b].Path {
			return out[a].Path < out[b].Path
		}
		return out[a].Name < out[b].Name
	})
	return out
}
