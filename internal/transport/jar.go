package transport

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookie is the persisted form of one cookie together with the URL it was
// received from.
type Cookie struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Jar is an http.CookieJar that remembers what it was given so the whole
// jar can be written out and restored later. Lookups are served by a
// standard cookiejar.Jar.
type Jar struct {
	mu      sync.Mutex
	jar     *cookiejar.Jar
	entries map[string]Cookie
}

// NewJar creates an empty Jar using the public suffix list for domain rules.
func NewJar() (*Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Jar{jar: jar, entries: make(map[string]Cookie)}, nil
}

func cookieKey(u *url.URL, c *http.Cookie) string {
	domain := c.Domain
	if domain == "" {
		domain = u.Hostname()
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return domain + ";" + path + ";" + c.Name
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
	now := time.Now()
	for _, c := range cookies {
		key := cookieKey(u, c)
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			delete(j.entries, key)
			continue
		}
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		j.entries[key] = Cookie{
			URL:      origin,
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Snapshot returns every live cookie the jar has seen, ordered by key.
func (j *Jar) Snapshot() []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	keys := make([]string, 0, len(j.entries))
	now := time.Now()
	for k, c := range j.entries {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Cookie, 0, len(keys))
	for _, k := range keys {
		out = append(out, j.entries[k])
	}
	return out
}

// Restore loads a snapshot into the jar. Expired cookies are skipped.
func (j *Jar) Restore(cookies []Cookie) error {
	byURL := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		byURL[c.URL] = append(byURL[c.URL], &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	for raw, batch := range byURL {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse cookie url %q: %w", raw, err)
		}
		j.SetCookies(u, batch)
	}
	return nil
}
