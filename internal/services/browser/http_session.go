package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

// HTTPConfig holds configuration for the script-less HTTP back end
type HTTPConfig struct {
	UserAgent            string
	PageTimeout          time.Duration
	PollInterval         time.Duration
	TransientStatusCodes []int
}

// HTTPBackend serves sessions backed by net/http and a goquery DOM. Links are
// followed and forms submitted; page scripts never run.
type HTTPBackend struct {
	config    HTTPConfig
	transient transientStatuses
	pacer     *Pacer
	logger    arbor.ILogger
}

// NewHTTPBackend creates a new HTTP back end
func NewHTTPBackend(config HTTPConfig, pacer *Pacer, logger arbor.ILogger) *HTTPBackend {
	if config.PageTimeout <= 0 {
		config.PageTimeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	return &HTTPBackend{
		config:    config,
		transient: newTransientStatuses(config.TransientStatusCodes),
		pacer:     pacer,
		logger:    logger,
	}
}

// NewSession creates a session with its own cookie jar
func (b *HTTPBackend) NewSession(ctx context.Context, opts SessionOptions) (interfaces.BrowserSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &HTTPSession{
		client: &http.Client{
			Jar:     jar,
			Timeout: b.config.PageTimeout,
		},
		backend: b,
		opts:    opts,
		visited: make(map[string]*url.URL),
		values:  make(map[string]string),
	}, nil
}

// Close is a no-op; sessions hold no shared resources
func (b *HTTPBackend) Close() error {
	return nil
}

// HTTPSession implements interfaces.BrowserSession over plain HTTP
type HTTPSession struct {
	client  *http.Client
	backend *HTTPBackend
	opts    SessionOptions

	mu      sync.Mutex
	current *url.URL
	doc     *goquery.Document
	visited map[string]*url.URL // scheme://host -> origin, for cookie export
	values  map[string]string   // form values set through Fill, by input name
}

func (s *HTTPSession) resolve(raw string) (*url.URL, error) {
	target, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if s.current != nil {
		target = s.current.ResolveReference(target)
	}
	if !target.IsAbs() {
		return nil, fmt.Errorf("cannot resolve relative url %q without a current page", raw)
	}
	return target, nil
}

func (s *HTTPSession) load(ctx context.Context, method string, target *url.URL, body io.Reader, contentType string) error {
	if err := s.backend.pacer.Wait(ctx, target.String()); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if s.backend.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.backend.config.UserAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	s.backend.transient.report(s.opts.OnTransientSignal, resp.StatusCode, resp.Request.URL.String(), flattenHeaders(resp.Header))

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", target, err)
	}

	s.doc = doc
	s.current = resp.Request.URL
	s.values = make(map[string]string)
	origin := &url.URL{Scheme: s.current.Scheme, Host: s.current.Host, Path: "/"}
	s.visited[origin.Scheme+"://"+origin.Host] = origin
	return nil
}

// Navigate issues a GET for rawURL, resolved against the current page
func (s *HTTPSession) Navigate(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.resolve(rawURL)
	if err != nil {
		return err
	}
	return s.load(ctx, http.MethodGet, target, nil, "")
}

// CurrentURL returns the URL of the loaded page after redirects
func (s *HTTPSession) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return "", nil
	}
	return s.current.String(), nil
}

func (s *HTTPSession) find(selector string) *goquery.Selection {
	if s.doc == nil {
		return nil
	}
	sel := s.doc.Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return sel.First()
}

// Exists reports whether the selector matches on the loaded page
func (s *HTTPSession) Exists(ctx context.Context, selector string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(selector) != nil, nil
}

// Text returns the text content of the first match
func (s *HTTPSession) Text(ctx context.Context, selector string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.find(selector)
	if sel == nil {
		return "", false, nil
	}
	return sel.Text(), true, nil
}

// Attribute returns an attribute of the first match
func (s *HTTPSession) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.find(selector)
	if sel == nil {
		return "", false, nil
	}
	value, ok := sel.Attr(name)
	return value, ok, nil
}

// HTML returns the outer HTML of the first match
func (s *HTTPSession) HTML(ctx context.Context, selector string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.find(selector)
	if sel == nil {
		return "", false, nil
	}
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", false, err
	}
	return html, true, nil
}

// Fill records a value for the named input; it is sent on the next form submit
func (s *HTTPSession) Fill(ctx context.Context, selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.find(selector)
	if sel == nil {
		return fmt.Errorf("fill %s: element not found", selector)
	}
	name, ok := sel.Attr("name")
	if !ok || name == "" {
		name, _ = sel.Attr("id")
	}
	if name == "" {
		return fmt.Errorf("fill %s: element has no name", selector)
	}
	s.values[name] = value
	return nil
}

// Click follows a link or submits the enclosing form. Script-only buttons
// are accepted and ignored.
func (s *HTTPSession) Click(ctx context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.find(selector)
	if sel == nil {
		return fmt.Errorf("click %s: element not found", selector)
	}

	if goquery.NodeName(sel) == "a" {
		href, _ := sel.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return nil
		}
		target, err := s.resolve(href)
		if err != nil {
			return err
		}
		return s.load(ctx, http.MethodGet, target, nil, "")
	}

	switch strings.ToLower(sel.AttrOr("type", "")) {
	case "button", "reset":
		return nil
	}

	form := sel.Closest("form")
	if form.Length() == 0 {
		return nil
	}
	return s.submit(ctx, form, sel)
}

func (s *HTTPSession) submit(ctx context.Context, form, submitter *goquery.Selection) error {
	values := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		inputType := strings.ToLower(field.AttrOr("type", "text"))
		switch inputType {
		case "submit", "button", "image", "reset":
			return
		case "checkbox", "radio":
			if _, checked := field.Attr("checked"); !checked {
				return
			}
		}
		if goquery.NodeName(field) == "textarea" {
			values.Set(name, field.Text())
			return
		}
		values.Set(name, field.AttrOr("value", ""))
	})
	for name, value := range s.values {
		values.Set(name, value)
	}
	if name, ok := submitter.Attr("name"); ok && name != "" {
		values.Set(name, submitter.AttrOr("value", ""))
	}

	action, err := s.resolve(form.AttrOr("action", ""))
	if err != nil {
		return err
	}

	if strings.EqualFold(form.AttrOr("method", "get"), http.MethodPost) {
		return s.load(ctx, http.MethodPost, action, bytes.NewBufferString(values.Encode()), "application/x-www-form-urlencoded")
	}

	action.RawQuery = values.Encode()
	return s.load(ctx, http.MethodGet, action, nil, "")
}

// WaitFor polls for selector, reloading the current page between checks
func (s *HTTPSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	interval := s.backend.config.PollInterval

	for {
		s.mu.Lock()
		found := s.find(selector) != nil
		current := s.current
		s.mu.Unlock()

		if found {
			return nil
		}
		if time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("%w: %s", interfaces.ErrWaitTimeout, selector)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if current == nil {
			continue
		}
		s.mu.Lock()
		err := s.load(ctx, http.MethodGet, current, nil, "")
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

// Cookies returns the cookies held for every origin this session visited
func (s *HTTPSession) Cookies(ctx context.Context) ([]models.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Cookie
	for _, origin := range s.visited {
		for _, c := range s.client.Jar.Cookies(origin) {
			out = append(out, models.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: origin.Hostname(),
				Path:   "/",
				Secure: origin.Scheme == "https",
			})
		}
	}
	return out, nil
}

// SetCookies loads a saved snapshot into the session's jar
func (s *HTTPSession) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cookies {
		if !c.Expires.IsZero() && c.Expires.Before(time.Now()) {
			continue
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		origin := &url.URL{Scheme: scheme, Host: strings.TrimPrefix(c.Domain, "."), Path: "/"}
		s.client.Jar.SetCookies(origin, []*http.Cookie{{
			Name:     c.Name,
			Value:    c.Value,
			Path:     path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}})
	}
	return nil
}

// Close releases idle connections
func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
