package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

// ChromeDPSession implements interfaces.BrowserSession on one isolated
// Chrome browser context
type ChromeDPSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	opts        SessionOptions
	pageTimeout time.Duration
	transient   transientStatuses
	pacer       *Pacer
	logger      arbor.ILogger
	closeOnce   sync.Once
}

func newChromeDPSession(ctx context.Context, cancel context.CancelFunc, opts SessionOptions, pageTimeout time.Duration, transient transientStatuses, pacer *Pacer, logger arbor.ILogger) *ChromeDPSession {
	return &ChromeDPSession{
		ctx:         ctx,
		cancel:      cancel,
		opts:        opts,
		pageTimeout: pageTimeout,
		transient:   transient,
		pacer:       pacer,
		logger:      logger,
	}
}

// listen wires response monitoring and dismisses JavaScript dialogs, which
// otherwise block every later action on the page
func (s *ChromeDPSession) listen() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response == nil {
				return
			}
			headers := make(map[string]string, len(e.Response.Headers))
			for name, value := range e.Response.Headers {
				headers[name] = fmt.Sprintf("%v", value)
			}
			s.transient.report(s.opts.OnTransientSignal, int(e.Response.Status), e.Response.URL, headers)
		case *page.EventJavascriptDialogOpening:
			go func() {
				if err := chromedp.Run(s.ctx, page.HandleJavaScriptDialog(false)); err != nil {
					s.logger.Debug().Err(err).Int("worker", s.opts.WorkerID).Msg("Failed to dismiss dialog")
				}
			}()
		}
	})
}

func (s *ChromeDPSession) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := withOpTimeout(s.ctx, ctx, s.pageTimeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads url in the session's tab
func (s *ChromeDPSession) Navigate(ctx context.Context, url string) error {
	if err := s.pacer.Wait(ctx, url); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the tab's location
func (s *ChromeDPSession) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

// Exists reports whether selector matches without waiting
func (s *ChromeDPSession) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	js := fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
	if err := s.run(ctx, chromedp.Evaluate(js, &found)); err != nil {
		return false, err
	}
	return found, nil
}

type queryResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (s *ChromeDPSession) query(ctx context.Context, selector, valueExpr string) (string, bool, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return {found: false, value: ""}; }
		const value = %s;
		if (value === null || value === undefined) { return {found: false, value: ""}; }
		return {found: true, value: String(value)};
	})()`, jsString(selector), valueExpr)

	var result queryResult
	if err := s.run(ctx, chromedp.Evaluate(js, &result)); err != nil {
		return "", false, err
	}
	return result.Value, result.Found, nil
}

// Text returns innerText of the first match
func (s *ChromeDPSession) Text(ctx context.Context, selector string) (string, bool, error) {
	return s.query(ctx, selector, "el.innerText")
}

// Attribute returns an attribute of the first match
func (s *ChromeDPSession) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	return s.query(ctx, selector, fmt.Sprintf("el.getAttribute(%s)", jsString(name)))
}

// HTML returns outerHTML of the first match
func (s *ChromeDPSession) HTML(ctx context.Context, selector string) (string, bool, error) {
	return s.query(ctx, selector, "el.outerHTML")
}

// Click clicks the first visible match
func (s *ChromeDPSession) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Fill sets the value of an input
func (s *ChromeDPSession) Fill(ctx context.Context, selector, value string) error {
	if err := s.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// WaitFor blocks until selector is present or timeout elapses
func (s *ChromeDPSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, cancel := withOpTimeout(s.ctx, ctx, timeout)
	defer cancel()

	err := chromedp.Run(opCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", interfaces.ErrWaitTimeout, selector)
	}
	return err
}

// Cookies returns every cookie in the session's browser context
func (s *ChromeDPSession) Cookies(ctx context.Context) ([]models.Cookie, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			cookie.Expires = time.Unix(int64(sec), int64(frac*1e9))
		}
		out = append(out, cookie)
	}
	return out, nil
}

// SetCookies injects a saved cookie snapshot
func (s *ChromeDPSession) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			var expires *cdp.TimeSinceEpoch
			if !c.Expires.IsZero() {
				if c.Expires.Before(time.Now()) {
					continue
				}
				timestamp := cdp.TimeSinceEpoch(c.Expires)
				expires = &timestamp
			}

			if err := network.SetCookie(c.Name, c.Value).
				WithDomain(strings.TrimPrefix(c.Domain, ".")).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithExpires(expires).
				Do(ctx); err != nil {
				s.logger.Warn().
					Err(err).
					Str("cookie_name", c.Name).
					Str("domain", c.Domain).
					Msg("Failed to inject cookie")
			}
		}
		return nil
	}))
}

// Close closes the browser context
func (s *ChromeDPSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.logger.Debug().Int("worker", s.opts.WorkerID).Msg("Browser context closed")
	})
	return nil
}

func jsString(value string) string {
	encoded, _ := json.Marshal(value)
	return string(encoded)
}
