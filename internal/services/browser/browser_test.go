package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

type memorySessionStore struct {
	mu    sync.Mutex
	state *models.SessionState
	saves int
}

func (m *memorySessionStore) LoadSessionState(ctx context.Context) (*models.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, interfaces.ErrNotFound
	}
	return m.state, nil
}

func (m *memorySessionStore) SaveSessionState(ctx context.Context, state *models.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.saves++
	return nil
}

func newTestBackend() *HTTPBackend {
	return NewHTTPBackend(HTTPConfig{
		PageTimeout:          5 * time.Second,
		PollInterval:         10 * time.Millisecond,
		TransientStatusCodes: []int{429, 403, 503},
	}, nil, arbor.NewLogger())
}

// loginSite serves a landing page guarded by a session cookie and a login form
type loginSite struct {
	*httptest.Server
	logins atomic.Int32
}

func newLoginSite(t *testing.T) *loginSite {
	site := &loginSite{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("sid"); err != nil || cookie.Value != "ok" {
			http.Redirect(w, r, "/system/login.php", http.StatusFound)
			return
		}
		fmt.Fprint(w, `<html><body>
			<form><input id="f1" type="button" value="Close This"></form>
			<iframe id="MainView" src="/main.php"></iframe>
		</body></html>`)
	})
	mux.HandleFunc("/system/login.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			if r.PostForm.Get("username") == "tech" && r.PostForm.Get("password") == "secret" {
				site.logins.Add(1)
				http.SetCookie(w, &http.Cookie{Name: "sid", Value: "ok", Path: "/"})
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
		}
		fmt.Fprint(w, `<html><body><form method="post" action="/system/login.php">
			<input name="username" type="text">
			<input name="password" type="password">
			<input id="login" type="submit" value="Login">
		</form></body></html>`)
	})
	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func TestHTTPSession_NavigateAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			fmt.Fprint(w, `<html><body>
				<h1 class="title">Customer  Record</h1>
				<a id="next" href="next.php?x=1">next</a>
			</body></html>`)
		case "/next.php":
			fmt.Fprintf(w, `<html><body><p id="q">%s</p></body></html>`, r.URL.Query().Get("x"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	session, err := newTestBackend().NewSession(ctx, SessionOptions{WorkerID: 1})
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Navigate(ctx, server.URL+"/start"))

	exists, err := session.Exists(ctx, "h1.title")
	require.NoError(t, err)
	assert.True(t, exists)

	text, found, err := session.Text(ctx, "h1.title")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Customer  Record", text)

	href, found, err := session.Attribute(ctx, "#next", "href")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "next.php?x=1", href)

	_, found, err = session.Text(ctx, "#missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, session.Click(ctx, "#next"))
	current, err := session.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/next.php?x=1", current)

	html, found, err := session.HTML(ctx, "#q")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `<p id="q">1</p>`, html)
}

func TestHTTPSession_WaitForPollsUntilPresent(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			fmt.Fprint(w, `<html><body><div id="loading"></div></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><table id="ready"></table></body></html>`)
	}))
	defer server.Close()

	ctx := context.Background()
	session, err := newTestBackend().NewSession(ctx, SessionOptions{})
	require.NoError(t, err)

	require.NoError(t, session.Navigate(ctx, server.URL))
	require.NoError(t, session.WaitFor(ctx, "#ready", 2*time.Second))
	assert.GreaterOrEqual(t, hits.Load(), int32(3))

	err = session.WaitFor(ctx, "#never", 50*time.Millisecond)
	assert.ErrorIs(t, err, interfaces.ErrWaitTimeout)
}

func TestHTTPSession_ReportsTransientSignals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/busy" {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `<html></html>`)
	}))
	defer server.Close()

	var mu sync.Mutex
	var statuses []int
	var retryAfter string
	session, err := newTestBackend().NewSession(context.Background(), SessionOptions{
		OnTransientSignal: func(status int, url string, headers map[string]string) {
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, status)
			retryAfter = headers["Retry-After"]
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, session.Navigate(ctx, server.URL+"/ok"))
	require.NoError(t, session.Navigate(ctx, server.URL+"/busy"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{429}, statuses)
	assert.Equal(t, "30", retryAfter)
}

func TestProvider_LogsInOnceThenRestores(t *testing.T) {
	site := newLoginSite(t)
	store := &memorySessionStore{}
	auth := NewAuthenticator(AuthConfig{
		BaseURL:      site.URL + "/",
		LoginURL:     site.URL + "/system/login.php",
		Username:     "tech",
		Password:     "secret",
		LoginTimeout: time.Second,
	}, store, arbor.NewLogger())
	provider := NewProvider(newTestBackend(), auth, nil, arbor.NewLogger())

	ctx := context.Background()
	first, err := provider.Acquire(ctx, 1)
	require.NoError(t, err)
	defer first.Close()

	exists, err := first.Exists(ctx, MainFrameSelector)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int32(1), site.logins.Load())
	require.NotNil(t, store.state)
	assert.NotEmpty(t, store.state.Cookies)

	second, err := provider.Acquire(ctx, 2)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, int32(1), site.logins.Load(), "second worker should reuse the stored session")
}

func TestProvider_MissingCredentials(t *testing.T) {
	site := newLoginSite(t)
	auth := NewAuthenticator(AuthConfig{
		BaseURL:  site.URL + "/",
		LoginURL: site.URL + "/system/login.php",
	}, nil, arbor.NewLogger())
	provider := NewProvider(newTestBackend(), auth, nil, arbor.NewLogger())

	_, err := provider.Acquire(context.Background(), 1)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestProvider_RejectedLogin(t *testing.T) {
	site := newLoginSite(t)
	auth := NewAuthenticator(AuthConfig{
		BaseURL:      site.URL + "/",
		LoginURL:     site.URL + "/system/login.php",
		Username:     "tech",
		Password:     "wrong",
		LoginTimeout: 50 * time.Millisecond,
	}, nil, arbor.NewLogger())
	provider := NewProvider(newTestBackend(), auth, nil, arbor.NewLogger())

	_, err := provider.Acquire(context.Background(), 1)
	assert.ErrorIs(t, err, interfaces.ErrWaitTimeout)
}

func TestPacer(t *testing.T) {
	var disabled *Pacer
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.Wait(context.Background(), "http://inside.example.com/"))
	assert.False(t, NewPacer(0, 1).Enabled())

	pacer := NewPacer(0.01, 1)
	require.True(t, pacer.Enabled())
	require.NoError(t, pacer.Wait(context.Background(), "http://inside.example.com/a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, pacer.Wait(ctx, "http://inside.example.com/b"), "second request exceeds the budget")
	assert.NoError(t, pacer.Wait(context.Background(), "http://other.example.com/"), "hosts are paced independently")
}
