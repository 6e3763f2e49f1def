package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/common"
	"github.com/ternarybob/calbuddy/internal/models"
	"github.com/ternarybob/calbuddy/internal/services/collector"
)

// installSite is a small stand-in for the scheduling application: login,
// calendar, customer records and work orders
type installSite struct {
	*httptest.Server
	mu    sync.Mutex
	slots map[string]string // customer id -> calendar time slot
}

func (s *installSite) setSlot(id, slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[id] = slot
}

func newInstallSite(t *testing.T) *installSite {
	site := &installSite{slots: map[string]string{
		"1111-2222-3333": "8:00",
		"4444-5555-6666": "1:00",
	}}
	names := map[string]string{
		"1111-2222-3333": "Jane Doe",
		"4444-5555-6666": "John Roe",
	}

	authed := func(w http.ResponseWriter, r *http.Request) bool {
		if cookie, err := r.Cookie("sid"); err != nil || cookie.Value != "ok" {
			http.Redirect(w, r, "/system/login.php", http.StatusFound)
			return false
		}
		return true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		fmt.Fprint(w, `<html><body><iframe id="MainView" src="/home.php"></iframe></body></html>`)
	})
	mux.HandleFunc("/system/login.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			r.ParseForm()
			if r.PostForm.Get("username") == "tech" && r.PostForm.Get("password") == "secret" {
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
	mux.HandleFunc("/events/calendar.php", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		site.mu.Lock()
		defer site.mu.Unlock()

		fmt.Fprint(w, `<html><body>
			<div class="fc-center"><h2>April 14, 2025</h2></div>
			<button class="fc-agendaDay-button" type="button">day</button>
			<button class="fc-agendaWeek-button" type="button">week</button>
			<div class="fc-view">`)
		for _, id := range []string{"1111-2222-3333", "4444-5555-6666"} {
			fmt.Fprintf(w, `<a class="fc-time-grid-event"><div class="fc-time" data-start="%s"></div>
				<div class="fc-title">%s - %s</div>Residential Fiber Install</a>`, site.slots[id], names[id], id)
		}
		fmt.Fprint(w, `<a class="fc-time-grid-event"><div class="fc-title">Rae Poe - 7777-8888-9999</div>Service Call</a>
			</div></body></html>`)
	})
	mux.HandleFunc("/menu.php", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		fmt.Fprintf(w, `<html><body><iframe id="MainView" src="customer.php?id=%s"></iframe></body></html>`,
			r.URL.Query().Get("customerid"))
	})
	mux.HandleFunc("/customer.php", func(w http.ResponseWriter, r *http.Request) {
		rows := ""
		if r.URL.Query().Get("id") == "1111-2222-3333" {
			rows = `<tr><td>9</td><td>4/2/25</td><td>Residential Fiber Install</td><td>In Process</td><td><a href="/workorder.php?wo=9">View</a></td></tr>`
		}
		fmt.Fprintf(w, `<html><body><div id="custWork"><div id="workShow"><table>%s</table></div></div></body></html>`, rows)
	})
	mux.HandleFunc("/workorder.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="viewServiceMap.php?id=9">123 Main St, Columbia, MO</a>
			<div class="packageName text-indent"><b>5 Gig Fiber Bundle</b></div>
			<table><tr><td class="detailHeader">Description:</td><td>Connectorized drop</td></tr></table>
			<div class="contractorsection"><div id="ContractorList"><b>Acme Fiber - (Primary Contractor)</b></div></div>
			<div id="scheduledEventList"><div>Residential Fiber Install 2025-04-14 08:00</div></div>
		</body></html>`)
	})

	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func newTestApp(t *testing.T, site *installSite, tweaks ...func(*common.Config)) *App {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Site.BaseURL = site.URL + "/"
	cfg.Site.CustomerPath = "menu.php?coid=1&customerid={id}"
	cfg.Credentials = common.CredentialsConfig{Username: "tech", Password: "secret"}
	cfg.Browser.Backend = "http"
	cfg.Browser.PageTimeout = "2s"
	cfg.Browser.PollInterval = "10ms"
	cfg.Browser.SettleDelay = "0s"
	cfg.Collector.Workers = 2
	cfg.Collector.RecordTimeout = "500ms"
	cfg.Collector.LookupAttempts = 2
	cfg.Collector.LookupDelay = "10ms"
	cfg.Collector.LookupTimeout = "200ms"
	cfg.Collector.AssigneeTimeout = "200ms"
	cfg.Collector.DateTimeout = "200ms"
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Output.Dir = t.TempDir()
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	application, err := New(cfg, arbor.NewLogger(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })
	return application
}

var installDay = time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC)

func TestExecute_CalendarRunThenDiffAgainstLastRun(t *testing.T) {
	site := newInstallSite(t)
	application := newTestApp(t, site)
	ctx := context.Background()

	first, err := application.Execute(ctx, RunRequest{Mode: models.RunModeDay, Day: installDay})
	require.NoError(t, err)

	require.Len(t, first.Output.Results, 1)
	assert.Equal(t, models.JobResult{
		Assignee:        "Acme Fiber",
		Date:            "4-14-25",
		TimeSlot:        "8:00",
		DisplayName:     "Jane Doe",
		ID:              "1111-2222-3333",
		Category:        "Connectorized 5 Gig Bundle",
		Address:         "123 Main St, Columbia, MO",
		WorkOrderNumber: 9,
	}, first.Output.Results[0])

	require.Len(t, first.Output.Incomplete, 1)
	assert.Equal(t, models.FailureNoWorkOrder, first.Output.Incomplete[0].FailureKind)
	assert.Nil(t, first.Output.Diff)

	assert.Equal(t, filepath.Join(application.Config.Output.Dir, "Jobs0414.txt"), first.Files.Jobs)
	assert.FileExists(t, first.Files.Jobs)
	assert.FileExists(t, first.Files.Unparsed)
	assert.Empty(t, first.Files.Changes)
	assert.Contains(t, first.Stats, "Total Jobs:      2")

	// The install moves to the afternoon before the next run
	site.setSlot("1111-2222-3333", "2:00")
	application.now = func() time.Time { return time.Now().Add(time.Minute) }

	second, err := application.Execute(ctx, RunRequest{Mode: models.RunModeDay, Day: installDay, BaselineLast: true})
	require.NoError(t, err)

	require.NotNil(t, second.Output.Diff)
	assert.Empty(t, second.Output.Diff.Added)
	assert.Empty(t, second.Output.Diff.Removed)
	require.Len(t, second.Output.Diff.Moved, 1)
	assert.Equal(t, "8:00", second.Output.Diff.Moved[0].Old.TimeSlot)
	assert.Equal(t, "2:00", second.Output.Diff.Moved[0].New.TimeSlot)

	require.NotEmpty(t, second.Files.Changes)
	report, err := os.ReadFile(second.Files.Changes)
	require.NoError(t, err)
	assert.Contains(t, string(report), "(was 8:00)")

	runs, err := application.StorageManager.RunStorage().ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.Run.ID, runs[0].ID)
	assert.Equal(t, 1, runs[0].MovedCount)
}

func TestExecute_JobListAndFileBaseline(t *testing.T) {
	site := newInstallSite(t)
	application := newTestApp(t, site)
	ctx := context.Background()

	dir := t.TempDir()
	jobsFile := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(jobsFile, []byte(`jobs:
  - id: "1111-2222-3333"
    display_name: Jane Doe
    time_slot: "8:00"
`), 0644))

	baselineFile := filepath.Join(dir, "Jobs0414.txt")
	require.NoError(t, os.WriteFile(baselineFile, []byte(`Acme Fiber

4-14-25
9:00 - Sam Poe - 5555-0000-1111 - Connectorized 5 Gig Bundle - 9 Elm St - WO 4
`), 0644))

	report, err := application.Execute(ctx, RunRequest{
		Mode:         models.RunModeDay,
		Day:          installDay,
		JobsFile:     jobsFile,
		BaselineFile: baselineFile,
	})
	require.NoError(t, err)

	require.Len(t, report.Output.Results, 1)
	require.NotNil(t, report.Output.Diff)
	require.Len(t, report.Output.Diff.Added, 1)
	assert.Equal(t, "1111-2222-3333", report.Output.Diff.Added[0].ID)
	require.Len(t, report.Output.Diff.Removed, 1)
	assert.Equal(t, "5555-0000-1111", report.Output.Diff.Removed[0].ID)
}

func TestExecute_EmptyJobList(t *testing.T) {
	site := newInstallSite(t)
	application := newTestApp(t, site)

	jobsFile := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(jobsFile, []byte("jobs: []\n"), 0644))

	_, err := application.Execute(context.Background(), RunRequest{JobsFile: jobsFile})
	assert.ErrorIs(t, err, ErrNoJobs)
}

func TestExecute_NoWorkerStartedStillWritesFiles(t *testing.T) {
	site := newInstallSite(t)
	application := newTestApp(t, site, func(cfg *common.Config) {
		cfg.Credentials.Password = "wrong"
	})
	ctx := context.Background()

	jobsFile := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(jobsFile, []byte(`jobs:
  - id: "1111-2222-3333"
    display_name: Jane Doe
    time_slot: "8:00"
  - id: "4444-5555-6666"
    display_name: John Roe
    time_slot: "1:00"
`), 0644))

	report, err := application.Execute(ctx, RunRequest{Mode: models.RunModeDay, Day: installDay, JobsFile: jobsFile})
	require.Error(t, err)
	assert.ErrorIs(t, err, collector.ErrNoWorkerStarted)
	require.NotNil(t, report)

	assert.Empty(t, report.Output.Results)
	require.Len(t, report.Output.Incomplete, 2)
	for _, job := range report.Output.Incomplete {
		assert.Equal(t, models.FailureSessionAcquisition, job.FailureKind)
	}

	dir := application.Config.Output.Dir
	assert.Equal(t, filepath.Join(dir, "Jobs0414.txt"), report.Files.Jobs)
	assert.FileExists(t, report.Files.Jobs)
	assert.Equal(t, filepath.Join(dir, "UnparsedJobs0414.txt"), report.Files.Unparsed)

	unparsed, err := os.ReadFile(report.Files.Unparsed)
	require.NoError(t, err)
	assert.Contains(t, string(unparsed), "8:00 - Jane Doe - 1111-2222-3333 - REASON: session acquisition failed")
	assert.Contains(t, string(unparsed), "1:00 - John Roe - 4444-5555-6666 - REASON: session acquisition failed")
	assert.Empty(t, report.Files.Changes)

	runs, err := application.StorageManager.RunStorage().ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.Run.ID, runs[0].ID)
}
