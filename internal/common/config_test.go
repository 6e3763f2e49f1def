package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, 4, config.Collector.Workers)
	assert.Equal(t, []string{"Fiber", "Install"}, config.Collector.WorkOrderKeywords)
	assert.Equal(t, "In Process", config.Collector.ActiveStatus)
	assert.Equal(t, []int{429, 403, 503}, config.Collector.TransientStatusCode)
	assert.Equal(t, "chromedp", config.Browser.Backend)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	base := writeConfigFile(t, "base.toml", `
[collector]
workers = 6
test_limit = 3

[site]
base_url = "http://base.example.com/"
`)
	override := writeConfigFile(t, "override.toml", `
[collector]
workers = 8
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 8, config.Collector.Workers)
	assert.Equal(t, 3, config.Collector.TestLimit)
	assert.Equal(t, "http://base.example.com/", config.Site.BaseURL)
	// untouched sections keep defaults
	assert.Equal(t, "In Process", config.Collector.ActiveStatus)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "calbuddy.toml", `
[collector]
workers = 2
`)
	t.Setenv("CALBUDDY_WORKERS", "12")
	t.Setenv("CALBUDDY_USERNAME", "tech")
	t.Setenv("CALBUDDY_EMAIL_RECIPIENTS", "a@example.com, b@example.com,")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 12, config.Collector.Workers)
	assert.Equal(t, "tech", config.Credentials.Username)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, config.Email.Recipients)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	config := NewDefaultConfig()
	config.Collector.Workers = 0
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Browser.Backend = "selenium"
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Collector.LookupTimeout = "five seconds"
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Email.Enabled = true
	assert.Error(t, config.Validate(), "enabled email requires a host and recipients")
}

func TestSiteConfig_CustomerURL(t *testing.T) {
	site := NewDefaultConfig().Site
	site.BaseURL = "http://inside.example.com/"

	assert.Equal(t,
		"http://inside.example.com/menu.php?coid=1&tabid=7&parentid=9&customerid=1234-5678-9012",
		site.CustomerURL("1234-5678-9012"))
	assert.Equal(t, "http://inside.example.com/system/login.php", site.SiteURL("/system/login.php"))
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDurationOr("2s", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("bogus", time.Second))
}
