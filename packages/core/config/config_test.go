package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.True(t, c.IsDefault())
	assert.True(t, c.GetFollowRedirects())
	assert.False(t, c.GetLegacyBatchCookies())
	assert.Equal(t, 2*time.Second, c.GetWaitTime())
	assert.Equal(t, "http://localhost", c.BaseURL)
	assert.NoError(t, c.Validate())
}

func TestGetters_NilPointersUseDefaults(t *testing.T) {
	c := &Config{}

	assert.True(t, c.GetFollowRedirects())
	assert.False(t, c.GetLegacyBatchCookies())
	assert.False(t, c.GetVerbose())
	assert.False(t, c.GetNoColor())
}

func TestFindAndLoadConfig(t *testing.T) {
	dir := t.TempDir()

	c, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.True(t, c.IsDefault())

	content := `{"baseURL": "http://app.test", "waitTime": 500, "followRedirects": false, "headers": {"X-Env": "ci"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hitbrowserc"), []byte(content), 0644))

	c, err = FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://app.test", c.BaseURL)
	assert.Equal(t, 500*time.Millisecond, c.GetWaitTime())
	assert.False(t, c.GetFollowRedirects())
	assert.Equal(t, "hitbrowse", c.UserAgent, "unset fields keep their defaults")
	assert.Equal(t, map[string]string{"X-Env": "ci"}, c.Headers)
	assert.False(t, c.IsDefault())
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{not json`), 0644))
	_, err := LoadConfig(bad)
	assert.Error(t, err)

	negative := filepath.Join(dir, "negative.json")
	require.NoError(t, os.WriteFile(negative, []byte(`{"maxRedirects": -1}`), 0644))
	_, err = LoadConfig(negative)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxRedirects")

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Headers = map[string]string{"A": "1"}

	merged := base.Merge(&Config{
		UserAgent:          "custom",
		MaxRedirects:       5,
		LegacyBatchCookies: BoolPtr(true),
		Headers:            map[string]string{"B": "2"},
	})

	assert.Equal(t, "custom", merged.UserAgent)
	assert.Equal(t, 5, merged.MaxRedirects)
	assert.True(t, merged.GetLegacyBatchCookies())
	assert.True(t, merged.GetFollowRedirects())
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, merged.Headers)
	assert.Equal(t, map[string]string{"A": "1"}, base.Headers, "merge does not mutate the receiver")

	assert.Same(t, base, base.Merge(nil))
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hitbrowse.config.json")
	c := DefaultConfig()
	c.CookieDomain = "app.test"
	require.NoError(t, c.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "app.test", loaded.CookieDomain)
}
