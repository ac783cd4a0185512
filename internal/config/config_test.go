package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, 60, cfg.HorizonDays)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: America/Denver
data_dir: /srv/campusmap
sources:
  - name: Campus calendar
    kind: ICS
    url: https://calendar.example.edu/events.ics
  - url: https://events.example.edu/export.json
llm:
  model: gpt-4o
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "America/Denver", cfg.Timezone)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "ics", cfg.Sources[0].Kind)
	assert.Equal(t, "Campus calendar", cfg.Sources[0].ID)
	assert.Equal(t, "json", cfg.Sources[1].Kind)
	assert.Equal(t, "https://events.example.edu/export.json", cfg.Sources[1].ID)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 600, cfg.LLM.MaxTokens)
	assert.Equal(t, filepath.Join("/srv/campusmap", "buildings.yaml"), cfg.Buildings)
	assert.Equal(t, filepath.Join("/srv/campusmap", "campusmap.db"), cfg.DatabasePath())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: [\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		"OPENAI_API_KEY":     "sk-test",
		"CAMPUSMAP_TIMEZONE": "UTC",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
}
