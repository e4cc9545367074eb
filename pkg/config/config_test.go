package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maestro.yaml")
	content := `
project_name: shopreno
listen_addr: ":9090"
engine: opus
super_phone: "+15550001111"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "shopreno", cfg.ProjectName)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "opus", cfg.Engine)
	assert.Equal(t, "+15550001111", cfg.SuperPhone)
	// Defaults survive partial files.
	assert.Equal(t, "knowledge_store", cfg.KnowledgeDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maestro.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project_name: shopreno\n"), 0644))

	t.Setenv("MAESTRO_ENGINE", "gemini")
	t.Setenv("MAESTRO_LISTEN", ":7000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Engine)
	assert.Equal(t, ":7000", cfg.ListenAddr)
}

func TestValidateRejectsUnknownEngine(t *testing.T) {
	cfg := &Config{ProjectName: "p", Engine: "claude-9000"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown engine")
}

func TestValidateRequiresProject(t *testing.T) {
	cfg := &Config{Engine: DefaultEngine}
	require.Error(t, cfg.Validate())
}

func TestEngineRegistry(t *testing.T) {
	assert.Equal(t, []string{"gemini", "gemini-flash", "gpt", "opus"}, EngineNames())

	gpt := Engines["gpt"]
	assert.Equal(t, ProviderOpenAI, gpt.Provider)
	assert.Equal(t, 128000, gpt.ContextWindow)

	opus := Engines["opus"]
	assert.Equal(t, ProviderAnthropic, opus.Provider)
	assert.Equal(t, 1000000, opus.ContextWindow)

	_, ok := Engines[DefaultEngine]
	assert.True(t, ok)
}
