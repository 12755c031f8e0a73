package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"music-enricher/internal/config"
	"music-enricher/internal/services"
	"music-enricher/internal/shared"
)

// offlineConfig writes a config with every network provider disabled.
func offlineConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  path: ` + filepath.Join(dir, "library.db") + `
logging:
  level: error
providers:
  musicbrainz:
    enabled: false
  audiodb:
    enabled: false
  lastfm:
    enabled: false
    api_key: lastfm-secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand("1.2.3", &rootOptions{})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath, "--no-color"}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")

	require.NoError(t, err)
	assert.Equal(t, "music-enricher 1.2.3\n", out)
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, _, err := execute(t, path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Providers.Enabled(), cfg.Providers.Enabled())

	_, _, err = execute(t, path, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = execute(t, path, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	path := offlineConfig(t)

	out, _, err := execute(t, path, "config", "show")

	require.NoError(t, err)
	assert.NotContains(t, out, "lastfm-secret")
	assert.Contains(t, out, "********")
	assert.Contains(t, out, "level: error")
}

func TestConfigPath(t *testing.T) {
	path := offlineConfig(t)

	out, _, err := execute(t, path, "config", "path")

	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestEntitiesAddListShow(t *testing.T) {
	path := offlineConfig(t)

	out, _, err := execute(t, path, "entities", "add", "artist", "Björk")
	require.NoError(t, err)
	assert.Contains(t, out, "Created artist #1 Björk")

	_, _, err = execute(t, path, "entities", "add", "album", "Homogenic", "--artist-id", "1")
	require.NoError(t, err)

	out, _, err = execute(t, path, "entities", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Björk")
	assert.Contains(t, out, "Homogenic")

	out, _, err = execute(t, path, "entities", "list", "--kind", "album", "--json")
	require.NoError(t, err)
	var entities []shared.LocalEntity
	require.NoError(t, json.Unmarshal([]byte(out), &entities))
	require.Len(t, entities, 1)
	assert.Equal(t, "Homogenic", entities[0].Name)
	assert.Equal(t, int64(1), entities[0].ArtistID)

	out, _, err = execute(t, path, "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 Björk (artist)")
	assert.Contains(t, out, "No provider records.")

	out, _, err = execute(t, path, "show", "2", "--json")
	require.NoError(t, err)
	var shown struct {
		Entity  shared.LocalEntity      `json:"entity"`
		Records []shared.ProviderRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, shared.KindAlbum, shown.Entity.Kind)
	assert.Empty(t, shown.Records)
}

func TestEntitiesAddValidation(t *testing.T) {
	path := offlineConfig(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing kind", []string{"entities", "add"}, "accepts between 1 and 2 arg(s)"},
		{"bad kind", []string{"entities", "add", "playlist", "x"}, "unknown entity kind"},
		{"missing name", []string{"entities", "add", "artist"}, "a name is required"},
		{"missing file", []string{"entities", "add", "track", "--file", "/nonexistent.flac"}, "file not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, path, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestShowMissingEntity(t *testing.T) {
	path := offlineConfig(t)

	_, _, err := execute(t, path, "show", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity 42 not found")

	_, _, err = execute(t, path, "show", "abc")
	assert.Error(t, err)
}

func TestIdentifyArguments(t *testing.T) {
	path := offlineConfig(t)

	_, _, err := execute(t, path, "identify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all")

	_, _, err = execute(t, path, "identify", "--all", "1")
	require.Error(t, err)

	_, stderr, err := execute(t, path, "identify", "--all")
	require.NoError(t, err)
	assert.Contains(t, stderr, "No entities to identify.")
}

func TestIdentifyRejectsDisabledProvider(t *testing.T) {
	path := offlineConfig(t)
	_, _, err := execute(t, path, "entities", "add", "artist", "Portishead")
	require.NoError(t, err)

	_, _, err = execute(t, path, "identify", "--provider", "spotify", "1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `provider "spotify" is not enabled`)
}

func TestIdentifyWithoutProviders(t *testing.T) {
	path := offlineConfig(t)
	_, _, err := execute(t, path, "entities", "add", "artist", "Portishead")
	require.NoError(t, err)

	out, _, err := execute(t, path, "identify", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "no providers")
	assert.Contains(t, out, "1 entities identified, 0 provider records updated.")

	out, _, err = execute(t, path, "identify", "--all", "--kind", "artist", "--json")
	require.NoError(t, err)
	var results []entityResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Portishead", results[0].Name)
	assert.Empty(t, results[0].Error)

	_, _, err = execute(t, path, "identify", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity 7 not found")
}

func TestIdentifyFileNeedsAcoustID(t *testing.T) {
	path := offlineConfig(t)
	audio := filepath.Join(t.TempDir(), "track.flac")
	require.NoError(t, os.WriteFile(audio, []byte("not really flac"), 0o600))

	_, stderr, err := execute(t, path, "identify-file", audio)

	require.ErrorIs(t, err, services.ErrNoResolver)
	assert.Contains(t, stderr, "Could not read tags")
}

func TestReconnectUnknownRecord(t *testing.T) {
	path := offlineConfig(t)
	_, _, err := execute(t, path, "entities", "add", "artist", "Massive Attack")
	require.NoError(t, err)

	_, _, err = execute(t, path, "reconnect", "lastfm", "no-such-record", "1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestInvalidConfigurationIsReported(t *testing.T) {
	path := offlineConfig(t)

	_, _, err := execute(t, path, "--log-level", "verbose", "entities", "list")

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid configuration"))
}
