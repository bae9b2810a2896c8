package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/catalog"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CINECACHE_CONFIG", "")
	t.Setenv("CINECACHE_LOG_LEVEL", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKeyCommand_MatchesAccessorKey(t *testing.T) {
	out, err := execute(t, "key", "--name", catalog.NameMovieDetails, "--params", `{"id": 949}`)
	require.NoError(t, err)

	want, err := cache.NewDefaultKeyer().Key(catalog.NameMovieDetails, catalog.IDParams{ID: 949})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, want, lines[0])
	assert.Equal(t, `{"id":949}`, lines[1])
}

func TestKeyCommand_DefaultParams(t *testing.T) {
	out, err := execute(t, "key", "--name", catalog.NameGenresMovie)
	require.NoError(t, err)

	want, err := cache.NewDefaultKeyer().Key(catalog.NameGenresMovie, catalog.NoParams{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, want+"\n"), "output %q", out)
}

func TestKeyCommand_RequiresName(t *testing.T) {
	_, err := execute(t, "key")
	assert.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	canonical, key, err := deriveKey("search", `{"query":"heat","page":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"page":1,"query":"heat"}`, canonical)
	assert.True(t, strings.HasPrefix(key, "search:"))

	// Key order in the input does not matter.
	_, again, err := deriveKey("search", `{"page":1,"query":"heat"}`)
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestDeriveKey_Errors(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		params string
	}{
		{"bad json", "search", `{"query":`},
		{"trailing data", "search", `{} {}`},
		{"empty name", "", `{}`},
		{"newline in name", "a\nb", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := deriveKey(tt.key, tt.params)
			assert.Error(t, err)
		})
	}
}

func TestPruneCommand(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		out, err := execute(t, "prune", "--store", "memory")
		require.NoError(t, err)
		assert.Equal(t, "removed 0 expired entries\n", out)
	})

	t.Run("sql", func(t *testing.T) {
		path := writeConfig(t, "store:\n  backend: sql\n  sql:\n    dsn: "+filepath.Join(t.TempDir(), "cache.db")+"\n")
		out, err := execute(t, "--config", path, "prune")
		require.NoError(t, err)
		assert.Equal(t, "removed 0 expired entries\n", out)
	})

	t.Run("redis expires itself", func(t *testing.T) {
		path := writeConfig(t, "store:\n  backend: redis\n  redis:\n    addr: 127.0.0.1:1\n")
		_, err := execute(t, "--config", path, "prune")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expires entries itself")
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := execute(t, "prune", "--store", "tape")
		assert.Error(t, err)
	})
}

func TestFlagOrEnv(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("log-level", "", "")

	t.Setenv("CINECACHE_LOG_LEVEL", "warn")
	assert.Equal(t, "warn", flagOrEnv(cmd, "log-level", "CINECACHE_LOG_LEVEL", "info"))

	require.NoError(t, cmd.Flags().Set("log-level", "debug"))
	assert.Equal(t, "debug", flagOrEnv(cmd, "log-level", "CINECACHE_LOG_LEVEL", "info"))

	t.Setenv("CINECACHE_LOG_LEVEL", "")
	assert.Equal(t, "info", flagOrEnv(cmd, "missing", "CINECACHE_LOG_LEVEL", "info"))
}
