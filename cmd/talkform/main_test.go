package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"INNOHUB_API_KEY", "LLM_API_KEY", "CATALOG_DIR", "CATALOG_WATCH", "PORT"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	dir := t.TempDir()
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "talkform.db"))
	return filepath.Join(dir, "missing.env")
}

func TestFormsCommand(t *testing.T) {
	envFile := isolateEnv(t)
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"forms", "--env-file", envFile})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "busquedas"), lines[0])
	assert.Contains(t, out.String(), "lead_time")
	assert.Contains(t, out.String(), "guided")
}

func TestChatCommand(t *testing.T) {
	envFile := isolateEnv(t)
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("/talk2numbers_busquedas\nRanking de mercados de origen por ventana media\n"))
	cmd.SetArgs([]string{"chat", "--env-file", envFile})
	require.NoError(t, cmd.Execute())

	got := out.String()
	assert.Contains(t, got, "Ranking de mercados de origen por ventana media")
	assert.True(t, strings.HasSuffix(got, "> \n"), "chat ends at EOF")
}

func TestUnknownCommandFails(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"forms", "extra"})
	assert.Error(t, cmd.Execute())
}
