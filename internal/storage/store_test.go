package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentIDIsStableAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	store, err := NewStore(dir)
	require.NoError(t, err)
	first, err := store.AgentID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "agent_"))

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	second, err := reopened.AgentID()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAgentIDKeepsExistingValue(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent_id"), []byte("  agent_custom \n"), 0o600))

	store, err := NewStore(dir)
	require.NoError(t, err)
	id, err := store.AgentID()
	require.NoError(t, err)
	assert.Equal(t, "agent_custom", id)
}

func TestAgentIDReplacesBlankFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent_id"), []byte("\n"), 0o600))

	store, err := NewStore(dir)
	require.NoError(t, err)
	id, err := store.AgentID()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
