package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceManager_WorkArea(t *testing.T) {
	base := t.TempDir()
	ws := NewWorkspaceManager(base)

	path, err := ws.PrepareWorkArea("trackPairEfficiency_wholeTracker_2023-03-14")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "trackPairEfficiency_wholeTracker_2023-03-14"), path)
	assert.DirExists(t, path)

	require.NoError(t, ws.CleanupWorkArea("trackPairEfficiency_wholeTracker_2023-03-14"))
	assert.NoDirExists(t, path)
}
