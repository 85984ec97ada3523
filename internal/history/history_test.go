package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate-worker-go/internal/models"
)

func TestRememberPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera_history.toml")

	f, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, f.List())

	require.NoError(t, f.Remember(models.HistoryEntry{Location: "Lobby", Host: "10.0.0.5", Port: 554}))
	require.NoError(t, f.Remember(models.HistoryEntry{Location: "Back door", Host: "10.0.0.6", Port: 8554}))

	g, err := Open(path)
	require.NoError(t, err)
	e, err := g.Get("Lobby")
	require.NoError(t, err)
	assert.Equal(t, models.HistoryEntry{Location: "Lobby", Host: "10.0.0.5", Port: 554}, e)

	list := g.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Back door", list[0].Location)
}

func TestGetUnknown(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "h.toml"))
	require.NoError(t, err)
	_, err = f.Get("Nowhere")
	assert.ErrorIs(t, err, ErrUnknownLocation)
}

func TestRememberValidates(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "h.toml"))
	require.NoError(t, err)
	assert.Error(t, f.Remember(models.HistoryEntry{Location: "Lobby"}))
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Lobby\nhost="), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}
