package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidmap/internal/domain/entities"
)

func TestMissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.json")

	s, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, entities.DefaultPreferences(), s.Get())
}

func TestSetPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "preferences.json")

	s, err := NewStore(path)
	require.NoError(t, err)

	want := entities.Preferences{ShowNeedy: false, ShowVolunteers: true}
	require.NoError(t, s.Set(want))
	assert.Equal(t, want, s.Get())

	reloaded, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, want, reloaded.Get())
}

func TestPartialFileKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"showVolunteers":true}`), 0o644))

	s, err := NewStore(path)
	require.NoError(t, err)

	got := s.Get()
	assert.True(t, got.ShowNeedy, "absent key resolves to the default")
	assert.True(t, got.ShowVolunteers)
}

func TestCorruptFileFailsLoud(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := NewStore(path)
	assert.Error(t, err)
}
