package apikeys_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch-labs/agent/pkg/apikeys"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	s, err := apikeys.Load(filepath.Join(t.TempDir(), "apikeys.json"))
	require.NoError(t, err)
	_, ok := s.Authenticate("ra_anything")
	assert.False(t, ok)
}

func TestCreateThenAuthenticateRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apikeys.json")
	s, err := apikeys.Load(path)
	require.NoError(t, err)

	k, err := s.Create("ci-bot", false)
	require.NoError(t, err)
	assert.True(t, len(k.Key) > len("ra_"))
	assert.Regexp(t, `^ra_[A-Za-z0-9_-]{24}$`, k.Key)

	found, ok := s.Authenticate(k.Key)
	require.True(t, ok)
	assert.Equal(t, k.ID, found.ID)

	// Persisted to disk.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), k.ID)
}

func TestRevokedKeyFailsAuthentication(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apikeys.json")
	s, err := apikeys.Load(path)
	require.NoError(t, err)

	k, err := s.Create("temp-key", false)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(k.ID))
	_, ok := s.Authenticate(k.Key)
	assert.False(t, ok)
}

func TestLoadReadsPersistedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apikeys.json")
	s1, err := apikeys.Load(path)
	require.NoError(t, err)
	k, err := s1.Create("admin", true)
	require.NoError(t, err)

	s2, err := apikeys.Load(path)
	require.NoError(t, err)
	found, ok := s2.Authenticate(k.Key)
	require.True(t, ok)
	assert.True(t, found.Admin)
}
