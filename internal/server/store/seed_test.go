package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const seedYAML = `
sync_enabled: false
users:
  - username: admin
    password: changeme
    role: admin
guides:
  - name: Marco Rossi
    phone: "+39123"
    languages: [it, en]
tours:
  - title: Duomo at dawn
    date: "2026-05-02"
    time: "07:30"
    guide: marco rossi
    paid: true
`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSeed_Apply(t *testing.T) {
	ctx := context.Background()
	seed, err := LoadSeed(writeSeed(t, seedYAML))
	require.NoError(t, err)

	m := NewMemory()
	require.NoError(t, seed.Apply(ctx, m))

	u, err := m.UserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("changeme")))

	tours, _, err := m.ListTours(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, tours, 1)
	assert.Equal(t, "Marco Rossi", tours[0].GuideName)
	assert.True(t, bool(tours[0].Paid))

	enabled, _ := m.SyncEnabled(ctx)
	assert.False(t, enabled)

	// A second run leaves the data alone.
	require.NoError(t, seed.Apply(ctx, m))
	_, total, _ := m.ListGuides(ctx, Page{})
	assert.Equal(t, 1, total)
}

func TestSeed_UnknownGuide(t *testing.T) {
	seed, err := LoadSeed(writeSeed(t, `
guides:
  - name: Anna
    phone: "1"
tours:
  - title: Boboli
    date: "2026-05-02"
    time: "10:00"
    guide: Nobody
`))
	require.NoError(t, err)
	assert.ErrorIs(t, seed.Apply(context.Background(), NewMemory()), ErrUnknownGuide)
}

func TestLoadSeed_Missing(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
