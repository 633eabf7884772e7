package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *EncryptedFileStore {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("IMAGEDL_PASSPHRASE", "test-passphrase")

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	return store
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	acc := &Account{Platform: "instagram", Username: "alice", Password: "hunter2"}
	require.NoError(t, store.Store(acc))

	got, err := store.Retrieve("instagram")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hunter2", got.Password)

	assert.True(t, store.Exists("instagram"))
	assert.False(t, store.Exists("pinterest"))
}

func TestEncryptedStoreCiphertextOnDisk(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("IMAGEDL_PASSPHRASE", "test-passphrase")

	path := filepath.Join(dir, "credentials.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Store(&Account{Platform: "instagram", Username: "alice", Password: "hunter2"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
	assert.NotContains(t, string(raw), "alice")
}

func TestEncryptedStoreDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Store(&Account{Platform: "instagram", Username: "a", Password: "p"}))
	require.NoError(t, store.Store(&Account{Platform: "pinterest", Username: "b", Password: "q"}))

	require.NoError(t, store.Delete("instagram"))
	_, err := store.Retrieve("instagram")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	got, err := store.Retrieve("pinterest")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Username)

	assert.ErrorIs(t, store.Delete("instagram"), ErrCredentialsNotFound)
}

func TestManagerFallback(t *testing.T) {
	primary := newTestStore(t)
	m := NewManagerWithStores(primary, NewEnvironmentStore())

	require.NoError(t, m.Store(&Account{Platform: "instagram", Username: "alice", Password: "p"}))

	got, err := m.Retrieve("instagram")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.False(t, got.LastModified.IsZero())
}

func TestManagerRejectsIncomplete(t *testing.T) {
	m := NewManagerWithStores(newTestStore(t))

	assert.Error(t, m.Store(&Account{Username: "alice", Password: "p"}))
	assert.Error(t, m.Store(&Account{Platform: "instagram", Password: "p"}))
	assert.Error(t, m.Store(&Account{Platform: "instagram", Username: "alice"}))
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("IMAGEDL_INSTAGRAM_USERNAME", "envuser")
	t.Setenv("IMAGEDL_INSTAGRAM_PASSWORD", "envpass")

	store := NewEnvironmentStore()
	got, err := store.Retrieve("instagram")
	require.NoError(t, err)
	assert.Equal(t, "envuser", got.Username)
	assert.Equal(t, "envpass", got.Password)

	_, err = store.Retrieve("pinterest")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	assert.ErrorIs(t, store.Store(&Account{}), ErrStoreUnavailable)
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "********", MaskPassword("abc"))
	assert.Equal(t, "h******2", MaskPassword("hunter2"))
	assert.Equal(t, "h******g", MaskPassword("hunter2long"))
}

func TestLoadCookiesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(
		"# Netscape HTTP Cookie File\n"+
			"\n"+
			".instagram.com\tTRUE\t/\tTRUE\t1999999999\tsessionid\tabc123\n"+
			"www.pinterest.com\tFALSE\t/\tFALSE\t0\t_pinterest_sess\txyz\n"), 0o644))

	cookies, err := LoadCookiesFile(path)
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	assert.Equal(t, "instagram.com", cookies[0].Domain)
	assert.Equal(t, "sessionid", cookies[0].Name)
	assert.Equal(t, "abc123", cookies[0].Value)
	assert.True(t, cookies[0].Secure)
	assert.False(t, cookies[0].Expires.IsZero())

	assert.Equal(t, "www.pinterest.com", cookies[1].Domain)
	assert.True(t, cookies[1].Expires.IsZero())
}

func TestLoadCookiesFileMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte("only\tthree\tfields\n"), 0o644))

	_, err := LoadCookiesFile(path)
	require.Error(t, err)
}

func TestCookiesForDomain(t *testing.T) {
	cookies, err := LoadCookiesFile(writeCookies(t))
	require.NoError(t, err)

	ig := CookiesForDomain(cookies, "www.instagram.com")
	require.Len(t, ig, 1)
	assert.Equal(t, "sessionid", ig[0].Name)

	assert.Empty(t, CookiesForDomain(cookies, "example.com"))
}

func writeCookies(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(
		".instagram.com\tTRUE\t/\tTRUE\t1999999999\tsessionid\tabc123\n"), 0o644))
	return path
}
