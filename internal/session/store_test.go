package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, issuedAt time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": issuedAt.Unix(),
		"sub": "seller",
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func validState(t *testing.T, now time.Time) *State {
	t.Helper()
	expires := float64(now.Add(24 * time.Hour).Unix())
	return &State{
		Cookies: []Cookie{
			{Name: "wbx-refresh", Value: signedToken(t, now.Add(-time.Hour)), Expires: expires},
			{Name: "wbx-validation-key", Value: "vk", Expires: expires},
			{Name: "unrelated", Value: "x"},
		},
	}
}

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	st := NewStore(filepath.Join(t.TempDir(), "state", "wb_state.json"))
	st.now = func() time.Time { return now }
	return st
}

func TestLoad_MissingFile(t *testing.T) {
	st := newTestStore(t, time.Now())

	state, ok := st.Load()
	require.False(t, ok)
	require.Nil(t, state)
}

func TestLoad_CorruptFile(t *testing.T) {
	now := time.Now()
	st := newTestStore(t, now)
	require.NoError(t, os.MkdirAll(filepath.Dir(st.path), 0o755))
	require.NoError(t, os.WriteFile(st.path, []byte("{not json"), 0o600))

	_, ok := st.Load()
	require.False(t, ok)
}

func TestSaveThenLoad_RoundTrip(t *testing.T) {
	now := time.Now()
	st := newTestStore(t, now)

	require.NoError(t, st.Save(validState(t, now)))

	state, ok := st.Load()
	require.True(t, ok)
	require.Len(t, state.Cookies, 3)
	require.Equal(t, "wbx-refresh", state.Cookies[0].Name)
}

func TestSave_CreatesParentDirs(t *testing.T) {
	now := time.Now()
	st := NewStore(filepath.Join(t.TempDir(), "a", "b", "c", "state.json"))
	st.now = func() time.Time { return now }

	require.NoError(t, st.Save(validState(t, now)))

	_, err := os.Stat(st.path)
	require.NoError(t, err)
}

func TestSave_NilState(t *testing.T) {
	st := newTestStore(t, time.Now())
	require.Error(t, st.Save(nil))
}

func TestLoad_MissingCriticalCookie(t *testing.T) {
	now := time.Now()
	st := newTestStore(t, now)

	state := validState(t, now)
	state.Cookies = state.Cookies[:1] // drop wbx-validation-key
	require.NoError(t, st.Save(state))

	_, ok := st.Load()
	require.False(t, ok)
}

func TestLoad_CookieExpiringWithinMargin(t *testing.T) {
	now := time.Now()
	st := newTestStore(t, now)

	state := validState(t, now)
	// Not yet expired, but inside the one hour safety margin.
	state.Cookies[1].Expires = float64(now.Add(30 * time.Minute).Unix())
	require.NoError(t, st.Save(state))

	_, ok := st.Load()
	require.False(t, ok)
}

func TestLoad_SessionCookieWithoutExpiry(t *testing.T) {
	now := time.Now()
	st := newTestStore(t, now)

	state := validState(t, now)
	state.Cookies[0].Expires = 0
	state.Cookies[1].Expires = 0
	require.NoError(t, st.Save(state))

	_, ok := st.Load()
	require.True(t, ok)
}

func TestLoad_StaleRefreshToken(t *testing.T) {
	now := time.Now()
	st := newTestStore(t, now)

	state := validState(t, now)
	state.Cookies[0].Value = signedToken(t, now.Add(-91*24*time.Hour))
	require.NoError(t, st.Save(state))

	_, ok := st.Load()
	require.False(t, ok)
}

func TestLoad_MalformedRefreshToken(t *testing.T) {
	now := time.Now()
	st := newTestStore(t, now)

	state := validState(t, now)
	state.Cookies[0].Value = "not-a-jwt"
	require.NoError(t, st.Save(state))

	_, ok := st.Load()
	require.False(t, ok)
}

func TestLoad_TokenWithoutIssuedAt(t *testing.T) {
	now := time.Now()
	st := newTestStore(t, now)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "seller"})
	signed, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)

	state := validState(t, now)
	state.Cookies[0].Value = signed
	require.NoError(t, st.Save(state))

	// No iat claim means the age check is skipped, not failed.
	_, ok := st.Load()
	require.True(t, ok)
}
