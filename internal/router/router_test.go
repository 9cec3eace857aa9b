package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedIn() bool  { return true }
func signedOut() bool { return false }

func TestResolveRedirects(t *testing.T) {
	r := New(signedIn)

	for _, p := range []string{"", "/", "signed-in-redirect", "/signed-in-redirect/"} {
		m, err := r.Resolve(p)
		require.NoError(t, err, p)
		assert.Equal(t, PathTasks, m.Path, p)
		assert.NotEmpty(t, m.Redirects, p)
	}
}

func TestResolveTaskDetail(t *testing.T) {
	r := New(signedIn)

	m, err := r.Resolve("/apps/tasks/42?tab=info")
	require.NoError(t, err)
	assert.Equal(t, PathTask, m.Route.Path)
	assert.Equal(t, GuardAuth, m.Route.Guard)

	id, ok := m.Param("id")
	require.True(t, ok)
	assert.Equal(t, "42", id)

	n, err := m.IntParam("id")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Empty(t, m.Redirects)
}

func TestIntParamErrors(t *testing.T) {
	r := New(signedIn)

	m, err := r.Resolve("apps/tasks/abc")
	require.NoError(t, err)
	_, err = m.IntParam("id")
	assert.Error(t, err)

	m, err = r.Resolve("apps/tasks")
	require.NoError(t, err)
	_, err = m.IntParam("id")
	assert.Error(t, err)
}

func TestAuthGuardSendsGuestsToSignIn(t *testing.T) {
	r := New(signedOut)

	m, err := r.Resolve("apps/tasks/7")
	require.NoError(t, err)
	assert.Equal(t, PathSignIn, m.Path)
	assert.Equal(t, "apps/tasks/7", m.ReturnTo)

	m, err = r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, PathSignIn, m.Path)
	assert.Equal(t, []string{"", PathTasks}, m.Redirects)
	assert.Equal(t, PathTasks, m.ReturnTo)
}

func TestNoAuthGuardSendsUsersHome(t *testing.T) {
	r := New(signedIn)

	m, err := r.Resolve("sign-up")
	require.NoError(t, err)
	assert.Equal(t, PathTasks, m.Path)
	assert.Equal(t, []string{PathSignUp, PathSignedInRedirect}, m.Redirects)

	guest := New(nil)
	m, err = guest.Resolve("sign-in")
	require.NoError(t, err)
	assert.Equal(t, PathSignIn, m.Path)
	assert.Equal(t, "empty", m.Route.Layout)
}

func TestLandingIsOpen(t *testing.T) {
	for _, auth := range []func() bool{signedIn, signedOut} {
		m, err := New(auth).Resolve("home")
		require.NoError(t, err)
		assert.Equal(t, PathHome, m.Path)
	}
}

func TestSignOutRequiresAuth(t *testing.T) {
	m, err := New(signedOut).Resolve("sign-out")
	require.NoError(t, err)
	assert.Equal(t, PathSignIn, m.Path)

	m, err = New(signedIn).Resolve("sign-out")
	require.NoError(t, err)
	assert.Equal(t, PathSignOut, m.Path)
}

func TestUnknownPath(t *testing.T) {
	_, err := New(signedIn).Resolve("apps/notes")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestRedirectLoop(t *testing.T) {
	r := NewWithRoutes([]Route{
		{Path: "a", RedirectTo: "b"},
		{Path: "b", RedirectTo: "a"},
	}, nil)

	_, err := r.Resolve("a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many redirects")
}

func TestRelative(t *testing.T) {
	assert.Equal(t, "apps/tasks/3", Relative("apps/tasks/2", "..", "3"))
	assert.Equal(t, "apps/tasks/3", Relative("/apps/tasks/2/", "../3"))
	assert.Equal(t, "apps/tasks", Relative("apps/tasks/2", "../"))
	assert.Equal(t, "apps/tasks/9", Relative("apps/tasks", "9"))
	assert.Equal(t, "", Relative("home", ".."))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "apps/tasks", Clean("//apps//tasks/?x=1"))
	assert.Equal(t, "", Clean("/"))
	assert.Equal(t, "apps/tasks/5", TaskPath(5))
}
