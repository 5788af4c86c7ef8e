package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/remote"
)

// testEnv points every command at a temporary database and an unreachable
// remote.
func testEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "cache.db"))
	t.Setenv("REMOTE_URL", "http://127.0.0.1:1")
	t.Setenv("REMOTE_MAX_RETRIES", "1")
	t.Setenv("REMOTE_INTERACTIVE_TIMEOUT", "500ms")
	t.Setenv("REMOTE_BULK_TIMEOUT", "500ms")
	t.Setenv("AUTH_EMAIL", "")
	t.Setenv("AUTH_PASSWORD", "")
	t.Setenv("AUTH_TOKEN_SECRET", "correct horse battery staple")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	root := NewRootCommand("test")
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func TestHelp_ListsAllCommands(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)

	for _, name := range []string{"serve", "sync", "status", "list", "add", "delete", "loans", "audit"} {
		assert.Contains(t, out, name)
	}
}

func TestStatus_JSON(t *testing.T) {
	testEnv(t)

	out, err := run(t, "status", "--json")
	require.NoError(t, err)

	var st statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "anonymous", st.Mode)
	assert.EqualValues(t, 3, st.Counts[entities.KindBook])
	assert.EqualValues(t, 5, st.Counts[entities.KindCategory])
}

func TestAddBook_OfflineIsKeptLocally(t *testing.T) {
	testEnv(t)

	out, err := run(t, "add", "book", "--title", "Dune", "--author", "Frank Herbert", "--isbn", "978-0441172719")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved locally")

	out, err = run(t, "list", "books", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "Dune")
	assert.Contains(t, out, "*create")
}

func TestList_OnlineKeepsUnpushedRows(t *testing.T) {
	testEnv(t)

	_, err := run(t, "add", "book", "--title", "Dune", "--author", "Frank Herbert", "--isbn", "978-0441172719")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := remote.PagedResult[entities.Book]{Page: 1, PageSize: 50, TotalPages: 1}
		if r.URL.Path == "/api/boeken" {
			page.Items = []entities.Book{{Model: entities.Model{ID: 50}, Title: "Solaris", Author: "Stanislaw Lem"}}
			page.Total = 1
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("REMOTE_URL", srv.URL)

	out, err := run(t, "list", "books")
	require.NoError(t, err)
	assert.Contains(t, out, "Solaris")
	assert.Contains(t, out, "Dune")
	assert.Contains(t, out, "*create")
}

func TestAddBook_Invalid(t *testing.T) {
	testEnv(t)

	_, err := run(t, "add", "book", "--title", "Dune", "--isbn", "12")
	assert.ErrorIs(t, err, entities.ErrInvalid)
}

func TestList_FallsBackToCache(t *testing.T) {
	testEnv(t)

	out, err := run(t, "list", "categories", "--json")
	require.NoError(t, err)

	var categories []entities.Category
	require.NoError(t, json.Unmarshal([]byte(out), &categories))
	assert.Len(t, categories, 5)
}

func TestLoans_LendAndReturnOffline(t *testing.T) {
	testEnv(t)

	out, err := run(t, "loans", "lend", "--book", "1", "--member", "1", "--json")
	require.NoError(t, err)
	var loan entities.Loan
	require.NoError(t, json.Unmarshal([]byte(out), &loan))
	require.NotZero(t, loan.ID)

	_, err = run(t, "loans", "lend", "--book", "1", "--member", "1")
	assert.Error(t, err, "a book can only be on loan once")

	out, err = run(t, "loans", "return", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "returned")

	out, err = run(t, "loans", "overdue")
	require.NoError(t, err)
	assert.Contains(t, out, "No overdue loans")
}

func TestSync_UnreachableRemoteFails(t *testing.T) {
	testEnv(t)

	out, err := run(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync failed for")
	assert.Contains(t, out, "failed")
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]entities.Kind{
		"book":       entities.KindBook,
		"books":      entities.KindBook,
		"categories": entities.KindCategory,
		"member":     entities.KindMember,
		"loans":      entities.KindLoan,
	} {
		got, err := parseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := parseKind("shelves")
	assert.Error(t, err)
}
