package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgclosets/quote-service/internal/shared"
)

type mapPermissions map[int64][]string

func (m mapPermissions) EffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	return m[userID], nil
}

type failingPermissions struct{}

func (failingPermissions) EffectivePermissions(context.Context, int64) ([]string, error) {
	return nil, errors.New("connection refused")
}

type staticCatalog struct{}

func (staticCatalog) ListRoles(context.Context) ([]Role, error) {
	return []Role{{ID: 1, Name: "admin", Permissions: shared.AdminScopes()}}, nil
}

func (staticCatalog) ListPermissions(context.Context) ([]Permission, error) {
	return []Permission{{ID: 1, Name: shared.PermQuotesView}}, nil
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID == "" {
		return req
	}
	sess := &shared.Session{ID: "sess-" + userID}
	sess.SetUser(userID, "user"+userID+"@pgclosets.com")
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func serve(mw func(http.Handler) http.Handler, req *http.Request) int {
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAny(t *testing.T) {
	m := Middleware{Service: mapPermissions{
		1: {"Quotes.View"},
		2: {shared.PermBookingsView},
	}}

	cases := []struct {
		name string
		user string
		want int
	}{
		{name: "anonymous", user: "", want: http.StatusUnauthorized},
		{name: "granted case insensitive", user: "1", want: http.StatusNoContent},
		{name: "other permission", user: "2", want: http.StatusForbidden},
		{name: "no grants", user: "3", want: http.StatusForbidden},
		{name: "non numeric id", user: "staff", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, serve(m.RequireAny(shared.PermQuotesView), requestAs(tc.user)))
		})
	}
}

func TestRequireAll(t *testing.T) {
	m := Middleware{Service: mapPermissions{
		1: shared.AdminScopes(),
		2: {shared.PermQuotesView},
	}}
	mw := m.RequireAll(shared.PermQuotesView, shared.PermQuotesExport)

	assert.Equal(t, http.StatusNoContent, serve(mw, requestAs("1")))
	assert.Equal(t, http.StatusForbidden, serve(mw, requestAs("2")))
}

func TestRequireWithoutPermissionsPassesThrough(t *testing.T) {
	m := Middleware{Service: failingPermissions{}}
	assert.Equal(t, http.StatusNoContent, serve(m.RequireAny(" ", ""), requestAs("")))
}

func TestRequireSourceFailure(t *testing.T) {
	m := Middleware{Service: failingPermissions{}}
	assert.Equal(t, http.StatusInternalServerError, serve(m.RequireAny(shared.PermQuotesView), requestAs("1")))
}

func TestGranted(t *testing.T) {
	m := Middleware{Service: mapPermissions{1: {shared.PermQuotesExport}}}

	ok, err := m.Granted(requestAs("1"), shared.PermQuotesExport)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Granted(requestAs("1"), shared.PermQuotesStatusUpdate)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Granted(requestAs(""), shared.PermQuotesExport)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermissionsHandler(t *testing.T) {
	m := Middleware{Service: mapPermissions{1: shared.AdminScopes(), 2: {shared.PermBookingsView}}}
	router := chi.NewRouter()
	NewPermissionsHandler(nil, staticCatalog{}, m).MountRoutes(router)

	do := func(path, user string) *httptest.ResponseRecorder {
		req := requestAs(user)
		req.URL.Path = path
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do("/session/permissions", "2")
	require.Equal(t, http.StatusOK, rec.Code)
	var mine struct {
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Equal(t, []string{shared.PermBookingsView}, mine.Permissions)

	assert.Equal(t, http.StatusUnauthorized, do("/session/permissions", "").Code)
	assert.Equal(t, http.StatusForbidden, do("/admin/roles", "2").Code)

	rec = do("/admin/roles", "1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"admin"`)
	assert.Equal(t, http.StatusOK, do("/admin/permissions", "1").Code)
}
