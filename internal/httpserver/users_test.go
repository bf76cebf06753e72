package httpserver

import (
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"study-bot/internal/repo"
)

func userFixture() *fakeUserStore {
	name := "Alya"
	level := "final year"
	return &fakeUserStore{
		users: []repo.User{
			{
				ID:           "u1",
				WAID:         "15551234567",
				DisplayName:  &name,
				StudyLevel:   &level,
				LastActiveAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
				CreatedAt:    time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
			},
			{
				ID:           "u2",
				WAID:         "15557654321",
				LastActiveAt: time.Date(2026, 7, 20, 8, 0, 0, 0, time.UTC),
				CreatedAt:    time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
			},
		},
		downloads: []repo.DownloadEntry{
			{MaterialID: "m1", Title: "Drug Math Drills", Category: repo.CategoryPharmacology},
		},
	}
}

func TestListUsers(t *testing.T) {
	srv := newTestServer(t, Dependencies{Users: userFixture()}, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	require.Len(t, env.Data, 2)
}

func TestListUsersRejectsBadLimit(t *testing.T) {
	srv := newTestServer(t, Dependencies{Users: userFixture()}, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users?limit=zero", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserIncludesDownloads(t *testing.T) {
	srv := newTestServer(t, Dependencies{Users: userFixture()}, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users/u1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Drug Math Drills")
}

func TestGetUserNotFound(t *testing.T) {
	srv := newTestServer(t, Dependencies{Users: userFixture()}, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserStats(t *testing.T) {
	srv := newTestServer(t, Dependencies{Users: userFixture()}, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users/stats/summary", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalUsers":2`)
}

func TestExportUsersCSV(t *testing.T) {
	srv := newTestServer(t, Dependencies{Users: userFixture()}, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users/export/csv", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "users.csv")

	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"id", "wa_id", "display_name", "study_level", "last_active_at", "created_at"}, rows[0])
	require.Equal(t, "u1", rows[1][0])
	require.Equal(t, "Alya", rows[1][2])
	require.Equal(t, "", rows[2][2])
}
