package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"study-bot/internal/repo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMaterialStore implements MaterialStore in memory.
type fakeMaterialStore struct {
	materials map[string]repo.Material
	files     map[string][]byte
	fileInfos map[string]repo.FileInfo

	insertErr   error
	deletedFile string
	nextID      int
}

func newFakeMaterialStore() *fakeMaterialStore {
	return &fakeMaterialStore{
		materials: make(map[string]repo.Material),
		files:     make(map[string][]byte),
		fileInfos: make(map[string]repo.FileInfo),
	}
}

func (f *fakeMaterialStore) InsertMaterial(_ context.Context, m repo.Material) (*repo.Material, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	m.ID = "mat-" + string(rune('0'+f.nextID))
	m.CreatedAt = time.Now()
	f.materials[m.ID] = m
	return &m, nil
}

func (f *fakeMaterialStore) GetMaterialByID(_ context.Context, id string) (*repo.Material, error) {
	m, ok := f.materials[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &m, nil
}

func (f *fakeMaterialStore) UpdateMaterial(_ context.Context, m repo.Material) (*repo.Material, error) {
	if _, ok := f.materials[m.ID]; !ok {
		return nil, repo.ErrNotFound
	}
	f.materials[m.ID] = m
	return &m, nil
}

func (f *fakeMaterialStore) DeleteMaterial(_ context.Context, id string) error {
	if _, ok := f.materials[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.materials, id)
	return nil
}

func (f *fakeMaterialStore) ListMaterials(_ context.Context, _ repo.MaterialFilter, _ int) ([]repo.Material, error) {
	var out []repo.Material
	for _, m := range f.materials {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMaterialStore) IncrementDownloads(_ context.Context, id string) error {
	m, ok := f.materials[id]
	if !ok {
		return repo.ErrNotFound
	}
	m.Downloads++
	f.materials[id] = m
	return nil
}

func (f *fakeMaterialStore) IncrementPurchases(_ context.Context, id string, amount float64) error {
	m, ok := f.materials[id]
	if !ok {
		return repo.ErrNotFound
	}
	m.Purchases++
	m.Revenue += amount
	f.materials[id] = m
	return nil
}

func (f *fakeMaterialStore) CatalogSummaryStats(_ context.Context) (*repo.CatalogSummary, error) {
	return &repo.CatalogSummary{TotalMaterials: int64(len(f.materials))}, nil
}

func (f *fakeMaterialStore) CategoryTrends(_ context.Context, _, _ time.Time) ([]repo.TrendRow, error) {
	return []repo.TrendRow{{Name: repo.CategoryPharmacology, Materials: 2}}, nil
}

func (f *fakeMaterialStore) TopicTrends(_ context.Context, _, _ time.Time) ([]repo.TrendRow, error) {
	return []repo.TrendRow{{Name: "wound care", Materials: 1}}, nil
}

func (f *fakeMaterialStore) SaveFile(_ context.Context, name, mimeType string, data []byte) (*repo.FileInfo, error) {
	id := "file-" + name
	f.files[id] = data
	info := repo.FileInfo{ID: id, Name: name, MimeType: mimeType, SizeBytes: int64(len(data))}
	f.fileInfos[id] = info
	return &info, nil
}

func (f *fakeMaterialStore) ReadFile(_ context.Context, id string) ([]byte, *repo.FileInfo, error) {
	data, ok := f.files[id]
	if !ok {
		return nil, nil, repo.ErrNotFound
	}
	info := f.fileInfos[id]
	return data, &info, nil
}

func (f *fakeMaterialStore) DeleteFile(_ context.Context, id string) error {
	if _, ok := f.files[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.files, id)
	f.deletedFile = id
	return nil
}

// fakeUserStore implements UserStore in memory.
type fakeUserStore struct {
	users     []repo.User
	downloads []repo.DownloadEntry
}

func (f *fakeUserStore) ListUsers(_ context.Context, _ int) ([]repo.User, error) {
	return f.users, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (*repo.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeUserStore) UserStatsSummary(_ context.Context) (*repo.UserStats, error) {
	return &repo.UserStats{TotalUsers: int64(len(f.users))}, nil
}

func (f *fakeUserStore) ListDownloads(_ context.Context, _ string, _ int) ([]repo.DownloadEntry, error) {
	return f.downloads, nil
}

func (f *fakeUserStore) ListRecentMessages(_ context.Context, _ string, _ int) ([]repo.MessageRecord, error) {
	return nil, nil
}

func newTestServer(t *testing.T, deps Dependencies, token string) *Server {
	t.Helper()
	return New(":0", testLogger(), nil, deps, "", token)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, Dependencies{}, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"message":"ok"}`, rec.Body.String())
}

func TestAdminTokenMiddleware(t *testing.T) {
	deps := Dependencies{Materials: newFakeMaterialStore()}
	srv := newTestServer(t, deps, "secret")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/materials", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/materials", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/materials", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminTokenDisabledWhenEmpty(t *testing.T) {
	deps := Dependencies{Materials: newFakeMaterialStore()}
	srv := newTestServer(t, deps, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/materials", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBasePathMounting(t *testing.T) {
	srv := New(":0", testLogger(), nil, Dependencies{}, "/bot", "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bot/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissingStoreAnswers503(t *testing.T) {
	srv := newTestServer(t, Dependencies{}, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/materials", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNormaliseBasePath(t *testing.T) {
	require.Equal(t, "", normaliseBasePath(""))
	require.Equal(t, "", normaliseBasePath("/"))
	require.Equal(t, "/bot", normaliseBasePath("bot"))
	require.Equal(t, "/bot", normaliseBasePath("/bot/"))
}

var errBoom = errors.New("boom")
