package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"study-bot/internal/repo"
)

const (
	maxUploadBytes      = 64 << 20
	defaultListLimit    = 100
	materialsListCache  = "admin:materials:list"
	materialsCacheTTL   = 2 * time.Minute
	defaultTrendsWindow = 30 * 24 * time.Hour
)

func (s *Server) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	filter := repo.MaterialFilter{
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Topic:    strings.TrimSpace(r.URL.Query().Get("topic")),
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
	}
	if filter.Category != "" && !repo.ValidCategory(filter.Category) {
		writeError(w, http.StatusBadRequest, "unknown category "+filter.Category)
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	unfiltered := filter == (repo.MaterialFilter{}) && limit == defaultListLimit
	if unfiltered && s.deps.Redis != nil {
		var cached []repo.Material
		if hit, err := s.deps.Redis.GetJSON(r.Context(), materialsListCache, &cached); err == nil && hit {
			writeSuccess(w, http.StatusOK, "materials", cached)
			return
		}
	}

	items, err := s.deps.Materials.ListMaterials(r.Context(), filter, limit)
	if err != nil {
		s.writeStoreError(w, "list materials", err)
		return
	}
	if unfiltered && s.deps.Redis != nil {
		if err := s.deps.Redis.SetJSON(r.Context(), materialsListCache, items, materialsCacheTTL); err != nil {
			s.logger.Warn("materials list cache write failed", "error", err)
		}
	}
	writeSuccess(w, http.StatusOK, "materials", items)
}

// materialForm is the multipart metadata accompanying an upload.
type materialForm struct {
	Title       string
	Category    string
	Topics      []string
	Keywords    []string
	Description string
	Price       string
}

func parseMaterialForm(r *http.Request) (*materialForm, error) {
	form := &materialForm{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Category:    strings.TrimSpace(r.FormValue("category")),
		Topics:      splitList(r.FormValue("topics")),
		Keywords:    splitList(r.FormValue("keywords")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Price:       strings.TrimSpace(r.FormValue("price")),
	}
	if form.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !repo.ValidCategory(form.Category) {
		return nil, fmt.Errorf("category must be one of %s", strings.Join(repo.Categories, ", "))
	}
	price, err := normalisePrice(form.Price)
	if err != nil {
		return nil, err
	}
	form.Price = price
	return form, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalisePrice accepts "Free" (any case, also as empty input) or a
// non-negative decimal amount, optionally prefixed with a currency symbol.
func normalisePrice(raw string) (string, error) {
	if raw == "" || strings.EqualFold(raw, "free") {
		return "Free", nil
	}
	cleaned := strings.TrimLeft(raw, "$€£Rp ")
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || amount < 0 {
		return "", fmt.Errorf("price must be \"Free\" or a non-negative amount")
	}
	if amount == 0 {
		return "Free", nil
	}
	return raw, nil
}

func (s *Server) handleUploadMaterial(w http.ResponseWriter, r *http.Request) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	form, err := parseMaterialForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed reading file part")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "file part is empty")
		return
	}

	info, err := s.deps.Materials.SaveFile(r.Context(), header.Filename, detectMimeType(header, data), data)
	if err != nil {
		s.writeStoreError(w, "save file", err)
		return
	}

	material := repo.Material{
		Title:         form.Title,
		Category:      form.Category,
		Topics:        form.Topics,
		Keywords:      form.Keywords,
		Price:         form.Price,
		FileID:        info.ID,
		FileName:      info.Name,
		FileSizeBytes: info.SizeBytes,
		MimeType:      info.MimeType,
	}
	if form.Description != "" {
		material.Description = &form.Description
	}

	created, err := s.deps.Materials.InsertMaterial(r.Context(), material)
	if err != nil {
		// The record failed, so the stored bytes would be orphaned.
		if delErr := s.deps.Materials.DeleteFile(r.Context(), info.ID); delErr != nil {
			s.logger.Error("orphaned upload cleanup failed", "file_id", info.ID, "error", delErr)
		}
		s.writeStoreError(w, "insert material", err)
		return
	}

	s.invalidateMaterialCaches(r.Context(), created.Category)
	writeSuccess(w, http.StatusCreated, "material created", created)
}

func detectMimeType(header *multipart.FileHeader, data []byte) string {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return http.DetectContentType(data)
}

func (s *Server) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	item, err := s.deps.Materials.GetMaterialByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, "get material", err)
		return
	}
	writeSuccess(w, http.StatusOK, "material", item)
}

// materialUpdate is the JSON body for PUT /materials/{id}. Pointer fields
// distinguish "not sent" from "set to empty".
type materialUpdate struct {
	Title       *string   `json:"title"`
	Category    *string   `json:"category"`
	Topics      *[]string `json:"topics"`
	Keywords    *[]string `json:"keywords"`
	Description *string   `json:"description"`
	Price       *string   `json:"price"`
}

func (s *Server) handleUpdateMaterial(w http.ResponseWriter, r *http.Request) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	var update materialUpdate
	if err := decodeJSONBody(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}

	item, err := s.deps.Materials.GetMaterialByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, "get material", err)
		return
	}

	if update.Title != nil {
		if strings.TrimSpace(*update.Title) == "" {
			writeError(w, http.StatusBadRequest, "title must not be empty")
			return
		}
		item.Title = strings.TrimSpace(*update.Title)
	}
	if update.Category != nil {
		if !repo.ValidCategory(*update.Category) {
			writeError(w, http.StatusBadRequest, "unknown category "+*update.Category)
			return
		}
		item.Category = *update.Category
	}
	if update.Topics != nil {
		item.Topics = *update.Topics
	}
	if update.Keywords != nil {
		item.Keywords = *update.Keywords
	}
	if update.Description != nil {
		if *update.Description == "" {
			item.Description = nil
		} else {
			item.Description = update.Description
		}
	}
	if update.Price != nil {
		price, err := normalisePrice(*update.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		item.Price = price
	}

	updated, err := s.deps.Materials.UpdateMaterial(r.Context(), *item)
	if err != nil {
		s.writeStoreError(w, "update material", err)
		return
	}
	s.invalidateMaterialCaches(r.Context(), updated.Category)
	writeSuccess(w, http.StatusOK, "material updated", updated)
}

func (s *Server) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Materials.DeleteMaterial(r.Context(), id); err != nil {
		s.writeStoreError(w, "delete material", err)
		return
	}
	s.invalidateMaterialCaches(r.Context(), "")
	writeSuccess(w, http.StatusOK, "material deleted", nil)
}

func (s *Server) handleDownloadMaterialFile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	item, err := s.deps.Materials.GetMaterialByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, "get material", err)
		return
	}
	data, info, err := s.deps.Materials.ReadFile(r.Context(), item.FileID)
	if err != nil {
		s.writeStoreError(w, "read material file", err)
		return
	}
	w.Header().Set("Content-Type", info.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("file download write failed", "material", item.ID, "error", err)
	}
}

func (s *Server) handleIncrementDownload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	if err := s.deps.Materials.IncrementDownloads(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeStoreError(w, "increment downloads", err)
		return
	}
	writeSuccess(w, http.StatusOK, "download counted", nil)
}

func (s *Server) handleIncrementPurchase(w http.ResponseWriter, r *http.Request) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	var body struct {
		Amount float64 `json:"amount"`
	}
	// An absent body counts the purchase with zero revenue.
	if err := decodeJSONBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if body.Amount < 0 {
		writeError(w, http.StatusBadRequest, "amount must be non-negative")
		return
	}
	if err := s.deps.Materials.IncrementPurchases(r.Context(), chi.URLParam(r, "id"), body.Amount); err != nil {
		s.writeStoreError(w, "increment purchases", err)
		return
	}
	writeSuccess(w, http.StatusOK, "purchase counted", nil)
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	summary, err := s.deps.Materials.CatalogSummaryStats(r.Context())
	if err != nil {
		s.writeStoreError(w, "catalog summary", err)
		return
	}
	writeSuccess(w, http.StatusOK, "catalog summary", summary)
}

func (s *Server) handleTopicTrends(w http.ResponseWriter, r *http.Request) {
	s.handleTrends(w, r, "topic trends", func(ctx context.Context, from, to time.Time) ([]repo.TrendRow, error) {
		return s.deps.Materials.TopicTrends(ctx, from, to)
	})
}

func (s *Server) handleCategoryTrends(w http.ResponseWriter, r *http.Request) {
	s.handleTrends(w, r, "category trends", func(ctx context.Context, from, to time.Time) ([]repo.TrendRow, error) {
		return s.deps.Materials.CategoryTrends(ctx, from, to)
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request, action string, fetch func(context.Context, time.Time, time.Time) ([]repo.TrendRow, error)) {
	if s.deps.Materials == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := fetch(r.Context(), from, to)
	if err != nil {
		s.writeStoreError(w, action, err)
		return
	}
	writeSuccess(w, http.StatusOK, action, rows)
}

// parseDateRange reads optional from/to query params. Both RFC3339 and
// plain dates are accepted; the default window is the last 30 days.
func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.Add(-defaultTrendsWindow)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", raw)
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", raw)
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must not precede from")
	}
	return from, to, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// invalidateMaterialCaches drops the admin list cache and the bot's
// recent-materials fallback entries after a catalog mutation.
func (s *Server) invalidateMaterialCaches(ctx context.Context, category string) {
	if s.deps.Redis == nil {
		return
	}
	keys := []string{materialsListCache, "materials:recent:all"}
	if category != "" {
		keys = append(keys, "materials:recent:"+category)
	} else {
		for _, cat := range repo.Categories {
			keys = append(keys, "materials:recent:"+cat)
		}
	}
	if err := s.deps.Redis.Delete(ctx, keys...); err != nil {
		s.logger.Warn("material cache invalidation failed", "error", err)
	}
}
