package httpserver

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"study-bot/internal/repo"
)

const (
	defaultUserListLimit = 200
	exportLimit          = 100000
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Users == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	limit := defaultUserListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	users, err := s.deps.Users.ListUsers(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, "list users", err)
		return
	}
	writeSuccess(w, http.StatusOK, "users", users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.Users == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	user, err := s.deps.Users.GetUserByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, "get user", err)
		return
	}
	downloads, err := s.deps.Users.ListDownloads(r.Context(), user.ID, 20)
	if err != nil {
		s.writeStoreError(w, "list user downloads", err)
		return
	}
	messages, err := s.deps.Users.ListRecentMessages(r.Context(), user.ID, 20)
	if err != nil {
		s.writeStoreError(w, "list user messages", err)
		return
	}
	writeSuccess(w, http.StatusOK, "user", map[string]any{
		"user":      user,
		"downloads": downloads,
		"messages":  messages,
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Users == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	stats, err := s.deps.Users.UserStatsSummary(r.Context())
	if err != nil {
		s.writeStoreError(w, "user stats", err)
		return
	}
	writeSuccess(w, http.StatusOK, "user stats", stats)
}

func (s *Server) handleExportUsersCSV(w http.ResponseWriter, r *http.Request) {
	if s.deps.Users == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	users, err := s.deps.Users.ListUsers(r.Context(), exportLimit)
	if err != nil {
		s.writeStoreError(w, "export users", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="users.csv"`)

	cw := csv.NewWriter(w)
	header := []string{"id", "wa_id", "display_name", "study_level", "last_active_at", "created_at"}
	if err := cw.Write(header); err != nil {
		s.logger.Warn("csv export write failed", "error", err)
		return
	}
	for _, u := range users {
		if err := cw.Write(userCSVRow(u)); err != nil {
			s.logger.Warn("csv export write failed", "error", err)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warn("csv export flush failed", "error", err)
	}
}

func userCSVRow(u repo.User) []string {
	return []string{
		u.ID,
		u.WAID,
		stringOrEmpty(u.DisplayName),
		stringOrEmpty(u.StudyLevel),
		u.LastActiveAt.UTC().Format(time.RFC3339),
		u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func stringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
