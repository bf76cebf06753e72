package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"study-bot/internal/cache"
	"study-bot/internal/metrics"
	"study-bot/internal/repo"
)

// MaterialStore is the catalog slice of the repository the admin API needs.
type MaterialStore interface {
	InsertMaterial(ctx context.Context, m repo.Material) (*repo.Material, error)
	GetMaterialByID(ctx context.Context, id string) (*repo.Material, error)
	UpdateMaterial(ctx context.Context, m repo.Material) (*repo.Material, error)
	DeleteMaterial(ctx context.Context, id string) error
	ListMaterials(ctx context.Context, filter repo.MaterialFilter, limit int) ([]repo.Material, error)
	IncrementDownloads(ctx context.Context, id string) error
	IncrementPurchases(ctx context.Context, id string, amount float64) error

	CatalogSummaryStats(ctx context.Context) (*repo.CatalogSummary, error)
	CategoryTrends(ctx context.Context, from, to time.Time) ([]repo.TrendRow, error)
	TopicTrends(ctx context.Context, from, to time.Time) ([]repo.TrendRow, error)

	SaveFile(ctx context.Context, name, mimeType string, data []byte) (*repo.FileInfo, error)
	ReadFile(ctx context.Context, id string) ([]byte, *repo.FileInfo, error)
	DeleteFile(ctx context.Context, id string) error
}

// UserStore is the user slice of the repository the admin API needs.
type UserStore interface {
	ListUsers(ctx context.Context, limit int) ([]repo.User, error)
	GetUserByID(ctx context.Context, id string) (*repo.User, error)
	UserStatsSummary(ctx context.Context) (*repo.UserStats, error)
	ListDownloads(ctx context.Context, userID string, limit int) ([]repo.DownloadEntry, error)
	ListRecentMessages(ctx context.Context, userID string, limit int) ([]repo.MessageRecord, error)
}

// Dependencies exposes core dependencies to handlers. Materials and Users
// may be nil when the store is not configured; handlers then answer 503.
type Dependencies struct {
	Materials MaterialStore
	Users     UserStore
	Redis     *cache.Redis
}

// Server wraps an http.Server with the admin API routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	basePath   string
	adminToken string
}

// New creates the HTTP server listening on addr with health, metrics and
// admin endpoints. A non-empty adminToken gates the admin surface behind a
// bearer check.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies, basePath, adminToken string) *Server {
	server := &Server{
		logger:     logger.With("component", "http"),
		metrics:    metricRegistry,
		deps:       deps,
		basePath:   normaliseBasePath(basePath),
		adminToken: adminToken,
	}

	r := chi.NewRouter()
	r.Get("/healthz", server.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(server.requireAdminToken)

		r.Route("/materials", func(r chi.Router) {
			r.Get("/", server.handleListMaterials)
			r.Post("/upload", server.handleUploadMaterial)
			r.Get("/analytics/summary", server.handleAnalyticsSummary)
			r.Get("/analytics/topic-trends", server.handleTopicTrends)
			r.Get("/analytics/category-trends", server.handleCategoryTrends)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", server.handleGetMaterial)
				r.Put("/", server.handleUpdateMaterial)
				r.Delete("/", server.handleDeleteMaterial)
				r.Get("/file", server.handleDownloadMaterialFile)
				r.Patch("/increment-download", server.handleIncrementDownload)
				r.Patch("/increment-purchase", server.handleIncrementPurchase)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", server.handleListUsers)
			r.Get("/stats/summary", server.handleUserStats)
			r.Get("/export/csv", server.handleExportUsersCSV)
			r.Get("/{id}", server.handleGetUser)
		})
	})

	handler := mountWithBasePath(server.basePath, r)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured root handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, "ok", nil)
}

// requireAdminToken rejects admin requests without the configured bearer
// token. An empty token disables the check.
func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token != s.adminToken {
				writeError(w, http.StatusUnauthorized, "missing or invalid admin token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
