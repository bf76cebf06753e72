package repo

import (
	"context"
	"io/fs"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Users
	UpsertUserByWA(ctx context.Context, profile UserProfile) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context, limit int) ([]User, error)
	UserStatsSummary(ctx context.Context) (*UserStats, error)

	// Download history
	AppendDownload(ctx context.Context, entry DownloadEntry) error
	ListDownloads(ctx context.Context, userID string, limit int) ([]DownloadEntry, error)

	// Messages
	InsertMessage(ctx context.Context, msg MessageRecord) error
	ListRecentMessages(ctx context.Context, userID string, limit int) ([]MessageRecord, error)

	// Catalog
	InsertMaterial(ctx context.Context, m Material) (*Material, error)
	GetMaterialByID(ctx context.Context, id string) (*Material, error)
	UpdateMaterial(ctx context.Context, m Material) (*Material, error)
	DeleteMaterial(ctx context.Context, id string) error
	ListMaterials(ctx context.Context, filter MaterialFilter, limit int) ([]Material, error)
	RecentMaterials(ctx context.Context, category string, limit int) ([]Material, error)
	FindMaterialCandidates(ctx context.Context, tokens []string, category string, loose bool) ([]Material, error)
	IncrementDownloads(ctx context.Context, id string) error
	IncrementPurchases(ctx context.Context, id string, amount float64) error

	// Analytics
	CatalogSummaryStats(ctx context.Context) (*CatalogSummary, error)
	CategoryTrends(ctx context.Context, from, to time.Time) ([]TrendRow, error)
	TopicTrends(ctx context.Context, from, to time.Time) ([]TrendRow, error)

	// Binary content
	SaveFile(ctx context.Context, name, mimeType string, data []byte) (*FileInfo, error)
	GetFileInfo(ctx context.Context, id string) (*FileInfo, error)
	ReadFile(ctx context.Context, id string) ([]byte, *FileInfo, error)
	DeleteFile(ctx context.Context, id string) error

	// API Keys
	SyncGeminiKeys(ctx context.Context, keys []string) error
	ListActiveGeminiKeys(ctx context.Context) ([]APIKey, error)
	ClearCooldown(ctx context.Context, id string) error
	SetCooldownUntil(ctx context.Context, id string, until time.Time) error
}
