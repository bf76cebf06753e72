package convo

import (
	"context"

	"study-bot/internal/repo"
)

// Store is the slice of the repository the conversation engine needs.
// *repo.PostgresRepository and *repo.SQLiteRepository both satisfy it.
type Store interface {
	UpsertUserByWA(ctx context.Context, profile repo.UserProfile) (*repo.User, error)
	InsertMessage(ctx context.Context, rec repo.MessageRecord) error
	AppendDownload(ctx context.Context, entry repo.DownloadEntry) error
	ListDownloads(ctx context.Context, userID string, limit int) ([]repo.DownloadEntry, error)
	ListRecentMessages(ctx context.Context, userID string, limit int) ([]repo.MessageRecord, error)

	RecentMaterials(ctx context.Context, category string, limit int) ([]repo.Material, error)
	FindMaterialCandidates(ctx context.Context, tokens []string, category string, loose bool) ([]repo.Material, error)

	GetFileInfo(ctx context.Context, id string) (*repo.FileInfo, error)
	ReadFile(ctx context.Context, id string) ([]byte, *repo.FileInfo, error)
	IncrementDownloads(ctx context.Context, id string) error
	IncrementPurchases(ctx context.Context, id string, amount float64) error
}
