package repo

import "time"

// The fixed set of study domains a material can belong to.
const (
	CategoryFundamentals      = "fundamentals"
	CategoryMedicalSurgical   = "medical-surgical"
	CategoryPharmacology      = "pharmacology"
	CategoryMaternalPediatric = "maternal-pediatric"
)

// Categories lists the study domains in presentation order. Order matters:
// the bot presents them as a numbered list, so "3" always resolves to the
// third entry.
var Categories = []string{
	CategoryFundamentals,
	CategoryMedicalSurgical,
	CategoryPharmacology,
	CategoryMaternalPediatric,
}

// ValidCategory reports whether cat is one of the fixed study domains.
func ValidCategory(cat string) bool {
	for _, c := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// User represents the users table row.
type User struct {
	ID           string    `json:"id"`
	WAID         string    `json:"waId"`
	WAJID        *string   `json:"waJid,omitempty"`
	DisplayName  *string   `json:"displayName,omitempty"`
	StudyLevel   *string   `json:"studyLevel,omitempty"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserProfile carries data used to upsert a user.
type UserProfile struct {
	WAID        string
	WAJID       *string
	DisplayName *string
	StudyLevel  *string
}

// Material represents a purchasable document's metadata record.
type Material struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Topics        []string  `json:"topics"`
	Keywords      []string  `json:"keywords"`
	Description   *string   `json:"description,omitempty"`
	Price         string    `json:"price"`
	FileID        string    `json:"fileId"`
	FileName      string    `json:"fileName"`
	FileSizeBytes int64     `json:"fileSizeBytes"`
	MimeType      string    `json:"mimeType"`
	Downloads     int64     `json:"downloads"`
	Purchases     int64     `json:"purchases"`
	Revenue       float64   `json:"revenue"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MaterialFilter narrows admin catalog listings.
type MaterialFilter struct {
	Category string
	Topic    string
	Search   string
}

// FileInfo describes a stored binary object.
type FileInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mimeType"`
	SizeBytes int64     `json:"sizeBytes"`
	ChunkSize int       `json:"chunkSize"`
	CreatedAt time.Time `json:"createdAt"`
}

// DownloadEntry is one row of a user's download history.
type DownloadEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	MaterialID string    `json:"materialId"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Price      string    `json:"price"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MessageRecord is used to persist conversation logs.
type MessageRecord struct {
	UserID    string
	Direction string
	Type      string
	Content   *string
	CreatedAt time.Time
}

// APIKey represents a record in api_keys table.
type APIKey struct {
	ID            string
	Provider      string
	Value         string
	Priority      int
	CooldownUntil *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CatalogSummary aggregates catalog-wide counters for the dashboard.
type CatalogSummary struct {
	TotalMaterials int64           `json:"totalMaterials"`
	FreeMaterials  int64           `json:"freeMaterials"`
	PaidMaterials  int64           `json:"paidMaterials"`
	TotalDownloads int64           `json:"totalDownloads"`
	TotalPurchases int64           `json:"totalPurchases"`
	TotalRevenue   float64         `json:"totalRevenue"`
	ByCategory     []CategoryCount `json:"byCategory"`
}

// CategoryCount is one per-category slice of the catalog summary.
type CategoryCount struct {
	Category  string `json:"category"`
	Materials int64  `json:"materials"`
	Downloads int64  `json:"downloads"`
}

// TrendRow is a grouped analytics row (per category or per topic) within a
// date range.
type TrendRow struct {
	Name      string  `json:"name"`
	Materials int64   `json:"materials"`
	Downloads int64   `json:"downloads"`
	Purchases int64   `json:"purchases"`
	Revenue   float64 `json:"revenue"`
}

// UserStats aggregates user counters for the dashboard.
type UserStats struct {
	TotalUsers     int64 `json:"totalUsers"`
	ActiveLastWeek int64 `json:"activeLastWeek"`
	NewLastMonth   int64 `json:"newLastMonth"`
	TotalDownloads int64 `json:"totalDownloads"`
}
