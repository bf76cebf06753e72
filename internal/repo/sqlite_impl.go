package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func randomUUID() string {
	return uuid.NewString()
}

func listToJSON(vals []string) string {
	if vals == nil {
		vals = []string{}
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func listFromJSON(data string) []string {
	var vals []string
	if err := json.Unmarshal([]byte(data), &vals); err != nil {
		return nil
	}
	return vals
}

// -- Users --

func (r *SQLiteRepository) UpsertUserByWA(ctx context.Context, profile UserProfile) (*User, error) {
	const q = `
INSERT INTO users (id, wa_id, wa_jid, display_name, study_level, last_active_at, updated_at)
VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT (wa_id) DO UPDATE SET
    wa_jid = excluded.wa_jid,
    display_name = COALESCE(excluded.display_name, users.display_name),
    study_level = COALESCE(excluded.study_level, users.study_level),
    last_active_at = CURRENT_TIMESTAMP,
    updated_at = CURRENT_TIMESTAMP
RETURNING id, wa_id, wa_jid, display_name, study_level, last_active_at, created_at, updated_at;
`
	row := r.db.QueryRowContext(ctx, q,
		randomUUID(),
		profile.WAID,
		profile.WAJID,
		profile.DisplayName,
		profile.StudyLevel,
	)

	var u User
	if err := row.Scan(&u.ID, &u.WAID, &u.WAJID, &u.DisplayName, &u.StudyLevel, &u.LastActiveAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT id, wa_id, wa_jid, display_name, study_level, last_active_at, created_at, updated_at
FROM users
WHERE id = ?
LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, id)
	var user User
	if err := row.Scan(&user.ID, &user.WAID, &user.WAJID, &user.DisplayName, &user.StudyLevel, &user.LastActiveAt, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &user, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, wa_id, wa_jid, display_name, study_level, last_active_at, created_at, updated_at
FROM users
ORDER BY last_active_at DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.WAID, &u.WAJID, &u.DisplayName, &u.StudyLevel, &u.LastActiveAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *SQLiteRepository) UserStatsSummary(ctx context.Context) (*UserStats, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE last_active_at >= datetime('now', '-7 days')),
       COUNT(*) FILTER (WHERE created_at >= datetime('now', '-30 days')),
       (SELECT COUNT(*) FROM downloads)
FROM users;
`
	var stats UserStats
	row := r.db.QueryRowContext(ctx, q)
	if err := row.Scan(&stats.TotalUsers, &stats.ActiveLastWeek, &stats.NewLastMonth, &stats.TotalDownloads); err != nil {
		return nil, fmt.Errorf("user stats summary: %w", err)
	}
	return &stats, nil
}

// -- Download history --

func (r *SQLiteRepository) AppendDownload(ctx context.Context, entry DownloadEntry) error {
	const q = `
INSERT INTO downloads (id, user_id, material_id, title, category, price)
VALUES (?, ?, ?, ?, ?, ?);
`
	_, err := r.db.ExecContext(ctx, q,
		randomUUID(),
		entry.UserID,
		entry.MaterialID,
		entry.Title,
		entry.Category,
		entry.Price,
	)
	if err != nil {
		return fmt.Errorf("append download: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListDownloads(ctx context.Context, userID string, limit int) ([]DownloadEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, material_id, title, category, price, created_at
FROM downloads
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var entries []DownloadEntry
	for rows.Next() {
		var e DownloadEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.MaterialID, &e.Title, &e.Category, &e.Price, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downloads: %w", err)
	}
	return entries, nil
}

// -- Messages --

func (r *SQLiteRepository) InsertMessage(ctx context.Context, msg MessageRecord) error {
	const q = `
INSERT INTO messages (id, user_id, direction, message_type, content)
VALUES (?, ?, ?, ?, ?);
`
	_, err := r.db.ExecContext(ctx, q,
		randomUUID(),
		msg.UserID,
		msg.Direction,
		msg.Type,
		msg.Content,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListRecentMessages(ctx context.Context, userID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT direction, message_type, content, created_at
FROM messages
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	var records []MessageRecord
	for rows.Next() {
		var msg MessageRecord
		if err := rows.Scan(&msg.Direction, &msg.Type, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		msg.UserID = userID
		records = append(records, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}
	return records, nil
}

// -- Catalog --

const sqliteMaterialColumns = `id, title, category, topics, keywords, description, price,
       file_id, file_name, file_size_bytes, mime_type,
       downloads, purchases, revenue, created_at, updated_at`

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMaterial(row sqliteRowScanner) (*Material, error) {
	var (
		m        Material
		topics   string
		keywords string
	)
	if err := row.Scan(
		&m.ID, &m.Title, &m.Category, &topics, &keywords, &m.Description, &m.Price,
		&m.FileID, &m.FileName, &m.FileSizeBytes, &m.MimeType,
		&m.Downloads, &m.Purchases, &m.Revenue, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.Topics = listFromJSON(topics)
	m.Keywords = listFromJSON(keywords)
	return &m, nil
}

func collectSQLiteMaterials(rows *sql.Rows, verb string) ([]Material, error) {
	defer rows.Close()
	var materials []Material
	for rows.Next() {
		m, err := scanSQLiteMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", verb, err)
		}
		materials = append(materials, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", verb, err)
	}
	return materials, nil
}

func (r *SQLiteRepository) InsertMaterial(ctx context.Context, m Material) (*Material, error) {
	const q = `
INSERT INTO materials (id, title, category, topics, keywords, description, price,
                       file_id, file_name, file_size_bytes, mime_type)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + sqliteMaterialColumns + `;`
	row := r.db.QueryRowContext(ctx, q,
		randomUUID(), m.Title, m.Category, listToJSON(m.Topics), listToJSON(m.Keywords), m.Description, m.Price,
		m.FileID, m.FileName, m.FileSizeBytes, m.MimeType,
	)
	inserted, err := scanSQLiteMaterial(row)
	if err != nil {
		return nil, fmt.Errorf("insert material: %w", err)
	}
	return inserted, nil
}

func (r *SQLiteRepository) GetMaterialByID(ctx context.Context, id string) (*Material, error) {
	const q = `SELECT ` + sqliteMaterialColumns + ` FROM materials WHERE id = ? LIMIT 1;`
	m, err := scanSQLiteMaterial(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get material by id: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) UpdateMaterial(ctx context.Context, m Material) (*Material, error) {
	const q = `
UPDATE materials
SET title = ?, category = ?, topics = ?, keywords = ?, description = ?, price = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + sqliteMaterialColumns + `;`
	row := r.db.QueryRowContext(ctx, q,
		m.Title, m.Category, listToJSON(m.Topics), listToJSON(m.Keywords), m.Description, m.Price, m.ID,
	)
	updated, err := scanSQLiteMaterial(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update material: %w", err)
	}
	return updated, nil
}

func (r *SQLiteRepository) DeleteMaterial(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete material: %w", err)
	}
	defer tx.Rollback()

	var fileID string
	if err := tx.QueryRowContext(ctx, `DELETE FROM materials WHERE id = ? RETURNING file_id`, id).Scan(&fileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete material: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("delete material file: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete material: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListMaterials(ctx context.Context, filter MaterialFilter, limit int) ([]Material, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		clauses []string
		args    []any
	)
	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Topic != "" {
		clauses = append(clauses, "topics LIKE ?")
		args = append(args, "%"+filter.Topic+"%")
	}
	if filter.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ? OR keywords LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	q := `SELECT ` + sqliteMaterialColumns + ` FROM materials`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT ?;"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return collectSQLiteMaterials(rows, "material")
}

func (r *SQLiteRepository) RecentMaterials(ctx context.Context, category string, limit int) ([]Material, error) {
	if limit <= 0 {
		limit = 5
	}
	var (
		rows *sql.Rows
		err  error
	)
	if category != "" {
		const q = `SELECT ` + sqliteMaterialColumns + ` FROM materials WHERE category = ? ORDER BY created_at DESC LIMIT ?;`
		rows, err = r.db.QueryContext(ctx, q, category, limit)
	} else {
		const q = `SELECT ` + sqliteMaterialColumns + ` FROM materials ORDER BY created_at DESC LIMIT ?;`
		rows, err = r.db.QueryContext(ctx, q, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recent materials: %w", err)
	}
	return collectSQLiteMaterials(rows, "recent material")
}

// FindMaterialCandidates matches tokens as substrings across the indexed
// fields. SQLite has no word-boundary regex operator, so the strict and
// loose passes share the same LIKE pattern here; scoring in the caller
// stays identical across backends.
func (r *SQLiteRepository) FindMaterialCandidates(ctx context.Context, tokens []string, category string, loose bool) ([]Material, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	if category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, category)
	}

	var tokenClauses []string
	for _, token := range tokens {
		pattern := "%" + strings.ToLower(token) + "%"
		tokenClauses = append(tokenClauses,
			"(lower(title) LIKE ? OR lower(category) LIKE ? OR lower(topics) LIKE ? OR lower(keywords) LIKE ? OR lower(COALESCE(description, '')) LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}
	clauses = append(clauses, "("+strings.Join(tokenClauses, " OR ")+")")

	q := `SELECT ` + sqliteMaterialColumns + ` FROM materials WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC;`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find material candidates: %w", err)
	}
	return collectSQLiteMaterials(rows, "material candidate")
}

func (r *SQLiteRepository) IncrementDownloads(ctx context.Context, id string) error {
	const q = `UPDATE materials SET downloads = downloads + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) IncrementPurchases(ctx context.Context, id string, amount float64) error {
	const q = `UPDATE materials SET purchases = purchases + 1, revenue = revenue + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	res, err := r.db.ExecContext(ctx, q, amount, id)
	if err != nil {
		return fmt.Errorf("increment purchases: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Analytics --

func (r *SQLiteRepository) CatalogSummaryStats(ctx context.Context) (*CatalogSummary, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE price = 'Free'),
       COUNT(*) FILTER (WHERE price <> 'Free'),
       COALESCE(SUM(downloads), 0),
       COALESCE(SUM(purchases), 0),
       COALESCE(SUM(revenue), 0)
FROM materials;
`
	var summary CatalogSummary
	row := r.db.QueryRowContext(ctx, q)
	if err := row.Scan(
		&summary.TotalMaterials,
		&summary.FreeMaterials,
		&summary.PaidMaterials,
		&summary.TotalDownloads,
		&summary.TotalPurchases,
		&summary.TotalRevenue,
	); err != nil {
		return nil, fmt.Errorf("catalog summary: %w", err)
	}

	const byCat = `
SELECT category, COUNT(*), COALESCE(SUM(downloads), 0)
FROM materials
GROUP BY category
ORDER BY category;
`
	rows, err := r.db.QueryContext(ctx, byCat)
	if err != nil {
		return nil, fmt.Errorf("catalog summary by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Materials, &cc.Downloads); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		summary.ByCategory = append(summary.ByCategory, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category counts: %w", err)
	}
	return &summary, nil
}

func (r *SQLiteRepository) CategoryTrends(ctx context.Context, from, to time.Time) ([]TrendRow, error) {
	const q = `
SELECT category, COUNT(*), COALESCE(SUM(downloads), 0), COALESCE(SUM(purchases), 0), COALESCE(SUM(revenue), 0)
FROM materials
WHERE created_at >= ? AND created_at < ?
GROUP BY category
ORDER BY SUM(downloads) DESC;
`
	return r.queryTrends(ctx, q, from, to, "category trend")
}

func (r *SQLiteRepository) TopicTrends(ctx context.Context, from, to time.Time) ([]TrendRow, error) {
	const q = `
SELECT je.value, COUNT(*), COALESCE(SUM(downloads), 0), COALESCE(SUM(purchases), 0), COALESCE(SUM(revenue), 0)
FROM materials, json_each(materials.topics) AS je
WHERE created_at >= ? AND created_at < ?
GROUP BY je.value
ORDER BY SUM(downloads) DESC
LIMIT 25;
`
	return r.queryTrends(ctx, q, from, to, "topic trend")
}

func (r *SQLiteRepository) queryTrends(ctx context.Context, q string, from, to time.Time, verb string) ([]TrendRow, error) {
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	defer rows.Close()

	var trends []TrendRow
	for rows.Next() {
		var t TrendRow
		if err := rows.Scan(&t.Name, &t.Materials, &t.Downloads, &t.Purchases, &t.Revenue); err != nil {
			return nil, fmt.Errorf("scan %s: %w", verb, err)
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", verb, err)
	}
	return trends, nil
}

// -- Binary content --

func (r *SQLiteRepository) SaveFile(ctx context.Context, name, mimeType string, data []byte) (*FileInfo, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save file: %w", err)
	}
	defer tx.Rollback()

	var info FileInfo
	const insertFile = `
INSERT INTO files (id, name, mime_type, size_bytes, chunk_size)
VALUES (?, ?, ?, ?, ?)
RETURNING id, name, mime_type, size_bytes, chunk_size, created_at;
`
	row := tx.QueryRowContext(ctx, insertFile, randomUUID(), name, mimeType, int64(len(data)), defaultChunkSize)
	if err := row.Scan(&info.ID, &info.Name, &info.MimeType, &info.SizeBytes, &info.ChunkSize, &info.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}

	const insertChunk = `INSERT INTO file_chunks (file_id, seq, data) VALUES (?, ?, ?);`
	for seq, off := 0, 0; off < len(data); seq, off = seq+1, off+defaultChunkSize {
		end := off + defaultChunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := tx.ExecContext(ctx, insertChunk, info.ID, seq, data[off:end]); err != nil {
			return nil, fmt.Errorf("insert file chunk %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save file: %w", err)
	}
	return &info, nil
}

func (r *SQLiteRepository) GetFileInfo(ctx context.Context, id string) (*FileInfo, error) {
	const q = `
SELECT id, name, mime_type, size_bytes, chunk_size, created_at
FROM files
WHERE id = ?
LIMIT 1;
`
	var info FileInfo
	row := r.db.QueryRowContext(ctx, q, id)
	if err := row.Scan(&info.ID, &info.Name, &info.MimeType, &info.SizeBytes, &info.ChunkSize, &info.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get file info: %w", err)
	}
	return &info, nil
}

func (r *SQLiteRepository) ReadFile(ctx context.Context, id string) ([]byte, *FileInfo, error) {
	info, err := r.GetFileInfo(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	const q = `SELECT data FROM file_chunks WHERE file_id = ? ORDER BY seq ASC;`
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, nil, fmt.Errorf("read file chunks: %w", err)
	}
	defer rows.Close()

	data := make([]byte, 0, info.SizeBytes)
	for rows.Next() {
		var chunk []byte
		if err := rows.Scan(&chunk); err != nil {
			return nil, nil, fmt.Errorf("scan file chunk: %w", err)
		}
		data = append(data, chunk...)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate file chunks: %w", err)
	}
	return data, info, nil
}

func (r *SQLiteRepository) DeleteFile(ctx context.Context, id string) error {
	const q = `DELETE FROM files WHERE id = ?;`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// -- API Keys --

func (r *SQLiteRepository) SyncGeminiKeys(ctx context.Context, keys []string) error {
	for idx, key := range keys {
		if err := r.upsertAPIKey(ctx, providerGemini, key, idx); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) upsertAPIKey(ctx context.Context, provider, value string, priority int) error {
	const q = `
INSERT INTO api_keys (id, provider, value, priority)
VALUES (?, ?, ?, ?)
ON CONFLICT (provider, value) DO UPDATE
SET priority = excluded.priority,
    updated_at = CURRENT_TIMESTAMP;`
	_, err := r.db.ExecContext(ctx, q, randomUUID(), provider, value, priority)
	if err != nil {
		return fmt.Errorf("upsert api key: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListActiveGeminiKeys(ctx context.Context) ([]APIKey, error) {
	const q = `
SELECT id, provider, value, priority, cooldown_until, created_at, updated_at
FROM api_keys
WHERE provider = ?
ORDER BY priority ASC;
`
	rows, err := r.db.QueryContext(ctx, q, providerGemini)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var res []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Provider, &k.Value, &k.Priority, &k.CooldownUntil, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		res = append(res, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys rows: %w", err)
	}
	return res, nil
}

func (r *SQLiteRepository) ClearCooldown(ctx context.Context, id string) error {
	const q = `UPDATE api_keys SET cooldown_until = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("clear cooldown: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}

func (r *SQLiteRepository) SetCooldownUntil(ctx context.Context, id string, until time.Time) error {
	const q = `UPDATE api_keys SET cooldown_until = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, until, id)
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}
