package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UpsertUserByWA stores or updates the user profile based on WhatsApp ID and
// refreshes last_active_at.
func (r *PostgresRepository) UpsertUserByWA(ctx context.Context, profile UserProfile) (*User, error) {
	const q = `
INSERT INTO users (wa_id, wa_jid, display_name, study_level, last_active_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (wa_id) DO UPDATE SET
    wa_jid = EXCLUDED.wa_jid,
    display_name = COALESCE(EXCLUDED.display_name, users.display_name),
    study_level = COALESCE(EXCLUDED.study_level, users.study_level),
    last_active_at = NOW(),
    updated_at = NOW()
RETURNING id, wa_id, wa_jid, display_name, study_level, last_active_at, created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, q,
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

// GetUserByID returns user by internal identifier.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT id, wa_id, wa_jid, display_name, study_level, last_active_at, created_at, updated_at
FROM users
WHERE id = $1
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, q, id)
	var user User
	if err := row.Scan(&user.ID, &user.WAID, &user.WAJID, &user.DisplayName, &user.StudyLevel, &user.LastActiveAt, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &user, nil
}

// ListUsers returns users ordered by most recent activity.
func (r *PostgresRepository) ListUsers(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, wa_id, wa_jid, display_name, study_level, last_active_at, created_at, updated_at
FROM users
ORDER BY last_active_at DESC
LIMIT $1;
`
	rows, err := r.pool.Query(ctx, q, limit)
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

// UserStatsSummary computes aggregate user counters for the dashboard.
func (r *PostgresRepository) UserStatsSummary(ctx context.Context) (*UserStats, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE last_active_at >= NOW() - INTERVAL '7 days'),
       COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '30 days'),
       (SELECT COUNT(*) FROM downloads)
FROM users;
`
	var stats UserStats
	row := r.pool.QueryRow(ctx, q)
	if err := row.Scan(&stats.TotalUsers, &stats.ActiveLastWeek, &stats.NewLastMonth, &stats.TotalDownloads); err != nil {
		return nil, fmt.Errorf("user stats summary: %w", err)
	}
	return &stats, nil
}

// AppendDownload records one entry of a user's download history.
func (r *PostgresRepository) AppendDownload(ctx context.Context, entry DownloadEntry) error {
	const q = `
INSERT INTO downloads (user_id, material_id, title, category, price)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, q,
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

// ListDownloads returns the user's download history, newest first.
func (r *PostgresRepository) ListDownloads(ctx context.Context, userID string, limit int) ([]DownloadEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, material_id, title, category, price, created_at
FROM downloads
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, q, userID, limit)
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

// InsertMessage stores a message record for auditing purposes.
func (r *PostgresRepository) InsertMessage(ctx context.Context, msg MessageRecord) error {
	const q = `
INSERT INTO messages (user_id, direction, message_type, content)
VALUES ($1, $2, $3, $4);
`
	_, err := r.pool.Exec(ctx, q,
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

// ListRecentMessages returns the latest messages exchanged with the user.
func (r *PostgresRepository) ListRecentMessages(ctx context.Context, userID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT direction, message_type, content, created_at
FROM messages
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, q, userID, limit)
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
