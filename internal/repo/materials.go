package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const materialColumns = `id, title, category, topics, keywords, description, price,
       file_id, file_name, file_size_bytes, mime_type,
       downloads, purchases, revenue, created_at, updated_at`

func scanMaterial(row pgx.Row) (*Material, error) {
	var m Material
	if err := row.Scan(
		&m.ID, &m.Title, &m.Category, &m.Topics, &m.Keywords, &m.Description, &m.Price,
		&m.FileID, &m.FileName, &m.FileSizeBytes, &m.MimeType,
		&m.Downloads, &m.Purchases, &m.Revenue, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresRepository) scanMaterialRows(rows pgx.Rows, verb string) ([]Material, error) {
	defer rows.Close()
	var materials []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
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

// InsertMaterial creates a new catalog record. The referenced file must
// already exist in the binary content store.
func (r *PostgresRepository) InsertMaterial(ctx context.Context, m Material) (*Material, error) {
	const q = `
INSERT INTO materials (title, category, topics, keywords, description, price,
                       file_id, file_name, file_size_bytes, mime_type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + materialColumns + `;`
	row := r.pool.QueryRow(ctx, q,
		m.Title, m.Category, m.Topics, m.Keywords, m.Description, m.Price,
		m.FileID, m.FileName, m.FileSizeBytes, m.MimeType,
	)
	inserted, err := scanMaterial(row)
	if err != nil {
		return nil, fmt.Errorf("insert material: %w", err)
	}
	return inserted, nil
}

// GetMaterialByID retrieves one catalog record.
func (r *PostgresRepository) GetMaterialByID(ctx context.Context, id string) (*Material, error) {
	const q = `SELECT ` + materialColumns + ` FROM materials WHERE id = $1 LIMIT 1;`
	m, err := scanMaterial(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get material by id: %w", err)
	}
	return m, nil
}

// UpdateMaterial overwrites the editable fields of a catalog record.
// Counters and file linkage are not touched here.
func (r *PostgresRepository) UpdateMaterial(ctx context.Context, m Material) (*Material, error) {
	const q = `
UPDATE materials
SET title = $2, category = $3, topics = $4, keywords = $5, description = $6, price = $7,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + materialColumns + `;`
	row := r.pool.QueryRow(ctx, q, m.ID, m.Title, m.Category, m.Topics, m.Keywords, m.Description, m.Price)
	updated, err := scanMaterial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update material: %w", err)
	}
	return updated, nil
}

// DeleteMaterial removes the catalog record together with its stored file
// content so neither side is left orphaned.
func (r *PostgresRepository) DeleteMaterial(ctx context.Context, id string) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var fileID string
		if err := tx.QueryRow(ctx, `DELETE FROM materials WHERE id = $1 RETURNING file_id`, id).Scan(&fileID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("delete material: %w", err)
		}
		// file_chunks go away via ON DELETE CASCADE.
		if _, err := tx.Exec(ctx, `DELETE FROM files WHERE id = $1`, fileID); err != nil {
			return fmt.Errorf("delete material file: %w", err)
		}
		return nil
	})
}

// ListMaterials returns catalog records matching the admin filter, newest first.
func (r *PostgresRepository) ListMaterials(ctx context.Context, filter MaterialFilter, limit int) ([]Material, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		clauses []string
		args    []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Topic != "" {
		args = append(args, "%"+filter.Topic+"%")
		clauses = append(clauses, fmt.Sprintf("array_to_string(topics, ' ') ILIKE $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(title ILIKE $%d OR description ILIKE $%d OR array_to_string(keywords, ' ') ILIKE $%d)", n, n, n))
	}

	q := `SELECT ` + materialColumns + ` FROM materials`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d;", len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return r.scanMaterialRows(rows, "material")
}

// RecentMaterials returns the most recently created materials, optionally
// scoped to a category. Used as the search fallback.
func (r *PostgresRepository) RecentMaterials(ctx context.Context, category string, limit int) ([]Material, error) {
	if limit <= 0 {
		limit = 5
	}
	var (
		rows pgx.Rows
		err  error
	)
	if category != "" {
		const q = `SELECT ` + materialColumns + ` FROM materials WHERE category = $1 ORDER BY created_at DESC LIMIT $2;`
		rows, err = r.pool.Query(ctx, q, category, limit)
	} else {
		const q = `SELECT ` + materialColumns + ` FROM materials ORDER BY created_at DESC LIMIT $1;`
		rows, err = r.pool.Query(ctx, q, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recent materials: %w", err)
	}
	return r.scanMaterialRows(rows, "recent material")
}

// FindMaterialCandidates fetches materials where any token appears in the
// title, category, topics, keywords or description. The strict pass anchors
// each token at a word boundary; the loose pass widens to a wildcard-wrapped
// substring match. Rows come back in insertion order so relevance scoring
// stays deterministic for equal scores.
func (r *PostgresRepository) FindMaterialCandidates(ctx context.Context, tokens []string, category string, loose bool) ([]Material, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	if category != "" {
		args = append(args, category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}

	var tokenClauses []string
	for _, token := range tokens {
		if loose {
			args = append(args, "%"+token+"%")
			n := len(args)
			tokenClauses = append(tokenClauses, fmt.Sprintf(
				"(title ILIKE $%d OR category ILIKE $%d OR array_to_string(topics, ' ') ILIKE $%d OR array_to_string(keywords, ' ') ILIKE $%d OR description ILIKE $%d)",
				n, n, n, n, n))
		} else {
			args = append(args, `\m`+regexp.QuoteMeta(token))
			n := len(args)
			tokenClauses = append(tokenClauses, fmt.Sprintf(
				"(title ~* $%d OR category ~* $%d OR array_to_string(topics, ' ') ~* $%d OR array_to_string(keywords, ' ') ~* $%d OR description ~* $%d)",
				n, n, n, n, n))
		}
	}
	clauses = append(clauses, "("+strings.Join(tokenClauses, " OR ")+")")

	q := `SELECT ` + materialColumns + ` FROM materials WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC;`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find material candidates: %w", err)
	}
	return r.scanMaterialRows(rows, "material candidate")
}

// IncrementDownloads bumps the download counter atomically at the store.
func (r *PostgresRepository) IncrementDownloads(ctx context.Context, id string) error {
	const q = `UPDATE materials SET downloads = downloads + 1, updated_at = NOW() WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementPurchases bumps the purchase counter and adds amount to revenue
// in a single atomic statement.
func (r *PostgresRepository) IncrementPurchases(ctx context.Context, id string, amount float64) error {
	const q = `UPDATE materials SET purchases = purchases + 1, revenue = revenue + $2, updated_at = NOW() WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, amount)
	if err != nil {
		return fmt.Errorf("increment purchases: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CatalogSummaryStats aggregates catalog-wide counters.
func (r *PostgresRepository) CatalogSummaryStats(ctx context.Context) (*CatalogSummary, error) {
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
	row := r.pool.QueryRow(ctx, q)
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
	rows, err := r.pool.Query(ctx, byCat)
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

// CategoryTrends groups catalog counters by category within the date range.
func (r *PostgresRepository) CategoryTrends(ctx context.Context, from, to time.Time) ([]TrendRow, error) {
	const q = `
SELECT category, COUNT(*), COALESCE(SUM(downloads), 0), COALESCE(SUM(purchases), 0), COALESCE(SUM(revenue), 0)
FROM materials
WHERE created_at >= $1 AND created_at < $2
GROUP BY category
ORDER BY SUM(downloads) DESC;
`
	return r.queryTrends(ctx, q, from, to, "category trend")
}

// TopicTrends groups catalog counters by individual topic within the date range.
func (r *PostgresRepository) TopicTrends(ctx context.Context, from, to time.Time) ([]TrendRow, error) {
	const q = `
SELECT topic, COUNT(*), COALESCE(SUM(downloads), 0), COALESCE(SUM(purchases), 0), COALESCE(SUM(revenue), 0)
FROM materials, unnest(topics) AS topic
WHERE created_at >= $1 AND created_at < $2
GROUP BY topic
ORDER BY SUM(downloads) DESC
LIMIT 25;
`
	return r.queryTrends(ctx, q, from, to, "topic trend")
}

func (r *PostgresRepository) queryTrends(ctx context.Context, q string, from, to time.Time, verb string) ([]TrendRow, error) {
	rows, err := r.pool.Query(ctx, q, from, to)
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
