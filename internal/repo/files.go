package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// defaultChunkSize splits stored file bytes into 256 KiB rows.
const defaultChunkSize = 256 * 1024

// SaveFile writes data into the chunked content store and returns its
// metadata, including the generated content id.
func (r *PostgresRepository) SaveFile(ctx context.Context, name, mimeType string, data []byte) (*FileInfo, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var info FileInfo
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		const insertFile = `
INSERT INTO files (name, mime_type, size_bytes, chunk_size)
VALUES ($1, $2, $3, $4)
RETURNING id, name, mime_type, size_bytes, chunk_size, created_at;
`
		row := tx.QueryRow(ctx, insertFile, name, mimeType, int64(len(data)), defaultChunkSize)
		if err := row.Scan(&info.ID, &info.Name, &info.MimeType, &info.SizeBytes, &info.ChunkSize, &info.CreatedAt); err != nil {
			return fmt.Errorf("insert file: %w", err)
		}

		const insertChunk = `INSERT INTO file_chunks (file_id, seq, data) VALUES ($1, $2, $3);`
		for seq, off := 0, 0; off < len(data); seq, off = seq+1, off+defaultChunkSize {
			end := off + defaultChunkSize
			if end > len(data) {
				end = len(data)
			}
			if _, err := tx.Exec(ctx, insertChunk, info.ID, seq, data[off:end]); err != nil {
				return fmt.Errorf("insert file chunk %d: %w", seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetFileInfo returns metadata for a stored file without reading its bytes.
func (r *PostgresRepository) GetFileInfo(ctx context.Context, id string) (*FileInfo, error) {
	const q = `
SELECT id, name, mime_type, size_bytes, chunk_size, created_at
FROM files
WHERE id = $1
LIMIT 1;
`
	var info FileInfo
	row := r.pool.QueryRow(ctx, q, id)
	if err := row.Scan(&info.ID, &info.Name, &info.MimeType, &info.SizeBytes, &info.ChunkSize, &info.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get file info: %w", err)
	}
	return &info, nil
}

// ReadFile assembles the full content of a stored file from its chunks in
// sequence order.
func (r *PostgresRepository) ReadFile(ctx context.Context, id string) ([]byte, *FileInfo, error) {
	info, err := r.GetFileInfo(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	const q = `SELECT data FROM file_chunks WHERE file_id = $1 ORDER BY seq ASC;`
	rows, err := r.pool.Query(ctx, q, id)
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

// DeleteFile removes a stored file and all of its chunks.
func (r *PostgresRepository) DeleteFile(ctx context.Context, id string) error {
	const q = `DELETE FROM files WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
