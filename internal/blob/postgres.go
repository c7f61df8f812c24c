package blob

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
)

// Postgres stores blobs in the blobs table created by the store migration.
type Postgres struct {
	db      *sqlx.DB
	baseURL string
}

func NewPostgres(db *sqlx.DB, baseURL string) *Postgres {
	return &Postgres{db: db, baseURL: baseURL}
}

type blobRow struct {
	Object
	Data []byte `db:"data"`
}

func (p *Postgres) Upload(ctx context.Context, data []byte, contentType string) (*Object, error) {
	ct, err := DetectImageType(data, contentType)
	if err != nil {
		return nil, err
	}
	obj := Object{
		Key:         newKey(ct),
		ContentType: ct,
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}

	query := `INSERT INTO blobs (key, content_type, size, data, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := p.db.ExecContext(ctx, query, obj.Key, obj.ContentType, obj.Size, data, obj.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}

	obj.URL = publicURL(p.baseURL, obj.Key)
	return &obj, nil
}

func (p *Postgres) Open(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	var row blobRow
	query := `SELECT key, content_type, size, data, created_at FROM blobs WHERE key = $1`
	if err := p.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to load blob: %w", err)
	}

	obj := row.Object
	obj.URL = publicURL(p.baseURL, obj.Key)
	return io.NopCloser(bytes.NewReader(row.Data)), &obj, nil
}
