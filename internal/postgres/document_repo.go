package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	schemaDocuments = `
		CREATE TABLE IF NOT EXISTS store_documents (
			collection text PRIMARY KEY,
			data       jsonb NOT NULL DEFAULT '[]'::jsonb,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`

	queryLoadDocuments = `SELECT collection, data FROM store_documents`

	queryUpsertDocument = `
		INSERT INTO store_documents (collection, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (collection)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
)

// querier is the subset of pgxpool.Pool the repository needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DocumentRepository keeps each store collection as one jsonb array row.
type DocumentRepository struct {
	db querier
}

func NewDocumentRepository(db querier) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Migrate creates the documents table if it is missing.
func (r *DocumentRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDocuments); err != nil {
		return fmt.Errorf("migrate store_documents: %w", err)
	}
	return nil
}

func (r *DocumentRepository) LoadDocument(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := r.db.Query(ctx, queryLoadDocuments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			name string
			data []byte
		)
		if err := rows.Scan(&name, &data); err != nil {
			return nil, err
		}
		out[name] = json.RawMessage(data)
	}
	return out, rows.Err()
}

func (r *DocumentRepository) SaveCollection(ctx context.Context, collection string, data json.RawMessage) error {
	_, err := r.db.Exec(ctx, queryUpsertDocument, collection, []byte(data))
	return err
}
