package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/refql/internal/domain"
)

// Postgres stores documents in a single JSONB-backed table, one row per
// document keyed by collection.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Insert persists a document and returns it with server-assigned
// timestamps.
func (p *Postgres) Insert(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.Collection == "" {
		return domain.Document{}, fmt.Errorf("document has no collection")
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	body, err := doc.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to marshal properties for document %s: %w", doc.ID, err)
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO documents (id, collection, body)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, doc.ID, doc.Collection, body)
	if err := row.Scan(&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return domain.Document{}, fmt.Errorf("failed to insert document: %w", err)
	}
	return doc, nil
}

// Find returns the documents of a collection matching the filter, ordered
// by identifier for determinism.
func (p *Postgres) Find(ctx context.Context, collection string, filter domain.Condition, projection []string) ([]domain.Document, error) {
	builder := &sqlBuilder{args: []any{collection}}
	where, err := builder.where(filter)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, collection, body, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND ` + where + `
		ORDER BY id
	`
	rows, err := p.pool.Query(ctx, query, builder.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, project(doc, projection))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

// FindIDs returns the identifiers of matching documents.
func (p *Postgres) FindIDs(ctx context.Context, collection string, filter domain.Condition) ([]uuid.UUID, error) {
	builder := &sqlBuilder{args: []any{collection}}
	where, err := builder.where(filter)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id
		FROM documents
		WHERE collection = $1 AND ` + where + `
		ORDER BY id
	`
	rows, err := p.pool.Query(ctx, query, builder.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query document ids: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document ids: %w", err)
	}
	return ids, nil
}

// GetByIDs fetches documents by identifier across all collections,
// preserving no particular order.
func (p *Postgres) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Document, error) {
	if len(ids) == 0 {
		return []domain.Document{}, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, collection, body, created_at, updated_at
		FROM documents
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents by ids: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

// Count returns the number of matching documents.
func (p *Postgres) Count(ctx context.Context, collection string, filter domain.Condition) (int64, error) {
	builder := &sqlBuilder{args: []any{collection}}
	where, err := builder.where(filter)
	if err != nil {
		return 0, err
	}

	var count int64
	query := `SELECT COUNT(*) FROM documents WHERE collection = $1 AND ` + where
	if err := p.pool.QueryRow(ctx, query, builder.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Distinct returns the distinct values of a field across matching
// documents. Array-valued fields contribute their elements.
func (p *Postgres) Distinct(ctx context.Context, collection string, field string, filter domain.Condition) ([]any, error) {
	builder := &sqlBuilder{args: []any{collection}}
	where, err := builder.where(filter)
	if err != nil {
		return nil, err
	}
	path := builder.bind(jsonPath(field))

	query := `
		SELECT DISTINCT value
		FROM documents, jsonb_path_query(body, ` + path + `::jsonpath) AS value
		WHERE collection = $1 AND ` + where + `
		ORDER BY value
	`
	rows, err := p.pool.Query(ctx, query, builder.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct values: %w", err)
	}
	defer rows.Close()

	values := make([]any, 0)
	for rows.Next() {
		var value any
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan distinct value: %w", err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read distinct values: %w", err)
	}
	return values, nil
}

func scanDocument(scan func(dest ...any) error) (domain.Document, error) {
	var (
		doc  domain.Document
		body []byte
		cAt  time.Time
		uAt  time.Time
	)
	if err := scan(&doc.ID, &doc.Collection, &body, &cAt, &uAt); err != nil {
		return domain.Document{}, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.CreatedAt = cAt
	doc.UpdatedAt = uAt

	props, err := domain.FromJSONBProperties(body)
	if err != nil {
		return domain.Document{}, fmt.Errorf("document %s: invalid body JSON: %w", doc.ID, err)
	}
	doc.Properties = props
	return doc, nil
}
