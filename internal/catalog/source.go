package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Source loads the default catalog snapshot.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
}

// Static serves a fixed set of records.
type Static []Record

// Load implements Source.
func (s Static) Load(context.Context) ([]Record, error) {
	return s, nil
}

// FileSource reads a JSON array of records, e.g. product_data.json.
type FileSource struct {
	Path string
}

// Load implements Source.
func (f FileSource) Load(_ context.Context) ([]Record, error) {
	if f.Path == "" {
		return nil, errors.New("catalog: file path is required")
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode parses a JSON array of records. Numbers are kept as json.Number so
// prices keep their exact decimal form.
func Decode(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w: %w", ErrMalformedCatalog, err)
	}
	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		rec, err := decodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("decode catalog record %d: %w: %w", i, ErrMalformedCatalog, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("record is null")
	}
	return rec, nil
}

// PGSource reads records from the catalog_products table, one JSONB document
// per product, in position order.
type PGSource struct {
	Pool *pgxpool.Pool
}

const listCatalogProducts = `SELECT attributes FROM catalog_products ORDER BY position, id`

// Load implements Source.
func (p PGSource) Load(ctx context.Context) ([]Record, error) {
	if p.Pool == nil {
		return nil, errors.New("catalog: database pool is required")
	}
	rows, err := p.Pool.Query(ctx, listCatalogProducts)
	if err != nil {
		return nil, fmt.Errorf("query catalog products: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan catalog products: %w", err)
	}
	records := make([]Record, 0, len(docs))
	for i, doc := range docs {
		rec, err := decodeRecord(doc)
		if err != nil {
			return nil, fmt.Errorf("decode catalog product %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Replace swaps the stored catalog for records inside one transaction.
func (p PGSource) Replace(ctx context.Context, records []Record) error {
	if p.Pool == nil {
		return errors.New("catalog: database pool is required")
	}
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_products`); err != nil {
		return fmt.Errorf("clear catalog products: %w", err)
	}
	for i, rec := range records {
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode catalog product %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO catalog_products (name, position, attributes) VALUES ($1, $2, $3)`,
			rec.DisplayName(), i, doc,
		); err != nil {
			return fmt.Errorf("insert catalog product %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}
