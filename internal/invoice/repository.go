package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/money"
)

// ListFilter narrows List results. An empty SessionID lists every invoice.
type ListFilter struct {
	SessionID string
	Page      int
	PerPage   int
}

func (f ListFilter) bounds() (limit, offset int) {
	limit = f.PerPage
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// Repository persists generated invoices.
type Repository interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, number string) (Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, int, error)
	Delete(ctx context.Context, number string) error
}

// MemoryRepository keeps invoices in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

// Save implements Repository.
func (m *MemoryRepository) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Number]; ok {
		return ErrDuplicateNumber
	}
	m.records[rec.Number] = rec
	return nil
}

// Get implements Repository.
func (m *MemoryRepository) Get(_ context.Context, number string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[number]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete implements Repository.
func (m *MemoryRepository) Delete(_ context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[number]; !ok {
		return ErrNotFound
	}
	delete(m.records, number)
	return nil
}

// List implements Repository, newest first.
func (m *MemoryRepository) List(_ context.Context, filter ListFilter) ([]Record, int, error) {
	m.mu.RLock()
	all := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if filter.SessionID != "" && rec.SessionID != filter.SessionID {
			continue
		}
		all = append(all, rec)
	}
	m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		if all[i].IssuedAt.Equal(all[j].IssuedAt) {
			return all[i].Number > all[j].Number
		}
		return all[i].IssuedAt.After(all[j].IssuedAt)
	})
	limit, offset := filter.bounds()
	total := len(all)
	if offset >= total {
		return []Record{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// PGRepository stores invoices in Postgres. Header and lines are written in
// one transaction.
type PGRepository struct {
	Pool *pgxpool.Pool
}

const (
	insertInvoiceSQL = `INSERT INTO invoices (
	number, session_id, issued_at, seller, client, summary, skipped,
	subtotal, total_tax, overall_discount, grand_total,
	amount_in_words, tax_in_words, document
) VALUES ($1, $2, $3, $4, $5, $6, $7,
	$8::text::numeric, $9::text::numeric, $10::text::numeric, $11::text::numeric,
	$12, $13, $14)`

	insertLineSQL = `INSERT INTO invoice_lines (
	invoice_number, position, name, quantity, unit_price, calculated_total, payload
) VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7)`

	selectInvoiceColumns = `number, session_id, issued_at, seller, client, summary, skipped,
	amount_in_words, tax_in_words, document`

	selectLinesSQL = `SELECT payload FROM invoice_lines WHERE invoice_number = $1 ORDER BY position`
)

const uniqueViolation = "23505"

// Save implements Repository.
func (r PGRepository) Save(ctx context.Context, rec Record) error {
	if r.Pool == nil {
		return errors.New("invoice: database pool is required")
	}
	seller, err := json.Marshal(rec.Seller)
	if err != nil {
		return err
	}
	client, err := json.Marshal(rec.Client)
	if err != nil {
		return err
	}
	summary, err := json.Marshal(rec.Invoice.Summary)
	if err != nil {
		return err
	}
	skipped, err := json.Marshal(rec.Invoice.Skipped)
	if err != nil {
		return err
	}

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s := rec.Invoice.Summary
	_, err = tx.Exec(ctx, insertInvoiceSQL,
		rec.Number, rec.SessionID, rec.IssuedAt.UTC(), seller, client, summary, skipped,
		money.Round(s.Subtotal).String(), money.Round(s.TotalTax).String(),
		money.Round(s.OverallDiscount).String(), money.Round(s.GrandTotal).String(),
		rec.AmountInWords, rec.TaxInWords, rec.Document,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateNumber
		}
		return fmt.Errorf("insert invoice: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range rec.Invoice.Items {
		payload, err := json.Marshal(it)
		if err != nil {
			return err
		}
		batch.Queue(insertLineSQL, rec.Number, i, it.Name, it.Quantity,
			money.Round(it.UnitPrice).String(), money.Round(it.CalculatedTotal).String(), payload)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert invoice lines: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Get implements Repository.
func (r PGRepository) Get(ctx context.Context, number string) (Record, error) {
	if r.Pool == nil {
		return Record{}, errors.New("invoice: database pool is required")
	}
	row := r.Pool.QueryRow(ctx, `SELECT `+selectInvoiceColumns+` FROM invoices WHERE number = $1`, number)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if err := r.loadLines(ctx, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List implements Repository. Listed records carry their lines but not the
// rendered document.
func (r PGRepository) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	if r.Pool == nil {
		return nil, 0, errors.New("invoice: database pool is required")
	}
	limit, offset := filter.bounds()
	var total int
	if err := r.Pool.QueryRow(ctx,
		`SELECT count(*) FROM invoices WHERE ($1 = '' OR session_id = $1)`, filter.SessionID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+selectInvoiceColumns+` FROM invoices
WHERE ($1 = '' OR session_id = $1)
ORDER BY issued_at DESC, number DESC
LIMIT $2 OFFSET $3`, filter.SessionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		rec.Document = ""
		out = append(out, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		if err := r.loadLines(ctx, &out[i]); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// Delete implements Repository. Lines go with the invoice through the
// cascading foreign key.
func (r PGRepository) Delete(ctx context.Context, number string) error {
	if r.Pool == nil {
		return errors.New("invoice: database pool is required")
	}
	tag, err := r.Pool.Exec(ctx, `DELETE FROM invoices WHERE number = $1`, number)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r PGRepository) loadLines(ctx context.Context, rec *Record) error {
	rows, err := r.Pool.Query(ctx, selectLinesSQL, rec.Number)
	if err != nil {
		return err
	}
	defer rows.Close()
	items := make([]billing.LineItem, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		var it billing.LineItem
		if err := json.Unmarshal(payload, &it); err != nil {
			return fmt.Errorf("decode invoice line: %w", err)
		}
		items = append(items, it)
	}
	rec.Invoice.Items = items
	return rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var issued time.Time
	var seller, client, summary, skipped []byte
	if err := row.Scan(&rec.Number, &rec.SessionID, &issued, &seller, &client, &summary, &skipped,
		&rec.AmountInWords, &rec.TaxInWords, &rec.Document); err != nil {
		return Record{}, err
	}
	rec.IssuedAt = issued.UTC()
	if err := json.Unmarshal(seller, &rec.Seller); err != nil {
		return Record{}, fmt.Errorf("decode seller: %w", err)
	}
	if err := json.Unmarshal(client, &rec.Client); err != nil {
		return Record{}, fmt.Errorf("decode client: %w", err)
	}
	if err := json.Unmarshal(summary, &rec.Invoice.Summary); err != nil {
		return Record{}, fmt.Errorf("decode summary: %w", err)
	}
	if len(skipped) > 0 && string(skipped) != "null" {
		if err := json.Unmarshal(skipped, &rec.Invoice.Skipped); err != nil {
			return Record{}, fmt.Errorf("decode skipped lines: %w", err)
		}
	}
	return rec, nil
}
