package expense

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key
const uniqueViolation = "23505"

//go:embed schema.sql
var schemaSQL string

const expenseColumns = `id, user_id, amount, description, merchant, category, date, extracted_data,
	processing_status, ai_confidence, needs_review, extraction_model, created_at, updated_at`

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at url and checks the connection
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres url is required")
	}

	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables if they don't exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// CreateUser inserts a user, returning ErrUserExists on a duplicate key
func (p *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name) VALUES ($1, $2, $3) RETURNING created_at`,
		user.ID, user.Email, user.Name,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrUserExists
		}
		return wrapPgError("create_user", err)
	}
	return nil
}

// EnsureCategories inserts the named system categories, leaving existing ones alone
func (p *PostgresStore) EnsureCategories(ctx context.Context, userID string, names []string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return wrapPgError("ensure_categories", err)
	}
	defer tx.Rollback(ctx)

	for _, name := range names {
		_, err := tx.Exec(ctx,
			`INSERT INTO categories (user_id, name, is_system) VALUES ($1, $2, true)
			ON CONFLICT (user_id, name) DO NOTHING`,
			userID, name)
		if err != nil {
			return wrapPgError("ensure_categories", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapPgError("ensure_categories", err)
	}
	return nil
}

// ListCategories returns the user's categories in name order
func (p *PostgresStore) ListCategories(ctx context.Context, userID string) ([]*Category, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT user_id, name, is_system, created_at FROM categories WHERE user_id = $1 ORDER BY name`,
		userID)
	if err != nil {
		return nil, wrapPgError("list_categories", err)
	}
	defer rows.Close()

	categories := make([]*Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.UserID, &c.Name, &c.System, &c.CreatedAt); err != nil {
			return nil, wrapPgError("list_categories", err)
		}
		categories = append(categories, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("list_categories", err)
	}
	return categories, nil
}

// InsertExpense stores a new expense and returns the row as written
func (p *PostgresStore) InsertExpense(ctx context.Context, expense *Expense) (*Expense, error) {
	extracted, err := marshalCandidate(expense.ExtractedData)
	if err != nil {
		return nil, &StoreError{Op: "insert_expense", Message: err.Error(), Err: err}
	}

	row := p.pool.QueryRow(ctx,
		`INSERT INTO expenses (id, user_id, amount, description, merchant, category, date, extracted_data,
			processing_status, ai_confidence, needs_review, extraction_model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+expenseColumns,
		expense.ID, expense.UserID, expense.Amount, expense.Description, nullable(expense.Merchant),
		expense.Category, expense.Date, extracted, string(expense.ProcessingStatus), expense.AIConfidence,
		expense.NeedsReview, nullable(expense.ExtractionModel), expense.CreatedAt, expense.UpdatedAt,
	)

	stored, err := scanExpense(row)
	if err != nil {
		return nil, wrapPgError("insert_expense", err)
	}
	return stored, nil
}

// GetExpense retrieves an expense by ID
func (p *PostgresStore) GetExpense(ctx context.Context, id string) (*Expense, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id)
	expense, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapPgError("get_expense", err)
	}
	return expense, nil
}

// ListExpenses returns the user's expenses, newest date first
func (p *PostgresStore) ListExpenses(ctx context.Context, userID string) ([]*Expense, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = $1 ORDER BY date DESC, created_at DESC`,
		userID)
	if err != nil {
		return nil, wrapPgError("list_expenses", err)
	}
	defer rows.Close()

	expenses := make([]*Expense, 0)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, wrapPgError("list_expenses", err)
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("list_expenses", err)
	}
	return expenses, nil
}

// UpdateExpense replaces the editable fields of an existing expense
func (p *PostgresStore) UpdateExpense(ctx context.Context, expense *Expense) error {
	extracted, err := marshalCandidate(expense.ExtractedData)
	if err != nil {
		return &StoreError{Op: "update_expense", Message: err.Error(), Err: err}
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE expenses SET amount = $2, description = $3, merchant = $4, category = $5, date = $6,
			extracted_data = $7, processing_status = $8, ai_confidence = $9, needs_review = $10, updated_at = $11
		WHERE id = $1`,
		expense.ID, expense.Amount, expense.Description, nullable(expense.Merchant), expense.Category,
		expense.Date, extracted, string(expense.ProcessingStatus), expense.AIConfidence, expense.NeedsReview,
		expense.UpdatedAt,
	)
	if err != nil {
		return wrapPgError("update_expense", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense %s: %w", expense.ID, ErrNotFound)
	}
	return nil
}

// DeleteExpense removes an expense
func (p *PostgresStore) DeleteExpense(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return wrapPgError("delete_expense", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return nil
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func scanExpense(row pgx.Row) (*Expense, error) {
	var (
		e         Expense
		merchant  *string
		model     *string
		status    string
		extracted []byte
	)
	err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.Description, &merchant, &e.Category, &e.Date, &extracted,
		&status, &e.AIConfidence, &e.NeedsReview, &model, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.ProcessingStatus = ProcessingStatus(status)
	if merchant != nil {
		e.Merchant = *merchant
	}
	if model != nil {
		e.ExtractionModel = *model
	}
	if len(extracted) > 0 {
		var candidate scanning.Candidate
		if err := json.Unmarshal(extracted, &candidate); err != nil {
			return nil, fmt.Errorf("unmarshaling extracted data: %w", err)
		}
		e.ExtractedData = &candidate
	}
	return &e, nil
}

func marshalCandidate(candidate *scanning.Candidate) ([]byte, error) {
	if candidate == nil {
		return nil, nil
	}
	data, err := json.Marshal(candidate)
	if err != nil {
		return nil, fmt.Errorf("marshaling extracted data: %w", err)
	}
	return data, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// wrapPgError keeps the server's diagnostic fields so callers can report them
func wrapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &StoreError{
			Op:      op,
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
			Hint:    pgErr.Hint,
			Err:     err,
		}
	}
	return &StoreError{Op: op, Message: err.Error(), Err: err}
}
