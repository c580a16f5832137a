package expense

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUserExists is returned by CreateUser when the user is already present
	ErrUserExists = errors.New("user already exists")
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
)

// Store defines the record store the service persists to
type Store interface {
	// CreateUser inserts a user, returning ErrUserExists on conflict
	CreateUser(ctx context.Context, user *User) error

	// EnsureCategories inserts any of the named categories the user lacks
	EnsureCategories(ctx context.Context, userID string, names []string) error

	// InsertExpense stores a new expense and returns it as persisted
	InsertExpense(ctx context.Context, expense *Expense) (*Expense, error)

	// GetExpense retrieves an expense by ID
	GetExpense(ctx context.Context, id string) (*Expense, error)

	// ListExpenses returns a user's expenses, newest date first
	ListExpenses(ctx context.Context, userID string) ([]*Expense, error)

	// UpdateExpense replaces an existing expense
	UpdateExpense(ctx context.Context, expense *Expense) error

	// DeleteExpense removes an expense
	DeleteExpense(ctx context.Context, id string) error

	// ListCategories returns a user's categories ordered by name
	ListCategories(ctx context.Context, userID string) ([]*Category, error)

	// Close releases the store
	Close() error
}

// StoreError carries the diagnostics a store reports for a failed operation
type StoreError struct {
	Op      string
	Code    string
	Message string
	Detail  string
	Hint    string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// diagnose extracts store diagnostics from any error
func diagnose(op string, err error) *StoreError {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr
	}
	return &StoreError{Op: op, Message: err.Error(), Err: err}
}
