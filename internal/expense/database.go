package expense

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	usersBucket      = "users"
	categoriesBucket = "categories"
	expensesBucket   = "expenses"
)

// BoltDB implements Store using BoltDB.
// Categories live in a nested bucket per user, keyed by name.
type BoltDB struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{usersBucket, categoriesBucket, expensesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db, now: time.Now}, nil
}

// CreateUser saves a user unless one with the same ID exists
func (b *BoltDB) CreateUser(ctx context.Context, user *User) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(usersBucket))
		if bucket.Get([]byte(user.ID)) != nil {
			return ErrUserExists
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = b.now()
		}
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		return bucket.Put([]byte(user.ID), data)
	})
	if err == ErrUserExists {
		return err
	}
	return wrapBoltError("create_user", err)
}

// EnsureCategories adds the named system categories the user does not have yet
func (b *BoltDB) EnsureCategories(ctx context.Context, userID string, names []string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(categoriesBucket)).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		now := b.now()
		for _, name := range names {
			if bucket.Get([]byte(name)) != nil {
				continue
			}
			data, err := json.Marshal(&Category{UserID: userID, Name: name, System: true, CreatedAt: now})
			if err != nil {
				return fmt.Errorf("marshaling category: %w", err)
			}
			if err := bucket.Put([]byte(name), data); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapBoltError("ensure_categories", err)
}

// ListCategories returns the user's categories in name order
func (b *BoltDB) ListCategories(ctx context.Context, userID string) ([]*Category, error) {
	categories := make([]*Category, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(categoriesBucket)).Bucket([]byte(userID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var category Category
			if err := json.Unmarshal(v, &category); err != nil {
				return fmt.Errorf("unmarshaling category: %w", err)
			}
			categories = append(categories, &category)
			return nil
		})
	})
	if err != nil {
		return nil, wrapBoltError("list_categories", err)
	}
	return categories, nil
}

// InsertExpense saves a new expense, refusing to overwrite an existing ID
func (b *BoltDB) InsertExpense(ctx context.Context, expense *Expense) (*Expense, error) {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expensesBucket))
		if bucket.Get([]byte(expense.ID)) != nil {
			return &StoreError{Op: "insert_expense", Code: "duplicate", Message: fmt.Sprintf("expense %s already exists", expense.ID)}
		}
		data, err := json.Marshal(expense)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put([]byte(expense.ID), data)
	})
	if err != nil {
		return nil, wrapBoltError("insert_expense", err)
	}

	stored := *expense
	return &stored, nil
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(ctx context.Context, id string) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(expensesBucket)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &expense)
	})
	if err == ErrNotFound {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapBoltError("get_expense", err)
	}
	return expense, nil
}

// ListExpenses returns the user's expenses, newest date first
func (b *BoltDB) ListExpenses(ctx context.Context, userID string) ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expensesBucket)).ForEach(func(k, v []byte) error {
			var expense Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			if expense.UserID == userID {
				expenses = append(expenses, &expense)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapBoltError("list_expenses", err)
	}

	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.After(expenses[j].Date)
		}
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
	return expenses, nil
}

// UpdateExpense replaces an existing expense
func (b *BoltDB) UpdateExpense(ctx context.Context, expense *Expense) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expensesBucket))
		if bucket.Get([]byte(expense.ID)) == nil {
			return ErrNotFound
		}
		data, err := json.Marshal(expense)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put([]byte(expense.ID), data)
	})
	if err == ErrNotFound {
		return fmt.Errorf("expense %s: %w", expense.ID, ErrNotFound)
	}
	return wrapBoltError("update_expense", err)
}

// DeleteExpense removes an expense
func (b *BoltDB) DeleteExpense(ctx context.Context, id string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expensesBucket))
		if bucket.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return bucket.Delete([]byte(id))
	})
	if err == ErrNotFound {
		return fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return wrapBoltError("delete_expense", err)
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func wrapBoltError(op string, err error) error {
	if err == nil {
		return nil
	}
	if storeErr, ok := err.(*StoreError); ok {
		return storeErr
	}
	return &StoreError{Op: op, Message: err.Error(), Err: err}
}
