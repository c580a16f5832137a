package expense

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zombor/expense-tracker/internal/scanning"
)

const (
	placeholderEmail = "user@example.com"
	placeholderName  = "App User"
)

// ProvisionReport lists which provisioning steps failed
type ProvisionReport struct {
	UserErr       error
	CategoriesErr error
}

// OK reports whether every step succeeded
func (r ProvisionReport) OK() bool {
	return r.UserErr == nil && r.CategoriesErr == nil
}

// Provisioner makes sure a user and their default categories exist before a write
type Provisioner struct {
	store      Store
	categories []string
}

// NewProvisioner creates a Provisioner seeding the default category set
func NewProvisioner(store Store) *Provisioner {
	return &Provisioner{
		store:      store,
		categories: scanning.Categories,
	}
}

// Provision creates the user if absent and seeds missing categories.
// Failures are logged and reported but never stop the caller.
func (p *Provisioner) Provision(ctx context.Context, userID string) ProvisionReport {
	var report ProvisionReport

	user := &User{ID: userID, Email: placeholderEmail, Name: placeholderName}
	if err := p.store.CreateUser(ctx, user); err != nil && !errors.Is(err, ErrUserExists) {
		report.UserErr = err
		slog.Warn("Failed to provision user", "user_id", userID, "error", err)
	}

	if err := p.store.EnsureCategories(ctx, userID, p.categories); err != nil {
		report.CategoriesErr = err
		slog.Warn("Failed to provision categories", "user_id", userID, "error", err)
	}

	return report
}
