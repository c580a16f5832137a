package expense

import (
	"time"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// ProcessingStatus records whether extraction produced the stored values
type ProcessingStatus string

const (
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// Expense is a persisted expense record created from a receipt
type Expense struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	Amount           float64             `json:"amount"`
	Description      string              `json:"description"`
	Merchant         string              `json:"merchant,omitempty"`
	Category         string              `json:"category"`
	Date             time.Time           `json:"date"`
	ExtractedData    *scanning.Candidate `json:"extracted_data,omitempty"`
	ProcessingStatus ProcessingStatus    `json:"processing_status"`
	AIConfidence     *float64            `json:"ai_confidence"`
	NeedsReview      bool                `json:"needs_review"`
	ExtractionModel  string              `json:"extraction_model,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// User owns expenses and categories
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is one of a user's expense categories
type Category struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	System    bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}
